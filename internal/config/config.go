// Package config provides configuration loading and validation for the
// resolver.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/resolverd/main.go)
//  2. Environment variables (RESOLVER_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from RESOLVER_CATEGORY_SETTING format,
// e.g., RESOLVER_SERVER_HOST maps to server.host in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable binding.
	// Uses RESOLVER_ prefix: RESOLVER_SERVER_HOST -> server.host
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 1053)
	v.SetDefault("server.workers", "auto")
	v.SetDefault("server.max_concurrency", 0)
	v.SetDefault("server.upstream_socket_pool_size", 0)
	v.SetDefault("server.enable_tcp", true)
	v.SetDefault("server.tcp_fallback", true)
	v.SetDefault("server.query_timeout", "4s")

	// Upstream defaults
	v.SetDefault("upstream.strategy", "intelligent")
	v.SetDefault("upstream.udp_timeout", "2s")
	v.SetDefault("upstream.tcp_timeout", "5s")
	v.SetDefault("upstream.max_retries", 2)

	// Cache defaults
	v.SetDefault("cache.total_entries", 50000)
	v.SetDefault("cache.hot_entries", 0)
	v.SetDefault("cache.warm_entries", 0)

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Blocklist defaults
	v.SetDefault("blocklist.enabled", false)
	v.SetDefault("blocklist.mode", "suffix")
	v.SetDefault("blocklist.patterns", []string{})
	v.SetDefault("blocklist.sources", []BlocklistSourceConfig{})

	// Alt-naming defaults
	v.SetDefault("alt_naming.enabled", true)

	// Rate limiting defaults
	v.SetDefault("rate_limit.cleanup_seconds", 60.0)
	v.SetDefault("rate_limit.max_ip_entries", 65536)
	v.SetDefault("rate_limit.max_prefix_entries", 16384)
	v.SetDefault("rate_limit.global_qps", 100000.0)
	v.SetDefault("rate_limit.global_burst", 100000)
	v.SetDefault("rate_limit.prefix_qps", 10000.0)
	v.SetDefault("rate_limit.prefix_burst", 20000)
	v.SetDefault("rate_limit.ip_qps", 5000.0)
	v.SetDefault("rate_limit.ip_burst", 10000)

	// Admin surface defaults: disabled and bound to localhost for safety.
	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 8080)
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	if err := loadUpstreamConfig(v, cfg); err != nil {
		return nil, err
	}
	loadCacheConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	if err := loadBlocklistConfig(v, cfg); err != nil {
		return nil, err
	}
	cfg.AltNaming.Enabled = v.GetBool("alt_naming.enabled")
	loadRateLimitConfig(v, cfg)
	loadAdminConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.MaxConcurrency = v.GetInt("server.max_concurrency")
	cfg.Server.UpstreamSocketPoolSize = v.GetInt("server.upstream_socket_pool_size")
	cfg.Server.EnableTCP = v.GetBool("server.enable_tcp")
	cfg.Server.TCPFallback = v.GetBool("server.tcp_fallback")
	cfg.Server.QueryTimeout = v.GetString("server.query_timeout")
	cfg.Server.WorkersRaw = v.GetString("server.workers")
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
}

func loadUpstreamConfig(v *viper.Viper, cfg *Config) error {
	cfg.Upstream.Strategy = v.GetString("upstream.strategy")
	cfg.Upstream.UDPTimeout = v.GetString("upstream.udp_timeout")
	cfg.Upstream.TCPTimeout = v.GetString("upstream.tcp_timeout")
	cfg.Upstream.MaxRetries = v.GetInt("upstream.max_retries")

	// A config file supplies a list of {id, address, port, ...} maps; an
	// env var override supplies a flat comma-separated address string
	// instead, so the two shapes are told apart before unmarshaling.
	if _, isStringVal := v.Get("upstream.servers").(string); !isStringVal {
		if err := v.UnmarshalKey("upstream.servers", &cfg.Upstream.Servers); err != nil {
			return fmt.Errorf("failed to parse upstream.servers: %w", err)
		}
	}

	// RESOLVER_UPSTREAM_SERVERS as a plain comma-separated address list,
	// each entry defaulting to port 53.
	if len(cfg.Upstream.Servers) == 0 {
		if s := v.GetString("upstream.servers"); s != "" {
			for _, addr := range strings.Split(s, ",") {
				addr = strings.TrimSpace(addr)
				if addr == "" {
					continue
				}
				host, port := addr, 53
				if h, p, ok := strings.Cut(addr, ":"); ok {
					host = h
					if n, err := strconv.Atoi(p); err == nil {
						port = n
					}
				}
				cfg.Upstream.Servers = append(cfg.Upstream.Servers, UpstreamEntry{
					ID:      host,
					Address: host,
					Port:    port,
				})
			}
		}
	}
	return nil
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.TotalEntries = v.GetInt("cache.total_entries")
	cfg.Cache.HotEntries = v.GetInt("cache.hot_entries")
	cfg.Cache.WarmEntries = v.GetInt("cache.warm_entries")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadBlocklistConfig(v *viper.Viper, cfg *Config) error {
	cfg.Blocklist.Enabled = v.GetBool("blocklist.enabled")
	cfg.Blocklist.Mode = v.GetString("blocklist.mode")
	cfg.Blocklist.Patterns = getStringSliceOrSplit(v, "blocklist.patterns")
	if v.IsSet("blocklist.sources") {
		if err := v.UnmarshalKey("blocklist.sources", &cfg.Blocklist.Sources); err != nil {
			return fmt.Errorf("failed to parse blocklist.sources: %w", err)
		}
	}
	return nil
}

func loadRateLimitConfig(v *viper.Viper, cfg *Config) {
	cfg.RateLimit.CleanupSeconds = v.GetFloat64("rate_limit.cleanup_seconds")
	cfg.RateLimit.MaxIPEntries = v.GetInt("rate_limit.max_ip_entries")
	cfg.RateLimit.MaxPrefixEntries = v.GetInt("rate_limit.max_prefix_entries")
	cfg.RateLimit.GlobalQPS = v.GetFloat64("rate_limit.global_qps")
	cfg.RateLimit.GlobalBurst = v.GetInt("rate_limit.global_burst")
	cfg.RateLimit.PrefixQPS = v.GetFloat64("rate_limit.prefix_qps")
	cfg.RateLimit.PrefixBurst = v.GetInt("rate_limit.prefix_burst")
	cfg.RateLimit.IPQPS = v.GetFloat64("rate_limit.ip_qps")
	cfg.RateLimit.IPBurst = v.GetInt("rate_limit.ip_burst")
}

func loadAdminConfig(v *viper.Viper, cfg *Config) {
	cfg.Admin.Enabled = v.GetBool("admin.enabled")
	cfg.Admin.Host = v.GetString("admin.host")
	cfg.Admin.Port = v.GetInt("admin.port")
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}

	if len(cfg.Upstream.Servers) == 0 {
		cfg.Upstream.Servers = []UpstreamEntry{{ID: "8.8.8.8", Address: "8.8.8.8", Port: 53}}
	}
	for i := range cfg.Upstream.Servers {
		if cfg.Upstream.Servers[i].Port == 0 {
			cfg.Upstream.Servers[i].Port = 53
		}
		if cfg.Upstream.Servers[i].ID == "" {
			cfg.Upstream.Servers[i].ID = cfg.Upstream.Servers[i].Address
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.Blocklist.Mode == "" {
		cfg.Blocklist.Mode = "suffix"
	}

	if cfg.Admin.Host == "" {
		cfg.Admin.Host = "127.0.0.1"
	}
	if cfg.Admin.Enabled {
		if cfg.Admin.Port <= 0 || cfg.Admin.Port > 65535 {
			return errors.New("admin.port must be 1..65535")
		}
	}

	return nil
}
