// Package config provides configuration loading for the resolver using
// Viper. Configuration is loaded from YAML files with automatic
// environment variable binding.
//
// Environment variables use the RESOLVER_ prefix and underscore-separated
// keys:
//   - RESOLVER_SERVER_HOST -> server.host
//   - RESOLVER_SERVER_PORT -> server.port
//   - RESOLVER_UPSTREAM_STRATEGY -> upstream.strategy
//   - RESOLVER_BLOCKLIST_ENABLED -> blocklist.enabled
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains server-related settings.
type ServerConfig struct {
	Host                   string        `yaml:"host"                      mapstructure:"host"`
	Port                   int           `yaml:"port"                      mapstructure:"port"`
	Workers                WorkerSetting `yaml:"-"                         mapstructure:"-"`
	WorkersRaw             string        `yaml:"workers"                   mapstructure:"workers"`
	MaxConcurrency         int           `yaml:"max_concurrency"           mapstructure:"max_concurrency"`
	UpstreamSocketPoolSize int           `yaml:"upstream_socket_pool_size" mapstructure:"upstream_socket_pool_size"`
	EnableTCP              bool          `yaml:"enable_tcp"                mapstructure:"enable_tcp"`
	TCPFallback            bool          `yaml:"tcp_fallback"              mapstructure:"tcp_fallback"`
	QueryTimeout           string        `yaml:"query_timeout"             mapstructure:"query_timeout"`
}

// UpstreamEntry is one recursive-resolution upstream, matching the
// Upstream record spec.md §3 names: an address, optional geographic
// coordinates for the geographic strategy, and the qtypes it specializes
// in for the intelligent strategy.
type UpstreamEntry struct {
	ID              string   `yaml:"id"              mapstructure:"id"              json:"id"`
	Address         string   `yaml:"address"         mapstructure:"address"         json:"address"`
	Port            int      `yaml:"port"            mapstructure:"port"            json:"port"`
	Latitude        float64  `yaml:"latitude"        mapstructure:"latitude"        json:"latitude,omitempty"`
	Longitude       float64  `yaml:"longitude"       mapstructure:"longitude"       json:"longitude,omitempty"`
	Specialisations []string `yaml:"specialisations" mapstructure:"specialisations" json:"specialisations,omitempty"`
}

// UpstreamConfig contains upstream DNS server settings.
type UpstreamConfig struct {
	Servers    []UpstreamEntry `yaml:"servers"     mapstructure:"servers"     json:"servers"`
	Strategy   string          `yaml:"strategy"    mapstructure:"strategy"    json:"strategy"` // intelligent|weighted_round_robin|least_latency|geographic|adaptive
	UDPTimeout string          `yaml:"udp_timeout" mapstructure:"udp_timeout" json:"udp_timeout"`
	TCPTimeout string          `yaml:"tcp_timeout" mapstructure:"tcp_timeout" json:"tcp_timeout"`
	MaxRetries int             `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries"`
}

// CacheConfig sizes the three-tier response cache.
type CacheConfig struct {
	TotalEntries int `yaml:"total_entries" mapstructure:"total_entries" json:"total_entries"`
	HotEntries   int `yaml:"hot_entries"   mapstructure:"hot_entries"   json:"hot_entries"`
	WarmEntries  int `yaml:"warm_entries"  mapstructure:"warm_entries"  json:"warm_entries"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// BlocklistSourceConfig names one blocklist file or URL to load at
// startup, in the teacher's original remote-blocklist shape.
type BlocklistSourceConfig struct {
	Name   string `yaml:"name"   mapstructure:"name"   json:"name"`
	Path   string `yaml:"path"   mapstructure:"path"   json:"path,omitempty"`
	URL    string `yaml:"url"    mapstructure:"url"    json:"url,omitempty"`
	Format string `yaml:"format" mapstructure:"format" json:"format"` // "auto", "adblock", "hosts", "domains"
}

// BlocklistConfig controls the suffix/wildcard domain blocklist.
type BlocklistConfig struct {
	Enabled  bool                    `yaml:"enabled"  mapstructure:"enabled"  json:"enabled"`
	Mode     string                  `yaml:"mode"     mapstructure:"mode"     json:"mode"` // "suffix" or "exact"
	Patterns []string                `yaml:"patterns" mapstructure:"patterns" json:"patterns,omitempty"`
	Sources  []BlocklistSourceConfig `yaml:"sources"  mapstructure:"sources"  json:"sources,omitempty"`
}

// AltNamingConfig controls dispatch to external TLD-specific resolvers
// (alt-naming schemes such as .eth/.crypto).
type AltNamingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
}

// RateLimitConfig controls per-source rate limiting settings.
type RateLimitConfig struct {
	// CleanupSeconds is how often stale entries are cleaned up (default: 60)
	CleanupSeconds float64 `yaml:"cleanup_seconds"    mapstructure:"cleanup_seconds"    json:"cleanup_seconds"`
	// MaxIPEntries is the maximum number of tracked IPs (default: 65536)
	MaxIPEntries int `yaml:"max_ip_entries"     mapstructure:"max_ip_entries"     json:"max_ip_entries"`
	// MaxPrefixEntries is the maximum number of tracked prefixes (default: 16384)
	MaxPrefixEntries int `yaml:"max_prefix_entries" mapstructure:"max_prefix_entries" json:"max_prefix_entries"`
	// GlobalQPS is the server-wide queries per second limit (default: 100000, 0 = disabled)
	GlobalQPS float64 `yaml:"global_qps"         mapstructure:"global_qps"         json:"global_qps"`
	// GlobalBurst is the global burst size (default: 100000)
	GlobalBurst int `yaml:"global_burst"       mapstructure:"global_burst"       json:"global_burst"`
	// PrefixQPS is the per-prefix QPS limit (default: 10000, 0 = disabled)
	PrefixQPS float64 `yaml:"prefix_qps"         mapstructure:"prefix_qps"         json:"prefix_qps"`
	// PrefixBurst is the per-prefix burst size (default: 20000)
	PrefixBurst int `yaml:"prefix_burst"       mapstructure:"prefix_burst"       json:"prefix_burst"`
	// IPQPS is the per-IP QPS limit (default: 5000, 0 = disabled)
	IPQPS float64 `yaml:"ip_qps"             mapstructure:"ip_qps"             json:"ip_qps"`
	// IPBurst is the per-IP burst size (default: 10000)
	IPBurst int `yaml:"ip_burst"           mapstructure:"ip_burst"           json:"ip_burst"`
}

// AdminConfig contains the read-only HTTP status/metrics surface settings.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"    json:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"    json:"port"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"     mapstructure:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"   mapstructure:"upstream"`
	Cache     CacheConfig     `yaml:"cache"      mapstructure:"cache"`
	Logging   LoggingConfig   `yaml:"logging"    mapstructure:"logging"`
	Blocklist BlocklistConfig `yaml:"blocklist"  mapstructure:"blocklist"`
	AltNaming AltNamingConfig `yaml:"alt_naming" mapstructure:"alt_naming"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Admin     AdminConfig     `yaml:"admin"      mapstructure:"admin"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("RESOLVER_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (RESOLVER_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
