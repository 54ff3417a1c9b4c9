package blocklist

import "log/slog"

// Mode selects how Blocklist.Blocked matches a query name against the
// trie.
type Mode int

const (
	// ModeSuffix blocks a name and every subdomain of it. The default;
	// matches what a StevenBlack/AdGuard-style list author expects.
	ModeSuffix Mode = iota
	// ModeExact blocks only names equal to a listed pattern, reproducing
	// the source implementation's literal-equality behaviour.
	ModeExact
)

// Blocklist wraps an immutable Trie with a matching mode and a logger for
// blocklist hits. It keeps no hit/miss counters.
type Blocklist struct {
	trie   *Trie
	mode   Mode
	logger *slog.Logger
}

// Config builds a Blocklist from a static pattern list. Patterns are
// inserted once at construction; the resulting Blocklist is read-only and
// safe for concurrent Blocked calls.
type Config struct {
	Patterns []string
	Mode     Mode
	Logger   *slog.Logger
}

// New builds a Blocklist from cfg. Patterns are normalized and added to an
// internal Trie before the Blocklist is returned; no further mutation is
// possible.
func New(cfg Config) *Blocklist {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trie := NewTrie()
	for _, p := range cfg.Patterns {
		trie.Add(p)
	}
	return &Blocklist{trie: trie, mode: cfg.Mode, logger: logger}
}

// Blocked reports whether qname matches the blocklist under the
// configured Mode.
func (b *Blocklist) Blocked(qname string) bool {
	var hit bool
	if b.mode == ModeExact {
		hit = b.trie.ContainsExact(qname)
	} else {
		hit = b.trie.Contains(qname)
	}
	if hit {
		b.logger.Info("blocklist hit", "qname", qname, "mode", b.modeName())
	}
	return hit
}

func (b *Blocklist) modeName() string {
	if b.mode == ModeExact {
		return "exact"
	}
	return "suffix"
}

// Size returns the number of patterns loaded.
func (b *Blocklist) Size() int {
	return b.trie.Size()
}
