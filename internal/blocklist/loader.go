package blocklist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrInvalidSource is the sentinel wrapped by every source the Loader could
// not load: missing path/url, an unreachable file or URL, a non-200 HTTP
// status, or an unreadable list body.
var ErrInvalidSource = errors.New("blocklist: invalid source")

// SourceFormat is the textual format of a blocklist source file.
type SourceFormat int

const (
	// FormatAuto detects the format of each non-comment line on its own.
	FormatAuto SourceFormat = iota
	FormatDomains
	FormatHosts
	FormatAdblock
)

// Source names one blocklist to load, either a local file or a URL.
type Source struct {
	Name   string
	Path   string
	URL    string
	Format SourceFormat
}

// Loader fetches and parses blocklist sources into flat domain patterns
// consumable by Config.Patterns. It performs no caching or refreshing of
// its own; callers reload at process startup.
type Loader struct {
	// Timeout bounds HTTP fetches for URL sources. Defaults to 60s.
	Timeout time.Duration
}

// NewLoader returns a Loader with its default HTTP timeout.
func NewLoader() *Loader {
	return &Loader{Timeout: 60 * time.Second}
}

// Load resolves every source into a single deduplicated pattern slice.
func (l *Loader) Load(sources []Source) ([]string, error) {
	seen := make(map[string]struct{})
	var patterns []string
	for _, src := range sources {
		domains, err := l.loadOne(src)
		if err != nil {
			return nil, fmt.Errorf("blocklist source %q: %w", src.Name, err)
		}
		for _, d := range domains {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			patterns = append(patterns, d)
		}
	}
	return patterns, nil
}

func (l *Loader) loadOne(src Source) ([]string, error) {
	switch {
	case src.URL != "":
		return l.loadURL(src.URL, src.Format)
	case src.Path != "":
		return l.loadFile(src.Path, src.Format)
	default:
		return nil, fmt.Errorf("%w: source has neither path nor url", ErrInvalidSource)
	}
}

func (l *Loader) loadFile(path string, format SourceFormat) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrInvalidSource, err)
	}
	defer f.Close()
	return parseList(f, format)
}

func (l *Loader) loadURL(url string, format SourceFormat) ([]string, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %w", ErrInvalidSource, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http status %s", ErrInvalidSource, resp.Status)
	}
	return parseList(resp.Body, format)
}

func parseList(r io.Reader, format SourceFormat) ([]string, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var domains []string
	detected := format
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if format == FormatAuto {
			detected = detectFormat(line)
		}
		if domain, ok := parseLine(line, detected); ok {
			domains = append(domains, domain)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrInvalidSource, err)
	}
	return domains, nil
}

func detectFormat(line string) SourceFormat {
	if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return FormatAuto
	}
	if strings.HasPrefix(line, "||") {
		return FormatAdblock
	}
	if strings.HasPrefix(line, "0.0.0.0") || strings.HasPrefix(line, "127.0.0.1") {
		return FormatHosts
	}
	return FormatDomains
}

func parseLine(line string, format SourceFormat) (string, bool) {
	if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return "", false
	}
	switch format {
	case FormatAdblock:
		return parseAdblockLine(line)
	case FormatHosts:
		return parseHostsLine(line)
	default:
		return parseDomainsLine(line)
	}
}

func parseAdblockLine(line string) (string, bool) {
	if strings.HasPrefix(line, "@@") || !strings.HasPrefix(line, "||") {
		return "", false
	}
	domain := strings.TrimPrefix(line, "||")
	if idx := strings.IndexAny(domain, "^$"); idx >= 0 {
		domain = domain[:idx]
	}
	if strings.ContainsAny(domain, "/*") {
		return "", false
	}
	domain = normalize(domain)
	if !validDomain(domain) {
		return "", false
	}
	return domain, true
}

func parseHostsLine(line string) (string, bool) {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	if fields[0] != "0.0.0.0" && fields[0] != "127.0.0.1" {
		return "", false
	}
	domain := normalize(fields[1])
	if domain == "localhost" || domain == "localhost.localdomain" || !validDomain(domain) {
		return "", false
	}
	return domain, true
}

func parseDomainsLine(line string) (string, bool) {
	if idx := strings.Index(line, "#"); idx >= 0 {
		line = line[:idx]
	}
	domain := normalize(strings.TrimSpace(line))
	if !validDomain(domain) {
		return "", false
	}
	return domain, true
}

func validDomain(domain string) bool {
	if domain == "" || len(domain) > 253 || !strings.Contains(domain, ".") {
		return false
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if !isAlphaNum(label[0]) || !isAlphaNum(label[len(label)-1]) {
			return false
		}
		for i := 0; i < len(label); i++ {
			if !isAlphaNum(label[i]) && label[i] != '-' {
				return false
			}
		}
	}
	return true
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
