package phishing

import (
	"net/url"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Match types reported in Result.Type.
const (
	TypeWhitelist = "whitelist"
	TypeBlacklist = "blacklist"
	TypeFuzzy     = "fuzzy"
	TypeAll       = "all"
)

// Result is the verdict for one URL. Result is true when the URL should be
// treated as phishing; Name is the list entry that matched.
type Result struct {
	Result bool   `json:"result"`
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
}

// Config is the phishing list in the eth-phishing-detect format.
type Config struct {
	Version   int      `json:"version"`
	Tolerance int      `json:"tolerance"`
	Fuzzylist []string `json:"fuzzylist"`
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`
}

// List is a compiled Config. It is immutable once built.
type List struct {
	version   int
	tolerance int
	whitelist map[string]struct{}
	blacklist map[string]struct{}
	globs     []string
	fuzzy     []string
}

// Compile normalises every entry of cfg.
func Compile(cfg Config) *List {
	l := &List{
		version:   cfg.Version,
		tolerance: cfg.Tolerance,
		whitelist: make(map[string]struct{}, len(cfg.Whitelist)),
		blacklist: make(map[string]struct{}, len(cfg.Blacklist)),
	}
	for _, h := range cfg.Whitelist {
		if n := normalizeHost(h); n != "" {
			l.whitelist[n] = struct{}{}
		}
	}
	for _, h := range cfg.Blacklist {
		if strings.ContainsAny(h, "*?[{") {
			if doublestar.ValidatePattern(strings.ToLower(h)) {
				l.globs = append(l.globs, strings.ToLower(h))
			}
			continue
		}
		if n := normalizeHost(h); n != "" {
			l.blacklist[n] = struct{}{}
		}
	}
	for _, h := range cfg.Fuzzylist {
		if n := normalizeHost(h); n != "" {
			l.fuzzy = append(l.fuzzy, n)
		}
	}
	return l
}

// Version is the list's declared version.
func (l *List) Version() int { return l.version }

// Size is the number of entries across all lists.
func (l *List) Size() int {
	return len(l.whitelist) + len(l.blacklist) + len(l.globs) + len(l.fuzzy)
}

// Test checks rawURL against the list. URLs without a host never match.
func (l *List) Test(rawURL string) Result {
	host := hostOf(rawURL)
	if host == "" || l == nil {
		return Result{Type: TypeAll}
	}

	if name, ok := matchDomain(host, l.whitelist); ok {
		return Result{Type: TypeWhitelist, Name: name}
	}
	if name, ok := matchDomain(host, l.blacklist); ok {
		return Result{Result: true, Type: TypeBlacklist, Name: name}
	}
	for _, g := range l.globs {
		if ok, _ := doublestar.Match(g, host); ok {
			return Result{Result: true, Type: TypeBlacklist, Name: g}
		}
	}

	if len(l.fuzzy) > 0 {
		domain, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil {
			domain = host
		}
		if slices.Contains(l.fuzzy, domain) {
			return Result{Type: TypeAll}
		}
		for _, f := range l.fuzzy {
			if levenshtein(domain, f) <= l.tolerance {
				return Result{Result: true, Type: TypeFuzzy, Name: f}
			}
		}
	}

	return Result{Type: TypeAll}
}

// matchDomain checks host and each of its parent domains.
func matchDomain(host string, set map[string]struct{}) (string, bool) {
	for h := host; h != ""; {
		if _, ok := set[h]; ok {
			return h, true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return "", false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(h string) string {
	h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
	if h == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(h); err == nil {
		return ascii
	}
	return h
}

// levenshtein is the edit distance between two ASCII host names.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
