package navigation

import (
	"net/url"
	"regexp"
	"strings"
)

// WildcardOrigin is the origin of anything that is not scheme://host.
const WildcardOrigin = "*"

var (
	originPattern   = regexp.MustCompile(`^(\w+:)//([^/]+)(/.*)?$`)
	protocolPattern = regexp.MustCompile(`^[a-zA-Z]*://`)
	httpPattern     = regexp.MustCompile(`^https?://`)
	hostLikePattern = regexp.MustCompile(`^(?:https?://)?[\w.-]+(?:\.[\w.-]+)+[\w\-._~:/?#\[\]@!&',;=.+]+$`)
)

// OriginOf returns "scheme://host[:port]" for rawURL, or "*" when the URL
// has no authority component. Query and fragment stay attached to the host
// part when there is no path, matching how pages report window.origin for
// such URLs closely enough for session keying.
func OriginOf(rawURL string) string {
	if rawURL == "" {
		return WildcardOrigin
	}
	m := originPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return WildcardOrigin
	}
	return m[1] + "//" + m[2]
}

// ClearURL is the address-bar form: the origin without its scheme, or the
// URL itself when it has no origin.
func ClearURL(rawURL string) string {
	o := OriginOf(rawURL)
	if o == WildcardOrigin {
		return rawURL
	}
	return protocolPattern.ReplaceAllString(o, "")
}

// IsInternal reports about: and blob: URLs, which never leave the page.
func IsInternal(rawURL string) bool {
	return strings.HasPrefix(rawURL, "about:") || strings.HasPrefix(rawURL, "blob:")
}

// IsDeepLink reports URLs that are not plain http(s) navigation.
func IsDeepLink(rawURL string) bool {
	return !httpPattern.MatchString(rawURL)
}

// DynamicLinkTarget returns the embedded "link" query parameter when
// rawURL is on one of hosts and carries one.
func DynamicLinkTarget(rawURL string, hosts []string) (string, bool) {
	if len(hosts) == 0 {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	q := u.Query()
	if !q.Has("link") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		if strings.EqualFold(h, host) {
			return q.Get("link"), true
		}
	}
	return "", false
}

// PrefixURLWithProtocol prepends defaultProtocol when input has none.
func PrefixURLWithProtocol(input, defaultProtocol string) string {
	if defaultProtocol == "" {
		defaultProtocol = "https://"
	}
	if protocolPattern.MatchString(input) {
		return input
	}
	return defaultProtocol + input
}

// SearchEngine selects where address-bar keywords are sent.
type SearchEngine string

const (
	Google     SearchEngine = "Google"
	DuckDuckGo SearchEngine = "DuckDuckGo"
)

// NormalizeInput turns address-bar input into a URL: hosts and URLs get a
// protocol, anything else becomes a search. localhost is always a URL.
func NormalizeInput(input string, engine SearchEngine) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return "about:blank"
	}

	isURL := false
	if u, err := url.ParseRequestURI(input); err == nil && u.Scheme != "" && u.Host != "" {
		isURL = true
	}
	if !isURL && !hostLikePattern.MatchString(input) &&
		!strings.HasPrefix(input, "http://localhost") && !strings.HasPrefix(input, "localhost") {
		q := url.QueryEscape(input)
		if engine == DuckDuckGo {
			return "https://duckduckgo.com/?q=" + q
		}
		return "https://www.google.com/search?q=" + q
	}
	return PrefixURLWithProtocol(input, "https://")
}
