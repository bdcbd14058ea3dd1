// Package classifier performs heuristic malicious-URL detection. All checks
// are local (denylist, patterns, structure); nothing on the creation hot path
// calls out to a reputation service.
package classifier

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// maxURLLength is the point past which a URL is treated as obfuscation.
const maxURLLength = 500

// maxHostDots bounds subdomain nesting before a host looks abusive.
const maxHostDots = 3

// knownBadHosts is the exact-match denylist of hosts and host/path prefixes.
var knownBadHosts = map[string]struct{}{
	"bit.ly/malware":     {},
	"tinyurl.com/virus":  {},
	"malware.com":        {},
	"phishing-site.com":  {},
	"virus-download.net": {},
}

// suspiciousPatterns match executable payloads, disguised downloads and
// malware keywords anywhere in the URL.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.exe$`),
	regexp.MustCompile(`\.scr$`),
	regexp.MustCompile(`\.bat$`),
	regexp.MustCompile(`\.com\.exe$`),
	regexp.MustCompile(`phishing`),
	regexp.MustCompile(`malware`),
	regexp.MustCompile(`virus`),
	regexp.MustCompile(`trojan`),
	regexp.MustCompile(`download.*\.exe`),
	regexp.MustCompile(`free.*download.*\.exe`),
}

// Result is the classification outcome for a destination URL.
type Result struct {
	Malicious bool
	Reason    string
}

// Classify checks a destination URL against the denylist, the suspicious
// pattern list and structural heuristics, short-circuiting on the first hit.
// Input that cannot be parsed is classified malicious (fail closed).
func Classify(rawURL string) Result {
	lowered := strings.ToLower(rawURL)

	parsed, err := url.Parse(lowered)
	if err != nil || parsed.Host == "" {
		return Result{Malicious: true, Reason: "unparseable URL"}
	}
	host := parsed.Host

	if _, ok := knownBadHosts[host]; ok {
		return Result{Malicious: true, Reason: fmt.Sprintf("domain %q is in malicious domains list", host)}
	}

	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(lowered) {
			return Result{Malicious: true, Reason: fmt.Sprintf("URL contains suspicious pattern: %s", pattern)}
		}
	}

	if reason := suspiciousStructure(parsed, lowered); reason != "" {
		return Result{Malicious: true, Reason: reason}
	}

	return Result{}
}

// suspiciousStructure checks for obfuscation: deep subdomain nesting, very
// long URLs and bare IP hosts. Returns an empty string when nothing matched.
func suspiciousStructure(parsed *url.URL, full string) string {
	if strings.Count(parsed.Host, ".") > maxHostDots {
		return "URL has suspicious structure: too many subdomains"
	}
	if len(full) > maxURLLength {
		return "URL has suspicious structure: excessive length"
	}
	if ip := net.ParseIP(parsed.Hostname()); ip != nil && ip.To4() != nil {
		return "URL has suspicious structure: IP address host"
	}
	return ""
}
