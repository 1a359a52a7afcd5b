package cloak

import (
	"net/url"
	"strings"
)

// IsSafeRedirect reports whether target stays on host. Relative paths
// must start with a single slash; absolute URLs must be http(s) and
// point at host.
func IsSafeRedirect(target, host string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}

	if strings.ContainsAny(target, "\\") {
		return false
	}

	for _, r := range target {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	u, err := url.Parse(target)
	if err != nil {
		return false
	}

	if u.Scheme == "" && u.Host == "" {
		return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && u.User == nil
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.User != nil || host == "" {
		return false
	}

	return strings.EqualFold(u.Host, host)
}

func pickRedirect(host, fallback string, candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if IsSafeRedirect(c, host) {
			return c
		}
		return fallback
	}
	return fallback
}
