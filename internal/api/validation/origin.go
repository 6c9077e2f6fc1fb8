package validation

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:8080"}

// OriginAllowlist matches browser origins against exact entries and, for entries not starting
// with "http", regular expressions that must match the whole origin. With no entries only
// localhost is allowed.
type OriginAllowlist struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

func NewOriginAllowlist(origins []string, logger *slog.Logger) *OriginAllowlist {
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	a := &OriginAllowlist{exact: make(map[string]struct{})}
	for _, o := range origins {
		if strings.HasPrefix(o, "http") {
			a.exact[o] = struct{}{}
			continue
		}
		re, err := regexp.Compile(`^(?:` + o + `)$`)
		if err != nil {
			if logger != nil {
				logger.Warn("ignoring invalid CORS origin pattern", "pattern", o, "error", err)
			}
			continue
		}
		a.patterns = append(a.patterns, re)
	}
	return a
}

// Allows reports whether origin is a well-formed http(s) origin on the list.
func (a *OriginAllowlist) Allows(origin string) bool {
	if !IsValidOrigin(origin) {
		return false
	}
	if _, ok := a.exact[origin]; ok {
		return true
	}
	for _, re := range a.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// IsValidOrigin accepts scheme://host[:port] with an http or https scheme and nothing else.
func IsValidOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && u.User == nil && (u.Path == "" || u.Path == "/") &&
		u.RawQuery == "" && u.Fragment == "" && !u.ForceQuery
}
