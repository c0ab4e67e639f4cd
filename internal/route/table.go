// Package route holds the ordered prefix table that decides which upstream,
// if any, receives a request.
package route

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"edge-forwarder/internal/config"
)

// ErrNoRoutes is returned when a table is built from an empty rule list.
var ErrNoRoutes = errors.New("route: at least one rule is required")

// Rule maps a literal path prefix to an upstream origin.
type Rule struct {
	Prefix string
	Origin *url.URL
}

// Target joins the origin with an escaped path and raw query without
// re-encoding either.
func (r Rule) Target(path, rawQuery string, forceQuery bool) string {
	var b strings.Builder
	b.WriteString(r.Origin.Scheme)
	b.WriteString("://")
	b.WriteString(r.Origin.Host)
	b.WriteString(path)
	if rawQuery != "" || forceQuery {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	return b.String()
}

// ResolveDotSegments removes "." and ".." segments from an escaped path the
// way RFC 3986 section 5.2.4 does, treating "%2e" as a dot. Every other
// byte, escapes included, is kept as it is.
func ResolveDotSegments(path string) string {
	if !strings.Contains(path, ".") && !strings.Contains(strings.ToLower(path), "%2e") {
		return path
	}

	segs := strings.Split(path, "/")
	out := make([]string, 0, len(segs))
	// A leading "/" yields an empty first segment.
	rooted := segs[0] == ""
	if rooted {
		segs = segs[1:]
	}
	for i, seg := range segs {
		last := i == len(segs)-1
		switch dotSegment(seg) {
		case 1:
			if last {
				out = append(out, "")
			}
		case 2:
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			if last {
				out = append(out, "")
			}
		default:
			out = append(out, seg)
		}
	}

	resolved := strings.Join(out, "/")
	if rooted {
		return "/" + resolved
	}
	return resolved
}

// dotSegment reports 1 for a "." segment, 2 for "..", and 0 otherwise.
func dotSegment(seg string) int {
	if len(seg) == 0 || len(seg) > 6 {
		return 0
	}
	switch strings.ReplaceAll(strings.ToLower(seg), "%2e", ".") {
	case ".":
		return 1
	case "..":
		return 2
	}
	return 0
}

// Table is an immutable, ordered list of rules. The first match wins.
type Table struct {
	rules []Rule
}

// New validates the configured routes and builds a Table in config order.
func New(routes []config.RouteConfig) (*Table, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	rules := make([]Rule, 0, len(routes))
	for i, rc := range routes {
		if err := rc.Validate(); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		origin, err := config.ParseOrigin(rc.UpstreamOrigin)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		rules = append(rules, Rule{Prefix: rc.Prefix, Origin: origin})
	}
	return &Table{rules: rules}, nil
}

// Match returns the first rule whose prefix starts path.
func (t *Table) Match(path string) (Rule, bool) {
	for _, r := range t.rules {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the rules in match order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Prefixes returns the configured prefixes in match order.
func (t *Table) Prefixes() []string {
	out := make([]string, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.Prefix
	}
	return out
}
