// Package conflict computes file-level contention between in-flight tasks
// and enforces static ownership zones.
package conflict

import (
	"regexp"
	"strings"

	"github.com/coordinator-core/coordinator/internal/store"
)

// ZoneManager answers ownership questions against an ordered list of
// glob-bounded zones. Order matters for GetFileOwner, which reports only
// the first matching zone's owner, so more specific patterns must be
// listed first. CanModify is stricter: it scans every matching zone, not
// just the first, since a later, more specific zone (e.g. a readonly
// carve-out inside a broader owned tree) must still be able to veto.
type ZoneManager struct {
	zones    []store.Zone
	patterns []*regexp.Regexp
}

// NewZoneManager compiles zones' glob patterns in the order given.
func NewZoneManager(zones []store.Zone) *ZoneManager {
	m := &ZoneManager{zones: zones, patterns: make([]*regexp.Regexp, len(zones))}
	for i, z := range zones {
		m.patterns[i] = globToRegex(z.Pattern)
	}
	return m
}

// globToRegex translates the zone glob dialect: "**" matches any path
// segments, "*" matches any run of non-slash characters, "?" matches a
// single character. The translation is intentionally literal — it must
// match exactly for zone tests to pass.
func globToRegex(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], "**"):
			sb.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			sb.WriteString("[^/]*")
			i++
		case pattern[i] == '?':
			sb.WriteString(".")
			i++
		default:
			sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}

func (m *ZoneManager) matchZone(path string) (*store.Zone, bool) {
	for i, re := range m.patterns {
		if re.MatchString(path) {
			return &m.zones[i], true
		}
	}
	return nil, false
}

// matchingZones returns every zone whose pattern matches path, in list
// order.
func (m *ZoneManager) matchingZones(path string) []*store.Zone {
	var matched []*store.Zone
	for i, re := range m.patterns {
		if re.MatchString(path) {
			matched = append(matched, &m.zones[i])
		}
	}
	return matched
}

// GetFileOwner returns the owner of the first zone matching path, and
// false if no zone matches.
func (m *ZoneManager) GetFileOwner(path string) (string, bool) {
	zone, ok := m.matchZone(path)
	if !ok {
		return "", false
	}
	return zone.Owner, true
}

// CanModify reports whether agent may modify path: denied if ANY matching
// zone is readonly, or if ANY matching zone has an owner other than
// agent. Paths with no matching zone are unrestricted. Unlike
// GetFileOwner, this does not stop at the first match — a narrower,
// later-listed zone (e.g. a readonly carve-out inside a broader owned
// tree) must still be able to veto a modification the broader zone would
// otherwise allow.
func (m *ZoneManager) CanModify(path, agent string) bool {
	zones := m.matchingZones(path)
	if len(zones) == 0 {
		return true
	}
	for _, zone := range zones {
		if zone.ReadOnly {
			return false
		}
		if zone.Owner != "" && zone.Owner != agent {
			return false
		}
	}
	return true
}
