// Package featureflags evaluates runtime feature toggles from configuration.
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// ActivityFeed gates the live activity WebSocket and event publishing.
const ActivityFeed = "activity_feed"

// Defaults apply when FEATURE_FLAGS does not mention a flag.
var Defaults = map[string]string{
	ActivityFeed: "on",
}

// rule is a parsed flag value. percent is the share of users that see the
// feature: 100 for on, 0 for off or anything unrecognized.
type rule struct {
	raw     string
	percent int
}

func parseRule(value string) rule {
	r := rule{raw: value}
	switch value {
	case "on", "true", "1", "yes":
		r.percent = 100
	case "off", "false", "0", "no":
	default:
		if pct, err := strconv.Atoi(strings.TrimSuffix(value, "%")); err == nil && strings.HasSuffix(value, "%") {
			r.percent = min(max(pct, 0), 100)
		}
	}
	return r
}

// Manager evaluates feature flags defined in a key=value list such as
// "activity_feed=on,featured_row=25%". Percentages roll a feature out to a
// stable subset of users.
type Manager struct {
	rules map[string]rule
}

// NewManager layers the comma separated flags in raw over Defaults.
// Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	m := &Manager{rules: make(map[string]rule, len(Defaults))}
	for k, v := range Defaults {
		m.rules[k] = parseRule(v)
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		m.rules[key] = parseRule(value)
	}
	return m
}

// Enabled reports whether name is on for userID. Partial rollouts need a
// user; anonymous callers only see fully enabled flags.
func (m *Manager) Enabled(name string, userID string) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.percent <= 0:
		return false
	case r.percent >= 100:
		return true
	case userID == "":
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// Names returns the known flag names in order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.rules))
	for name := range m.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Raw returns the configured value of every flag.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for k, r := range m.rules {
		out[k] = r.raw
	}
	return out
}

// Snapshot evaluates every flag for one user.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := make(map[string]bool, len(m.rules))
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}
