package config

import "strings"

// ServiceSet is the allowlist of systemd units the daemon may manage.
// Membership accepts either the bare name or the ".service" spelling,
// and the configured order is preserved for sequenced restarts.
type ServiceSet struct {
	order   []string
	members map[string]struct{}
}

// ParseServiceSet splits a comma-separated unit list. Each entry is
// stored both with and without the ".service" suffix so lookups accept
// either spelling.
func ParseServiceSet(raw string) ServiceSet {
	set := ServiceSet{members: make(map[string]struct{})}
	for _, entry := range strings.Split(raw, ",") {
		name := strings.TrimSpace(entry)
		if name == "" {
			continue
		}
		bare := strings.TrimSuffix(name, ".service")
		if _, seen := set.members[bare]; !seen {
			set.order = append(set.order, bare)
		}
		set.members[bare] = struct{}{}
		set.members[bare+".service"] = struct{}{}
	}
	return set
}

// Allowed reports whether the unit is in the allowlist.
func (s ServiceSet) Allowed(name string) bool {
	if name == "" {
		return false
	}
	_, ok := s.members[name]
	return ok
}

// Names returns the allowlist in configured order, without the
// ".service" suffix.
func (s ServiceSet) Names() []string {
	return append([]string(nil), s.order...)
}
