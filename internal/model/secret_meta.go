package model

import (
	"regexp"
	"strings"
)

// SecretMeta is the small structured metadata record attached to a
// secret (spec.md §3). Empty string means "no value"; JSON (de)serializes
// it with omitempty so null fields are genuinely absent on the wire.
type SecretMeta struct {
	App      string `json:"app,omitempty"`
	Database string `json:"database,omitempty"`
	Login    string `json:"login,omitempty"`
	Server   string `json:"server,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Merge shallow-merges partial into m, per update_meta (spec.md §4.4):
// any non-empty field in partial overwrites the corresponding field in m.
func (m SecretMeta) Merge(partial SecretMeta) SecretMeta {
	merged := m
	if partial.App != "" {
		merged.App = partial.App
	}
	if partial.Database != "" {
		merged.Database = partial.Database
	}
	if partial.Login != "" {
		merged.Login = partial.Login
	}
	if partial.Server != "" {
		merged.Server = partial.Server
	}
	if partial.URL != "" {
		merged.URL = partial.URL
	}
	return merged
}

// Match reports whether m matches pattern, per spec.md §4.4/§8: per-field
// shell-glob matching, case-insensitive, dot matches any character; a
// null (empty) field in pattern matches any value in m.
func (m SecretMeta) Match(pattern SecretMeta) bool {
	return matchGlobField(pattern.App, m.App) &&
		matchGlobField(pattern.Database, m.Database) &&
		matchGlobField(pattern.Login, m.Login) &&
		matchGlobField(pattern.Server, m.Server) &&
		matchGlobField(pattern.URL, m.URL)
}

func matchGlobField(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	re, err := globToRegexp(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

// globToRegexp translates a shell glob (`*` any run, `?` any one
// character, `.` any one character per spec.md's "dot matches") into a
// case-insensitive anchored regexp.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?', '.':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
