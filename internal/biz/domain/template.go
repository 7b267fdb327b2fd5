package domain

import (
	"strconv"
	"strings"
)

// Placeholder names recognised in lifecycle templates
const (
	VarFirst    = "first"
	VarLast     = "last"
	VarFullName = "fullname"
	VarUsername = "username"
	VarMention  = "mention"
	VarID       = "id"
	VarCount    = "count"
	VarChatName = "chatname"
	VarRules    = "rules"
)

var placeholders = []string{
	VarFirst, VarLast, VarFullName, VarUsername, VarMention,
	VarID, VarCount, VarChatName, VarRules,
}

// Placeholders returns the recognised placeholder names
func Placeholders() []string {
	return append([]string(nil), placeholders...)
}

// Bindings maps placeholder names to their values for one event
type Bindings map[string]string

// GroupMeta is the group information needed to render a template
type GroupMeta struct {
	Name        string
	MemberCount int
	RulesLink   string
}

// NewBindings resolves every placeholder for a user in a group
func NewBindings(u User, g GroupMeta) Bindings {
	username := u.Username
	if username == "" {
		// Feishu has no usernames
		username = u.FullName()
	}
	return Bindings{
		VarFirst:    u.FirstName,
		VarLast:     u.LastName,
		VarFullName: u.FullName(),
		VarUsername: username,
		VarMention:  u.FormatMention(),
		VarID:       u.ID,
		VarCount:    strconv.Itoa(g.MemberCount),
		VarChatName: g.Name,
		VarRules:    g.RulesLink,
	}
}

// Render substitutes recognised {name} tokens in a single left-to-right pass.
// Substituted values are never scanned again and unknown tokens are kept as is.
func Render(tpl string, b Bindings) string {
	if tpl == "" {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(tpl))

	rest := tpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:open])
		rest = rest[open:]

		end := strings.IndexByte(rest, '}')
		if end < 0 {
			sb.WriteString(rest)
			break
		}

		name := rest[1:end]
		// "{{first}" must still match the inner token
		if strings.IndexByte(name, '{') >= 0 {
			sb.WriteByte('{')
			rest = rest[1:]
			continue
		}

		if val, ok := lookup(b, name); ok {
			sb.WriteString(val)
		} else {
			sb.WriteString(rest[:end+1])
		}
		rest = rest[end+1:]
	}
	return sb.String()
}

// UnknownPlaceholders lists {name} tokens that Render would leave untouched
func UnknownPlaceholders(tpl string) []string {
	var unknown []string
	seen := make(map[string]bool)

	rest := tpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return unknown
		}
		rest = rest[open:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return unknown
		}
		name := rest[1:end]
		if strings.IndexByte(name, '{') >= 0 {
			rest = rest[1:]
			continue
		}
		if !isPlaceholder(name) && !seen[name] {
			seen[name] = true
			unknown = append(unknown, "{"+name+"}")
		}
		rest = rest[end+1:]
	}
}

func lookup(b Bindings, name string) (string, bool) {
	if !isPlaceholder(name) {
		return "", false
	}
	return b[name], true
}

func isPlaceholder(name string) bool {
	for _, p := range placeholders {
		if p == name {
			return true
		}
	}
	return false
}
