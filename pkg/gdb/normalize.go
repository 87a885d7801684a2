package gdb

import (
	"regexp"
	"strings"
)

var funcCallPattern = regexp.MustCompile(`(.*)\(`)

// NormalizeID canonicalizes a vertex id before it is written to the graph:
// lowercase, spaces to underscores, slashes removed, "%" spelled out, and
// functional-call suffixes like "foo(bar)" reduced to "foo". Quoted empty
// strings normalize to "".
func NormalizeID(id string) string {
	id = strings.ToLower(id)
	id = strings.ReplaceAll(id, " ", "_")
	id = strings.ReplaceAll(id, "/", "")
	id = strings.ReplaceAll(id, "%", "percent")

	if m := funcCallPattern.FindStringSubmatch(id); len(m) > 1 {
		id = m[1]
	}
	if id == "''" || id == `""` {
		return ""
	}
	id = strings.ReplaceAll(id, "(", "")
	id = strings.ReplaceAll(id, ")", "")

	return id
}
