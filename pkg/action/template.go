package action

import (
	"strings"
)

// Expand replaces every %(name) in the template with the binding of name in
// vars. Undefined names expand to the empty string. Expansion is a single
// pass, so a binding containing %(...) is not re-expanded.
func Expand(template string, vars map[string]string) string {
	var out strings.Builder
	i := 0
	for i < len(template) {
		start := strings.Index(template[i:], "%(")
		if start < 0 {
			out.WriteString(template[i:])
			break
		}
		start += i
		end := strings.IndexByte(template[start+2:], ')')
		if end < 0 {
			out.WriteString(template[i:])
			break
		}
		out.WriteString(template[i:start])
		name := template[start+2 : start+2+end]
		out.WriteString(vars[name])
		i = start + 2 + end + 1
	}
	return out.String()
}

// ExpandAll template-expands each argument in place order.
func ExpandAll(args []string, vars map[string]string) []string {
	expanded := make([]string, len(args))
	for i, arg := range args {
		expanded[i] = Expand(arg, vars)
	}
	return expanded
}

// Merge layers variable maps left to right, later layers winning. The
// result is a fresh map; inputs are never mutated.
func Merge(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for key, value := range layer {
			merged[key] = value
		}
	}
	return merged
}
