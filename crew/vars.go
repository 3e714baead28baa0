package crew

import (
	"regexp"

	"github.com/crewline/crewline/types"
)

// placeholderPattern matches {{name}} with optional inner whitespace.
// Names follow identifier rules extended with dots and dashes.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.-]*)\s*\}\}`)

// Substitute replaces every {{name}} placeholder in template with its
// binding from inputs. A placeholder without a binding is fatal: the
// returned error carries the first unbound name and the offending task,
// and the caller must not start the run.
func Substitute(template, taskID string, inputs map[string]string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := inputs[name]; ok {
			return v
		}
		if missing == "" {
			missing = name
		}
		return m
	})
	if missing != "" {
		return "", types.NewMissingVariableError(missing, taskID)
	}
	return out, nil
}

// ExtractVariables lists the distinct placeholder names in template,
// in order of first appearance.
func ExtractVariables(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
