package runner

import (
	"regexp"
	"strings"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

var templateVarRe = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// TemplateVars returns the distinct variable names referenced by body,
// in order of first appearance.
func TemplateVars(body string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range templateVarRe.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// RenderPrompt substitutes every {{name}} in body with input[name]. A
// variable with no binding in input is a Validation error; the case is
// recorded as skipped rather than sent to a provider with a hole in it.
func RenderPrompt(body string, input map[string]string) (string, error) {
	var missing []string
	rendered := templateVarRe.ReplaceAllStringFunc(body, func(match string) string {
		name := templateVarRe.FindStringSubmatch(match)[1]
		value, ok := input[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", edisonerr.New(edisonerr.Validation, "runner",
			"unbound template variables: "+strings.Join(missing, ", "))
	}
	return rendered, nil
}
