package parser

import "strings"

type methodRule struct {
	keywords []string
	method   string
}

// checked in order; the first keyword found wins
var methodRules = []methodRule{
	{[]string{"create", "post"}, "POST"},
	{[]string{"get", "read"}, "GET"},
	{[]string{"update", "patch"}, "PATCH"},
	{[]string{"replace", "put"}, "PUT"},
	{[]string{"delete", "remove"}, "DELETE"},
}

var negativeKeywords = []string{"invalid", "missing", "error"}

// MethodFromScenario infers the HTTP verb a scenario exercises from its
// name, falling back to the first method declared for the entity.
func MethodFromScenario(name string, declared []string) string {
	lower := strings.ToLower(name)
	for _, rule := range methodRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.method
			}
		}
	}
	if len(declared) > 0 {
		return strings.ToUpper(declared[0])
	}
	return ""
}

// TestTypeFromScenario classifies a scenario as negative when its name
// mentions invalid, missing or error input. Everything else, regression
// scenarios included, is positive.
func TestTypeFromScenario(name string) string {
	lower := strings.ToLower(name)
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			return "negative"
		}
	}
	return "positive"
}
