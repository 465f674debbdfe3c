package learning

import "strings"

// typeRule pairs a skill category with the keywords that select it.
type typeRule struct {
	category string
	keywords []string
}

// typeRules is evaluated in fixed order; the first matching rule wins. The
// order is load-bearing: a task mentioning both "security" and "test"
// classifies as security because security is checked first. Reordering shifts
// historical classifications, so append-only changes only.
var typeRules = []typeRule{
	{"css_styling", []string{"css", "style", "styling", "stylesheet", "layout", "theme", "font"}},
	{"database_admin", []string{"database", "sql", "postgres", "schema", "query", "table", "index"}},
	{"monitoring", []string{"monitor", "alert", "metric", "dashboard", "uptime", "health check"}},
	{"security", []string{"security", "vulnerability", "auth", "credential", "permission", "firewall", "certificate"}},
	{"file_operations", []string{"file", "directory", "backup", "archive", "copy", "move"}},
	{"api_integration", []string{"api", "endpoint", "integration", "webhook", "rest", "http"}},
	{"testing", []string{"test", "verify", "validation", "qa", "regression"}},
	{"consultation", []string{"question", "advice", "consult", "recommend", "explain"}},
}

// DetectTaskType classifies a mission into a skill category from its title and
// step items. Pure: identical input yields the identical category on every
// call. Single-label: the first matching category wins.
func DetectTaskType(title string, items []string) string {
	text := strings.ToLower(title)
	if len(items) > 0 {
		text += " " + strings.ToLower(strings.Join(items, " "))
	}
	for _, rule := range typeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	return "general"
}
