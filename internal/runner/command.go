package runner

import (
	"regexp"
	"strconv"
	"strings"
)

// Invocation is a fully resolved runner command line.
type Invocation struct {
	Base       []string
	Targets    []string
	ReportPath string
	Tags       []string
	Scenarios  []string
	Retries    int
	Parallel   bool
	Workers    int
}

// Args renders the command line. Each tag becomes its own --tags clause,
// which the runner ANDs together.
func (inv Invocation) Args() []string {
	args := append([]string(nil), inv.Base...)
	args = append(args, inv.Targets...)
	if inv.ReportPath != "" {
		args = append(args, "--format", "json:"+inv.ReportPath)
	}
	for _, tag := range inv.Tags {
		if tag = normalizeTag(tag); tag != "" {
			args = append(args, "--tags", tag)
		}
	}
	if pattern := namePattern(inv.Scenarios); pattern != "" {
		args = append(args, "--name", pattern)
	}
	args = append(args, "--retry", strconv.Itoa(inv.Retries))
	if inv.Parallel && inv.Workers > 1 {
		args = append(args, "--parallel", strconv.Itoa(inv.Workers))
	}
	return args
}

// normalizeTag prefixes bare tag names with @. Tag expressions are
// passed through untouched.
func normalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || isTagExpression(tag) || strings.HasPrefix(tag, "@") {
		return tag
	}
	return "@" + tag
}

func isTagExpression(tag string) bool {
	return strings.ContainsAny(tag, " ()")
}

// namePattern matches any of the given scenario names. One name is
// matched as a substring, several are anchored.
func namePattern(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return regexp.QuoteMeta(names[0])
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return "^(?:" + strings.Join(quoted, "|") + ")$"
}

// Environment returns base with the execution's filter criteria appended
// for step code to read.
func Environment(base []string, ec *ExecutionContext, timeoutMs int64, retries int) []string {
	req := ec.Request
	env := append([]string(nil), base...)
	return append(env,
		"EXECUTION_ID="+ec.ExecutionID,
		"PROJECT_ID="+ec.Project.ID,
		"BASE_URL="+ec.Project.BaseURL,
		"ENTITY="+req.Entity,
		"METHOD="+req.Filters.Method,
		"TEST_TYPE="+req.Filters.TestType,
		"TAGS="+strings.Join(req.Filters.Tags, ","),
		"SCENARIO="+req.Filters.SpecificScenario,
		"TEST_ENV="+req.Environment,
		"TIMEOUT="+strconv.FormatInt(timeoutMs, 10),
		"RETRIES="+strconv.Itoa(retries),
		"WORKERS="+strconv.Itoa(req.Workers),
		"PARALLEL="+strconv.FormatBool(req.Parallel),
		"REPORT_PATH="+ec.ReportPath,
	)
}
