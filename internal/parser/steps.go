package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ii/api-test-harness/internal/types"
)

var (
	stepHeaderRE  = regexp.MustCompile("^(Given|When|Then|And|But)\\((['\"`])")
	placeholderRE = regexp.MustCompile(`\{([A-Za-z0-9_]*)\}`)
)

var cucumberParamTypes = map[string]string{
	"int":    "int",
	"float":  "float",
	"word":   "string",
	"string": "string",
}

// StepDefinition is one Given/When/Then registration found in a step file.
type StepDefinition struct {
	Keyword        string
	Pattern        string
	Line           int
	Header         string
	Implementation string
	Parameters     []types.StepParameter
}

// ParseSteps extracts step registrations from a step-definition file.
// Each block runs from its header to the first `});` line at brace depth
// zero. A block that never closes is dropped and reported through the
// returned *types.ParseError; the remaining blocks are still returned.
func ParseSteps(path, content string) ([]StepDefinition, error) {
	lines := strings.Split(content, "\n")
	var (
		defs     []StepDefinition
		firstErr error
	)
	for i := 0; i < len(lines); i++ {
		header := strings.TrimSpace(strings.TrimSuffix(lines[i], "\r"))
		m := stepHeaderRE.FindStringSubmatch(header)
		if m == nil {
			continue
		}
		pattern, ok := quoted(header[len(m[0]):], m[2][0])
		if !ok || pattern == "" {
			if firstErr == nil {
				firstErr = &types.ParseError{Path: path, Line: i + 1, Err: errors.New("unterminated step pattern")}
			}
			continue
		}
		end, ok := blockEnd(lines, i)
		if !ok {
			if firstErr == nil {
				firstErr = &types.ParseError{Path: path, Line: i + 1, Err: fmt.Errorf("step %q has no closing `});`", pattern)}
			}
			continue
		}
		defs = append(defs, StepDefinition{
			Keyword:        m[1],
			Pattern:        pattern,
			Line:           i,
			Header:         header,
			Implementation: strings.Join(lines[i:end+1], "\n"),
			Parameters:     StepParameters(pattern),
		})
		i = end
	}
	return defs, firstErr
}

// quoted returns the text up to the first unescaped q.
func quoted(s string, q byte) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case q:
			return b.String(), true
		default:
			b.WriteByte(s[i])
		}
	}
	return "", false
}

func blockEnd(lines []string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(lines); i++ {
		line := lines[i]
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth <= 0 && strings.Contains(line, "});") {
			return i, true
		}
	}
	return 0, false
}

// StepParameters lists the {placeholder}s of a step phrase in order.
func StepParameters(pattern string) []types.StepParameter {
	var params []types.StepParameter
	for _, m := range placeholderRE.FindAllStringSubmatch(pattern, -1) {
		typ, ok := cucumberParamTypes[m[1]]
		if !ok {
			typ = "string"
		}
		params = append(params, types.StepParameter{Name: m[1], Type: typ})
	}
	return params
}

// FormatStepID builds ST-{SECTION}-{ENTITY}-{NN}.
func FormatStepID(section, entity string, n int) string {
	return fmt.Sprintf("ST-%s-%s-%02d", strings.ToUpper(section), strings.ToUpper(entity), n)
}
