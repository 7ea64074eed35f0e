package bugs

import (
	"regexp"
	"strings"

	"github.com/ii/api-test-harness/internal/types"
)

const (
	AssertionError  = "AssertionError"
	TimeoutError    = "TimeoutError"
	NetworkError    = "NetworkError"
	SelectorError   = "SelectorError"
	HTTPStatusError = "HTTPStatusError"
	UnknownError    = "Unknown"
)

// errorTypes is checked in order. Timeout and network failures come
// before the assertion heuristics since their messages often quote an
// expectation.
var errorTypes = []struct {
	name     string
	keywords []string
}{
	{TimeoutError, []string{"timeouterror", "timeout", "timed out"}},
	{NetworkError, []string{"networkerror", "econnrefused", "econnreset", "enotfound", "socket hang up", "network"}},
	{AssertionError, []string{"assertionerror", "assert", "expected"}},
	{SelectorError, []string{"selectorerror", "selector", "element not found"}},
	{HTTPStatusError, []string{"httpstatuserror", "status code", "request failed with status"}},
}

var criticalScenarioWords = []string{"payment", "login", "authentication", "critical"}

var (
	expectedReceivedRE = regexp.MustCompile(`(?is)expected:?\s*(\d+).*?received:?\s*(\d+)`)
	statusCodeRE       = regexp.MustCompile(`\b\d{3}\b`)
	serverErrorRE      = regexp.MustCompile(`\b5\d{2}\b`)
	clientErrorRE      = regexp.MustCompile(`\b4\d{2}\b`)
)

// ErrorType classifies an error message by the error name it carries,
// then by the first matching keyword group.
func ErrorType(msg string) string {
	lower := strings.ToLower(msg)
	// an explicit error name wins over any keyword
	for _, et := range errorTypes {
		if strings.Contains(lower, et.keywords[0]) {
			return et.name
		}
	}
	for _, et := range errorTypes {
		for _, kw := range et.keywords {
			if strings.Contains(lower, kw) {
				return et.name
			}
		}
	}
	return UnknownError
}

// ErrorCode returns the received value of an Expected/Received pair, or
// the first three-digit number of msg.
func ErrorCode(msg string) string {
	if m := expectedReceivedRE.FindStringSubmatch(msg); m != nil {
		return m[2]
	}
	return statusCodeRE.FindString(msg)
}

// Severity applies the rules in order; the first match wins.
func Severity(errType, scenario, msg string) types.Severity {
	if errType == TimeoutError || errType == NetworkError {
		return types.SeverityCritical
	}
	name := strings.ToLower(scenario)
	for _, w := range criticalScenarioWords {
		if strings.Contains(name, w) {
			return types.SeverityHigh
		}
	}
	if serverErrorRE.MatchString(msg) {
		return types.SeverityHigh
	}
	if errType == AssertionError || clientErrorRE.MatchString(msg) {
		return types.SeverityMedium
	}
	return types.SeverityLow
}

func Priority(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "P1"
	case types.SeverityHigh:
		return "P2"
	case types.SeverityMedium:
		return "P3"
	default:
		return "P4"
	}
}

// BugType maps an error type to the kind of defect it usually is.
func BugType(errType string) string {
	switch errType {
	case TimeoutError:
		return "performance"
	case NetworkError:
		return "infrastructure"
	case HTTPStatusError:
		return "api"
	case SelectorError:
		return "ui"
	default:
		return "functional"
	}
}
