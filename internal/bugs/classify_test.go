package bugs

import (
	"testing"

	"github.com/ii/api-test-harness/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestErrorType(t *testing.T) {
	cases := map[string]string{
		"AssertionError: expected 1 to equal 2":               AssertionError,
		"Expected: 200\nReceived: 500":                        AssertionError,
		"function timed out, ensure the promise resolves":     TimeoutError,
		"connect ECONNREFUSED 127.0.0.1:8080":                 NetworkError,
		"SelectorError: #submit":                              SelectorError,
		"Request failed with status code 404":                 HTTPStatusError,
		"TypeError: cannot read properties of undefined (id)": UnknownError,
		"": UnknownError,

		"TimeoutError: expected response within 5000ms":    TimeoutError,
		"expected 200 but socket hang up":                  NetworkError,
		"AssertionError: expected request not to time out": AssertionError,
	}
	for msg, want := range cases {
		assert.Equal(t, want, ErrorType(msg), msg)
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "500", ErrorCode("Expected: 200\nReceived: 500"))
	assert.Equal(t, "404", ErrorCode("expected 201 but received 404"))
	assert.Equal(t, "503", ErrorCode("upstream answered 503 after 1200ms"))
	assert.Equal(t, "", ErrorCode("no code here 12 or 1234"))
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		name, errType, scenario, msg string
		want                         types.Severity
	}{
		{"timeout beats everything", TimeoutError, "Payment with 500", "timed out 500", types.SeverityCritical},
		{"network", NetworkError, "Get product", "ECONNRESET", types.SeverityCritical},
		{"business keyword", AssertionError, "User Login works", "Expected: 200 Received: 400", types.SeverityHigh},
		{"server error", AssertionError, "Delete product", "Expected: 200\nReceived: 500", types.SeverityHigh},
		{"assertion", AssertionError, "Delete product", "expected true", types.SeverityMedium},
		{"client error", UnknownError, "Delete product", "got 404", types.SeverityMedium},
		{"fallback", UnknownError, "Delete product", "TypeError", types.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Severity(tt.errType, tt.scenario, tt.msg))
		})
	}
}

func TestTimeoutQuotingExpectationIsCritical(t *testing.T) {
	msg := "TimeoutError: expected response within 5000ms"
	assert.Equal(t, types.SeverityCritical, Severity(ErrorType(msg), "Get product", msg))
}

func TestPriorityAndType(t *testing.T) {
	assert.Equal(t, "P1", Priority(types.SeverityCritical))
	assert.Equal(t, "P2", Priority(types.SeverityHigh))
	assert.Equal(t, "P3", Priority(types.SeverityMedium))
	assert.Equal(t, "P4", Priority(types.SeverityLow))
	assert.Equal(t, "performance", BugType(TimeoutError))
	assert.Equal(t, "functional", BugType(AssertionError))
	assert.Equal(t, "api", BugType(HTTPStatusError))
}
