package types

// Cucumber JSON report, as written by cucumber-js `--format json:<file>`
// and godog's `cucumber` formatter.

type CukeComment struct {
	Value string `json:"value"`
	Line  int    `json:"line"`
}

type CukeDocstring struct {
	Value       string `json:"value"`
	ContentType string `json:"content_type"`
	Line        int    `json:"line"`
}

type CukeTag struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

type CukeResult struct {
	Status   string `json:"status"`
	Error    string `json:"error_message,omitempty"`
	Duration *int64 `json:"duration,omitempty"`
}

type CukeMatch struct {
	Location string `json:"location"`
}

type CukeStep struct {
	Keyword   string              `json:"keyword"`
	Name      string              `json:"name"`
	Line      int                 `json:"line"`
	Hidden    bool                `json:"hidden,omitempty"`
	Docstring *CukeDocstring      `json:"doc_string,omitempty"`
	Match     CukeMatch           `json:"match"`
	Result    CukeResult          `json:"result"`
	DataTable []*CukeDataTableRow `json:"rows,omitempty"`
}

type CukeDataTableRow struct {
	Cells []string `json:"cells"`
}

type CukeElement struct {
	ID          string     `json:"id"`
	Keyword     string     `json:"keyword"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Line        int        `json:"line"`
	Type        string     `json:"type"`
	Tags        []CukeTag  `json:"tags,omitempty"`
	Steps       []CukeStep `json:"steps,omitempty"`
}

// CukeFeatureJSON ...
type CukeFeatureJSON struct {
	URI         string        `json:"uri"`
	ID          string        `json:"id"`
	Keyword     string        `json:"keyword"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Line        int           `json:"line"`
	Comments    []CukeComment `json:"comments,omitempty"`
	Tags        []CukeTag     `json:"tags,omitempty"`
	Elements    []CukeElement `json:"elements,omitempty"`
}

// Results is a rollup of scenario outcomes. It is the shape shared by
// executions, test sets and test plans.
type Results struct {
	Total   int   `json:"total"`
	Passed  int   `json:"passed"`
	Failed  int   `json:"failed"`
	Skipped int   `json:"skipped"`
	TimeMs  int64 `json:"timeMs"`
}

// Add returns the sum of both rollups.
func (r Results) Add(o Results) Results {
	return Results{
		Total:   r.Total + o.Total,
		Passed:  r.Passed + o.Passed,
		Failed:  r.Failed + o.Failed,
		Skipped: r.Skipped + o.Skipped,
		TimeMs:  r.TimeMs + o.TimeMs,
	}
}

// Status collapses a rollup to a single suite outcome. Failures dominate.
func (r Results) Status() SuiteStatus {
	switch {
	case r.Failed > 0:
		return SuiteFailed
	case r.Passed > 0:
		return SuitePassed
	default:
		return SuiteSkipped
	}
}
