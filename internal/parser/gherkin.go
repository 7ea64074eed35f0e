package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Placeholder is the literal a freshly generated feature file carries in
// place of a test case number.
const Placeholder = "Number"

var (
	markerRE   = regexp.MustCompile(`^@TC-([A-Za-z0-9_]+)-([A-Za-z0-9_]+)-(` + Placeholder + `|\d+)$`)
	scenarioRE = regexp.MustCompile(`^(Scenario Outline|Scenario Template|Scenario|Example):\s*(.*)$`)
)

// Marker is a scenario carrying a @TC-{SECTION}-{ENTITY}-{N} tag.
type Marker struct {
	Line         int
	Tag          string
	Section      string
	Entity       string
	Number       int
	Tags         []string
	Keyword      string
	ScenarioLine int
	ScenarioName string
	StepsText    string
}

// Unresolved reports whether the marker still holds the placeholder.
func (m *Marker) Unresolved() bool {
	return m.Number == 0
}

// TestCaseID returns the resolved identifier, or "" for a placeholder.
func (m *Marker) TestCaseID() string {
	if m.Unresolved() {
		return ""
	}
	return FormatTestCaseID(m.Section, m.Entity, m.Number)
}

func FormatTestCaseID(section, entity string, n int) string {
	return fmt.Sprintf("TC-%s-%s-%d", strings.ToUpper(section), strings.ToUpper(entity), n)
}

// ParseMarkerTag splits a single tag into section, entity and number.
// Number is 0 for the placeholder.
func ParseMarkerTag(tag string) (section, entity string, n int, ok bool) {
	m := markerRE.FindStringSubmatch(tag)
	if m == nil {
		return "", "", 0, false
	}
	if m[3] != Placeholder {
		n, _ = strconv.Atoi(m[3])
		if n == 0 {
			return "", "", 0, false
		}
	}
	return m[1], m[2], n, true
}

// MarkerFilter restricts which markers a scan reports.
type MarkerFilter struct {
	Section string
	Entity  string
	// Resolved selects @TC-...-{digits} markers; otherwise only
	// placeholder markers are reported.
	Resolved bool
}

func (f MarkerFilter) match(section, entity string, n int) bool {
	if f.Section != "" && !strings.EqualFold(f.Section, section) {
		return false
	}
	if f.Entity != "" && !strings.EqualFold(f.Entity, entity) {
		return false
	}
	return f.Resolved == (n != 0)
}

type scanState int

const (
	seekingTag scanState = iota
	inTagBlock
	seekingScenario
	inSteps
)

func (s scanState) String() string {
	switch s {
	case seekingTag:
		return "seeking-tag"
	case inTagBlock:
		return "in-tag-block"
	case seekingScenario:
		return "seeking-scenario"
	case inSteps:
		return "in-steps"
	}
	return "unknown"
}

type lineIter struct {
	lines []string
	pos   int
}

func newLineIter(content string) *lineIter {
	return &lineIter{lines: strings.Split(content, "\n"), pos: -1}
}

func (it *lineIter) Next() bool {
	it.pos++
	return it.pos < len(it.lines)
}

func (it *lineIter) Index() int { return it.pos }

func (it *lineIter) Text() string {
	return strings.TrimSpace(strings.TrimSuffix(it.lines[it.pos], "\r"))
}

type markerScanner struct {
	filter  MarkerFilter
	state   scanState
	tags    []string
	gap     bool
	pending *Marker
	steps   []string
	markers []Marker
}

// ScanMarkers walks a feature file once and returns every marker that
// matches the filter and is followed by a scenario, in file order.
// Markers with no scenario after them are logged and dropped.
func ScanMarkers(content string, filter MarkerFilter) []Marker {
	s := &markerScanner{filter: filter}
	it := newLineIter(content)
	for it.Next() {
		s.feed(it.Index(), it.Text())
	}
	s.finish()
	return s.markers
}

func (s *markerScanner) feed(idx int, line string) {
	switch {
	case isTagLine(line):
		s.onTags(idx, line)
	case scenarioRE.MatchString(line):
		s.onScenario(idx, line)
	case line == "":
		s.onBlank()
	default:
		s.onOther(line)
	}
}

func (s *markerScanner) onTags(idx int, line string) {
	if s.state == inSteps {
		s.flush()
	}
	if s.state == seekingTag {
		s.tags = nil
		s.state = inTagBlock
	}
	if s.state == seekingScenario && s.gap {
		// tags separated by a blank line from the pending marker belong
		// to whatever follows, not to it
		s.tags = nil
	}
	s.gap = false
	for _, tag := range splitTags(line) {
		s.tags = appendUnique(s.tags, tag)
		section, entity, n, ok := ParseMarkerTag(tag)
		if !ok && strings.HasPrefix(tag, "@TC-") {
			log.Warn().Str("marker", tag).Msgf("ignoring malformed marker on line %d", idx+1)
		}
		if !ok || !s.filter.match(section, entity, n) {
			continue
		}
		if s.pending != nil {
			log.Warn().Str("marker", s.pending.Tag).Msgf("marker on line %d superseded by %s before any scenario", s.pending.Line+1, tag)
		}
		s.pending = &Marker{Line: idx, Tag: tag, Section: section, Entity: entity, Number: n}
		s.state = seekingScenario
	}
}

func (s *markerScanner) onScenario(idx int, line string) {
	switch s.state {
	case inSteps:
		s.flush()
		s.reset()
	case seekingScenario:
		m := scenarioRE.FindStringSubmatch(line)
		s.pending.Tags = append([]string(nil), s.tags...)
		s.pending.Keyword = m[1]
		s.pending.ScenarioLine = idx
		s.pending.ScenarioName = strings.TrimSpace(m[2])
		s.steps = nil
		s.state = inSteps
	default:
		s.reset()
	}
}

func (s *markerScanner) onBlank() {
	switch s.state {
	case inTagBlock:
		s.reset()
	case seekingScenario:
		s.gap = true
	}
}

func (s *markerScanner) onOther(line string) {
	switch s.state {
	case inTagBlock:
		// Feature: and Background: headers do not break a tag block
		if !strings.HasPrefix(line, "Feature:") && !strings.HasPrefix(line, "Background:") {
			s.reset()
		}
	case inSteps:
		s.steps = append(s.steps, line)
	}
}

func (s *markerScanner) flush() {
	if s.pending == nil {
		return
	}
	s.pending.StepsText = strings.Join(s.steps, "\n")
	s.markers = append(s.markers, *s.pending)
	s.pending = nil
	s.steps = nil
	s.state = seekingTag
}

func (s *markerScanner) reset() {
	s.tags = nil
	s.gap = false
	s.state = seekingTag
}

func (s *markerScanner) finish() {
	switch s.state {
	case inSteps:
		s.flush()
	case seekingScenario:
		log.Warn().Str("marker", s.pending.Tag).Msgf("no scenario after marker on line %d, skipping", s.pending.Line+1)
		s.pending = nil
	}
}

func isTagLine(line string) bool {
	return strings.HasPrefix(line, "@")
}

func splitTags(line string) []string {
	if i := strings.Index(line, " #"); i >= 0 {
		line = line[:i]
	}
	var tags []string
	for _, f := range strings.Fields(line) {
		if strings.HasPrefix(f, "@") && len(f) > 1 {
			tags = append(tags, f)
		}
	}
	return tags
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// ResolvePlaceholders rewrites the placeholder of every unresolved marker
// to consecutive numbers starting at first. Only the marker token on the
// marker's own line changes. The markers are updated in place.
func ResolvePlaceholders(content string, markers []Marker, first int) string {
	lines := strings.Split(content, "\n")
	n := first
	for i := range markers {
		m := &markers[i]
		if !m.Unresolved() {
			continue
		}
		resolved := strings.TrimSuffix(m.Tag, Placeholder) + strconv.Itoa(n)
		lines[m.Line] = replaceTag(lines[m.Line], m.Tag, resolved)
		for j, t := range m.Tags {
			if t == m.Tag {
				m.Tags[j] = resolved
			}
		}
		m.Tag = resolved
		m.Number = n
		n++
	}
	return strings.Join(lines, "\n")
}

// replaceTag swaps a whole tag token, never a prefix of a longer tag.
func replaceTag(line, old, repl string) string {
	from := 0
	for {
		i := strings.Index(line[from:], old)
		if i < 0 {
			return line
		}
		i += from
		end := i + len(old)
		if end == len(line) || line[end] == ' ' || line[end] == '\t' || line[end] == '\r' {
			return line[:i] + repl + line[end:]
		}
		from = end
	}
}
