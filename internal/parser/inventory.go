package parser

import (
	"sort"
	"strings"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/ii/api-test-harness/internal/types"
)

// FeatureScenario is a scenario as the Gherkin grammar sees it.
type FeatureScenario struct {
	Name string
	Line int
	Tags []string
}

// Feature is the grammar-checked view of a feature file.
type Feature struct {
	Path      string
	Name      string
	Tags      []string
	Scenarios []FeatureScenario
}

// ParseFeature runs a feature file through the Gherkin grammar. A syntax
// error comes back as *types.ParseError.
func ParseFeature(path, content string) (*Feature, error) {
	doc, err := gherkin.ParseGherkinDocument(strings.NewReader(content), (&messages.Incrementing{}).NewId)
	if err != nil {
		return nil, &types.ParseError{Path: path, Err: err}
	}
	f := &Feature{Path: path}
	if doc.Feature == nil {
		return f, nil
	}
	f.Name = doc.Feature.Name
	f.Tags = tagNames(doc.Feature.Tags)
	for _, child := range doc.Feature.Children {
		if child.Scenario != nil {
			f.Scenarios = append(f.Scenarios, toScenario(child.Scenario, f.Tags))
		}
		if child.Rule == nil {
			continue
		}
		ruleTags := append(append([]string(nil), f.Tags...), tagNames(child.Rule.Tags)...)
		for _, rc := range child.Rule.Children {
			if rc.Scenario != nil {
				f.Scenarios = append(f.Scenarios, toScenario(rc.Scenario, ruleTags))
			}
		}
	}
	return f, nil
}

func toScenario(sc *messages.Scenario, inherited []string) FeatureScenario {
	tags := append(append([]string(nil), inherited...), tagNames(sc.Tags)...)
	for _, ex := range sc.Examples {
		tags = append(tags, tagNames(ex.Tags)...)
	}
	line := 0
	if sc.Location != nil {
		line = int(sc.Location.Line)
	}
	return FeatureScenario{Name: sc.Name, Line: line, Tags: tags}
}

func tagNames(tags []*messages.Tag) []string {
	var names []string
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

// Inventory lists scenario names and distinct tags, sorted.
func (f *Feature) Inventory() *types.Inventory {
	inv := &types.Inventory{}
	seen := map[string]bool{}
	for _, sc := range f.Scenarios {
		inv.Scenarios = append(inv.Scenarios, sc.Name)
		for _, t := range sc.Tags {
			if !seen[t] {
				seen[t] = true
				inv.Tags = append(inv.Tags, t)
			}
		}
	}
	sort.Strings(inv.Tags)
	return inv
}

// Match returns the scenarios that carry every tag and, when names is
// not empty, whose name is one of names.
func (f *Feature) Match(tags, names []string) []FeatureScenario {
	var out []FeatureScenario
	for _, sc := range f.Scenarios {
		if len(names) > 0 && !containsFold(names, sc.Name) {
			continue
		}
		if !hasAllTags(sc.Tags, tags) {
			continue
		}
		out = append(out, sc)
	}
	return out
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		w = normalizeTag(w)
		if w == "" {
			continue
		}
		if !containsFold(have, w) {
			return false
		}
	}
	return true
}

func normalizeTag(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if !strings.HasPrefix(t, "@") {
		t = "@" + t
	}
	return t
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(strings.TrimSpace(x), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}
