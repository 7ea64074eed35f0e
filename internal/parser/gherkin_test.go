package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const generatedFeature = `@api @product
Feature: Product API

  Background:
    Given the API is available

  @TC-ECOM-PRODUCT-Number
  @smoke
  Scenario: Create Product with valid data
    Given I have valid product data
    When I send a POST request to "/products"
    Then the response status should be 201

  @regression @TC-ECOM-PRODUCT-Number
  Scenario: Get Product with missing id
    When I send a GET request to "/products/"
    Then the response status should be 404
`

func TestScanMarkersPlaceholders(t *testing.T) {
	markers := ScanMarkers(generatedFeature, MarkerFilter{Section: "ECOM", Entity: "PRODUCT"})
	require.Len(t, markers, 2)

	first := markers[0]
	assert.Equal(t, 6, first.Line)
	assert.True(t, first.Unresolved())
	assert.Equal(t, "Create Product with valid data", first.ScenarioName)
	assert.Equal(t, "Scenario", first.Keyword)
	assert.Equal(t, []string{"@TC-ECOM-PRODUCT-Number", "@smoke"}, first.Tags)
	assert.Equal(t, strings.Join([]string{
		"Given I have valid product data",
		`When I send a POST request to "/products"`,
		"Then the response status should be 201",
	}, "\n"), first.StepsText)

	second := markers[1]
	assert.Equal(t, "Get Product with missing id", second.ScenarioName)
	assert.Equal(t, []string{"@regression", "@TC-ECOM-PRODUCT-Number"}, second.Tags)
}

func TestScanMarkersFilterSelectsResolvedOnly(t *testing.T) {
	content := strings.Replace(generatedFeature, "@TC-ECOM-PRODUCT-Number\n", "@TC-ECOM-PRODUCT-7\n", 1)

	resolved := ScanMarkers(content, MarkerFilter{Resolved: true})
	require.Len(t, resolved, 1)
	assert.Equal(t, 7, resolved[0].Number)
	assert.Equal(t, "TC-ECOM-PRODUCT-7", resolved[0].TestCaseID())

	pending := ScanMarkers(content, MarkerFilter{})
	require.Len(t, pending, 1)
	assert.Equal(t, "Get Product with missing id", pending[0].ScenarioName)
}

func TestScanMarkersFeatureTagsAboveMarker(t *testing.T) {
	content := "@api\nFeature: Orders\n@TC-ECOM-ORDER-3\nScenario: Delete order\n  When I delete it\n"
	markers := ScanMarkers(content, MarkerFilter{Resolved: true})
	require.Len(t, markers, 1)
	assert.Equal(t, []string{"@api", "@TC-ECOM-ORDER-3"}, markers[0].Tags)
}

func TestScanMarkersWithoutScenarioIsDropped(t *testing.T) {
	content := "Feature: Orders\n\n@TC-ECOM-ORDER-Number\n"
	assert.Empty(t, ScanMarkers(content, MarkerFilter{}))
}

func TestScanMarkersOtherEntityIgnored(t *testing.T) {
	content := "Feature: X\n@TC-ECOM-ORDER-1\nScenario: Read order\n  When x\n"
	assert.Empty(t, ScanMarkers(content, MarkerFilter{Entity: "PRODUCT", Resolved: true}))
}

func TestScanMarkersMalformedMarkerLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	content := "Feature: X\n@TC-ECOM-USER-PROFILE-1\nScenario: Read profile\n  When x\n"
	assert.Empty(t, ScanMarkers(content, MarkerFilter{Resolved: true}))
	assert.Contains(t, buf.String(), "malformed marker on line 2")
	assert.Contains(t, buf.String(), "@TC-ECOM-USER-PROFILE-1")
}

func TestScanMarkersStepsStopAtNextTagBlock(t *testing.T) {
	content := `Feature: X
@TC-A-B-1
Scenario: one
  Given a

  When b
@TC-A-B-2
Scenario Outline: two
  Given <x>
  Examples:
    | x |
    | 1 |
`
	markers := ScanMarkers(content, MarkerFilter{Resolved: true})
	require.Len(t, markers, 2)
	assert.Equal(t, "Given a\nWhen b", markers[0].StepsText)
	assert.Equal(t, "Scenario Outline", markers[1].Keyword)
	assert.Equal(t, "Given <x>\nExamples:\n| x |\n| 1 |", markers[1].StepsText)
}

func TestScanMarkersUnmarkedScenarioSkipped(t *testing.T) {
	content := `Feature: X
@smoke
Scenario: unmarked
  Given a
@TC-A-B-4
Scenario: marked
  Given b
`
	markers := ScanMarkers(content, MarkerFilter{Resolved: true})
	require.Len(t, markers, 1)
	assert.Equal(t, "marked", markers[0].ScenarioName)
	assert.Equal(t, []string{"@TC-A-B-4"}, markers[0].Tags)
}

func TestResolvePlaceholdersOnlyChangesDigits(t *testing.T) {
	markers := ScanMarkers(generatedFeature, MarkerFilter{})
	out := ResolvePlaceholders(generatedFeature, markers, 4)

	assert.Equal(t, 4, markers[0].Number)
	assert.Equal(t, 5, markers[1].Number)
	assert.Equal(t, "@TC-ECOM-PRODUCT-4", markers[0].Tag)
	assert.Contains(t, markers[1].Tags, "@TC-ECOM-PRODUCT-5")

	expected := strings.Replace(generatedFeature, "PRODUCT-Number", "PRODUCT-4", 1)
	expected = strings.Replace(expected, "PRODUCT-Number", "PRODUCT-5", 1)
	assert.Equal(t, expected, out)

	again := ScanMarkers(out, MarkerFilter{Resolved: true})
	require.Len(t, again, 2)
	assert.Equal(t, "TC-ECOM-PRODUCT-4", again[0].TestCaseID())
	assert.Equal(t, "TC-ECOM-PRODUCT-5", again[1].TestCaseID())
}

func TestParseMarkerTag(t *testing.T) {
	section, entity, n, ok := ParseMarkerTag("@TC-ECOM-PRODUCT-12")
	require.True(t, ok)
	assert.Equal(t, "ECOM", section)
	assert.Equal(t, "PRODUCT", entity)
	assert.Equal(t, 12, n)

	_, _, n, ok = ParseMarkerTag("@TC-ECOM-PRODUCT-Number")
	assert.True(t, ok)
	assert.Zero(t, n)

	for _, bad := range []string{"@TC-ECOM-PRODUCT-0", "@TC-ECOM-PRODUCT", "@smoke", "TC-ECOM-PRODUCT-1"} {
		_, _, _, ok := ParseMarkerTag(bad)
		assert.False(t, ok, bad)
	}
}

func TestScanStateNames(t *testing.T) {
	assert.Equal(t, "seeking-tag", seekingTag.String())
	assert.Equal(t, "in-tag-block", inTagBlock.String())
	assert.Equal(t, "seeking-scenario", seekingScenario.String())
	assert.Equal(t, "in-steps", inSteps.String())
}
