package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/impact"
	"github.com/parkpulse/parkpulse/internal/llm"
)

type fakeGenerator struct {
	out  string
	err  error
	last llm.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.last = req
	return f.out, f.err
}

func newTestClassifier(t *testing.T, gen llm.Generator) *Classifier {
	t.Helper()
	c, err := NewClassifier(gen, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want Intent
	}{
		{
			name: "zip inferred",
			out:  `{"intent":"show_parks","locationValue":"90210"}`,
			want: ShowParks{LocationType: LocationZip, LocationValue: "90210"},
		},
		{
			name: "state inferred",
			out:  `{"intent":"show_parks","locationValue":"TX"}`,
			want: ShowParks{LocationType: LocationState, LocationValue: "TX"},
		},
		{
			name: "city inferred",
			out:  `{"intent":"show_parks","locationValue":"Austin"}`,
			want: ShowParks{LocationType: LocationCity, LocationValue: "Austin"},
		},
		{
			name: "explicit location type wins",
			out:  `{"intent":"show_parks","locationType":"city","locationValue":"12345"}`,
			want: ShowParks{LocationType: LocationCity, LocationValue: "12345"},
		},
		{
			name: "area with unit",
			out:  `{"intent":"ask_area","unit":"square meters"}`,
			want: AskArea{Unit: impact.UnitSquareMeters},
		},
		{
			name: "area defaults to acres",
			out:  `{"intent":"ask_area"}`,
			want: AskArea{Unit: impact.UnitAcres},
		},
		{
			name: "removal defaults to removed",
			out:  `{"intent":"park_removal_impact"}`,
			want: RemovalImpact{LandUse: LandUseRemoved},
		},
		{
			name: "removal by building",
			out:  `{"intent":"park_removal_impact","landUseType":"replaced_by_building"}`,
			want: RemovalImpact{LandUse: LandUseReplacedByBuilding},
		},
		{
			name: "stat metric",
			out:  `{"intent":"park_stat_query","metric":" SUM_TOTPOP "}`,
			want: StatQuery{Metric: "SUM_TOTPOP"},
		},
		{
			name: "fenced output",
			out:  "```json\n{\"intent\":\"greeting\"}\n```",
			want: Greeting{},
		},
		{
			name: "proposal",
			out:  `{"intent":"create_proposal"}`,
			want: CreateProposal{},
		},
		{
			name: "not json",
			out:  `greeting`,
			want: Unknown{},
		},
		{
			name: "intent outside enum",
			out:  `{"intent":"order_pizza"}`,
			want: Unknown{},
		},
		{
			name: "missing intent",
			out:  `{"unit":"m2"}`,
			want: Unknown{},
		},
		{
			name: "wrong slot type",
			out:  `{"intent":"ask_area","unit":2}`,
			want: Unknown{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(t, &fakeGenerator{out: tt.out})
			got := c.Classify(context.Background(), "message")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyTransportFailure(t *testing.T) {
	c := newTestClassifier(t, &fakeGenerator{err: errors.New("connection refused")})
	assert.Equal(t, Unknown{}, c.Classify(context.Background(), "show parks in 90210"))
}

func TestClassifyPrompt(t *testing.T) {
	gen := &fakeGenerator{out: `{"intent":"greeting"}`}
	c := newTestClassifier(t, gen)
	c.Classify(context.Background(), "hi there")

	assert.True(t, strings.Contains(gen.last.Prompt, `User query: "hi there"`))
	assert.Contains(t, gen.last.Prompt, `- "parks in TX" -> show_parks intent, state location`)
	require.NotNil(t, gen.last.JSONSchema)
	assert.Equal(t, "object", gen.last.JSONSchema["type"])
}

func TestLandUseScenario(t *testing.T) {
	assert.Equal(t, impact.ScenarioRemoved, LandUseRemoved.Scenario())
	assert.Equal(t, impact.ScenarioReplacedByBuilding, LandUseReplacedByBuilding.Scenario())
	assert.Equal(t, impact.ScenarioRemoved, LandUseType("").Scenario())
}
