package intent

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/parkpulse/parkpulse/internal/impact"
	"github.com/parkpulse/parkpulse/internal/llm"
)

//go:embed prompt.yaml
var promptYAML []byte

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://parkpulse.local/schemas/intent.schema.json"

type example struct {
	Query string `yaml:"query"`
	Label string `yaml:"label"`
}

type promptFile struct {
	Header   string    `yaml:"header"`
	Examples []example `yaml:"examples"`
}

// raw is the JSON document the model returns.
type raw struct {
	Intent        string `json:"intent"`
	LocationType  string `json:"locationType"`
	LocationValue string `json:"locationValue"`
	Unit          string `json:"unit"`
	LandUseType   string `json:"landUseType"`
	Metric        string `json:"metric"`
}

// Classifier asks a text generator for a structured intent. It never fails:
// anything unexpected becomes Unknown.
type Classifier struct {
	gen      llm.Generator
	logger   *zap.Logger
	prompt   promptFile
	schema   *jsonschema.Schema
	response map[string]any
}

func NewClassifier(gen llm.Generator, logger *zap.Logger) (*Classifier, error) {
	var p promptFile
	if err := yaml.Unmarshal(promptYAML, &p); err != nil {
		return nil, fmt.Errorf("failed to parse classifier prompt: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load intent schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile intent schema: %w", err)
	}

	var response map[string]any
	if err := json.Unmarshal(schemaJSON, &response); err != nil {
		return nil, fmt.Errorf("failed to decode intent schema: %w", err)
	}

	return &Classifier{
		gen:      gen,
		logger:   logger.Named("intent"),
		prompt:   p,
		schema:   schema,
		response: response,
	}, nil
}

func (c *Classifier) Classify(ctx context.Context, text string) Intent {
	out, err := c.gen.Generate(ctx, llm.Request{
		Prompt:     c.render(text),
		JSONSchema: c.response,
	})
	if err != nil {
		c.logger.Warn("classification request failed", zap.Error(err))
		return Unknown{}
	}

	r, err := c.decode(out)
	if err != nil {
		c.logger.Warn("classification output rejected", zap.Error(err), zap.String("output", out))
		return Unknown{}
	}

	in := convert(r)
	c.logger.Debug("classified message", zap.String("intent", string(in.Kind())))
	return in
}

func (c *Classifier) render(text string) string {
	var b strings.Builder
	b.WriteString(c.prompt.Header)
	b.WriteString("\n\nUser query: ")
	b.WriteString(fmt.Sprintf("%q", text))
	b.WriteString("\n\nExamples:\n")
	for _, ex := range c.prompt.Examples {
		fmt.Fprintf(&b, "- %q -> %s\n", ex.Query, ex.Label)
	}
	return b.String()
}

func (c *Classifier) decode(out string) (raw, error) {
	out = stripFence(out)

	var doc any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return raw{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return raw{}, fmt.Errorf("schema validation failed: %w", err)
	}

	var r raw
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		return raw{}, err
	}
	return r, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func convert(r raw) Intent {
	switch Kind(r.Intent) {
	case KindShowParks:
		value := strings.TrimSpace(r.LocationValue)
		return ShowParks{
			LocationType:  normalizeLocationType(r.LocationType, value),
			LocationValue: value,
		}
	case KindAskArea:
		return AskArea{Unit: normalizeUnit(r.Unit)}
	case KindRemovalImpact:
		return RemovalImpact{LandUse: normalizeLandUse(r.LandUseType)}
	case KindNDVIQuery:
		return NDVIQuery{}
	case KindStatQuery:
		return StatQuery{Metric: strings.TrimSpace(r.Metric)}
	case KindInfoQuery:
		return InfoQuery{}
	case KindAirQualityQuery:
		return AirQualityQuery{}
	case KindCreateProposal:
		return CreateProposal{}
	case KindGreeting:
		return Greeting{}
	default:
		return Unknown{}
	}
}

// normalizeLocationType uses the model's label when it is one we know and
// otherwise infers it from the value: five digits is a ZIP code, two letters
// a state, anything else a city.
func normalizeLocationType(label, value string) LocationType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "zip", "zipcode", "zip code", "postal code":
		return LocationZip
	case "city":
		return LocationCity
	case "state":
		return LocationState
	}

	switch {
	case len(value) == 5 && allRunes(value, unicode.IsDigit):
		return LocationZip
	case len(value) == 2 && allRunes(value, unicode.IsLetter):
		return LocationState
	default:
		return LocationCity
	}
}

func normalizeUnit(u string) impact.Unit {
	switch strings.ToLower(strings.TrimSpace(u)) {
	case "m2", "m²", "sqm", "square meters", "square metres":
		return impact.UnitSquareMeters
	case "km2", "km²", "square kilometers", "square kilometres":
		return impact.UnitSquareKilometers
	case "hectares", "hectare", "ha":
		return impact.UnitHectares
	default:
		return impact.UnitAcres
	}
}

func normalizeLandUse(l string) LandUseType {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "replaced_by_building", "building", "buildings", "replaced by building":
		return LandUseReplacedByBuilding
	default:
		return LandUseRemoved
	}
}

func allRunes(s string, f func(rune) bool) bool {
	for _, r := range s {
		if !f(r) {
			return false
		}
	}
	return true
}
