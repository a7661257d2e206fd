package agent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/impact"
	"github.com/parkpulse/parkpulse/internal/intent"
	"github.com/parkpulse/parkpulse/internal/llm"
	"github.com/parkpulse/parkpulse/internal/session"
)

const (
	helpReply     = `I'm ParkPulse.ai, your urban intelligence assistant. I can show parks by zipcode/city/state, analyze environmental impacts, or tell you about a selected park. Try asking: "show parks in 90210" or "what happens if this park is removed?"`
	greetingReply = `Hello! Welcome to ParkPulse.ai - your AI-powered urban intelligence platform. Try: "show parks of zipcode 20008" or "show parks of city Austin".`

	parkNotFoundReply = "Could not find that park."
	lookupFailedReply = "Sorry, I couldn't look that up right now. Please try again."
)

var printer = message.NewPrinter(language.English)

func reply(action Action, text string) Envelope {
	return Envelope{Action: action, Reply: text}
}

// failed logs a collaborator error and returns the user-safe reply.
func (a *Agent) failed(what string, err error, fields ...zap.Field) Envelope {
	a.logger.Error(what, append(fields, zap.Error(err))...)
	return reply(ActionError, lookupFailedReply)
}

func (a *Agent) greeting(ctx context.Context, t *turn) (Envelope, error) {
	return reply(ActionAnswer, greetingReply), nil
}

func (a *Agent) help(ctx context.Context, t *turn) (Envelope, error) {
	return reply(ActionAnswer, helpReply), nil
}

func (a *Agent) showParks(ctx context.Context, in intent.ShowParks) (Envelope, error) {
	if in.LocationValue == "" {
		return reply(ActionError, "Please tell me a ZIP code, city or state to search."), nil
	}

	var q db.LocationQuery
	switch in.LocationType {
	case intent.LocationZip:
		q.Zip = in.LocationValue
	case intent.LocationState:
		q.State = in.LocationValue
	default:
		q.City = in.LocationValue
	}

	fc, err := a.parks.ParksByLocation(ctx, q)
	if err != nil {
		return a.failed("failed to load parks", err, zap.String("location", in.LocationValue)), nil
	}

	env := reply(ActionRenderParks, fmt.Sprintf("Loaded %d park(s) for %s: %s.", len(fc.Features), in.LocationType, in.LocationValue))
	env.Data = map[string]any{"featureCollection": fc}
	return env, nil
}

// selectedPark loads the park the user clicked. A non-nil Envelope means
// the handler should return it as is.
func (a *Agent) selectedPark(ctx context.Context, t *turn, needSelection string) (*db.Park, *Envelope) {
	if t.req.SelectedParkID == "" {
		env := reply(ActionNeedSelection, needSelection)
		return nil, &env
	}
	park, err := a.parks.ParkByID(ctx, t.req.SelectedParkID)
	if err != nil {
		env := a.failed("failed to load park", err, zap.String("park", t.req.SelectedParkID))
		return nil, &env
	}
	if park == nil {
		env := reply(ActionError, parkNotFoundReply)
		return nil, &env
	}
	return park, nil
}

func (a *Agent) askArea(ctx context.Context, t *turn, in intent.AskArea) (Envelope, error) {
	park, stop := a.selectedPark(ctx, t, "Please click a park first.")
	if stop != nil {
		return *stop, nil
	}

	area, label := impact.ConvertAcres(park.Acres, in.Unit)
	env := reply(ActionAnswer, fmt.Sprintf("Area of %q: %s %s.", park.Name, impact.FormatArea(area), label))
	env.Data = map[string]any{
		"parkId": park.ID,
		"area":   area,
		"unit":   label,
	}
	return env, nil
}

func (a *Agent) removalImpact(ctx context.Context, t *turn, in intent.RemovalImpact) (Envelope, error) {
	park, stop := a.selectedPark(ctx, t, "Please select a park to analyze its removal impact.")
	if stop != nil {
		return *stop, nil
	}

	analysis := a.analyzer.RemovalImpact(*park, in.LandUse)
	if analysis.ParkZip == "" {
		analysis.ParkZip = park.Zip
	}
	err := a.sessions.Set(ctx, t.sessionID, session.Patch{
		LatestRemovalAnalysis: &session.RemovalAnalysis{
			ParkID:    park.ID,
			Analysis:  analysis,
			Timestamp: a.now(),
		},
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to store removal analysis: %w", err)
	}

	env := reply(ActionRemovalImpact, analysis.Message)
	env.Data = analysis
	return env, nil
}

func (a *Agent) ndvi(ctx context.Context, t *turn) (Envelope, error) {
	park, stop := a.selectedPark(ctx, t, "Please select a park.")
	if stop != nil {
		return *stop, nil
	}
	if park.NDVI == nil {
		return reply(ActionError, "NDVI is not available for this park yet."), nil
	}

	env := reply(ActionAnswer, fmt.Sprintf("The NDVI of this park is approximately %.3f.", *park.NDVI))
	env.Data = map[string]any{"ndvi": *park.NDVI}
	return env, nil
}

func (a *Agent) stat(ctx context.Context, t *turn, in intent.StatQuery) (Envelope, error) {
	if t.req.SelectedParkID == "" {
		return reply(ActionNeedSelection, "Please select a park."), nil
	}
	if in.Metric == "" {
		return reply(ActionError, "Metric not specified."), nil
	}

	stat, err := a.parks.ParkStat(ctx, t.req.SelectedParkID, in.Metric)
	if err != nil {
		return a.failed("failed to load park statistic", err,
			zap.String("park", t.req.SelectedParkID), zap.String("metric", in.Metric)), nil
	}
	if stat == nil {
		return reply(ActionError, fmt.Sprintf("No value for %s is available for this park.", in.Metric)), nil
	}

	env := reply(ActionAnswer, fmt.Sprintf("The value for %s is %s.", in.Metric, formatStat(stat.Value)))
	env.Data = map[string]any{"metric": in.Metric, "value": stat.Value}
	return env, nil
}

// formatStat prints whole numbers with separators and no decimals.
func formatStat(v float64) string {
	if v == math.Trunc(v) {
		return printer.Sprintf("%.0f", v)
	}
	return printer.Sprintf("%.2f", v)
}

func (a *Agent) parkInfo(ctx context.Context, t *turn) (Envelope, error) {
	park, stop := a.selectedPark(ctx, t, "Please select a park to get information about.")
	if stop != nil {
		return *stop, nil
	}

	description := strings.TrimSpace(park.Description)
	if description == "" {
		description = a.describePark(ctx, park)
	}

	data := map[string]any{
		"parkId":      park.ID,
		"name":        park.Name,
		"city":        park.City,
		"state":       park.State,
		"zip":         park.Zip,
		"acres":       park.Acres,
		"description": description,
	}
	if park.YearEstablished != nil {
		data["yearEstablished"] = *park.YearEstablished
	}
	env := reply(ActionAnswer, description)
	env.Data = data
	return env, nil
}

func (a *Agent) describePark(ctx context.Context, park *db.Park) string {
	canned := fmt.Sprintf("%s is a %s-acre public park", park.Name, impact.FormatArea(park.Acres))
	if park.City != "" {
		canned += " in " + park.City
		if park.State != "" {
			canned += ", " + park.State
		}
	}
	canned += " that offers open green space to the surrounding neighborhood."

	if a.writer == nil {
		return canned
	}
	prompt := fmt.Sprintf(`Write a short, factual description (two or three sentences) of %s, a %.1f-acre park in %s, %s.
Mention what visitors can expect and its role in the neighborhood. Do not invent specific facilities or dates.`,
		park.Name, park.Acres, park.City, park.State)
	text, err := a.writer.Generate(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		a.logger.Warn("failed to generate park description", zap.String("park", park.ID), zap.Error(err))
		return canned
	}
	if text = strings.TrimSpace(text); text == "" {
		return canned
	}
	return text
}

func (a *Agent) airQuality(ctx context.Context, t *turn) (Envelope, error) {
	park, stop := a.selectedPark(ctx, t, "Please select a park to check air quality.")
	if stop != nil {
		return *stop, nil
	}
	if park.PM25 == nil {
		return reply(ActionError, "Air quality data is not available for this park yet."), nil
	}

	aq := impact.AssessAirQuality(*park.PM25)
	env := reply(ActionAnswer, aq.Message)
	env.Data = aq
	return env, nil
}
