package agent

import (
	"context"

	"github.com/parkpulse/parkpulse/internal/intent"
	"github.com/parkpulse/parkpulse/internal/session"
)

type handlerFunc func(ctx context.Context, t *turn) (Envelope, error)

// route picks the handler for a message. A session in the middle of the
// proposal conversation always continues it, whatever the message says.
func (a *Agent) route(in intent.Intent, st session.State) handlerFunc {
	if st.InWorkflow() {
		return a.proposalWorkflow
	}

	switch in := in.(type) {
	case intent.ShowParks:
		return func(ctx context.Context, t *turn) (Envelope, error) { return a.showParks(ctx, in) }
	case intent.AskArea:
		return func(ctx context.Context, t *turn) (Envelope, error) { return a.askArea(ctx, t, in) }
	case intent.RemovalImpact:
		return func(ctx context.Context, t *turn) (Envelope, error) { return a.removalImpact(ctx, t, in) }
	case intent.NDVIQuery:
		return a.ndvi
	case intent.StatQuery:
		return func(ctx context.Context, t *turn) (Envelope, error) { return a.stat(ctx, t, in) }
	case intent.InfoQuery:
		return a.parkInfo
	case intent.AirQualityQuery:
		return a.airQuality
	case intent.CreateProposal:
		return a.proposalWorkflow
	case intent.Greeting:
		return a.greeting
	default:
		return a.help
	}
}
