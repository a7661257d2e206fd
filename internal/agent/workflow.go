package agent

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/auth"
	"github.com/parkpulse/parkpulse/internal/ledger"
	"github.com/parkpulse/parkpulse/internal/session"
)

// Phase is where a session stands in the proposal conversation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingFundraisingChoice
	PhaseAwaitingFundingGoal
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingFundraisingChoice:
		return "awaiting_fundraising_choice"
	case PhaseAwaitingFundingGoal:
		return "awaiting_funding_goal"
	case PhaseSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

func phaseOf(st session.State) Phase {
	switch {
	case st.AwaitingFundraisingResponse:
		return PhaseAwaitingFundraisingChoice
	case st.AwaitingFundingGoal:
		return PhaseAwaitingFundingGoal
	default:
		return PhaseIdle
	}
}

const (
	authRequiredHeader = "⚠️ **Authorization Required**\n\nOnly authorized government employees or invited city planners can create proposals.\n\n"
	completeProfile    = authRequiredHeader + "Are you an authorized user? Complete your profile to verify your government employee status."
	updateProfile      = authRequiredHeader + "Are you an authorized user? Update your profile to verify your government employee status."

	needAnalysisReply       = "Please analyze the park removal first before creating a proposal. Ask 'what happens if removed' for the selected park."
	askFundraisingReply     = "Would you like to enable fundraising if this proposal is accepted?\n\nThis will allow community members to donate HBAR to support the initiative.\n\nRespond with 'yes' or 'no'."
	clarifyFundraisingReply = "I need a clear yes or no response. Would you like to enable fundraising if this proposal is accepted?\n\nRespond with 'yes' or 'no'."
	askFundingGoalReply     = "Great! What funding goal are you planning for this proposal?\n\nPlease specify the amount in HBAR (e.g., '100 HBAR' or '1000')."
	clarifyGoalReply        = "Please specify a valid funding goal amount in HBAR.\n\nFor example: '100' or '500 HBAR'"
)

type answer int

const (
	answerUnclear answer = iota
	answerYes
	answerNo
)

var (
	affirmativeTokens = []string{"yes", "yeah", "yep", "sure", "y", "enable", "fund"}
	negativeTokens    = []string{"no", "nope", "nah", "n", "skip", "dont", "don't"}
)

// parseAnswer matches tokens anywhere in the message, ignoring case.
// Affirmative tokens are checked first.
func parseAnswer(msg string) answer {
	msg = strings.ToLower(strings.TrimSpace(msg))
	if msg == "" {
		return answerUnclear
	}
	for _, tok := range affirmativeTokens {
		if strings.Contains(msg, tok) {
			return answerYes
		}
	}
	for _, tok := range negativeTokens {
		if strings.Contains(msg, tok) {
			return answerNo
		}
	}
	return answerUnclear
}

var amountPattern = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d+)?`)

// parseFundingGoal returns the first amount in msg, in HBAR, converted to
// tinybar.
func parseFundingGoal(msg string) (int64, bool) {
	m := amountPattern.FindString(msg)
	if m == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	tinybar := math.Round(amount * ledger.Scale)
	if tinybar >= math.MaxInt64 {
		return 0, false
	}
	return int64(tinybar), true
}

func unauthorized(res auth.Result) Envelope {
	text := updateProfile
	if res.ProfileMissing {
		text = completeProfile
	}
	env := reply(ActionUnauthorized, text)
	env.ShowProfileButton = true
	return env
}

// proposalWorkflow advances the proposal conversation by one message.
// Authorization is checked on every turn, before any session change.
func (a *Agent) proposalWorkflow(ctx context.Context, t *turn) (Envelope, error) {
	res := a.authorizer.Authorize(ctx, t.req.WalletAddress)
	if !res.Authorized {
		a.logger.Info("proposal creation not authorized",
			zap.String("session", t.sessionID),
			zap.String("wallet", t.req.WalletAddress),
			zap.String("reason", res.Reason),
		)
		return unauthorized(res), nil
	}

	st := t.state
	if st.LatestRemovalAnalysis == nil {
		if st.InWorkflow() {
			if err := a.sessions.Clear(ctx, t.sessionID, session.WorkflowKeys...); err != nil {
				return Envelope{}, fmt.Errorf("failed to reset proposal conversation: %w", err)
			}
		}
		return reply(ActionNeedAnalysis, needAnalysisReply), nil
	}

	phase := phaseOf(st)
	a.logger.Debug("proposal conversation", zap.String("session", t.sessionID), zap.Stringer("phase", phase))
	switch phase {
	case PhaseAwaitingFundraisingChoice:
		return a.fundraisingChoice(ctx, t)
	case PhaseAwaitingFundingGoal:
		return a.fundingGoal(ctx, t)
	default:
		return a.startProposal(ctx, t)
	}
}

func (a *Agent) startProposal(ctx context.Context, t *turn) (Envelope, error) {
	deadline := ""
	if d, ok := parseDeadline(t.req.Message, a.now().Location()); ok {
		deadline = formatDeadline(d)
	}
	err := a.sessions.Set(ctx, t.sessionID, session.Patch{
		AwaitingFundraisingResponse: session.Bool(true),
		FundraisingEnabled:          session.Bool(false),
		FundingGoalTinybar:          session.Int64(0),
		ProposalDeadline:            session.String(deadline),
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to start proposal conversation: %w", err)
	}
	return reply(ActionAskFundraising, askFundraisingReply), nil
}

func (a *Agent) fundraisingChoice(ctx context.Context, t *turn) (Envelope, error) {
	switch parseAnswer(t.req.Message) {
	case answerYes:
		patch := session.Patch{
			AwaitingFundingGoal: session.Bool(true),
			FundraisingEnabled:  session.Bool(true),
		}
		a.rememberDeadline(&patch, t.req.Message)
		if err := a.sessions.Set(ctx, t.sessionID, patch); err != nil {
			return Envelope{}, fmt.Errorf("failed to store fundraising choice: %w", err)
		}
		return reply(ActionAskFundingGoal, askFundingGoalReply), nil

	case answerNo:
		patch := session.Patch{
			AwaitingFundraisingResponse: session.Bool(false),
			FundraisingEnabled:          session.Bool(false),
			FundingGoalTinybar:          session.Int64(0),
		}
		if err := a.sessions.Set(ctx, t.sessionID, patch); err != nil {
			return Envelope{}, fmt.Errorf("failed to store fundraising choice: %w", err)
		}
		st := t.state
		st.AwaitingFundraisingResponse = false
		st.FundraisingEnabled = false
		st.FundingGoalTinybar = 0
		return a.submitProposal(ctx, t, st)

	default:
		return reply(ActionClarifyFundraising, clarifyFundraisingReply), nil
	}
}

func (a *Agent) fundingGoal(ctx context.Context, t *turn) (Envelope, error) {
	goal, ok := parseFundingGoal(t.req.Message)
	if !ok {
		return reply(ActionClarifyGoal, clarifyGoalReply), nil
	}

	err := a.sessions.Set(ctx, t.sessionID, session.Patch{
		AwaitingFundingGoal: session.Bool(false),
		FundingGoalTinybar:  session.Int64(goal),
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to store funding goal: %w", err)
	}
	st := t.state
	st.AwaitingFundingGoal = false
	st.FundingGoalTinybar = goal
	return a.submitProposal(ctx, t, st)
}

// rememberDeadline records a deadline named mid-conversation.
func (a *Agent) rememberDeadline(p *session.Patch, msg string) {
	if d, ok := parseDeadline(msg, a.now().Location()); ok {
		p.ProposalDeadline = session.String(formatDeadline(d))
	}
}
