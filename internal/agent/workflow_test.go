package agent

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkpulse/parkpulse/internal/auth"
	"github.com/parkpulse/parkpulse/internal/session"
)

func TestProposalNeedsAnalysis(t *testing.T) {
	for _, msg := range []string{"create a proposal", "create proposal with deadline 25th october 2025"} {
		t.Run(msg, func(t *testing.T) {
			f := newFixture()
			a := f.agent(t)

			env := send(t, a, "s1", msg)
			assert.Equal(t, ActionNeedAnalysis, env.Action)
			assert.False(t, f.state(t, "s1").InWorkflow())
		})
	}
}

func TestProposalNeedsAnalysisMidWorkflow(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.store.Set(context.Background(), "s1", session.Patch{AwaitingFundingGoal: session.Bool(true)}))
	a := f.agent(t)

	env := send(t, a, "s1", "100 HBAR")
	assert.Equal(t, ActionNeedAnalysis, env.Action)
	assert.False(t, f.state(t, "s1").InWorkflow())
	assert.Empty(t, f.ledger.drafts)
}

func TestProposalAsksFundraising(t *testing.T) {
	f := newFixture()
	f.seedAnalysis(t, "s1")
	a := f.agent(t)

	env := send(t, a, "s1", "create a proposal")
	assert.Equal(t, ActionAskFundraising, env.Action)
	assert.Equal(t, askFundraisingReply, env.Reply)

	st := f.state(t, "s1")
	assert.True(t, st.AwaitingFundraisingResponse)
	assert.False(t, st.AwaitingFundingGoal)
	assert.False(t, st.FundraisingEnabled)
	assert.Zero(t, st.FundingGoalTinybar)
}

func TestFundraisingYes(t *testing.T) {
	f := newFixture()
	f.seedAnalysis(t, "s1")
	a := f.agent(t)

	send(t, a, "s1", "create a proposal")
	env := send(t, a, "s1", "yes please")
	assert.Equal(t, ActionAskFundingGoal, env.Action)

	st := f.state(t, "s1")
	assert.False(t, st.AwaitingFundraisingResponse)
	assert.True(t, st.AwaitingFundingGoal)
	assert.True(t, st.FundraisingEnabled)
	assert.Empty(t, f.ledger.drafts)
}

func TestFundraisingNoSubmitsImmediately(t *testing.T) {
	f := newFixture()
	f.seedAnalysis(t, "s1")
	a := f.agent(t)

	send(t, a, "s1", "create a proposal")
	env := send(t, a, "s1", "no thanks")
	assert.Equal(t, ActionProposalCreated, env.Action)

	d := f.ledger.lastDraft(t)
	assert.False(t, d.FundraisingEnabled)
	assert.Zero(t, d.FundingGoalTinybar)
	assert.False(t, f.state(t, "s1").InWorkflow())
	a.Wait()
}

func TestFundraisingUnclearAnswer(t *testing.T) {
	f := newFixture()
	f.seedAnalysis(t, "s1")
	a := f.agent(t)

	send(t, a, "s1", "create a proposal")
	env := send(t, a, "s1", "hmm")
	assert.Equal(t, ActionClarifyFundraising, env.Action)
	assert.True(t, f.state(t, "s1").AwaitingFundraisingResponse)
}

func TestFundingGoal(t *testing.T) {
	f := newFixture()
	f.seedAnalysis(t, "s1")
	a := f.agent(t)

	send(t, a, "s1", "create a proposal")
	send(t, a, "s1", "yes")

	env := send(t, a, "s1", "not sure")
	assert.Equal(t, ActionClarifyGoal, env.Action)
	assert.True(t, f.state(t, "s1").AwaitingFundingGoal)

	env = send(t, a, "s1", "1,000 HBAR")
	assert.Equal(t, ActionProposalCreated, env.Action)

	d := f.ledger.lastDraft(t)
	assert.True(t, d.FundraisingEnabled)
	assert.Equal(t, int64(100000000000), d.FundingGoalTinybar)

	data, ok := env.Data.(*ProposalData)
	require.True(t, ok)
	assert.True(t, data.FundraisingEnabled)
	assert.Equal(t, int64(100000000000), data.FundingGoal)
	assert.Equal(t, "0.0.1234", data.Creator)

	st := f.state(t, "s1")
	assert.False(t, st.InWorkflow())
	assert.False(t, st.FundraisingEnabled)
	assert.Zero(t, st.FundingGoalTinybar)
	assert.NotNil(t, st.LatestRemovalAnalysis)
	a.Wait()
}

func TestUnauthorizedLeavesWorkflowUntouched(t *testing.T) {
	tests := []struct {
		name      string
		result    auth.Result
		wantReply string
	}{
		{name: "missing profile", result: auth.Result{Reason: auth.ReasonProfileNotFound, ProfileMissing: true}, wantReply: completeProfile},
		{name: "not government", result: auth.Result{Reason: auth.ReasonNotGovernment}, wantReply: updateProfile},
		{name: "no wallet", result: auth.Result{Reason: auth.ReasonWalletRequired}, wantReply: updateProfile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.seedAnalysis(t, "s1")
			require.NoError(t, f.store.Set(context.Background(), "s1", session.Patch{
				AwaitingFundraisingResponse: session.Bool(true),
			}))
			before := f.state(t, "s1")
			f.auth.result = tt.result
			a := f.agent(t)

			env := send(t, a, "s1", "yes")
			assert.Equal(t, ActionUnauthorized, env.Action)
			assert.Equal(t, tt.wantReply, env.Reply)
			assert.True(t, env.ShowProfileButton)
			assert.Equal(t, before, f.state(t, "s1"))
			assert.Empty(t, f.ledger.drafts)
		})
	}
}

func TestDeadlineFromOpeningMessage(t *testing.T) {
	f := newFixture()
	f.seedAnalysis(t, "s1")
	a := f.agent(t)

	send(t, a, "s1", "create proposal with deadline 25th october 2025")
	assert.Equal(t, "October 25, 2025", f.state(t, "s1").ProposalDeadline)

	env := send(t, a, "s1", "no")
	require.Equal(t, ActionProposalCreated, env.Action)
	assert.Equal(t, time.Date(2025, time.October, 25, 23, 59, 59, 0, time.UTC), f.ledger.lastDraft(t).Deadline)
	assert.Equal(t, "October 25, 2025", env.Data.(*ProposalData).EndDate)
	a.Wait()
}

func TestDefaultDeadline(t *testing.T) {
	f := newFixture()
	f.seedAnalysis(t, "s1")
	a := f.agent(t)

	send(t, a, "s1", "create a proposal")
	env := send(t, a, "s1", "no")
	assert.Equal(t, "November 30, 2025", env.Data.(*ProposalData).EndDate)
	a.Wait()
}

// The awaiting flags are never both set, whatever the user sends.
func TestWorkflowFlagsNeverBothSet(t *testing.T) {
	f := newFixture()
	f.ledger.connected = false
	a := f.agent(t)
	messages := []string{
		"create a proposal", "what happens if removed", "yes", "no", "hmm",
		"250 HBAR", "not sure", "hello", "create proposal with deadline 25th october 2025",
	}
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 300; i++ {
		msg := messages[rng.IntN(len(messages))]
		send(t, a, "s1", msg)
		st := f.state(t, "s1")
		require.False(t, st.AwaitingFundraisingResponse && st.AwaitingFundingGoal, "step %d after %q", i, msg)
	}
}

func TestConcurrentMessagesSameSession(t *testing.T) {
	f := newFixture()
	f.ledger.connected = false
	f.seedAnalysis(t, "s1")
	a := f.agent(t)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		msg := []string{"create a proposal", "yes", "42"}[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Handle(context.Background(), Request{Message: msg, SessionID: "s1", SelectedParkID: "p1", WalletAddress: "0.0.1234"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st := f.state(t, "s1")
	assert.False(t, st.AwaitingFundraisingResponse && st.AwaitingFundingGoal)
}
