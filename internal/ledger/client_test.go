package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/impact"
)

// bridge is a scripted stand-in for the ledger bridge service.
type bridge struct {
	mu       sync.Mutex
	requests map[string]map[string]any
	handlers map[string]http.HandlerFunc
}

func newBridge(t *testing.T) (*bridge, *Client) {
	t.Helper()
	b := &bridge{
		requests: map[string]map[string]any{},
		handlers: map[string]http.HandlerFunc{},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(body, &decoded)
		b.mu.Lock()
		b.requests[r.URL.Path] = decoded
		h, ok := b.handlers[r.Method+" "+r.URL.Path]
		b.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Options{BaseURL: srv.URL, Network: "testnet"}, zap.NewNop())
	return b, c
}

func (b *bridge) on(route string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[route] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (b *bridge) request(path string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[path]
}

func testDraft(deadline time.Time) Draft {
	return Draft{
		ParkID:      "p1",
		ParkName:    "Rock Creek",
		Deadline:    deadline,
		Description: "This park provides shade.",
		Analysis: impact.Analysis{
			ParkName:            "Rock Creek",
			NDVIBefore:          0.6,
			NDVIAfter:           0.5,
			PM25Before:          10,
			PM25After:           11,
			PM25IncreasePercent: 10,
			AffectedPopulation:  1500,
			Demographics:        impact.Demographics{Kids: 300, Adults: 900, Seniors: 300},
		},
		FundraisingEnabled: true,
		FundingGoalTinybar: 100000000000,
		Creator:            "0.0.1234",
	}
}

func TestIsConnected(t *testing.T) {
	b, c := newBridge(t)
	assert.False(t, c.IsConnected(context.Background()))

	b.on("GET /health", http.StatusOK, `{"status":"ok"}`)
	assert.True(t, c.IsConnected(context.Background()))

	unreachable := NewClient(Options{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	assert.False(t, unreachable.IsConnected(context.Background()))
}

func TestCreateProposalSuccess(t *testing.T) {
	b, c := newBridge(t)
	b.on("POST /api/contract/create-proposal", http.StatusOK,
		`{"success":true,"proposalId":7,"transactionId":"0.0.1@1700000000.123456789","status":"SUCCESS"}`)

	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	deadline := time.Date(2025, 10, 25, 23, 59, 59, 0, time.UTC)

	res, err := c.CreateProposal(context.Background(), testDraft(deadline))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(7), res.ProposalID)
	assert.Equal(t, "https://hashscan.io/testnet/transaction/0.0.1@1700000000.123456789", res.ExplorerURL)

	sent := b.request("/api/contract/create-proposal")
	require.NotNil(t, sent)
	assert.Equal(t, float64(deadline.Unix()), sent["endDate"])
	assert.Equal(t, "0.0.1234", sent["creator"])
	assert.Equal(t, true, sent["fundraisingEnabled"])
	assert.Equal(t, float64(100000000000), sent["fundingGoal"])

	env := sent["environmentalData"].(map[string]any)
	assert.Equal(t, float64(60000000), env["ndviBefore"])
	assert.Equal(t, float64(1000000000), env["pm25Before"])
	assert.Equal(t, float64(1000000000), env["vegetationLossPercent"])

	demo := sent["demographics"].(map[string]any)
	assert.Equal(t, float64(300), demo["children"])
	assert.Equal(t, float64(1500), demo["totalAffectedPopulation"])
}

func TestCreateProposalRejected(t *testing.T) {
	b, c := newBridge(t)
	b.on("POST /api/contract/create-proposal", http.StatusOK, `{"success":false,"error":"INSUFFICIENT_GAS"}`)

	res, err := c.CreateProposal(context.Background(), testDraft(time.Now().Add(90*24*time.Hour)))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "INSUFFICIENT_GAS", res.Error)
}

func TestCreateProposalTransportError(t *testing.T) {
	b, c := newBridge(t)
	b.on("POST /api/contract/create-proposal", http.StatusInternalServerError, `boom`)

	_, err := c.CreateProposal(context.Background(), testDraft(time.Now()))
	assert.Error(t, err)
}

func TestEndTimestampExtendsCloseDeadlines(t *testing.T) {
	_, c := newBridge(t)
	now := time.Date(2025, 11, 30, 23, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	want := now.Add(30*24*time.Hour + time.Hour).Unix()

	tests := []struct {
		name     string
		deadline time.Time
		want     int64
	}{
		{name: "past", deadline: now.Add(-24 * time.Hour), want: want},
		{name: "inside buffer", deadline: now.Add(30 * time.Minute), want: want},
		{name: "zero", deadline: time.Time{}, want: want},
		{name: "far enough", deadline: now.Add(2 * time.Hour), want: now.Add(2 * time.Hour).Unix()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.endTimestamp(tt.deadline))
		})
	}
}

func TestProposal(t *testing.T) {
	b, c := newBridge(t)
	b.on("GET /api/contract/proposal/3", http.StatusOK, `{"success":true,"proposal":{
		"id":3,"parkName":"Rock Creek","yesVotes":4,"noVotes":1,"endDate":1764547199,
		"environmentalData":{"ndviBefore":60000000,"pm25IncreasePercent":1250000000},
		"demographics":{"children":300}}}`)

	p, err := c.Proposal(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Rock Creek", p.ParkName)
	assert.Equal(t, "active", p.Status)
	assert.InDelta(t, 0.6, p.EnvironmentalData.NDVIBefore, 1e-9)
	assert.InDelta(t, 12.5, p.EnvironmentalData.PM25IncreasePercent, 1e-9)
	assert.True(t, p.Ended(time.Unix(1764547199, 0)))
	assert.False(t, p.Ended(time.Unix(1764547198, 0)))

	_, err = c.Proposal(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProposalIDsAndVotes(t *testing.T) {
	b, c := newBridge(t)
	b.on("GET /api/contract/proposals/active", http.StatusOK, `{"success":true,"proposalIds":[1,2]}`)
	b.on("GET /api/contract/has-voted/1/0.0.9", http.StatusOK, `{"success":true,"hasVoted":true}`)
	b.on("POST /api/contract/vote", http.StatusOK, `{"success":true,"transactionId":"tx1"}`)

	ids, err := c.ProposalIDs(context.Background(), StatusActive)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	voted, err := c.HasVoted(context.Background(), 1, "0.0.9")
	require.NoError(t, err)
	assert.True(t, voted)

	res, err := c.Vote(context.Background(), 1, true, "0.0.9")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "https://hashscan.io/testnet/transaction/tx1", res.ExplorerURL)
	assert.Equal(t, true, b.request("/api/contract/vote")["vote"])
}

func TestFunds(t *testing.T) {
	b, c := newBridge(t)
	b.on("GET /api/contract/donation-progress/2", http.StatusOK, `{"success":true,"raised":25,"goal":100,"percentage":25.004}`)
	b.on("POST /api/contract/withdraw-funds", http.StatusOK, `{"success":false,"error":"not owner"}`)

	progress, err := c.DonationProgress(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, DonationProgress{Raised: 25, Goal: 100, Percentage: 25}, progress)

	res, err := c.Withdraw(context.Background(), 2, "0.0.5")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "not owner", res.Error)
}

func TestAuditLog(t *testing.T) {
	b, c := newBridge(t)
	b.on("POST /api/hcs/create-topic", http.StatusOK, `{"success":true,"topicId":"0.0.4242"}`)
	b.on("POST /api/hcs/submit", http.StatusOK, `{"success":true,"transactionId":"tx"}`)

	log := NewAuditLog(c)
	topic, err := log.CreateChannel(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "0.0.4242", topic)
	assert.Equal(t, "ParkPulse Chat Session abc", b.request("/api/hcs/create-topic")["memo"])

	require.NoError(t, log.Append(context.Background(), topic, "User", "hello"))
	sent := b.request("/api/hcs/submit")
	assert.Equal(t, "User:hello", sent["message"])
	assert.Equal(t, "0.0.4242", sent["topicId"])

	b.on("POST /api/hcs/submit", http.StatusOK, `{"success":false,"error":"topic deleted"}`)
	assert.Error(t, log.Append(context.Background(), topic, "Agent", "hi"))
}
