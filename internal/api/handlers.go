package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parkpulse/parkpulse/internal/agent"
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/impact"
	"github.com/parkpulse/parkpulse/internal/ledger"
)

const serverError = "Server error"

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "ParkPulse.ai API",
		"network": a.ledger.Network(),
		"endpoints": []string{
			"POST /api/agent",
			"GET /api/parks/{zipcode}",
			"GET /api/proposals",
			"GET /api/proposals/{id}",
			"GET /api/proposals/{id}/donation-progress",
			"GET /api/proposals/{id}/votes/{address}",
			"POST /api/proposals/{id}/vote",
			"POST /api/proposals/{id}/donate",
			"GET /api/contract-info",
			"GET /health",
			"GET /metrics",
		},
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type agentRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	UIContext struct {
		SelectedParkID string `json:"selectedParkId"`
	} `json:"uiContext"`
	WalletAddress string `json:"walletAddress"`
}

func (a *API) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "message is required"})
		return
	}

	env, err := a.agent.Handle(r.Context(), agent.Request{
		Message:        req.Message,
		SessionID:      req.SessionID,
		SelectedParkID: req.UIContext.SelectedParkID,
		WalletAddress:  req.WalletAddress,
	})
	if err != nil {
		a.logger.Error("agent request failed", zap.String("session", req.SessionID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": serverError})
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (a *API) handleParks(w http.ResponseWriter, r *http.Request) {
	zip := mux.Vars(r)["zipcode"]
	fc, err := a.parks.ParksByLocation(r.Context(), db.LocationQuery{Zip: zip})
	if err != nil {
		a.logger.Error("failed to load parks", zap.String("zip", zip), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to load parks"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"featureCollection": fc,
		"count":             len(fc.Features),
	})
}

func (a *API) handleContractInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.ledger.ContractInfo(r.Context())
	if err != nil {
		a.ledgerFailed(w, "failed to get contract info", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleListProposals merges the three status lists, fetched concurrently,
// and loads every proposal once.
func (a *API) handleListProposals(w http.ResponseWriter, r *http.Request) {
	statuses := []ledger.Status{ledger.StatusActive, ledger.StatusAccepted, ledger.StatusRejected}
	lists := make([][]int64, len(statuses))

	g, ctx := errgroup.WithContext(r.Context())
	for i, status := range statuses {
		g.Go(func() error {
			ids, err := a.ledger.ProposalIDs(ctx, status)
			lists[i] = ids
			return err
		})
	}
	if err := g.Wait(); err != nil {
		a.ledgerFailed(w, "failed to list proposals", err)
		return
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, list := range lists {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	details := make([]*ledger.Proposal, len(ids))
	g, ctx = errgroup.WithContext(r.Context())
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			p, err := a.ledger.Proposal(ctx, id)
			if errors.Is(err, ledger.ErrNotFound) {
				return nil
			}
			details[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		a.ledgerFailed(w, "failed to load proposals", err)
		return
	}

	proposals := make([]ledger.Proposal, 0, len(details))
	for _, p := range details {
		if p != nil {
			proposals = append(proposals, *p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"proposals": proposals,
		"count":     len(proposals),
	})
}

func (a *API) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	p, err := a.ledger.Proposal(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "proposal not found"})
		return
	}
	if err != nil {
		a.ledgerFailed(w, "failed to get proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "proposal": p})
}

func (a *API) handleDonationProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	progress, err := a.ledger.DonationProgress(r.Context(), id)
	if err != nil {
		a.ledgerFailed(w, "failed to get donation progress", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "progress": progress})
}

func (a *API) handleHasVoted(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	voted, err := a.ledger.HasVoted(r.Context(), id, mux.Vars(r)["address"])
	if err != nil {
		a.ledgerFailed(w, "failed to check vote", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "hasVoted": voted})
}

func (a *API) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Vote  bool   `json:"vote"`
		Voter string `json:"voter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Voter == "" {
		http.Error(w, "voter is required", http.StatusBadRequest)
		return
	}

	res, err := a.ledger.Vote(r.Context(), id, req.Vote, req.Voter)
	a.writeResult(w, "failed to vote", res, err)
}

func (a *API) handleDonate(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	res, err := a.ledger.Donate(r.Context(), id, req.Amount)
	a.writeResult(w, "failed to donate", res, err)
}

type createProposalRequest struct {
	ParkID             string          `json:"parkId"`
	ParkName           string          `json:"parkName"`
	Description        string          `json:"description"`
	Summary            string          `json:"summary"`
	EndDate            string          `json:"endDate"`
	Analysis           impact.Analysis `json:"analysisData"`
	FundraisingEnabled bool            `json:"fundraisingEnabled"`
	FundingGoal        float64         `json:"fundingGoal"`
}

// parseEndDate accepts RFC 3339 or "January 2, 2006". Empty means the
// ledger default.
func parseEndDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("January 2, 2006", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(24*time.Hour - time.Second), nil
}

func (a *API) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParkID == "" || req.ParkName == "" {
		http.Error(w, "parkId and parkName are required", http.StatusBadRequest)
		return
	}
	if req.FundingGoal < 0 {
		http.Error(w, "fundingGoal must not be negative", http.StatusBadRequest)
		return
	}
	deadline, err := parseEndDate(req.EndDate)
	if err != nil {
		http.Error(w, "invalid endDate", http.StatusBadRequest)
		return
	}
	summary := req.Summary
	if summary == "" {
		summary = req.Description
	}

	res, err := a.ledger.CreateProposal(r.Context(), ledger.Draft{
		ParkID:             req.ParkID,
		ParkName:           req.ParkName,
		Summary:            summary,
		Deadline:           deadline,
		Analysis:           req.Analysis,
		Description:        req.Description,
		FundraisingEnabled: req.FundraisingEnabled,
		FundingGoalTinybar: int64(math.Round(req.FundingGoal * ledger.Scale)),
		Creator:            claims.WalletAddress,
		CreatedAt:          time.Now(),
	})
	a.writeResult(w, "failed to create proposal", res, err)
}

func (a *API) handleCloseProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	res, err := a.ledger.Close(r.Context(), id)
	a.writeResult(w, "failed to close proposal", res, err)
}

func (a *API) handleFundingGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Goal float64 `json:"goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Goal <= 0 {
		http.Error(w, "goal must be positive", http.StatusBadRequest)
		return
	}

	res, err := a.ledger.SetFundingGoal(r.Context(), id, req.Goal)
	a.writeResult(w, "failed to set funding goal", res, err)
}

func (a *API) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(w, r)
	if !ok {
		return
	}
	var req struct {
		Recipient string `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Recipient == "" {
		http.Error(w, "recipient is required", http.StatusBadRequest)
		return
	}

	res, err := a.ledger.Withdraw(r.Context(), id, req.Recipient)
	a.writeResult(w, "failed to withdraw funds", res, err)
}

// Helper functions
func proposalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid proposal id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeResult answers with the bridge result. A refusal is still a 200; a
// transport failure is a 502.
func (a *API) writeResult(w http.ResponseWriter, what string, res ledger.Result, err error) {
	if err != nil {
		a.ledgerFailed(w, what, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) ledgerFailed(w http.ResponseWriter, what string, err error) {
	a.logger.Error(what, zap.Error(err))
	writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": "ledger unavailable"})
}
