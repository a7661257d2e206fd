package ledger

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/impact"
)

// Scale is the fixed-point factor the contract uses for decimals and the
// number of tinybar in one HBAR.
const Scale = 1e8

// Minimum lead time before a deadline; closer deadlines are pushed out.
const (
	deadlineBuffer    = time.Hour
	deadlineExtension = 30 * 24 * time.Hour
)

// Draft is a proposal ready for submission.
type Draft struct {
	ParkID             string
	ParkName           string
	Summary            string
	Deadline           time.Time
	Analysis           impact.Analysis
	Description        string
	FundraisingEnabled bool
	FundingGoalTinybar int64
	Creator            string
	CreatedAt          time.Time
}

type environmentalPayload struct {
	NDVIBefore            int64 `json:"ndviBefore"`
	NDVIAfter             int64 `json:"ndviAfter"`
	PM25Before            int64 `json:"pm25Before"`
	PM25After             int64 `json:"pm25After"`
	PM25IncreasePercent   int64 `json:"pm25IncreasePercent"`
	VegetationLossPercent int64 `json:"vegetationLossPercent"`
}

type demographicsPayload struct {
	Children                int64 `json:"children"`
	Adults                  int64 `json:"adults"`
	Seniors                 int64 `json:"seniors"`
	TotalAffectedPopulation int64 `json:"totalAffectedPopulation"`
}

type createPayload struct {
	ParkName           string               `json:"parkName"`
	ParkID             string               `json:"parkId"`
	Description        string               `json:"description"`
	EndDate            int64                `json:"endDate"`
	EnvironmentalData  environmentalPayload `json:"environmentalData"`
	Demographics       demographicsPayload  `json:"demographics"`
	Creator            *string              `json:"creator"`
	FundraisingEnabled bool                 `json:"fundraisingEnabled"`
	FundingGoal        int64                `json:"fundingGoal"`
}

func scaled(v float64) int64 {
	return int64(math.Round(v * Scale))
}

// endTimestamp applies the minimum lead time to the draft deadline.
func (c *Client) endTimestamp(deadline time.Time) int64 {
	now := c.now()
	if deadline.IsZero() || !deadline.After(now.Add(deadlineBuffer)) {
		c.logger.Warn("deadline too close, extending", zap.Time("deadline", deadline))
		return now.Add(deadlineExtension + deadlineBuffer).Unix()
	}
	return deadline.Unix()
}

func (c *Client) payload(d Draft) createPayload {
	a := d.Analysis
	p := createPayload{
		ParkName:    d.ParkName,
		ParkID:      d.ParkID,
		Description: d.Description,
		EndDate:     c.endTimestamp(d.Deadline),
		EnvironmentalData: environmentalPayload{
			NDVIBefore:            scaled(a.NDVIBefore),
			NDVIAfter:             scaled(a.NDVIAfter),
			PM25Before:            scaled(a.PM25Before),
			PM25After:             scaled(a.PM25After),
			PM25IncreasePercent:   scaled(a.PM25IncreasePercent),
			VegetationLossPercent: scaled(a.VegetationLossPercent()),
		},
		Demographics: demographicsPayload{
			Children:                a.Demographics.Kids,
			Adults:                  a.Demographics.Adults,
			Seniors:                 a.Demographics.Seniors,
			TotalAffectedPopulation: a.AffectedPopulation,
		},
		FundraisingEnabled: d.FundraisingEnabled,
		FundingGoal:        d.FundingGoalTinybar,
	}
	if d.Creator != "" {
		creator := d.Creator
		p.Creator = &creator
	}
	return p
}

// CreateProposal submits d. A transport failure or unexpected status is
// returned as an error; a refusal by the bridge is a Result with Success
// false.
func (c *Client) CreateProposal(ctx context.Context, d Draft) (Result, error) {
	var resp struct {
		envelope
		ProposalID      *int64 `json:"proposalId"`
		ProposalIDSnake *int64 `json:"proposal_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/contract/create-proposal", c.payload(d), &resp); err != nil {
		return Result{}, fmt.Errorf("failed to create proposal: %w", err)
	}

	r := c.result(resp.envelope)
	switch {
	case resp.ProposalID != nil:
		r.ProposalID = *resp.ProposalID
	case resp.ProposalIDSnake != nil:
		r.ProposalID = *resp.ProposalIDSnake
	}
	if r.Success {
		c.logger.Info("proposal submitted",
			zap.String("park", d.ParkName),
			zap.Int64("proposal", r.ProposalID),
			zap.String("tx", r.TransactionID),
		)
	}
	return r, nil
}

// Status groups proposals by voting outcome.
type Status string

const (
	StatusActive   Status = "active"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// EnvironmentalData holds the decimal values decoded from the contract.
type EnvironmentalData struct {
	NDVIBefore            float64 `json:"ndviBefore"`
	NDVIAfter             float64 `json:"ndviAfter"`
	PM25Before            float64 `json:"pm25Before"`
	PM25After             float64 `json:"pm25After"`
	PM25IncreasePercent   float64 `json:"pm25IncreasePercent"`
	VegetationLossPercent float64 `json:"vegetationLossPercent"`
}

type Proposal struct {
	ID                int64             `json:"id"`
	ParkName          string            `json:"parkName"`
	ParkID            string            `json:"parkId"`
	Description       string            `json:"description"`
	YesVotes          int64             `json:"yesVotes"`
	NoVotes           int64             `json:"noVotes"`
	EndDate           int64             `json:"endDate"`
	Creator           string            `json:"creator"`
	Status            string            `json:"status"`
	EnvironmentalData EnvironmentalData `json:"environmentalData"`
	Demographics      map[string]any    `json:"demographics"`
}

// Ended reports whether voting time has passed.
func (p Proposal) Ended(now time.Time) bool {
	return p.EndDate > 0 && now.Unix() >= p.EndDate
}

type rawProposal struct {
	ID                int64              `json:"id"`
	ParkName          string             `json:"parkName"`
	ParkID            string             `json:"parkId"`
	Description       string             `json:"description"`
	YesVotes          int64              `json:"yesVotes"`
	NoVotes           int64              `json:"noVotes"`
	EndDate           int64              `json:"endDate"`
	Creator           string             `json:"creator"`
	Status            string             `json:"status"`
	EnvironmentalData map[string]float64 `json:"environmentalData"`
	Demographics      map[string]any     `json:"demographics"`
}

func (r rawProposal) decode() Proposal {
	env := r.EnvironmentalData
	status := r.Status
	if status == "" {
		status = string(StatusActive)
	}
	demographics := r.Demographics
	if demographics == nil {
		demographics = map[string]any{}
	}
	return Proposal{
		ID:          r.ID,
		ParkName:    r.ParkName,
		ParkID:      r.ParkID,
		Description: r.Description,
		YesVotes:    r.YesVotes,
		NoVotes:     r.NoVotes,
		EndDate:     r.EndDate,
		Creator:     r.Creator,
		Status:      status,
		EnvironmentalData: EnvironmentalData{
			NDVIBefore:            env["ndviBefore"] / Scale,
			NDVIAfter:             env["ndviAfter"] / Scale,
			PM25Before:            env["pm25Before"] / Scale,
			PM25After:             env["pm25After"] / Scale,
			PM25IncreasePercent:   env["pm25IncreasePercent"] / Scale,
			VegetationLossPercent: env["vegetationLossPercent"] / Scale,
		},
		Demographics: demographics,
	}
}

// Proposal fetches one proposal. ErrNotFound when the bridge has no record.
func (c *Client) Proposal(ctx context.Context, id int64) (*Proposal, error) {
	var resp struct {
		envelope
		Proposal *rawProposal `json:"proposal"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/contract/proposal/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Proposal == nil {
		return nil, ErrNotFound
	}
	p := resp.Proposal.decode()
	return &p, nil
}

// ProposalIDs lists the proposals in status.
func (c *Client) ProposalIDs(ctx context.Context, status Status) ([]int64, error) {
	var resp struct {
		envelope
		ProposalIDs []int64 `json:"proposalIds"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/contract/proposals/"+string(status), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list %s proposals: %w", status, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("failed to list %s proposals: %s", status, resp.Error)
	}
	return resp.ProposalIDs, nil
}

func (c *Client) HasVoted(ctx context.Context, id int64, address string) (bool, error) {
	var resp struct {
		envelope
		HasVoted bool `json:"hasVoted"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/contract/has-voted/%d/%s", id, address), nil, &resp); err != nil {
		return false, err
	}
	return resp.Success && resp.HasVoted, nil
}

func (c *Client) Vote(ctx context.Context, id int64, support bool, voter string) (Result, error) {
	return c.post(ctx, "/api/contract/vote", map[string]any{
		"proposalId": id,
		"vote":       support,
		"voter":      voter,
	})
}

// Close finalizes voting on a proposal.
func (c *Client) Close(ctx context.Context, id int64) (Result, error) {
	return c.post(ctx, "/api/contract/close-proposal", map[string]any{"proposalId": id})
}

// SetFundingGoal sets the goal, in HBAR, of an accepted proposal.
func (c *Client) SetFundingGoal(ctx context.Context, id int64, goalHBAR float64) (Result, error) {
	return c.post(ctx, "/api/contract/set-funding-goal", map[string]any{
		"proposalId": id,
		"goal":       goalHBAR,
	})
}

func (c *Client) Donate(ctx context.Context, id int64, amountHBAR float64) (Result, error) {
	return c.post(ctx, "/api/contract/donate", map[string]any{
		"proposalId": id,
		"amount":     amountHBAR,
	})
}

// Withdraw moves raised funds to recipient. Owner only.
func (c *Client) Withdraw(ctx context.Context, id int64, recipient string) (Result, error) {
	return c.post(ctx, "/api/contract/withdraw-funds", map[string]any{
		"proposalId": id,
		"recipient":  recipient,
	})
}

type DonationProgress struct {
	Raised     float64 `json:"raised"`
	Goal       float64 `json:"goal"`
	Percentage float64 `json:"percentage"`
}

func (c *Client) DonationProgress(ctx context.Context, id int64) (DonationProgress, error) {
	var resp struct {
		envelope
		DonationProgress
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/contract/donation-progress/%d", id), nil, &resp); err != nil {
		return DonationProgress{}, err
	}
	if !resp.Success {
		return DonationProgress{}, fmt.Errorf("donation progress unavailable: %s", resp.Error)
	}
	resp.Percentage = math.Round(resp.Percentage*100) / 100
	return resp.DonationProgress, nil
}

// ContractInfo returns the bridge's description of the deployed contract.
func (c *Client) ContractInfo(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/contract/info", nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get contract info: %w", err)
	}
	return info, nil
}

func (c *Client) post(ctx context.Context, path string, in any) (Result, error) {
	var resp envelope
	if err := c.do(ctx, http.MethodPost, path, in, &resp); err != nil {
		return Result{}, err
	}
	return c.result(resp), nil
}
