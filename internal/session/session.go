// Package session keeps per-conversation workflow state across requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/parkpulse/parkpulse/internal/impact"
)

var ErrConflictingPhase = errors.New("session cannot await a fundraising choice and a funding goal at once")

// RemovalAnalysis is the most recent removal impact computed in a session.
type RemovalAnalysis struct {
	ParkID    string          `json:"parkId"`
	Analysis  impact.Analysis `json:"analysisData"`
	Timestamp time.Time       `json:"timestamp"`
}

// State is the mutable record kept for one session.
type State struct {
	AwaitingFundraisingResponse bool             `json:"awaitingFundraisingResponse,omitempty"`
	AwaitingFundingGoal         bool             `json:"awaitingFundingGoal,omitempty"`
	FundraisingEnabled          bool             `json:"fundraisingEnabled,omitempty"`
	FundingGoalTinybar          int64            `json:"fundingGoalTinybar,omitempty"`
	ProposalDeadline            string           `json:"proposalDeadline,omitempty"`
	LatestRemovalAnalysis       *RemovalAnalysis `json:"latestRemovalAnalysis,omitempty"`
	AuditTopicID                string           `json:"auditTopicId,omitempty"`
}

// InWorkflow reports whether the session is partway through the proposal
// conversation.
func (s State) InWorkflow() bool {
	return s.AwaitingFundraisingResponse || s.AwaitingFundingGoal
}

// Patch lists the fields to overwrite; nil fields are left alone.
type Patch struct {
	AwaitingFundraisingResponse *bool
	AwaitingFundingGoal         *bool
	FundraisingEnabled          *bool
	FundingGoalTinybar          *int64
	ProposalDeadline            *string
	LatestRemovalAnalysis       *RemovalAnalysis
	AuditTopicID                *string
}

// Key names a State field for Clear.
type Key string

const (
	KeyAwaitingFundraisingResponse Key = "awaitingFundraisingResponse"
	KeyAwaitingFundingGoal         Key = "awaitingFundingGoal"
	KeyFundraisingEnabled          Key = "fundraisingEnabled"
	KeyFundingGoal                 Key = "fundingGoal"
	KeyProposalDeadline            Key = "proposalDeadline"
	KeyLatestRemovalAnalysis       Key = "latestRemovalAnalysis"
	KeyAuditTopicID                Key = "auditTopicId"
)

// WorkflowKeys are cleared whenever a proposal conversation ends.
var WorkflowKeys = []Key{
	KeyAwaitingFundraisingResponse,
	KeyAwaitingFundingGoal,
	KeyFundraisingEnabled,
	KeyFundingGoal,
	KeyProposalDeadline,
}

// Store maps session IDs to State. Get creates an empty record on first
// access. Implementations must be safe for concurrent use on different keys.
type Store interface {
	Get(ctx context.Context, id string) (State, error)
	Set(ctx context.Context, id string, patch Patch) error
	Clear(ctx context.Context, id string, keys ...Key) error
}

// Bool and friends build Patch fields inline.
func Bool(b bool) *bool       { return &b }
func Int64(n int64) *int64    { return &n }
func String(s string) *string { return &s }

// apply merges p into s. Setting one awaiting flag clears the other.
func (s *State) apply(p Patch) error {
	fundraising := p.AwaitingFundraisingResponse != nil && *p.AwaitingFundraisingResponse
	goal := p.AwaitingFundingGoal != nil && *p.AwaitingFundingGoal
	if fundraising && goal {
		return ErrConflictingPhase
	}

	if p.AwaitingFundraisingResponse != nil {
		s.AwaitingFundraisingResponse = *p.AwaitingFundraisingResponse
	}
	if p.AwaitingFundingGoal != nil {
		s.AwaitingFundingGoal = *p.AwaitingFundingGoal
	}
	if fundraising {
		s.AwaitingFundingGoal = false
	}
	if goal {
		s.AwaitingFundraisingResponse = false
	}
	if p.FundraisingEnabled != nil {
		s.FundraisingEnabled = *p.FundraisingEnabled
	}
	if p.FundingGoalTinybar != nil {
		s.FundingGoalTinybar = *p.FundingGoalTinybar
	}
	if p.ProposalDeadline != nil {
		s.ProposalDeadline = *p.ProposalDeadline
	}
	if p.LatestRemovalAnalysis != nil {
		ra := *p.LatestRemovalAnalysis
		s.LatestRemovalAnalysis = &ra
	}
	if p.AuditTopicID != nil {
		s.AuditTopicID = *p.AuditTopicID
	}
	return nil
}

func (s *State) clear(keys []Key) {
	for _, k := range keys {
		switch k {
		case KeyAwaitingFundraisingResponse:
			s.AwaitingFundraisingResponse = false
		case KeyAwaitingFundingGoal:
			s.AwaitingFundingGoal = false
		case KeyFundraisingEnabled:
			s.FundraisingEnabled = false
		case KeyFundingGoal:
			s.FundingGoalTinybar = 0
		case KeyProposalDeadline:
			s.ProposalDeadline = ""
		case KeyLatestRemovalAnalysis:
			s.LatestRemovalAnalysis = nil
		case KeyAuditTopicID:
			s.AuditTopicID = ""
		}
	}
}
