package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Proposal record statuses.
const (
	ProposalSubmitted      = "submitted"
	ProposalLocalOnly      = "local_only"
	ProposalLedgerRejected = "ledger_rejected"
	ProposalLedgerError    = "ledger_error"
)

// LocalProposal is the local record kept for every submission attempt.
type LocalProposal struct {
	ID                 int64
	ParkID             string
	ParkName           string
	Creator            string
	Deadline           time.Time
	FundraisingEnabled bool
	FundingGoalTinybar int64
	Description        string
	Summary            string
	Analysis           any
	Status             string
	LedgerProposalID   *int64
	TransactionID      *string
	Error              *string
}

func (db *DB) RecordProposal(ctx context.Context, p LocalProposal) error {
	analysis, err := json.Marshal(p.Analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO local_proposals (park_id, park_name, creator, deadline, fundraising_enabled,
			funding_goal_tinybar, description, summary, analysis, status,
			ledger_proposal_id, transaction_id, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ParkID, p.ParkName, p.Creator, p.Deadline, p.FundraisingEnabled,
		p.FundingGoalTinybar, p.Description, p.Summary, analysis, p.Status,
		p.LedgerProposalID, p.TransactionID, p.Error,
	)
	return err
}
