// Package notify delivers proposal notices to residents and community
// channels.
package notify

// Notice describes a newly submitted proposal for one recipient.
type Notice struct {
	Recipient     string
	RecipientName string
	ParkName      string
	ProposalID    int64
	Deadline      string
	Description   string
	ExplorerURL   string
}
