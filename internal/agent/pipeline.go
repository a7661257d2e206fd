package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/impact"
	"github.com/parkpulse/parkpulse/internal/ledger"
	"github.com/parkpulse/parkpulse/internal/llm"
	"github.com/parkpulse/parkpulse/internal/notify"
	"github.com/parkpulse/parkpulse/internal/session"
)

const (
	maxDescriptionLen = 600
	minEmailSummary   = 230
	maxEmailSummary   = 240

	cannedDescription = "This park provides essential green space serving thousands of local residents including families with children and seniors. Its removal would result in significantly reduced air quality, decreased vegetation health, and loss of recreational opportunities for the surrounding community. The park serves as a vital gathering place where neighbors connect and children play safely. The environmental impact would extend beyond the immediate area, affecting air quality and reducing the overall livability of the neighborhood for current and future residents."
	summaryPadding    = " Environmental impact assessment indicates significant changes."
)

// ProposalData is the envelope payload of a proposal_created reply.
type ProposalData struct {
	ParkID              string            `json:"parkId"`
	ParkName            string            `json:"parkName"`
	ProposalSummary     string            `json:"proposalSummary"`
	EndDate             string            `json:"endDate"`
	AnalysisData        impact.Analysis   `json:"analysisData"`
	FrontendDescription string            `json:"frontendDescription"`
	Timestamp           time.Time         `json:"timestamp"`
	FundraisingEnabled  bool              `json:"fundraisingEnabled"`
	FundingGoal         int64             `json:"fundingGoal"`
	Creator             string            `json:"creator,omitempty"`
	Blockchain          *BlockchainStatus `json:"blockchain"`
}

// BlockchainStatus reports what happened to the ledger submission.
type BlockchainStatus struct {
	Enabled bool `json:"enabled"`
	ledger.Result
}

// submitProposal builds the draft from st, submits it and ends the
// conversation. Ledger trouble never fails the request; it only changes the
// reply.
func (a *Agent) submitProposal(ctx context.Context, t *turn, st session.State) (Envelope, error) {
	ra := st.LatestRemovalAnalysis
	analysis := ra.Analysis
	parkName := analysis.ParkName
	if parkName == "" {
		parkName = "Selected Park"
	}
	parkID := ra.ParkID
	if parkID == "" {
		parkID = t.req.SelectedParkID
	}
	deadline := a.resolveDeadline(t.req.Message, st.ProposalDeadline)
	endDate := formatDeadline(deadline)

	draft := ledger.Draft{
		ParkID:             parkID,
		ParkName:           parkName,
		Summary:            proposalSummary(parkName, endDate, analysis, ra.Timestamp),
		Deadline:           deadline,
		Analysis:           analysis,
		Description:        a.proposalDescription(ctx, parkName),
		FundraisingEnabled: st.FundraisingEnabled,
		FundingGoalTinybar: st.FundingGoalTinybar,
		Creator:            t.req.WalletAddress,
		CreatedAt:          a.now(),
	}
	data := &ProposalData{
		ParkID:              draft.ParkID,
		ParkName:            draft.ParkName,
		ProposalSummary:     draft.Summary,
		EndDate:             endDate,
		AnalysisData:        analysis,
		FrontendDescription: draft.Description,
		Timestamp:           draft.CreatedAt,
		FundraisingEnabled:  draft.FundraisingEnabled,
		FundingGoal:         draft.FundingGoalTinybar,
		Creator:             draft.Creator,
	}

	created := fmt.Sprintf("Community proposal created for %s with deadline %s.", parkName, endDate)
	logFields := []zap.Field{zap.String("session", t.sessionID), zap.String("park", parkID)}

	var (
		text   string
		status string
		result ledger.Result
		errMsg string
	)
	if !a.ledger.IsConnected(ctx) {
		a.logger.Warn("ledger not connected, proposal kept locally", logFields...)
		status = db.ProposalLocalOnly
		data.Blockchain = &BlockchainStatus{Enabled: false}
		text = created + " The proposal includes comprehensive environmental impact analysis and is ready for community review.\n\n⚠️ Note: Blockchain submission disabled - proposal created locally only."
	} else {
		res, err := a.ledger.CreateProposal(ctx, draft)
		switch {
		case err != nil:
			a.logger.Error("ledger submission failed", append(logFields, zap.Error(err))...)
			status = db.ProposalLedgerError
			errMsg = err.Error()
			data.Blockchain = &BlockchainStatus{Enabled: true, Result: ledger.Result{Error: "ledger unavailable"}}
			text = created + " The proposal includes comprehensive environmental impact analysis and is ready for community review.\n\n⚠️ Note: Blockchain submission failed (ledger unavailable) - proposal created locally only."
		case !res.Success:
			a.logger.Warn("ledger rejected proposal", append(logFields, zap.String("error", res.Error))...)
			status = db.ProposalLedgerRejected
			result = res
			errMsg = res.Error
			data.Blockchain = &BlockchainStatus{Enabled: true, Result: res}
			text = created + "\n\n⚠️ **Blockchain submission failed:** " + res.Error + "\n\nThe proposal has been created locally and includes comprehensive environmental impact analysis. It is ready for community review, but was not submitted to the blockchain."
		default:
			status = db.ProposalSubmitted
			result = res
			data.Blockchain = &BlockchainStatus{Enabled: true, Result: res}
			text = created + "\n\n✅ **Successfully submitted to the Hedera ledger!**\n" +
				"🔗 Transaction: " + shortHash(res.TransactionID) + "\n" +
				"🌐 View on explorer: " + res.ExplorerURL + "\n\n" +
				"The proposal includes comprehensive environmental impact analysis and is ready for community review."
		}
	}
	a.metrics.Proposal(status)

	// The submission outcome is already fixed at this point.
	if err := a.sessions.Clear(ctx, t.sessionID, session.WorkflowKeys...); err != nil {
		a.logger.Error("failed to end proposal conversation", append(logFields, zap.Error(err))...)
	}
	a.recordProposal(ctx, draft, status, result, errMsg)

	if status == db.ProposalSubmitted {
		a.background(ctx, func(ctx context.Context) {
			a.notifyResidents(ctx, draft, result, endDate)
		})
		a.background(ctx, func(ctx context.Context) {
			a.announce(ctx, draft, result, endDate)
		})
	}

	env := reply(ActionProposalCreated, text)
	env.Data = data
	return env, nil
}

func (a *Agent) recordProposal(ctx context.Context, d ledger.Draft, status string, res ledger.Result, errMsg string) {
	rec := db.LocalProposal{
		ParkID:             d.ParkID,
		ParkName:           d.ParkName,
		Creator:            d.Creator,
		Deadline:           d.Deadline,
		FundraisingEnabled: d.FundraisingEnabled,
		FundingGoalTinybar: d.FundingGoalTinybar,
		Description:        d.Description,
		Summary:            d.Summary,
		Analysis:           d.Analysis,
		Status:             status,
	}
	if res.Success {
		id := res.ProposalID
		rec.LedgerProposalID = &id
		if res.TransactionID != "" {
			tx := res.TransactionID
			rec.TransactionID = &tx
		}
	}
	if errMsg != "" {
		rec.Error = &errMsg
	}
	if err := a.parks.RecordProposal(ctx, rec); err != nil {
		a.logger.Error("failed to record proposal locally", zap.String("park", d.ParkID), zap.Error(err))
	}
}

// shortHash abbreviates a transaction ID for chat display.
func shortHash(h string) string {
	if len(h) <= 18 {
		return h
	}
	return h[:10] + "..." + h[len(h)-8:]
}

// proposalDescription asks the writer for the public description shown on
// the proposal card. It is never longer than maxDescriptionLen.
func (a *Agent) proposalDescription(ctx context.Context, parkName string) string {
	if a.writer == nil {
		return cannedDescription
	}
	prompt := fmt.Sprintf(`Generate a neutral, objective 600-character description for a community proposal about %s.

Environmental data:
- Vegetation health would decline significantly
- Air quality would worsen with increased pollution
- Thousands of residents would lose access to green space
- Community demographics include families with children and seniors

Requirements:
- Start with "This park"
- Write in a factual, descriptive style
- Describe what the park provides and potential impacts
- Mention environmental and health impacts WITHOUT using specific numbers
- Keep it around 600 characters (can be between 550-600)
- Be neutral and objective, avoid advocacy language
- Present facts about impacts, not calls to action`, parkName)

	text, err := a.writer.Generate(ctx, llm.Request{Prompt: prompt})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		a.logger.Warn("failed to generate proposal description", zap.String("park", parkName), zap.Error(err))
		return cannedDescription
	}
	return truncateRunes(text, maxDescriptionLen)
}

// truncateRunes shortens s to at most n characters, ending in "...".
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// emailSummary is the short data summary sent to residents.
func (a *Agent) emailSummary(ctx context.Context, analysis impact.Analysis, parkName string) string {
	fallback := fmt.Sprintf("%s: NDVI %g→%g, PM2.5 +%g%%", parkName, analysis.NDVIBefore, analysis.NDVIAfter, analysis.PM25IncreasePercent)
	if a.writer == nil {
		return fallback
	}
	prompt := fmt.Sprintf(`Create a neutral data summary for a park proposal focusing only on NDVI and PM2.5 metrics.

Key data points to include:
- Park name: %s
- NDVI change: %g → %g
- PM2.5 increase: %g%%

Requirements:
- Must be between 230-240 characters exactly
- Only include NDVI and PM2.5 data
- Neutral factual tone only
- No emotional words or judgments
- Include exact numerical values

Return only the factual summary.`, parkName, analysis.NDVIBefore, analysis.NDVIAfter, analysis.PM25IncreasePercent)

	text, err := a.writer.Generate(ctx, llm.Request{Prompt: prompt})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		a.logger.Warn("failed to generate email summary", zap.String("park", parkName), zap.Error(err))
		return fallback
	}
	return fitSummary(text)
}

// fitSummary pads or cuts s into the email summary length range.
func fitSummary(s string) string {
	if utf8.RuneCountInString(s) < minEmailSummary {
		s += summaryPadding
	}
	if utf8.RuneCountInString(s) > maxEmailSummary {
		s = string([]rune(s)[:maxEmailSummary])
	}
	return s
}

// notifyResidents emails every resident registered in the park's ZIP code.
// One failed recipient does not stop the others.
func (a *Agent) notifyResidents(ctx context.Context, d ledger.Draft, res ledger.Result, endDate string) {
	if a.notifier == nil {
		return
	}
	log := a.logger.With(zap.Int64("proposal", res.ProposalID), zap.String("park", d.ParkID))

	zip := d.Analysis.ParkZip
	if zip == "" && d.ParkID != "" {
		z, err := a.parks.ParkZip(ctx, d.ParkID)
		if err != nil {
			log.Error("failed to look up park zip", zap.Error(err))
		}
		zip = z
	}
	if zip == "" {
		log.Warn("could not determine park zip code, no emails sent")
		return
	}

	residents, err := a.parks.ResidentsByZip(ctx, zip)
	if err != nil {
		log.Error("failed to load residents", zap.String("zip", zip), zap.Error(err))
		return
	}
	if len(residents) == 0 {
		log.Info("no residents registered for zip", zap.String("zip", zip))
		return
	}

	summary := a.emailSummary(ctx, d.Analysis, d.ParkName)
	sent := 0
	for _, r := range residents {
		err := a.notifier.Send(ctx, notify.Notice{
			Recipient:     r.Email,
			RecipientName: r.Name,
			ParkName:      d.ParkName,
			ProposalID:    res.ProposalID,
			Deadline:      endDate,
			Description:   summary,
			ExplorerURL:   res.ExplorerURL,
		})
		if err != nil {
			a.metrics.Notification("failed")
			log.Warn("failed to send proposal email", zap.String("recipient", r.Email), zap.Error(err))
			continue
		}
		a.metrics.Notification("sent")
		sent++
	}
	log.Info("proposal emails sent", zap.String("zip", zip), zap.Int("sent", sent), zap.Int("residents", len(residents)))
}

func (a *Agent) announce(ctx context.Context, d ledger.Draft, res ledger.Result, endDate string) {
	if a.announcer == nil {
		return
	}
	err := a.announcer.Announce(ctx, notify.Notice{
		ParkName:    d.ParkName,
		ProposalID:  res.ProposalID,
		Deadline:    endDate,
		Description: d.Description,
		ExplorerURL: res.ExplorerURL,
	})
	if err != nil {
		a.logger.Warn("failed to announce proposal", zap.Int64("proposal", res.ProposalID), zap.Error(err))
	}
}

// proposalSummary renders the markdown proposal body stored on the ledger
// record.
func proposalSummary(parkName, endDate string, a impact.Analysis, analyzedAt time.Time) string {
	loss := "Unknown"
	lossHeadline := "Significant"
	if a.NDVIBefore != 0 && a.NDVIAfter != 0 {
		loss = printer.Sprintf("%.1f", a.VegetationLossPercent())
		lossHeadline = loss
	}
	stamp := "recent analysis"
	if !analyzedAt.IsZero() {
		stamp = analyzedAt.Format(time.RFC3339)
	}

	var b strings.Builder
	b.WriteString("🏛️ **COMMUNITY PROPOSAL: PARK PROTECTION INITIATIVE**\n\n")
	fmt.Fprintf(&b, "**Park:** %s\n**Proposal Deadline:** %s\n**Status:** OPEN FOR COMMUNITY INPUT\n\n---\n\n", parkName, endDate)
	b.WriteString("**📊 ENVIRONMENTAL IMPACT ANALYSIS**\n\n")
	b.WriteString("**Vegetation Health Impact:**\n")
	fmt.Fprintf(&b, "• Current NDVI: %g\n• Post-removal NDVI: %g\n• Vegetation loss: %s%%\n\n", a.NDVIBefore, a.NDVIAfter, loss)
	b.WriteString("**Air Quality Impact:**\n")
	fmt.Fprintf(&b, "• Current PM2.5: %g μg/m³\n• Projected PM2.5: %g μg/m³\n• Pollution increase: +%g%%\n\n", a.PM25Before, a.PM25After, a.PM25IncreasePercent)
	b.WriteString("**Community Impact:**\n")
	b.WriteString(printer.Sprintf("• Population affected: %d residents\n• Demographics impacted:\n  - Children: %d\n  - Adults: %d\n  - Seniors: %d\n\n---\n\n",
		a.AffectedPopulation, a.Demographics.Kids, a.Demographics.Adults, a.Demographics.Seniors))
	b.WriteString("**🎯 PROPOSAL SUMMARY**\n\n")
	fmt.Fprintf(&b, "Based on the environmental impact analysis, removing %s would significantly harm our community through:\n\n", parkName)
	fmt.Fprintf(&b, "1. **Environmental Degradation:** %s%% loss in vegetation health\n", lossHeadline)
	fmt.Fprintf(&b, "2. **Air Quality Decline:** %g%% increase in air pollution\n", a.PM25IncreasePercent)
	b.WriteString(printer.Sprintf("3. **Community Health Impact:** %d residents losing access to green space\n\n", a.AffectedPopulation))
	b.WriteString("**We propose to PROTECT this vital community asset and explore alternative development solutions that preserve environmental and public health.**\n\n---\n\n")
	b.WriteString("**📝 COMMUNITY ACTION ITEMS**\n")
	fmt.Fprintf(&b, "• Review environmental impact data\n• Attend community meetings before %s\n• Submit feedback to local planning committee\n• Share this proposal with neighbors and stakeholders\n\n---\n\n", endDate)
	fmt.Fprintf(&b, "*Environmental analysis generated by ParkPulse.ai on %s*\n*ParkPulse.ai - AI-Powered Urban Intelligence Platform*\n", stamp)
	return b.String()
}
