// Package agent answers chat messages about parks and runs the multi-turn
// conversation that submits park protection proposals.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/auth"
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/impact"
	"github.com/parkpulse/parkpulse/internal/intent"
	"github.com/parkpulse/parkpulse/internal/ledger"
	"github.com/parkpulse/parkpulse/internal/llm"
	"github.com/parkpulse/parkpulse/internal/metrics"
	"github.com/parkpulse/parkpulse/internal/notify"
	"github.com/parkpulse/parkpulse/internal/session"
)

type Action string

const (
	ActionAnswer             Action = "answer"
	ActionRenderParks        Action = "render_parks"
	ActionNeedSelection      Action = "need_selection"
	ActionRemovalImpact      Action = "removal_impact"
	ActionUnauthorized       Action = "unauthorized"
	ActionNeedAnalysis       Action = "need_analysis"
	ActionAskFundraising     Action = "ask_fundraising"
	ActionAskFundingGoal     Action = "ask_funding_goal"
	ActionClarifyFundraising Action = "clarify_fundraising"
	ActionClarifyGoal        Action = "clarify_goal"
	ActionProposalCreated    Action = "proposal_created"
	ActionError              Action = "error"
)

// Request is one inbound chat message.
type Request struct {
	Message        string
	SessionID      string
	SelectedParkID string
	WalletAddress  string
}

// Envelope is the response to every message.
type Envelope struct {
	SessionID         string `json:"sessionId"`
	Action            Action `json:"action"`
	Reply             string `json:"reply"`
	Data              any    `json:"data,omitempty"`
	HCSTopicID        string `json:"hcsTopicId,omitempty"`
	ShowProfileButton bool   `json:"showProfileButton,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, text string) intent.Intent
}

type Authorizer interface {
	Authorize(ctx context.Context, wallet string) auth.Result
}

// ParkStore is the park and resident data the agent reads and the proposal
// records it writes. Lookups return nil or empty values when nothing
// matches.
type ParkStore interface {
	ParksByLocation(ctx context.Context, q db.LocationQuery) (*db.FeatureCollection, error)
	ParkByID(ctx context.Context, id string) (*db.Park, error)
	ParkStat(ctx context.Context, id, metric string) (*db.ParkStat, error)
	ParkZip(ctx context.Context, id string) (string, error)
	ResidentsByZip(ctx context.Context, zip string) ([]db.Resident, error)
	RecordProposal(ctx context.Context, p db.LocalProposal) error
}

type Analyzer interface {
	RemovalImpact(park db.Park, landUse intent.LandUseType) impact.Analysis
}

type Ledger interface {
	IsConnected(ctx context.Context) bool
	CreateProposal(ctx context.Context, d ledger.Draft) (ledger.Result, error)
}

type Notifier interface {
	Send(ctx context.Context, n notify.Notice) error
}

type Announcer interface {
	Announce(ctx context.Context, n notify.Notice) error
}

type AuditLog interface {
	CreateChannel(ctx context.Context, sessionID string) (string, error)
	Append(ctx context.Context, handle, role, text string) error
}

type Writer interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Deps wires the agent. Sessions, Classifier, Authorizer, Parks and Ledger
// are required; the rest may be nil.
type Deps struct {
	Sessions   session.Store
	Classifier Classifier
	Authorizer Authorizer
	Parks      ParkStore
	Ledger     Ledger
	Analyzer   Analyzer
	Writer     Writer
	Notifier   Notifier
	Announcer  Announcer
	Audit      AuditLog
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// DefaultDeadline is used when neither the message nor the session
	// names one, in "January 2, 2006" form.
	DefaultDeadline string
}

type Agent struct {
	sessions   session.Store
	classifier Classifier
	authorizer Authorizer
	parks      ParkStore
	ledger     Ledger
	analyzer   Analyzer
	writer     Writer
	notifier   Notifier
	announcer  Announcer
	audit      AuditLog
	metrics    *metrics.Metrics
	logger     *zap.Logger

	defaultDeadline string
	locks           *session.Locks
	now             func() time.Time
	newID           func() string

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func New(d Deps) (*Agent, error) {
	switch {
	case d.Sessions == nil:
		return nil, errors.New("agent: session store is required")
	case d.Classifier == nil:
		return nil, errors.New("agent: classifier is required")
	case d.Authorizer == nil:
		return nil, errors.New("agent: authorizer is required")
	case d.Parks == nil:
		return nil, errors.New("agent: park store is required")
	case d.Ledger == nil:
		return nil, errors.New("agent: ledger is required")
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	analyzer := d.Analyzer
	if analyzer == nil {
		analyzer = ImpactAnalyzer{}
	}
	deadline := d.DefaultDeadline
	if deadline == "" {
		deadline = "November 30, 2025"
	}
	if _, err := time.Parse(deadlineLayout, deadline); err != nil {
		return nil, fmt.Errorf("agent: invalid default deadline %q: %w", deadline, err)
	}

	return &Agent{
		sessions:        d.Sessions,
		classifier:      d.Classifier,
		authorizer:      d.Authorizer,
		parks:           d.Parks,
		ledger:          d.Ledger,
		analyzer:        analyzer,
		writer:          d.Writer,
		notifier:        d.Notifier,
		announcer:       d.Announcer,
		audit:           d.Audit,
		metrics:         d.Metrics,
		logger:          logger.Named("agent"),
		defaultDeadline: deadline,
		locks:           session.NewLocks(),
		now:             time.Now,
		newID:           uuid.NewString,
	}, nil
}

// turn carries one request through the handlers.
type turn struct {
	req       Request
	sessionID string
	state     session.State
}

// Handle answers one message. Messages of the same session are handled one
// at a time. A non-nil error means the request could not be served at all.
func (a *Agent) Handle(ctx context.Context, req Request) (env Envelope, err error) {
	start := a.now()
	id := req.SessionID
	if id == "" {
		id = a.newID()
	}

	unlock := a.locks.Lock(id)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic while handling message", zap.String("session", id), zap.Any("panic", r), zap.Stack("stack"))
			env, err = Envelope{}, fmt.Errorf("panic while handling message: %v", r)
		}
	}()

	st, err := a.sessions.Get(ctx, id)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	topic := a.ensureAuditChannel(ctx, id, st)

	var in intent.Intent
	if !st.InWorkflow() {
		in = a.classifier.Classify(ctx, req.Message)
		a.metrics.Intent(string(in.Kind()))
	} else {
		a.logger.Info("continuing proposal conversation", zap.String("session", id))
	}

	t := &turn{req: req, sessionID: id, state: st}
	env, err = a.route(in, st)(ctx, t)
	if err != nil {
		return Envelope{}, err
	}
	env.SessionID = id
	env.HCSTopicID = topic

	a.metrics.ObserveRequest(string(env.Action), a.now().Sub(start))
	a.appendAudit(ctx, id, topic, req.Message, env.Reply)
	return env, nil
}

// ensureAuditChannel returns the session's audit topic, creating it on first
// use. Failures are retried on the next message.
func (a *Agent) ensureAuditChannel(ctx context.Context, id string, st session.State) string {
	if a.audit == nil {
		return ""
	}
	if st.AuditTopicID != "" {
		return st.AuditTopicID
	}
	topic, err := a.audit.CreateChannel(ctx, id)
	if err != nil {
		a.metrics.AuditFailure()
		a.logger.Warn("failed to create audit channel", zap.String("session", id), zap.Error(err))
		return ""
	}
	if err := a.sessions.Set(ctx, id, session.Patch{AuditTopicID: session.String(topic)}); err != nil {
		a.logger.Warn("failed to store audit channel", zap.String("session", id), zap.Error(err))
	}
	a.logger.Info("audit channel created", zap.String("session", id), zap.String("topic", topic))
	return topic
}

func (a *Agent) appendAudit(ctx context.Context, id, topic, message, reply string) {
	if a.audit == nil || topic == "" {
		return
	}
	a.background(ctx, func(ctx context.Context) {
		for _, entry := range []struct{ role, text string }{
			{"User", message},
			{"Agent", reply},
		} {
			if err := a.audit.Append(ctx, topic, entry.role, entry.text); err != nil {
				a.metrics.AuditFailure()
				a.logger.Warn("failed to append audit entry",
					zap.String("session", id),
					zap.String("role", entry.role),
					zap.Error(err),
				)
			}
		}
	})
}

// background runs fn on its own goroutine with a context that keeps ctx's
// values but not its cancellation. Tasks started after Close are dropped.
func (a *Agent) background(ctx context.Context, fn func(ctx context.Context)) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("panic in background task", zap.Any("panic", r))
			}
		}()
		fn(context.WithoutCancel(ctx))
	}()
}

// Wait blocks until all background tasks started so far have finished.
func (a *Agent) Wait() {
	a.wg.Wait()
}

// Close stops accepting background tasks and waits for running ones, or
// until ctx is done.
func (a *Agent) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
