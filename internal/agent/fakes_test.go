package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/auth"
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/impact"
	"github.com/parkpulse/parkpulse/internal/intent"
	"github.com/parkpulse/parkpulse/internal/ledger"
	"github.com/parkpulse/parkpulse/internal/llm"
	"github.com/parkpulse/parkpulse/internal/notify"
	"github.com/parkpulse/parkpulse/internal/session"
)

type fakeClassifier struct {
	mu      sync.Mutex
	intents map[string]intent.Intent
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) intent.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if in, ok := f.intents[text]; ok {
		return in
	}
	return intent.Unknown{}
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAuth struct {
	result auth.Result
}

func (f *fakeAuth) Authorize(ctx context.Context, wallet string) auth.Result {
	return f.result
}

type fakeParks struct {
	mu         sync.Mutex
	parks      map[string]*db.Park
	stats      map[string]float64
	residents  map[string][]db.Resident
	records    []db.LocalProposal
	zipLookups int
	err        error
}

func (f *fakeParks) ParksByLocation(ctx context.Context, q db.LocationQuery) (*db.FeatureCollection, error) {
	if f.err != nil {
		return nil, f.err
	}
	fc := &db.FeatureCollection{Type: "FeatureCollection", Features: []db.Feature{}}
	for _, p := range f.parks {
		if (q.Zip != "" && p.Zip == q.Zip) || (q.City != "" && strings.EqualFold(p.City, q.City)) || (q.State != "" && p.State == q.State) {
			fc.Features = append(fc.Features, p.Feature())
		}
	}
	return fc, nil
}

func (f *fakeParks) ParkByID(ctx context.Context, id string) (*db.Park, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.parks[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParks) ParkStat(ctx context.Context, id, metric string) (*db.ParkStat, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.stats[id+"/"+metric]
	if !ok {
		return nil, nil
	}
	return &db.ParkStat{Metric: metric, Value: v}, nil
}

func (f *fakeParks) ParkZip(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	f.zipLookups++
	f.mu.Unlock()
	if p, ok := f.parks[id]; ok {
		return p.Zip, nil
	}
	return "", nil
}

func (f *fakeParks) ResidentsByZip(ctx context.Context, zip string) ([]db.Resident, error) {
	return f.residents[zip], nil
}

func (f *fakeParks) RecordProposal(ctx context.Context, p db.LocalProposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, p)
	return nil
}

func (f *fakeParks) lastRecord(t *testing.T) db.LocalProposal {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.records)
	return f.records[len(f.records)-1]
}

type fakeLedger struct {
	mu        sync.Mutex
	connected bool
	result    ledger.Result
	err       error
	drafts    []ledger.Draft
}

func (f *fakeLedger) IsConnected(ctx context.Context) bool {
	return f.connected
}

func (f *fakeLedger) CreateProposal(ctx context.Context, d ledger.Draft) (ledger.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	return f.result, f.err
}

func (f *fakeLedger) lastDraft(t *testing.T) ledger.Draft {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.drafts)
	return f.drafts[len(f.drafts)-1]
}

type fakeNotifier struct {
	mu       sync.Mutex
	fail     map[string]bool
	attempts []string
	sent     []notify.Notice
}

func (f *fakeNotifier) Send(ctx context.Context, n notify.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, n.Recipient)
	if f.fail[n.Recipient] {
		return errors.New("smtp: 550 mailbox unavailable")
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeAnnouncer struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (f *fakeAnnouncer) Announce(ctx context.Context, n notify.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return nil
}

type fakeAudit struct {
	mu        sync.Mutex
	created   int
	createErr error
	appendErr error
	entries   []string
}

func (f *fakeAudit) CreateChannel(ctx context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "0.0.77", nil
}

func (f *fakeAudit) Append(ctx context.Context, handle, role, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, handle+"|"+role+":"+text)
	return nil
}

type fakeWriter struct {
	out string
	err error
}

func (f *fakeWriter) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f.out, f.err
}

// clearFailingStore fails every Clear.
type clearFailingStore struct {
	*session.MemoryStore
}

func (clearFailingStore) Clear(ctx context.Context, id string, keys ...session.Key) error {
	return errors.New("redis: i/o timeout")
}

// failingStore fails every read.
type failingStore struct {
	session.Store
}

func (failingStore) Get(ctx context.Context, id string) (session.State, error) {
	return session.State{}, errors.New("redis: connection refused")
}

type fixture struct {
	store      *session.MemoryStore
	classifier *fakeClassifier
	auth       *fakeAuth
	parks      *fakeParks
	ledger     *fakeLedger
	notifier   *fakeNotifier
	announcer  *fakeAnnouncer
	audit      *fakeAudit
	writer     *fakeWriter
	sessions   session.Store
}

var testNow = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newFixture() *fixture {
	return &fixture{
		store: session.NewMemoryStore(),
		classifier: &fakeClassifier{intents: map[string]intent.Intent{
			"hello":                     intent.Greeting{},
			"create a proposal":         intent.CreateProposal{},
			"what happens if removed":   intent.RemovalImpact{LandUse: intent.LandUseRemoved},
			"how big is it in m2":       intent.AskArea{Unit: impact.UnitSquareMeters},
			"show parks in 20008":       intent.ShowParks{LocationType: intent.LocationZip, LocationValue: "20008"},
			"what is the ndvi":          intent.NDVIQuery{},
			"population":                intent.StatQuery{Metric: db.StatTotalPopulation},
			"some stat":                 intent.StatQuery{},
			"tell me about this park":   intent.InfoQuery{},
			"how is the air":            intent.AirQualityQuery{},
			"create proposal with deadline 25th october 2025": intent.CreateProposal{},
		}},
		auth: &fakeAuth{result: auth.Result{Authorized: true}},
		parks: &fakeParks{
			parks: map[string]*db.Park{
				"p1": {
					ID: "p1", Name: "Rock Creek", City: "Washington", State: "DC", Zip: "20008",
					Acres: 10, NDVI: ptr(0.62), PM25: ptr(9.5),
					Stats: map[string]float64{db.StatTotalPopulation: 1500, db.StatKids: 300, db.StatAdults: 900, db.StatSeniors: 300},
				},
			},
			stats: map[string]float64{"p1/" + db.StatTotalPopulation: 12345},
			residents: map[string][]db.Resident{
				"20008": {
					{WalletAddress: "0.0.1", Email: "a@example.org"},
					{WalletAddress: "0.0.2", Email: "b@example.org"},
					{WalletAddress: "0.0.3", Email: "c@example.org"},
				},
			},
		},
		ledger: &fakeLedger{
			connected: true,
			result: ledger.Result{
				Success:       true,
				ProposalID:    7,
				TransactionID: "0.0.5005@1700000000.123456789",
				ExplorerURL:   "https://hashscan.io/testnet/transaction/0.0.5005@1700000000.123456789",
			},
		},
		notifier:  &fakeNotifier{fail: map[string]bool{}},
		announcer: &fakeAnnouncer{},
		writer:    &fakeWriter{err: errors.New("quota exceeded")},
	}
}

func (f *fixture) agent(t *testing.T) *Agent {
	t.Helper()
	d := Deps{
		Sessions:   f.store,
		Classifier: f.classifier,
		Authorizer: f.auth,
		Parks:      f.parks,
		Ledger:     f.ledger,
		Writer:     f.writer,
		Notifier:   f.notifier,
		Announcer:  f.announcer,
		Logger:     zap.NewNop(),
	}
	if f.audit != nil {
		d.Audit = f.audit
	}
	if f.sessions != nil {
		d.Sessions = f.sessions
	}
	a, err := New(d)
	require.NoError(t, err)
	a.now = func() time.Time { return testNow }
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })
	return a
}

func testAnalysis() impact.Analysis {
	return impact.Analysis{
		ParkName:            "Rock Creek",
		ParkZip:             "20008",
		LandUseType:         impact.ScenarioRemoved,
		NDVIBefore:          0.62,
		NDVIAfter:           0.55,
		PM25Before:          9.5,
		PM25After:           10.2,
		PM25IncreasePercent: 7.4,
		AffectedPopulation:  1500,
		Demographics:        impact.Demographics{Kids: 300, Adults: 900, Seniors: 300},
	}
}

// seedAnalysis stores a removal analysis as if the user had asked for one.
func (f *fixture) seedAnalysis(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), id, session.Patch{
		LatestRemovalAnalysis: &session.RemovalAnalysis{ParkID: "p1", Analysis: testAnalysis(), Timestamp: testNow},
	}))
}

func (f *fixture) state(t *testing.T, id string) session.State {
	t.Helper()
	st, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return st
}

func send(t *testing.T, a *Agent, id, msg string) Envelope {
	t.Helper()
	env, err := a.Handle(context.Background(), Request{
		Message:        msg,
		SessionID:      id,
		SelectedParkID: "p1",
		WalletAddress:  "0.0.1234",
	})
	require.NoError(t, err)
	return env
}
