// Package api serves the chat endpoint and the proposal REST surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/agent"
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/ledger"
)

type Agent interface {
	Handle(ctx context.Context, req agent.Request) (agent.Envelope, error)
}

type Parks interface {
	ParksByLocation(ctx context.Context, q db.LocationQuery) (*db.FeatureCollection, error)
}

// Ledger is the bridge client surface exposed over HTTP.
type Ledger interface {
	Network() string
	ExplorerURL(txID string) string
	ContractInfo(ctx context.Context) (map[string]any, error)
	CreateProposal(ctx context.Context, d ledger.Draft) (ledger.Result, error)
	Proposal(ctx context.Context, id int64) (*ledger.Proposal, error)
	ProposalIDs(ctx context.Context, status ledger.Status) ([]int64, error)
	HasVoted(ctx context.Context, id int64, address string) (bool, error)
	Vote(ctx context.Context, id int64, support bool, voter string) (ledger.Result, error)
	Close(ctx context.Context, id int64) (ledger.Result, error)
	SetFundingGoal(ctx context.Context, id int64, goalHBAR float64) (ledger.Result, error)
	Donate(ctx context.Context, id int64, amountHBAR float64) (ledger.Result, error)
	Withdraw(ctx context.Context, id int64, recipient string) (ledger.Result, error)
	DonationProgress(ctx context.Context, id int64) (ledger.DonationProgress, error)
}

type Options struct {
	JWTSecret string
	// RatePerSecond and RateBurst bound chat requests per client IP. Zero
	// disables the limit.
	RatePerSecond float64
	RateBurst     int
	// TrustedProxies are peers whose X-Forwarded-For header is honored.
	TrustedProxies []netip.Prefix
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

type API struct {
	router    *mux.Router
	agent     Agent
	parks     Parks
	ledger    Ledger
	jwtSecret []byte
	limiter   *ipLimiter
	gatherer  prometheus.Gatherer
	logger    *zap.Logger

	trustedProxies []netip.Prefix
}

func New(ag Agent, parks Parks, l Ledger, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	api := &API{
		router:    mux.NewRouter(),
		agent:     ag,
		parks:     parks,
		ledger:    l,
		jwtSecret: []byte(opts.JWTSecret),
		gatherer:  gatherer,
		logger:    logger.Named("api"),

		trustedProxies: opts.TrustedProxies,
	}
	if opts.RatePerSecond > 0 {
		api.limiter = newIPLimiter(opts.RatePerSecond, opts.RateBurst)
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.Use(a.recoverMiddleware, a.logMiddleware)

	a.router.HandleFunc("/", a.handleRoot).Methods("GET")
	a.router.HandleFunc("/health", a.handleHealth).Methods("GET")
	a.router.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Chat
	a.router.Handle("/api/agent", a.rateLimit(http.HandlerFunc(a.handleAgent))).Methods("POST")

	// Public endpoints
	a.router.HandleFunc("/api/parks/{zipcode}", a.handleParks).Methods("GET")
	a.router.HandleFunc("/api/contract-info", a.handleContractInfo).Methods("GET")
	a.router.HandleFunc("/api/proposals", a.handleListProposals).Methods("GET")
	a.router.HandleFunc("/api/proposals/{id:[0-9]+}", a.handleGetProposal).Methods("GET")
	a.router.HandleFunc("/api/proposals/{id:[0-9]+}/donation-progress", a.handleDonationProgress).Methods("GET")
	a.router.HandleFunc("/api/proposals/{id:[0-9]+}/votes/{address}", a.handleHasVoted).Methods("GET")
	a.router.HandleFunc("/api/proposals/{id:[0-9]+}/vote", a.handleVote).Methods("POST")
	a.router.HandleFunc("/api/proposals/{id:[0-9]+}/donate", a.handleDonate).Methods("POST")

	// Operator endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/create-proposal", a.handleCreateProposal).Methods("POST")
	protected.HandleFunc("/proposals/{id:[0-9]+}/close", a.handleCloseProposal).Methods("POST")
	protected.HandleFunc("/proposals/{id:[0-9]+}/funding-goal", a.handleFundingGoal).Methods("POST")
	protected.HandleFunc("/proposals/{id:[0-9]+}/withdraw", a.handleWithdraw).Methods("POST")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Serve listens on bind until ctx is cancelled, then shuts down gracefully.
func (a *API) Serve(ctx context.Context, bind string) error {
	srv := &http.Server{
		Addr:              bind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("API server listening", zap.String("addr", "http://"+bind))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("panic in handler", zap.String("path", r.URL.Path), zap.Any("panic", rec), zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
