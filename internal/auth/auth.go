// Package auth decides which wallets may create proposals.
package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/db"
)

const (
	ReasonUnavailable     = "Authorization service not available"
	ReasonWalletRequired  = "Wallet address required"
	ReasonProfileNotFound = "User profile not found. Please complete your profile first."
	ReasonCheckFailed     = "Authorization check failed"
	ReasonNotGovernment   = "Only government employees can create proposals"
)

// Result of an authorization check. ProfileMissing distinguishes wallets that
// have never registered from registered but unauthorized ones.
type Result struct {
	Authorized     bool
	Reason         string
	ProfileMissing bool
}

// Profiles looks up user records by wallet.
type Profiles interface {
	UserByWallet(ctx context.Context, wallet string) (*db.User, error)
}

// Service authorizes government employees registered in the profile store.
type Service struct {
	profiles Profiles
	logger   *zap.Logger
}

// NewService returns a service that denies everyone when profiles is nil.
func NewService(profiles Profiles, logger *zap.Logger) *Service {
	return &Service{profiles: profiles, logger: logger.Named("auth")}
}

func (s *Service) Authorize(ctx context.Context, wallet string) Result {
	if s.profiles == nil {
		return Result{Reason: ReasonUnavailable}
	}
	if wallet == "" {
		return Result{Reason: ReasonWalletRequired}
	}

	user, err := s.profiles.UserByWallet(ctx, wallet)
	if err != nil {
		s.logger.Error("authorization lookup failed", zap.String("wallet", wallet), zap.Error(err))
		return Result{Reason: ReasonCheckFailed}
	}
	if user == nil {
		s.logger.Info("user profile not found", zap.String("wallet", wallet))
		return Result{Reason: ReasonProfileNotFound, ProfileMissing: true}
	}

	s.logger.Info("authorization checked", zap.String("wallet", wallet), zap.Bool("authorized", user.IsGovernmentEmployee))
	if !user.IsGovernmentEmployee {
		return Result{Reason: ReasonNotGovernment}
	}
	return Result{Authorized: true}
}
