// Package payment turns verified payment confirmations into ledger credits.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"go.uber.org/zap"
)

const (
	purchaseDescription  = "purchase"
	idempotencyKeyPrefix = "payment:"
)

var (
	ErrInvalidCompletion    = errors.New("invalid payment completion")
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrPlanMismatch         = errors.New("credits do not match plan")
	ErrInvalidHandlerConfig = errors.New("invalid payment handler config")
)

// Ledger is the subset of ledger.Service the handler needs.
type Ledger interface {
	Credit(ctx context.Context, userID ledger.UserID, amount ledger.PositiveCredits, description string, eventID ledger.EventID, idempotencyKey ledger.IdempotencyKey) (bool, error)
}

// Completion is a verified payment confirmation.
type Completion struct {
	UserID          string
	CreditsToAdd    int64
	ProviderEventID string
	PlanID          string
}

// Result reports what Complete did.
type Result struct {
	Applied        bool
	AlreadyApplied bool
}

// Handler applies payment completions to the ledger.
type Handler struct {
	ledger Ledger
	logger *zap.Logger
}

// NewHandler wires a Handler.
func NewHandler(ledgerService Ledger, logger *zap.Logger) (*Handler, error) {
	if ledgerService == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidHandlerConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledgerService, logger: logger}, nil
}

// Complete credits the purchased amount. A completion carrying a provider event id is applied at most
// once; a redelivery is acknowledged with AlreadyApplied. Ledger failures, including a missing
// profile, are returned so the webhook answers with a retryable status.
func (handler *Handler) Complete(ctx context.Context, completion Completion) (Result, error) {
	userID, err := ledger.NewUserID(completion.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidCompletion, err)
	}
	amount, err := ledger.NewPositiveCredits(completion.CreditsToAdd)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidCompletion, err)
	}
	if strings.TrimSpace(completion.PlanID) != "" {
		plan, ok := PlanByID(completion.PlanID)
		if !ok {
			return Result{}, fmt.Errorf("%w: %q", ErrUnknownPlan, completion.PlanID)
		}
		if plan.Credits != completion.CreditsToAdd {
			return Result{}, fmt.Errorf("%w: plan %s grants %d, got %d", ErrPlanMismatch, plan.ID, plan.Credits, completion.CreditsToAdd)
		}
	}
	var idempotencyKey ledger.IdempotencyKey
	if providerEventID := strings.TrimSpace(completion.ProviderEventID); providerEventID != "" {
		idempotencyKey, err = ledger.NewIdempotencyKey(idempotencyKeyPrefix + providerEventID)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrInvalidCompletion, err)
		}
	}

	_, err = handler.ledger.Credit(ctx, userID, amount, purchaseDescription, ledger.EventID{}, idempotencyKey)
	switch {
	case err == nil:
		return Result{Applied: true}, nil
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		handler.logger.Info("payment already applied",
			zap.String("user_id", userID.String()),
			zap.String("idempotency_key", idempotencyKey.String()),
		)
		return Result{AlreadyApplied: true}, nil
	default:
		handler.logger.Error("payment credit failed",
			zap.String("user_id", userID.String()),
			zap.Int64("credits", amount.Int64()),
			zap.String("idempotency_key", idempotencyKey.String()),
			zap.Error(err),
		)
		return Result{}, err
	}
}
