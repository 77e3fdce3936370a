package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/repository"
	"go.uber.org/zap"
)

type ClaimOutcome string

const (
	ClaimClaimed     ClaimOutcome = "claimed"
	ClaimAlreadyLive ClaimOutcome = "already_live"
	ClaimReclaimed   ClaimOutcome = "reclaimed"
	ClaimReleased    ClaimOutcome = "released"
)

// DefaultStaleAfter is how old a claim must be before it counts as abandoned.
const DefaultStaleAfter = 5 * time.Minute

// ClaimResult describes the guard's decision. Stale and PriorSales are only
// meaningful when the existing claim was old enough to be reconsidered.
type ClaimResult struct {
	Outcome    ClaimOutcome
	Attempt    int
	Stale      bool
	PriorSales int64
}

// IdempotencyGuard decides which invocation owns a payment id. A claim is
// an inserted lock row; a stale claim is only taken over when the ledger
// shows no completed work for the payment.
type IdempotencyGuard struct {
	locks      repository.LockRepository
	sales      repository.SaleRepository
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewIdempotencyGuard(locks repository.LockRepository, sales repository.SaleRepository, staleAfter time.Duration, logger *zap.Logger) *IdempotencyGuard {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &IdempotencyGuard{
		locks:      locks,
		sales:      sales,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

func (g *IdempotencyGuard) TryClaim(ctx context.Context, paymentID string) (ClaimResult, error) {
	now := g.now()

	inserted, err := g.locks.Insert(ctx, paymentID, 1, now)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("insert lock: %w", err)
	}
	if inserted {
		return ClaimResult{Outcome: ClaimClaimed, Attempt: 1}, nil
	}

	latest, err := g.locks.Latest(ctx, paymentID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("read lock: %w", err)
	}
	if latest == nil {
		// Locks are never deleted, so a conflict without a row is not expected.
		g.logger.Warn("lock conflict without a lock row", zap.String("payment_id", paymentID))
		return ClaimResult{Outcome: ClaimAlreadyLive}, nil
	}

	if now.Sub(latest.ClaimedAt) < g.staleAfter {
		return ClaimResult{Outcome: ClaimAlreadyLive, Attempt: latest.Attempt}, nil
	}

	prior, err := g.sales.CountByPayment(ctx, paymentID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("count sales: %w", err)
	}
	if prior > 0 {
		return ClaimResult{Outcome: ClaimAlreadyLive, Attempt: latest.Attempt, Stale: true, PriorSales: prior}, nil
	}

	next := latest.Attempt + 1
	inserted, err = g.locks.Insert(ctx, paymentID, next, now)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("insert lock: %w", err)
	}
	if !inserted {
		return ClaimResult{Outcome: ClaimAlreadyLive, Attempt: next}, nil
	}

	g.logger.Info("reclaimed abandoned lock",
		zap.String("payment_id", paymentID),
		zap.Int("attempt", next),
		zap.Duration("age", now.Sub(latest.ClaimedAt)),
	)
	return ClaimResult{Outcome: ClaimReclaimed, Attempt: next, Stale: true}, nil
}

// Resume takes the claim after afterAttempt to finish a partially recorded
// payment. It reports false when another invocation got there first.
func (g *IdempotencyGuard) Resume(ctx context.Context, paymentID string, afterAttempt int) (bool, error) {
	inserted, err := g.locks.Insert(ctx, paymentID, afterAttempt+1, g.now())
	if err != nil {
		return false, fmt.Errorf("insert lock: %w", err)
	}
	return inserted, nil
}

// Release hands a claim back after a retryable failure. It inserts the next
// attempt already aged past the stale window, so the retry goes straight to
// reclaim or resume instead of seeing a live claim. Rows are still never
// updated or deleted.
func (g *IdempotencyGuard) Release(ctx context.Context, paymentID string, heldAttempt int) error {
	releasedAt := g.now().Add(-g.staleAfter)
	inserted, err := g.locks.Insert(ctx, paymentID, heldAttempt+1, releasedAt)
	if err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	if !inserted {
		g.logger.Warn("release lost to a newer claim",
			zap.String("payment_id", paymentID),
			zap.Int("attempt", heldAttempt+1),
		)
	}
	return nil
}
