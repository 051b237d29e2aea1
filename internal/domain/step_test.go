package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(StepVerifyIdentity, StepSelectPaymentMethod))
	assert.True(t, CanTransitionTo(StepReviewOrder, StepSelectPaymentMethod))
	assert.True(t, CanTransitionTo(StepUploadProof, StepReviewOrder))
	assert.True(t, CanTransitionTo(StepUploadProof, StepLeft))

	assert.False(t, CanTransitionTo(StepVerifyIdentity, StepReviewOrder))
	assert.False(t, CanTransitionTo(StepSelectPaymentMethod, StepUploadProof))
	for _, terminal := range []Step{StepManualHandOff, StepRedirected, StepCompleted, StepLeft} {
		assert.True(t, terminal.IsTerminal())
		assert.False(t, CanTransitionTo(terminal, StepReviewOrder), terminal)
	}
}

func TestBeforeOrder(t *testing.T) {
	assert.True(t, StepReviewOrder.BeforeOrder())
	assert.False(t, StepUploadProof.BeforeOrder())
	assert.False(t, StepCompleted.BeforeOrder())
}

func TestError_KindAndUnwrap(t *testing.T) {
	err := fmt.Errorf("place order: %w", Validation(ErrEmptyCart))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))

	assert.True(t, NewError(KindInvoice, "x", nil).Retryable())
	assert.False(t, NewError(KindExpired, "x", nil).Retryable())
}

func TestQuoteResult_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)
	r := QuoteResult{Quote: &PriceQuote{ValidUntil: &until}}

	assert.False(t, r.Expired(now))
	assert.True(t, r.Expired(until))
	assert.False(t, QuoteResult{Degraded: true}.Expired(now))
}

func TestOrderAndCryptoStatus(t *testing.T) {
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPaymentUploaded.IsTerminal())
	assert.True(t, CryptoStatusPaidOver.IsFinal())
	assert.False(t, CryptoStatusConfirming.IsFinal())
	assert.False(t, CryptoStatusUnderpaid.IsFinal())
}
