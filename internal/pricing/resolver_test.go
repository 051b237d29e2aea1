package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	zelle   = domain.PaymentMethod{ID: "pm-zelle", Slug: "zelle", Name: "Zelle"}
	binance = domain.PaymentMethod{ID: "pm-binance", Slug: "binance-ves", Name: "Binance (VES)"}
)

func int64p(v int64) *int64 { return &v }

func TestResolve_FlatFee(t *testing.T) {
	client := &MockPricingClient{Responses: map[string]*domain.PricingResponse{
		"pm-zelle": {OriginalAmount: 1698, FinalAmount: 1748, Fees: []domain.Fee{{Kind: "flat", Amount: 50}}},
	}}
	r := NewResolver(client, []string{"binance-ves"}, nil)

	res, err := r.Resolve(context.Background(), 1698, zelle)
	require.NoError(t, err)
	require.False(t, res.Degraded)
	require.NotNil(t, res.Quote)
	assert.Equal(t, int64(1698), res.Quote.BaseAmount)
	assert.Equal(t, int64(1748), res.Quote.FinalAmount)
	assert.Equal(t, []domain.Fee{{Kind: "flat", Amount: 50}}, res.Quote.Fees)
	assert.Nil(t, res.Quote.ConvertedAmount)

	cur, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, res, cur)
}

func TestResolve_FinalComputedWhenAbsent(t *testing.T) {
	client := &MockPricingClient{Responses: map[string]*domain.PricingResponse{
		"pm-zelle": {Fees: []domain.Fee{{Kind: "flat", Amount: 50}, {Kind: "percent", Amount: 17}}},
	}}
	r := NewResolver(client, nil, nil)

	res, err := r.Resolve(context.Background(), 1000, zelle)
	require.NoError(t, err)
	assert.Equal(t, int64(1067), res.Quote.FinalAmount)
}

func TestResolve_NoFeesIsNotAnError(t *testing.T) {
	client := &MockPricingClient{Responses: map[string]*domain.PricingResponse{
		"pm-zelle": {OriginalAmount: 1000, FinalAmount: 1000},
	}}
	r := NewResolver(client, nil, nil)

	res, err := r.Resolve(context.Background(), 1000, zelle)
	require.NoError(t, err)
	assert.Empty(t, res.Quote.Fees)
	assert.Equal(t, int64(1000), res.Quote.FinalAmount)
}

func TestResolve_ConversionMissingIsDegraded(t *testing.T) {
	client := &MockPricingClient{Responses: map[string]*domain.PricingResponse{
		"pm-binance": {OriginalAmount: 1000, FinalAmount: 1000},
	}}
	r := NewResolver(client, []string{"binance-ves"}, nil)

	res, err := r.Resolve(context.Background(), 1000, binance)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Nil(t, res.Quote)
	assert.NotEmpty(t, res.Reason)
}

func TestResolve_ConversionPresent(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	client := &MockPricingClient{Responses: map[string]*domain.PricingResponse{
		"pm-binance": {
			OriginalAmount: 1000, FinalAmount: 1030,
			ConvertedAmount: int64p(3650000), ConvertedCurrency: "VES",
			ValidUntil: &until,
		},
	}}
	r := NewResolver(client, []string{"pm-binance"}, nil)

	res, err := r.Resolve(context.Background(), 1000, binance)
	require.NoError(t, err)
	require.False(t, res.Degraded)
	assert.Equal(t, int64(3650000), *res.Quote.ConvertedAmount)
	assert.Equal(t, "VES", res.Quote.ConvertedCurrency)
	assert.False(t, res.Expired(time.Now()))
	assert.True(t, res.Expired(until.Add(time.Second)))
}

func TestResolve_RequestFailureIsDegraded(t *testing.T) {
	r := NewResolver(&MockPricingClient{Err: errors.New("502 bad gateway")}, nil, nil)

	res, err := r.Resolve(context.Background(), 1000, zelle)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.Reason, "502")
}

func TestResolve_LateResponseForPreviousSelectionIsDiscarded(t *testing.T) {
	gateA := make(chan struct{})
	client := &MockPricingClient{
		Responses: map[string]*domain.PricingResponse{
			"pm-zelle":   {FinalAmount: 1100},
			"pm-binance": {FinalAmount: 1200, ConvertedAmount: int64p(10)},
		},
		Gates: map[string]chan struct{}{"pm-zelle": gateA},
	}
	r := NewResolver(client, nil, nil)

	type out struct {
		res domain.QuoteResult
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := r.Resolve(context.Background(), 1000, zelle)
		done <- out{res, err}
	}()

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.Calls) == 1
	}, time.Second, 5*time.Millisecond)

	resB, err := r.Resolve(context.Background(), 1000, binance)
	require.NoError(t, err)
	assert.Equal(t, "pm-binance", resB.MethodID)

	close(gateA)
	a := <-done
	assert.ErrorIs(t, a.err, domain.ErrStaleQuote)

	cur, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, "pm-binance", cur.MethodID)
	assert.Equal(t, int64(1200), cur.Quote.FinalAmount)
}

func TestInvalidate_DropsCurrentAndInFlight(t *testing.T) {
	gate := make(chan struct{})
	client := &MockPricingClient{
		Responses: map[string]*domain.PricingResponse{"pm-zelle": {FinalAmount: 1100}},
		Gates:     map[string]chan struct{}{"pm-zelle": gate},
	}
	r := NewResolver(client, nil, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), 1000, zelle)
		errc <- err
	}()
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.Calls) == 1
	}, time.Second, 5*time.Millisecond)

	r.Invalidate()
	close(gate)
	assert.ErrorIs(t, <-errc, domain.ErrStaleQuote)

	_, ok := r.Current()
	assert.False(t, ok)
}
