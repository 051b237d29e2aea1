package submission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceBook_RefreshAndLookup(t *testing.T) {
	book := NewPriceBook(&MockPriceSource{Prices: map[string]domain.ItemPrice{
		"v1": {ItemID: "v1", BasePrice: 849, FinalPrice: 799},
		"s1": {ItemID: "s1", BasePrice: 1200, FinalPrice: 1200},
	}})

	require.NoError(t, book.Refresh(context.Background(), []string{"v1", "s1"}))
	assert.Equal(t, 2, book.Len())

	p, ok := book.Lookup("v1")
	require.True(t, ok)
	assert.Equal(t, int64(799), p.FinalPrice)

	_, ok = book.Lookup("missing")
	assert.False(t, ok)
}

func TestPriceBook_FailureKeepsPreviousEntry(t *testing.T) {
	source := &MockPriceSource{Prices: map[string]domain.ItemPrice{"v1": {ItemID: "v1", BasePrice: 849, FinalPrice: 849}}}
	book := NewPriceBook(source)
	require.NoError(t, book.Refresh(context.Background(), []string{"v1"}))

	source.Err = errors.New("catalog down")
	err := book.Refresh(context.Background(), []string{"v1"})
	require.Error(t, err)

	p, ok := book.Lookup("v1")
	require.True(t, ok)
	assert.Equal(t, int64(849), p.BasePrice)
}

func TestPriceBook_UnknownItemIsError(t *testing.T) {
	book := NewPriceBook(&MockPriceSource{Prices: map[string]domain.ItemPrice{}})
	assert.Error(t, book.Refresh(context.Background(), []string{"nope"}))
	assert.Equal(t, 0, book.Len())
}

func TestPriceBook_ConcurrentRefreshSharesRequest(t *testing.T) {
	gate := make(chan struct{})
	source := &MockPriceSource{
		Prices: map[string]domain.ItemPrice{"v1": {ItemID: "v1", BasePrice: 849, FinalPrice: 849}},
		Gate:   gate,
	}
	book := NewPriceBook(source)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = book.Refresh(context.Background(), []string{"v1"})
		}()
	}

	require.Eventually(t, func() bool { return source.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), source.calls.Load())
	_, ok := book.Lookup("v1")
	assert.True(t, ok)
}
