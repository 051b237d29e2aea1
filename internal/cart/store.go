package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/snapshot"
)

var ErrInvalidItem = errors.New("invalid cart item")

const persistTimeout = time.Second

// Listener receives the totals after every mutation.
type Listener func(domain.CartTotals)

// Store holds the buyer's cart lines. Mutations are synchronous; each one
// persists a snapshot (or deletes it when the cart becomes empty) and then
// notifies listeners.
type Store struct {
	mu        sync.Mutex
	key       string
	lines     []domain.CartLine
	snapshots snapshot.Store
	logger    *slog.Logger

	lmu       sync.RWMutex
	listeners []Listener
}

func NewStore(key string, snapshots snapshot.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		key:       key,
		snapshots: snapshots,
		logger:    logger.With("cart", key),
	}
}

// Load replaces the in-memory lines with the persisted snapshot. A missing
// snapshot leaves the cart empty.
func (s *Store) Load(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap, err := s.snapshots.Get(ctx, s.key)
	if errors.Is(err, snapshot.ErrMiss) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load cart snapshot: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		if l.ItemID == "" || l.Quantity < 1 || l.UnitPrice < 0 {
			s.logger.Warn("dropping invalid line from snapshot", "item_id", l.ItemID, "quantity", l.Quantity)
			continue
		}
		lines = append(lines, l)
	}

	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
	return nil
}

// OnChange registers fn to be called after every mutation.
func (s *Store) OnChange(fn Listener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// AddItem increments the quantity of an existing line or appends a new line
// with quantity 1.
func (s *Store) AddItem(item domain.Item) error {
	if item.ID == "" || item.UnitPrice < 0 {
		return ErrInvalidItem
	}
	s.mutate(func(lines []domain.CartLine) []domain.CartLine {
		for i := range lines {
			if lines[i].ItemID == item.ID {
				lines[i].Quantity++
				return lines
			}
		}
		return append(lines, domain.CartLine{
			ItemID:        item.ID,
			Name:          item.Name,
			Type:          item.Type,
			UnitPrice:     item.UnitPrice,
			Quantity:      1,
			ManualProcess: item.ManualProcess,
		})
	})
	return nil
}

func (s *Store) RemoveItem(itemID string) {
	s.mutate(func(lines []domain.CartLine) []domain.CartLine {
		return removeLine(lines, itemID)
	})
}

// SetQuantity sets the quantity of a line; n <= 0 removes it.
func (s *Store) SetQuantity(itemID string, n int) {
	s.mutate(func(lines []domain.CartLine) []domain.CartLine {
		if n <= 0 {
			return removeLine(lines, itemID)
		}
		for i := range lines {
			if lines[i].ItemID == itemID {
				lines[i].Quantity = n
			}
		}
		return lines
	})
}

func (s *Store) Clear() {
	s.mutate(func([]domain.CartLine) []domain.CartLine {
		return nil
	})
}

// Lines returns a copy of the current lines.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Totals is computed from the current lines on every call.
func (s *Store) Totals() domain.CartTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return computeTotals(s.lines)
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

func (s *Store) HasManualProcessItems() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if l.ManualProcess {
			return true
		}
	}
	return false
}

// HasItemsOfType reports whether any line has one of the given item types.
func (s *Store) HasItemsOfType(types ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		for _, t := range types {
			if l.Type == t {
				return true
			}
		}
	}
	return false
}

func (s *Store) mutate(fn func([]domain.CartLine) []domain.CartLine) {
	s.mu.Lock()
	s.lines = fn(s.lines)
	totals := computeTotals(s.lines)
	s.persist()
	s.mu.Unlock()

	s.lmu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.lmu.RUnlock()
	for _, fn := range listeners {
		fn(totals)
	}
}

// persist must be called with s.mu held so snapshots are written in
// mutation order.
func (s *Store) persist() {
	if s.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if len(s.lines) == 0 {
		if err := s.snapshots.Delete(ctx, s.key); err != nil {
			s.logger.Error("cart snapshot delete failed", "err", err)
		}
		return
	}

	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	if err := s.snapshots.Set(ctx, s.key, &domain.CartSnapshot{Lines: lines}); err != nil {
		s.logger.Error("cart snapshot save failed", "err", err)
	}
}

func removeLine(lines []domain.CartLine, itemID string) []domain.CartLine {
	out := lines[:0]
	for _, l := range lines {
		if l.ItemID != itemID {
			out = append(out, l)
		}
	}
	return out
}

func computeTotals(lines []domain.CartLine) domain.CartTotals {
	var t domain.CartTotals
	for _, l := range lines {
		t.Subtotal += l.Subtotal()
		t.ItemCount += l.Quantity
	}
	t.LineCount = len(lines)
	return t
}
