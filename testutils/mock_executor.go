package testutils

import (
	"sync"

	"github.com/evdnx/stratcore/executor"
	"github.com/evdnx/stratcore/types"
)

// MockExecutor implements executor.Executor in‑memory on top of the paper
// dispatcher, records every accepted order and can be told to reject.
type MockExecutor struct {
	*executor.PaperExecutor

	mu       sync.RWMutex
	orders   []types.Order // captured for assertions
	attempts int
	rejects  []error
}

// NewMockExecutor creates a fresh executor with the supplied starting equity.
func NewMockExecutor(startEquity float64) *MockExecutor {
	return &MockExecutor{PaperExecutor: executor.NewPaperExecutor(startEquity)}
}

// RejectNext makes the next Submit call fail with err.
func (m *MockExecutor) RejectNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejects = append(m.rejects, err)
}

// Submit records the order and fills it exactly like PaperExecutor.
func (m *MockExecutor) Submit(o types.Order) error {
	m.mu.Lock()
	m.attempts++
	if len(m.rejects) > 0 {
		err := m.rejects[0]
		m.rejects = m.rejects[1:]
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if err := m.PaperExecutor.Submit(o); err != nil {
		return err
	}
	if o.Qty == 0 {
		return nil
	}
	m.mu.Lock()
	m.orders = append(m.orders, o)
	m.mu.Unlock()
	return nil
}

// Attempts counts every Submit call, rejected or not.
func (m *MockExecutor) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// Orders returns a copy of all filled orders (useful for assertions).
func (m *MockExecutor) Orders() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}

// SetPosition seeds a position by filling a synthetic order.
func (m *MockExecutor) SetPosition(symbol string, qty, price float64) {
	if qty == 0 {
		return
	}
	side := types.Buy
	if qty < 0 {
		side = types.Sell
		qty = -qty
	}
	_ = m.PaperExecutor.Submit(types.Order{Symbol: symbol, Side: side, Qty: qty, Price: price})
}
