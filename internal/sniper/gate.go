package sniper

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TradeGate is the single-flight lock over the snipe lifecycle: at most one
// position may be active at a time, and contenders are rejected, not queued.
// Callers must re-acquire-check after any suspension point; the event stream
// keeps delivering while a handler is waiting on the network.
type TradeGate struct {
	mu     sync.Mutex
	active bool
	target common.Address
}

// NewTradeGate creates an unlocked gate
func NewTradeGate() *TradeGate {
	return &TradeGate{}
}

// TryAcquire atomically locks the gate for token if it is not already held.
// Returns false without mutation when another target holds the gate.
func (g *TradeGate) TryAcquire(token common.Address) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		return false
	}
	g.active = true
	g.target = token
	return true
}

// Release unlocks the gate. Idempotent; every terminal path of a position
// lifecycle must call it exactly once, and calling it again is harmless.
func (g *TradeGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
	g.target = common.Address{}
}

// Active reports whether a position lifecycle currently holds the gate
func (g *TradeGate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Target returns the token the gate is held for, or the zero address
func (g *TradeGate) Target() common.Address {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.target
}
