package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// PendingNonceReader is the client surface needed to resync the counter
type PendingNonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceTracker is the process-wide nonce counter. Only one transaction flow is
// active at a time in practice (the trade gate serializes positions), but
// failed broadcasts and external wallet activity can still desynchronize the
// counter, so callers resync before any use that follows a long suspension.
type NonceTracker struct {
	mu      sync.Mutex
	next    uint64
	synced  bool
	account common.Address
	reader  PendingNonceReader
	logger  *logrus.Logger
}

// NewNonceTracker creates a nonce tracker for an account
func NewNonceTracker(account common.Address, reader PendingNonceReader, logger *logrus.Logger) *NonceTracker {
	return &NonceTracker{
		account: account,
		reader:  reader,
		logger:  logger,
	}
}

// Next returns the nonce to use for the next transaction, syncing from the
// chain on first use. The counter is NOT advanced; call Advance only after a
// successful broadcast so a failed send leaves no gap.
func (nt *NonceTracker) Next(ctx context.Context) (uint64, error) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if !nt.synced {
		if err := nt.resyncLocked(ctx); err != nil {
			return 0, err
		}
	}
	return nt.next, nil
}

// Advance increments the counter after a successful broadcast
func (nt *NonceTracker) Advance() {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	nt.next++
}

// Resync reloads the counter from the chain's pending nonce view
func (nt *NonceTracker) Resync(ctx context.Context) error {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return nt.resyncLocked(ctx)
}

func (nt *NonceTracker) resyncLocked(ctx context.Context) error {
	pending, err := nt.reader.PendingNonceAt(ctx, nt.account)
	if err != nil {
		return fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	if nt.synced && pending != nt.next {
		nt.logger.WithFields(logrus.Fields{
			"local":   nt.next,
			"pending": pending,
		}).Warn("Nonce drift detected, resyncing from chain")
	}

	nt.next = pending
	nt.synced = true
	return nil
}
