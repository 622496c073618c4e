package eth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// ErrAllEndpointsFailed indicates every configured endpoint rejected or timed
// out on a broadcast.
var ErrAllEndpointsFailed = errors.New("all broadcast endpoints failed")

// TxSender is the slice of client surface the broadcaster needs
type TxSender interface {
	Name() string
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// BroadcastAttempt records one endpoint's outcome for diagnostics
type BroadcastAttempt struct {
	Endpoint string
	Err      error
	Elapsed  time.Duration
}

// Broadcaster races a signed transaction across every configured endpoint and
// returns as soon as one accepts it. Losing endpoints settle in the background
// and have their outcomes logged; an endpoint rejecting a transaction the
// winner accepted (e.g. "already known") is expected and non-fatal.
type Broadcaster struct {
	senders []TxSender
	logger  *logrus.Logger
}

// NewBroadcaster creates a broadcaster over the given endpoints
func NewBroadcaster(senders []TxSender, logger *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		senders: senders,
		logger:  logger,
	}
}

// Broadcast submits tx to all endpoints concurrently. The first success wins;
// ErrAllEndpointsFailed is returned only after every endpoint has errored or
// exceeded timeout.
func (b *Broadcaster) Broadcast(ctx context.Context, tx *types.Transaction, timeout time.Duration) (common.Hash, error) {
	txHash := tx.Hash()
	results := make(chan BroadcastAttempt, len(b.senders))

	start := time.Now()
	for _, sender := range b.senders {
		go func(s TxSender) {
			sendCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			attemptStart := time.Now()
			err := s.SendTransaction(sendCtx, tx)
			results <- BroadcastAttempt{
				Endpoint: s.Name(),
				Err:      err,
				Elapsed:  time.Since(attemptStart),
			}
		}(sender)
	}

	failures := 0
	var lastErr error
	for i := 0; i < len(b.senders); i++ {
		select {
		case attempt := <-results:
			if attempt.Err == nil {
				b.logger.WithFields(logrus.Fields{
					"tx":         txHash.Hex(),
					"endpoint":   attempt.Endpoint,
					"elapsed_ms": attempt.Elapsed.Milliseconds(),
					"race_ms":    time.Since(start).Milliseconds(),
				}).Info("📤 Broadcast accepted")

				// Losers keep settling in the background for telemetry.
				go b.drainRemaining(txHash, results, len(b.senders)-i-1)
				return txHash, nil
			}

			failures++
			lastErr = attempt.Err
			b.logger.WithFields(logrus.Fields{
				"tx":         txHash.Hex(),
				"endpoint":   attempt.Endpoint,
				"elapsed_ms": attempt.Elapsed.Milliseconds(),
			}).WithError(attempt.Err).Warn("Broadcast endpoint failed")

		case <-ctx.Done():
			go b.drainRemaining(txHash, results, len(b.senders)-i)
			return common.Hash{}, ctx.Err()
		}
	}

	b.logger.WithFields(logrus.Fields{
		"tx":       txHash.Hex(),
		"failures": failures,
	}).Error("❌ Broadcast failed on every endpoint")

	// Keep the last endpoint error visible so callers can classify it
	// (nonce conflicts in particular).
	return common.Hash{}, fmt.Errorf("%w: %v", ErrAllEndpointsFailed, lastErr)
}

// drainRemaining collects the outcomes of endpoints that lost the race
func (b *Broadcaster) drainRemaining(txHash common.Hash, results <-chan BroadcastAttempt, remaining int) {
	for i := 0; i < remaining; i++ {
		attempt := <-results
		fields := logrus.Fields{
			"tx":         txHash.Hex(),
			"endpoint":   attempt.Endpoint,
			"elapsed_ms": attempt.Elapsed.Milliseconds(),
		}
		if attempt.Err != nil {
			// Duplicate rejections after a win are the normal case here.
			b.logger.WithFields(fields).WithError(attempt.Err).Debug("Late broadcast attempt settled with error")
		} else {
			b.logger.WithFields(fields).Debug("Late broadcast attempt settled")
		}
	}
}

// Endpoints returns the number of configured endpoints
func (b *Broadcaster) Endpoints() int {
	return len(b.senders)
}
