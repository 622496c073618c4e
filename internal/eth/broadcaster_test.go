package eth

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

type fakeSender struct {
	name  string
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.calls.Add(1)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.err
}

func testTx() *types.Transaction {
	return types.NewTransaction(0, common.HexToAddress("0x1"), big.NewInt(0), 21000, big.NewInt(1), nil)
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestBroadcastFirstSuccessWins(t *testing.T) {
	senders := []TxSender{
		&fakeSender{name: "slow-fail", delay: 10 * time.Millisecond, err: errors.New("rejected")},
		&fakeSender{name: "winner", delay: 50 * time.Millisecond},
		&fakeSender{name: "slow", delay: 300 * time.Millisecond},
	}
	b := NewBroadcaster(senders, discardLogger())
	tx := testTx()

	start := time.Now()
	hash, err := b.Broadcast(context.Background(), tx, time.Second)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if hash != tx.Hash() {
		t.Fatalf("hash = %s, want %s", hash.Hex(), tx.Hash().Hex())
	}
	// Returned when the 50ms endpoint accepted, not when the 300ms one settled.
	if elapsed < 45*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Fatalf("broadcast returned after %s, expected ~50ms", elapsed)
	}
}

func TestBroadcastAllEndpointsFail(t *testing.T) {
	senders := []TxSender{
		&fakeSender{name: "a", err: errors.New("insufficient funds")},
		&fakeSender{name: "b", err: errors.New("nonce too low")},
	}
	b := NewBroadcaster(senders, discardLogger())

	_, err := b.Broadcast(context.Background(), testTx(), time.Second)
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Fatalf("expected ErrAllEndpointsFailed, got %v", err)
	}
}

func TestBroadcastReachesEveryEndpoint(t *testing.T) {
	s1 := &fakeSender{name: "a"}
	s2 := &fakeSender{name: "b", delay: 20 * time.Millisecond}
	s3 := &fakeSender{name: "c", delay: 20 * time.Millisecond}
	b := NewBroadcaster([]TxSender{s1, s2, s3}, discardLogger())

	if _, err := b.Broadcast(context.Background(), testTx(), time.Second); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	for _, s := range []*fakeSender{s1, s2, s3} {
		if s.calls.Load() != 1 {
			t.Fatalf("endpoint %s got %d sends, want 1", s.name, s.calls.Load())
		}
	}
}

func TestBroadcastHonorsCallerContext(t *testing.T) {
	senders := []TxSender{
		&fakeSender{name: "hung", delay: 5 * time.Second},
	}
	b := NewBroadcaster(senders, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Broadcast(ctx, testTx(), 10*time.Second)
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("broadcast did not return promptly on cancellation")
	}
}
