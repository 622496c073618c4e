package sniper

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestTradeGateMutualExclusion(t *testing.T) {
	gate := NewTradeGate()

	const contenders = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < contenders; i++ {
		token := common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
		wg.Add(1)
		go func(token common.Address) {
			defer wg.Done()
			<-start
			if gate.TryAcquire(token) {
				wins.Add(1)
			}
		}(token)
	}

	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", got)
	}
	if !gate.Active() {
		t.Fatal("gate should be held after the race")
	}
	if gate.Target() == (common.Address{}) {
		t.Fatal("gate target should be the winner's token")
	}
}

func TestTradeGateReacquireAfterRelease(t *testing.T) {
	gate := NewTradeGate()
	a := common.HexToAddress("0x0000000000000000000000000000000000000001")
	b := common.HexToAddress("0x0000000000000000000000000000000000000002")

	if !gate.TryAcquire(a) {
		t.Fatal("first acquire should succeed")
	}
	if gate.TryAcquire(b) {
		t.Fatal("second acquire should fail while held")
	}

	gate.Release()
	if gate.Active() {
		t.Fatal("gate should be idle after release")
	}
	if gate.Target() != (common.Address{}) {
		t.Fatalf("released gate should have zero target, got %s", gate.Target().Hex())
	}

	if !gate.TryAcquire(b) {
		t.Fatal("acquire after release should succeed")
	}
	if gate.Target() != b {
		t.Fatalf("expected target %s, got %s", b.Hex(), gate.Target().Hex())
	}
}

func TestTradeGateReleaseIdempotent(t *testing.T) {
	gate := NewTradeGate()
	token := common.HexToAddress("0x0000000000000000000000000000000000000003")

	gate.TryAcquire(token)
	gate.Release()
	gate.Release()

	if !gate.TryAcquire(token) {
		t.Fatal("double release must leave the gate acquirable")
	}
}
