package sniper

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"pair-snipe-bot-go/internal/config"
	"pair-snipe-bot-go/internal/logger"
)

type fakePrices struct {
	mu    sync.Mutex
	snaps []*PairSnapshot
	idx   int
}

func (f *fakePrices) Snapshot(ctx context.Context, pair common.Address, tokenIsToken1 bool) *PairSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snaps) == 0 {
		return &PairSnapshot{PriceScaled: big.NewInt(0), BaseLiquidity: big.NewInt(0)}
	}
	snap := f.snaps[f.idx]
	if f.idx < len(f.snaps)-1 {
		f.idx++
	}
	return snap
}

type fakeSeller struct {
	mu        sync.Mutex
	calls     int
	amount    *big.Int
	err       error
	panics    bool
	nilResult bool
}

func (f *fakeSeller) SellToken(ctx context.Context, token common.Address, amount *big.Int) (*TradeResult, error) {
	f.mu.Lock()
	f.calls++
	f.amount = amount
	f.mu.Unlock()
	if f.panics {
		panic("seller exploded")
	}
	if f.nilResult {
		return nil, f.err
	}
	if f.err != nil {
		return &TradeResult{Success: false, Error: f.err.Error()}, f.err
	}
	return &TradeResult{Success: true, TxHash: common.HexToHash("0xbeef"), GasPrice: big.NewInt(1)}, nil
}

func (f *fakeSeller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeChain struct {
	receipt    *types.Receipt
	receiptErr error
	balance    *big.Int
	balanceErr error
}

func (f *fakeChain) WaitForReceipt(ctx context.Context, txHash common.Hash, confirmations int, timeout time.Duration) (*types.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeChain) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return f.balance, f.balanceErr
}

func snap(price, liquidity int64) *PairSnapshot {
	return &PairSnapshot{PriceScaled: big.NewInt(price), BaseLiquidity: big.NewInt(liquidity)}
}

func newTestMonitor(t *testing.T, cfg monitorDeps) (*Monitor, *TradeGate) {
	t.Helper()
	gate := NewTradeGate()
	pos := &Position{
		Token:         common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Pair:          common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		TokenIsToken1: true,
		TokenName:     "Rocket",
	}
	if !gate.TryAcquire(pos.Token) {
		t.Fatal("failed to seed gate")
	}
	m := NewMonitor(cfg.cfg, gate, cfg.prices, cfg.seller, cfg.chain,
		common.HexToAddress("0x00000000000000000000000000000000000000cc"),
		pos, common.HexToHash("0xabcd"), 7, newTestLogger(t), nil)
	return m, gate
}

type monitorDeps struct {
	cfg    *config.Config
	prices PriceSource
	seller *fakeSeller
	chain  *fakeChain
}

func TestMonitorProfitTargetExit(t *testing.T) {
	cfg := newTestConfig()
	seller := &fakeSeller{}
	chain := &fakeChain{
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful},
		balance: big.NewInt(1_000_000),
	}
	prices := &fakePrices{snaps: []*PairSnapshot{
		snap(100, 1000), // entry
		snap(103, 1000), // below target
		snap(106, 1000), // 6% over entry, target is 5%
	}}

	m, gate := newTestMonitor(t, monitorDeps{cfg: cfg, prices: prices, seller: seller, chain: chain})

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not exit")
	}

	if got := seller.callCount(); got != 1 {
		t.Fatalf("expected exactly one sell, got %d", got)
	}
	if seller.amount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("sell amount = %s, want full balance", seller.amount)
	}
	if gate.Active() {
		t.Fatal("gate must be released after exit")
	}
	if m.State() != StateDone {
		t.Fatalf("state = %s, want done", m.State())
	}
}

func TestMonitorLiquidityDropBeatsProfit(t *testing.T) {
	cfg := newTestConfig()
	cfg.Strategy.LiquidityGuard = true
	cfg.Strategy.MinLiquidityEth = 1.0

	seller := &fakeSeller{}
	m, _ := newTestMonitor(t, monitorDeps{
		cfg:    cfg,
		seller: seller,
		chain:  &fakeChain{},
		prices: &fakePrices{snaps: []*PairSnapshot{
			// Price doubled AND the pool drained below 1 base unit; the
			// drain must win.
			{PriceScaled: big.NewInt(200), BaseLiquidity: new(big.Int).Div(ethUnits(1), big.NewInt(2))},
		}},
	})
	m.pos.EntryPrice = big.NewInt(100)
	m.pos.PeakPrice = big.NewInt(100)
	m.pos.Balance = big.NewInt(500)
	m.setState(StateMonitoring)

	reason, exited := m.tick(context.Background())
	if !exited {
		t.Fatal("tick should have triggered an exit")
	}
	if reason != "liquidity_drop" {
		t.Fatalf("reason = %q, want liquidity_drop", reason)
	}
	if seller.callCount() != 1 {
		t.Fatalf("expected one sell, got %d", seller.callCount())
	}
}

func TestMonitorZeroPriceTickIsNoop(t *testing.T) {
	seller := &fakeSeller{}
	m, _ := newTestMonitor(t, monitorDeps{
		cfg:    newTestConfig(),
		seller: seller,
		chain:  &fakeChain{},
		prices: &fakePrices{snaps: []*PairSnapshot{snap(0, 0)}},
	})
	m.pos.EntryPrice = big.NewInt(100)
	m.pos.PeakPrice = big.NewInt(100)
	m.pos.Balance = big.NewInt(500)
	m.setState(StateMonitoring)

	if _, exited := m.tick(context.Background()); exited {
		t.Fatal("failed snapshot must not trigger an exit")
	}
	if seller.callCount() != 0 {
		t.Fatal("failed snapshot must not sell")
	}
}

func TestMonitorPeakTracksHighWaterMark(t *testing.T) {
	m, _ := newTestMonitor(t, monitorDeps{
		cfg:    newTestConfig(),
		seller: &fakeSeller{},
		chain:  &fakeChain{},
		prices: &fakePrices{snaps: []*PairSnapshot{snap(103, 1000)}},
	})
	m.pos.EntryPrice = big.NewInt(100)
	m.pos.PeakPrice = big.NewInt(100)
	m.pos.Balance = big.NewInt(500)
	m.setState(StateMonitoring)

	if _, exited := m.tick(context.Background()); exited {
		t.Fatal("3% gain must not exit at a 5% target")
	}
	if m.pos.PeakPrice.Cmp(big.NewInt(103)) != 0 {
		t.Fatalf("peak = %s, want 103", m.pos.PeakPrice)
	}

	m.prices.(*fakePrices).snaps = []*PairSnapshot{snap(101, 1000)}
	m.prices.(*fakePrices).idx = 0
	m.tick(context.Background())
	if m.pos.PeakPrice.Cmp(big.NewInt(103)) != 0 {
		t.Fatalf("peak must not regress, got %s", m.pos.PeakPrice)
	}
}

func TestMonitorAtMostOneSell(t *testing.T) {
	seller := &fakeSeller{}
	m, _ := newTestMonitor(t, monitorDeps{
		cfg:    newTestConfig(),
		seller: seller,
		chain:  &fakeChain{},
		prices: &fakePrices{},
	})
	m.pos.EntryPrice = big.NewInt(100)
	m.pos.PeakPrice = big.NewInt(100)
	m.pos.Balance = big.NewInt(500)
	m.setState(StateMonitoring)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.sell(context.Background(), "profit_target", big.NewInt(110))
		}()
	}
	wg.Wait()

	if got := seller.callCount(); got != 1 {
		t.Fatalf("expected exactly one sell across overlapping triggers, got %d", got)
	}
	if !m.Sold() {
		t.Fatal("sold flag must be set")
	}
}

func TestMonitorAbandonsWithoutSellable(t *testing.T) {
	cases := []struct {
		name  string
		chain *fakeChain
	}{
		{"receipt error", &fakeChain{receiptErr: errors.New("rpc down")}},
		{"receipt timeout", &fakeChain{receipt: nil}},
		{"buy reverted", &fakeChain{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}},
		{"no tokens", &fakeChain{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}, balance: big.NewInt(0)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seller := &fakeSeller{}
			m, gate := newTestMonitor(t, monitorDeps{
				cfg:    newTestConfig(),
				seller: seller,
				chain:  tc.chain,
				prices: &fakePrices{snaps: []*PairSnapshot{snap(0, 0)}},
			})

			m.Run(context.Background())

			if gate.Active() {
				t.Fatal("gate must be released when the buy never lands")
			}
			if seller.callCount() != 0 {
				t.Fatal("nothing to sell when the buy never lands")
			}
			if m.State() != StateDone {
				t.Fatalf("state = %s, want done", m.State())
			}
		})
	}
}

func TestMonitorAbandonsWithoutEntryPrice(t *testing.T) {
	m, gate := newTestMonitor(t, monitorDeps{
		cfg:    newTestConfig(),
		seller: &fakeSeller{},
		chain: &fakeChain{
			receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful},
			balance: big.NewInt(100),
		},
		prices: &fakePrices{snaps: []*PairSnapshot{snap(0, 0)}},
	})

	m.Run(context.Background())

	if gate.Active() {
		t.Fatal("gate must be released when no entry price is available")
	}
}

func TestMonitorReleasesGateOnPanic(t *testing.T) {
	seller := &fakeSeller{panics: true}
	chain := &fakeChain{
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful},
		balance: big.NewInt(100),
	}
	prices := &fakePrices{snaps: []*PairSnapshot{
		snap(100, 1000),
		snap(200, 1000), // well past target, triggers the panicking seller
	}}

	m, gate := newTestMonitor(t, monitorDeps{cfg: newTestConfig(), prices: prices, seller: seller, chain: chain})

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not survive the panic")
	}

	if gate.Active() {
		t.Fatal("gate must be released even when the sell panics")
	}
}

func TestMonitorSellFailureStillCloses(t *testing.T) {
	seller := &fakeSeller{err: errors.New("TRANSFER_FROM_FAILED")}
	m, _ := newTestMonitor(t, monitorDeps{
		cfg:    newTestConfig(),
		seller: seller,
		chain:  &fakeChain{},
		prices: &fakePrices{},
	})
	m.pos.EntryPrice = big.NewInt(100)
	m.pos.PeakPrice = big.NewInt(100)
	m.pos.Balance = big.NewInt(500)
	m.setState(StateMonitoring)

	m.sell(context.Background(), "profit_target", big.NewInt(110))

	if !m.Sold() {
		t.Fatal("a failed sell still consumes the single attempt")
	}
	if seller.callCount() != 1 {
		t.Fatalf("expected one attempt, got %d", seller.callCount())
	}
}

func TestMonitorSellNilResultStillRecords(t *testing.T) {
	seller := &fakeSeller{err: errors.New("rpc connection refused"), nilResult: true}
	m, _ := newTestMonitor(t, monitorDeps{
		cfg:    newTestConfig(),
		seller: seller,
		chain:  &fakeChain{},
		prices: &fakePrices{},
	})

	dir := t.TempDir()
	trades, err := logger.NewTradeLogger(dir, newTestLogger(t))
	if err != nil {
		t.Fatalf("failed to create trade logger: %v", err)
	}
	m.trades = trades

	m.pos.EntryPrice = big.NewInt(100)
	m.pos.PeakPrice = big.NewInt(100)
	m.pos.Balance = big.NewInt(500)
	m.setState(StateMonitoring)

	m.sell(context.Background(), "profit_target", big.NewInt(110))

	if !m.Sold() {
		t.Fatal("a failed sell still consumes the single attempt")
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one trade log file, got %d (err %v)", len(entries), err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("failed to read trade log: %v", err)
	}
	record := string(data)
	if !strings.Contains(record, `"trade_type":"sell"`) || !strings.Contains(record, `"status":"failed"`) {
		t.Fatalf("failed sell was not recorded: %s", record)
	}
	if !strings.Contains(record, "rpc connection refused") {
		t.Fatalf("sell error missing from record: %s", record)
	}
}

func TestMonitorShutdownReleasesGate(t *testing.T) {
	chain := &fakeChain{
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful},
		balance: big.NewInt(100),
	}
	prices := &fakePrices{snaps: []*PairSnapshot{snap(100, 1000)}}
	seller := &fakeSeller{}

	m, gate := newTestMonitor(t, monitorDeps{cfg: newTestConfig(), prices: prices, seller: seller, chain: chain})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not observe cancellation")
	}

	if gate.Active() {
		t.Fatal("gate must be released on shutdown")
	}
	if seller.callCount() != 0 {
		t.Fatal("shutdown must not force a sell")
	}
}
