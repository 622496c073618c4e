package sniper

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"pair-snipe-bot-go/internal/wallet"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type recordingBroadcaster struct {
	mu     sync.Mutex
	nonces []uint64
	values []*big.Int
	to     []common.Address
	err    error
}

func (r *recordingBroadcaster) Broadcast(ctx context.Context, tx *types.Transaction, timeout time.Duration) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return common.Hash{}, r.err
	}
	r.nonces = append(r.nonces, tx.Nonce())
	r.values = append(r.values, tx.Value())
	r.to = append(r.to, *tx.To())
	return tx.Hash(), nil
}

type stubChainReader struct {
	gasPrice  *big.Int
	allowance *big.Int

	// pending nonces are served in order, last value repeating
	pending    []uint64
	pendingIdx int
}

func (s *stubChainReader) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if s.gasPrice == nil {
		return big.NewInt(5_000_000_000), nil
	}
	return s.gasPrice, nil
}

func (s *stubChainReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return s.allowance, nil
}

func (s *stubChainReader) WaitForReceipt(ctx context.Context, txHash common.Hash, confirmations int, timeout time.Duration) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (s *stubChainReader) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if len(s.pending) == 0 {
		return 0, nil
	}
	n := s.pending[s.pendingIdx]
	if s.pendingIdx < len(s.pending)-1 {
		s.pendingIdx++
	}
	return n, nil
}

func newTestTrader(t *testing.T, b TxBroadcaster, chain *stubChainReader) (*Trader, *wallet.NonceTracker) {
	t.Helper()

	raw := logrus.New()
	raw.SetOutput(io.Discard)

	w, err := wallet.NewWallet(wallet.WalletConfig{
		PrivateKey: testKeyHex,
		ChainID:    big.NewInt(56),
	}, raw)
	if err != nil {
		t.Fatalf("failed to create wallet: %v", err)
	}

	nonces := wallet.NewNonceTracker(w.Address(), chain, raw)
	return NewTrader(newTestConfig(), w, nonces, b, chain, newTestLogger(t)), nonces
}

func TestBuyThenSellNonceIsMonotonic(t *testing.T) {
	b := &recordingBroadcaster{}
	chain := &stubChainReader{
		allowance: new(big.Int).Lsh(big.NewInt(1), 200),
		// First read seeds the buy; by the sell's resync the chain has
		// consumed the buy nonce.
		pending: []uint64{0, 1},
	}
	trader, _ := newTestTrader(t, b, chain)
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	buy, err := trader.BuyToken(context.Background(), token)
	if err != nil || !buy.Success {
		t.Fatalf("buy failed: %v", err)
	}
	if buy.Nonce != 0 {
		t.Fatalf("buy nonce = %d, want 0", buy.Nonce)
	}

	sell, err := trader.SellToken(context.Background(), token, big.NewInt(1000))
	if err != nil || !sell.Success {
		t.Fatalf("sell failed: %v", err)
	}
	if sell.Nonce != buy.Nonce+1 {
		t.Fatalf("sell nonce = %d, want %d", sell.Nonce, buy.Nonce+1)
	}

	if len(b.nonces) != 2 || b.nonces[0] != 0 || b.nonces[1] != 1 {
		t.Fatalf("broadcast nonces = %v, want [0 1]", b.nonces)
	}
}

func TestBuySendsConfiguredValueToRouter(t *testing.T) {
	b := &recordingBroadcaster{}
	trader, _ := newTestTrader(t, b, &stubChainReader{})
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	if _, err := trader.BuyToken(context.Background(), token); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	if b.to[0] != trader.router {
		t.Fatalf("buy sent to %s, want router %s", b.to[0].Hex(), trader.router.Hex())
	}
	if want := trader.cfg.BuyAmountWei(); b.values[0].Cmp(want) != 0 {
		t.Fatalf("buy value = %s, want %s", b.values[0], want)
	}
}

func TestSellApprovesWhenAllowanceShort(t *testing.T) {
	b := &recordingBroadcaster{}
	chain := &stubChainReader{allowance: big.NewInt(0)}
	trader, _ := newTestTrader(t, b, chain)
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	if _, err := trader.SellToken(context.Background(), token, big.NewInt(1000)); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if len(b.to) != 2 {
		t.Fatalf("expected approve then sell, got %d transactions", len(b.to))
	}
	if b.to[0] != token {
		t.Fatalf("approve sent to %s, want token %s", b.to[0].Hex(), token.Hex())
	}
	if b.to[1] != trader.router {
		t.Fatalf("sell sent to %s, want router %s", b.to[1].Hex(), trader.router.Hex())
	}
	if b.nonces[1] != b.nonces[0]+1 {
		t.Fatalf("sell nonce %d must follow approve nonce %d", b.nonces[1], b.nonces[0])
	}
}

func TestBuyFailureDoesNotBurnNonce(t *testing.T) {
	b := &recordingBroadcaster{err: errors.New("connection reset")}
	chain := &stubChainReader{}
	trader, nonces := newTestTrader(t, b, chain)
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	result, err := trader.BuyToken(context.Background(), token)
	if err == nil || result.Success {
		t.Fatal("expected buy to fail")
	}

	next, err := nonces.Next(context.Background())
	if err != nil {
		t.Fatalf("nonce read failed: %v", err)
	}
	if next != 0 {
		t.Fatalf("failed broadcast must not advance the nonce, got %d", next)
	}
}

func TestNonceConflictTriggersResync(t *testing.T) {
	b := &recordingBroadcaster{err: errors.New("all broadcast endpoints failed: nonce too low")}
	chain := &stubChainReader{pending: []uint64{0, 9}}
	trader, nonces := newTestTrader(t, b, chain)
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	if _, err := trader.BuyToken(context.Background(), token); err == nil {
		t.Fatal("expected buy to fail")
	}

	// The conflict handler resynced from the chain's pending view.
	next, err := nonces.Next(context.Background())
	if err != nil {
		t.Fatalf("nonce read failed: %v", err)
	}
	if next != 9 {
		t.Fatalf("expected resynced nonce 9, got %d", next)
	}
}

func TestIsNonceConflict(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("nonce too low"), true},
		{errors.New("already known"), true},
		{errors.New("replacement transaction underpriced"), true},
		{errors.New("Nonce Too Low: next expected 14"), true},
		{errors.New("insufficient funds for gas * price + value"), false},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsNonceConflict(tc.err); got != tc.want {
			t.Fatalf("IsNonceConflict(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestGasPriceClampedToCeiling(t *testing.T) {
	chain := &stubChainReader{gasPrice: big.NewInt(500_000_000_000)} // 500 gwei suggested
	trader, _ := newTestTrader(t, &recordingBroadcaster{}, chain)
	trader.cfg.Trading.CompetitiveGas = true

	price, err := trader.gasPrice(context.Background())
	if err != nil {
		t.Fatalf("gasPrice failed: %v", err)
	}
	if price.Cmp(trader.cfg.MaxGasPriceWei()) != 0 {
		t.Fatalf("price = %s, want ceiling %s", price, trader.cfg.MaxGasPriceWei())
	}
}

func TestGasPriceFixedWhenNotCompetitive(t *testing.T) {
	trader, _ := newTestTrader(t, &recordingBroadcaster{}, &stubChainReader{})

	price, err := trader.gasPrice(context.Background())
	if err != nil {
		t.Fatalf("gasPrice failed: %v", err)
	}
	if price.Cmp(trader.cfg.GasPriceWei()) != 0 {
		t.Fatalf("price = %s, want configured %s", price, trader.cfg.GasPriceWei())
	}
}
