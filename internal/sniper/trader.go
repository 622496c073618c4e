package sniper

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"pair-snipe-bot-go/internal/config"
	"pair-snipe-bot-go/internal/eth"
	"pair-snipe-bot-go/internal/logger"
	"pair-snipe-bot-go/internal/wallet"
	"pair-snipe-bot-go/pkg/utils"
)

// TxBroadcaster submits a signed transaction and returns its hash
type TxBroadcaster interface {
	Broadcast(ctx context.Context, tx *types.Transaction, timeout time.Duration) (common.Hash, error)
}

// ChainReader is the read-only RPC surface the trader needs
type ChainReader interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash, confirmations int, timeout time.Duration) (*types.Receipt, error)
}

// TradeResult captures the outcome of a single swap attempt
type TradeResult struct {
	Success  bool
	TxHash   common.Hash
	Nonce    uint64
	GasPrice *big.Int
	Error    string
}

// Trader builds, signs and broadcasts swap transactions against the V2
// router. Nonces come from the shared tracker and are advanced only after an
// endpoint has accepted the transaction, so a rejected broadcast never burns
// a nonce.
type Trader struct {
	cfg         *config.Config
	wallet      *wallet.Wallet
	nonces      *wallet.NonceTracker
	broadcaster TxBroadcaster
	chain       ChainReader
	logger      *logger.Logger

	router    common.Address
	baseToken common.Address
	dryRun    bool
}

// NewTrader creates a trader bound to the configured router and base token
func NewTrader(cfg *config.Config, w *wallet.Wallet, nonces *wallet.NonceTracker, b TxBroadcaster, chain ChainReader, log *logger.Logger) *Trader {
	return &Trader{
		cfg:         cfg,
		wallet:      w,
		nonces:      nonces,
		broadcaster: b,
		chain:       chain,
		logger:      log,
		router:      common.HexToAddress(cfg.Contracts.Router),
		baseToken:   common.HexToAddress(cfg.Contracts.BaseToken),
		dryRun:      cfg.Advanced.DryRun,
	}
}

// BuyToken swaps the configured base amount for token via
// swapExactETHForTokens. amountOutMin is pinned to zero: a new pair has no
// trustworthy quote to derive a minimum from, and a revert loses the race.
func (t *Trader) BuyToken(ctx context.Context, token common.Address) (*TradeResult, error) {
	amount := t.cfg.BuyAmountWei()
	t.logger.LogTradeAttempt("buy", token.Hex(), fmt.Sprintf("%.6f", utils.WeiToEther(amount)))

	gasPrice, err := t.gasPrice(ctx)
	if err != nil {
		return failedResult(err), err
	}

	nonce, err := t.nonces.Next(ctx)
	if err != nil {
		return failedResult(err), fmt.Errorf("failed to get nonce: %w", err)
	}

	deadline := t.deadline()
	data, err := eth.PackSwapExactETHForTokens(
		big.NewInt(0),
		[]common.Address{t.baseToken, token},
		t.wallet.Address(),
		deadline,
	)
	if err != nil {
		return failedResult(err), fmt.Errorf("failed to pack buy calldata: %w", err)
	}

	tx := types.NewTransaction(nonce, t.router, amount, config.DefaultSwapGasLimit, gasPrice, data)
	result, err := t.submit(ctx, tx, "buy", token)
	if result.Success {
		t.logger.LogTradeSuccess("buy", token.Hex(), result.TxHash.Hex(), result.Nonce)
	}
	return result, err
}

// SellToken swaps amount of token back to the base asset using the
// fee-on-transfer router method. The nonce is resynced from the chain first;
// the buy may still be pending and local state may have drifted across the
// hold window.
func (t *Trader) SellToken(ctx context.Context, token common.Address, amount *big.Int) (*TradeResult, error) {
	t.logger.LogTradeAttempt("sell", token.Hex(), amount.String())

	if err := t.nonces.Resync(ctx); err != nil {
		return failedResult(err), fmt.Errorf("failed to resync nonce: %w", err)
	}

	gasPrice, err := t.gasPrice(ctx)
	if err != nil {
		return failedResult(err), err
	}

	if err := t.ensureAllowance(ctx, token, amount, gasPrice); err != nil {
		return failedResult(err), err
	}

	nonce, err := t.nonces.Next(ctx)
	if err != nil {
		return failedResult(err), fmt.Errorf("failed to get nonce: %w", err)
	}

	data, err := eth.PackSwapExactTokensForETH(
		amount,
		big.NewInt(0),
		[]common.Address{token, t.baseToken},
		t.wallet.Address(),
		t.deadline(),
	)
	if err != nil {
		return failedResult(err), fmt.Errorf("failed to pack sell calldata: %w", err)
	}

	tx := types.NewTransaction(nonce, t.router, big.NewInt(0), config.DefaultSwapGasLimit, gasPrice, data)
	result, err := t.submit(ctx, tx, "sell", token)
	if result.Success {
		t.logger.LogTradeSuccess("sell", token.Hex(), result.TxHash.Hex(), result.Nonce)
	}
	return result, err
}

// ensureAllowance approves the router for amount if the current allowance is
// short, and waits for the approval to land before the sell is built.
func (t *Trader) ensureAllowance(ctx context.Context, token common.Address, amount, gasPrice *big.Int) error {
	allowance, err := t.chain.Allowance(ctx, token, t.wallet.Address(), t.router)
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	data, err := eth.PackApprove(t.router, amount)
	if err != nil {
		return fmt.Errorf("failed to pack approve calldata: %w", err)
	}

	nonce, err := t.nonces.Next(ctx)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}

	tx := types.NewTransaction(nonce, token, big.NewInt(0), config.DefaultApproveGasLimit, gasPrice, data)
	result, err := t.submit(ctx, tx, "approve", token)
	if !result.Success {
		return fmt.Errorf("approve broadcast failed: %v", err)
	}

	receipt, err := t.chain.WaitForReceipt(ctx, result.TxHash, 1, t.confirmTimeout())
	if err != nil {
		return fmt.Errorf("approve confirmation failed: %w", err)
	}
	if receipt == nil {
		return fmt.Errorf("approve not confirmed within %s", t.confirmTimeout())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("approve reverted: %s", result.TxHash.Hex())
	}
	return nil
}

// submit signs and broadcasts tx, advancing the nonce only on acceptance
func (t *Trader) submit(ctx context.Context, tx *types.Transaction, tradeType string, token common.Address) (*TradeResult, error) {
	if t.dryRun {
		t.logger.WithFields(logrus.Fields{
			"type":  tradeType,
			"token": token.Hex(),
			"nonce": tx.Nonce(),
		}).Info("🧪 Dry run, transaction not broadcast")
		t.nonces.Advance()
		return &TradeResult{Success: true, TxHash: tx.Hash(), Nonce: tx.Nonce(), GasPrice: tx.GasPrice()}, nil
	}

	signed, err := t.wallet.SignTx(tx)
	if err != nil {
		return failedResult(err), fmt.Errorf("failed to sign transaction: %w", err)
	}

	hash, err := t.broadcaster.Broadcast(ctx, signed, time.Duration(config.BroadcastTimeoutSec)*time.Second)
	if err != nil {
		t.logger.LogTradeError(tradeType, token.Hex(), err)
		if IsNonceConflict(err) {
			if rerr := t.nonces.Resync(ctx); rerr != nil {
				t.logger.WithError(rerr).Warn("Nonce resync after conflict failed")
			}
		}
		return failedResult(err), fmt.Errorf("%s broadcast failed: %w", tradeType, err)
	}

	t.nonces.Advance()
	return &TradeResult{
		Success:  true,
		TxHash:   hash,
		Nonce:    tx.Nonce(),
		GasPrice: tx.GasPrice(),
	}, nil
}

// gasPrice returns either the fixed configured price or the node suggestion
// scaled by the multiplier, clamped to the configured ceiling.
func (t *Trader) gasPrice(ctx context.Context) (*big.Int, error) {
	if !t.cfg.Trading.CompetitiveGas {
		return t.cfg.GasPriceWei(), nil
	}

	suggested, err := t.chain.SuggestGasPrice(ctx)
	if err != nil {
		t.logger.WithError(err).Warn("Gas price suggestion failed, using configured price")
		return t.cfg.GasPriceWei(), nil
	}

	scaled := new(big.Float).Mul(new(big.Float).SetInt(suggested), big.NewFloat(t.cfg.Trading.GasMultiplier))
	price, _ := scaled.Int(nil)

	ceiling := t.cfg.MaxGasPriceWei()
	if price.Cmp(ceiling) > 0 {
		price = ceiling
	}
	return price, nil
}

// deadline returns the absolute unix timestamp the router must execute by
func (t *Trader) deadline() *big.Int {
	minutes := t.cfg.Trading.DeadlineMinutes
	if minutes <= 0 {
		minutes = 1
	}
	return big.NewInt(time.Now().Add(time.Duration(minutes) * time.Minute).Unix())
}

func (t *Trader) confirmTimeout() time.Duration {
	sec := t.cfg.Trading.ConfirmTimeoutSec
	if sec <= 0 {
		sec = config.ConfirmTimeoutSec
	}
	return time.Duration(sec) * time.Second
}

func failedResult(err error) *TradeResult {
	return &TradeResult{Success: false, Error: err.Error()}
}

// nonceConflictMarkers are substrings nodes use to report that a nonce was
// already consumed or contested.
var nonceConflictMarkers = []string{
	"nonce too low",
	"already known",
	"replacement transaction underpriced",
	"same hash was already imported",
}

// IsNonceConflict reports whether err looks like a nonce-level rejection
func IsNonceConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range nonceConflictMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
