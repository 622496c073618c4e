package sniper

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"pair-snipe-bot-go/internal/config"
	"pair-snipe-bot-go/internal/logger"
	"pair-snipe-bot-go/internal/metrics"
	"pair-snipe-bot-go/pkg/utils"
)

// MonitorState tracks where a position is in its lifecycle
type MonitorState int

const (
	StateAwaitingBuyConfirmation MonitorState = iota
	StateMonitoring
	StateSelling
	StateDone
)

func (s MonitorState) String() string {
	switch s {
	case StateAwaitingBuyConfirmation:
		return "awaiting_buy_confirmation"
	case StateMonitoring:
		return "monitoring"
	case StateSelling:
		return "selling"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// PriceSource provides pair snapshots for exit decisions
type PriceSource interface {
	Snapshot(ctx context.Context, pair common.Address, tokenIsToken1 bool) *PairSnapshot
}

// SellExecutor performs the exit swap
type SellExecutor interface {
	SellToken(ctx context.Context, token common.Address, amount *big.Int) (*TradeResult, error)
}

// ReceiptSource confirms the entry buy and reads the resulting balance
type ReceiptSource interface {
	WaitForReceipt(ctx context.Context, txHash common.Hash, confirmations int, timeout time.Duration) (*types.Receipt, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Position is the live state of one sniped token
type Position struct {
	Token         common.Address
	Pair          common.Address
	TokenIsToken1 bool
	TokenName     string
	EntryPrice    *big.Int
	PeakPrice     *big.Int
	Balance       *big.Int
}

// Monitor owns a position from buy confirmation through exit. It holds the
// trade gate for its whole lifetime and releases it on every terminal path,
// including panics; a stuck gate would freeze the bot permanently.
//
// Exit checks per tick run in strict priority order: liquidity collapse,
// then peak tracking, then profit target. A draining pool must never be
// mistaken for a price pump.
type Monitor struct {
	cfg    *config.Config
	gate   *TradeGate
	prices PriceSource
	seller SellExecutor
	chain  ReceiptSource
	logger *logger.Logger
	trades *logger.TradeLogger

	owner    common.Address
	pos      *Position
	buyTx    common.Hash
	buyNonce uint64

	mu     sync.Mutex
	state  MonitorState
	sold   bool
	ticker *time.Ticker
}

// NewMonitor creates a monitor for a freshly broadcast buy. The caller must
// already hold the gate for pos.Token.
func NewMonitor(cfg *config.Config, gate *TradeGate, prices PriceSource, seller SellExecutor, chain ReceiptSource, owner common.Address, pos *Position, buyTx common.Hash, buyNonce uint64, log *logger.Logger, trades *logger.TradeLogger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		gate:     gate,
		prices:   prices,
		seller:   seller,
		chain:    chain,
		owner:    owner,
		pos:      pos,
		buyTx:    buyTx,
		buyNonce: buyNonce,
		logger:   log,
		trades:   trades,
		state:    StateAwaitingBuyConfirmation,
	}
}

// State returns the current lifecycle state
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s MonitorState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Run drives the position to completion. It blocks until the position is
// closed or abandoned and always releases the gate on return.
func (m *Monitor) Run(ctx context.Context) {
	releaseReason := "unknown"

	defer func() {
		if r := recover(); r != nil {
			releaseReason = "panic"
			m.logger.WithFields(logrus.Fields{
				"token": m.pos.Token.Hex(),
				"panic": r,
			}).Error("💥 Monitor panicked, abandoning position")
		}
		m.setState(StateDone)
		if m.trades != nil {
			m.trades.ClosePosition(m.pos.Token.Hex())
		}
		m.gate.Release()
		metrics.GateActive.Set(0)
		m.logger.LogGateReleased(m.pos.Token.Hex(), releaseReason)
	}()

	reason, ok := m.awaitBuy(ctx)
	if !ok {
		releaseReason = reason
		return
	}

	releaseReason = m.monitorLoop(ctx)
}

// awaitBuy confirms the entry transaction and seeds the position. Any
// failure here abandons the position; there is nothing to sell yet.
func (m *Monitor) awaitBuy(ctx context.Context) (string, bool) {
	timeout := time.Duration(m.cfg.Trading.ConfirmTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = config.ConfirmTimeoutSec * time.Second
	}

	receipt, err := m.chain.WaitForReceipt(ctx, m.buyTx, m.cfg.Trading.Confirmations, timeout)
	if err != nil {
		m.logger.WithToken(m.pos.Token.Hex()).WithError(err).Error("Buy confirmation failed")
		return "buy_confirm_error", false
	}
	if receipt == nil {
		m.logger.WithToken(m.pos.Token.Hex()).Warn("Buy not confirmed within timeout")
		return "buy_confirm_timeout", false
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		m.logger.WithToken(m.pos.Token.Hex()).WithField("tx", m.buyTx.Hex()).Warn("Buy reverted on-chain")
		return "buy_reverted", false
	}

	balance, err := m.chain.BalanceOf(ctx, m.pos.Token, m.owner)
	if err != nil || balance.Sign() == 0 {
		m.logger.WithToken(m.pos.Token.Hex()).Warn("Buy confirmed but no tokens received")
		return "no_tokens_received", false
	}

	snap := m.prices.Snapshot(ctx, m.pos.Pair, m.pos.TokenIsToken1)
	if snap.PriceScaled.Sign() == 0 {
		m.logger.WithToken(m.pos.Token.Hex()).Warn("No entry price available, abandoning position")
		return "no_entry_price", false
	}

	m.pos.Balance = balance
	m.pos.EntryPrice = snap.PriceScaled
	m.pos.PeakPrice = new(big.Int).Set(snap.PriceScaled)
	m.setState(StateMonitoring)

	m.logger.WithFields(logrus.Fields{
		"token":       m.pos.Token.Hex(),
		"name":        m.pos.TokenName,
		"balance":     balance.String(),
		"entry_price": snap.PriceScaled.String(),
		"liquidity":   snap.BaseLiquidity.String(),
	}).Info("👀 Position open, monitoring for exit")

	return "", true
}

// monitorLoop ticks until an exit fires, the hold window expires or the
// context is cancelled. Returns the release reason.
func (m *Monitor) monitorLoop(ctx context.Context) string {
	interval := time.Duration(m.cfg.Strategy.MonitorIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	m.mu.Lock()
	m.ticker = time.NewTicker(interval)
	m.mu.Unlock()
	defer m.ticker.Stop()

	var maxHold <-chan time.Time
	if m.cfg.Strategy.MaxHoldMinutes > 0 {
		timer := time.NewTimer(time.Duration(m.cfg.Strategy.MaxHoldMinutes) * time.Minute)
		defer timer.Stop()
		maxHold = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return "shutdown"

		case <-maxHold:
			m.logger.WithToken(m.pos.Token.Hex()).Warn("⏰ Max hold time reached, forcing exit")
			m.sell(ctx, "max_hold", m.pos.PeakPrice)
			return "max_hold"

		case <-m.ticker.C:
			if reason, done := m.tick(ctx); done {
				return reason
			}
		}
	}
}

// tick evaluates one snapshot against the exit rules. A failed snapshot is a
// no-op tick, never an exit.
func (m *Monitor) tick(ctx context.Context) (string, bool) {
	if m.State() != StateMonitoring {
		return "", false
	}

	snap := m.prices.Snapshot(ctx, m.pos.Pair, m.pos.TokenIsToken1)
	if snap.PriceScaled.Sign() == 0 {
		return "", false
	}

	if m.cfg.Strategy.LiquidityGuard {
		minLiquidity := m.cfg.MinLiquidityWei()
		if minLiquidity.Sign() > 0 && snap.BaseLiquidity.Cmp(minLiquidity) < 0 {
			m.logger.WithFields(logrus.Fields{
				"token":     m.pos.Token.Hex(),
				"liquidity": snap.BaseLiquidity.String(),
				"minimum":   minLiquidity.String(),
			}).Warn("🚨 Liquidity collapsed below minimum")
			m.sell(ctx, "liquidity_drop", snap.PriceScaled)
			return "liquidity_drop", true
		}
	}

	if snap.PriceScaled.Cmp(m.pos.PeakPrice) > 0 {
		m.pos.PeakPrice.Set(snap.PriceScaled)
	}

	if m.profitReached(snap.PriceScaled) {
		m.logger.WithFields(logrus.Fields{
			"token":    m.pos.Token.Hex(),
			"gain_pct": utils.ScaledPercentageChange(m.pos.EntryPrice, snap.PriceScaled),
		}).Info("🎯 Profit target reached")
		m.sell(ctx, "profit_target", snap.PriceScaled)
		return "profit_target", true
	}

	return "", false
}

// profitReached compares current price against entry scaled by the target,
// in integer basis points to avoid float drift on big reserves.
func (m *Monitor) profitReached(current *big.Int) bool {
	targetBps := int64(m.cfg.Strategy.ProfitTargetPercent * 100)
	if targetBps <= 0 {
		return false
	}
	lhs := new(big.Int).Mul(current, big.NewInt(10_000))
	rhs := new(big.Int).Mul(m.pos.EntryPrice, big.NewInt(10_000+targetBps))
	return lhs.Cmp(rhs) >= 0
}

// sell performs the exit swap at most once, no matter how many triggers
// fire. A failed sell still closes the position; retrying into a drained or
// honeypot pool only burns gas.
func (m *Monitor) sell(ctx context.Context, reason string, currentPrice *big.Int) {
	m.mu.Lock()
	if m.sold {
		m.mu.Unlock()
		return
	}
	m.sold = true
	m.state = StateSelling
	ticker := m.ticker
	m.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}

	m.logger.LogSellTrigger(m.pos.Token.Hex(), reason, m.pos.EntryPrice.String(), currentPrice.String())
	metrics.SellsTotal.WithLabelValues(reason).Inc()

	result, err := m.seller.SellToken(ctx, m.pos.Token, m.pos.Balance)
	status := "success"
	errMsg := ""
	if err != nil || result == nil || !result.Success {
		status = "failed"
		switch {
		case err != nil:
			errMsg = err.Error()
		case result != nil:
			errMsg = result.Error
		default:
			errMsg = "no trade result"
		}
		m.logger.WithToken(m.pos.Token.Hex()).WithField("reason", reason).
			Errorf("Sell failed, abandoning position: %s", errMsg)
	}

	if m.trades != nil {
		gasPrice := ""
		txHash := ""
		var nonce uint64
		if result != nil {
			if result.GasPrice != nil {
				gasPrice = result.GasPrice.String()
			}
			txHash = result.TxHash.Hex()
			nonce = result.Nonce
		}
		m.trades.LogSell(
			m.pos.Token.Hex(), m.pos.TokenName, m.pos.Pair.Hex(),
			m.pos.Balance.String(), currentPrice.String(), txHash,
			nonce, status, errMsg, gasPrice, reason,
		)
	}
}

// Sold reports whether the exit swap has been attempted
func (m *Monitor) Sold() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sold
}
