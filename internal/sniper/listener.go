package sniper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"pair-snipe-bot-go/internal/config"
	"pair-snipe-bot-go/internal/eth"
	"pair-snipe-bot-go/internal/logger"
	"pair-snipe-bot-go/internal/metrics"
)

// PairInspector reads pool state for pre-buy filtering
type PairInspector interface {
	GetReserves(ctx context.Context, pair common.Address) (*eth.Reserves, error)
}

// MetadataReader fetches ERC-20 metadata with a bounded timeout
type MetadataReader interface {
	TokenName(ctx context.Context, token common.Address, timeout time.Duration) (string, error)
}

// BuyExecutor performs the entry swap
type BuyExecutor interface {
	BuyToken(ctx context.Context, token common.Address) (*TradeResult, error)
}

// PairEvent is a decoded PairCreated log
type PairEvent struct {
	Token0 common.Address
	Token1 common.Address
	Pair   common.Address
	Block  uint64
}

// Listener filters PairCreated events down to buyable tokens and fires the
// entry trade. Every event runs the full filter chain; the trade gate is
// checked cheaply before metadata fetches and again after, since the event
// stream keeps delivering while a handler is blocked on the network.
type Listener struct {
	cfg       *config.Config
	gate      *TradeGate
	inspector PairInspector
	meta      MetadataReader
	buyer     BuyExecutor
	logger    *logger.Logger
	trades    *logger.TradeLogger

	// openPosition hands a bought token off to its monitor; it runs on its
	// own goroutine and owns the gate from that point.
	openPosition func(ctx context.Context, pos *Position, buy *TradeResult)

	baseToken common.Address
	factory   common.Address

	ctx context.Context

	pairsSeen   atomic.Uint64
	pairsBought atomic.Uint64
}

// NewListener wires a listener over the configured factory
func NewListener(cfg *config.Config, gate *TradeGate, inspector PairInspector, meta MetadataReader, buyer BuyExecutor, openPosition func(ctx context.Context, pos *Position, buy *TradeResult), log *logger.Logger, trades *logger.TradeLogger) *Listener {
	return &Listener{
		cfg:          cfg,
		gate:         gate,
		inspector:    inspector,
		meta:         meta,
		buyer:        buyer,
		openPosition: openPosition,
		logger:       log,
		trades:       trades,
		baseToken:    common.HexToAddress(cfg.Contracts.BaseToken),
		factory:      common.HexToAddress(cfg.Contracts.Factory),
	}
}

// Start subscribes to factory PairCreated logs on ws. The subscription
// handler runs HandlePairCreated for each log.
func (l *Listener) Start(ctx context.Context, ws *eth.WSClient) error {
	l.ctx = ctx

	filter := eth.LogFilter{
		Address: l.factory.Hex(),
		Topics:  []string{config.PairCreatedTopic.Hex()},
	}

	subID, err := ws.SubscribeLogs(filter, func(log *eth.LogNotification) error {
		l.HandlePairCreated(log)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to PairCreated logs: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"subscription": subID,
		"factory":      l.factory.Hex(),
	}).Info("🎧 Listening for new pairs")

	return nil
}

// Stats returns how many pairs were seen and bought since start
func (l *Listener) Stats() (seen, bought uint64) {
	return l.pairsSeen.Load(), l.pairsBought.Load()
}

// HandlePairCreated runs the full filter chain for one event and, if it
// survives, locks the gate and buys.
func (l *Listener) HandlePairCreated(log *eth.LogNotification) {
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	event, err := DecodePairCreated(log)
	if err != nil {
		l.logger.WithError(err).Debug("Undecodable PairCreated log")
		return
	}

	l.pairsSeen.Add(1)
	metrics.PairsSeen.Inc()
	l.logger.LogPairDiscovered(event.Pair.Hex(), event.Token0.Hex(), event.Token1.Hex(), event.Block)

	token, tokenIsToken1, ok := l.tokenLeg(event)
	if !ok {
		l.reject(event, "base_leg", "neither or both legs are the base token")
		return
	}

	reserves, err := l.inspector.GetReserves(ctx, event.Pair)
	if err != nil {
		l.reject(event, "reserves_unavailable", err.Error())
		return
	}

	snap := snapshotFromReserves(reserves, tokenIsToken1)
	if snap.PriceScaled.Sign() == 0 {
		l.reject(event, "empty_pool", "zero reserve on one leg")
		return
	}

	minLiquidity := l.cfg.MinLiquidityWei()
	if minLiquidity.Sign() > 0 && snap.BaseLiquidity.Cmp(minLiquidity) < 0 {
		l.reject(event, "low_liquidity", snap.BaseLiquidity.String())
		return
	}

	// Cheap check before the metadata round trip.
	if l.gate.Active() {
		l.reject(event, "gate_busy", l.gate.Target().Hex())
		return
	}

	name, err := l.meta.TokenName(ctx, token, config.MetadataTimeoutSec*time.Second)
	if err != nil {
		l.reject(event, "metadata_unavailable", err.Error())
		return
	}
	if reason := l.deniedBy(name); reason != "" {
		l.reject(event, "deny_keyword", reason)
		return
	}

	// The name fetch blocked; another event may have taken the gate.
	if !l.gate.TryAcquire(token) {
		l.reject(event, "gate_busy", l.gate.Target().Hex())
		return
	}
	l.logger.LogGateLocked(token.Hex())
	metrics.GateActive.Set(1)

	l.buy(ctx, event, token, tokenIsToken1, name, snap)
}

// buy fires the entry swap while holding the gate. On broadcast failure the
// gate is released here; on success ownership passes to the monitor.
func (l *Listener) buy(ctx context.Context, event *PairEvent, token common.Address, tokenIsToken1 bool, name string, snap *PairSnapshot) {
	result, err := l.buyer.BuyToken(ctx, token)
	if err != nil || !result.Success {
		if err == nil {
			err = fmt.Errorf("%s", result.Error)
		}
		l.logger.LogTradeError("buy", token.Hex(), err)
		l.gate.Release()
		metrics.GateActive.Set(0)
		l.logger.LogGateReleased(token.Hex(), "buy_failed")
		return
	}

	l.pairsBought.Add(1)
	metrics.BuysTotal.Inc()

	if l.trades != nil {
		l.trades.OpenPosition(token.Hex())
		gasPrice := ""
		if result.GasPrice != nil {
			gasPrice = result.GasPrice.String()
		}
		l.trades.LogBuy(
			token.Hex(), name, event.Pair.Hex(),
			l.cfg.BuyAmountWei().String(), "", snap.PriceScaled.String(),
			result.TxHash.Hex(), result.Nonce, "broadcast", "", gasPrice,
		)
	}

	pos := &Position{
		Token:         token,
		Pair:          event.Pair,
		TokenIsToken1: tokenIsToken1,
		TokenName:     name,
	}

	go l.openPosition(ctx, pos, result)
}

// tokenLeg identifies the non-base leg of the pair. Pairs where the base
// token appears on both legs or neither are not tradable here.
func (l *Listener) tokenLeg(event *PairEvent) (common.Address, bool, bool) {
	isBase0 := event.Token0 == l.baseToken
	isBase1 := event.Token1 == l.baseToken

	switch {
	case isBase0 && !isBase1:
		return event.Token1, true, true
	case isBase1 && !isBase0:
		return event.Token0, false, true
	default:
		return common.Address{}, false, false
	}
}

// deniedBy returns the matching deny keyword, or empty if the name passes.
// Matching is case-insensitive substring; an empty deny list passes all.
func (l *Listener) deniedBy(name string) string {
	if name == "" {
		return ""
	}
	lowered := strings.ToLower(name)
	for _, keyword := range l.cfg.Strategy.DenyKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return keyword
		}
	}
	return ""
}

func (l *Listener) reject(event *PairEvent, filterType, reason string) {
	metrics.PairsRejected.WithLabelValues(filterType).Inc()
	l.logger.LogFilterReject(event.Pair.Hex(), filterType, reason)
}

// DecodePairCreated parses a raw PairCreated log. Topics carry the indexed
// token legs; the data word carries the pair address.
func DecodePairCreated(log *eth.LogNotification) (*PairEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
	}

	data := strings.TrimPrefix(log.Data, "0x")
	if len(data) < 64 {
		return nil, fmt.Errorf("data too short: %d chars", len(data))
	}

	event := &PairEvent{
		Token0: common.HexToAddress(log.Topics[1]),
		Token1: common.HexToAddress(log.Topics[2]),
		Pair:   common.HexToAddress(data[24:64]),
	}

	if block := strings.TrimPrefix(log.BlockNumber, "0x"); block != "" {
		if n, err := strconv.ParseUint(block, 16, 64); err == nil {
			event.Block = n
		}
	}

	return event, nil
}
