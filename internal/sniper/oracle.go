package sniper

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"pair-snipe-bot-go/internal/config"
	"pair-snipe-bot-go/internal/eth"
	"pair-snipe-bot-go/internal/logger"
)

// PriceScale is the fixed-point denominator for pair prices. Prices are
// reported as reserveBase * PriceScale / reserveToken so that sub-wei
// ratios survive integer math.
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

// ReserveReader reads on-chain pair reserves from a single RPC endpoint
type ReserveReader interface {
	Name() string
	GetReserves(ctx context.Context, pair common.Address) (*eth.Reserves, error)
}

// PairSnapshot is one consistent read of a pair's state. Both fields are
// derived from the same getReserves call, so price and liquidity never
// disagree about which block they describe.
type PairSnapshot struct {
	// PriceScaled is base-per-token scaled by PriceScale. Zero means the
	// read failed and the caller should treat the snapshot as unavailable.
	PriceScaled *big.Int
	// BaseLiquidity approximates pool depth as twice the base-token reserve
	BaseLiquidity *big.Int
}

// ReserveOracle answers price and liquidity questions about a pair by
// querying each configured endpoint in turn, with bounded retry rounds.
// A failed read is reported as a zero value, never an error; trading
// call sites decide whether zero is fatal for them.
type ReserveOracle struct {
	readers []ReserveReader
	rounds  int
	backoff time.Duration
	logger  *logger.Logger
}

func NewReserveOracle(readers []ReserveReader, log *logger.Logger) *ReserveOracle {
	return &ReserveOracle{
		readers: readers,
		rounds:  config.MaxReserveRounds,
		backoff: config.ReserveRetryDelayMs * time.Millisecond,
		logger:  log,
	}
}

// GetReserves fetches raw reserves from the first endpoint that answers.
// Single pass, no backoff; pre-buy filtering wants a fast yes or no.
func (o *ReserveOracle) GetReserves(ctx context.Context, pair common.Address) (*eth.Reserves, error) {
	var lastErr error
	for _, r := range o.readers {
		reserves, err := r.GetReserves(ctx, pair)
		if err == nil {
			return reserves, nil
		}
		lastErr = err
		o.logger.WithComponent("oracle").WithFields(logrus.Fields{
			"endpoint": r.Name(),
			"pair":     pair.Hex(),
		}).Debugf("getReserves failed: %v", err)
	}
	return nil, lastErr
}

// Snapshot reads the pair with up to MaxReserveRounds passes over all
// endpoints, sleeping between rounds. Returns zero-valued fields when every
// round fails or the pair's token reserve is zero.
func (o *ReserveOracle) Snapshot(ctx context.Context, pair common.Address, tokenIsToken1 bool) *PairSnapshot {
	empty := &PairSnapshot{PriceScaled: big.NewInt(0), BaseLiquidity: big.NewInt(0)}

	for round := 0; round < o.rounds; round++ {
		if round > 0 {
			select {
			case <-ctx.Done():
				return empty
			case <-time.After(o.backoff):
			}
		}

		reserves, err := o.GetReserves(ctx, pair)
		if err != nil {
			continue
		}

		snap := snapshotFromReserves(reserves, tokenIsToken1)
		if snap.PriceScaled.Sign() > 0 {
			return snap
		}
	}

	o.logger.WithComponent("oracle").WithField("pair", pair.Hex()).
		Debug("reserve snapshot unavailable after all rounds")
	return empty
}

// GetPrice is Snapshot reduced to the price leg
func (o *ReserveOracle) GetPrice(ctx context.Context, pair common.Address, tokenIsToken1 bool) *big.Int {
	return o.Snapshot(ctx, pair, tokenIsToken1).PriceScaled
}

func snapshotFromReserves(reserves *eth.Reserves, tokenIsToken1 bool) *PairSnapshot {
	reserveBase, reserveToken := reserves.Reserve0, reserves.Reserve1
	if !tokenIsToken1 {
		reserveBase, reserveToken = reserves.Reserve1, reserves.Reserve0
	}

	if reserveToken.Sign() == 0 || reserveBase.Sign() == 0 {
		return &PairSnapshot{PriceScaled: big.NewInt(0), BaseLiquidity: big.NewInt(0)}
	}

	price := new(big.Int).Mul(reserveBase, PriceScale)
	price.Div(price, reserveToken)

	liquidity := new(big.Int).Lsh(reserveBase, 1)

	return &PairSnapshot{PriceScaled: price, BaseLiquidity: liquidity}
}
