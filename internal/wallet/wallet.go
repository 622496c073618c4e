package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Wallet holds the signing key for the trading account
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	signer     types.Signer
	logger     *logrus.Logger
}

// WalletConfig contains wallet configuration
type WalletConfig struct {
	PrivateKey string
	ChainID    *big.Int
}

// BalanceReader is the client surface needed for balance checks
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// NewWallet creates a wallet from a hex-encoded private key
func NewWallet(cfg WalletConfig, logger *logrus.Logger) (*Wallet, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key is required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}

	keyHex := strings.TrimPrefix(cfg.PrivateKey, "0x")
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	w := &Wallet{
		privateKey: privateKey,
		address:    address,
		chainID:    cfg.ChainID,
		signer:     types.LatestSignerForChainID(cfg.ChainID),
		logger:     logger,
	}

	logger.WithFields(logrus.Fields{
		"address":  address.Hex(),
		"chain_id": cfg.ChainID.String(),
	}).Info("Wallet initialized")

	return w, nil
}

// Address returns the wallet's account address
func (w *Wallet) Address() common.Address {
	return w.address
}

// ChainID returns the chain the wallet signs for
func (w *Wallet) ChainID() *big.Int {
	return w.chainID
}

// SignTx signs a transaction with the wallet key
func (w *Wallet) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, w.signer, w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// BalanceEth returns the wallet's native balance in whole units
func (w *Wallet) BalanceEth(ctx context.Context, reader BalanceReader) (float64, error) {
	balance, err := reader.BalanceAt(ctx, w.address)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), big.NewFloat(1e18)).Float64()
	return eth, nil
}
