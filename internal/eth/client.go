package eth

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Client wraps a single JSON-RPC endpoint
type Client struct {
	name   string
	url    string
	eth    *ethclient.Client
	logger *logrus.Logger
}

// ClientConfig contains configuration for an endpoint client
type ClientConfig struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// NewClient dials an RPC endpoint
func NewClient(cfg ClientConfig, logger *logrus.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	ec, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.URL, err)
	}

	return &Client{
		name:   cfg.Name,
		url:    cfg.URL,
		eth:    ec,
		logger: logger,
	}, nil
}

// Name returns the endpoint label used in logs and broadcast telemetry
func (c *Client) Name() string {
	return c.name
}

// ChainID returns the chain id reported by the endpoint
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// CallContract performs a read-only contract call
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call to %s via %s failed: %w", to.Hex(), c.name, err)
	}
	return out, nil
}

// SuggestGasPrice returns the endpoint's current gas price estimate
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// PendingNonceAt returns the account nonce including pending transactions
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

// BalanceAt returns the account's native balance
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, account, nil)
}

// SendTransaction submits a signed transaction to this endpoint
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

// BlockNumber returns the endpoint's current head
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// WaitForReceipt polls for a transaction receipt until it has the requested
// number of confirmations or the timeout elapses. A nil receipt with a nil
// error means the timeout passed without the transaction landing.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, confirmations int, timeout time.Duration) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			if confirmations <= 1 {
				return receipt, nil
			}
			head, err := c.eth.BlockNumber(waitCtx)
			if err == nil && head >= receipt.BlockNumber.Uint64()+uint64(confirmations)-1 {
				return receipt, nil
			}
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, nil
		case <-ticker.C:
		}
	}
}

// TokenName fetches an ERC-20 token's name with a bounded timeout
func (c *Client) TokenName(ctx context.Context, token common.Address, timeout time.Duration) (string, error) {
	return c.tokenString(ctx, token, "name", timeout)
}

// TokenSymbol fetches an ERC-20 token's symbol with a bounded timeout
func (c *Client) TokenSymbol(ctx context.Context, token common.Address, timeout time.Duration) (string, error) {
	return c.tokenString(ctx, token, "symbol", timeout)
}

func (c *Client) tokenString(ctx context.Context, token common.Address, method string, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input, err := ERC20ABI.Pack(method)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := c.CallContract(callCtx, token, input)
	if err != nil {
		return "", err
	}

	var value string
	if err := ERC20ABI.UnpackIntoInterface(&value, method, out); err != nil {
		return "", fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return value, nil
}

// GetReserves fetches a pair's two reserve balances
func (c *Client) GetReserves(ctx context.Context, pair common.Address) (*Reserves, error) {
	input, err := PairABI.Pack("getReserves")
	if err != nil {
		return nil, fmt.Errorf("failed to pack getReserves: %w", err)
	}

	out, err := c.CallContract(ctx, pair, input)
	if err != nil {
		return nil, err
	}

	return UnpackReserves(out)
}

// BalanceOf fetches an ERC-20 balance
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	input, err := ERC20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	out, err := c.CallContract(ctx, token, input)
	if err != nil {
		return nil, err
	}

	var balance *big.Int
	if err := ERC20ABI.UnpackIntoInterface(&balance, "balanceOf", out); err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	return balance, nil
}

// Allowance fetches an ERC-20 allowance
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	input, err := ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance: %w", err)
	}

	out, err := c.CallContract(ctx, token, input)
	if err != nil {
		return nil, err
	}

	var allowance *big.Int
	if err := ERC20ABI.UnpackIntoInterface(&allowance, "allowance", out); err != nil {
		return nil, fmt.Errorf("failed to unpack allowance result: %w", err)
	}
	return allowance, nil
}

// Close releases the underlying connection
func (c *Client) Close() {
	c.eth.Close()
}
