// Command selltoken manually exits a position: it sells a token balance back
// to the base asset through the router, using the same signing and broadcast
// path as the bot. Useful when the bot was stopped while holding.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pair-snipe-bot-go/internal/config"
	"pair-snipe-bot-go/internal/eth"
	"pair-snipe-bot-go/internal/logger"
	"pair-snipe-bot-go/internal/sniper"
	"pair-snipe-bot-go/internal/wallet"
)

var (
	configFile = flag.String("config", "configs/bot.yaml", "Path to config file")
	envFile    = flag.String("env", "", "Path to .env file")
	tokenFlag  = flag.String("token", "", "Token contract address to sell")
	amountFlag = flag.String("amount", "", "Token amount in base units (empty = full balance)")
)

func main() {
	flag.Parse()

	if *tokenFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: selltoken --token 0x... [--amount N]")
		os.Exit(1)
	}
	token := common.HexToAddress(*tokenFlag)

	cfg, err := config.LoadConfig(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	clients := make([]*eth.Client, 0, len(cfg.RPCUrls))
	for i, url := range cfg.RPCUrls {
		client, err := eth.NewClient(eth.ClientConfig{
			Name:    fmt.Sprintf("rpc-%d", i+1),
			URL:     url,
			Timeout: 15 * time.Second,
		}, log.Logger)
		if err != nil {
			log.WithError(err).Fatal("Failed to create RPC client")
		}
		clients = append(clients, client)
		defer client.Close()
	}
	primary := clients[0]

	chainID, err := primary.ChainID(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to fetch chain id")
	}

	w, err := wallet.NewWallet(wallet.WalletConfig{PrivateKey: cfg.PrivateKey, ChainID: chainID}, log.Logger)
	if err != nil {
		log.WithError(err).Fatal("Failed to create wallet")
	}

	amount, err := resolveAmount(ctx, primary, token, w.Address())
	if err != nil {
		log.WithError(err).Fatal("Failed to resolve sell amount")
	}
	if amount.Sign() == 0 {
		log.Info("Nothing to sell, balance is zero")
		return
	}

	senders := make([]eth.TxSender, len(clients))
	for i, c := range clients {
		senders[i] = c
	}

	nonces := wallet.NewNonceTracker(w.Address(), primary, log.Logger)
	broadcaster := eth.NewBroadcaster(senders, log.Logger)
	trader := sniper.NewTrader(cfg, w, nonces, broadcaster, primary, log)

	name, _ := primary.TokenName(ctx, token, config.MetadataTimeoutSec*time.Second)
	log.Info(fmt.Sprintf("Selling %s of %s (%s)", amount, token.Hex(), name))

	result, err := trader.SellToken(ctx, token, amount)
	if err != nil {
		log.WithError(err).Fatal("Sell failed")
	}

	receipt, err := primary.WaitForReceipt(ctx, result.TxHash, cfg.Trading.Confirmations,
		time.Duration(cfg.Trading.ConfirmTimeoutSec)*time.Second)
	if err != nil || receipt == nil {
		log.WithError(err).Fatal("Sell broadcast but not confirmed")
	}

	balance, err := w.BalanceEth(ctx, primary)
	if err == nil {
		log.Info(fmt.Sprintf("Done. Tx %s, wallet balance now %.6f", result.TxHash.Hex(), balance))
	} else {
		log.Info(fmt.Sprintf("Done. Tx %s", result.TxHash.Hex()))
	}
}

func resolveAmount(ctx context.Context, client *eth.Client, token, owner common.Address) (*big.Int, error) {
	if *amountFlag != "" {
		amount, ok := new(big.Int).SetString(*amountFlag, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", *amountFlag)
		}
		return amount, nil
	}
	return client.BalanceOf(ctx, token, owner)
}
