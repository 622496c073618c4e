package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pair-snipe-bot-go/internal/config"
	"pair-snipe-bot-go/internal/eth"
	"pair-snipe-bot-go/internal/logger"
	"pair-snipe-bot-go/internal/metrics"
	"pair-snipe-bot-go/internal/sniper"
	"pair-snipe-bot-go/internal/wallet"
)

const Version = "1.0.0"

// CLI flags
var (
	configFile   = flag.String("config", "", "Path to config file")
	envFile      = flag.String("env", "", "Path to .env file")
	network      = flag.String("network", "", "Network name override")
	logLevel     = flag.String("log-level", "", "Log level (debug/info/warn/error)")
	dryRun       = flag.Bool("dry-run", false, "Dry run mode (no transactions broadcast)")
	buyAmount    = flag.Float64("buy-amount", 0, "Buy amount in base asset units")
	profitTarget = flag.Float64("profit-target", 0, "Profit target in percent")
	maxHold      = flag.Int("max-hold", 0, "Max hold time in minutes (0 = unlimited)")
)

// App owns every long-lived component of the bot
type App struct {
	config      *config.Config
	logger      *logger.Logger
	tradeLogger *logger.TradeLogger
	clients     []*eth.Client
	wsClient    *eth.WSClient
	wallet      *wallet.Wallet
	nonces      *wallet.NonceTracker
	broadcaster *eth.Broadcaster
	oracle      *sniper.ReserveOracle
	gate        *sniper.TradeGate
	trader      *sniper.Trader
	listener    *sniper.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	flag.Parse()

	cfg := loadConfigurationWithOverrides()
	log := initializeLogger(cfg)

	app, err := NewApp(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create application")
	}

	if err := app.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start application")
	}
}

func loadConfigurationWithOverrides() *config.Config {
	configPath := "configs/bot.yaml"
	if *configFile != "" {
		configPath = *configFile
	}

	cfg, err := config.LoadConfig(configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyCliOverrides(cfg)
	return cfg
}

func applyCliOverrides(cfg *config.Config) {
	if *network != "" {
		cfg.Network = *network
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *dryRun {
		cfg.Advanced.DryRun = true
	}
	if *buyAmount > 0 {
		cfg.Trading.BuyAmountEth = *buyAmount
	}
	if *profitTarget > 0 {
		cfg.Strategy.ProfitTargetPercent = *profitTarget
	}
	if *maxHold > 0 {
		cfg.Strategy.MaxHoldMinutes = *maxHold
	}
}

func initializeLogger(cfg *config.Config) *logger.Logger {
	log, err := logger.NewLogger(logger.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		TradeLogDir: cfg.Logging.TradeLogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	tradeLogger, err := logger.NewTradeLogger(cfg.Logging.TradeLogDir, log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create trade logger: %w", err)
	}

	clients := make([]*eth.Client, 0, len(cfg.RPCUrls))
	for i, url := range cfg.RPCUrls {
		client, err := eth.NewClient(eth.ClientConfig{
			Name:    fmt.Sprintf("rpc-%d", i+1),
			URL:     url,
			Timeout: 15 * time.Second,
		}, log.Logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create RPC client %s: %w", url, err)
		}
		clients = append(clients, client)
	}
	primary := clients[0]

	chainID, err := primary.ChainID(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	walletInstance, err := wallet.NewWallet(wallet.WalletConfig{
		PrivateKey: cfg.PrivateKey,
		ChainID:    chainID,
	}, log.Logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	nonces := wallet.NewNonceTracker(walletInstance.Address(), primary, log.Logger)

	senders := make([]eth.TxSender, len(clients))
	readers := make([]sniper.ReserveReader, len(clients))
	for i, c := range clients {
		senders[i] = c
		readers[i] = c
	}
	broadcaster := eth.NewBroadcaster(senders, log.Logger)
	oracle := sniper.NewReserveOracle(readers, log)

	gate := sniper.NewTradeGate()
	trader := sniper.NewTrader(cfg, walletInstance, nonces, broadcaster, primary, log)

	openPosition := func(ctx context.Context, pos *sniper.Position, buy *sniper.TradeResult) {
		monitor := sniper.NewMonitor(cfg, gate, oracle, trader, primary,
			walletInstance.Address(), pos, buy.TxHash, buy.Nonce, log, tradeLogger)
		monitor.Run(ctx)
	}

	listener := sniper.NewListener(cfg, gate, oracle, primary, trader, openPosition, log, tradeLogger)

	return &App{
		config:      cfg,
		logger:      log,
		tradeLogger: tradeLogger,
		clients:     clients,
		wsClient:    eth.NewWSClient(cfg.WSUrl, log.Logger),
		wallet:      walletInstance,
		nonces:      nonces,
		broadcaster: broadcaster,
		oracle:      oracle,
		gate:        gate,
		trader:      trader,
		listener:    listener,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

func (a *App) Start() error {
	a.logger.LogStartup(Version, a.config.Network, a.config.WSUrl, len(a.clients))

	if a.config.Advanced.DryRun {
		a.logger.Warn("🧪 Dry run mode, no transactions will be broadcast")
	}

	if err := a.checkBalance(); err != nil {
		return err
	}

	if a.config.Advanced.EnableMetrics {
		metrics.Serve(a.config.Advanced.MetricsPort, a.logger.Logger)
	}

	if err := a.wsClient.Connect(); err != nil {
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	if err := a.listener.Start(a.ctx, a.wsClient); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	go a.statsLoop()

	a.waitForShutdown()
	return nil
}

// checkBalance verifies the wallet can actually fund a buy before listening
func (a *App) checkBalance() error {
	balance, err := a.wallet.BalanceEth(a.ctx, a.clients[0])
	if err != nil {
		return fmt.Errorf("failed to read wallet balance: %w", err)
	}

	a.logger.Info(fmt.Sprintf("💰 Wallet balance: %.6f", balance))

	if !a.config.Advanced.DryRun && balance < a.config.Trading.BuyAmountEth {
		return fmt.Errorf("balance %.6f is below buy amount %.6f",
			balance, a.config.Trading.BuyAmountEth)
	}
	return nil
}

// statsLoop periodically logs pipeline counters
func (a *App) statsLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			seen, bought := a.listener.Stats()
			received, lastActivity := a.wsClient.Stats()
			a.logger.WithFields(map[string]interface{}{
				"pairs_seen":   seen,
				"pairs_bought": bought,
				"ws_messages":  received,
				"ws_idle_sec":  int(time.Since(lastActivity).Seconds()),
				"gate_active":  a.gate.Active(),
			}).Info("📊 Pipeline stats")
		}
	}
}

func (a *App) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	a.logger.LogShutdown(sig.String())
	a.shutdown()
}

func (a *App) shutdown() {
	a.cancel()

	if err := a.wsClient.Disconnect(); err != nil {
		a.logger.WithError(err).Warn("WebSocket disconnect failed")
	}
	for _, c := range a.clients {
		c.Close()
	}

	// Give an in-flight monitor a moment to observe cancellation.
	time.Sleep(500 * time.Millisecond)
	a.logger.Info("👋 Shutdown complete")
}
