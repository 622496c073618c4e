package sniper

import (
	"io"
	"testing"

	"pair-snipe-bot-go/internal/config"
	"pair-snipe-bot-go/internal/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LogConfig{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	log.SetOutput(io.Discard)
	return log
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Contracts.BaseToken = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	cfg.Contracts.Factory = "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"
	cfg.Contracts.Router = "0x10ED43C718714eb63d5aA57B78B54704E256024E"
	cfg.Trading.BuyAmountEth = 0.1
	cfg.Trading.GasPriceGwei = 5
	cfg.Trading.MaxGasPriceGwei = 100
	cfg.Trading.GasMultiplier = 1.5
	cfg.Trading.DeadlineMinutes = 2
	cfg.Trading.ConfirmTimeoutSec = 1
	cfg.Trading.Confirmations = 1
	cfg.Strategy.ProfitTargetPercent = 5.0
	cfg.Strategy.MonitorIntervalMs = 5
	return cfg
}
