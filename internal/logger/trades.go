package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TradeLog represents one trade log entry
type TradeLog struct {
	Timestamp    time.Time `json:"timestamp"`
	PositionID   string    `json:"position_id"`
	TradeType    string    `json:"trade_type"` // "buy" or "sell"
	Token        string    `json:"token"`
	TokenName    string    `json:"token_name"`
	Pair         string    `json:"pair"`
	AmountWei    string    `json:"amount_wei"`
	AmountTokens string    `json:"amount_tokens"`
	PriceScaled  string    `json:"price_scaled"`
	TxHash       string    `json:"tx_hash"`
	Nonce        uint64    `json:"nonce"`
	Status       string    `json:"status"` // "success", "failed"
	ErrorMessage string    `json:"error_message,omitempty"`
	GasPriceWei  string    `json:"gas_price_wei"`
	SellReason   string    `json:"sell_reason,omitempty"`
}

// TradeLogger appends trade records to daily JSONL files
type TradeLogger struct {
	baseDir string
	logger  *Logger

	mu        sync.Mutex
	positions map[string]string // token -> position id
}

// NewTradeLogger creates a new trade logger
func NewTradeLogger(baseDir string, logger *Logger) (*TradeLogger, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trade log directory: %w", err)
	}

	return &TradeLogger{
		baseDir:   baseDir,
		logger:    logger,
		positions: make(map[string]string),
	}, nil
}

// OpenPosition allocates a position id for a token; subsequent buy/sell records
// for the same token share it until the position is closed.
func (tl *TradeLogger) OpenPosition(token string) string {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	id := uuid.NewString()
	tl.positions[token] = id
	return id
}

// ClosePosition drops the position id mapping for a token
func (tl *TradeLogger) ClosePosition(token string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	delete(tl.positions, token)
}

// LogTrade writes a trade record to the daily trade file
func (tl *TradeLogger) LogTrade(trade TradeLog) error {
	tl.mu.Lock()
	if trade.PositionID == "" {
		trade.PositionID = tl.positions[trade.Token]
	}
	tl.mu.Unlock()

	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now()
	}

	tl.logger.WithFields(map[string]interface{}{
		"event":       "trade_logged",
		"position_id": trade.PositionID,
		"trade_type":  trade.TradeType,
		"token":       trade.Token,
		"tx":          trade.TxHash,
		"status":      trade.Status,
	}).Info("Trade logged")

	filename := fmt.Sprintf("trades_%s.jsonl", time.Now().Format("2006-01-02"))
	path := filepath.Join(tl.baseDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open trade log file: %w", err)
	}
	defer file.Close()

	tradeBytes, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	if _, err := file.Write(append(tradeBytes, '\n')); err != nil {
		return fmt.Errorf("failed to write trade to file: %w", err)
	}

	return nil
}

// LogBuy logs a buy trade
func (tl *TradeLogger) LogBuy(token, tokenName, pair, amountWei, amountTokens, priceScaled, txHash string, nonce uint64, status, errorMsg, gasPriceWei string) error {
	return tl.LogTrade(TradeLog{
		TradeType:    "buy",
		Token:        token,
		TokenName:    tokenName,
		Pair:         pair,
		AmountWei:    amountWei,
		AmountTokens: amountTokens,
		PriceScaled:  priceScaled,
		TxHash:       txHash,
		Nonce:        nonce,
		Status:       status,
		ErrorMessage: errorMsg,
		GasPriceWei:  gasPriceWei,
	})
}

// LogSell logs a sell trade
func (tl *TradeLogger) LogSell(token, tokenName, pair, amountTokens, priceScaled, txHash string, nonce uint64, status, errorMsg, gasPriceWei, sellReason string) error {
	return tl.LogTrade(TradeLog{
		TradeType:    "sell",
		Token:        token,
		TokenName:    tokenName,
		Pair:         pair,
		AmountTokens: amountTokens,
		PriceScaled:  priceScaled,
		TxHash:       txHash,
		Nonce:        nonce,
		Status:       status,
		ErrorMessage: errorMsg,
		GasPriceWei:  gasPriceWei,
		SellReason:   sellReason,
	})
}
