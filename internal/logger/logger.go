package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger represents the application logger
type Logger struct {
	*logrus.Logger
	config LogConfig
}

// LogConfig contains logger configuration
type LogConfig struct {
	Level       string
	Format      string // "json" or "text"
	TradeLogDir string
}

// NewLogger creates a new logger instance
func NewLogger(config LogConfig) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	switch strings.ToLower(config.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			ForceColors:     true,
			DisableQuote:    true,
		})
	default:
		log.SetFormatter(&CustomFormatter{})
	}

	if config.TradeLogDir != "" {
		if err := os.MkdirAll(config.TradeLogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create trade log directory %s: %w", config.TradeLogDir, err)
		}
	}

	return &Logger{
		Logger: log,
		config: config,
	}, nil
}

// CustomFormatter provides a clean, timestamped format for console output
type CustomFormatter struct{}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
	level := strings.ToUpper(entry.Level.String())

	var levelColor string
	switch entry.Level {
	case logrus.DebugLevel:
		levelColor = "\033[36m" // Cyan
	case logrus.InfoLevel:
		levelColor = "\033[32m" // Green
	case logrus.WarnLevel:
		levelColor = "\033[33m" // Yellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = "\033[31m" // Red
	default:
		levelColor = "\033[0m"
	}

	resetColor := "\033[0m"

	msg := fmt.Sprintf("%s [%s%s%s] %s",
		timestamp,
		levelColor,
		level,
		resetColor,
		entry.Message)

	if len(entry.Data) > 0 {
		msg += " |"
		for key, value := range entry.Data {
			msg += fmt.Sprintf(" %s=%v", key, value)
		}
	}

	msg += "\n"
	return []byte(msg), nil
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// Trading-specific logging methods

// LogPairDiscovered logs when a new trading pair is discovered
func (l *Logger) LogPairDiscovered(pair, token0, token1 string, block uint64) {
	l.WithFields(logrus.Fields{
		"event":  "pair_discovered",
		"pair":   pair,
		"token0": token0,
		"token1": token1,
		"block":  block,
	}).Info("🔍 New pair discovered")
}

// LogFilterReject logs when a pair is rejected by filters
func (l *Logger) LogFilterReject(pair string, filterType, reason string) {
	l.WithFields(logrus.Fields{
		"event":       "filter_reject",
		"pair":        pair,
		"filter_type": filterType,
		"reason":      reason,
	}).Info("✗ Pair rejected by filter")
}

// LogGateLocked logs when the trade gate is acquired for a target
func (l *Logger) LogGateLocked(token string) {
	l.WithFields(logrus.Fields{
		"event": "gate_locked",
		"token": token,
	}).Info("🔒 Trade gate locked")
}

// LogGateReleased logs when the trade gate is released
func (l *Logger) LogGateReleased(token, reason string) {
	l.WithFields(logrus.Fields{
		"event":  "gate_released",
		"token":  token,
		"reason": reason,
	}).Info("🔓 Trade gate released")
}

// LogTradeAttempt logs when a trade attempt is made
func (l *Logger) LogTradeAttempt(tradeType, token string, amount string) {
	l.WithFields(logrus.Fields{
		"event":  "trade_attempt",
		"type":   tradeType,
		"token":  token,
		"amount": amount,
	}).Info("💰 Trade attempt initiated")
}

// LogTradeSuccess logs when a trade is successful
func (l *Logger) LogTradeSuccess(tradeType, token, txHash string, nonce uint64) {
	l.WithFields(logrus.Fields{
		"event": "trade_success",
		"type":  tradeType,
		"token": token,
		"tx":    txHash,
		"nonce": nonce,
	}).Info("✅ Trade successful")
}

// LogTradeError logs when a trade fails
func (l *Logger) LogTradeError(tradeType, token string, err error) {
	l.WithFields(logrus.Fields{
		"event": "trade_error",
		"type":  tradeType,
		"token": token,
	}).WithError(err).Error("❌ Trade failed")
}

// LogSellTrigger logs the exit condition that moved a position to selling
func (l *Logger) LogSellTrigger(token, reason string, entryPrice, currentPrice string) {
	l.WithFields(logrus.Fields{
		"event":         "sell_trigger",
		"token":         token,
		"reason":        reason,
		"entry_price":   entryPrice,
		"current_price": currentPrice,
	}).Info("🎯 Sell condition triggered")
}

// LogConnection logs connection status
func (l *Logger) LogConnection(service, status string, details interface{}) {
	l.WithFields(logrus.Fields{
		"event":   "connection",
		"service": service,
		"status":  status,
		"details": details,
	}).Info("🔗 Connection status")
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, network, wsUrl string, rpcCount int) {
	l.WithFields(logrus.Fields{
		"event":     "startup",
		"version":   version,
		"network":   network,
		"ws_url":    wsUrl,
		"rpc_count": rpcCount,
	}).Info("🚀 Bot starting up")
}

// LogShutdown logs application shutdown information
func (l *Logger) LogShutdown(reason string) {
	l.WithFields(logrus.Fields{
		"event":  "shutdown",
		"reason": reason,
	}).Info("🛑 Bot shutting down")
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithField("component", component)
}

// WithToken returns a logger with token context
func (l *Logger) WithToken(token string) *logrus.Entry {
	return l.WithField("token", token)
}
