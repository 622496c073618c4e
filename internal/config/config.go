package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"pair-snipe-bot-go/pkg/utils"
)

// Config represents the application configuration
type Config struct {
	// Network settings
	Network   string   `mapstructure:"network" yaml:"network"`
	WSUrl     string   `mapstructure:"ws_url" yaml:"ws_url"`
	RPCUrls   []string `mapstructure:"rpc_urls" yaml:"rpc_urls"`
	RPCAPIKey string   `mapstructure:"rpc_api_key" yaml:"rpc_api_key"`

	// Wallet settings
	PrivateKey string `mapstructure:"private_key" yaml:"private_key"`

	// Contract addresses
	Contracts ContractConfig `mapstructure:"contracts" yaml:"contracts"`

	// Trading settings
	Trading TradingConfig `mapstructure:"trading" yaml:"trading"`

	// Strategy settings
	Strategy StrategyConfig `mapstructure:"strategy" yaml:"strategy"`

	// Logging settings
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Advanced settings
	Advanced AdvancedConfig `mapstructure:"advanced" yaml:"advanced"`
}

// ContractConfig contains the DEX contract addresses
type ContractConfig struct {
	BaseToken string `mapstructure:"base_token" yaml:"base_token"`
	Factory   string `mapstructure:"factory" yaml:"factory"`
	Router    string `mapstructure:"router" yaml:"router"`
}

// TradingConfig contains trading-related settings
type TradingConfig struct {
	BuyAmountEth      float64 `mapstructure:"buy_amount_eth" yaml:"buy_amount_eth"`
	SlippageBP        int     `mapstructure:"slippage_bp" yaml:"slippage_bp"`
	GasPriceGwei      float64 `mapstructure:"gas_price_gwei" yaml:"gas_price_gwei"`
	MaxGasPriceGwei   float64 `mapstructure:"max_gas_price_gwei" yaml:"max_gas_price_gwei"`
	GasMultiplier     float64 `mapstructure:"gas_multiplier" yaml:"gas_multiplier"`
	CompetitiveGas    bool    `mapstructure:"competitive_gas" yaml:"competitive_gas"`
	DeadlineMinutes   int     `mapstructure:"deadline_minutes" yaml:"deadline_minutes"`
	ConfirmTimeoutSec int     `mapstructure:"confirm_timeout_sec" yaml:"confirm_timeout_sec"`
	Confirmations     int     `mapstructure:"confirmations" yaml:"confirmations"`
}

// StrategyConfig contains strategy-related settings
type StrategyConfig struct {
	ProfitTargetPercent float64  `mapstructure:"profit_target_percent" yaml:"profit_target_percent"`
	MinLiquidityEth     float64  `mapstructure:"min_liquidity_eth" yaml:"min_liquidity_eth"`
	LiquidityGuard      bool     `mapstructure:"liquidity_guard" yaml:"liquidity_guard"`
	DenyKeywords        []string `mapstructure:"deny_keywords" yaml:"deny_keywords"`
	MonitorIntervalMs   int      `mapstructure:"monitor_interval_ms" yaml:"monitor_interval_ms"`
	MaxHoldMinutes      int      `mapstructure:"max_hold_minutes" yaml:"max_hold_minutes"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	TradeLogDir string `mapstructure:"trade_log_dir" yaml:"trade_log_dir"`
}

// AdvancedConfig contains advanced settings
type AdvancedConfig struct {
	EnableMetrics bool `mapstructure:"enable_metrics" yaml:"enable_metrics"`
	MetricsPort   int  `mapstructure:"metrics_port" yaml:"metrics_port"`
	DryRun        bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string, envPath string) (*Config, error) {
	config := &Config{}

	if err := loadEnvFile(envPath); err != nil {
		fmt.Printf("Warning: failed to load .env file: %v\n", err)
	}

	setDefaults()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("bot")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("$HOME/.pair-snipe-bot")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PAIRSNIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fmt.Printf("Config file not found, using environment variables and defaults\n")
	} else {
		fmt.Printf("Using config file: %s\n", viper.ConfigFileUsed())
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma-separated env overrides for list-valued keys
	if raw := os.Getenv("PAIRSNIPE_RPC_URLS"); raw != "" {
		config.RPCUrls = splitAndTrim(raw)
	}
	if raw := os.Getenv("PAIRSNIPE_STRATEGY_DENY_KEYWORDS"); raw != "" {
		config.Strategy.DenyKeywords = splitAndTrim(raw)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile(envPath string) error {
	var envFiles []string
	if envPath != "" {
		envFiles = append(envFiles, envPath)
	}
	envFiles = append(envFiles, ".env", filepath.Join("configs", ".env"))

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err != nil {
				return fmt.Errorf("failed to load %s: %w", file, err)
			}
			fmt.Printf("Loaded environment from %s\n", file)
			return nil
		}
	}

	if envPath != "" {
		return fmt.Errorf("specified .env file not found: %s", envPath)
	}
	return fmt.Errorf(".env file not found in any of the expected locations: %v", envFiles)
}

// bindEnvVariables manually binds environment variables that viper might miss
func bindEnvVariables() {
	viper.BindEnv("network", "PAIRSNIPE_NETWORK")
	viper.BindEnv("ws_url", "PAIRSNIPE_WS_URL")
	viper.BindEnv("rpc_api_key", "PAIRSNIPE_RPC_API_KEY")
	viper.BindEnv("private_key", "PAIRSNIPE_PRIVATE_KEY")

	viper.BindEnv("contracts.base_token", "PAIRSNIPE_CONTRACTS_BASE_TOKEN")
	viper.BindEnv("contracts.factory", "PAIRSNIPE_CONTRACTS_FACTORY")
	viper.BindEnv("contracts.router", "PAIRSNIPE_CONTRACTS_ROUTER")

	viper.BindEnv("trading.buy_amount_eth", "PAIRSNIPE_TRADING_BUY_AMOUNT_ETH")
	viper.BindEnv("trading.slippage_bp", "PAIRSNIPE_TRADING_SLIPPAGE_BP")
	viper.BindEnv("trading.gas_price_gwei", "PAIRSNIPE_TRADING_GAS_PRICE_GWEI")
	viper.BindEnv("trading.max_gas_price_gwei", "PAIRSNIPE_TRADING_MAX_GAS_PRICE_GWEI")
	viper.BindEnv("trading.gas_multiplier", "PAIRSNIPE_TRADING_GAS_MULTIPLIER")
	viper.BindEnv("trading.competitive_gas", "PAIRSNIPE_TRADING_COMPETITIVE_GAS")
	viper.BindEnv("trading.deadline_minutes", "PAIRSNIPE_TRADING_DEADLINE_MINUTES")

	viper.BindEnv("strategy.profit_target_percent", "PAIRSNIPE_STRATEGY_PROFIT_TARGET_PERCENT")
	viper.BindEnv("strategy.min_liquidity_eth", "PAIRSNIPE_STRATEGY_MIN_LIQUIDITY_ETH")
	viper.BindEnv("strategy.liquidity_guard", "PAIRSNIPE_STRATEGY_LIQUIDITY_GUARD")
	viper.BindEnv("strategy.monitor_interval_ms", "PAIRSNIPE_STRATEGY_MONITOR_INTERVAL_MS")
	viper.BindEnv("strategy.max_hold_minutes", "PAIRSNIPE_STRATEGY_MAX_HOLD_MINUTES")

	viper.BindEnv("logging.level", "PAIRSNIPE_LOGGING_LEVEL")
	viper.BindEnv("logging.format", "PAIRSNIPE_LOGGING_FORMAT")

	viper.BindEnv("advanced.enable_metrics", "PAIRSNIPE_ADVANCED_ENABLE_METRICS")
	viper.BindEnv("advanced.metrics_port", "PAIRSNIPE_ADVANCED_METRICS_PORT")
	viper.BindEnv("advanced.dry_run", "PAIRSNIPE_ADVANCED_DRY_RUN")
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("network", "bsc")
	viper.SetDefault("ws_url", "")
	viper.SetDefault("rpc_urls", []string{})

	viper.SetDefault("contracts.base_token", WBNBAddress.Hex())
	viper.SetDefault("contracts.factory", PancakeFactoryAddress.Hex())
	viper.SetDefault("contracts.router", PancakeRouterAddress.Hex())

	viper.SetDefault("trading.buy_amount_eth", 0.0)
	viper.SetDefault("trading.slippage_bp", DefaultSlippageBP)
	viper.SetDefault("trading.gas_price_gwei", DefaultGasPriceGwei)
	viper.SetDefault("trading.max_gas_price_gwei", DefaultMaxGasPriceGwei)
	viper.SetDefault("trading.gas_multiplier", DefaultGasMultiplier)
	viper.SetDefault("trading.competitive_gas", false)
	viper.SetDefault("trading.deadline_minutes", 2)
	viper.SetDefault("trading.confirm_timeout_sec", ConfirmTimeoutSec)
	viper.SetDefault("trading.confirmations", 1)

	viper.SetDefault("strategy.profit_target_percent", DefaultProfitTargetPercent)
	viper.SetDefault("strategy.min_liquidity_eth", 0.0)
	viper.SetDefault("strategy.liquidity_guard", true)
	viper.SetDefault("strategy.deny_keywords", []string{})
	viper.SetDefault("strategy.monitor_interval_ms", 1000)
	viper.SetDefault("strategy.max_hold_minutes", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.trade_log_dir", "trades")

	viper.SetDefault("advanced.enable_metrics", false)
	viper.SetDefault("advanced.metrics_port", 8080)
	viper.SetDefault("advanced.dry_run", false)
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.PrivateKey == "" {
		return fmt.Errorf("private_key is required")
	}

	if config.WSUrl == "" {
		return fmt.Errorf("ws_url is required (pair creation event source)")
	}

	if len(config.RPCUrls) == 0 {
		return fmt.Errorf("at least one rpc_urls entry is required (broadcast path)")
	}

	if config.Trading.BuyAmountEth < MinTradeAmountEth {
		return fmt.Errorf("buy_amount_eth must be at least %f", MinTradeAmountEth)
	}
	if config.Trading.BuyAmountEth > MaxTradeAmountEth {
		return fmt.Errorf("buy_amount_eth must not exceed %f", MaxTradeAmountEth)
	}

	if config.Trading.SlippageBP < 10 || config.Trading.SlippageBP > 5000 {
		return fmt.Errorf("slippage_bp must be between 10 and 5000 (0.1%% to 50%%)")
	}

	if config.Trading.GasMultiplier < 1.0 {
		return fmt.Errorf("gas_multiplier must be at least 1.0")
	}
	if config.Trading.MaxGasPriceGwei < config.Trading.GasPriceGwei {
		return fmt.Errorf("max_gas_price_gwei (%f) must not be below gas_price_gwei (%f)",
			config.Trading.MaxGasPriceGwei, config.Trading.GasPriceGwei)
	}

	if config.Trading.DeadlineMinutes < 1 {
		return fmt.Errorf("deadline_minutes must be at least 1")
	}

	if config.Strategy.ProfitTargetPercent <= 0 {
		return fmt.Errorf("profit_target_percent must be positive")
	}
	if config.Strategy.MonitorIntervalMs < 100 {
		return fmt.Errorf("monitor_interval_ms must be at least 100")
	}

	if config.Logging.TradeLogDir != "" {
		if err := os.MkdirAll(config.Logging.TradeLogDir, 0755); err != nil {
			return fmt.Errorf("failed to create trade log directory %s: %w", config.Logging.TradeLogDir, err)
		}
	}

	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// BuyAmountWei converts the configured spend amount to wei
func (c *Config) BuyAmountWei() *big.Int {
	return utils.EtherToWei(c.Trading.BuyAmountEth)
}

// MinLiquidityWei converts the configured liquidity floor to wei
func (c *Config) MinLiquidityWei() *big.Int {
	return utils.EtherToWei(c.Strategy.MinLiquidityEth)
}

// GasPriceWei returns the fixed default gas price in wei
func (c *Config) GasPriceWei() *big.Int {
	return utils.GweiToWei(c.Trading.GasPriceGwei)
}

// MaxGasPriceWei returns the gas price ceiling in wei
func (c *Config) MaxGasPriceWei() *big.Int {
	return utils.GweiToWei(c.Trading.MaxGasPriceGwei)
}
