package config

import "github.com/ethereum/go-ethereum/common"

// Network constants
const (
	BSCMainnetWS   = "wss://bsc-ws-node.nariox.org:443"
	BSCMainnetRPC  = "https://bsc-dataseed.binance.org"
	BSCMainnetRPC2 = "https://bsc-dataseed1.defibit.io"

	// Transaction constants
	MaxReserveRounds    = 5
	ReserveRetryDelayMs = 800
	ConfirmTimeoutSec   = 90
	MetadataTimeoutSec  = 3
	BroadcastTimeoutSec = 5
)

// Uniswap V2 style contract addresses (BSC mainnet defaults, overridable in config)
var (
	// Wrapped native token used as the quote leg of every monitored pair
	WBNBAddress = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")

	// PancakeSwap V2 factory
	PancakeFactoryAddress = common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73")

	// PancakeSwap V2 router
	PancakeRouterAddress = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
)

// PairCreated(address indexed token0, address indexed token1, address pair, uint256)
var PairCreatedTopic = common.HexToHash("0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9")

// Trading constants
const (
	// Default slippage in basis points (1% = 100 bp). Used for price display and
	// decision making only; swap calldata always carries amountOutMin = 0.
	DefaultSlippageBP = 500

	// Default profit target as percent above entry price
	DefaultProfitTargetPercent = 5.0

	// Default gas price when not bidding competitively, in gwei
	DefaultGasPriceGwei = 5

	// Multiplier applied to the network gas price when competitive gas is enabled
	DefaultGasMultiplier = 1.5

	// Hard ceiling for any gas price we will sign, in gwei
	DefaultMaxGasPriceGwei = 100

	// Swap gas limit; generous for routers with fee-on-transfer handling
	DefaultSwapGasLimit = 500_000

	// ERC-20 approve gas limit
	DefaultApproveGasLimit = 60_000

	// Minimum and maximum per-trade spend in native units
	MinTradeAmountEth = 0.0001
	MaxTradeAmountEth = 50.0
)
