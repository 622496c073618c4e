package utils

import (
	"math/big"
)

// EtherToWei converts a float amount of the base asset to wei
func EtherToWei(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18)).Int(nil)
	return wei
}

// GweiToWei converts a gas price in gwei to wei
func GweiToWei(amount float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e9)).Int(nil)
	return wei
}

// WeiToEther converts wei to a float amount of the base asset
func WeiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return out
}

// CalculatePercentageChange calculates percentage change between two values
func CalculatePercentageChange(oldValue, newValue float64) float64 {
	if oldValue == 0 {
		return 0
	}
	return ((newValue - oldValue) / oldValue) * 100
}

// ScaledPercentageChange returns the percent change between two scaled
// fixed-point prices without going through floats.
func ScaledPercentageChange(entry, current *big.Int) float64 {
	if entry == nil || entry.Sign() == 0 || current == nil {
		return 0
	}
	diff := new(big.Int).Sub(current, entry)
	diff.Mul(diff, big.NewInt(10_000))
	diff.Div(diff, entry)
	return float64(diff.Int64()) / 100
}

// SafeDiv performs safe division avoiding division by zero
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
