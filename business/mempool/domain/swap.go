// Package domain contains the pure mempool types: calldata decoding,
// confirmation tracking, and the speculative-opportunity model.
package domain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Mode selects what the mempool monitor does with what it sees.
type Mode uint8

const (
	// ModeOff disables mempool monitoring entirely.
	ModeOff Mode = iota
	// ModeObserve decodes and tracks pending swaps without acting on them.
	ModeObserve
	// ModeExecute additionally emits execution signals for simulated
	// opportunities above the configured thresholds.
	ModeExecute
)

// ParseMode maps a config string to a Mode; anything unrecognized is off.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "observe":
		return ModeObserve
	case "execute":
		return ModeExecute
	default:
		return ModeOff
	}
}

func (m Mode) String() string {
	switch m {
	case ModeObserve:
		return "observe"
	case ModeExecute:
		return "execute"
	default:
		return "off"
	}
}

// Active reports whether the monitor should run at all.
func (m Mode) Active() bool {
	return m != ModeOff
}

// DecodedSwap is what the decoder extracts from router calldata. Fields are
// pointers because not every function carries every value: V2 and Algebra
// swaps have no fee tier, swapExactETHForTokens carries its input as
// msg.value, and an opaque multicall carries nothing at all.
type DecodedSwap struct {
	// FunctionName is the router function, prefixed "multicall>" when the
	// swap was found inside a router multicall.
	FunctionName string
	TokenIn      *common.Address
	TokenOut     *common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	// FeeTier is the V3 tier in millionths; nil for V2 and Algebra.
	FeeTier *uint32
}

// IsExactOutput reports whether the swap fixes its output instead of its
// input. The input amount of such swaps is unknown ahead of time, so the
// simulator skips them; an opaque multicall is treated the same way.
func (d *DecodedSwap) IsExactOutput() bool {
	return strings.Contains(d.FunctionName, "exactOutput") ||
		strings.Contains(d.FunctionName, "ForExactTokens") ||
		strings.Contains(d.FunctionName, "swapExactETHForTokens") ||
		d.FunctionName == "multicall(opaque)"
}
