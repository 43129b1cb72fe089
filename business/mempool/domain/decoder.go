package domain

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/internal/apperror"
)

// Router function selectors (first four bytes of keccak256 of the
// signature).
var (
	// Uniswap/Sushi V3 SwapRouter.
	selExactInputSingle  = [4]byte{0x41, 0x4b, 0xf3, 0x89}
	selExactInput        = [4]byte{0xc0, 0x4b, 0x8d, 0x59}
	selExactOutputSingle = [4]byte{0xdb, 0x3e, 0x21, 0x98}
	selExactOutput       = [4]byte{0xf2, 0x8c, 0x04, 0x98}
	// multicall(uint256 deadline, bytes[]) and multicall(bytes[]).
	selMulticallDeadline = [4]byte{0x5a, 0xe4, 0x01, 0xdc}
	selMulticall         = [4]byte{0xac, 0x96, 0x50, 0xd8}

	// Algebra (QuickSwap V3) exactInputSingle; no fee field.
	selAlgebraExactInputSingle = [4]byte{0xbc, 0x65, 0x11, 0x88}

	// V2 router family.
	selSwapExactTokensForTokens = [4]byte{0x38, 0xed, 0x17, 0x39}
	selSwapTokensForExactTokens = [4]byte{0x88, 0x03, 0xdb, 0xee}
	selSwapExactETHForTokens    = [4]byte{0x7f, 0xf3, 0x6a, 0xb5}
	selSwapExactTokensForETH    = [4]byte{0x18, 0xcb, 0xaf, 0xe5}
)

const wordSize = 32

// Decode extracts swap parameters from router calldata. The selector picks
// the layout; anything else fails with an unknown-selector error carrying
// the selector hex for logging.
func Decode(input []byte) (*DecodedSwap, error) {
	if len(input) < 4 {
		return nil, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("calldata shorter than a selector"))
	}

	var sel [4]byte
	copy(sel[:], input[:4])
	data := input[4:]

	switch sel {
	case selExactInputSingle:
		return decodeExactInputSingle(data)
	case selExactInput:
		return decodePathSwap(data, "exactInput", false)
	case selExactOutputSingle:
		return decodeExactOutputSingle(data)
	case selExactOutput:
		return decodePathSwap(data, "exactOutput", true)
	case selMulticallDeadline:
		return decodeMulticall(data, true)
	case selMulticall:
		return decodeMulticall(data, false)
	case selAlgebraExactInputSingle:
		return decodeAlgebraExactInputSingle(data)
	case selSwapExactTokensForTokens:
		return decodeV2ExactIn(data, "swapExactTokensForTokens")
	case selSwapExactTokensForETH:
		return decodeV2ExactIn(data, "swapExactTokensForETH")
	case selSwapTokensForExactTokens:
		return decodeV2ExactOut(data)
	case selSwapExactETHForTokens:
		return decodeV2ETHIn(data)
	}

	return nil, apperror.New(apperror.CodeUnknownSelector,
		apperror.WithContext(SelectorHex(input)))
}

// SelectorHex renders the 4-byte selector for logging, or a placeholder
// when the input is too short to carry one.
func SelectorHex(input []byte) string {
	if len(input) < 4 {
		return "0x????"
	}
	return "0x" + hex.EncodeToString(input[:4])
}

// exactInputSingle(address tokenIn, address tokenOut, uint24 fee,
// address recipient, uint256 deadline, uint256 amountIn,
// uint256 amountOutMinimum, uint160 sqrtPriceLimitX96)
func decodeExactInputSingle(data []byte) (*DecodedSwap, error) {
	tokenIn, err := addressArg(data, 0)
	if err != nil {
		return nil, err
	}
	tokenOut, err := addressArg(data, 1)
	if err != nil {
		return nil, err
	}
	fee, err := feeArg(data, 2)
	if err != nil {
		return nil, err
	}
	amountIn, err := uintArg(data, 5)
	if err != nil {
		return nil, err
	}
	amountOutMin, err := uintArg(data, 6)
	if err != nil {
		return nil, err
	}

	return &DecodedSwap{
		FunctionName: "exactInputSingle",
		TokenIn:      &tokenIn,
		TokenOut:     &tokenOut,
		FeeTier:      &fee,
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
	}, nil
}

// exactOutputSingle swaps the amount meaning: word 5 is the exact output
// target, word 6 the input cap. The cap is reported as AmountIn (the most
// the sender will spend), the target as AmountOutMin.
func decodeExactOutputSingle(data []byte) (*DecodedSwap, error) {
	tokenIn, err := addressArg(data, 0)
	if err != nil {
		return nil, err
	}
	tokenOut, err := addressArg(data, 1)
	if err != nil {
		return nil, err
	}
	fee, err := feeArg(data, 2)
	if err != nil {
		return nil, err
	}
	amountOut, err := uintArg(data, 5)
	if err != nil {
		return nil, err
	}
	amountInMax, err := uintArg(data, 6)
	if err != nil {
		return nil, err
	}

	return &DecodedSwap{
		FunctionName: "exactOutputSingle",
		TokenIn:      &tokenIn,
		TokenOut:     &tokenOut,
		FeeTier:      &fee,
		AmountIn:     amountInMax,
		AmountOutMin: amountOut,
	}, nil
}

// exactInput/exactOutput take a struct with a dynamic bytes path, so the
// calldata is one offset word pointing at the tuple
// (bytes path, address recipient, uint256 deadline, uint256 amountA,
// uint256 amountB). For exactInput the amounts are (amountIn,
// amountOutMinimum); for exactOutput they are (amountOut, amountInMaximum)
// and the packed path runs tokenOut -> tokenIn.
func decodePathSwap(data []byte, name string, reversed bool) (*DecodedSwap, error) {
	tupleOff, err := offsetArg(data, 0)
	if err != nil {
		return nil, err
	}
	tuple := data[tupleOff:]

	pathOff, err := offsetArg(tuple, 0)
	if err != nil {
		return nil, err
	}
	path, err := bytesAt(tuple, pathOff)
	if err != nil {
		return nil, err
	}

	first, last, fee, err := DecodeV3Path(path)
	if err != nil {
		return nil, err
	}

	amountA, err := uintArg(tuple, 3)
	if err != nil {
		return nil, err
	}
	amountB, err := uintArg(tuple, 4)
	if err != nil {
		return nil, err
	}

	d := &DecodedSwap{FunctionName: name, FeeTier: &fee}
	if reversed {
		d.TokenIn, d.TokenOut = &last, &first
		d.AmountIn, d.AmountOutMin = amountB, amountA
	} else {
		d.TokenIn, d.TokenOut = &first, &last
		d.AmountIn, d.AmountOutMin = amountA, amountB
	}
	return d, nil
}

// Algebra exactInputSingle(address tokenIn, address tokenOut,
// address recipient, uint256 deadline, uint256 amountIn,
// uint256 amountOutMinimum, uint160 limitSqrtPrice). The fee is dynamic
// pool state, not a calldata field.
func decodeAlgebraExactInputSingle(data []byte) (*DecodedSwap, error) {
	tokenIn, err := addressArg(data, 0)
	if err != nil {
		return nil, err
	}
	tokenOut, err := addressArg(data, 1)
	if err != nil {
		return nil, err
	}
	amountIn, err := uintArg(data, 4)
	if err != nil {
		return nil, err
	}
	amountOutMin, err := uintArg(data, 5)
	if err != nil {
		return nil, err
	}

	return &DecodedSwap{
		FunctionName: "algebraExactInputSingle",
		TokenIn:      &tokenIn,
		TokenOut:     &tokenOut,
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
	}, nil
}

// multicall(uint256 deadline, bytes[]) / multicall(bytes[]): decode each
// inner call and surface the first recognizable swap with its name
// prefixed. A multicall with no decodable swap inside still counts as
// decoded, just opaque.
func decodeMulticall(data []byte, hasDeadline bool) (*DecodedSwap, error) {
	arrayArg := 0
	if hasDeadline {
		arrayArg = 1
	}
	arrOff, err := offsetArg(data, arrayArg)
	if err != nil {
		return nil, err
	}
	arr := data[arrOff:]

	n, err := uintArg(arr, 0)
	if err != nil {
		return nil, err
	}
	if !n.IsInt64() {
		return nil, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("multicall array length overflows"))
	}
	count := int(n.Int64())
	if count < 0 || wordSize+count*wordSize > len(arr) {
		return nil, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("multicall array length out of range"))
	}
	elems := arr[wordSize:]

	for i := 0; i < count; i++ {
		callOff, err := offsetArg(elems, i)
		if err != nil {
			return nil, err
		}
		call, err := bytesAt(elems, callOff)
		if err != nil {
			return nil, err
		}

		inner, err := Decode(call)
		if err != nil {
			continue
		}
		inner.FunctionName = "multicall>" + inner.FunctionName
		return inner, nil
	}

	return &DecodedSwap{FunctionName: "multicall(opaque)"}, nil
}

// swapExactTokensForTokens / swapExactTokensForETH
// (uint256 amountIn, uint256 amountOutMin, address[] path, address to,
// uint256 deadline)
func decodeV2ExactIn(data []byte, name string) (*DecodedSwap, error) {
	amountIn, err := uintArg(data, 0)
	if err != nil {
		return nil, err
	}
	amountOutMin, err := uintArg(data, 1)
	if err != nil {
		return nil, err
	}
	tokenIn, tokenOut, err := v2Path(data, 2)
	if err != nil {
		return nil, err
	}

	return &DecodedSwap{
		FunctionName: name,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
	}, nil
}

// swapTokensForExactTokens(uint256 amountOut, uint256 amountInMax,
// address[] path, address to, uint256 deadline)
func decodeV2ExactOut(data []byte) (*DecodedSwap, error) {
	amountOut, err := uintArg(data, 0)
	if err != nil {
		return nil, err
	}
	amountInMax, err := uintArg(data, 1)
	if err != nil {
		return nil, err
	}
	tokenIn, tokenOut, err := v2Path(data, 2)
	if err != nil {
		return nil, err
	}

	return &DecodedSwap{
		FunctionName: "swapTokensForExactTokens",
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountInMax,
		AmountOutMin: amountOut,
	}, nil
}

// swapExactETHForTokens(uint256 amountOutMin, address[] path, address to,
// uint256 deadline). The input amount is msg.value, not calldata, so
// AmountIn stays nil.
func decodeV2ETHIn(data []byte) (*DecodedSwap, error) {
	amountOutMin, err := uintArg(data, 0)
	if err != nil {
		return nil, err
	}
	tokenIn, tokenOut, err := v2Path(data, 1)
	if err != nil {
		return nil, err
	}

	return &DecodedSwap{
		FunctionName: "swapExactETHForTokens",
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountOutMin: amountOutMin,
	}, nil
}

// DecodeV3Path unpacks the packed V3 route token(20)|fee(3)|token(20)
// [|fee(3)|token(20) ...] and returns the first token, the last token, and
// the first hop's fee tier.
func DecodeV3Path(path []byte) (first, last common.Address, fee uint32, err error) {
	// Minimum single hop: 20 + 3 + 20 bytes.
	if len(path) < 43 {
		return common.Address{}, common.Address{}, 0,
			apperror.New(apperror.CodeCalldataDecodeFailed,
				apperror.WithContext("v3 path shorter than one hop"))
	}

	first = common.BytesToAddress(path[:20])
	fee = uint32(path[20])<<16 | uint32(path[21])<<8 | uint32(path[22])
	last = common.BytesToAddress(path[len(path)-20:])
	return first, last, fee, nil
}

// v2Path reads the address[] at argument index i and returns pointers to
// its first and last elements; nil for an empty path.
func v2Path(data []byte, i int) (*common.Address, *common.Address, error) {
	off, err := offsetArg(data, i)
	if err != nil {
		return nil, nil, err
	}
	arr := data[off:]

	n, err := uintArg(arr, 0)
	if err != nil {
		return nil, nil, err
	}
	if !n.IsInt64() {
		return nil, nil, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("v2 path length overflows"))
	}
	count := int(n.Int64())
	if count <= 0 {
		return nil, nil, nil
	}
	if wordSize+count*wordSize > len(arr) {
		return nil, nil, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("v2 path length out of range"))
	}

	firstAddr, err := addressArg(arr, 1)
	if err != nil {
		return nil, nil, err
	}
	lastAddr, err := addressArg(arr, count)
	if err != nil {
		return nil, nil, err
	}
	return &firstAddr, &lastAddr, nil
}

// word returns the 32-byte argument word at index i.
func word(data []byte, i int) ([]byte, error) {
	start := i * wordSize
	if start < 0 || start+wordSize > len(data) {
		return nil, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("calldata truncated"))
	}
	return data[start : start+wordSize], nil
}

func addressArg(data []byte, i int) (common.Address, error) {
	w, err := word(data, i)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(w[12:]), nil
}

func uintArg(data []byte, i int) (*big.Int, error) {
	w, err := word(data, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

func feeArg(data []byte, i int) (uint32, error) {
	v, err := uintArg(data, i)
	if err != nil {
		return 0, err
	}
	return uint32(v.Uint64()), nil
}

// offsetArg reads a head-relative byte offset and bounds-checks it against
// the data it points into. Calldata is attacker-controlled; a bad offset is
// a decode failure, never a panic.
func offsetArg(data []byte, i int) (int, error) {
	v, err := uintArg(data, i)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("offset overflows"))
	}
	off := int(v.Int64())
	if off < 0 || off+wordSize > len(data) {
		return 0, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("offset out of range"))
	}
	return off, nil
}

// bytesAt reads a length-prefixed bytes value starting at off.
func bytesAt(data []byte, off int) ([]byte, error) {
	n, err := uintArg(data[off:], 0)
	if err != nil {
		return nil, err
	}
	if !n.IsInt64() {
		return nil, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("bytes length overflows"))
	}
	length := int(n.Int64())
	start := off + wordSize
	if length < 0 || start+length > len(data) {
		return nil, apperror.New(apperror.CodeCalldataDecodeFailed,
			apperror.WithContext("bytes out of range"))
	}
	return data[start : start+length], nil
}
