package quoter

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/business/pools/infra/ethereum"
)

func testQuoter(t *testing.T) *Quoter {
	t.Helper()
	parsed, err := abi.JSON(bytes.NewReader([]byte(QuoterV1ABI)))
	if err != nil {
		t.Fatalf("parse ABI: %v", err)
	}
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("string type: %v", err)
	}
	return &Quoter{
		abi:        parsed,
		stringArgs: abi.Arguments{{Type: stringType}},
	}
}

func uint256Bytes(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

func TestQuoter_EncodeLegCall(t *testing.T) {
	q := testQuoter(t)

	data, err := q.abi.Pack("quoteExactInputSingle",
		common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), // USDC
		common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"), // WETH
		big.NewInt(500),
		big.NewInt(1_000_000),
		big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	// 4 selector bytes plus five 32-byte words.
	if len(data) != 164 {
		t.Errorf("encoded length = %d, want 164", len(data))
	}
	// quoteExactInputSingle(address,address,uint24,uint256,uint160)
	want := []byte{0xf7, 0x72, 0x9d, 0x43}
	if !bytes.Equal(data[:4], want) {
		t.Errorf("selector = %x, want %x", data[:4], want)
	}
}

func TestQuoter_DecodeValidQuote(t *testing.T) {
	q := testQuoter(t)
	amount := new(big.Int).SetUint64(1_000_000_000_000_000_000)

	// The normal QuoterV1 path: the call "failed" and the revert payload is
	// the quote.
	out, err := q.decodeResult(ethereum.CallResult{
		Success:    false,
		ReturnData: uint256Bytes(amount),
	})
	if err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if out.Cmp(amount) != 0 {
		t.Errorf("amount = %s, want %s", out, amount)
	}
}

func TestQuoter_DecodeUnexpectedSuccess(t *testing.T) {
	q := testQuoter(t)
	amount := big.NewInt(500_000)

	out, err := q.decodeResult(ethereum.CallResult{
		Success:    true,
		ReturnData: uint256Bytes(amount),
	})
	if err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if out.Cmp(amount) != 0 {
		t.Errorf("amount = %s, want %s", out, amount)
	}
}

func TestQuoter_DecodeErrorString(t *testing.T) {
	q := testQuoter(t)

	encoded, err := q.stringArgs.Pack("insufficient liquidity")
	if err != nil {
		t.Fatalf("pack error string: %v", err)
	}
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, encoded...)

	_, err = q.decodeResult(ethereum.CallResult{Success: false, ReturnData: data})
	if err == nil || !strings.Contains(err.Error(), "insufficient liquidity") {
		t.Errorf("error = %v, want the revert message surfaced", err)
	}
}

func TestQuoter_DecodePanic(t *testing.T) {
	q := testQuoter(t)

	data := append([]byte{0x4e, 0x48, 0x7b, 0x71}, make([]byte, 32)...)
	_, err := q.decodeResult(ethereum.CallResult{Success: false, ReturnData: data})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("error = %v, want panic failure", err)
	}
}

func TestQuoter_DecodeEmpty(t *testing.T) {
	q := testQuoter(t)

	_, err := q.decodeResult(ethereum.CallResult{Success: false})
	if err == nil || !strings.Contains(err.Error(), "insufficient return data") {
		t.Errorf("error = %v, want insufficient data", err)
	}
}

func TestQuoter_DecodeZeroAmount(t *testing.T) {
	q := testQuoter(t)

	_, err := q.decodeResult(ethereum.CallResult{
		Success:    false,
		ReturnData: make([]byte, 32),
	})
	if err == nil || !strings.Contains(err.Error(), "zero") {
		t.Errorf("error = %v, want zero-depth failure", err)
	}
}

func TestQuotable(t *testing.T) {
	tests := []struct {
		venue poolsdomain.Venue
		want  bool
	}{
		{poolsdomain.UniswapV3Fee100, true},
		{poolsdomain.UniswapV3Fee500, true},
		{poolsdomain.UniswapV3Fee3000, true},
		{poolsdomain.UniswapV3Fee10000, true},
		{poolsdomain.QuickSwapV2, false},
		{poolsdomain.SushiSwapV2, false},
		{poolsdomain.QuickSwapV3, false},
		// Sushi V3 shares the tier but not the quoter deployment.
		{poolsdomain.SushiSwapV3Fee500, false},
	}
	for _, tt := range tests {
		if got := quotable(tt.venue); got != tt.want {
			t.Errorf("quotable(%s) = %v, want %v", tt.venue, got, tt.want)
		}
	}
}
