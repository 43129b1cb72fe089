package app

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	poolsapp "github.com/fd1az/dexarb/business/pools/app"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

func TestPairLookup(t *testing.T) {
	weth := common.HexToAddress("0x0a")
	usdc := common.HexToAddress("0x0b")
	wmatic := common.HexToAddress("0x0c")
	exotic := common.HexToAddress("0x0d")

	lookup := BuildPairLookup([]poolsapp.PairOrientation{
		{
			// Quote on token1.
			Pair: poolsdomain.Pair{
				Token0: weth, Token1: usdc,
				Token0Decimals: 18, Token1Decimals: 6,
				Symbol: "WETH/USDC",
			},
			QuoteToken0: false,
		},
		{
			// Quote on token0.
			Pair: poolsdomain.Pair{
				Token0: usdc, Token1: wmatic,
				Token0Decimals: 6, Token1Decimals: 18,
				Symbol: "WMATIC/USDC",
			},
			QuoteToken0: true,
		},
	})

	if got := lookup.PairCount(); got != 2 {
		t.Fatalf("PairCount = %d, want 2", got)
	}

	tests := []struct {
		name       string
		in, out    common.Address
		wantSymbol string
		wantOK     bool
	}{
		{"base_to_quote", weth, usdc, "WETH/USDC", true},
		{"quote_to_base", usdc, weth, "WETH/USDC", true},
		{"quote_token0_pair", usdc, wmatic, "WMATIC/USDC", true},
		{"neither_side_quoted", weth, wmatic, "", false},
		{"untracked_base", usdc, exotic, "", false},
		{"both_untracked", exotic, common.HexToAddress("0x0e"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			symbol, ok := lookup.IdentifyPair(tt.in, tt.out)
			if ok != tt.wantOK || symbol != tt.wantSymbol {
				t.Errorf("IdentifyPair = (%q, %v), want (%q, %v)",
					symbol, ok, tt.wantSymbol, tt.wantOK)
			}
		})
	}
}
