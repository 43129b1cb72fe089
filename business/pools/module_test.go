package pools

import (
	"testing"

	"github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/asset"
	"github.com/fd1az/dexarb/internal/config"
)

func TestParsePairSpecs(t *testing.T) {
	specs, err := ParsePairSpecs([]string{
		"0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619:0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174:WETH/USDC",
	}, nil, asset.ChainIDPolygon)
	if err != nil {
		t.Fatalf("ParsePairSpecs: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("got %d specs, want 1", len(specs))
	}
	if specs[0].Symbol != "WETH/USDC" {
		t.Errorf("symbol = %q, want WETH/USDC", specs[0].Symbol)
	}
	if specs[0].TokenA == specs[0].TokenB {
		t.Error("tokenA and tokenB must differ")
	}
}

func TestParsePairSpecs_SymbolLookup(t *testing.T) {
	reg := asset.DefaultRegistry()

	specs, err := ParsePairSpecs([]string{"WETH:usdc.e:WETH/USDC"}, reg, asset.ChainIDPolygon)
	if err != nil {
		t.Fatalf("ParsePairSpecs: %v", err)
	}
	if specs[0].TokenA != asset.AddrWETHPolygon {
		t.Errorf("tokenA = %s, want WETH", specs[0].TokenA.Hex())
	}
	if specs[0].TokenB != asset.AddrUSDCePolygon {
		t.Errorf("tokenB = %s, want USDC.e", specs[0].TokenB.Hex())
	}
}

func TestParsePairSpecs_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{name: "missing_symbol", entry: "0x01:0x02"},
		{name: "unknown_token", entry: "NOPE:0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174:X"},
		{name: "empty", entry: ""},
	}
	reg := asset.DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePairSpecs([]string{tt.entry}, reg, asset.ChainIDPolygon); err == nil {
				t.Errorf("ParsePairSpecs(%q) succeeded, want error", tt.entry)
			}
		})
	}
}

func TestVenueSpecs_SkipsUnconfigured(t *testing.T) {
	v := &config.VenuesConfig{
		QuickSwapV2: config.VenueConfig{Factory: "0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32"},
		UniswapV3:   config.VenueConfig{Factory: "0x1F98431c8aD98523631AE4a59f267346ea31F984"},
	}

	specs := VenueSpecs(v)

	// QuickSwapV2 plus the four Uniswap tiers.
	if len(specs) != 5 {
		t.Fatalf("got %d venue specs, want 5", len(specs))
	}

	seen := make(map[domain.Venue]bool)
	for _, s := range specs {
		seen[s.Venue] = true
	}
	for _, want := range []domain.Venue{
		domain.QuickSwapV2,
		domain.UniswapV3Fee100,
		domain.UniswapV3Fee500,
		domain.UniswapV3Fee3000,
		domain.UniswapV3Fee10000,
	} {
		if !seen[want] {
			t.Errorf("venue %s missing from specs", want)
		}
	}
	if seen[domain.SushiSwapV2] || seen[domain.QuickSwapV3] {
		t.Error("unconfigured venues must be skipped")
	}
}
