package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/apperror"
)

// Enforcement modes for the whitelist document.
const (
	EnforcementStrict   = "strict"
	EnforcementAdvisory = "advisory"
)

// Pool statuses that admit a listed pool.
const (
	StatusActive  = "active"
	StatusV2Ready = "v2_ready"
)

// WhitelistDocument is the on-disk JSON schema for pool admission.
type WhitelistDocument struct {
	Config    WhitelistConfig  `json:"config"`
	Whitelist WhitelistSection `json:"whitelist"`
	Blacklist BlacklistSection `json:"blacklist"`
}

// WhitelistConfig holds document-wide settings.
type WhitelistConfig struct {
	DefaultMinLiquidity float64             `json:"default_min_liquidity"`
	Enforcement         string              `json:"whitelist_enforcement"`
	LiquidityThresholds LiquidityThresholds `json:"liquidity_thresholds"`
}

// LiquidityThresholds are per-fee-tier minimum liquidity floors.
type LiquidityThresholds struct {
	V3Fee100   float64 `json:"v3_100"`
	V3Fee500   float64 `json:"v3_500"`
	V3Fee3000  float64 `json:"v3_3000"`
	V3Fee10000 float64 `json:"v3_10000"`
}

func (t LiquidityThresholds) forTier(tier uint32) float64 {
	switch tier {
	case 100:
		return t.V3Fee100
	case 500:
		return t.V3Fee500
	case 3000:
		return t.V3Fee3000
	case 10000:
		return t.V3Fee10000
	default:
		return 0
	}
}

// WhitelistSection lists the admitted pools.
type WhitelistSection struct {
	Pools []PoolEntry `json:"pools"`
}

// PoolEntry is one admitted pool. MinLiquidity and MaxTradeSizeUSD are
// optional per-pool overrides.
type PoolEntry struct {
	Address         string   `json:"address"`
	Pair            string   `json:"pair"`
	DEX             string   `json:"dex"`
	FeeTier         uint32   `json:"fee_tier"`
	Status          string   `json:"status"`
	MinLiquidity    *float64 `json:"min_liquidity,omitempty"`
	MaxTradeSizeUSD *float64 `json:"max_trade_size_usd,omitempty"`
}

// BlacklistSection names what is never traded regardless of enforcement mode.
type BlacklistSection struct {
	Pools    []string `json:"pools"`
	FeeTiers []uint32 `json:"fee_tiers"`
	Pairs    []string `json:"pairs"`
}

// Whitelist is the compiled admission filter the detector consults on every
// cycle. Immutable after compilation; hot reload swaps the whole value.
type Whitelist struct {
	strict              bool
	defaultMinLiquidity float64
	tierThresholds      LiquidityThresholds

	pools      map[common.Address]PoolEntry
	blackPools map[common.Address]struct{}
	blackTiers map[uint32]struct{}
	blackPairs map[string]struct{} // uppercased symbols
}

// CompileWhitelist builds the lookup structures from a parsed document.
func CompileWhitelist(doc *WhitelistDocument) *Whitelist {
	w := &Whitelist{
		strict:              strings.EqualFold(doc.Config.Enforcement, EnforcementStrict),
		defaultMinLiquidity: doc.Config.DefaultMinLiquidity,
		tierThresholds:      doc.Config.LiquidityThresholds,
		pools:               make(map[common.Address]PoolEntry, len(doc.Whitelist.Pools)),
		blackPools:          make(map[common.Address]struct{}, len(doc.Blacklist.Pools)),
		blackTiers:          make(map[uint32]struct{}, len(doc.Blacklist.FeeTiers)),
		blackPairs:          make(map[string]struct{}, len(doc.Blacklist.Pairs)),
	}

	for _, p := range doc.Whitelist.Pools {
		if common.IsHexAddress(p.Address) {
			w.pools[common.HexToAddress(p.Address)] = p
		}
	}
	for _, a := range doc.Blacklist.Pools {
		if common.IsHexAddress(a) {
			w.blackPools[common.HexToAddress(a)] = struct{}{}
		}
	}
	for _, t := range doc.Blacklist.FeeTiers {
		w.blackTiers[t] = struct{}{}
	}
	for _, p := range doc.Blacklist.Pairs {
		w.blackPairs[strings.ToUpper(p)] = struct{}{}
	}
	return w
}

// PermissiveWhitelist is the filter used when no whitelist file is
// configured: advisory mode, no liquidity floors, and only the 1% fee tier
// blacklisted (its pools are too thin to price honestly).
func PermissiveWhitelist() *Whitelist {
	return CompileWhitelist(&WhitelistDocument{
		Config: WhitelistConfig{Enforcement: EnforcementAdvisory},
		Blacklist: BlacklistSection{
			FeeTiers: []uint32{10000},
		},
	})
}

// Strict reports whether unlisted pools are rejected.
func (w *Whitelist) Strict() bool { return w.strict }

// Size returns the number of listed pools.
func (w *Whitelist) Size() int { return len(w.pools) }

// Admit decides whether a pool may be traded. Blacklists always win; strict
// mode additionally requires a listed entry with a tradable status; the
// applicable minimum liquidity floor applies in both modes.
func (w *Whitelist) Admit(v poolsdomain.PoolView) error {
	reject := func(reason string) error {
		return apperror.New(apperror.CodePoolNotWhitelisted,
			apperror.WithContext(fmt.Sprintf("%s %s: %s", v.PairSymbol, v.Venue, reason)))
	}

	if v.FeeTier != 0 {
		if _, ok := w.blackTiers[v.FeeTier]; ok {
			return reject(fmt.Sprintf("fee tier %d blacklisted", v.FeeTier))
		}
	}
	if _, ok := w.blackPools[v.Address]; ok {
		return reject("pool blacklisted")
	}
	if _, ok := w.blackPairs[strings.ToUpper(v.PairSymbol)]; ok {
		return reject("pair blacklisted")
	}

	entry, listed := w.pools[v.Address]
	if w.strict {
		if !listed {
			return reject("not listed in strict mode")
		}
		if entry.Status != StatusActive && entry.Status != StatusV2Ready {
			return reject("status " + entry.Status)
		}
	}

	if min := w.MinLiquidity(v); min > 0 && v.Liquidity < min {
		return reject(fmt.Sprintf("liquidity %.0f below floor %.0f", v.Liquidity, min))
	}
	return nil
}

// MinLiquidity returns the applicable liquidity floor for a pool: the
// per-pool override if listed, else the fee-tier threshold, else the
// document default.
func (w *Whitelist) MinLiquidity(v poolsdomain.PoolView) float64 {
	if entry, ok := w.pools[v.Address]; ok && entry.MinLiquidity != nil {
		return *entry.MinLiquidity
	}
	if t := w.tierThresholds.forTier(v.FeeTier); t > 0 {
		return t
	}
	return w.defaultMinLiquidity
}

// MaxTradeSizeUSD returns the per-pool trade cap, if one is listed.
func (w *Whitelist) MaxTradeSizeUSD(addr common.Address) (float64, bool) {
	entry, ok := w.pools[addr]
	if !ok || entry.MaxTradeSizeUSD == nil {
		return 0, false
	}
	return *entry.MaxTradeSizeUSD, true
}
