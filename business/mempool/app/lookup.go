package app

import (
	"github.com/ethereum/go-ethereum/common"

	poolsapp "github.com/fd1az/dexarb/business/pools/app"
)

// PairLookup maps the token addresses seen in router calldata back to
// tracked pair symbols. A swap is attributed to a pair when one side is a
// known quote token and the other side is the base of a tracked pair;
// anything else (exotic-to-exotic hops, untracked tokens) is ignored.
type PairLookup struct {
	baseToSymbol map[common.Address]string
	quoteTokens  map[common.Address]struct{}
}

// BuildPairLookup derives the lookup from the tracked pools' pair
// orientations. The first pool to claim a base token wins; every pool of a
// pair carries the same orientation, so order only matters across pairs
// that share a base.
func BuildPairLookup(orientations []poolsapp.PairOrientation) *PairLookup {
	l := &PairLookup{
		baseToSymbol: make(map[common.Address]string),
		quoteTokens:  make(map[common.Address]struct{}),
	}
	for _, o := range orientations {
		quote, base := o.Pair.Token0, o.Pair.Token1
		if !o.QuoteToken0 {
			quote, base = base, quote
		}
		l.quoteTokens[quote] = struct{}{}
		if _, ok := l.baseToSymbol[base]; !ok {
			l.baseToSymbol[base] = o.Pair.Symbol
		}
	}
	return l
}

// IdentifyPair resolves the pair a swap between the two tokens belongs to.
func (l *PairLookup) IdentifyPair(tokenIn, tokenOut common.Address) (string, bool) {
	var base common.Address
	if _, ok := l.quoteTokens[tokenIn]; ok {
		base = tokenOut
	} else if _, ok := l.quoteTokens[tokenOut]; ok {
		base = tokenIn
	} else {
		return "", false
	}

	symbol, ok := l.baseToSymbol[base]
	return symbol, ok
}

// PairCount returns how many base tokens are mapped.
func (l *PairLookup) PairCount() int {
	return len(l.baseToSymbol)
}
