// Package app contains the detection application service and its ports.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/detection/domain"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
)

// PoolSource is the read surface the detector scans. Implemented by the
// pools context's PoolService.
type PoolSource interface {
	// ViewsByPair groups fresh pool projections by pair symbol.
	ViewsByPair() map[string][]poolsdomain.PoolView
	// LastBlock is the highest block any pool sync has observed.
	LastBlock() uint64
	// Pair resolves a tracked pool's token pair and quote orientation.
	Pair(addr common.Address) (poolsdomain.Pair, bool, error)
}

// WhitelistProvider serves the current admission filter; hot reload swaps
// the value behind it.
type WhitelistProvider interface {
	Current() *domain.Whitelist
}

// Verification is the quoter's verdict on one opportunity.
type Verification struct {
	// BuyOut and SellOut are the quoted leg outputs in raw token units.
	BuyOut  *big.Int
	SellOut *big.Int
	// BothLegsValid means both probes produced a usable quote.
	BothLegsValid bool
	// Passthrough means the batch could not be executed (transport failure
	// or unquotable venue); the detector's own estimates stand, unverified.
	Passthrough bool
	// Err describes the failing leg when BothLegsValid is false.
	Err string
}

// QuoteVerifier batch-checks executable depth for ranked opportunities.
// Results are positional: verifications[i] belongs to opps[i].
type QuoteVerifier interface {
	BatchVerify(ctx context.Context, opps []*domain.Opportunity) ([]Verification, error)
}
