package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/dexarb/business/pools/app"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/logger"
)

// Ensure V2Syncer implements the port.
var _ app.V2Syncer = (*V2Syncer)(nil)

// V2Syncer batch-reads getReserves for constant-product pools. One multicall
// round trip covers the whole batch.
type V2Syncer struct {
	client *Client
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewV2Syncer creates a V2 syncer on the shared read client.
func NewV2Syncer(client *Client, log logger.LoggerInterface) *V2Syncer {
	return &V2Syncer{
		client: client,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
}

// Sync fetches reserve state for every address. Pools whose read fails are
// skipped, not fatal; the caller keeps their previous snapshot.
func (s *V2Syncer) Sync(ctx context.Context, addrs []common.Address) ([]app.V2State, error) {
	ctx, span := s.tracer.Start(ctx, "pools.v2_sync",
		trace.WithAttributes(attribute.Int("pools", len(addrs))),
	)
	defer span.End()

	abis := s.client.ABIs()
	callData, err := abis.v2Pair.Pack("getReserves")
	if err != nil {
		return nil, apperror.New(apperror.CodePoolSyncFailed,
			apperror.WithCause(err),
			apperror.WithContext("pack getReserves"))
	}

	calls := make([]Call3, len(addrs))
	for i, addr := range addrs {
		calls[i] = Call3{Target: addr, AllowFailure: true, CallData: callData}
	}

	results, block, err := s.client.Aggregate3(ctx, calls)
	if err != nil {
		return nil, err
	}

	states := make([]app.V2State, 0, len(addrs))
	for i, res := range results {
		if !res.Success {
			s.logger.Warn(ctx, "v2 reserve read failed", "pool", addrs[i].Hex())
			continue
		}

		outputs, err := abis.v2Pair.Unpack("getReserves", res.ReturnData)
		if err != nil {
			s.logger.Warn(ctx, "v2 reserve decode failed", "pool", addrs[i].Hex(), "error", err)
			continue
		}

		states = append(states, app.V2State{
			Address:  addrs[i],
			Reserve0: outputs[0].(*big.Int),
			Reserve1: outputs[1].(*big.Int),
			Block:    block,
		})
	}

	span.SetAttributes(
		attribute.Int("synced", len(states)),
		attribute.Int64("block", int64(block)),
	)
	return states, nil
}
