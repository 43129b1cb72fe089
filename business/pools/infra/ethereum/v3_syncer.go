package ethereum

import (
	"context"
	"math/big"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/dexarb/business/pools/app"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/logger"
)

// Ensure V3Syncer implements the port.
var _ app.V3Syncer = (*V3Syncer)(nil)

// V3Syncer batch-reads price and liquidity for concentrated-liquidity pools.
// Each pool contributes two calls to the batch: slot0 (or globalState for
// Algebra) plus liquidity.
type V3Syncer struct {
	client *Client
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewV3Syncer creates a V3 syncer on the shared read client.
func NewV3Syncer(client *Client, log logger.LoggerInterface) *V3Syncer {
	return &V3Syncer{
		client: client,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
}

// Sync fetches price/liquidity state for every target. Pools whose reads
// fail are skipped so the rest of the batch still lands.
func (s *V3Syncer) Sync(ctx context.Context, targets []app.V3Target) ([]app.V3State, error) {
	ctx, span := s.tracer.Start(ctx, "pools.v3_sync",
		trace.WithAttributes(attribute.Int("pools", len(targets))),
	)
	defer span.End()

	abis := s.client.ABIs()

	slot0Data, err := abis.v3Pool.Pack("slot0")
	if err != nil {
		return nil, apperror.New(apperror.CodePoolSyncFailed,
			apperror.WithCause(err), apperror.WithContext("pack slot0"))
	}
	globalStateData, err := abis.algebraPool.Pack("globalState")
	if err != nil {
		return nil, apperror.New(apperror.CodePoolSyncFailed,
			apperror.WithCause(err), apperror.WithContext("pack globalState"))
	}
	liquidityData, err := abis.v3Pool.Pack("liquidity")
	if err != nil {
		return nil, apperror.New(apperror.CodePoolSyncFailed,
			apperror.WithCause(err), apperror.WithContext("pack liquidity"))
	}

	calls := make([]Call3, 0, len(targets)*2)
	for _, t := range targets {
		stateData := slot0Data
		if t.Algebra {
			stateData = globalStateData
		}
		calls = append(calls,
			Call3{Target: t.Address, AllowFailure: true, CallData: stateData},
			Call3{Target: t.Address, AllowFailure: true, CallData: liquidityData},
		)
	}

	results, block, err := s.client.Aggregate3(ctx, calls)
	if err != nil {
		return nil, err
	}

	states := make([]app.V3State, 0, len(targets))
	for i, t := range targets {
		stateRes, liqRes := results[i*2], results[i*2+1]
		if !stateRes.Success || !liqRes.Success {
			s.logger.Warn(ctx, "v3 state read failed", "pool", t.Address.Hex())
			continue
		}

		st, err := s.decodeState(t, stateRes.ReturnData, liqRes.ReturnData)
		if err != nil {
			s.logger.Warn(ctx, "v3 state decode failed", "pool", t.Address.Hex(), "error", err)
			continue
		}
		st.Block = block
		states = append(states, st)
	}

	span.SetAttributes(
		attribute.Int("synced", len(states)),
		attribute.Int64("block", int64(block)),
	)
	return states, nil
}

func (s *V3Syncer) decodeState(t app.V3Target, stateData, liqData []byte) (app.V3State, error) {
	abis := s.client.ABIs()
	st := app.V3State{Address: t.Address}

	if t.Algebra {
		outputs, err := abis.algebraPool.Unpack("globalState", stateData)
		if err != nil {
			return st, err
		}
		st.SqrtPriceX96 = outputs[0].(*big.Int)
		st.Tick = int32(outputs[1].(*big.Int).Int64())
		st.Fee = uint32(outputs[2].(uint16))
	} else {
		outputs, err := abis.v3Pool.Unpack("slot0", stateData)
		if err != nil {
			return st, err
		}
		st.SqrtPriceX96 = outputs[0].(*big.Int)
		st.Tick = int32(outputs[1].(*big.Int).Int64())
	}

	liqOutputs, err := abis.v3Pool.Unpack("liquidity", liqData)
	if err != nil {
		return st, err
	}
	st.Liquidity = liqOutputs[0].(*big.Int)

	return st, nil
}
