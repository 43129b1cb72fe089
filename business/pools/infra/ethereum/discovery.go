package ethereum

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/pools/app"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/cache"
	"github.com/fd1az/dexarb/internal/logger"
)

// Ensure the adapters implement their ports.
var (
	_ app.PoolDiscoverer = (*Discoverer)(nil)
	_ app.TokenMetadata  = (*TokenReader)(nil)
)

// Discoverer resolves pool addresses from factory contracts. Discovery runs
// once at startup so calls go through the shared client one at a time.
type Discoverer struct {
	client *Client
	logger logger.LoggerInterface
}

// NewDiscoverer creates a factory-backed discoverer.
func NewDiscoverer(client *Client, log logger.LoggerInterface) *Discoverer {
	return &Discoverer{client: client, logger: log}
}

// V2Pool resolves the pair contract via factory.getPair.
func (d *Discoverer) V2Pool(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	return d.resolve(ctx, factory, d.client.ABIs().v2Factory, "getPair", tokenA, tokenB)
}

// V3Pool resolves the per-tier pool via factory.getPool.
func (d *Discoverer) V3Pool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	return d.resolve(ctx, factory, d.client.ABIs().v3Factory, "getPool", tokenA, tokenB, big.NewInt(int64(fee)))
}

// AlgebraPool resolves the dynamic-fee pool via factory.poolByPair.
func (d *Discoverer) AlgebraPool(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	return d.resolve(ctx, factory, d.client.ABIs().algebraFactory, "poolByPair", tokenA, tokenB)
}

// Token0 reads the pool's canonical first token.
func (d *Discoverer) Token0(ctx context.Context, pool common.Address) (common.Address, error) {
	return d.resolve(ctx, pool, d.client.ABIs().v2Pair, "token0")
}

func (d *Discoverer) resolve(ctx context.Context, target common.Address, contract abi.ABI, method string, args ...interface{}) (common.Address, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return common.Address{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("pack "+method))
	}

	raw, err := d.client.Call(ctx, target, data)
	if err != nil {
		return common.Address{}, err
	}

	outputs, err := contract.Unpack(method, raw)
	if err != nil {
		return common.Address{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("decode "+method))
	}
	return outputs[0].(common.Address), nil
}

// TokenReader reads ERC-20 metadata with a long-lived cache. Decimals are
// immutable on-chain; the TTL only bounds memory for tokens that stop being
// tracked.
type TokenReader struct {
	client   *Client
	logger   logger.LoggerInterface
	decimals *cache.Cache[common.Address, uint8]
}

// NewTokenReader creates a metadata reader.
func NewTokenReader(client *Client, log logger.LoggerInterface) *TokenReader {
	return &TokenReader{
		client:   client,
		logger:   log,
		decimals: cache.New[common.Address, uint8](time.Hour),
	}
}

// Decimals returns the token's decimals, cached after the first read.
func (r *TokenReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if dec, ok := r.decimals.Get(ctx, token); ok {
		return dec, nil
	}

	abis := r.client.ABIs()
	data, err := abis.erc20.Pack("decimals")
	if err != nil {
		return 0, apperror.New(apperror.CodeDecimalsFetchError,
			apperror.WithCause(err),
			apperror.WithContext("pack decimals"))
	}

	raw, err := r.client.Call(ctx, token, data)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.CodeDecimalsFetchError, token.Hex())
	}

	outputs, err := abis.erc20.Unpack("decimals", raw)
	if err != nil {
		return 0, apperror.New(apperror.CodeDecimalsFetchError,
			apperror.WithCause(err),
			apperror.WithContext(token.Hex()))
	}

	dec := outputs[0].(uint8)
	r.decimals.Set(ctx, token, dec, 24*time.Hour)
	return dec, nil
}

// Close releases the decimals cache janitor.
func (r *TokenReader) Close() {
	r.decimals.Close()
}
