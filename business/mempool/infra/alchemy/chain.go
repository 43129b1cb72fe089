package alchemy

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/dexarb/business/mempool/app"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/circuitbreaker"
)

// Ensure ChainReader implements the port.
var _ app.ChainReader = (*ChainReader)(nil)

// ChainReader reads confirmed blocks over its own connection, so the
// cross-reference loop never competes with the block subscription feeding
// detection.
type ChainReader struct {
	rpc *rpc.Client
	eth *ethclient.Client

	numberCB *circuitbreaker.CircuitBreaker[uint64]
	blockCB  *circuitbreaker.CircuitBreaker[[]common.Hash]
}

// NewChainReader dials the endpoint. Both ws:// and https:// URLs work;
// this connection only issues request/response calls.
func NewChainReader(ctx context.Context, url string) (*ChainReader, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial chain reader"))
	}

	return &ChainReader{
		rpc:      c,
		eth:      ethclient.NewClient(c),
		numberCB: circuitbreaker.New[uint64](circuitbreaker.DefaultConfig("mempool-block-number")),
		blockCB:  circuitbreaker.New[[]common.Hash](circuitbreaker.DefaultConfig("mempool-block-hashes")),
	}, nil
}

// BlockNumber returns the current head height.
func (c *ChainReader) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.numberCB.Execute(func() (uint64, error) {
		return c.eth.BlockNumber(ctx)
	})
	if err != nil {
		return 0, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("block number"))
	}
	return n, nil
}

// BlockTxHashes returns the transaction hashes of one block. The raw call
// with full-transactions=false keeps the payload to hashes only.
func (c *ChainReader) BlockTxHashes(ctx context.Context, number uint64) ([]common.Hash, error) {
	hashes, err := c.blockCB.Execute(func() ([]common.Hash, error) {
		var body struct {
			Transactions []common.Hash `json:"transactions"`
		}
		if err := c.rpc.CallContext(ctx, &body, "eth_getBlockByNumber",
			hexutil.EncodeUint64(number), false); err != nil {
			return nil, err
		}
		return body.Transactions, nil
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithContext(hexutil.EncodeUint64(number)))
	}
	return hashes, nil
}

// Close releases the connection.
func (c *ChainReader) Close() error {
	c.rpc.Close()
	return nil
}
