// Package executor signs and submits atomic arb transactions against the
// deployed ArbExecutor contract.
package executor

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/dexarb/business/execution/app"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/circuitbreaker"
	"github.com/fd1az/dexarb/internal/logger"
)

// ArbExecutorABI is the atomic arb entrypoint. The contract reverts the
// whole sequence unless the ending balance beats the starting balance by at
// least minProfit; feeBuy/feeSell carry the per-leg routing sentinels.
const ArbExecutorABI = `[{"inputs":[{"internalType":"address","name":"token0","type":"address"},{"internalType":"address","name":"token1","type":"address"},{"internalType":"address","name":"routerBuy","type":"address"},{"internalType":"address","name":"routerSell","type":"address"},{"internalType":"uint24","name":"feeBuy","type":"uint24"},{"internalType":"uint24","name":"feeSell","type":"uint24"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"minProfit","type":"uint256"}],"name":"executeArb","outputs":[{"internalType":"uint256","name":"profit","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`

const erc20BalanceABI = `[{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// Broadcast retry bounds. Kept tight; an opportunity that needs more than a
// few hundred milliseconds of retrying is already stale.
const (
	submitAttempts = 3
	submitBackoff  = 100 * time.Millisecond
)

var _ app.TxBackend = (*Backend)(nil)

// BackendConfig connects the backend to the chain and the hot wallet.
type BackendConfig struct {
	// RPCURL serves reads and receipt polls.
	RPCURL string
	// PrivateRPCURL, when set, receives the signed transactions instead;
	// reads stay on the public endpoint.
	PrivateRPCURL string
	// PrivateKey is the wallet key in hex, no 0x prefix. Empty is valid
	// for dry-run operation; submission then fails loudly.
	PrivateKey string
	ChainID    int64
}

// Backend implements TxBackend over go-ethereum clients. Reads run through
// circuit breakers; submission stays outside them, a broadcast that may or
// may not have left the node must surface as its own error, not as an open
// circuit. It gets a bounded same-transaction retry instead.
type Backend struct {
	logger logger.LoggerInterface

	eth    *ethclient.Client
	sender *ethclient.Client

	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	signer  types.Signer

	arbABI    abi.ABI
	erc20ABI  abi.ABI
	nonceCB   *circuitbreaker.CircuitBreaker[uint64]
	receiptCB *circuitbreaker.CircuitBreaker[*types.Receipt]
	callCB    *circuitbreaker.CircuitBreaker[[]byte]
	balanceCB *circuitbreaker.CircuitBreaker[*big.Int]
}

// New dials the endpoints and loads the key.
func New(ctx context.Context, cfg BackendConfig, log logger.LoggerInterface) (*Backend, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial execution backend"))
	}

	sender := eth
	if cfg.PrivateRPCURL != "" {
		sender, err = ethclient.DialContext(ctx, cfg.PrivateRPCURL)
		if err != nil {
			return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext("dial private submission endpoint"))
		}
	}

	b := &Backend{
		logger:    log,
		eth:       eth,
		sender:    sender,
		chainID:   big.NewInt(cfg.ChainID),
		nonceCB:   circuitbreaker.New[uint64](circuitbreaker.DefaultConfig("execution-nonce")),
		receiptCB: circuitbreaker.New[*types.Receipt](circuitbreaker.DefaultConfig("execution-receipt")),
		callCB:    circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("execution-call")),
		balanceCB: circuitbreaker.New[*big.Int](circuitbreaker.DefaultConfig("execution-balance")),
	}
	b.signer = types.LatestSignerForChainID(b.chainID)

	b.arbABI, err = abi.JSON(bytes.NewReader([]byte(ArbExecutorABI)))
	if err != nil {
		return nil, apperror.New(apperror.CodeInternalError,
			apperror.WithCause(err),
			apperror.WithContext("parse executor ABI"))
	}
	b.erc20ABI, err = abi.JSON(bytes.NewReader([]byte(erc20BalanceABI)))
	if err != nil {
		return nil, apperror.New(apperror.CodeInternalError,
			apperror.WithCause(err),
			apperror.WithContext("parse erc20 ABI"))
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(cfg.PrivateKey)
		if err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithCause(err),
				apperror.WithContext("parse wallet key"))
		}
		b.key = key
		b.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	return b, nil
}

// From returns the wallet address, or the zero address when keyless.
func (b *Backend) From() common.Address {
	return b.from
}

// PendingNonce returns the wallet's pending transaction count.
func (b *Backend) PendingNonce(ctx context.Context) (uint64, error) {
	n, err := b.nonceCB.Execute(func() (uint64, error) {
		return b.eth.PendingNonceAt(ctx, b.from)
	})
	if err != nil {
		return 0, apperror.New(apperror.CodeNonceSyncFailed,
			apperror.WithCause(err),
			apperror.WithContext(b.from.Hex()))
	}
	return n, nil
}

// PackExecuteArb encodes the executeArb calldata.
func (b *Backend) PackExecuteArb(token0, token1, routerBuy, routerSell common.Address,
	feeBuy, feeSell uint32, amountIn, minProfit *big.Int) ([]byte, error) {
	data, err := b.arbABI.Pack("executeArb",
		token0, token1, routerBuy, routerSell,
		big.NewInt(int64(feeBuy)), big.NewInt(int64(feeSell)),
		amountIn, minProfit)
	if err != nil {
		return nil, apperror.New(apperror.CodeInternalError,
			apperror.WithCause(err),
			apperror.WithContext("pack executeArb"))
	}
	return data, nil
}

// DryRun replays the call as an eth_call from the wallet. A revert comes
// back as CodeDryRunRevert.
func (b *Backend) DryRun(ctx context.Context, to common.Address, data []byte, gasLimit uint64) error {
	_, err := b.callCB.Execute(func() ([]byte, error) {
		return b.eth.CallContract(ctx, goethereum.CallMsg{
			From: b.from,
			To:   &to,
			Gas:  gasLimit,
			Data: data,
		}, nil)
	})
	if err != nil {
		return apperror.New(apperror.CodeDryRunRevert,
			apperror.WithCause(err),
			apperror.WithContext(to.Hex()))
	}
	return nil
}

// SignAndSubmit signs the call and broadcasts it through the submission
// endpoint.
func (b *Backend) SignAndSubmit(ctx context.Context, call app.TxCall) (common.Hash, error) {
	if b.key == nil {
		return common.Hash{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no wallet key configured"))
	}

	tx, err := types.SignNewTx(b.key, b.signer, &types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     call.Nonce,
		GasTipCap: call.TipCap,
		GasFeeCap: call.FeeCap,
		Gas:       call.GasLimit,
		To:        &call.To,
		Data:      call.Data,
	})
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("sign"))
	}

	// Rebroadcasting the identical signed transaction is idempotent (same
	// hash, same nonce), so transient RPC failures get a short retry. An
	// "already known" response means an earlier attempt did land.
	var lastErr error
	for attempt := 0; attempt < submitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return common.Hash{}, ctx.Err()
			case <-time.After(submitBackoff << (attempt - 1)):
			}
		}
		lastErr = b.sender.SendTransaction(ctx, tx)
		if lastErr == nil || strings.Contains(lastErr.Error(), "already known") {
			return tx.Hash(), nil
		}
		b.logger.Warn(ctx, "broadcast attempt failed",
			"attempt", attempt+1,
			"tx", tx.Hash().Hex(),
			"error", lastErr)
	}
	return common.Hash{}, apperror.New(apperror.CodeSubmissionFailed,
		apperror.WithCause(lastErr),
		apperror.WithContext(tx.Hash().Hex()))
}

// Receipt returns the receipt, or nil while the transaction is pending.
func (b *Backend) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := b.receiptCB.Execute(func() (*types.Receipt, error) {
		r, err := b.eth.TransactionReceipt(ctx, hash)
		if errors.Is(err, goethereum.NotFound) {
			return nil, nil
		}
		return r, err
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext(hash.Hex()))
	}
	return receipt, nil
}

// TokenBalance reads an ERC20 balance.
func (b *Backend) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := b.balanceCB.Execute(func() (*big.Int, error) {
		data, err := b.erc20ABI.Pack("balanceOf", owner)
		if err != nil {
			return nil, err
		}
		raw, err := b.eth.CallContract(ctx, goethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return nil, err
		}
		if len(raw) < 32 {
			return nil, errors.New("short balanceOf return")
		}
		return new(big.Int).SetBytes(raw[:32]), nil
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(token.Hex()))
	}
	return out, nil
}

// Close releases both connections.
func (b *Backend) Close() error {
	b.eth.Close()
	if b.sender != b.eth {
		b.sender.Close()
	}
	return nil
}
