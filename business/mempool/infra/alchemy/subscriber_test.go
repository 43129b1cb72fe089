package alchemy

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/mempool/app"
	"github.com/fd1az/dexarb/internal/logger"
)

func testSubscriber(t *testing.T) *Subscriber {
	t.Helper()
	s, err := NewSubscriber(
		DefaultSubscriberConfig("wss://polygon.example.test/v2/key",
			[]common.Address{common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")}),
		logger.New(io.Discard, logger.LevelError, "test", nil),
	)
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}
	return s
}

func TestHandleMessageNotification(t *testing.T) {
	s := testSubscriber(t)
	ctx := context.Background()

	s.handleMessage(ctx, []byte(`{
		"jsonrpc": "2.0",
		"method": "eth_subscription",
		"params": {
			"subscription": "0xabcd",
			"result": {
				"hash": "0x1111111111111111111111111111111111111111111111111111111111111111",
				"to": "0xE592427A0AEce92De3Edee1F18E0157C05861564",
				"input": "0x414bf389",
				"gasPrice": "0x9502f9000",
				"maxPriorityFeePerGas": "0x9502f900"
			}
		}
	}`))

	select {
	case tx := <-s.pending:
		if tx.To != common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564") {
			t.Errorf("To = %s", tx.To.Hex())
		}
		if len(tx.Input) != 4 || tx.Input[0] != 0x41 {
			t.Errorf("Input = %x, want the selector bytes", tx.Input)
		}
		if tx.GasPrice == nil || tx.GasPrice.Int64() != 40_000_000_000 {
			t.Errorf("GasPrice = %v, want 40 gwei", tx.GasPrice)
		}
		if tx.GasTipCap == nil || tx.GasTipCap.Int64() != 2_500_000_000 {
			t.Errorf("GasTipCap = %v, want 2.5 gwei", tx.GasTipCap)
		}
	default:
		t.Fatal("notification not delivered")
	}
}

func TestHandleMessageFallsBackToMaxFee(t *testing.T) {
	s := testSubscriber(t)

	// A type-2 transaction carries maxFeePerGas instead of gasPrice.
	s.handleMessage(context.Background(), []byte(`{
		"method": "eth_subscription",
		"params": {"result": {
			"hash": "0x2222222222222222222222222222222222222222222222222222222222222222",
			"to": "0xE592427A0AEce92De3Edee1F18E0157C05861564",
			"input": "0x",
			"maxFeePerGas": "0x12a05f200"
		}}
	}`))

	select {
	case tx := <-s.pending:
		if tx.GasPrice == nil || tx.GasPrice.Int64() != 5_000_000_000 {
			t.Errorf("GasPrice = %v, want maxFeePerGas fallback", tx.GasPrice)
		}
	default:
		t.Fatal("notification not delivered")
	}
}

func TestHandleMessageIgnoresNonNotifications(t *testing.T) {
	s := testSubscriber(t)
	ctx := context.Background()

	// Subscription ack, provider error, contract creation, garbage.
	for _, msg := range []string{
		`{"jsonrpc":"2.0","id":1,"result":"0xabcd"}`,
		`{"jsonrpc":"2.0","id":2,"error":{"code":-32600,"message":"bad request"}}`,
		`{"method":"eth_subscription","params":{"result":{"hash":"0x33","to":null,"input":"0x"}}}`,
		`not json at all`,
	} {
		s.handleMessage(ctx, []byte(msg))
	}

	select {
	case tx := <-s.pending:
		t.Fatalf("unexpected delivery: %+v", tx)
	default:
	}
}

func TestHandleMessageDropsWhenFull(t *testing.T) {
	s := testSubscriber(t)
	s.pending = make(chan app.PendingTx) // no buffer, no reader

	// Must not block the read loop.
	s.handleMessage(context.Background(), []byte(`{
		"method": "eth_subscription",
		"params": {"result": {
			"hash": "0x4444444444444444444444444444444444444444444444444444444444444444",
			"to": "0xE592427A0AEce92De3Edee1F18E0157C05861564",
			"input": "0x"
		}}
	}`))
}
