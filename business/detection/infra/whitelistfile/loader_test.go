package whitelistfile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/dexarb/business/detection/domain"
	poolsdomain "github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/logger"
)

const minimalDoc = `{
  "config": {"whitelist_enforcement": "strict"},
  "whitelist": {"pools": [
    {"address": "0x0000000000000000000000000000000000000001", "pair": "WETH/USDC", "dex": "QuickSwapV2", "status": "active"}
  ]},
  "blacklist": {}
}`

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func writeDoc(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "whitelist.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write whitelist: %v", err)
	}
	return path
}

func TestLoader_InitialLoad(t *testing.T) {
	path := writeDoc(t, t.TempDir(), minimalDoc)

	l, err := New(path, 0, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wl := l.Current()
	if !wl.Strict() {
		t.Error("loaded whitelist must be strict")
	}
	if wl.Size() != 1 {
		t.Errorf("Size = %d, want 1", wl.Size())
	}
}

func TestLoader_MissingFileFailsStartup(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent.json"), 0, testLogger()); err == nil {
		t.Error("missing whitelist file must fail startup")
	}
}

func TestLoader_InvalidJSONFailsStartup(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "{not json")
	if _, err := New(path, 0, testLogger()); err == nil {
		t.Error("invalid whitelist JSON must fail startup")
	}
}

func TestLoader_ReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, minimalDoc)

	l, err := New(path, 0, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	writeDoc(t, dir, `{
	  "config": {"whitelist_enforcement": "advisory"},
	  "whitelist": {"pools": []},
	  "blacklist": {"pools": ["0x00000000000000000000000000000000000000bb"]}
	}`)
	if err := l.load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	wl := l.Current()
	if wl.Strict() {
		t.Error("reload must swap in the advisory document")
	}
	v := poolsdomain.PoolView{Address: common.HexToAddress("0xbb"), PairSymbol: "WETH/USDC"}
	if wl.Admit(v) == nil {
		t.Error("reloaded blacklist must apply")
	}
}

func TestLoader_FailedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, minimalDoc)

	l, err := New(path, 0, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := l.Current()

	writeDoc(t, dir, "{broken")
	if err := l.load(); err == nil {
		t.Fatal("load of broken document must error")
	}

	if l.Current() != before {
		t.Error("failed reload must keep the previous whitelist")
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(domain.PermissiveWhitelist())
	if s.Current().Strict() {
		t.Error("static permissive whitelist must be advisory")
	}
}
