// Package pricelog persists per-pool price observations as CSV, one file
// per pair per UTC day, for offline spread analysis.
package pricelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fd1az/dexarb/business/pools/app"
	"github.com/fd1az/dexarb/business/pools/domain"
	"github.com/fd1az/dexarb/internal/apperror"
)

// Ensure Logger implements the port.
var _ app.PriceLogger = (*Logger)(nil)

var header = []string{"timestamp", "block", "venue", "price", "fee_percent"}

// Logger appends one CSV row per pool per sync. Files are opened lazily,
// named after the pair symbol and the UTC date, and rotated at midnight.
type Logger struct {
	dir string

	mu    sync.Mutex
	day   string
	files map[string]*csv.Writer
	raw   map[string]*os.File
}

// New creates the logger, creating dir if needed.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("create price log dir"))
	}
	return &Logger{
		dir:   dir,
		files: make(map[string]*csv.Writer),
		raw:   make(map[string]*os.File),
	}, nil
}

// Log writes one row per view at the given block.
func (l *Logger) Log(block uint64, views []domain.PoolView) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	if day := now.Format("2006-01-02"); day != l.day {
		l.closeAll()
		l.day = day
	}

	ts := now.Format(time.RFC3339)
	for _, v := range views {
		w, err := l.writer(v.PairSymbol)
		if err != nil {
			return err
		}
		row := []string{
			ts,
			strconv.FormatUint(block, 10),
			v.Venue.String(),
			strconv.FormatFloat(v.Price, 'f', -1, 64),
			strconv.FormatFloat(v.FeePercent, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write price row: %w", err)
		}
	}

	for _, w := range l.files {
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flush price log: %w", err)
		}
	}
	return nil
}

func (l *Logger) writer(symbol string) (*csv.Writer, error) {
	if w, ok := l.files[symbol]; ok {
		return w, nil
	}

	name := strings.ReplaceAll(symbol, "/", "-") + "-" + l.day + ".csv"
	path := filepath.Join(l.dir, name)

	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open price log %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if statErr != nil || info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write price log header: %w", err)
		}
	}

	l.files[symbol] = w
	l.raw[symbol] = f
	return w, nil
}

// closeAll flushes and closes every open file. Caller holds the lock.
func (l *Logger) closeAll() {
	for sym, w := range l.files {
		w.Flush()
		l.raw[sym].Close()
	}
	l.files = make(map[string]*csv.Writer)
	l.raw = make(map[string]*os.File)
}

// Close flushes and closes every open file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for sym, w := range l.files {
		w.Flush()
		if err := w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := l.raw[sym].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = make(map[string]*csv.Writer)
	l.raw = make(map[string]*os.File)
	return firstErr
}
