// Package whitelistfile loads the pool whitelist document from disk and
// reloads it on an interval so admission changes land without a restart.
package whitelistfile

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/dexarb/business/detection/app"
	"github.com/fd1az/dexarb/business/detection/domain"
	"github.com/fd1az/dexarb/internal/apperror"
	"github.com/fd1az/dexarb/internal/logger"
)

const meterName = "github.com/fd1az/dexarb/business/detection/infra/whitelistfile"

var (
	_ app.WhitelistProvider = (*Loader)(nil)
	_ app.WhitelistProvider = (*Static)(nil)
)

// Static serves a fixed whitelist; used when no file is configured.
type Static struct {
	wl *domain.Whitelist
}

// NewStatic wraps a compiled whitelist.
func NewStatic(wl *domain.Whitelist) *Static {
	return &Static{wl: wl}
}

// Current returns the fixed whitelist.
func (s *Static) Current() *domain.Whitelist { return s.wl }

// Loader serves the whitelist compiled from a JSON file and re-reads it on
// an interval. A failed reload keeps the last good filter.
type Loader struct {
	path     string
	interval time.Duration
	logger   logger.LoggerInterface

	current atomic.Pointer[domain.Whitelist]

	reloads      metric.Int64Counter
	reloadErrors metric.Int64Counter
}

// New loads the document once; a missing or invalid file fails startup
// rather than silently trading unfiltered.
func New(path string, interval time.Duration, log logger.LoggerInterface) (*Loader, error) {
	l := &Loader{
		path:     path,
		interval: interval,
		logger:   log,
	}

	meter := otel.Meter(meterName)
	var err error
	l.reloads, err = meter.Int64Counter(
		"whitelist_reloads_total",
		metric.WithDescription("Whitelist file reload attempts"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, err
	}
	l.reloadErrors, err = meter.Int64Counter(
		"whitelist_reload_errors_total",
		metric.WithDescription("Whitelist reloads that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the latest successfully compiled whitelist.
func (l *Loader) Current() *domain.Whitelist {
	return l.current.Load()
}

// Run reloads the file on the configured interval until ctx is cancelled.
// An interval of 0 disables reloading.
func (l *Loader) Run(ctx context.Context) {
	if l.interval <= 0 {
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.reloads.Add(ctx, 1)
			if err := l.load(); err != nil {
				l.reloadErrors.Add(ctx, 1)
				l.logger.Warn(ctx, "whitelist reload failed, keeping previous",
					"path", l.path, "error", err)
				continue
			}
			l.logger.Info(ctx, "whitelist reloaded",
				"path", l.path, "pools", l.Current().Size())
		}
	}
}

func (l *Loader) load() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("read whitelist "+l.path))
	}

	var doc domain.WhitelistDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("parse whitelist "+l.path))
	}

	l.current.Store(domain.CompileWhitelist(&doc))
	return nil
}
