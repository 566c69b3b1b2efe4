package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"filing_rating/pkg/models"

	"github.com/rs/zerolog"
)

// tickerTable is an immutable snapshot of the ticker -> CIK mapping.
type tickerTable struct {
	entries  map[string]string
	loadedAt time.Time
}

// Resolver maps ticker symbols onto 10-digit CIKs.
//
// Lookup order: injected cache, then the in-memory table snapshot (loaded
// lazily from the TickerSource and refreshed after the refresh interval).
// Readers never block on each other; a reload is serialized behind mu.
type Resolver struct {
	source  TickerSource
	cache   TickerCache
	refresh time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	table atomic.Pointer[tickerTable]
	mu    sync.Mutex
}

type ResolverOption func(*Resolver)

// WithTickerCache injects a cache shared across requests.
func WithTickerCache(cache TickerCache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// WithRefreshInterval sets how long a loaded table is trusted. Zero keeps
// the first table forever.
func WithRefreshInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.refresh = d }
}

func WithResolverLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

func NewResolver(source TickerSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source:  source,
		refresh: 24 * time.Hour,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizeSymbol trims and upper-cases a ticker. Class-share separators
// are written with '-' as in the SEC table ("BRK.B" -> "BRK-B").
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, ".", "-")
	if s == "" {
		return "", models.ErrInvalidSymbol
	}
	return s, nil
}

// Resolve returns the zero-padded CIK for symbol.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (string, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		if cik, ok := r.cache.Get(ctx, sym); ok {
			r.logger.Debug().Str("symbol", sym).Str("cik", cik).Msg("CIK cache hit")
			return cik, nil
		}
	}

	tbl, err := r.loadTable(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load ticker table: %w", err)
	}

	cik, ok := tbl.entries[sym]
	if !ok {
		return "", &models.NotFoundError{Symbol: sym}
	}

	if r.cache != nil {
		r.cache.Put(ctx, sym, cik)
	}
	return cik, nil
}

func (r *Resolver) fresh(t *tickerTable) bool {
	if t == nil {
		return false
	}
	return r.refresh <= 0 || r.now().Sub(t.loadedAt) < r.refresh
}

func (r *Resolver) loadTable(ctx context.Context) (*tickerTable, error) {
	if t := r.table.Load(); r.fresh(t) {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have reloaded while we waited.
	current := r.table.Load()
	if r.fresh(current) {
		return current, nil
	}

	raw, err := r.source.LoadTickerTable(ctx)
	if err != nil {
		if current != nil {
			r.logger.Warn().Err(err).Msg("Ticker table refresh failed, serving stale table")
			return current, nil
		}
		return nil, err
	}

	entries := make(map[string]string, len(raw))
	for ticker, cik := range raw {
		sym, err := NormalizeSymbol(ticker)
		if err != nil {
			continue
		}
		entries[sym] = PadCIK(cik)
	}

	t := &tickerTable{entries: entries, loadedAt: r.now()}
	r.table.Store(t)
	r.logger.Info().Int("tickers", len(entries)).Msg("Ticker table loaded")
	return t, nil
}
