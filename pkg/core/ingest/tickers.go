package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// TickerSource loads the full ticker -> CIK table.
type TickerSource interface {
	LoadTickerTable(ctx context.Context) (map[string]string, error)
}

// FileTickerSource reads a local copy of company_tickers.json.
type FileTickerSource struct {
	Path string
}

func (s FileTickerSource) LoadTickerTable(ctx context.Context) (map[string]string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticker table %s: %w", s.Path, err)
	}

	var raw map[string]tickerEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ticker table %s: %w", s.Path, err)
	}
	return tickerEntriesToTable(raw), nil
}

// StaticTickerSource serves a fixed in-memory table.
type StaticTickerSource map[string]string

func (s StaticTickerSource) LoadTickerTable(ctx context.Context) (map[string]string, error) {
	table := make(map[string]string, len(s))
	for k, v := range s {
		table[k] = v
	}
	return table, nil
}
