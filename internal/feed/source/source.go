// Package source retrieves the transaction CSV and parses it into rows.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"compliancedash/pkg/csvfeed"

	"go.uber.org/zap"
)

// Fetch failures. Each error returned by CsvSource.Fetch wraps exactly one.
var (
	ErrUnreachable  = errors.New("feed unreachable")
	ErrParseFailure = errors.New("feed is not valid csv")
	ErrEmpty        = errors.New("feed has no data rows")
)

// Getter retrieves the raw document at a location.
type Getter interface {
	Get(ctx context.Context, location string) ([]byte, error)
}

// ParseFunc turns a header-first CSV document into rows.
type ParseFunc func(r io.Reader) ([]csvfeed.Row, error)

// CsvSource fetches the feed from a fixed location.
type CsvSource struct {
	Location string
	Client   Getter
	Parse    ParseFunc // defaults to csvfeed.Parse
	Logger   *zap.Logger
}

func New(location string, client Getter, logger *zap.Logger) *CsvSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CsvSource{
		Location: location,
		Client:   client,
		Parse:    csvfeed.Parse,
		Logger:   logger,
	}
}

// Fetch downloads and parses the document. Errors wrap ErrUnreachable,
// ErrParseFailure or ErrEmpty.
func (s *CsvSource) Fetch(ctx context.Context) ([]csvfeed.Row, error) {
	body, err := s.Client.Get(ctx, s.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, s.Location, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", ErrEmpty, s.Location)
	}

	parse := s.Parse
	if parse == nil {
		parse = csvfeed.Parse
	}
	rows, err := parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParseFailure, s.Location, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s: header only", ErrEmpty, s.Location)
	}

	s.Logger.Debug("fetched feed",
		zap.String("location", s.Location),
		zap.Int("bytes", len(body)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}
