// Package normalize maps parsed feed rows onto validated transaction records.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"compliancedash/internal/feed/memorystore"
	"compliancedash/pkg/csvfeed"

	"github.com/shopspring/decimal"
)

// Recognized feed columns. Any other column is ignored.
const (
	ColTransactionID = "transaction_id"
	ColType          = "type"
	ColAmount        = "amount"
	ColStep          = "step"
)

// Result is the outcome of normalizing one fetched document.
type Result struct {
	Records []memorystore.TransactionRecord

	// Dropped counts rows discarded for a missing or empty transaction_id.
	Dropped int

	// BadNumeric lists, in row order, the ids of retained records whose
	// amount could not be parsed.
	BadNumeric []string
}

// Empty reports whether no usable records remained.
func (r Result) Empty() bool {
	return len(r.Records) == 0
}

// Normalize converts rows into transaction records, preserving row order.
// It never fails: rows without an id are dropped and unparsable amounts are
// kept as NaN with BadAmount set.
func Normalize(rows []csvfeed.Row) Result {
	res := Result{Records: make([]memorystore.TransactionRecord, 0, len(rows))}

	for _, row := range rows {
		id := strings.TrimSpace(row[ColTransactionID])
		if id == "" {
			res.Dropped++
			continue
		}

		rec := memorystore.TransactionRecord{
			ID:   id,
			Type: strings.TrimSpace(row[ColType]),
			Step: strings.TrimSpace(row[ColStep]),
		}

		amount, err := ParseAmount(row[ColAmount])
		if err != nil {
			rec.Amount = math.NaN()
			rec.BadAmount = true
			res.BadNumeric = append(res.BadNumeric, id)
		} else {
			rec.Amount = amount
		}

		res.Records = append(res.Records, rec)
	}
	return res
}

// ParseAmount parses a plain decimal such as "100.50", "-4" or "1.5e3".
// Grouping separators, currency symbols and NaN/Inf literals are rejected.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("parsing amount: empty value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", raw, err)
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("parsing amount %q: out of float64 range", raw)
	}
	return f, nil
}
