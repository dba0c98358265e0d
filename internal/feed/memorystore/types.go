package memorystore

import (
	"encoding/json"
	"math"
	"time"
)

// TransactionRecord is one validated row of the transaction feed.
type TransactionRecord struct {
	ID     string  `json:"id"`     // transaction_id, never empty
	Type   string  `json:"type"`   // e.g. "PAYMENT", "CASH_OUT"
	Amount float64 `json:"amount"` // NaN when the raw amount did not parse
	Step   string  `json:"step"`   // simulation step as given by the feed

	// BadAmount marks a record whose amount field was not numeric.
	BadAmount bool `json:"bad_amount"`
}

// MarshalJSON encodes a NaN amount as null since JSON has no NaN literal.
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID        string   `json:"id"`
		Type      string   `json:"type"`
		Amount    *float64 `json:"amount"`
		Step      string   `json:"step"`
		BadAmount bool     `json:"bad_amount"`
	}
	w := wire{ID: r.ID, Type: r.Type, Step: r.Step, BadAmount: r.BadAmount}
	if !math.IsNaN(r.Amount) && !math.IsInf(r.Amount, 0) {
		amount := r.Amount
		w.Amount = &amount
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON; a null amount decodes to NaN.
func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	var w struct {
		ID        string   `json:"id"`
		Type      string   `json:"type"`
		Amount    *float64 `json:"amount"`
		Step      string   `json:"step"`
		BadAmount bool     `json:"bad_amount"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = TransactionRecord{ID: w.ID, Type: w.Type, Step: w.Step, BadAmount: w.BadAmount, Amount: math.NaN()}
	if w.Amount != nil {
		r.Amount = *w.Amount
	}
	return nil
}

// Snapshot is the complete set of records from one successful fetch.
// Version 0 is the empty snapshot held before the first replace.
type Snapshot struct {
	Version   uint64              `json:"version"`
	FetchedAt time.Time           `json:"fetched_at"`
	Records   []TransactionRecord `json:"records"`
}

// Empty reports whether the snapshot holds no records.
func (s Snapshot) Empty() bool {
	return len(s.Records) == 0
}

func (s Snapshot) clone() Snapshot {
	cp := s
	if s.Records != nil {
		cp.Records = make([]TransactionRecord, len(s.Records))
		copy(cp.Records, s.Records)
	}
	return cp
}
