package commands

import (
	"bytes"
	"math"
	"testing"
	"time"

	"compliancedash/internal/dashboard"
	"compliancedash/internal/feed/memorystore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["watch"])

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("config"))

	watch, _, err := root.Find([]string{"watch"})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", watch.Flags().Lookup("url").DefValue)
}

// go test -v --run TestPrintSnapshot
func TestPrintSnapshot(t *testing.T) {
	msg := dashboard.StreamMessage{
		Topic: dashboard.TopicTransactions,
		Type:  dashboard.TypeSnapshot,
		Data: memorystore.Snapshot{
			Version:   3,
			FetchedAt: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
			Records: []memorystore.TransactionRecord{
				{ID: "T1", Type: "PAYMENT", Amount: 100.5, Step: "1"},
				{ID: "T2", Type: "CASH_OUT", Amount: math.NaN(), Step: "3", BadAmount: true},
			},
		},
	}

	var buf bytes.Buffer
	printSnapshot(&buf, msg, true)
	out := buf.String()

	assert.Contains(t, out, "version=3 fetched_at=2026-10-18T09:30:00Z records=2 bad_amount=1")
	assert.Contains(t, out, "100.50")
	assert.Contains(t, out, "NaN")

	buf.Reset()
	printSnapshot(&buf, dashboard.StreamMessage{}, false)
	assert.Equal(t, "version=0 no transactions available\n", buf.String())
}
