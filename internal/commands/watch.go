package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compliancedash/internal/dashboard"
	"compliancedash/pkg/dashboardws"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCommand() *cobra.Command {
	var (
		url        string
		showRows   bool
		retryDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print snapshots from a running dashboard's live stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			client := dashboardws.NewWSClient(url, zap.NewNop())
			client.SetRetryDelay(retryDelay)
			client.SetMessageHandler(func(data []byte) {
				var msg dashboard.StreamMessage
				if err := json.Unmarshal(data, &msg); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "bad message: %v\n", err)
					return
				}
				printSnapshot(out, msg, showRows)
			})

			if err := client.Connect(ctx); err != nil {
				return err
			}
			if err := client.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws", "dashboard stream URL")
	cmd.Flags().BoolVar(&showRows, "rows", false, "print every transaction row")
	cmd.Flags().DurationVar(&retryDelay, "retry", 3*time.Second, "delay between reconnect attempts")
	return cmd
}

// printSnapshot writes a one-line summary and, optionally, the rows.
func printSnapshot(w io.Writer, msg dashboard.StreamMessage, rows bool) {
	snap := msg.Data
	bad := 0
	for _, r := range snap.Records {
		if r.BadAmount {
			bad++
		}
	}

	if snap.Version == 0 {
		fmt.Fprintln(w, "version=0 no transactions available")
		return
	}
	fmt.Fprintf(w, "version=%d fetched_at=%s records=%d bad_amount=%d\n",
		snap.Version, snap.FetchedAt.Format(time.RFC3339), len(snap.Records), bad)

	if !rows {
		return
	}
	for _, r := range snap.Records {
		amount := "NaN"
		if !math.IsNaN(r.Amount) {
			amount = fmt.Sprintf("%.2f", r.Amount)
		}
		fmt.Fprintf(w, "  %-12s %-10s %12s  step=%s\n", r.ID, r.Type, amount, r.Step)
	}
}
