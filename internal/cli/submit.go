package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/me/govm/internal/script"
	"github.com/me/govm/pkg/model"
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		retries int
		backoff time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <script>",
		Short: "Submit an instruction script to a running server",
		Long: `Submit posts each batch of the script as one request, in order. A
batch refused under backpressure is retried with exponential backoff.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			accepted := 0
			for i, b := range s.Ticks {
				if len(b.Messages) == 0 {
					continue
				}
				wait := backoff
				for attempt := 0; ; attempt++ {
					resp, err := client.Post(cmd.Context(), "/api/v1/instructions", model.SubmitRequest{Messages: b.Messages})
					var apiErr *model.APIError
					if errors.As(err, &apiErr) && apiErr.Code == model.ErrBackpressure && attempt < retries {
						logger.Info("backpressure, retrying", "batch", i, "attempt", attempt+1, "wait", wait)
						time.Sleep(wait)
						wait *= 2
						continue
					}
					if err != nil {
						return fmt.Errorf("submit batch %d: %w", i, err)
					}
					var sub model.SubmitResponse
					if err := decodeData(resp, &sub); err != nil {
						return err
					}
					accepted += sub.Accepted
					fmt.Fprintf(out, "batch %d: accepted %d\n", i, sub.Accepted)
					break
				}
			}
			fmt.Fprintf(out, "Submitted %d messages\n", accepted)
			return nil
		},
	}
	cmd.Flags().IntVar(&retries, "retries", 5, "Retries per batch while the server applies backpressure")
	cmd.Flags().DurationVar(&backoff, "backoff", 100*time.Millisecond, "Initial wait between retries")
	return cmd
}
