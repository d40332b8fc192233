package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Run the OCR queue",
}

var queueRunCmd = &cobra.Command{
	Use:   "run [session-id...]",
	Short: "Queue sessions for OCR and process them one at a time",
	Long: `Queues the given sessions, or every draft session with both documents
when none are given, and processes them sequentially. An interrupt lets the
current session finish and leaves the remaining ones pending.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			report, err := a.service.EnqueueEligible(cmd.Context())
			if err != nil {
				return err
			}
			for id, reason := range report.Skipped {
				logger.Warn("session skipped", "session_id", id, "reason", reason)
			}
		} else {
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				if err := a.service.Enqueue(cmd.Context(), id); err != nil {
					return err
				}
			}
		}

		if len(a.queue.PendingItems()) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to process")
			return nil
		}

		out := cmd.OutOrStdout()
		seen := map[uuid.UUID]constants.QueueItemStatus{}
		unsubscribe := a.queue.Subscribe(func(st queue.State) {
			for _, it := range st.Items {
				if seen[it.SessionID] == it.Status {
					continue
				}
				seen[it.SessionID] = it.Status
				line := fmt.Sprintf("[%d/%d] %s %s %s", st.ProcessedCount, st.TotalCount, it.SessionID, it.Product, it.Status)
				if it.Error != "" {
					line += ": " + it.Error
				}
				fmt.Fprintln(out, line)
			}
		})
		defer unsubscribe()

		// The drain runs on its own context; an interrupt becomes a
		// cooperative cancel.
		go func() {
			<-cmd.Context().Done()
			a.queue.Cancel()
		}()
		if err := a.processor.ProcessQueue(context.WithoutCancel(cmd.Context())); err != nil {
			return err
		}

		counts := a.queue.Snapshot().Counts()
		return printJSON(cmd, map[string]int{
			"done":    counts[constants.QueueDone],
			"error":   counts[constants.QueueError],
			"pending": counts[constants.QueuePending],
		})
	},
}

func init() {
	queueCmd.AddCommand(queueRunCmd)
}
