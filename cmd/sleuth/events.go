package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/repostsleuth/sleuth/internal/events"
	"github.com/repostsleuth/sleuth/internal/storage"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent summons pipeline events",
	Long: `Display recent events recorded by summons workers.

Examples:
  sleuth events                         # Show last 20 events
  sleuth events -n 50                   # Show last 50 events
  sleuth events --summons 42            # Show events for one summons
  sleuth events --type delivery_failed  # Show only delivery failures
  sleuth events --severity warning      # Show one severity level`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		summonsID, _ := cmd.Flags().GetInt64("summons")
		eventType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")
		ctx := context.Background()

		filter := events.EventFilter{
			SummonsID: summonsID,
			Type:      events.EventType(eventType),
			Severity:  events.EventSeverity(severity),
			Limit:     limit,
		}
		if filter.Severity != "" && !filter.Severity.IsValid() {
			return fmt.Errorf("invalid severity %q", severity)
		}

		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		var list []*events.Event
		err = storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
			var err error
			list, err = uow.Events().Query(ctx, filter)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to fetch events: %w", err)
		}

		if len(list) == 0 {
			fmt.Printf("\n%s No events found matching the criteria\n\n", color.YellowString("✨"))
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Recent events (%d):\n\n", cyan("📋"), len(list))

		// Query returns newest first; print oldest first so the feed reads top to bottom
		for i := len(list) - 1; i >= 0; i-- {
			displayEvent(list[i])
		}
		fmt.Println()
		return nil
	},
}

// displayEvent prints an event as a headline and a metadata line
func displayEvent(ev *events.Event) {
	subject := "worker"
	if ev.SummonsID != 0 {
		subject = fmt.Sprintf("summons %d", ev.SummonsID)
	}

	fmt.Printf("[%s] %s %s: %s\n",
		ev.Timestamp.Local().Format("15:04:05"),
		color.New(color.FgGreen).Sprint(subject),
		color.New(color.FgMagenta).Sprint(ev.Type),
		severityColor(ev.Severity).Sprint(truncateString(ev.Message, 70)),
	)

	if meta := eventMetadata(ev); meta != "" {
		fmt.Printf("  %s\n", color.New(color.FgHiBlack).Sprint(meta))
	}
}

func severityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	}
	return color.New(color.FgWhite)
}

// eventMetadata picks the interesting fields of an event's data
func eventMetadata(ev *events.Event) string {
	var fields []string

	switch ev.Type {
	case events.EventTypeSummonsHandled:
		fields = append(fields,
			getStringField(ev.Data, "outcome", ""),
			getStringField(ev.Data, "command", ""),
			getStringField(ev.Data, "post_type", ""),
			fmt.Sprintf("matches=%d", getIntField(ev.Data, "matches", 0)),
			fmt.Sprintf("latency=%.1fs", getFloatField(ev.Data, "latency_seconds", 0)))
	case events.EventTypeSummonsDeferred:
		fields = append(fields,
			getStringField(ev.Data, "reason", ""),
			fmt.Sprintf("attempt=%d", getIntField(ev.Data, "attempts", 0)),
			getStringField(ev.Data, "retry_at", ""))
	case events.EventTypeEventCleanupCompleted:
		fields = append(fields,
			fmt.Sprintf("deleted=%d", getIntField(ev.Data, "events_deleted", 0)),
			fmt.Sprintf("remaining=%d", getIntField(ev.Data, "events_remaining", 0)))
	case events.EventTypeInstanceCleanupCompleted:
		fields = append(fields,
			fmt.Sprintf("stale=%d", getIntField(ev.Data, "stale_marked", 0)),
			fmt.Sprintf("deleted=%d", getIntField(ev.Data, "instances_deleted", 0)))
	}
	if ev.WorkerID != "" {
		fields = append(fields, "worker="+truncateString(ev.WorkerID, 8))
	}
	return truncateString(joinFields(fields), 76)
}

func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	switch val := data[key].(type) {
	case int:
		return val
	case float64:
		return int(val)
	}
	return defaultValue
}

func getFloatField(data map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := data[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

func joinFields(fields []string) string {
	nonEmpty := fields[:0:0]
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

func init() {
	eventsCmd.Flags().IntP("limit", "n", 20, "number of recent events to show")
	eventsCmd.Flags().Int64P("summons", "s", 0, "filter events by summons ID")
	eventsCmd.Flags().StringP("type", "t", "", "filter by event type (e.g. summons_handled, delivery_failed)")
	eventsCmd.Flags().String("severity", "", "filter by severity (info, warning, error, critical)")
	rootCmd.AddCommand(eventsCmd)
}
