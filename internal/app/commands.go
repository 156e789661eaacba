package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"failguard/internal/app/version"
	"failguard/internal/auth"
	"failguard/internal/classifier"
	"failguard/internal/database"
	"failguard/internal/domain"
	"failguard/internal/ingest/eventlog"
	"failguard/internal/jobs/runtime"
	"failguard/internal/support"
)

const cliStoreTimeout = 30 * time.Second

var (
	jsonOutput   bool
	historySince time.Duration

	eventID       int
	eventProvider string
	eventLogName  string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [line...]",
	Short: "Run log lines through the configured rules",
	Long:  "Classifies each argument, or each line of stdin when no argument is given, and prints the matching rule and address.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := classifier.New(cfg.Rules)
		out := cmd.OutOrStdout()

		if len(args) > 0 {
			for _, line := range args {
				printClassification(out, c, line)
			}
			return nil
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			printClassification(out, c, scanner.Text())
		}
		return scanner.Err()
	},
}

func printClassification(out io.Writer, c *classifier.Classifier, line string) {
	if match, ok := c.Classify(line); ok {
		fmt.Fprintf(out, "%s\t%s\n", match.Rule, match.Address)
		return
	}
	fmt.Fprintf(out, "-\t-\n")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the stored ban history",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openStore()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), cliStoreTimeout)
		defer cancel()

		stats, err := store.GetStatistics(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), stats)
		}
		renderStatistics(cmd.OutOrStdout(), stats)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List bans started within a recent window",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openStore()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), cliStoreTimeout)
		defer cancel()

		to := time.Now()
		records, err := store.ListBetween(ctx, to.Add(-historySince), to)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), records)
		}
		fmt.Fprintln(cmd.OutOrStdout(), banTable(records))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for api.password_hash",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := ""
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && err != io.EOF {
				return err
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return fmt.Errorf("empty password")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var publishEventCmd = &cobra.Command{
	Use:   "publish-event <message>",
	Short: "Publish a Windows event to the event-log channel",
	Long:  "Publishes one event the way the Windows forwarder does. Useful to test event-log rules end to end.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cliStoreTimeout)
		defer cancel()

		client, err := support.GetRedisClient(ctx, cfg.EventLog.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to get redis client: %w", err)
		}
		defer support.CloseRedisClient()

		event := eventlog.RawEvent{
			EventID:     eventID,
			TimeCreated: time.Now().UTC(),
			Provider:    eventProvider,
			LogName:     eventLogName,
			Message:     args[0],
		}
		if err := eventlog.Publish(ctx, client, cfg.EventLog.Channel, event); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published event %d to %s\n", event.EventID, cfg.EventLog.Channel)
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents with a live heartbeat on the event relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cliStoreTimeout)
		defer cancel()

		client, err := support.GetRedisClient(ctx, cfg.EventLog.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to get redis client: %w", err)
		}
		defer support.CloseRedisClient()

		agents, err := runtime.ListAgents(ctx, client)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), agents)
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Host", "Version", "Active bans", "Tracked", "Started", "Seen")
		for _, a := range agents {
			t.Row(a.Host, a.Version, strconv.Itoa(a.ActiveBans), strconv.Itoa(a.Tracked), formatTime(&a.StartedAt), formatTime(&a.SeenAt))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	},
}

func init() {
	agentsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	statsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	historyCmd.Flags().DurationVar(&historySince, "since", 24*time.Hour, "How far back to list bans")

	publishEventCmd.Flags().IntVar(&eventID, "id", eventlog.EventFailedLogon, "Event id")
	publishEventCmd.Flags().StringVar(&eventProvider, "provider", "Microsoft-Windows-Security-Auditing", "Event provider")
	publishEventCmd.Flags().StringVar(&eventLogName, "log", "Security", "Event log name")
}

func openStore() (*database.BanStore, func(), error) {
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return database.NewBanStore(db), closeDB, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderStatistics(out io.Writer, stats domain.BanStatistics) {
	summary := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Total", "Active", "Today", "This week").
		Row(
			strconv.FormatInt(stats.Total, 10),
			strconv.FormatInt(stats.Active, 10),
			strconv.FormatInt(stats.Today, 10),
			strconv.FormatInt(stats.ThisWeek, 10),
		)
	fmt.Fprintln(out, summary.String())
	fmt.Fprintln(out, countTable("Address", stats.TopAddresses))
	fmt.Fprintln(out, countTable("Rule", stats.TopRules))
}

func countTable(header string, counts []domain.CountByKey) string {
	t := table.New().Border(lipgloss.NormalBorder()).Headers(header, "Bans")
	for _, c := range counts {
		t.Row(c.Key, strconv.FormatInt(c.Count, 10))
	}
	return t.String()
}

func banTable(records []domain.BanRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "Address", "Rule", "Start", "End", "Active", "Failures", "Reported")
	for _, r := range records {
		t.Row(
			strconv.FormatUint(r.ID, 10),
			r.Address,
			r.RuleName,
			formatTime(&r.StartTime),
			formatEnd(r),
			strconv.FormatBool(r.Active),
			strconv.Itoa(r.FailureCount),
			formatTime(r.ReportedAt),
		)
	}
	return t.String()
}

func formatEnd(r domain.BanRecord) string {
	if r.EndTime == nil {
		return "indefinite"
	}
	return formatTime(r.EndTime)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
