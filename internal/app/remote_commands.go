package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"failguard/internal/api/dto"
	"failguard/internal/domain"
	"failguard/internal/support"
)

const envAPIToken = "FAILGUARD_API_TOKEN"

var (
	apiAddress  string
	apiToken    string
	blockFor    time.Duration
	blockReason string
	listTracked bool
)

func client() *apiClient {
	address := apiAddress
	if address == "" {
		address = cfg.API.Listen
	}
	token := apiToken
	if token == "" {
		token = support.GetEnv(envAPIToken, "")
	}
	return newAPIClient(address, token)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), apiClientTimeout)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain an admin API token",
	Long:  "Reads the admin password from FAILGUARD_API_PASSWORD and prints a bearer token for " + envAPIToken + ".",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("FAILGUARD_API_PASSWORD")
		if password == "" {
			return fmt.Errorf("FAILGUARD_API_PASSWORD is not set")
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		token, err := client().Login(ctx, password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token.Token)
		return nil
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <address>",
	Short: "Ban an address through the running agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		decision, err := client().Block(ctx, dto.BlockRequest{
			Address:         args[0],
			DurationSeconds: int64(blockFor / time.Second),
			Reason:          blockReason,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", decision.Address, decision.Reason)
		return nil
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <address>",
	Short: "Lift a ban through the running agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := client().Unblock(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: unbanned\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active bans, or tracked addresses with --tracked",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		if listTracked {
			tracked, err := client().ListTracked(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(out, tracked)
			}
			fmt.Fprintln(out, trackedTable(tracked))
			return nil
		}

		bans, err := client().ListBans(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, bans)
		}
		fmt.Fprintln(out, activeBanTable(bans))
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, blockCmd, unblockCmd, listCmd} {
		cmd.Flags().StringVar(&apiAddress, "api", "", "Admin API address (defaults to api.listen)")
		cmd.Flags().StringVar(&apiToken, "token", "", "Bearer token (defaults to "+envAPIToken+")")
	}
	blockCmd.Flags().DurationVar(&blockFor, "duration", 0, "Ban length, 0 for indefinite")
	blockCmd.Flags().StringVar(&blockReason, "reason", "", "Note stored with the ban")
	listCmd.Flags().BoolVar(&listTracked, "tracked", false, "List addresses accumulating failures instead of bans")
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

func activeBanTable(bans []dto.BanInfo) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Address", "Rule", "Start", "Remaining", "Failures", "Notes")
	for _, b := range bans {
		remaining := "indefinite"
		if !b.Indefinite {
			remaining = (time.Duration(b.RemainingSeconds) * time.Second).String()
		}
		t.Row(b.Address, b.RuleName, formatTime(&b.StartTime), remaining, strconv.Itoa(b.FailureCount), b.Notes)
	}
	return t.String()
}

func trackedTable(tracked []domain.FailureRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Address", "Rule", "Failures", "First seen", "Last seen")
	for _, r := range tracked {
		t.Row(r.Address, r.RuleName, strconv.Itoa(r.Count), formatTime(&r.FirstSeen), formatTime(&r.LastSeen))
	}
	return t.String()
}
