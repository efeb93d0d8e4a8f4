package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	adminAddr  string
	adminToken string
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the IP blacklist of a running server",
}

var blacklistClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every blacklisted IP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return adminPost(cmd, "/admin/blacklist/clear")
	},
}

var rateLimitsClearCmd = &cobra.Command{
	Use:   "reset-limits",
	Short: "Reset every rate-limit window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return adminPost(cmd, "/admin/rate-limits/clear")
	},
}

func init() {
	blacklistCmd.PersistentFlags().StringVar(&adminAddr, "addr", "http://127.0.0.1:8080", "Base URL of the running server")
	blacklistCmd.PersistentFlags().StringVar(&adminToken, "admin-token", os.Getenv("CHATRELAY_ADMIN_TOKEN"), "Admin token (defaults to CHATRELAY_ADMIN_TOKEN)")

	blacklistCmd.AddCommand(blacklistClearCmd)
	blacklistCmd.AddCommand(rateLimitsClearCmd)
}

func adminPost(cmd *cobra.Command, path string) error {
	if adminToken == "" {
		return fmt.Errorf("--admin-token is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	url := strings.TrimRight(adminAddr, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Admin-Token", adminToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var payload map[string]any
	_ = json.Unmarshal(body, &payload)
	if resp.StatusCode != http.StatusOK {
		if msg, ok := payload["error"].(string); ok {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if msg, ok := payload["message"].(string); ok {
		fmt.Fprintln(cmd.OutOrStdout(), msg)
	}
	if removed, ok := payload["removed"].(float64); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "removed: %d\n", int(removed))
	}
	return nil
}
