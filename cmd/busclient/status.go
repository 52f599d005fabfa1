package main

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the hub's HTTP status endpoints",
	Long:  `status prints the hub's health report and its window registry.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := resty.New().
			SetBaseURL(statusURL(cfg.Transport.Host)).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json")

		var health struct {
			Status      string      `json:"status"`
			HubID       string      `json:"hub_id"`
			Connections int         `json:"connections"`
			Sessions    int         `json:"sessions"`
			Windows     types.Stats `json:"windows"`
		}
		resp, err := client.R().SetContext(cmd.Context()).SetResult(&health).Get("/health")
		if err != nil {
			return fmt.Errorf("health request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("health request failed: %s", resp.Status())
		}

		var listed struct {
			Windows []types.Window `json:"windows"`
		}
		req := client.R().SetContext(cmd.Context()).SetResult(&listed)
		if sessionID != "" {
			req.SetQueryParam("session_id", sessionID)
		}
		resp, err = req.Get("/windows")
		if err != nil {
			return fmt.Errorf("windows request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("windows request failed: %s", resp.Status())
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "hub %s: %s\n", health.HubID, health.Status)
		fmt.Fprintf(out, "connections: %d  sessions: %d  windows: %d (visible %d, minimized %d)\n",
			health.Connections, health.Sessions,
			health.Windows.TotalWindows, health.Windows.VisibleWindows, health.Windows.MinimizedWindows)

		data, err := sonic.MarshalIndent(listed.Windows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	},
}

// statusURL maps the socket host to the hub's HTTP base URL.
func statusURL(host string) string {
	switch {
	case strings.HasPrefix(host, "wss://"):
		return "https://" + strings.TrimPrefix(host, "wss://")
	case strings.HasPrefix(host, "ws://"):
		return "http://" + strings.TrimPrefix(host, "ws://")
	case strings.Contains(host, "://"):
		return host
	}
	return "http://" + host
}
