// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/arobito/arobito/internal/control"
)

// ProcessStatus holds the status information for the panel process.
type ProcessStatus struct {
	Component       string `json:"component"`
	Running         bool   `json:"running"`
	Health          string `json:"health,omitempty"`
	PID             int    `json:"pid,omitempty"`
	UptimeSeconds   int64  `json:"uptime_seconds,omitempty"`
	ActiveSessions  int    `json:"active_sessions"`
	ShutdownPending bool   `json:"shutdown_pending"`
	Error           string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	socketPath string
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running control panel",
		Long:  `Show the health, uptime and session count of a running panel via its control socket.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().StringVar(&cfg.socketPath, "socket", "", "control socket path (default: runtime dir)")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := queryProcessStatus(cmd.Context(), controlComponent, cfg.socketPath)

	if cfg.jsonOutput {
		output, err := formatStatusJSON(status)
		if err != nil {
			return err
		}
		cmd.Println(output)
		return nil
	}

	cmd.Print(formatStatusTable(status))
	return nil
}

// resolveSocket returns socketPath or the default path for component.
func resolveSocket(component, socketPath string) (string, error) {
	if socketPath != "" {
		return socketPath, nil
	}
	return control.SocketPath(component)
}

// queryProcessStatus queries the control socket and returns the status.
func queryProcessStatus(ctx context.Context, component, socketPath string) ProcessStatus {
	status := ProcessStatus{Component: component}
	if ctx == nil {
		ctx = context.Background()
	}

	socketPath, err := resolveSocket(component, socketPath)
	if err != nil {
		status.Error = fmt.Sprintf("failed to get socket path: %v", err)
		return status
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		status.Error = "socket not found"
		return status
	}

	client := control.NewClient(socketPath)

	health, err := client.Health(ctx)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Running = true
	status.Health = health.Status

	controlStatus, err := client.Status(ctx)
	if err != nil {
		// Health succeeded, so the process is still considered running.
		return status
	}
	status.Running = controlStatus.Running
	status.PID = controlStatus.PID
	status.UptimeSeconds = controlStatus.UptimeSeconds
	status.ActiveSessions = controlStatus.ActiveSessions
	status.ShutdownPending = controlStatus.ShutdownPending
	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ProcessStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROCESS\tSTATUS\tHEALTH\tPID\tUPTIME\tSESSIONS")
	_, _ = fmt.Fprintln(w, "-------\t------\t------\t---\t------\t--------")

	if status.Running {
		state := "running"
		if status.ShutdownPending {
			state = "stopping"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\n",
			status.Component, state, status.Health, status.PID,
			formatUptime(status.UptimeSeconds), status.ActiveSessions)
	} else {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t-\t-\t%s\n", status.Component, reason)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_ENCODE_FAILED").Wrap(err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}

// NewStopCmd creates the stop subcommand.
func NewStopCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Schedule a shutdown of the running control panel",
		Long: `Ask the running panel to shut down after its configured delay, the same
way an administrator does from the web panel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveSocket(controlComponent, socketPath)
			if err != nil {
				return err
			}
			resp, err := control.NewClient(path).Shutdown(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&socketPath, "socket", "", "control socket path (default: runtime dir)")

	return cmd
}
