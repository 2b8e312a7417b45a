package main

import (
	"github.com/chris/nudge/internal/service"
	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the macOS launchd agent that runs the bot",
}

func init() {
	for _, sc := range []struct {
		use, short string
		run        func() error
	}{
		{"install", "Install the binary and load the launchd agent", service.Install},
		{"uninstall", "Unload the agent and remove the binary", service.Uninstall},
		{"start", "Start the agent", service.Start},
		{"stop", "Stop the agent", service.Stop},
		{"restart", "Restart the agent", service.Restart},
		{"status", "Show launchd status", service.Status},
		{"logs", "Follow the agent's logs", service.Logs},
	} {
		run := sc.run
		serviceCmd.AddCommand(&cobra.Command{
			Use:   sc.use,
			Short: sc.short,
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return run() },
		})
	}
}
