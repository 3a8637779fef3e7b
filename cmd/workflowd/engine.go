package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Control the workflow engine",
}

var engineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last published engine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient(cmd).EngineStatus(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Mode:       %s\n", status.OperatingMode)
		fmt.Printf("Processes:  %d (running %d, queued %d)\n",
			status.ProcessTableSize, status.RunningProcesses, status.QueuedProcesses)
		if len(status.LockedRouteGroups) == 0 {
			fmt.Println("Locked route groups: none")
			return nil
		}
		fmt.Println("Locked route groups:")
		for _, g := range status.LockedRouteGroups {
			fmt.Printf("  %d %s\n", g.ID, g.Name)
		}
		return nil
	},
}

var engineDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Enter maintenance mode; no process is queued or started",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := newClient(cmd).Disable(cmd.Context())
		if err != nil {
			return err
		}
		return printReply(reply)
	},
}

var engineEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Leave maintenance mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := newClient(cmd).Enable(cmd.Context())
		if err != nil {
			return err
		}
		return printReply(reply)
	},
}

var engineCheckQueueCmd = &cobra.Command{
	Use:   "checkqueue",
	Short: "Run a start cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := newClient(cmd).CheckQueue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d %s\n", reply.Status, reply.Text)
		return nil
	},
}

func init() {
	engineCmd.AddCommand(engineStatusCmd)
	engineCmd.AddCommand(engineDisableCmd)
	engineCmd.AddCommand(engineEnableCmd)
	engineCmd.AddCommand(engineCheckQueueCmd)
}
