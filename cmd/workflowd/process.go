package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/cuemby/workflowd/pkg/api"
	"github.com/cuemby/workflowd/pkg/client"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:     "process",
	Aliases: []string{"proc"},
	Short:   "Send process commands to the manager",
}

var processPSCmd = &cobra.Command{
	Use:   "ps",
	Short: "List the manager's process table",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := newClient(cmd).ProcessList(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No processes")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PID\tSTATUS\tCONTEXT\tROUTE\tGROUP\tSINGLETON\tUPDATED")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
				r.ProcessID, r.Status, r.ContextName, r.RouteName, r.RouteGroupName, r.Singleton,
				r.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

// replyCommand builds a subcommand sending one process command
func replyCommand(use, short string, send func(cmd *cobra.Command, c *client.Client, pid int64) (api.ReplyResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " PID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid process id %q", args[0])
			}
			reply, err := send(cmd, newClient(cmd), pid)
			if err != nil {
				return err
			}
			return printReply(reply)
		},
	}
}

func printReply(reply api.ReplyResponse) error {
	fmt.Printf("%d %s\n", reply.Status, reply.Text)
	if reply.Status >= 400 {
		return fmt.Errorf("manager refused the command")
	}
	return nil
}

var processRunningCmd = replyCommand("running", "Answer a liveness query (--answer YES|NO)",
	func(cmd *cobra.Command, c *client.Client, pid int64) (api.ReplyResponse, error) {
		answer, _ := cmd.Flags().GetString("answer")
		return c.ReportRunning(cmd.Context(), pid, answer == "YES")
	})

func init() {
	processCmd.AddCommand(processPSCmd)
	processCmd.AddCommand(replyCommand("queue", "Queue a process for execution",
		func(cmd *cobra.Command, c *client.Client, pid int64) (api.ReplyResponse, error) {
			return c.Queue(cmd.Context(), pid)
		}))
	processCmd.AddCommand(replyCommand("completed", "Report a process as completed",
		func(cmd *cobra.Command, c *client.Client, pid int64) (api.ReplyResponse, error) {
			return c.ReportCompleted(cmd.Context(), pid)
		}))
	processCmd.AddCommand(replyCommand("failed", "Report a process as failed",
		func(cmd *cobra.Command, c *client.Client, pid int64) (api.ReplyResponse, error) {
			return c.ReportFailed(cmd.Context(), pid)
		}))
	processCmd.AddCommand(replyCommand("parked", "Report a process as parked",
		func(cmd *cobra.Command, c *client.Client, pid int64) (api.ReplyResponse, error) {
			return c.ReportParked(cmd.Context(), pid)
		}))

	processRunningCmd.Flags().String("answer", "YES", "Liveness answer, YES or NO")
	processCmd.AddCommand(processRunningCmd)
}
