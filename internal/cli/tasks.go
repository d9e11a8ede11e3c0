package cli

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/me/gocoro/pkg/coro"
	"github.com/spf13/cobra"
)

func newTasksCmd() *cobra.Command {
	var (
		tag   string
		state string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "tasks [task-id]",
		Short: "List live tasks, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				resp, err := client.Get("/api/v1/tasks/" + url.PathEscape(args[0]))
				if err != nil {
					return fmt.Errorf("get task: %w", err)
				}
				var info coro.TaskInfo
				if err := json.Unmarshal(resp.Data, &info); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				printTasks(cmd, []coro.TaskInfo{info})
				return nil
			}

			q := url.Values{}
			if cmd.Flags().Changed("tag") {
				q.Set("tag", tag)
			}
			if state != "" {
				q.Set("state", state)
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			path := "/api/v1/tasks/"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			var tasks []coro.TaskInfo
			if err := json.Unmarshal(resp.Data, &tasks); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No tasks found.")
				return nil
			}
			printTasks(cmd, tasks)
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(tasks), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Only tasks with this exact tag")
	cmd.Flags().StringVar(&state, "state", "", "Only tasks in this state (RUNNING, WAITING, PAUSED, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks to list")
	return cmd
}

func printTasks(cmd *cobra.Command, tasks []coro.TaskInfo) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-14s  %-10s  %-20s  %s\n", "ID", "STATE", "TAG", "ERROR")
	fmt.Fprintf(out, "%-14s  %-10s  %-20s  %s\n", "--", "-----", "---", "-----")
	for _, t := range tasks {
		fmt.Fprintf(out, "%-14s  %-10s  %-20s  %s\n", t.Handle, t.State, t.Tag, t.Err)
	}
}

func newKillCmd() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "kill [task-id...]",
		Short: "Kill tasks by id, or every task with a tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			byTag := cmd.Flags().Changed("tag")
			if byTag == (len(args) > 0) {
				return fmt.Errorf("give either task ids or --tag")
			}

			if byTag {
				resp, err := client.Delete("/api/v1/tags/" + url.PathEscape(tag))
				if err != nil {
					return fmt.Errorf("kill tag %q: %w", tag, err)
				}
				var data struct {
					Killed int `json:"killed"`
				}
				if err := json.Unmarshal(resp.Data, &data); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				fmt.Fprintf(out, "Killed %d task(s) tagged %q.\n", data.Killed, tag)
				return nil
			}

			for _, id := range args {
				if _, err := client.Put("/api/v1/tasks/"+url.PathEscape(id)+"/kill", nil); err != nil {
					return fmt.Errorf("kill %s: %w", id, err)
				}
				fmt.Fprintf(out, "Killed %s.\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Kill every task with this exact tag")
	return cmd
}

func newPauseCmd() *cobra.Command {
	return newTaskActionCmd("pause", "Pause tasks, or the tick loop with --ticks", "Paused")
}

func newResumeCmd() *cobra.Command {
	return newTaskActionCmd("resume", "Resume paused tasks, or the tick loop with --ticks", "Resumed")
}

// newTaskActionCmd builds pause and resume, which differ only in the verb.
func newTaskActionCmd(action, short, done string) *cobra.Command {
	var ticks bool

	cmd := &cobra.Command{
		Use:   action + " [task-id...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if ticks {
				if len(args) > 0 {
					return fmt.Errorf("--ticks takes no task ids")
				}
				if _, err := client.Put("/api/v1/ticks/"+action, nil); err != nil {
					return fmt.Errorf("%s ticks: %w", action, err)
				}
				fmt.Fprintf(out, "%s ticks.\n", done)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("at least one task id is required")
			}
			for _, id := range args {
				resp, err := client.Put("/api/v1/tasks/"+url.PathEscape(id)+"/"+action, nil)
				if err != nil {
					return fmt.Errorf("%s %s: %w", action, id, err)
				}
				var info coro.TaskInfo
				if err := json.Unmarshal(resp.Data, &info); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				fmt.Fprintf(out, "%s %s (%s).\n", done, info.Handle, info.State)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ticks, "ticks", false, "Act on the scheduler tick loop instead of tasks")
	return cmd
}
