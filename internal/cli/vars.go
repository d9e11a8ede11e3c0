package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/spf13/cobra"
)

func newVarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "List the plan's script globals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			resp, err := client.Get("/api/v1/vars/")
			if err != nil {
				return fmt.Errorf("list vars: %w", err)
			}
			var vars map[string]any
			if err := json.Unmarshal(resp.Data, &vars); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			if len(vars) == 0 {
				fmt.Fprintln(out, "No vars defined.")
				return nil
			}
			names := make([]string, 0, len(vars))
			for name := range vars {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				v, _ := json.Marshal(vars[name])
				fmt.Fprintf(out, "%s = %s\n", name, v)
			}
			return nil
		},
	}
	cmd.AddCommand(newVarsSetCmd())
	return cmd
}

func newVarsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <json-value>",
		Short: "Set a script global, e.g. `vars set ready true`",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("value must be JSON, got %q", args[1])
			}
			if _, err := client.Put("/api/v1/vars/"+url.PathEscape(args[0]), json.RawMessage(args[1])); err != nil {
				return fmt.Errorf("set %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}
