package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the inference server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.container
			c.Health.RunChecks(cmd.Context())
			conn := c.Health.Connection()
			if a.asJSON {
				return writeJSON(cmd, conn)
			}
			if conn.Error != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.AI.BaseURL(), conn.Status, conn.Error)
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.AI.BaseURL(), conn.Status, conn.Model)
			}
			if !c.Health.IsSystemHealthy() {
				return fmt.Errorf("storage is unavailable")
			}
			return nil
		},
	}
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models of the inference server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := a.container.AI.Models(cmd.Context())
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				out.Reset()
				out.Write(raw)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return err
		},
	}
}

func newCharactersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "characters",
		Short: "List characters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			characters := a.container.Characters.List()
			if a.asJSON {
				return writeJSON(cmd, characters)
			}
			for _, c := range characters {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.ID, c.Name)
			}
			return nil
		},
	}
}

func newGroupsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List group chats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			groups := a.container.Groups.List()
			if a.asJSON {
				return writeJSON(cmd, groups)
			}
			for _, g := range groups {
				mode := "sequential"
				if g.AutoParallel {
					mode = "parallel"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d members\n", g.ID, g.Name, mode, len(g.MemberIDs))
			}
			return nil
		},
	}
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
