package cli

import (
	"fmt"

	"chatmallu/client/internal/models"

	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <character> <message...>",
		Short: "Send a message to a character and stream the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			character, err := c.Characters.FindByName(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s: ", character.Name)
			reply, err := c.Chats.Send(cmd.Context(), character.ID, joinArgs(args[1:]), func(delta string) {
				_, _ = fmt.Fprint(out, delta)
			})
			_, _ = fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd, reply)
			}
			return nil
		},
	}
}

func newGroupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "group <group> <message...>",
		Short: "Send a message to a group chat and print the replies",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.container
			group, err := c.Groups.FindByName(args[0])
			if err != nil {
				return err
			}

			_, replies, err := c.Groups.Send(cmd.Context(), group.ID, joinArgs(args[1:]))
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd, replies)
			}

			names := make(map[string]string, len(group.MemberIDs))
			for _, ch := range c.Characters.List() {
				names[ch.ID] = ch.Name
			}
			for _, m := range replies {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", speaker(names, m), m.Content)
			}
			return nil
		},
	}
}

func speaker(names map[string]string, m models.GroupMessage) string {
	if n, ok := names[m.SenderID]; ok {
		return n
	}
	return m.SenderID
}
