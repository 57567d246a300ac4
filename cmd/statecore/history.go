package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/statecore/internal/domain"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage session message history",
	}
	cmd.AddCommand(historyAddCmd())
	cmd.AddCommand(historyShowCmd())
	cmd.AddCommand(historyPageCmd())
	cmd.AddCommand(historyClearCmd())
	return cmd
}

func historyAddCmd() *cobra.Command {
	var role, content string
	cmd := &cobra.Command{
		Use:   "add <session-id>",
		Short: "Append a message to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			r := domain.Role(role)
			if !domain.ValidRole(r) {
				return fmt.Errorf("unknown role %q", role)
			}
			id, err := a.history.AddMessage(cmd.Context(), args[0], domain.Message{
				Role:    r,
				Content: content,
			})
			if err != nil {
				return err
			}
			fmt.Printf("message %s appended\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "user", "message role (user|assistant|tool|system)")
	cmd.Flags().StringVar(&content, "content", "", "message content")
	cmd.MarkFlagRequired("content")
	return cmd
}

func historyShowCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show recent messages in chronological order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			msgs, err := a.history.GetHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			fmt.Print(a.renderer.Messages(msgs))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to show")
	return cmd
}

func historyPageCmd() *cobra.Command {
	var cursor string
	var limit int
	cmd := &cobra.Command{
		Use:   "page <session-id>",
		Short: "Page through the full durable history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			page, err := a.history.GetHistoryPage(cmd.Context(), args[0], cursor, limit)
			if err != nil {
				return err
			}
			fmt.Print(a.renderer.Messages(page.Messages))
			if page.NextCursor != "" {
				fmt.Printf("next cursor: %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume after this timestamp")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	return cmd
}

func historyClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete all messages for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ok, err := a.history.ClearHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok {
				fmt.Printf("history cleared for %s\n", args[0])
			}
			return nil
		},
	}
}
