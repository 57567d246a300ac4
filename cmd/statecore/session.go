package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
	}
	cmd.AddCommand(sessionCreateCmd())
	cmd.AddCommand(sessionGetCmd())
	cmd.AddCommand(sessionEndCmd())
	cmd.AddCommand(sessionListCmd())
	return cmd
}

func sessionCreateCmd() *cobra.Command {
	var userID, adapter string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			sess := a.sessions.Create(cmd.Context(), userID, adapter)
			fmt.Print(a.renderer.Session(sess))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user ID")
	cmd.Flags().StringVar(&adapter, "adapter", "cli", "calling surface tag")
	cmd.MarkFlagRequired("user")
	return cmd
}

func sessionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			sess, err := a.sessions.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("session not found: %s", args[0])
			}
			fmt.Print(a.renderer.Session(sess))
			return nil
		},
	}
}

func sessionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ok, err := a.sessions.End(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("session not found: %s", args[0])
			}
			fmt.Printf("session %s ended\n", args[0])
			return nil
		},
	}
}

func sessionListCmd() *cobra.Command {
	var userID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			sessions, err := a.sessions.ListByUser(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			fmt.Print(a.renderer.Sessions(sessions))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to show")
	cmd.MarkFlagRequired("user")
	return cmd
}
