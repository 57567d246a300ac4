package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/statecore/internal/store"
)

func relationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relation",
		Short: "Manage relationships between entities",
	}
	cmd.AddCommand(relationLinkCmd())
	cmd.AddCommand(relationUnlinkCmd())
	cmd.AddCommand(relationListCmd())
	return cmd
}

func relationLinkCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "link <from-id> <to-id>",
		Short: "Link two entities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			err = a.relations.Link(cmd.Context(), args[0], args[1], kind)
			if store.IsDuplicateKey(err) {
				fmt.Printf("%s already linked to %s\n", args[0], args[1])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("linked %s -> %s (%s)\n", args[0], args[1], kind)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "references", "relation kind")
	return cmd
}

func relationUnlinkCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "unlink <from-id> <to-id>",
		Short: "Remove a link between two entities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.relations.Unlink(cmd.Context(), args[0], args[1], kind); err != nil {
				return err
			}
			fmt.Printf("unlinked %s -> %s (%s)\n", args[0], args[1], kind)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "references", "relation kind")
	return cmd
}

func relationListCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list <from-id>",
		Short: "List outgoing relations from an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			rels, err := a.relations.Neighbors(cmd.Context(), args[0], kind)
			if err != nil {
				return err
			}
			if len(rels) == 0 {
				fmt.Println("no relations")
				return nil
			}
			for _, r := range rels {
				fmt.Printf("%s -> %s  %s  %s\n", r.FromID, r.ToID, r.Kind,
					r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "filter by relation kind")
	return cmd
}
