package main

import (
	cli "github.com/spf13/cobra"
)

func newGroupsCmd(a *app) *cli.Command {
	groupsCmd := &cli.Command{
		Use:   "groups",
		Short: "Manage large person groups",
	}

	listCmd := &cli.Command{
		Use:   "list",
		Short: "List large person groups",
		Args:  cli.NoArgs,
		RunE: func(cmd *cli.Command, args []string) error {
			groups, err := a.faces.ListGroupRecords(cmd.Context(), a.faceConfig())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), groups)
		},
	}

	deleteCmd := &cli.Command{
		Use:   "delete GROUP_ID",
		Short: "Delete a large person group with its persons and faces",
		Args:  cli.ExactArgs(1),
		RunE: func(cmd *cli.Command, args []string) error {
			if err := a.faces.DeleteGroup(cmd.Context(), a.faceConfig(), args[0]); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
		},
	}

	trainCmd := &cli.Command{
		Use:   "train GROUP_ID",
		Short: "Train a group and wait for the result",
		Args:  cli.ExactArgs(1),
		RunE: func(cmd *cli.Command, args []string) error {
			if err := a.faces.Train(cmd.Context(), a.faceConfig(), args[0]); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"trained": args[0]})
		},
	}

	groupsCmd.AddCommand(listCmd, deleteCmd, trainCmd)
	return groupsCmd
}
