package main

import (
	"context"

	"github.com/spf13/cobra"
)

func (cli *commandLine) createPassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "createpasses",
		Short: "Create a pass for every active user missing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := cli.passeSvc.CreateForAll(context.Background())
			if err != nil {
				return err
			}
			cli.printf("%d passes created", n)
			return nil
		},
	}
}

func (cli *commandLine) deletePassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deletepasses",
		Short: "Delete every pass, validations are kept unlinked",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := cli.passeSvc.DeleteAll(context.Background())
			if err != nil {
				return err
			}
			cli.printf("%d passes deleted", n)
			return nil
		},
	}
}
