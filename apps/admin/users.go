package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sgacop30/sga/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		email, name, papel string
		superuser          bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, the password is prompted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || name == "" {
				return usageErr(cmd, args)
			}
			if superuser {
				papel = user.PapelSuperuser
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.addUser(name, email, pwd, papel)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	cmd.Flags().StringVar(&name, "name", "", "the user's full name")
	cmd.Flags().StringVar(&papel, "role", user.PapelNone, "superuser|gerente|eventos|none")
	cmd.Flags().BoolVar(&superuser, "superuser", false, "shorthand for --role superuser")
	return cmd
}

func (cli *commandLine) addUser(name, email, pwd, papel string) error {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Papel:           papel,
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}

	var (
		usr user.User
		err error
	)
	if nu.Papel == user.PapelSuperuser {
		usr, err = cli.usrSvc.CreateSuperuser(ctx, nu.Name, nu.Email, nu.Password)
	} else {
		usr, err = cli.usrSvc.Create(ctx, systemActor, nu)
	}
	if err != nil {
		return err
	}
	cli.printf("user %s created (id %d, papel %s)", usr.Email, usr.ID, usr.Papel())
	return nil
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password, the new one is prompted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return usageErr(cmd, args)
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			if err := cli.usrSvc.SetPassword(context.Background(), email, pwd); err != nil {
				return err
			}
			cli.printf("password updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	return cmd
}

func (cli *commandLine) setRoleCmd() *cobra.Command {
	var email, papel string
	cmd := &cobra.Command{
		Use:   "setrole",
		Short: "Change a user's papel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || papel == "" {
				return usageErr(cmd, args)
			}
			ctx := context.Background()
			usr, err := cli.usrSvc.GetByEmail(ctx, email)
			if err != nil {
				return err
			}
			if usr, err = cli.usrSvc.SetRole(ctx, systemActor, usr.ID, papel); err != nil {
				return err
			}
			cli.printf("%s is now %s", usr.Email, usr.Papel())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email")
	cmd.Flags().StringVar(&papel, "role", "", "superuser|gerente|eventos|none")
	return cmd
}
