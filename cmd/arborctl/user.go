package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/jacentio/arbor/auth"
	"github.com/jacentio/arbor/config"
)

// accountFlags selects the account database.
type accountFlags struct {
	path string
}

func (f *accountFlags) register(flagSet *pflag.FlagSet) {
	defaults := config.Default()
	defaults.ExpandVariables()
	flagSet.StringVar(&f.path, "accounts", envOr("ARBOR_ACCOUNTS", defaults.Accounts.Path), "account database ($ARBOR_ACCOUNTS)")
}

// withDirectory opens the account database for the duration of fn.
func (f *accountFlags) withDirectory(fn func(ctx context.Context, dir *auth.Directory) error) error {
	dir, err := auth.OpenDirectory(auth.DirectoryConfig{Path: f.path})
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.path, err)
	}
	defer dir.Close()
	return fn(context.Background(), dir)
}

func userCommand(out io.Writer) *command {
	return &command{
		name:    "user",
		summary: "Manage accounts",
		subcommands: []*command{
			userAddCommand(out),
			userRemoveCommand(out),
			userListCommand(out),
		},
	}
}

func userAddCommand(out io.Writer) *command {
	var (
		accounts accountFlags
		password string
	)
	const usage = "<login> <tenant>"
	return &command{
		name:    "add",
		summary: "Create an account mapped to a tenant",
		usage:   usage,
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("add", pflag.ContinueOnError)
			accounts.register(flagSet)
			flagSet.StringVar(&password, "password", "", "account password ($ARBOR_PASSWORD)")
			return flagSet
		},
		run: func(args []string) error {
			if err := exactArgs(args, 2, usage); err != nil {
				return err
			}
			if password == "" {
				password = envOr("ARBOR_PASSWORD", "")
			}
			if password == "" {
				return fmt.Errorf("--password or ARBOR_PASSWORD is required")
			}
			return accounts.withDirectory(func(ctx context.Context, dir *auth.Directory) error {
				if err := dir.AddUser(ctx, args[0], password, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(out, "added %s (tenant %s)\n", args[0], args[1])
				return nil
			})
		},
	}
}

func userRemoveCommand(out io.Writer) *command {
	var accounts accountFlags
	const usage = "<login>"
	return &command{
		name:    "remove",
		summary: "Delete an account; its items are kept",
		usage:   usage,
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			accounts.register(flagSet)
			return flagSet
		},
		run: func(args []string) error {
			if err := exactArgs(args, 1, usage); err != nil {
				return err
			}
			return accounts.withDirectory(func(ctx context.Context, dir *auth.Directory) error {
				if err := dir.RemoveUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func userListCommand(out io.Writer) *command {
	var accounts accountFlags
	return &command{
		name:    "list",
		summary: "List accounts",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			accounts.register(flagSet)
			return flagSet
		},
		run: func(args []string) error {
			if err := exactArgs(args, 0, ""); err != nil {
				return err
			}
			return accounts.withDirectory(func(ctx context.Context, dir *auth.Directory) error {
				users, err := dir.Users(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
				fmt.Fprintln(tw, "LOGIN\tTENANT")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%s\n", u.Login, u.Tenant)
				}
				return tw.Flush()
			})
		},
	}
}
