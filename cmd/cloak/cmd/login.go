package cmd

import (
	"context"
	"fmt"
	"io"

	cloak "github.com/goliatone/go-cloak"
	"github.com/spf13/cobra"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login [identifier]",
		Short: "Print a login link for a user",
		Long: `Prints a URL that logs its bearer in as a user. The link is valid for
CLOAK_LOGIN_LINK_MAX_AGE (60 seconds by default).

The identifier is matched against the user id, then the email (active
accounts first), then the username. Without an identifier the first
superuser is used, else the first staff member, else the first user.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identifier := ""
			if len(args) > 0 {
				identifier = args[0]
			}
			return runLogin(cmd.Context(), mustApp(cmd).Service, identifier, cmd.OutOrStdout())
		},
	}
}

func runLogin(ctx context.Context, svc *cloak.Service, identifier string, out io.Writer) error {
	target, err := svc.ResolveLoginTarget(ctx, identifier)
	if err != nil {
		switch {
		case cloak.IsError(err, cloak.ErrNoUsersFound):
			return fmt.Errorf("there are no users to log in as")
		case cloak.IsError(err, cloak.ErrUserNotFound):
			return fmt.Errorf("no user matches %q", identifier)
		}
		return err
	}

	link, err := svc.IssueLoginLink(ctx, target)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, link)
	return err
}
