package cmd

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-cloak/repository"
	"github.com/spf13/cobra"
)

type userAddOptions struct {
	Username  string
	Email     string
	Inactive  bool
	Staff     bool
	Superuser bool
}

// Validate will run validation rules
func (o userAddOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Username, validation.Required, validation.Length(1, 150)),
		validation.Field(&o.Email, is.Email),
	)
}

func (o userAddOptions) user() *repository.User {
	return &repository.User{
		Username:    strings.TrimSpace(o.Username),
		Email:       strings.TrimSpace(o.Email),
		IsActive:    !o.Inactive,
		IsStaff:     o.Staff,
		IsSuperuser: o.Superuser,
	}
}

func newUserAddCommand() *cobra.Command {
	opts := userAddOptions{}

	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Username = args[0]
			if err := opts.Validate(); err != nil {
				return err
			}

			app := mustApp(cmd)
			record, err := app.Users.Create(cmd.Context(), opts.user())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", record.Username, record.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "Email address")
	cmd.Flags().BoolVar(&opts.Inactive, "inactive", false, "Create the account disabled")
	cmd.Flags().BoolVar(&opts.Staff, "staff", false, "Mark the user as staff")
	cmd.Flags().BoolVar(&opts.Superuser, "superuser", false, "Mark the user as superuser")

	return cmd
}
