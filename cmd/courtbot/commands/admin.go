package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"courtbot/internal/auth"
)

func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin API users",
	}
	cmd.AddCommand(newAddUserCmd())
	return cmd
}

func newAddUserCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Create an operator account for the admin API",
		Long: `Create an operator account. The password is read from COURTBOT_ADMIN_PASSWORD
so it does not end up in shell history.

Example:
  COURTBOT_ADMIN_PASSWORD=... courtbot admin add-user --email clerk@court.example`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("COURTBOT_ADMIN_PASSWORD")
			if password == "" {
				return errors.New("COURTBOT_ADMIN_PASSWORD is not set")
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			u, err := (&auth.Users{DB: a.db}).Create(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", u.ID, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "operator email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
