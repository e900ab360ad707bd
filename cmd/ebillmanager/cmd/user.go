package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/ebillmanager/internal/auth"
	"github.com/bher20/ebillmanager/internal/storage"
)

var userOpts struct {
	username string
	email    string
	password string
	role     string
}

var tokenOpts struct {
	username string
	name     string
	role     string
	expires  string
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, svc, err := openAuth(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := svc.Register(cmd.Context(), userOpts.username, userOpts.email, userOpts.password, userOpts.role)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s) with role %s\n", u.Username, u.ID, u.Role)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API token for a user",
	Long: `Issue a bearer token for a user. The token is printed once and cannot
be recovered. --expires takes never, 30d, 2w, 12h, a Go duration or a
date such as 12/25/2026.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		expiresAt, err := auth.ParseExpiry(tokenOpts.expires, time.Now())
		if err != nil {
			return err
		}
		st, svc, err := openAuth(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := st.GetUserByUsername(cmd.Context(), tokenOpts.username)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("no user named %q", tokenOpts.username)
		}
		t, raw, err := svc.CreateToken(cmd.Context(), u.ID, tokenOpts.name, tokenOpts.role, expiresAt)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "token %s for %s", t.ID, u.Username)
		if t.ExpiresAt != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), ", expires %s", t.ExpiresAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(cmd.ErrOrStderr())
		fmt.Fprintln(cmd.OutOrStdout(), raw)
		return nil
	},
}

func openAuth(cmd *cobra.Command) (storage.Backend, *auth.Service, error) {
	if cfg.Database.Driver == "memory" {
		return nil, nil, errors.New("users and tokens need a persistent database.driver")
	}
	st, err := openStorage(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	svc, err := auth.NewService(st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, svc, nil
}

func init() {
	rootCmd.AddCommand(userCmd, tokenCmd)
	userCmd.AddCommand(userCreateCmd)
	tokenCmd.AddCommand(tokenCreateCmd)

	uf := userCreateCmd.Flags()
	uf.StringVar(&userOpts.username, "username", "", "login name")
	uf.StringVar(&userOpts.email, "email", "", "email address")
	uf.StringVar(&userOpts.password, "password", "", "password")
	uf.StringVar(&userOpts.role, "role", auth.RoleViewer, "admin, editor or viewer")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("password")

	tf := tokenCreateCmd.Flags()
	tf.StringVar(&tokenOpts.username, "user", "", "user the token belongs to")
	tf.StringVar(&tokenOpts.name, "name", "cli", "token label")
	tf.StringVar(&tokenOpts.role, "role", "", "restrict the token to this role (default: the user's role)")
	tf.StringVar(&tokenOpts.expires, "expires", "30d", "expiry")
	_ = tokenCreateCmd.MarkFlagRequired("user")
}
