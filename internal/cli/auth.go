package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// readSecret returns flagValue, or the first line of in when it is empty.
func readSecret(in io.Reader, flagValue, name string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return line, nil
}

func cmdLogin(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			pw, err := readSecret(cmd.InOrStdin(), password, "password")
			if err != nil {
				return err
			}
			user, err := a.client.Auth().Login(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			return a.print(cmd, user, func(w io.Writer) {
				fmt.Fprintf(w, "Logged in as %s (%s)\n", user.Email, user.ID)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when empty)")
	return cmd
}

func cmdLogout(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session locally and on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Auth().Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func cmdSignUp(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readSecret(cmd.InOrStdin(), password, "password")
			if err != nil {
				return err
			}
			res, err := a.client.Auth().SignUp(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			return a.print(cmd, res, func(w io.Writer) {
				fmt.Fprintln(w, res.Message)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when empty)")
	return cmd
}

func cmdForgotPassword(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Auth().ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If the address is registered, a reset email is on its way")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func cmdResetPassword(a *app) *cobra.Command {
	var recovery, password string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password using the token from the reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readSecret(cmd.InOrStdin(), password, "password")
			if err != nil {
				return err
			}
			if err := a.client.Auth().ResetPassword(cmd.Context(), recovery, pw); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&recovery, "token", "", "recovery access token")
	cmd.Flags().StringVar(&password, "password", "", "new password (read from stdin when empty)")
	return cmd
}

func cmdWhoami(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := a.client.Session()
			ended, err := sess.CheckExpired(cmd.Context())
			if err != nil {
				return err
			}
			if ended || !sess.IsLoggedIn() {
				return errors.New("not logged in")
			}
			user := sess.Profile()
			if user == nil {
				user = &contaconmigo.UserProfile{}
			}
			return a.print(cmd, user, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", user.Email, user.ID)
			})
		},
	}
}

func cmdHealth(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.HealthCheck(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is up\n", a.cfg.Client.BaseURL)
			return nil
		},
	}
}
