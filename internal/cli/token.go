package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/printdesk"
	"github.com/MrEthical07/printdesk/jwt"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newTokenCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored token pair",
	}

	var access, refresh string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store an access/refresh pair obtained from login",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if access == "" {
				var err error
				if access, err = prompt(cmd, "access token: "); err != nil {
					return err
				}
			}
			if err := e.client.SetTokens(cmd.Context(), printdesk.Tokens{Access: access, Refresh: refresh}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tokens stored")
			return nil
		},
	}
	set.Flags().StringVar(&access, "access", "", "access token")
	set.Flags().StringVar(&refresh, "refresh", "", "refresh token")

	show := &cobra.Command{
		Use:   "show",
		Short: "Describe the stored tokens without printing them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := e.client.Credentials().Tokens(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if tokens.Access == "" {
				fmt.Fprintln(out, "access:  none")
			} else {
				fmt.Fprintf(out, "access:  %s\n", describe(tokens.Access, time.Now()))
			}
			fmt.Fprintf(out, "refresh: %s\n", presence(tokens.Refresh))
			return nil
		},
	}

	clr := &cobra.Command{
		Use:   "clear",
		Short: "Remove both tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tokens cleared")
			return nil
		},
	}

	cmd.AddCommand(set, show, clr)
	return cmd
}

func describe(token string, now time.Time) string {
	claims, err := jwt.Inspect(token)
	if err != nil {
		return "present (opaque)"
	}
	s := "present"
	if p := claims.Principal(); p != "" {
		s += ", subject " + p
	}
	switch {
	case claims.ExpiresAt.IsZero():
		s += ", no expiry"
	case claims.Expired(now, 0):
		s += ", expired " + humanize.RelTime(claims.ExpiresAt, now, "ago", "from now")
	default:
		s += ", expires " + humanize.RelTime(claims.ExpiresAt, now, "ago", "from now")
	}
	return s
}

func presence(v string) string {
	if v == "" {
		return "none"
	}
	return "present"
}

// prompt reads a secret from an interactive stdin without echo.
func prompt(cmd *cobra.Command, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--access is required")
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", errors.New("empty token")
	}
	return v, nil
}
