package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/tsarna/homelink/pkg/homelink/credentials"
	"go.uber.org/zap"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store a bearer token",
	Long: `Store the bearer token used for API requests and the event channel.

The token is read from standard input when it is omitted or given as "-".
If an earlier request was redirected to the login page, the page it came
from is printed and forgotten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored bearer token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 && args[0] != "-" {
		token = args[0]
	} else {
		var err error
		if token, err = readToken(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return fmt.Errorf("empty token")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if exp, ok := tokenExpiry(token); ok && exp.Before(time.Now()) {
		rt.logger.Warn("Token is already expired", zap.Time("exp", exp))
	}

	ctx := cmd.Context()
	if err := rt.store.Set(ctx, credentials.KeyToken, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	redirect, err := rt.store.Get(ctx, credentials.KeyRedirect)
	if err != nil {
		return err
	}
	if redirect != "" {
		fmt.Fprintf(rt.out, "Continue at %s\n", redirect)
		if err := rt.store.Delete(ctx, credentials.KeyRedirect); err != nil {
			return err
		}
	}

	rt.queue.Success("Logged in")
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.store.Delete(cmd.Context(), credentials.KeyToken); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	rt.queue.Info("Logged out")
	return nil
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return line, nil
}

// tokenExpiry reports the exp claim of a JWT without verifying it. Opaque
// tokens report false.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
