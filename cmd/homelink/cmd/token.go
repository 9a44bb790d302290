package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/tsarna/homelink/pkg/homelink/credentials"
)

var errNoToken = errors.New("no token stored; run `homelink login` first")

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the claims of the stored token",
	Long: `Decode the stored bearer token and print its claims.

The signature is not checked; only the server can do that. Opaque tokens
are reported as such.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

var (
	tokenOutput string
	tokenRaw    bool
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVarP(&tokenOutput, "output", "o", "yaml", "output format (json, yaml)")
	tokenCmd.Flags().BoolVar(&tokenRaw, "raw", false, "print the token itself")
}

func runToken(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(tokenOutput)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	token, err := rt.store.Get(cmd.Context(), credentials.KeyToken)
	if err != nil {
		return err
	}
	if token == "" {
		return errNoToken
	}

	if tokenRaw {
		_, err := fmt.Fprintln(rt.out, token)
		return err
	}
	return printClaims(rt.out, token, format, time.Now())
}

// tokenInfo is what the token command prints.
type tokenInfo struct {
	Subject   string         `json:"subject,omitempty" yaml:"subject,omitempty"`
	IssuedAt  *time.Time     `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired   bool           `json:"expired" yaml:"expired"`
	Claims    map[string]any `json:"claims" yaml:"claims"`
}

func inspectToken(token string, now time.Time) (*tokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("stored token is not a JWT: %w", err)
	}

	info := &tokenInfo{Claims: claims}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.UTC()
		info.IssuedAt = &t
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.UTC()
		info.ExpiresAt = &t
		info.Expired = !t.After(now)
	}
	return info, nil
}

func printClaims(w io.Writer, token, format string, now time.Time) error {
	info, err := inspectToken(token, now)
	if err != nil {
		return err
	}
	if format == formatYAML {
		return writeYAML(w, info)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
