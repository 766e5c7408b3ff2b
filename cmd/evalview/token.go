package main

import (
	"github.com/spf13/cobra"

	"evalview/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an API token for the HTTP server",
	Long: `Generate a random bearer token and its bcrypt hash. Put the hash in
server.authTokenHash (or EVALVIEW_SERVER_AUTHTOKENHASH) and give the token to
clients. The token is shown once and is not stored anywhere.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

// TokenResponseCLI holds a freshly generated token
type TokenResponseCLI struct {
	Token string `json:"token"`
	Hash  string `json:"hash"`
}

func runToken(cmd *cobra.Command, args []string) error {
	token, err := auth.GenerateToken()
	if err != nil {
		return err
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	return writeOutput(cmd, &TokenResponseCLI{Token: token, Hash: hash})
}
