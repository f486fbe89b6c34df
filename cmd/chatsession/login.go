package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/crypto"
	"github.com/bhandras/delight-chat/internal/storage"
)

func newLoginCmd(a *app) *cobra.Command {
	var secret, issuer string
	cmd := &cobra.Command{
		Use:   "login [token]",
		Short: "Store the access token used to connect",
		Long:  "Store the access token used to connect. The token is read from stdin when not given as an argument.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)

			user, err := tokenUser(token, secret, issuer)
			if err != nil {
				return err
			}
			if err := storage.SaveToken(a.cfg.TokenFile, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(user.ID, user.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "verify the token signature with this shared secret")
	cmd.Flags().StringVar(&issuer, "issuer", defaultIssuer, "expected token issuer when --secret is set")
	return cmd
}

// tokenUser reads the user from token. With a secret the signature, issuer
// and expiry are checked as well.
func tokenUser(token, secret, issuer string) (chat.User, error) {
	if secret == "" {
		return crypto.UserFromToken(token)
	}
	return crypto.NewSigner(secret, issuer).Verify(token)
}

func displayName(id, name string) string {
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
