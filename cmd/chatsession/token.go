package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/crypto"
)

const defaultIssuer = "chatsession"

var errNoSecret = errors.New("--secret is required")

type tokenOptions struct {
	secret string
	issuer string
	name   string
	image  string
	ttl    time.Duration
}

// newTokenCmd issues access tokens for backends that share a signing secret
// with the client, such as a local development server.
func newTokenCmd() *cobra.Command {
	var opts tokenOptions
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed access token",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := issueToken(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.secret, "secret", "", "shared signing secret")
	cmd.Flags().StringVar(&opts.issuer, "issuer", defaultIssuer, "token issuer")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.image, "image", "", "avatar URL")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}

func issueToken(userID string, opts tokenOptions) (string, error) {
	if opts.secret == "" {
		return "", errNoSecret
	}
	signer := crypto.NewSigner(opts.secret, opts.issuer)
	return signer.Issue(chat.User{ID: userID, Name: opts.name, Image: opts.image}, opts.ttl)
}
