package main

import (
	"encoding/base64"
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/bhandras/delight-chat/internal/storage"
	"github.com/bhandras/delight-chat/pkg/logger"
)

const linkScheme = "chatsession"

func newQRCmd(a *app) *cobra.Command {
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "qr <channel-id>",
		Short: "Print a QR code that lets another device join the channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channelID := args[0]
			var key *[32]byte
			if encrypt {
				k, err := storage.GetOrCreateChannelKey(a.cfg.KeysDir, channelID)
				if err != nil {
					return err
				}
				key = k
			}
			link := channelLink(a.cfg.ServerURL, channelID, key)

			qr, err := qrcode.New(link, qrcode.Medium)
			if err != nil {
				logger.Warnf("Failed to generate QR code: %v", err)
				fmt.Fprintln(cmd.OutOrStdout(), link)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), qr.ToSmallString(false))
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "include the channel encryption key in the link")
	return cmd
}

// channelLink builds the deep link a mobile client scans to join a channel.
func channelLink(serverURL, channelID string, key *[32]byte) string {
	q := url.Values{}
	q.Set("server", serverURL)
	q.Set("channel", channelID)
	if key != nil {
		q.Set("key", base64.RawURLEncoding.EncodeToString(key[:]))
	}
	u := url.URL{Scheme: linkScheme, Host: "join", RawQuery: q.Encode()}
	return u.String()
}
