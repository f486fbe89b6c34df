package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/bhandras/delight-chat/internal/httpapi"
	"github.com/bhandras/delight-chat/internal/remote/socketio"
	"github.com/bhandras/delight-chat/internal/session"
	"github.com/bhandras/delight-chat/internal/storage"
	"github.com/bhandras/delight-chat/pkg/logger"
)

type watchOptions struct {
	encrypt  bool
	httpAddr string
	origins  []string
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch <channel-id>",
		Short: "Join a channel and chat from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context(), args[0], opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.encrypt, "encrypt", false, "encrypt message text with the channel key")
	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "serve /metrics, /healthz and /v1/view on this address")
	cmd.Flags().StringSliceVar(&opts.origins, "allow-origin", nil, "browser origins allowed to read the HTTP API")
	return cmd
}

func (a *app) watch(ctx context.Context, channelID string, opts watchOptions, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	out = &syncWriter{w: out}

	token, err := storage.LoadToken(a.cfg.TokenFile)
	if errors.Is(err, storage.ErrNoToken) {
		return fmt.Errorf("%w: run `chatsession login` first", err)
	}
	if err != nil {
		return err
	}

	conn, err := socketio.NewConn(a.cfg.ServerURL, a.cfg.SocketPath, token)
	if err != nil {
		return err
	}
	deviceID, err := storage.GetOrCreateDeviceID(filepath.Join(a.cfg.HomeDir, "device.id"))
	if err != nil {
		return err
	}
	conn.SetDeviceID(deviceID)

	if err := conn.Connect(); err != nil {
		return err
	}
	defer conn.Close()
	if !conn.WaitForConnect(a.cfg.Session.RequestTimeout) {
		return fmt.Errorf("timed out connecting to %s", a.cfg.ServerURL)
	}

	chOpts := []socketio.Option{socketio.WithAckTimeout(a.cfg.Session.RequestTimeout)}
	if opts.encrypt {
		key, err := storage.GetOrCreateChannelKey(a.cfg.KeysDir, channelID)
		if err != nil {
			return err
		}
		chOpts = append(chOpts, socketio.WithKey(key))
	}
	ch := socketio.NewChannel(conn, channelID, conn.User(), chOpts...)
	defer ch.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	eng := session.New(ch, conn,
		session.WithConfig(a.cfg.SessionConfig()),
		session.WithMetrics(session.NewMetrics(reg)),
	)
	defer eng.Close()

	p := newPrinter(out, conn.User().ID)
	unsubscribe := eng.Subscribe(p.Print)
	defer unsubscribe()

	if opts.httpAddr != "" {
		router := httpapi.NewRouter(httpapi.Options{
			Gatherer:       reg,
			Session:        eng,
			AllowedOrigins: opts.origins,
		})
		go func() {
			if err := httpapi.Serve(ctx, opts.httpAddr, router); err != nil {
				logger.Errorf("HTTP API stopped: %v", err)
			}
		}()
	}

	logger.Infof("Joining %s as %s", channelID, displayName(conn.User().ID, conn.User().Name))
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", channelID, err)
	}
	eng.ReachedNewest()

	return inputLoop(ctx, eng, in, out)
}

// inputLoop executes one command per input line until /quit, EOF or ctx is
// done.
func inputLoop(ctx context.Context, s sessionAPI, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c, err := parseCommand(line)
			if err != nil {
				fmt.Fprintf(out, "!! %v\n", err)
				continue
			}
			msg, err := execute(ctx, s, c)
			if errors.Is(err, errQuit) {
				return nil
			}
			if msg != "" {
				fmt.Fprintln(out, msg)
			}
			if err != nil {
				fmt.Fprintf(out, "!! %v\n", err)
			}
		}
	}
}
