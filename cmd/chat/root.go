package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gigchat/internal/api"
	"gigchat/internal/attachment"
	"gigchat/internal/config"
	"gigchat/internal/feed"
	"gigchat/internal/logger"
	"gigchat/internal/model"
	"gigchat/internal/outbox"
	"gigchat/internal/session"
	"gigchat/internal/socket"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var (
		peer     string
		username string
		envFile  string
	)

	cmd := &cobra.Command{
		Use:   "chat --with <username>",
		Short: "Terminal chat with a marketplace buyer or seller",
		Long: `chat opens a conversation with another marketplace user against the
gigchat API. Type a message and press enter to send it. Commands:

  /file <path>                      stage an attachment
  /remove                           discard the staged attachment
  /offer <price> <days> <details>   send a custom offer (sellers only)
  /older                            load an older page of history
  /read                             mark the conversation as read
  /quit                             leave`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// .envファイルを読み込み
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if username != "" {
				cfg.Username = username
			}
			if cfg.Username == "" {
				return errors.New("no username: set CHAT_USERNAME or pass --as")
			}
			return run(cmd.Context(), cfg, peer, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.Flags().StringVarP(&peer, "with", "w", "", "username to chat with")
	cmd.Flags().StringVar(&username, "as", "", "your username (overrides CHAT_USERNAME)")
	cmd.Flags().StringVar(&envFile, "env", ".env", "dotenv file to load")
	_ = cmd.MarkFlagRequired("with")

	return cmd
}

func run(parent context.Context, cfg config.Config, peer string, in io.Reader, out io.Writer) error {
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	sock, err := socket.Dial(ctx, cfg.SocketURL, cfg.Username, nil, zl)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.SocketURL, err)
	}
	defer sock.Close()

	client := api.New(cfg.APIURL, nil, zl)
	history := feed.New(client, cfg.Username, peer, feed.DefaultPageSize, zl)

	term := newTerminal(out)
	box := outbox.New(outbox.Deps{
		Sender:      client,
		Invalidator: history,
		Alerter:     outbox.AlertFunc(term.Alert),
		Logger:      zl,
	})

	ctrl := session.New(session.Deps{
		AuthUser:       model.AuthUser{ID: cfg.Username, Username: cfg.Username, ProfilePicture: cfg.Picture},
		Seller:         model.Seller{ID: cfg.SellerID, Username: cfg.Username},
		ViewedUsername: peer,
		Outbox:         box,
		Channel:        sock,
		Buyers:         client,
		Gigs:           client,
		Reads:          client,
		Pages:          history,
		Refresher:      history,
		Validator:      attachment.CheckFile(attachment.Policy{MaxSize: cfg.MaxFileSize}),
		Logger:         zl,
	})
	history.SetSink(ctrl.SetHistory)

	ctrl.Mount(ctx)
	defer ctrl.Unmount()

	go func() {
		if err := history.Follow(ctx, sock); err != nil {
			zl.Warn("live messages unavailable", zap.Error(err))
		}
	}()
	if err := history.Load(ctx); err != nil {
		term.Alert("Could not load the conversation.")
		zl.Warn("initial history load failed", zap.Error(err))
	}

	unread, release := ctrl.Notifications().Subscribe()
	defer release()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ctrl.Changed():
				term.Render(ctrl.View())
			case has := <-unread:
				if has {
					term.Notice("You have unread messages.")
				}
			}
		}
	}()
	term.Render(ctrl.View())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	r := &repl{ctrl: ctrl, feed: history, term: term}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sock.Done():
			return errors.New("connection to the chat server was lost")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.exec(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}
