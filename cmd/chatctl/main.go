// Command chatctl is a terminal client for the messaging gateway. It mints a
// token for the configured user, connects over the websocket and reads
// commands from stdin:
//
//	@vet-1 Can you come on Friday?   send a message
//	/read <conversationId>           mark a conversation as read
//	/inbox                           show conversations and unread counts
//	/quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vetchat/auth"
	"vetchat/domain"

	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	ServerURL   string        `envconfig:"CHATCTL_SERVER_URL" default:"ws://localhost:8080/ws"`
	JwtSecret   string        `envconfig:"JWT_SECRET" required:"true"`
	JwtIssuer   string        `envconfig:"JWT_ISSUER"`
	UserID      string        `envconfig:"CHATCTL_USER_ID" required:"true"`
	DisplayName string        `envconfig:"CHATCTL_DISPLAY_NAME"`
	Role        string        `envconfig:"CHATCTL_ROLE" default:"owner"`
	TokenTTL    time.Duration `envconfig:"CHATCTL_TOKEN_TTL" default:"1h"`
	// CHATCTL_COLOURS enables colorized output for better readability
	Colours  bool   `envconfig:"CHATCTL_COLOURS" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if !domain.ValidUserID(config.UserID) {
		return exitConfig, fmt.Errorf("config error: invalid CHATCTL_USER_ID %q", config.UserID)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profile := domain.Profile{ID: config.UserID, DisplayName: config.DisplayName, Role: domain.Role(config.Role)}
	token, err := auth.NewAuthenticator(config.JwtSecret, config.JwtIssuer).
		GenerateToken(profile, []string{"user"}, config.TokenTTL)
	if err != nil {
		return exitConfig, fmt.Errorf("token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, header)
	if err != nil {
		if resp != nil {
			return exitRuntime, fmt.Errorf("handshake refused (%s): %w", resp.Status, err)
		}
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = ws.Close()
	}()

	session := newSession(config.UserID, ws, newPrinter(os.Stdout, config.Colours))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.receive() })
	// A blocked stdin read cannot be cancelled, so the prompt lives outside the group.
	prompted := make(chan error, 1)
	go func() { prompted <- session.prompt(gctx, bufio.NewScanner(os.Stdin)) }()
	g.Go(func() error {
		select {
		case err := <-prompted:
			return err
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks receive.
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		return ws.Close()
	})

	if err = g.Wait(); err != nil && ctx.Err() == nil && !isClosed(err) {
		return exitRuntime, err
	}
	return exitOK, nil
}
