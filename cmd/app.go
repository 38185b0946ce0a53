package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/webbben/code-duel-client/api"
	"github.com/webbben/code-duel-client/connection"
	"github.com/webbben/code-duel-client/model"
	"github.com/webbben/code-duel-client/session"
)

const leaveTimeout = 5 * time.Second

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// .env may hold SERVER_URL / WS_URL for non-default deployments
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	var (
		serverURL = fs.StringP("server-url", "s", envOr("SERVER_URL", "http://localhost:8080"), "code-duel server base URL")
		wsURL     = fs.StringP("ws-url", "w", envOr("WS_URL", "ws://localhost:8080/ws"), "code-duel websocket endpoint")
		username  = fs.StringP("username", "u", "", "username to chat as")
		token     = fs.StringP("token", "t", os.Getenv("ID_TOKEN"), "auth token for protected endpoints")
		roomID    = fs.StringP("room", "r", "", "room to join; when empty, the room list is printed")
		reconnect = fs.Bool("reconnect", false, "redial the room connection after an unexpected close")
		logLevel  = fs.StringP("log-level", "l", "info", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	apiClient := api.NewClient(api.Config{
		Logger:  &logger,
		BaseURL: *serverURL,
		Token:   *token,
	})

	if *roomID == "" {
		printRoomList(ctx, apiClient, &logger)
		return
	}
	if *username == "" {
		logger.Fatal().Msg("--username is required to join a room")
	}

	var conn *connection.Connection
	sess := session.New(session.Config{
		Logger:   &logger,
		API:      apiClient,
		Username: *username,
		Dial: func(roomID string) session.Conn {
			conn = connection.New(connection.Config{
				Logger:    &logger,
				Endpoint:  *wsURL,
				RoomID:    roomID,
				Token:     *token,
				Reconnect: *reconnect,
				OnStatus: func(status connection.Status, err error) {
					if err != nil {
						logger.Warn().Err(err).Stringer("status", status).Msg("connection state changed")
					}
				},
			})
			attachPrinters(conn, *username)
			return conn
		},
	})

	if err = sess.Join(ctx, *roomID); err != nil {
		logger.Fatal().Err(err).Str("roomID", *roomID).Msg("failed to join room")
	}
	fmt.Printf("joined room %q as %s (/quit to leave)\n", sess.Room().Title, *username)

	go readInput(cancel, sess)

	<-ctx.Done()

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer leaveCancel()
	if err = sess.Leave(leaveCtx); err != nil {
		logger.Error().Err(err).Msg("failed to leave room cleanly")
	}
}

// attachPrinters subscribes stdout printers for everything the server
// broadcasts. Registered before the connection opens, so nothing
// delivered after the open transition is missed.
func attachPrinters(conn *connection.Connection, self string) {
	conn.Subscribe(model.KindChatMessage, func(msg model.Message) {
		if msg.Sender == self {
			return
		}
		fmt.Printf("%s: %s\n", msg.Sender, msg.Content)
	})
	conn.Subscribe(model.KindServerNotify, func(msg model.Message) {
		fmt.Printf("* %s\n", msg.Content)
	})
	conn.Subscribe(model.KindRoomMessage, func(msg model.Message) {
		if msg.RoomUpdate == nil {
			return
		}
		switch msg.RoomUpdate.Type {
		case model.UpdateUserJoin:
			fmt.Printf("* %s joined the room\n", msg.RoomUpdate.StringValue())
		case model.UpdateUserLeave:
			fmt.Printf("* %s left the room\n", msg.RoomUpdate.StringValue())
		case model.UpdateLaunchGame:
			fmt.Println("* game launched!")
		}
	})
	conn.Subscribe(model.KindGameMessage, func(msg model.Message) {
		if msg.RoomUpdate == nil {
			return
		}
		switch msg.RoomUpdate.Type {
		case model.UpdateCodeSubmitResult:
			passed, _ := msg.RoomUpdate.IntValue()
			fmt.Printf("* %s passed %d test cases\n", msg.RoomUpdate.User(), passed)
		case model.UpdateGameOver:
			if winner := msg.RoomUpdate.StringValue(); winner != "" {
				fmt.Printf("* game over, %s wins!\n", winner)
			} else {
				fmt.Println("* game over, it's a tie!")
			}
		}
	})
}

func readInput(cancel context.CancelFunc, sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			break
		}
		if line != "" {
			sess.SendChat(line)
		}
	}
	cancel()
}

func printRoomList(ctx context.Context, client *api.Client, logger *zerolog.Logger) {
	rooms, err := client.GetRoomList(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load room list")
	}
	if len(rooms) == 0 {
		fmt.Println("no open rooms")
		return
	}
	for _, r := range rooms {
		fmt.Printf("%s  %-20s  owner=%s  users=%d/%d\n",
			r.ID, r.Title, r.Owner, len(r.Users), r.MaxCapacity)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
