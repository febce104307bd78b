package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	socketPath string
	joinRooms  []string
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// socketURL derives the WebSocket endpoint from the HTTP base URL
func socketURL() (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + socketPath
	return u.String(), nil
}

func dial() (*websocket.Conn, error) {
	target, err := socketURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	for _, room := range joinRooms {
		if err := send(conn, "join_room", fmt.Sprintf(`{"room":%q}`, room)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func send(conn *websocket.Conn, event, data string) error {
	f := frame{Event: event}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("payload is not valid JSON: %s", data)
		}
		f.Data = json.RawMessage(data)
	}
	return conn.WriteJSON(f)
}

// printFrames prints frames until the deadline passes, the connection closes
// or stop fires. A zero deadline waits forever.
func printFrames(conn *websocket.Conn, wait time.Duration, stop <-chan os.Signal) error {
	frames := make(chan frame)
	errs := make(chan error, 1)
	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				errs <- err
				return
			}
			frames <- f
		}
	}()

	var deadline <-chan time.Time
	if wait > 0 {
		deadline = time.After(wait)
	}

	for {
		select {
		case f := <-frames:
			if output == "json" {
				line, _ := json.Marshal(f)
				fmt.Println(string(line))
				continue
			}
			fmt.Printf("<- %s %s\n", f.Event, string(f.Data))
		case err := <-errs:
			var ne net.Error
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				(errors.As(err, &ne) && ne.Timeout()) {
				return nil
			}
			return fmt.Errorf("connection closed: %w", err)
		case <-deadline:
			return nil
		case <-stop:
			return nil
		}
	}
}

var emitCmd = &cobra.Command{
	Use:   "emit [event] [json-payload]",
	Short: "Send one event and print the replies",
	Long: `Send one event over the WebSocket channel and print every frame
received until --timeout elapses.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		payload := ""
		if len(args) == 2 {
			payload = args[1]
		}
		if err := send(conn, args[0], payload); err != nil {
			return err
		}
		return printFrames(conn, timeout, nil)
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print every frame pushed by the server",
	Long:  `Connect to the WebSocket channel and print frames until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt)
		defer signal.Stop(stop)

		return printFrames(conn, 0, stop)
	},
}

func init() {
	for _, c := range []*cobra.Command{emitCmd, listenCmd} {
		c.Flags().StringVar(&socketPath, "path", "/socket", "WebSocket path on the server")
		c.Flags().StringSliceVar(&joinRooms, "join", nil, "Rooms to join before sending")
		rootCmd.AddCommand(c)
	}
}
