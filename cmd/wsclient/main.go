// Command wsclient is a small interactive WebSocket client: it dials a
// server, then echoes stdin lines to the connection as text messages and
// prints whatever comes back, until the connection closes or stdin hits
// EOF.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/vitalvas/wsforge/websocket"
	"github.com/vitalvas/wsforge/wsnet"
)

func main() {
	cmd := &cli.Command{
		Name:  "wsclient",
		Usage: "interactive WebSocket client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "server URL (ws:// or wss://)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "subprotocol",
				Usage: "requested Sec-WebSocket-Protocol value",
			},
			&cli.BoolFlag{
				Name:  "compress",
				Usage: "offer permessage-deflate",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	clientOpts := websocket.ClientOptions{}
	if sp := cmd.String("subprotocol"); sp != "" {
		clientOpts.Subprotocols = []string{sp}
	}
	if cmd.Bool("compress") {
		clientOpts.Compression = websocket.Compression{Mode: websocket.CompressionDeflate}
	}

	conn, result, err := wsnet.Dial(ctx, cmd.String("url"), wsnet.DialOptions{
		Client:   clientOpts,
		Config:   websocket.NewConfig(),
		Blocking: true,
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if result.Subprotocol != "" {
		fmt.Fprintln(os.Stderr, "negotiated subprotocol:", result.Subprotocol)
	}

	incoming := make(chan websocket.Message)
	readErrs := make(chan error, 1)
	go func() {
		for {
			msg, err := conn.Read()
			if err != nil {
				readErrs <- err
				close(incoming)
				return
			}
			incoming <- msg
		}
	}()

	lines := make(chan string)
	go scanStdin(lines)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return conn.Close(websocket.CloseNormal, "")
			}
			if err := conn.Send(websocket.Text(line)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		case msg, ok := <-incoming:
			if !ok {
				err := <-readErrs
				if err == websocket.ErrConnectionClosed {
					return nil
				}
				return err
			}
			printMessage(msg)
		}
	}
}

func scanStdin(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func printMessage(msg websocket.Message) {
	switch msg.Type {
	case websocket.TextMessage:
		fmt.Println(string(msg.Data))
	case websocket.BinaryMessage:
		fmt.Printf("<binary: %d bytes>\n", len(msg.Data))
	case websocket.PingMessage:
		fmt.Fprintln(os.Stderr, "<ping>")
	case websocket.PongMessage:
		fmt.Fprintln(os.Stderr, "<pong>")
	case websocket.CloseMessage:
		if msg.Close != nil {
			fmt.Fprintf(os.Stderr, "<closed: %d %s>\n", msg.Close.Code, msg.Close.Reason)
		}
	}
}
