/*
Copyright © 2026 juizo-game
*/

package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/juizo-game/juizo/internal/wire"
)

// Channel is the presence-and-broadcast primitive a session runs on. Send is
// fire-and-forget: no confirmation is awaited and no retry is attempted.
// Frames delivers inbound frames until the channel closes.
type Channel interface {
	Frames() <-chan wire.Frame
	Send(wire.Frame) error
	Close() error
}

// Dialer opens a channel for one room, keyed by this client's presence key.
type Dialer func(ctx context.Context, roomCode, key string) (Channel, error)

// RelayDialer returns a Dialer that connects to a relay's websocket endpoint
// at {base}/rooms/{code}/ws?key={key}.
func RelayDialer(baseURL string) Dialer {
	return func(ctx context.Context, roomCode, key string) (Channel, error) {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
		if err != nil {
			return nil, err
		}
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		case "ws", "wss":
		default:
			return nil, fmt.Errorf("unsupported relay scheme %q", u.Scheme)
		}
		u.Path += "/rooms/" + roomCode + "/ws"
		u.RawQuery = url.Values{"key": {key}}.Encode()

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, err
		}

		ch := &wsChannel{
			conn:   conn,
			frames: make(chan wire.Frame, 16),
		}
		go ch.readPump()

		return ch, nil
	}
}

type wsChannel struct {
	conn    *websocket.Conn
	frames  chan wire.Frame
	writeMu sync.Mutex
}

func (c *wsChannel) readPump() {
	defer close(c.frames)

	for {
		var f wire.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		c.frames <- f
	}
}

func (c *wsChannel) Frames() <-chan wire.Frame {
	return c.frames
}

func (c *wsChannel) Send(f wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(f)
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}
