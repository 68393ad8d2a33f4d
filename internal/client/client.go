// Package client adapts a WebSocket connection to the hub: it decodes player
// commands, dispatches them and delivers room events.
package client

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/hub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a player's WebSocket connection to the hub.
type Client struct {
	hub      *hub.Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	playerID string
	name     string

	// rooms is only touched by ReadPump.
	rooms map[string]bool
}

// New creates a new Client for an authenticated player.
func New(h *hub.Hub, conn *websocket.Conn, playerID, name string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		playerID: playerID,
		name:     name,
		rooms:    make(map[string]bool),
	}
}

// PlayerID returns the id of the connected player.
func (c *Client) PlayerID() string {
	return c.playerID
}

// Send queues a message to be sent to the WebSocket client.
func (c *Client) Send(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		// Client send buffer full, drop message.
		log.Printf("client %s: send buffer full, dropping message", c.playerID)
	}
}

// ReadPump reads commands from the WebSocket connection and dispatches them
// to the hub. When the connection ends the player is disconnected from every
// room it joined.
func (c *Client) ReadPump() {
	defer func() {
		close(c.done)
		c.cancel()
		for room := range c.rooms {
			c.hub.Disconnect(room, c.playerID)
		}
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("client %s: read error: %v", c.playerID, err)
			}
			return
		}
		c.handleMessage(data)
	}
}

// WritePump writes messages from the send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		c.sendError(err)
		return
	}
	cmd, err := domain.DecodeCommand(env)
	if err != nil {
		c.sendError(err)
		return
	}
	if err := c.dispatch(cmd); err != nil {
		log.Printf("client %s: %s: %v", c.playerID, env.Type, err)
		c.sendError(err)
	}
}

func (c *Client) dispatch(cmd domain.Command) error {
	switch cmd := cmd.(type) {
	case *domain.CreateRoom:
		if cmd.PlayerID != c.playerID {
			return domain.ErrPlayerMismatch
		}
		room, err := c.hub.CreateRoom(c.ctx, c, cmd.DisplayName, cmd.BetAmount)
		if err != nil {
			return err
		}
		c.rooms[room.RoomID] = true

	case *domain.JoinRoom:
		if cmd.PlayerID != c.playerID {
			return domain.ErrPlayerMismatch
		}
		if _, err := c.hub.JoinRoom(c.ctx, cmd.RoomID, c, cmd.DisplayName); err != nil {
			return err
		}
		c.rooms[cmd.RoomID] = true

	case *domain.LeaveRoom:
		if cmd.PlayerID != c.playerID {
			return domain.ErrPlayerMismatch
		}
		if err := c.hub.LeaveRoom(cmd.RoomID, cmd.PlayerID); err != nil {
			return err
		}
		delete(c.rooms, cmd.RoomID)

	case *domain.ListRooms:
		c.reply(domain.MsgListRooms, domain.RoomList{AvailableRooms: c.hub.ListJoinable()})

	case *domain.SubmitAnswer:
		if cmd.PlayerID != c.playerID {
			return domain.ErrPlayerMismatch
		}
		return c.hub.SubmitAnswer(cmd.RoomID, cmd.PlayerID, cmd.QuestionID, cmd.OptionID, cmd.ResponseTimeSeconds)

	case *domain.GetState:
		state, err := c.hub.RoundState(cmd.RoomID)
		if err != nil {
			return err
		}
		c.reply(domain.MsgGameState, state)
	}
	return nil
}

func (c *Client) reply(typ string, data any) {
	msg, err := domain.EncodeEvent(typ, data)
	if err != nil {
		log.Printf("client %s: encode %s: %v", c.playerID, typ, err)
		return
	}
	c.Send(msg)
}

func (c *Client) sendError(err error) {
	if data, encErr := domain.EncodeError(err); encErr == nil {
		c.Send(data)
	}
}
