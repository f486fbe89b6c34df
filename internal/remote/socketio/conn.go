package socketio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/crypto"
	"github.com/bhandras/delight-chat/pkg/logger"
)

// DefaultPath is the Socket.IO endpoint path of the chat backend.
const DefaultPath = "/v1/chat"

var (
	// ErrNotConnected is returned when a request is made without a live
	// socket.
	ErrNotConnected = errors.New("not connected")

	// ErrAckTimeout is returned when the server does not acknowledge a
	// request in time.
	ErrAckTimeout = errors.New("ack timeout")
)

// Emitter is the request/response and push surface a Channel needs from the
// connection.
type Emitter interface {
	// EmitWithAck sends event and waits for the server's acknowledgement.
	EmitWithAck(event string, data map[string]any, timeout time.Duration) (map[string]any, error)
	// Handle registers fn for a pushed event and returns a function that
	// removes it.
	Handle(event string, fn func(map[string]any)) (off func())
	Connected() bool
}

// Conn is a user-scoped Socket.IO connection to the chat backend. It
// implements chat.Client and Emitter.
type Conn struct {
	serverURL string
	path      string
	token     string
	deviceID  string
	user      chat.User

	mu            sync.RWMutex
	socket        *socket.Socket
	connected     bool
	everConnected bool
	attached      map[string]bool
	handlers      map[string]map[int]func(map[string]any)
	listeners     map[int]chat.Handler
	nextID        int
	closeOnce     sync.Once
}

// NewConn prepares a connection for the user named by token. Call Connect to
// dial.
func NewConn(serverURL, path, token string) (*Conn, error) {
	user, err := crypto.UserFromToken(token)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = DefaultPath
	}
	return &Conn{
		serverURL: serverURL,
		path:      path,
		token:     token,
		user:      user,
		attached:  make(map[string]bool),
		handlers:  make(map[string]map[int]func(map[string]any)),
		listeners: make(map[int]chat.Handler),
	}, nil
}

// SetDeviceID identifies this installation to the server. It must be called
// before Connect.
func (c *Conn) SetDeviceID(id string) {
	c.deviceID = id
}

// User returns the user the token was issued for.
func (c *Conn) User() chat.User {
	return c.user
}

// On subscribes h to connection signals: connection.established on the first
// connect, connection.recovered on every reconnect and connection.changed on
// disconnect.
func (c *Conn) On(h chat.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = h
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Handle registers fn for a pushed server event. Handlers run in delivery
// order on the socket's goroutine and must not block.
func (c *Conn) Handle(event string, fn func(map[string]any)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]func(map[string]any))
	}
	c.handlers[event][id] = fn
	sock := c.socket
	c.mu.Unlock()

	if sock != nil {
		c.attach(sock, event)
	}
	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

// Connect establishes the Socket.IO connection. It returns once the dial is
// initiated; use WaitForConnect to block until the handshake completes.
func (c *Conn) Connect() error {
	logger.Debugf("Connecting to Socket.IO: %s (path: %s)", c.serverURL, c.path)

	opts := socket.DefaultOptions()
	opts.SetPath(c.path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	auth := map[string]any{
		"token":      c.token,
		"clientType": "user-scoped",
	}
	if c.deviceID != "" {
		auth["deviceId"] = c.deviceID
	}
	opts.SetAuth(auth)

	sock, err := socket.Connect(c.serverURL, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.socket = sock
	events := make([]string, 0, len(c.handlers))
	for event := range c.handlers {
		events = append(events, event)
	}
	c.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		c.mu.Lock()
		c.connected = true
		recovered := c.everConnected
		c.everConnected = true
		c.mu.Unlock()

		logger.Debugf("Socket.IO connected! ID: %s", sock.Id())
		if recovered {
			c.signal(chat.Event{Type: chat.EventConnectionRecovered, Online: true})
		} else {
			c.signal(chat.Event{Type: chat.EventConnectionEstablished, Online: true})
		}
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		logger.Infof("Socket.IO disconnected: %s", reason)
		c.signal(chat.Event{Type: chat.EventConnectionChanged, Online: false})
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("Socket.IO connection error: %v", args[0])
		}
	})

	for _, event := range events {
		c.attach(sock, event)
	}
	return nil
}

func (c *Conn) attach(sock *socket.Socket, event string) {
	c.mu.Lock()
	if c.attached[event] {
		c.mu.Unlock()
		return
	}
	c.attached[event] = true
	c.mu.Unlock()

	sock.On(types.EventName(event), func(args ...any) {
		logger.Tracef("Received event: %s", event)

		var data map[string]any
		if len(args) > 0 {
			if m, ok := args[0].(map[string]any); ok {
				data = m
			}
		}

		c.mu.RLock()
		fns := make([]func(map[string]any), 0, len(c.handlers[event]))
		for _, fn := range c.handlers[event] {
			fns = append(fns, fn)
		}
		c.mu.RUnlock()

		for _, fn := range fns {
			fn(data)
		}
	})
}

func (c *Conn) signal(e chat.Event) {
	e.ReceivedAt = time.Now()
	c.mu.RLock()
	hs := make([]chat.Handler, 0, len(c.listeners))
	for _, h := range c.listeners {
		hs = append(hs, h)
	}
	c.mu.RUnlock()
	for _, h := range hs {
		h(e)
	}
}

// WaitForConnect waits for the socket to report connected or times out.
func (c *Conn) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Connected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.Connected()
}

// EmitWithAck sends an event and waits for an ACK response.
func (c *Conn) EmitWithAck(event string, data map[string]any, timeout time.Duration) (map[string]any, error) {
	c.mu.RLock()
	sock := c.socket
	c.mu.RUnlock()

	if sock == nil {
		return nil, ErrNotConnected
	}

	logger.Tracef("Sending event with ack: %s", event)

	resultCh := make(chan map[string]any, 1)
	errCh := make(chan error, 1)

	sock.Emit(event, data, func(args []any, err error) {
		if err != nil {
			errCh <- err
			return
		}
		if len(args) == 0 {
			resultCh <- nil
			return
		}
		if payload, ok := args[0].(map[string]any); ok {
			resultCh <- payload
			return
		}
		resultCh <- nil
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res, nil
	case err := <-errCh:
		return nil, err
	case <-timer.C:
		return nil, ErrAckTimeout
	}
}

// Connected reports whether the socket is currently connected.
func (c *Conn) Connected() bool {
	c.mu.RLock()
	sock := c.socket
	connected := c.connected
	c.mu.RUnlock()

	if connected {
		return true
	}
	return sock != nil && sock.Connected()
}

// Close disconnects the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		sock := c.socket
		c.socket = nil
		c.connected = false
		c.mu.Unlock()

		if sock != nil {
			sock.Disconnect()
		}
	})
	return nil
}

var (
	_ chat.Client = (*Conn)(nil)
	_ Emitter     = (*Conn)(nil)
)
