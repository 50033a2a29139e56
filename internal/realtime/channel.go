package realtime

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is a channel's position in its connection lifecycle. Retry
// behavior hangs entirely on the distinction between the two closed
// states: an intentional close is final, an unexpected one schedules a
// reconnect.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosedIntentional
	StateClosedUnexpected
	StateReconnectScheduled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedIntentional:
		return "closed-intentional"
	case StateClosedUnexpected:
		return "closed-unexpected"
	case StateReconnectScheduled:
		return "reconnect-scheduled"
	}
	return "unknown"
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var errNotOpen = errors.New("channel is not open")

// Channel maintains one websocket connection. The dial URL is re-derived
// on every attempt so a reconnect after a token refresh authenticates
// with the fresh token.
type Channel struct {
	name           string
	urlFn          func() string
	onEvent        func(data []byte)
	onState        func(state State)
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	send  chan interface{}
	timer *time.Timer

	// gen invalidates pump goroutines from superseded connections.
	gen int
}

// NewChannel builds a channel; Open starts it. onState may be nil.
func NewChannel(name string, urlFn func() string, reconnectDelay time.Duration, onEvent func([]byte), onState func(State)) *Channel {
	return &Channel{
		name:           name,
		urlFn:          urlFn,
		onEvent:        onEvent,
		onState:        onState,
		reconnectDelay: reconnectDelay,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:          StateIdle,
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open dials asynchronously. A channel that is already connecting or
// open is left alone.
func (c *Channel) Open() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.setStateLocked(StateConnecting)
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.connect(gen)
}

// Close tears the connection down deliberately, using the normal-closure
// code. A closed channel never reconnects on its own.
func (c *Channel) Close() {
	c.mu.Lock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
	alreadyClosed := c.state == StateClosedIntentional
	c.setStateLocked(StateClosedIntentional)
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		conn.Close()
	}
	if !alreadyClosed {
		log.Printf("[ws:%s] closed", c.name)
	}
}

// Send queues an outbound payload. Fails fast when the channel is not
// open or the send buffer is full.
func (c *Channel) Send(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen || c.send == nil {
		return errNotOpen
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (c *Channel) connect(gen int) {
	url := c.urlFn()
	conn, _, err := c.dialer.Dial(url, nil)

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		log.Printf("[ws:%s] dial failed: %v", c.name, err)
		c.disconnected(gen, false)
		return
	}

	c.conn = conn
	c.send = make(chan interface{}, 64)
	c.setStateLocked(StateOpen)
	send := c.send
	c.mu.Unlock()

	log.Printf("[ws:%s] connected", c.name)
	go c.writePump(gen, conn, send)
	go c.readPump(gen, conn)
}

func (c *Channel) readPump(gen int, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			normal := websocket.IsCloseError(err, websocket.CloseNormalClosure)
			if !normal && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway) {
				log.Printf("[ws:%s] read error: %v", c.name, err)
			}
			c.disconnected(gen, normal)
			return
		}
		if c.onEvent != nil {
			c.onEvent(data)
		}
	}
}

func (c *Channel) writePump(gen int, conn *websocket.Conn, send <-chan interface{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(payload); err != nil {
				log.Printf("[ws:%s] write error: %v", c.name, err)
				return
			}
		case <-ticker.C:
			c.mu.Lock()
			stale := c.gen != gen
			c.mu.Unlock()
			if stale {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnected handles the end of a connection. A normal closure (ours
// or the server's) is final; anything else schedules one reconnect after
// the configured delay.
func (c *Channel) disconnected(gen int, normal bool) {
	c.mu.Lock()
	if c.gen != gen || c.state == StateClosedIntentional {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.send != nil {
		close(c.send)
		c.send = nil
	}

	if normal {
		c.setStateLocked(StateClosedIntentional)
		c.mu.Unlock()
		log.Printf("[ws:%s] closed by peer", c.name)
		return
	}

	c.setStateLocked(StateClosedUnexpected)
	c.setStateLocked(StateReconnectScheduled)
	c.timer = time.AfterFunc(c.reconnectDelay, c.retry)
	c.mu.Unlock()
	log.Printf("[ws:%s] connection lost, reconnecting in %s", c.name, c.reconnectDelay)
}

func (c *Channel) retry() {
	c.mu.Lock()
	if c.state != StateReconnectScheduled {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting)
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.connect(gen)
}

func (c *Channel) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.onState != nil {
		// Callbacks must not re-enter the channel; deliver async.
		go c.onState(state)
	}
}
