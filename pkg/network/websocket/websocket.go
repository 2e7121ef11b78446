package websocket

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

const (
	maxMessageSize = 10 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
)

type (
	MessageHandler func(message []byte, err error)
	WS             struct {
		OnMessage MessageHandler
		Done      chan struct{}

		conn     deadlinedConn
		send     chan []byte
		once     sync.Once
		pingPong bool
		server   bool
		log      *logger.Logger
	}
	Upgrader struct {
		websocket.Upgrader
	}
)

var DefaultUpgrader = Upgrader{Upgrader: websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
}}

func NewUpgrader(origin string) *Upgrader {
	u := Upgrader{Upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteBufferPool: &sync.Pool{},
	}}
	switch origin {
	case "*":
		u.CheckOrigin = func(r *http.Request) bool { return true }
	case "":
	default:
		u.CheckOrigin = func(r *http.Request) bool { return origin == r.Header.Get("Origin") }
	}
	return &u
}

// NewServer initializes a new websocket server connection with an HTTP upgrade.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*WS, error) {
	conn, err := DefaultUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewServerWithConn(conn, log)
}

func NewServerWithConn(conn *websocket.Conn, log *logger.Logger) (*WS, error) {
	if conn == nil {
		return nil, errors.New("null connection")
	}
	return newSocket(conn, true, log), nil
}

func NewClient(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, server bool, log *logger.Logger) *WS {
	return &WS{
		conn:     deadlinedConn{sock: conn, wt: writeWait},
		send:     make(chan []byte, 32),
		Done:     make(chan struct{}),
		pingPong: server,
		server:   server,
		log:      log.Extend(log.With().Str("m", "ws")),
	}
}

func (ws *WS) IsServer() bool { return ws.server }

// Listen starts the reader and writer pumps of the connection.
// The OnMessage callback should be set before the call.
func (ws *WS) Listen() {
	go ws.writer()
	go ws.reader()
}

func (ws *WS) Write(data []byte) {
	select {
	case ws.send <- data:
	case <-ws.Done:
	}
}

func (ws *WS) Close() {
	_ = ws.conn.control(websocket.CloseMessage, []byte{})
	ws.shut()
}

func (ws *WS) shut() {
	ws.once.Do(func() {
		_ = ws.conn.close()
		close(ws.Done)
	})
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader() {
	defer ws.shut()
	ws.conn.sock.SetReadLimit(maxMessageSize)
	if ws.pingPong {
		// the server sends pings and expects pongs back in time
		_ = ws.conn.sock.SetReadDeadline(time.Now().Add(pongTime))
		ws.conn.sock.SetPongHandler(func(string) error {
			return ws.conn.sock.SetReadDeadline(time.Now().Add(pongTime))
		})
	} else {
		_ = ws.conn.sock.SetReadDeadline(time.Now().Add(pongTime))
		ws.conn.sock.SetPingHandler(func(m string) error {
			_ = ws.conn.sock.SetReadDeadline(time.Now().Add(pongTime))
			return ws.conn.control(websocket.PongMessage, []byte(m))
		})
	}
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.log.Error().Err(err).Msg("ws read fail")
			}
			break
		}
		ws.log.Debug().Msgf("read: %v", string(message))
		ws.OnMessage(message, err)
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	ticker := time.NewTicker(pingTime)
	if !ws.pingPong {
		ticker.Stop()
	}
	defer func() {
		ticker.Stop()
		ws.shut()
	}()
	for {
		select {
		case message := <-ws.send:
			ws.log.Debug().Msgf("write: %v", string(message))
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.conn.control(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ws.Done:
			return
		}
	}
}
