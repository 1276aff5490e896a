package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Limits tune one websocket connection.
type Limits struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	JoinLimit    int
	JoinInterval time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.ReadLimit <= 0 {
		l.ReadLimit = 16 << 20
	}
	if l.PingPeriod <= 0 {
		l.PingPeriod = 54 * time.Second
	}
	if l.WriteWait <= 0 {
		l.WriteWait = 10 * time.Second
	}
	if l.SendBuffer <= 0 {
		l.SendBuffer = 256
	}
	if l.JoinLimit <= 0 {
		l.JoinLimit = 5
	}
	if l.JoinInterval <= 0 {
		l.JoinInterval = 10 * time.Second
	}
	return l
}

// Identity is what the HTTP layer knows about the client before it joins a room.
type Identity struct {
	ClientToken string
	Username    string
	Avatar      string
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	limits   Limits
	joins    *JoinLimiter
	validate *validator.Validate
}

func NewSignalWSController(o *orch.Orchestrator, limits Limits) *SignalWSController {
	limits = limits.withDefaults()
	return &SignalWSController{
		Orch:     o,
		limits:   limits,
		joins:    NewJoinLimiter(limits.JoinLimit, limits.JoinInterval),
		validate: validator.New(),
	}
}

// WsSignalConn is the transport endpoint of one connection; writes go through send.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool

	// per-connection state owned by the read loop
	identity Identity
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until either side goes away.
// Every connection gets a fresh sid and fresh handlers; nothing is reused across reconnects.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, id Identity) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", id.ClientToken).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:     ws,
		send:     make(chan core.Frame, ctl.limits.SendBuffer),
		identity: id,
	}

	guest := &domain.User{ID: domain.UserID(sid), Username: "guest", Avatar: id.Avatar}
	sess := core.NewMemberSession(domain.NewMember(guest), conn)
	ctx, cancel := context.WithCancel(ctx)
	// closing the socket is what unblocks the read loop on kick or shutdown
	context.AfterFunc(ctx, conn.Close)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
