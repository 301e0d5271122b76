// Package approval is the human-in-the-loop surface: a small HTTP API where
// managers review escalated schedules, a websocket stream of engine status,
// and the prometheus scrape endpoint.
package approval

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/config"
	"rosterforge/internal/roster"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PendingApproval is an escalated run waiting for a manager's decision. The
// correlation ID is the resumption token: posting a decision against it wakes
// the paused coordinator.
type PendingApproval struct {
	CorrelationID string               `json:"correlation_id"`
	ReceivedAt    time.Time            `json:"received_at"`
	Violations    []roster.Violation   `json:"violations"`
	Fixes         []*roster.Resolution `json:"partial_fixes,omitempty"`
}

// decisionRequest is the POST body for an approval decision.
type decisionRequest struct {
	Approved  bool   `json:"approved"`
	DecidedBy string `json:"decided_by"`
	Note      string `json:"note"`
}

// statusEvent is the envelope streamed to websocket clients.
type statusEvent struct {
	Type          string    `json:"type"`
	Sender        string    `json:"sender"`
	Recipient     string    `json:"recipient,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Phase         string    `json:"phase,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Err           string    `json:"error,omitempty"`
}

// Server hosts the approval API. It subscribes to escalation messages on the
// bus and publishes the human decisions back.
type Server struct {
	b        *bus.Bus
	log      *zap.SugaredLogger
	cfg      config.Server
	gatherer prometheus.Gatherer

	mu      sync.Mutex
	pending map[string]*PendingApproval
	clients map[chan []byte]bool
}

// New builds the server and subscribes it to escalations and, for the
// websocket stream, to every bus message.
func New(b *bus.Bus, log *zap.SugaredLogger, cfg config.Server, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		b:        b,
		log:      log.Named("approval"),
		cfg:      cfg,
		gatherer: gatherer,
		pending:  make(map[string]*PendingApproval),
		clients:  make(map[chan []byte]bool),
	}
	b.Subscribe(bus.TypeViolation, s.handleEscalation)
	b.SubscribeAll(s.broadcast)
	return s
}

// Router builds the gin engine. The API group is JWT-protected when a secret
// is configured; the metrics and websocket routes are open.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.Use(s.authMiddleware())
	api.GET("/approvals", s.listApprovals)
	api.POST("/approvals/:id", s.decide)

	router.GET("/ws", s.handleWebSocket)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	return router
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Infow("approval server listening", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) handleEscalation(msg bus.Message) {
	p, ok := msg.Payload.(bus.ViolationPayload)
	if !ok {
		return
	}
	s.mu.Lock()
	s.pending[msg.CorrelationID] = &PendingApproval{
		CorrelationID: msg.CorrelationID,
		ReceivedAt:    msg.Timestamp,
		Violations:    p.Violations,
		Fixes:         p.PartialFix,
	}
	s.mu.Unlock()
	s.log.Infow("escalation pending", "correlation", msg.CorrelationID, "violations", len(p.Violations))
}

func (s *Server) listApprovals(c *gin.Context) {
	s.mu.Lock()
	out := make([]*PendingApproval, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) decide(c *gin.Context) {
	id := c.Param("id")
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	_, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending approval for " + id})
		return
	}

	s.b.Publish(bus.Message{
		Type:          bus.TypeApproval,
		Sender:        "approvals",
		Recipient:     "coordinator",
		CorrelationID: id,
		Payload: bus.ApprovalPayload{
			Approved:  req.Approved,
			DecidedBy: req.DecidedBy,
			Note:      req.Note,
		},
	})
	s.log.Infow("decision recorded", "correlation", id, "approved", req.Approved, "by", req.DecidedBy)
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// authMiddleware validates the Authorization header as an HMAC JWT. With no
// secret configured the API runs open, which is only acceptable for local
// development.
func (s *Server) authMiddleware() gin.HandlerFunc {
	if s.cfg.JWTSecret == "" {
		s.log.Warn("no JWT secret configured, approval API is unauthenticated")
		return func(c *gin.Context) { c.Next() }
	}
	secret := []byte(s.cfg.JWTSecret)
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// broadcast fans a bus message out to every websocket client. Slow clients
// drop messages rather than stall the bus.
func (s *Server) broadcast(msg bus.Message) {
	ev := statusEvent{
		Type:          string(msg.Type),
		Sender:        msg.Sender,
		Recipient:     msg.Recipient,
		CorrelationID: msg.CorrelationID,
		Timestamp:     msg.Timestamp,
	}
	if p, ok := msg.Payload.(bus.StatusPayload); ok {
		ev.Phase = p.Phase
		ev.Detail = p.Detail
		ev.Err = p.Err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	send := make(chan []byte, 256)
	s.mu.Lock()
	s.clients[send] = true
	s.mu.Unlock()

	go s.writePump(conn, send)
	go s.readPump(conn, send)
}

func (s *Server) writePump(conn *websocket.Conn, send chan []byte) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case message, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection until it closes, then unregisters the
// client. The stream is one-way; inbound frames are discarded.
func (s *Server) readPump(conn *websocket.Conn, send chan []byte) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, send)
		s.mu.Unlock()
		close(send)
		conn.Close()
	}()

	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debugw("websocket closed", "error", err)
			}
			return
		}
	}
}
