package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"duel-service/internal/engine"
	"duel-service/internal/middleware"
	"duel-service/internal/present"
	pkgAuth "duel-service/pkg/auth"
	"duel-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readTimeout  = 60 * time.Second
	pingEvery    = 25 * time.Second
	writeTimeout = 5 * time.Second
	submitWait   = 5 * time.Second
)

// Sessions is what a socket needs from the game manager.
type Sessions interface {
	Get(sessionID string) (*engine.Coordinator, error)
	Submit(ctx context.Context, a engine.Action) error
}

// Players resolves an authenticated user into a seat-ready player.
type Players interface {
	Player(ctx context.Context, userID int64) (engine.Player, error)
}

type Handler struct {
	sessions Sessions
	hub      *present.Hub
	players  Players
}

func NewHandler(sessions Sessions, hub *present.Hub, players Players) *Handler {
	return &Handler{sessions: sessions, hub: hub, players: players}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// incoming is one client frame: {"type":"pick","index":2}.
type incoming struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// HandleSessionWS streams a session's state to the caller and accepts actions
// on the same socket. Spectators receive the public view.
func (h *Handler) HandleSessionWS(c *gin.Context) {
	sessionID := c.Param("id")

	token, err := middleware.RequestToken(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := pkgAuth.ParseUserToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	player, err := h.players.Player(c.Request.Context(), claims.SubjectID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.sessions.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection",
		zap.String("sessionID", sessionID),
		zap.Int64("userID", player.ID),
	)

	outbound, unsubscribe := h.hub.Subscribe(sessionID, player.ID)
	cl := &client{
		conn:        conn,
		player:      player,
		sessionID:   sessionID,
		sessions:    h.sessions,
		outbound:    outbound,
		unsubscribe: unsubscribe,
		replies:     make(chan present.Message, 4),
		done:        make(chan struct{}),
	}
	cl.run()
}

type client struct {
	conn      *websocket.Conn
	player    engine.Player
	sessionID string
	sessions  Sessions

	outbound    <-chan present.Message
	unsubscribe func()
	// replies carries errors back to the single writer goroutine.
	replies chan present.Message
	done    chan struct{}
}

func (c *client) run() {
	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	go c.writePump()
	c.readPump()
}

func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.unsubscribe()
		c.conn.Close()
	}()

	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.Int64("userID", c.player.ID), zap.String("sessionID", c.sessionID))
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if err := c.handle(message); err != nil {
			c.reply(present.Message{Type: "error", Data: gin.H{"message": err.Error()}})
		}
	}
}

func (c *client) handle(message []byte) error {
	var in incoming
	if err := json.Unmarshal(message, &in); err != nil {
		return err
	}
	if in.Type == "" {
		return nil
	}
	kind, err := engine.ParseVerb(in.Type)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), submitWait)
	defer cancel()
	return c.sessions.Submit(ctx, engine.Action{
		SessionID: c.sessionID,
		ActorID:   c.player.ID,
		ActorName: c.player.Name,
		Kind:      kind,
		Index:     in.Index,
	})
}

// reply drops the message when the writer is gone or backed up.
func (c *client) reply(msg present.Message) {
	select {
	case c.replies <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				// The final snapshot has been delivered.
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session over"),
					time.Now().Add(writeTimeout))
				return
			}
			if !c.write(msg) {
				return
			}
		case msg := <-c.replies:
			if !c.write(msg) {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) write(msg present.Message) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Log.Info("WS write error", zap.Error(err), zap.Int64("userID", c.player.ID), zap.String("sessionID", c.sessionID))
		return false
	}
	return true
}
