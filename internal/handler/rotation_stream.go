package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
	"github.com/noah-isme/attendo-api/pkg/response"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingInterval = (streamPongWait * 9) / 10
	streamRefresh      = time.Second
)

// RotationStream pushes rotation snapshots to the teacher's display over a websocket.
type RotationStream struct {
	service  rotationService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewRotationStream builds the stream handler. allowedOrigins empty accepts any origin.
func NewRotationStream(service rotationService, allowedOrigins []string, logger *zap.Logger) *RotationStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &RotationStream{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Serve godoc
// @Summary Live rotation snapshots
// @Description Upgrades to a websocket that receives a snapshot on every rotation and once per second for the countdown.
// @Tags Rotation
// @Router /rotation/stream [get]
func (h *RotationStream) Serve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("rotation stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.service.Subscribe(claims.UserID)
	defer unsubscribe()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	refresh := time.NewTicker(streamRefresh)
	defer refresh.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case snap := <-updates:
			if err := h.write(conn, snap); err != nil {
				return
			}
		case <-refresh.C:
			snap := h.service.Snapshot(claims.UserID)
			if !snap.Active {
				continue
			}
			if err := h.write(conn, snap); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *RotationStream) write(conn *websocket.Conn, payload interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(payload); err != nil {
		h.logger.Debug("rotation stream write failed", zap.Error(err))
		return err
	}
	return nil
}

// readPump drains client frames so pongs and close frames are processed.
func (h *RotationStream) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
