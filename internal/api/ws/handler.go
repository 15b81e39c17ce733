package ws

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/GriffinCanCode/scratchpad/internal/host"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scratchpad/internal/protocol"
	"github.com/GriffinCanCode/scratchpad/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Handler serves one host channel per websocket connection
type Handler struct {
	options  host.Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler. An empty origins list accepts
// any origin.
func NewHandler(opts host.Options, origins []string) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		options: opts,
		logger:  logger,
		metrics: opts.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
			},
		},
	}
}

// conn serializes writes to one websocket
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

func (c *conn) send(msgType string, v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordWSMessage("out", msgType)
	}
	return nil
}

func (c *conn) sendError(message string) {
	_ = c.send(protocol.TypeError, protocol.NewError(message))
}

// HandleConnection upgrades the request and serves messages until the
// client disconnects
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	ws.SetReadLimit(utils.MaxMessageSize)

	connID := uuid.NewString()
	opts := h.options
	opts.Logger = h.logger.With(zap.String("conn_id", connID))
	channel := host.NewChannel(opts)
	defer channel.Close()

	cn := &conn{ws: ws, logger: opts.Logger, metrics: h.metrics}

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts.Logger.Info("WebSocket connected", zap.String("channel_id", channel.ID().String()))
	defer opts.Logger.Info("WebSocket disconnected")

	_ = cn.send(protocol.TypeSystem, protocol.NewSystem(channel.ID().String()))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				opts.Logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			if h.metrics != nil {
				h.metrics.RecordWSMessage("in", "invalid")
			}
			cn.sendError(err.Error())
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", msg.Type)
		}

		switch msg.Type {
		case protocol.TypeExecute:
			h.handleExecute(ctx, cn, channel, msg)
		case protocol.TypeTerminate:
			channel.Terminate()
		case protocol.TypePing:
			_ = cn.send(protocol.TypePong, protocol.NewPong())
		}
	}
}

// handleExecute starts (or schedules) a run and delivers its completion
// from a separate goroutine so the read loop stays responsive
func (h *Handler) handleExecute(ctx context.Context, cn *conn, channel *host.Channel, msg protocol.Inbound) {
	future, err := channel.Schedule(msg.RunRequest(), msg.Delay())
	if err != nil {
		cn.sendError(err.Error())
		return
	}

	go func() {
		result, err := future.Wait(ctx)
		if err != nil {
			if !errors.Is(err, host.ErrAbandoned) && !errors.Is(err, context.Canceled) {
				cn.logger.Warn("Run wait failed", zap.Error(err))
			}
			return
		}
		_ = cn.send(protocol.TypeComplete, protocol.NewComplete(result))
	}()
}
