package remote

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/dappbridge/internal/web3/bridge"
)

// Handler upgrades renderer connections and gives each one a tab.
type Handler struct {
	manager  *bridge.Manager
	cfg      Config
	upgrader websocket.Upgrader
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a handler. An empty allowedOrigins accepts any
// renderer origin.
func NewHandler(manager *bridge.Manager, cfg Config, allowedOrigins []string, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		manager: manager,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		metrics: metrics,
		logger:  logger.Named("remote"),
	}
}

// HandleConnection serves one renderer for the life of its WebSocket. The
// optional url query parameter is the first page, routed through the
// navigation guard.
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	ctx := c.Request.Context()
	conn := NewConn(ws, h.cfg, h.metrics, h.logger)
	tab := h.manager.Open("about:blank", bridge.Host{
		Surface:   conn,
		Confirmer: conn,
		Opener:    conn,
		Links:     conn,
		Picker:    conn,
		Signer:    conn,
		Navigator: conn,
		Listeners: conn.Listeners(),
	})
	conn.Attach(tab)
	defer h.manager.Close(tab.ID())

	ready := newFrame(FrameReady)
	ready.TabID = tab.ID().String()
	ready.URL = tab.URL()
	ready.Script = tab.PreloadScript()
	if err := conn.send(ready); err != nil {
		h.logger.Warn("Failed to greet renderer", zap.Error(err))
		return
	}

	if start := c.Query("url"); start != "" {
		go tab.Go(ctx, start)
	}

	h.logger.Info("Renderer connected",
		zap.String("conn_id", conn.ID()),
		zap.String("tab_id", tab.ID().String()))

	if err := conn.Serve(ctx); err != nil {
		h.logger.Debug("Renderer connection ended with error", zap.Error(err))
	}
	h.logger.Info("Renderer disconnected", zap.String("tab_id", tab.ID().String()))
}
