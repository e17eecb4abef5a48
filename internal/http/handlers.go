package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/domain/origin"
	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/shared/id"
	"github.com/GriffinCanCode/dappbridge/internal/web3/bridge"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
	"github.com/GriffinCanCode/dappbridge/internal/web3/phishing"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions *origin.Store
	tabs     *bridge.Manager
	guard    *navigation.Guard
	wallet   *wallet.Wallet
	phishing *phishing.Detector
	logger   *zap.Logger
}

// NewHandlers creates a new handlers instance. detector may be nil when
// phishing detection is disabled.
func NewHandlers(
	sessions *origin.Store,
	tabs *bridge.Manager,
	guard *navigation.Guard,
	w *wallet.Wallet,
	detector *phishing.Detector,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		tabs:     tabs,
		guard:    guard,
		wallet:   w,
		phishing: detector,
		logger:   logger.Named("http"),
	}
}

// Register mounts the REST routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:origin", h.GetSession)
	r.DELETE("/sessions/:origin", h.DeleteSession)

	r.GET("/tabs", h.ListTabs)
	r.DELETE("/tabs/:id", h.CloseTab)

	r.GET("/chains", h.ListChains)
	r.POST("/navigation/decide", h.DecideNavigation)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "dApp Bridge",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	phishingStatus := gin.H{"enabled": h.phishing != nil}
	if h.phishing != nil {
		stats := h.phishing.Stats()
		phishingStatus["version"] = stats.Version
		phishingStatus["entries"] = stats.Entries
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"tabs":     h.tabs.Len(),
		"sessions": h.sessions.Len(),
		"chain":    h.wallet.SelectedChain().IDHex(),
		"unlocked": h.wallet.IsUnlocked(),
		"phishing": phishingStatus,
	})
}

// ListSessions lists every origin session
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.sessions.List()
	active := 0
	for _, s := range sessions {
		if s.IsActive() {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"stats": gin.H{
			"total":  len(sessions),
			"active": active,
		},
	})
}

// GetSession returns the session of one origin
func (h *Handlers) GetSession(c *gin.Context) {
	key, ok := originParam(c)
	if !ok {
		return
	}

	sess, found := h.sessions.GetByOrigin(key)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DeleteSession clears what an origin has been granted. Tabs showing that
// origin are told their accounts are gone and reload.
func (h *Handlers) DeleteSession(c *gin.Context) {
	key, ok := originParam(c)
	if !ok {
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), key); err != nil {
		if errors.Is(err, origin.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Error("Failed to delete session", zap.String("origin", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"origin":  key,
	})
}

// ListTabs lists the live tabs
func (h *Handlers) ListTabs(c *gin.Context) {
	tabs := h.tabs.List()
	if tabs == nil {
		tabs = []bridge.TabInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"tabs":  tabs,
		"count": len(tabs),
	})
}

// CloseTab disposes a tab
func (h *Handlers) CloseTab(c *gin.Context) {
	tabID := id.TabID(c.Param("id"))
	if !h.tabs.Close(tabID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "tab not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListChains lists the networks the wallet can connect sites to
func (h *Handlers) ListChains(c *gin.Context) {
	chains := h.wallet.Chains().All()
	out := make([]gin.H, 0, len(chains))
	for _, ch := range chains {
		out = append(out, gin.H{
			"id":       ch.IDHex(),
			"name":     ch.Name,
			"currency": ch.Currency,
			"explorer": ch.Explorer,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"chains":   out,
		"selected": h.wallet.SelectedChain().IDHex(),
	})
}

// DecideRequest is the body of POST /navigation/decide.
type DecideRequest struct {
	URL string `json:"url" binding:"required"`
}

// DecideNavigation reports what the navigation guard would do with a URL.
// Nothing is opened and nobody is prompted.
func (h *Handlers) DecideNavigation(c *gin.Context) {
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Address-bar input without a scheme is normalised the way a tab would.
	target := req.URL
	if !strings.Contains(target, ":") {
		target = navigation.NormalizeInput(target, navigation.Google)
	}
	decision := h.guard.Decide(c.Request.Context(), target)
	c.JSON(http.StatusOK, gin.H{
		"url":      target,
		"origin":   navigation.OriginOf(target),
		"decision": decision,
	})
}

// originParam reads the :origin path parameter. Clients may send a full
// origin with its slashes escaped or a bare host, which is taken as https.
func originParam(c *gin.Context) (string, bool) {
	raw := c.Param("origin")
	key := navigation.OriginOf(navigation.PrefixURLWithProtocol(raw, "https://"))
	if raw == "" || key == navigation.WildcardOrigin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid origin"})
		return "", false
	}
	return key, true
}
