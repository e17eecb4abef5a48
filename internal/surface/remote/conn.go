package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/dappbridge/internal/shared/id"
	"github.com/GriffinCanCode/dappbridge/internal/web3/bridge"
	"github.com/GriffinCanCode/dappbridge/internal/web3/methods"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
)

var (
	ErrClosed   = errors.New("renderer disconnected")
	ErrDeclined = errors.New("renderer declined the prompt")
)

// Page is the tab side of a remote surface.
type Page interface {
	ID() id.TabID
	URL() string
	Post(raw []byte) error
	OnLoad(ctx context.Context, rawURL string)
	OnShouldStartLoad(ctx context.Context, rawURL string) bool
	Go(ctx context.Context, rawURL string) navigation.Outcome
	PreloadScript() string
}

// Config bounds a connection.
type Config struct {
	PromptTimeout time.Duration
	WriteTimeout  time.Duration
	// PingInterval <= 0 disables keep-alive pings and read deadlines.
	PingInterval time.Duration
	ReadLimit    int64
	SearchEngine navigation.SearchEngine
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		PromptTimeout: 2 * time.Minute,
		WriteTimeout:  10 * time.Second,
		PingInterval:  30 * time.Second,
		ReadLimit:     1 << 20,
		SearchEngine:  navigation.Google,
	}
}

type reply struct {
	data json.RawMessage
	err  string
}

// Conn is a page surface whose renderer lives on the other end of a
// WebSocket. It also answers the tab's prompts by asking the renderer.
type Conn struct {
	id      string
	ws      *websocket.Conn
	cfg     Config
	metrics *monitoring.Metrics
	logger  *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	page    Page
	pending map[string]chan reply // by prompt id
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded connection.
func NewConn(ws *websocket.Conn, cfg Config, metrics *monitoring.Metrics, logger *zap.Logger) *Conn {
	def := DefaultConfig()
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = def.PromptTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.SearchEngine == "" {
		cfg.SearchEngine = def.SearchEngine
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	connID := uuid.NewString()
	return &Conn{
		id:      connID,
		ws:      ws,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("remote").With(zap.String("conn_id", connID)),
		pending: make(map[string]chan reply),
		done:    make(chan struct{}),
	}
}

// ID identifies the connection in logs.
func (c *Conn) ID() string { return c.id }

// Attach connects the tab this renderer hosts.
func (c *Conn) Attach(page Page) {
	c.mu.Lock()
	c.page = page
	c.mu.Unlock()
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Listeners forwards tab events the renderer shows in its chrome.
func (c *Conn) Listeners() bridge.Listeners {
	return bridge.Listeners{
		OnAccountsChanged: func(accounts []string) {
			_ = c.sendData(FrameAccountsChanged, accounts)
		},
		OnWindowInfo: func(info bridge.WindowInfo) {
			_ = c.sendData(FrameWindowInfo, info)
		},
	}
}

// Inject asks the renderer to run script in the page.
func (c *Conn) Inject(_ context.Context, script string) error {
	f := newFrame(FrameInject)
	f.Script = script
	return c.send(f)
}

// Reload asks the renderer to reload the page.
func (c *Conn) Reload(_ context.Context) error {
	return c.send(newFrame(FrameReload))
}

// Close asks the renderer to close the page and ends the connection.
func (c *Conn) Close(_ context.Context) error {
	err := c.send(newFrame(FrameClose))
	c.shutdown()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// SelectAccount asks the user which account to expose to origin.
func (c *Conn) SelectAccount(ctx context.Context, originKey string, accounts []string) (string, error) {
	raw, err := c.prompt(ctx, PromptSelectAccount, map[string]any{"origin": originKey, "accounts": accounts})
	if err != nil {
		if errors.Is(err, ErrDeclined) || errors.Is(err, ErrClosed) {
			return "", wallet.ErrSelectionCancelled
		}
		return "", err
	}
	var account string
	if err := sonic.Unmarshal(raw, &account); err != nil {
		return "", fmt.Errorf("failed to decode selected account: %w", err)
	}
	if account == "" {
		return "", wallet.ErrSelectionCancelled
	}
	return account, nil
}

// ConfirmPhishing asks whether to open a flagged URL anyway.
func (c *Conn) ConfirmPhishing(ctx context.Context, rawURL string) (bool, error) {
	return c.confirm(ctx, PromptConfirmPhishing, rawURL)
}

// ConfirmExternal asks whether to leave the wallet for another app.
func (c *Conn) ConfirmExternal(ctx context.Context, rawURL string) (bool, error) {
	return c.confirm(ctx, PromptConfirmExternal, rawURL)
}

// CanOpen asks the renderer's OS whether some app handles rawURL.
func (c *Conn) CanOpen(ctx context.Context, rawURL string) (bool, error) {
	return c.confirm(ctx, PromptCanOpen, rawURL)
}

// Open hands rawURL to the renderer's OS.
func (c *Conn) Open(_ context.Context, rawURL string) error {
	f := newFrame(FrameOpenExternal)
	f.URL = rawURL
	return c.send(f)
}

// HandleDynamicLink hands a wallet dynamic link to the host app.
func (c *Conn) HandleDynamicLink(_ context.Context, link string) error {
	f := newFrame(FrameDynamicLink)
	f.URL = link
	return c.send(f)
}

// OpenNetworkSettings shows the wallet's network screen for origin.
func (c *Conn) OpenNetworkSettings(_ context.Context, originKey string) error {
	return c.sendData(FrameNetworkSettings, map[string]string{"origin": originKey})
}

// Sign asks the user to approve req and returns the renderer's result.
func (c *Conn) Sign(ctx context.Context, req methods.SignRequest) (any, error) {
	raw, err := c.prompt(ctx, PromptSign, req)
	if err != nil {
		if errors.Is(err, ErrDeclined) || errors.Is(err, ErrClosed) {
			return nil, methods.ErrRejected
		}
		return nil, err
	}
	return raw, nil
}

func (c *Conn) confirm(ctx context.Context, kind, rawURL string) (bool, error) {
	raw, err := c.prompt(ctx, kind, map[string]string{"url": rawURL})
	if err != nil {
		if errors.Is(err, ErrDeclined) {
			return false, nil
		}
		return false, err
	}
	var ok bool
	if err := sonic.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("failed to decode %s answer: %w", kind, err)
	}
	return ok, nil
}

// prompt sends a prompt frame and waits for its result, the prompt
// timeout, ctx or the connection ending.
func (c *Conn) prompt(ctx context.Context, kind string, payload any) (json.RawMessage, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s prompt: %w", kind, err)
	}

	promptID := id.NewPromptID().String()
	ch := make(chan reply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[promptID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, promptID)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PromptTimeout)
	defer cancel()

	f := newFrame(FramePrompt)
	f.ID = promptID
	f.Kind = kind
	f.Data = data
	if err := c.send(f); err != nil {
		c.recordPrompt(kind, "error")
		return nil, err
	}

	select {
	case r := <-ch:
		switch r.err {
		case "":
			c.recordPrompt(kind, "answered")
			return r.data, nil
		case ReplyRejected, ReplyCancelled:
			c.recordPrompt(kind, "declined")
			return nil, ErrDeclined
		default:
			c.recordPrompt(kind, "error")
			return nil, fmt.Errorf("%s prompt failed: %s", kind, r.err)
		}
	case <-ctx.Done():
		c.recordPrompt(kind, "timeout")
		return nil, ctx.Err()
	case <-c.done:
		c.recordPrompt(kind, "disconnected")
		return nil, ErrClosed
	}
}

func (c *Conn) resolve(f Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Result for unknown prompt", zap.String("prompt_id", f.ID))
		return
	}
	select {
	case ch <- reply{data: f.Data, err: f.Error}:
	default:
	}
}

// Serve reads frames until the renderer disconnects or ctx ends.
func (c *Conn) Serve(ctx context.Context) error {
	defer c.shutdown()

	c.ws.SetReadLimit(c.cfg.ReadLimit)
	if c.cfg.PingInterval > 0 {
		wait := 2 * c.cfg.PingInterval
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(wait))
		})
		go c.pingLoop()
	}

	go func() {
		select {
		case <-ctx.Done():
			c.shutdown()
		case <-c.done:
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
				return err
			}
			return nil
		}

		var f Frame
		if err := sonic.Unmarshal(data, &f); err != nil {
			c.sendError("malformed frame")
			continue
		}
		if c.metrics != nil {
			c.metrics.RecordWSMessage("in", f.Type)
		}
		c.dispatch(ctx, f)
	}
}

func (c *Conn) dispatch(ctx context.Context, f Frame) {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()

	if page == nil && f.Type != FramePing && f.Type != FramePromptResult {
		c.sendError("no tab attached")
		return
	}

	switch f.Type {
	case FrameMessage:
		if err := page.Post(f.pageMessage()); err != nil {
			c.sendError(err.Error())
		}
	case FrameLoad:
		page.OnLoad(ctx, f.URL)
	case FrameShouldStart:
		allow := page.OnShouldStartLoad(ctx, f.URL)
		res := newFrame(FrameShouldStartResult)
		res.ID = f.ID
		res.URL = f.URL
		res.Allow = &allow
		_ = c.send(res)
	case FrameNavigate:
		target := navigation.NormalizeInput(f.URL, c.cfg.SearchEngine)
		go page.Go(ctx, target)
	case FramePromptResult:
		c.resolve(f)
	case FramePing:
		_ = c.send(newFrame(FramePong))
	default:
		c.sendError("unknown message type")
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) send(f Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := sonic.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", f.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", f.Type, err)
	}
	if c.metrics != nil {
		c.metrics.RecordWSMessage("out", f.Type)
	}
	return nil
}

func (c *Conn) sendData(typ string, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", typ, err)
	}
	f := newFrame(typ)
	f.Data = data
	if err := c.send(f); err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Debug("Failed to send frame", zap.String("type", typ), zap.Error(err))
		return err
	}
	return nil
}

func (c *Conn) sendError(message string) {
	f := newFrame(FrameError)
	f.Message = message
	_ = c.send(f)
}

func (c *Conn) recordPrompt(kind, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordPrompt(kind, outcome)
	}
}

// shutdown ends the connection once.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}
