package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/domain/origin"
	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/dappbridge/internal/shared/id"
	"github.com/GriffinCanCode/dappbridge/internal/web3/inpage"
	"github.com/GriffinCanCode/dappbridge/internal/web3/jsonrpc"
	"github.com/GriffinCanCode/dappbridge/internal/web3/methods"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
)

// DefaultProviderName is the provider name used when a message omits one.
const DefaultProviderName = "metamask-provider"

var (
	ErrDisposed  = errors.New("tab disposed")
	ErrInboxFull = errors.New("tab inbox full")
)

// Surface is the page renderer a tab drives.
type Surface interface {
	Inject(ctx context.Context, script string) error
	Reload(ctx context.Context) error
	Close(ctx context.Context) error
}

// Sessions is the part of the origin store a tab uses.
type Sessions interface {
	methods.Sessions
	Watch(fn func(origin.Change)) (cancel func())
}

// WindowInfo is what a page reports about itself. Title is sanitised.
type WindowInfo struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Listeners receive tab events on the host side. Nil callbacks are
// skipped.
type Listeners struct {
	OnAccountsChanged func(accounts []string)
	OnWindowInfo      func(info WindowInfo)
	OnConsole         func(level string, args []string)
}

// Config configures one tab.
type Config struct {
	InitialURL          string
	ProviderName        string
	ReloadOnChainChange bool
	InboxSize           int
	// Debug logs every JSON-RPC exchange and forwards page console output.
	Debug bool
}

// Deps are a tab's collaborators.
type Deps struct {
	Surface   Surface
	Guard     *navigation.Guard
	Confirmer navigation.Confirmer
	Table     *methods.Table
	Sessions  Sessions
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

// Tab bridges one page to the wallet: it answers provider requests, pushes
// wallet events into the page and polices navigation.
type Tab struct {
	id     id.TabID
	cfg    Config
	deps   Deps
	engine *jsonrpc.Engine
	policy *bluemonday.Policy
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	currentURL string
	pendingURL string
	listeners  Listeners
	unwatch    func()

	inboxMu sync.RWMutex
	inbox   chan work
	closed  bool

	disposeOnce sync.Once
}

// work is one unit for the tab's loop: a page message, or a navigation the
// page started on its own that must go back through the guard.
type work struct {
	raw      []byte
	navigate string
}

// New creates a tab. Call Run to start processing posted messages and
// Dispose when the page goes away.
func New(cfg Config, deps Deps, listeners Listeners) *Tab {
	if cfg.ProviderName == "" {
		cfg.ProviderName = DefaultProviderName
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	tabID := id.NewTabID()
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tab{
		id:         tabID,
		cfg:        cfg,
		deps:       deps,
		policy:     bluemonday.StrictPolicy(),
		logger:     deps.Logger.Named("tab").With(zap.String("tab_id", tabID.String())),
		ctx:        ctx,
		cancel:     cancel,
		currentURL: cfg.InitialURL,
		listeners:  listeners,
		inbox:      make(chan work, cfg.InboxSize),
	}

	t.engine = jsonrpc.NewEngine(t.logger)
	if deps.Metrics != nil {
		t.engine.Push(jsonrpc.Metrics(deps.Metrics))
	}
	t.engine.Push(deps.Table.Terminal(t))
	if cfg.Debug {
		t.engine.Push(jsonrpc.Logger(t.logger))
	}

	if deps.Sessions != nil {
		t.unwatch = deps.Sessions.Watch(t.onSessionChange)
	}
	return t
}

// ID is the tab's immutable identifier.
func (t *Tab) ID() id.TabID { return t.id }

// URL is the page's current URL.
func (t *Tab) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentURL
}

// Origin is the current page's origin, the key for its session.
func (t *Tab) Origin() string {
	return navigation.OriginOf(t.URL())
}

// PreloadScript is the provider shim the surface must run before page
// scripts on every navigation.
func (t *Tab) PreloadScript() string {
	return PreloadJS(inpage.Config{Name: t.cfg.ProviderName, ForwardConsole: t.cfg.Debug})
}

// Post queues a raw page message for Run.
func (t *Tab) Post(raw []byte) error {
	return t.enqueue(work{raw: raw})
}

func (t *Tab) enqueue(w work) error {
	t.inboxMu.RLock()
	defer t.inboxMu.RUnlock()
	if t.closed {
		return ErrDisposed
	}
	select {
	case t.inbox <- w:
		return nil
	default:
		return ErrInboxFull
	}
}

// Run handles posted messages and re-routed navigations one at a time in
// arrival order until ctx ends or the tab is disposed. Handlers see a
// context that Dispose cancels, so pending prompts end with the tab.
func (t *Tab) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			if t.ctx.Err() != nil {
				return nil
			}
			return ctx.Err()
		case w, ok := <-t.inbox:
			if !ok {
				return nil
			}
			if w.navigate != "" {
				t.Go(ctx, w.navigate)
				continue
			}
			t.HandleMessage(ctx, w.raw)
		}
	}
}

// HandleMessage processes one page message. Provider requests are answered
// with an injected response; window info goes to listeners; anything else
// is dropped. Nothing escapes: failures are logged.
func (t *Tab) HandleMessage(ctx context.Context, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Panic while handling page message", zap.Any("panic", r))
		}
	}()

	if !gjson.ValidBytes(raw) {
		t.logger.Debug("Dropping non-JSON page message", zap.Int("size", len(raw)))
		return
	}

	envelope := gjson.ParseBytes(raw)
	if data := envelope.Get("data"); data.Exists() && jsonrpc.IsRequest([]byte(data.Raw)) {
		t.handleRequest(ctx, []byte(data.Raw), envelope.Get("origin").String(), envelope.Get("name").String())
		return
	}

	switch envelope.Get("type").String() {
	case "WINDOW_INFO":
		t.handleWindowInfo(envelope.Get("payload"))
	case "CONSOLE":
		if t.cfg.Debug {
			t.handleConsole(envelope.Get("payload"))
		}
	default:
		t.logger.Debug("Ignoring unrecognised page message")
	}
}

func (t *Tab) handleRequest(ctx context.Context, raw []byte, msgOrigin, name string) {
	req, err := jsonrpc.ParseRequest(raw)
	if err != nil {
		t.logger.Debug("Dropping malformed request", zap.Error(err))
		return
	}

	res := t.engine.Handle(ctx, req)

	if msgOrigin == "" {
		msgOrigin = t.Origin()
	}
	if name == "" {
		name = DefaultProviderName
	}
	t.inject(ctx, PostMessageJS(Message{Data: res, Origin: msgOrigin, Name: name}, msgOrigin))
}

func (t *Tab) handleWindowInfo(payload gjson.Result) {
	info := WindowInfo{
		Title: strings.TrimSpace(t.policy.Sanitize(payload.Get("title").String())),
		URL:   payload.Get("url").String(),
		Icon:  payload.Get("icon").String(),
	}
	t.mu.RLock()
	fn := t.listeners.OnWindowInfo
	t.mu.RUnlock()
	if fn != nil {
		fn(info)
	}
}

func (t *Tab) handleConsole(payload gjson.Result) {
	level := payload.Get("level").String()
	var args []string
	for _, a := range payload.Get("args").Array() {
		args = append(args, a.String())
	}
	t.logger.Debug("Page console", zap.String("level", level), zap.Strings("args", args))

	t.mu.RLock()
	fn := t.listeners.OnConsole
	t.mu.RUnlock()
	if fn != nil {
		fn(level, args)
	}
}

// OnLoad records a finished navigation and asks the page for its metadata
// when the URL changed.
func (t *Tab) OnLoad(ctx context.Context, nativeURL string) {
	t.mu.Lock()
	changed := nativeURL != t.currentURL
	if changed {
		t.currentURL = nativeURL
	}
	if t.pendingURL == nativeURL {
		t.pendingURL = ""
	}
	t.mu.Unlock()

	if changed {
		t.inject(ctx, WindowInfoJS)
	}
}

// RequestWindowInfo asks the page to report its title and URL.
func (t *Tab) RequestWindowInfo(ctx context.Context) {
	t.inject(ctx, WindowInfoJS)
}

// Go navigates the page to rawURL if the guard allows it.
func (t *Tab) Go(ctx context.Context, rawURL string) navigation.Outcome {
	out := t.deps.Guard.Resolve(ctx, rawURL, t.deps.Confirmer)

	if out.CloseSurface {
		if err := t.deps.Surface.Close(ctx); err != nil {
			t.logger.Warn("Failed to close surface", zap.Error(err))
		}
	}
	if !out.Navigate {
		t.logger.Debug("Navigation not performed",
			zap.String("url", rawURL),
			zap.String("action", string(out.Decision.Action)),
			zap.String("reason", out.Decision.Reason))
		return out
	}

	t.mu.Lock()
	t.pendingURL = rawURL
	t.mu.Unlock()

	if navigation.OriginOf(rawURL) != t.Origin() {
		t.notifyAccounts([]string{})
	}
	t.inject(ctx, ChangeLocationJS(rawURL))
	return out
}

// OnShouldStartLoad is asked before the page starts loading rawURL. Only
// the URL Go approved and internal pages load directly; anything else is
// denied and re-routed through Go.
func (t *Tab) OnShouldStartLoad(ctx context.Context, rawURL string) bool {
	if navigation.IsInternal(rawURL) {
		return true
	}

	t.mu.Lock()
	approved := t.pendingURL != "" && t.pendingURL == rawURL
	if approved {
		t.pendingURL = ""
	}
	t.mu.Unlock()
	if approved {
		return true
	}

	if err := t.enqueue(work{navigate: rawURL}); err != nil {
		t.logger.Warn("Dropping page navigation", zap.String("url", rawURL), zap.Error(err))
	}
	return false
}

// DisconnectAccount revokes the current origin's account and tells the
// page.
func (t *Tab) DisconnectAccount(ctx context.Context) error {
	originKey := t.Origin()
	var err error
	if _, ok := t.deps.Sessions.GetByOrigin(originKey); ok {
		_, err = t.deps.Sessions.Update(ctx, originKey, origin.Patch{
			SelectedAccount: origin.Ptr(""),
			Disconnected:    origin.Ptr(true),
		})
		if err != nil {
			err = fmt.Errorf("failed to disconnect %s: %w", originKey, err)
		}
	}

	t.emit(ctx, AccountsChanged(nil))
	t.emit(ctx, Disconnected())
	t.notifyAccounts([]string{})
	return err
}

// ChangeAccount exposes account to the current origin.
func (t *Tab) ChangeAccount(ctx context.Context, account string) error {
	norm, err := wallet.NormalizeAddress(account)
	if err != nil {
		return err
	}

	originKey := t.Origin()
	if _, ok := t.deps.Sessions.GetByOrigin(originKey); ok {
		if _, err := t.deps.Sessions.Update(ctx, originKey, origin.Patch{
			SelectedAccount: &norm,
			Disconnected:    origin.Ptr(false),
		}); err != nil {
			return fmt.Errorf("failed to change account for %s: %w", originKey, err)
		}
	}

	t.emit(ctx, AccountsChanged([]string{norm}))
	t.notifyAccounts([]string{norm})
	return nil
}

// ChangeChainID moves the current origin to another chain.
func (t *Tab) ChangeChainID(ctx context.Context, chainIDHex string) error {
	norm, err := wallet.NormalizeChainID(chainIDHex)
	if err != nil {
		return err
	}

	originKey := t.Origin()
	if _, ok := t.deps.Sessions.GetByOrigin(originKey); ok {
		if _, err := t.deps.Sessions.Update(ctx, originKey, origin.Patch{SelectedChainIDHex: &norm}); err != nil {
			return fmt.Errorf("failed to change chain for %s: %w", originKey, err)
		}
	}

	t.emit(ctx, ChainChanged(norm))
	if t.cfg.ReloadOnChainChange {
		if err := t.deps.Surface.Reload(ctx); err != nil {
			t.logger.Warn("Failed to reload after chain change", zap.Error(err))
		}
	}
	return nil
}

// NotifyAccounts tells host listeners which accounts the page now sees.
func (t *Tab) NotifyAccounts(_ context.Context, accounts []string) {
	t.notifyAccounts(accounts)
}

func (t *Tab) notifyAccounts(accounts []string) {
	t.mu.RLock()
	fn := t.listeners.OnAccountsChanged
	t.mu.RUnlock()
	if fn != nil {
		fn(accounts)
	}
}

// Emit sends a provider event into the page.
func (t *Tab) Emit(ctx context.Context, ev Event) {
	t.emit(ctx, ev)
}

func (t *Tab) emit(ctx context.Context, ev Event) {
	t.inject(ctx, EmitToEthereumJS(ev))
}

func (t *Tab) inject(ctx context.Context, script string) {
	if t.ctx.Err() != nil {
		return
	}
	if err := t.deps.Surface.Inject(ctx, script); err != nil {
		t.logger.Warn("Failed to inject script", zap.Error(err))
	}
}

// onSessionChange reacts to the current origin's session being cleared
// from outside the tab.
func (t *Tab) onSessionChange(c origin.Change) {
	if c.Kind != origin.Deleted || c.Origin != t.Origin() {
		return
	}
	t.logger.Info("Origin session removed, disconnecting page", zap.String("origin", c.Origin))

	t.emit(t.ctx, AccountsChanged(nil))
	t.emit(t.ctx, Disconnected())
	t.notifyAccounts([]string{})
	if t.ctx.Err() == nil {
		if err := t.deps.Surface.Reload(t.ctx); err != nil {
			t.logger.Warn("Failed to reload after session removal", zap.Error(err))
		}
	}
}

// Dispose detaches the tab. It is safe to call more than once.
func (t *Tab) Dispose() {
	t.disposeOnce.Do(func() {
		t.cancel()

		t.mu.Lock()
		t.listeners = Listeners{}
		unwatch := t.unwatch
		t.unwatch = nil
		t.mu.Unlock()
		if unwatch != nil {
			unwatch()
		}

		t.inboxMu.Lock()
		t.closed = true
		close(t.inbox)
		t.inboxMu.Unlock()

		t.logger.Debug("Tab disposed")
	})
}
