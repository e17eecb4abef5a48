package headless

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/shared/httpclient"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
)

//go:embed env.js
var envSource string

const blankHTML = "<html><head></head><body></body></html>"

var (
	ErrClosed    = errors.New("surface closed")
	ErrNotLoaded = errors.New("no page loaded")
)

// Page is the tab side of a surface.
type Page interface {
	Post(raw []byte) error
	OnShouldStartLoad(ctx context.Context, rawURL string) bool
	OnLoad(ctx context.Context, rawURL string)
	PreloadScript() string
}

// Config defines surface limits.
type Config struct {
	Timeout          time.Duration // Per-script execution timeout
	MaxCallStackSize int
	MaxBodyBytes     int64
	RunPageScripts   bool // Execute inline <script> elements after load
}

// DefaultConfig returns conservative limits.
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		MaxBodyBytes:     4 << 20,
		RunPageScripts:   true,
	}
}

// LogEntry is one console call made by the page.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// Surface renders pages in an in-process JavaScript runtime. It has no
// layout engine: documents are parsed for querying and inline scripts run
// against a minimal window.
type Surface struct {
	cfg    Config
	client *httpclient.Client
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	vm      *goja.Runtime
	doc     *goquery.Document
	url     string
	page    Page
	closed  bool
	console []LogEntry
}

// New creates a surface. client fetches documents; without one only
// internal pages load.
func New(cfg Config, client *httpclient.Client, logger *zap.Logger) *Surface {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Surface{
		cfg:    cfg,
		client: client,
		logger: logger.Named("headless"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Attach connects the page that receives this surface's messages.
func (s *Surface) Attach(page Page) {
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
}

// URL is the loaded document's URL.
func (s *Surface) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Title is the loaded document's title.
func (s *Surface) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titleLocked()
}

// Console returns the page's console output since the last load.
func (s *Surface) Console() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry{}, s.console...)
}

// Load fetches rawURL and replaces the current document with it.
func (s *Surface) Load(ctx context.Context, rawURL string) error {
	doc, err := s.fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	vm, err := s.newRuntime()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.vm = vm
	s.doc = doc
	s.url = rawURL
	s.console = nil
	page := s.page

	if page != nil {
		if _, err := s.runLocked(ctx, page.PreloadScript()); err != nil {
			s.logger.Warn("Preload script failed", zap.String("url", rawURL), zap.Error(err))
		}
	}
	if s.cfg.RunPageScripts {
		s.runPageScriptsLocked(ctx)
	}
	s.mu.Unlock()

	s.logger.Debug("Page loaded", zap.String("url", rawURL))
	if page != nil {
		page.OnLoad(ctx, rawURL)
	}
	return nil
}

// Inject runs script in the current document.
func (s *Surface) Inject(ctx context.Context, script string) error {
	_, err := s.Eval(ctx, script)
	return err
}

// Eval runs script and exports its completion value.
func (s *Surface) Eval(ctx context.Context, script string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.vm == nil {
		return nil, ErrNotLoaded
	}
	val, err := s.runLocked(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// Reload loads the current URL again.
func (s *Surface) Reload(ctx context.Context) error {
	current := s.URL()
	if current == "" {
		return ErrNotLoaded
	}
	return s.Load(ctx, current)
}

// Close drops the document and waits for in-flight navigations.
func (s *Surface) Close(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.vm != nil {
		s.vm.Interrupt("surface closed")
	}
	s.vm = nil
	s.doc = nil
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

// Closed reports whether Close was called.
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Surface) fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if navigation.IsInternal(rawURL) {
		return goquery.NewDocumentFromReader(strings.NewReader(blankHTML))
	}
	if s.client == nil {
		return nil, fmt.Errorf("cannot load %s: no http client", rawURL)
	}

	resp, err := s.client.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8").Get(rawURL)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("HTTP %d: %s (url: %s)", resp.StatusCode(), resp.Status(), rawURL)
	}

	body := resp.Body()
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("document too large: %d bytes", len(body))
	}

	mt := mimetype.Detect(body)
	if !isHTML(mt) {
		s.logger.Debug("Non-HTML document, loading blank page",
			zap.String("url", rawURL), zap.String("mime", mt.String()))
		return goquery.NewDocumentFromReader(strings.NewReader(blankHTML))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func isHTML(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/html") || m.Is("application/xhtml+xml") {
			return true
		}
	}
	return false
}

// newRuntime builds a VM with the window environment installed.
func (s *Surface) newRuntime() (*goja.Runtime, error) {
	vm := goja.New()
	if s.cfg.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(s.cfg.MaxCallStackSize)
	}

	// Remove dangerous globals
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	native := vm.NewObject()
	native.Set("post", s.nativePost)
	native.Set("url", func() string { return s.url })
	native.Set("origin", func() string { return navigation.OriginOf(s.url) })
	native.Set("navigate", s.nativeNavigate)
	native.Set("reload", func() { s.nativeNavigate(s.url) })
	native.Set("console", s.nativeConsole)
	native.Set("title", s.titleLocked)
	native.Set("query", func(selector string) goja.Value { return s.nativeQuery(vm, selector) })
	vm.Set("__native", native)

	if _, err := vm.RunString(envSource); err != nil {
		return nil, fmt.Errorf("failed to install window environment: %w", err)
	}
	if err := vm.GlobalObject().Delete("__native"); err != nil {
		return nil, fmt.Errorf("failed to hide native bindings: %w", err)
	}
	return vm, nil
}

// runLocked executes src under the configured timeout. Caller holds s.mu.
func (s *Surface) runLocked(ctx context.Context, src string) (goja.Value, error) {
	vm := s.vm
	if vm == nil {
		return nil, ErrNotLoaded
	}

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		select {
		case <-timer.C:
			vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	val, err := vm.RunString(src)
	close(done)
	<-stopped
	vm.ClearInterrupt()
	return val, err
}

func (s *Surface) runPageScriptsLocked(ctx context.Context) {
	s.doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if _, external := sel.Attr("src"); external {
			return
		}
		if typ, ok := sel.Attr("type"); ok && typ != "" && typ != "text/javascript" && typ != "application/javascript" {
			return
		}
		src := sel.Text()
		if strings.TrimSpace(src) == "" {
			return
		}
		if _, err := s.runLocked(ctx, src); err != nil {
			s.logger.Debug("Page script failed", zap.String("url", s.url), zap.Error(err))
		}
	})
}

// Native bindings below run on the VM goroutine with s.mu held.

func (s *Surface) nativePost(message string) {
	if s.page == nil {
		return
	}
	if err := s.page.Post([]byte(message)); err != nil {
		s.logger.Debug("Dropped page message", zap.Error(err))
	}
}

func (s *Surface) nativeNavigate(target string) {
	if s.closed {
		return
	}
	resolved := s.resolve(target)
	page := s.page

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if page != nil && !page.OnShouldStartLoad(s.ctx, resolved) {
			return
		}
		if err := s.Load(s.ctx, resolved); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Warn("Navigation failed", zap.String("url", resolved), zap.Error(err))
		}
	}()
}

func (s *Surface) nativeConsole(level string, args []string) {
	entry := LogEntry{Level: level, Message: strings.Join(args, " "), Time: time.Now()}
	s.console = append(s.console, entry)
	s.logger.Debug("Page console", zap.String("level", level), zap.String("message", entry.Message))
}

func (s *Surface) nativeQuery(vm *goja.Runtime, selector string) goja.Value {
	if s.doc == nil {
		return goja.Null()
	}
	sel := s.doc.Find(selector).First()
	if sel.Length() == 0 {
		return goja.Null()
	}

	el := vm.NewObject()
	el.Set("tagName", strings.ToUpper(goquery.NodeName(sel)))
	el.Set("id", sel.AttrOr("id", ""))
	el.Set("textContent", sel.Text())
	if href, ok := sel.Attr("href"); ok {
		el.Set("href", s.resolve(href))
	}
	if src, ok := sel.Attr("src"); ok {
		el.Set("src", s.resolve(src))
	}
	el.Set("getAttribute", func(name string) goja.Value {
		if v, ok := sel.Attr(name); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	return el
}

func (s *Surface) titleLocked() string {
	if s.doc == nil {
		return ""
	}
	return strings.TrimSpace(s.doc.Find("title").First().Text())
}

// resolve makes ref absolute against the current document.
func (s *Surface) resolve(ref string) string {
	base, err := url.Parse(s.url)
	if err != nil || base.Scheme == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
