package navigation

import (
	"context"
	"strings"

	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/dappbridge/internal/web3/phishing"
	"go.uber.org/zap"
)

// Action is what the guard wants done with a URL transition.
type Action string

const (
	ActionAllow             Action = "allow"
	ActionAllowAfterConfirm Action = "allow-after-confirm"
	ActionRedirectExternal  Action = "redirect-external"
	ActionDeny              Action = "deny"
)

// Decision is the guard's verdict for one URL.
type Decision struct {
	Action       Action `json:"action"`
	Reason       string `json:"reason,omitempty"`
	External     bool   `json:"external,omitempty"`
	DynamicLink  string `json:"dynamic_link,omitempty"`
	CloseSurface bool   `json:"close_surface,omitempty"`
}

// Outcome is a decision after prompts and hand-offs have run.
type Outcome struct {
	Navigate     bool
	CloseSurface bool
	Decision     Decision
}

// PhishingChecker is the blocklist collaborator.
type PhishingChecker interface {
	MaybeUpdateState(ctx context.Context) error
	Test(rawURL string) phishing.Result
}

// ExternalOpener hands URLs to the operating system.
type ExternalOpener interface {
	CanOpen(ctx context.Context, rawURL string) (bool, error)
	Open(ctx context.Context, rawURL string) error
}

// DynamicLinkHandler receives the target of a dynamic link.
type DynamicLinkHandler interface {
	HandleDynamicLink(ctx context.Context, link string) error
}

// Confirmer asks the user about risky transitions. A false answer, an
// error or an expired ctx all mean "no".
type Confirmer interface {
	ConfirmPhishing(ctx context.Context, rawURL string) (bool, error)
	ConfirmExternal(ctx context.Context, rawURL string) (bool, error)
}

// Options configures a Guard.
type Options struct {
	// WalletScheme URLs (e.g. "haqq:") are opened without a prompt.
	WalletScheme string
	// DynamicLinkHosts are hosts whose "link" query parameter is a
	// wallet dynamic link.
	DynamicLinkHosts []string
}

// Guard decides URL transitions for every tab.
type Guard struct {
	opts     Options
	phishing PhishingChecker
	opener   ExternalOpener
	dynamic  DynamicLinkHandler
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// GuardOption customises a Guard.
type GuardOption func(*Guard)

// WithPhishing sets the blocklist detector. Without one no URL is flagged.
func WithPhishing(p PhishingChecker) GuardOption {
	return func(g *Guard) { g.phishing = p }
}

// WithOpener sets the OS opener. Without one deep links are not openable.
func WithOpener(o ExternalOpener) GuardOption {
	return func(g *Guard) { g.opener = o }
}

// WithDynamicLinks sets the dynamic-link handler.
func WithDynamicLinks(h DynamicLinkHandler) GuardOption {
	return func(g *Guard) { g.dynamic = h }
}

// WithMetrics records every decision.
func WithMetrics(m *monitoring.Metrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard creates a guard.
func NewGuard(opts Options, logger *zap.Logger, options ...GuardOption) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{opts: opts, logger: logger.Named("navigation")}
	for _, o := range options {
		o(g)
	}
	return g
}

// Decide classifies a URL transition. It never prompts.
func (g *Guard) Decide(ctx context.Context, rawURL string) Decision {
	d := g.decide(ctx, rawURL)
	if g.metrics != nil {
		g.metrics.RecordNavigation(string(d.Action))
	}
	return d
}

func (g *Guard) decide(ctx context.Context, rawURL string) Decision {
	if IsInternal(rawURL) {
		return Decision{Action: ActionAllow, Reason: "internal"}
	}

	if g.phishing != nil {
		if err := g.phishing.MaybeUpdateState(ctx); err != nil {
			g.logger.Warn("Phishing list refresh failed, using last known list", zap.Error(err))
		}
		if res := g.phishing.Test(rawURL); res.Result {
			reason := "phishing"
			if res.Type != "" {
				reason += ":" + res.Type
			}
			return Decision{Action: ActionAllowAfterConfirm, Reason: reason}
		}
	}

	if IsDeepLink(rawURL) && g.canOpen(ctx, rawURL) {
		return Decision{Action: ActionRedirectExternal, Reason: "deeplink", External: true}
	}

	if link, ok := DynamicLinkTarget(rawURL, g.opts.DynamicLinkHosts); ok {
		return Decision{
			Action:       ActionRedirectExternal,
			Reason:       "dynamic-link",
			DynamicLink:  link,
			CloseSurface: true,
		}
	}

	return Decision{Action: ActionAllow}
}

func (g *Guard) canOpen(ctx context.Context, rawURL string) bool {
	if g.isWalletScheme(rawURL) {
		return true
	}
	if g.opener == nil {
		return false
	}
	ok, err := g.opener.CanOpen(ctx, rawURL)
	if err != nil {
		g.logger.Debug("Opener probe failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	return ok
}

func (g *Guard) isWalletScheme(rawURL string) bool {
	return g.opts.WalletScheme != "" && strings.HasPrefix(strings.ToLower(rawURL), strings.ToLower(g.opts.WalletScheme))
}

// Resolve decides rawURL and carries the decision out: it prompts where
// needed and performs external hand-offs. Anything short of an explicit
// yes from the user leaves the page where it is.
func (g *Guard) Resolve(ctx context.Context, rawURL string, confirm Confirmer) Outcome {
	d := g.Decide(ctx, rawURL)
	out := Outcome{Decision: d}

	switch d.Action {
	case ActionAllow:
		out.Navigate = true

	case ActionAllowAfterConfirm:
		out.Navigate = g.confirm(ctx, "phishing", rawURL, confirm, Confirmer.ConfirmPhishing)

	case ActionRedirectExternal:
		if d.DynamicLink != "" {
			if g.dynamic != nil {
				if err := g.dynamic.HandleDynamicLink(ctx, d.DynamicLink); err != nil {
					g.logger.Warn("Dynamic link handler failed", zap.String("link", d.DynamicLink), zap.Error(err))
				}
			}
			out.CloseSurface = d.CloseSurface
			break
		}
		if !g.isWalletScheme(rawURL) && !g.confirm(ctx, "external", rawURL, confirm, Confirmer.ConfirmExternal) {
			break
		}
		g.open(ctx, rawURL)
	}

	return out
}

func (g *Guard) confirm(ctx context.Context, kind, rawURL string, c Confirmer, ask func(Confirmer, context.Context, string) (bool, error)) bool {
	if c == nil {
		return false
	}
	ok, err := ask(c, ctx, rawURL)
	if err != nil {
		g.logger.Info("Navigation prompt failed, denying",
			zap.String("kind", kind), zap.String("url", rawURL), zap.Error(err))
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return ok
}

func (g *Guard) open(ctx context.Context, rawURL string) {
	if g.opener == nil {
		g.logger.Warn("No external opener configured", zap.String("url", rawURL))
		return
	}
	if err := g.opener.Open(ctx, rawURL); err != nil {
		g.logger.Warn("Failed to open external URL", zap.String("url", rawURL), zap.Error(err))
	}
}
