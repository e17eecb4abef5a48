package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/shared/httpclient"
	"github.com/GriffinCanCode/dappbridge/internal/surface/headless"
	"github.com/GriffinCanCode/dappbridge/internal/web3/bridge"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
)

const probeWait = 3 * time.Second

// ProbeReport describes a page opened in a headless tab.
type ProbeReport struct {
	URL      string              `json:"url"`
	Decision navigation.Decision `json:"decision"`
	Title    string              `json:"title,omitempty"`
	Icon     string              `json:"icon,omitempty"`
	Provider bool                `json:"provider"`
	Console  []headless.LogEntry `json:"console,omitempty"`
}

// Probe opens rawURL in a headless tab and reports what the page saw: the
// guard's verdict, its window info and whether the injected provider is
// reachable. Pages the guard would not open without a prompt are not
// loaded.
func (s *Server) Probe(ctx context.Context, rawURL string) (*ProbeReport, error) {
	target := navigation.NormalizeInput(rawURL, navigation.Google)
	report := &ProbeReport{URL: target, Decision: s.guard.Decide(ctx, target)}
	if report.Decision.Action != navigation.ActionAllow {
		return report, nil
	}

	opts := httpclient.DefaultOptions("probe")
	opts.Logger = s.logger.Logger
	surface := headless.New(headless.DefaultConfig(), httpclient.New(opts), s.logger.Logger)
	defer surface.Close(ctx)

	info := make(chan bridge.WindowInfo, 1)
	tab := s.tabs.Open(target, bridge.Host{
		Surface: surface,
		Listeners: bridge.Listeners{
			OnWindowInfo: func(wi bridge.WindowInfo) {
				select {
				case info <- wi:
				default:
				}
			},
		},
	})
	defer s.tabs.Close(tab.ID())
	surface.Attach(tab)

	if err := surface.Load(ctx, target); err != nil {
		return report, fmt.Errorf("failed to load %s: %w", target, err)
	}
	tab.RequestWindowInfo(ctx)

	select {
	case wi := <-info:
		report.Title = wi.Title
		report.Icon = wi.Icon
	case <-time.After(probeWait):
		s.logger.Warn("Page did not report window info", zap.String("url", target))
	case <-ctx.Done():
		return report, ctx.Err()
	}

	if v, err := surface.Eval(ctx, `typeof window.ethereum === 'object' && window.ethereum !== null`); err == nil {
		report.Provider, _ = v.(bool)
	}
	report.Console = surface.Console()
	return report, nil
}
