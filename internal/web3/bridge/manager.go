package bridge

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/dappbridge/internal/shared/id"
	"github.com/GriffinCanCode/dappbridge/internal/web3/methods"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
)

// Host is what the embedding side supplies for one tab: the surface that
// renders the page and whoever answers its prompts. Nil prompt fields fall
// back to the manager's defaults.
type Host struct {
	Surface   Surface
	Confirmer navigation.Confirmer
	Opener    navigation.ExternalOpener
	Links     navigation.DynamicLinkHandler
	Picker    wallet.AccountPicker
	Signer    methods.Signer
	Navigator methods.Navigator
	Listeners Listeners
}

// ManagerOptions are shared by every tab a Manager opens.
type ManagerOptions struct {
	Methods      methods.Deps
	Navigation   navigation.Options
	GuardOptions []navigation.GuardOption
	Sessions     Sessions
	Tab          Config
}

// Manager owns the live tabs.
type Manager struct {
	opts    ManagerOptions
	tabs    sync.Map
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewManager creates a tab manager.
func NewManager(opts ManagerOptions, metrics *monitoring.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Methods.Sessions == nil && opts.Sessions != nil {
		opts.Methods.Sessions = opts.Sessions
	}
	if opts.Methods.Logger == nil {
		opts.Methods.Logger = logger
	}
	return &Manager{
		opts:    opts,
		metrics: metrics,
		logger:  logger.Named("tabs"),
	}
}

// Open creates a tab for host and starts its message loop. initialURL
// overrides the configured start page when set.
func (m *Manager) Open(initialURL string, host Host) *Tab {
	deps := m.opts.Methods
	if host.Picker != nil {
		deps.Picker = host.Picker
	}
	if host.Signer != nil {
		deps.Signer = host.Signer
	}
	if host.Navigator != nil {
		deps.Navigator = host.Navigator
	}

	guardOpts := append([]navigation.GuardOption{}, m.opts.GuardOptions...)
	if host.Opener != nil {
		guardOpts = append(guardOpts, navigation.WithOpener(host.Opener))
	}
	if host.Links != nil {
		guardOpts = append(guardOpts, navigation.WithDynamicLinks(host.Links))
	}
	if m.metrics != nil {
		guardOpts = append(guardOpts, navigation.WithMetrics(m.metrics))
	}

	cfg := m.opts.Tab
	if initialURL != "" {
		cfg.InitialURL = initialURL
	}

	tab := New(cfg, Deps{
		Surface:   host.Surface,
		Guard:     navigation.NewGuard(m.opts.Navigation, m.logger, guardOpts...),
		Confirmer: host.Confirmer,
		Table:     methods.NewTable(deps),
		Sessions:  m.opts.Sessions,
		Metrics:   m.metrics,
		Logger:    m.logger,
	}, host.Listeners)

	m.tabs.Store(tab.ID(), tab)
	m.updateGauge()
	go func() {
		_ = tab.Run(context.Background())
	}()

	m.logger.Info("Tab opened", zap.String("tab_id", tab.ID().String()), zap.String("url", cfg.InitialURL))
	return tab
}

// Get retrieves a tab by ID.
func (m *Manager) Get(tabID id.TabID) (*Tab, bool) {
	val, ok := m.tabs.Load(tabID)
	if !ok {
		return nil, false
	}
	return val.(*Tab), true
}

// TabInfo is a snapshot of one tab.
type TabInfo struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Origin string `json:"origin"`
}

// List returns a snapshot of every live tab ordered by ID.
func (m *Manager) List() []TabInfo {
	var out []TabInfo
	m.tabs.Range(func(_, value any) bool {
		tab := value.(*Tab)
		out = append(out, TabInfo{ID: tab.ID().String(), URL: tab.URL(), Origin: tab.Origin()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len counts live tabs.
func (m *Manager) Len() int {
	n := 0
	m.tabs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close disposes a tab and forgets it.
func (m *Manager) Close(tabID id.TabID) bool {
	val, ok := m.tabs.LoadAndDelete(tabID)
	if !ok {
		return false
	}
	val.(*Tab).Dispose()
	m.updateGauge()
	m.logger.Info("Tab closed", zap.String("tab_id", tabID.String()))
	return true
}

// CloseAll disposes every tab.
func (m *Manager) CloseAll() {
	m.tabs.Range(func(key, _ any) bool {
		m.Close(key.(id.TabID))
		return true
	})
}

func (m *Manager) updateGauge() {
	if m.metrics != nil {
		m.metrics.SetTabsActive(m.Len())
	}
}
