package navigation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/dappbridge/internal/web3/phishing"
)

func TestOriginOf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://app.uniswap.org/#/swap", "https://app.uniswap.org"},
		{"http://localhost:3000", "http://localhost:3000"},
		{"https://example.com", "https://example.com"},
		{"about:blank", "*"},
		{"not a url", "*"},
		{"", "*"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OriginOf(tt.in), tt.in)
	}
}

func TestClearURL(t *testing.T) {
	assert.Equal(t, "app.uniswap.org", ClearURL("https://app.uniswap.org/swap"))
	assert.Equal(t, "about:blank", ClearURL("about:blank"))
}

func TestURLPredicates(t *testing.T) {
	assert.True(t, IsInternal("about:blank"))
	assert.True(t, IsInternal("blob:https://x/1"))
	assert.False(t, IsInternal("https://about.com"))

	assert.True(t, IsDeepLink("haqq://send"))
	assert.True(t, IsDeepLink("mailto:a@b.c"))
	assert.False(t, IsDeepLink("https://x.org"))
	assert.False(t, IsDeepLink("http://x.org"))
}

func TestDynamicLinkTarget(t *testing.T) {
	hosts := []string{"haqq.page.link"}

	link, ok := DynamicLinkTarget("https://haqq.page.link/?link=https%3A%2F%2Fhaqq.network%2Fx", hosts)
	assert.True(t, ok)
	assert.Equal(t, "https://haqq.network/x", link)

	_, ok = DynamicLinkTarget("https://haqq.page.link/?other=1", hosts)
	assert.False(t, ok)
	_, ok = DynamicLinkTarget("https://other.link/?link=x", hosts)
	assert.False(t, ok)
	_, ok = DynamicLinkTarget("https://haqq.page.link/?link=x", nil)
	assert.False(t, ok)
}

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		in     string
		engine SearchEngine
		want   string
	}{
		{"uniswap.org", Google, "https://uniswap.org"},
		{"http://example.com/a", Google, "http://example.com/a"},
		{"localhost:3000", Google, "https://localhost:3000"},
		{"best dex", Google, "https://www.google.com/search?q=best+dex"},
		{"best dex", DuckDuckGo, "https://duckduckgo.com/?q=best+dex"},
		{"  ", Google, "about:blank"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeInput(tt.in, tt.engine), tt.in)
	}
	assert.Equal(t, "ftp://x", PrefixURLWithProtocol("ftp://x", ""))
	assert.Equal(t, "http://x", PrefixURLWithProtocol("x", "http://"))
}

type mockPhishing struct{ mock.Mock }

func (m *mockPhishing) MaybeUpdateState(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockPhishing) Test(rawURL string) phishing.Result {
	return m.Called(rawURL).Get(0).(phishing.Result)
}

type mockOpener struct{ mock.Mock }

func (m *mockOpener) CanOpen(ctx context.Context, rawURL string) (bool, error) {
	args := m.Called(ctx, rawURL)
	return args.Bool(0), args.Error(1)
}

func (m *mockOpener) Open(ctx context.Context, rawURL string) error {
	return m.Called(ctx, rawURL).Error(0)
}

type mockConfirmer struct{ mock.Mock }

func (m *mockConfirmer) ConfirmPhishing(ctx context.Context, rawURL string) (bool, error) {
	args := m.Called(ctx, rawURL)
	return args.Bool(0), args.Error(1)
}

func (m *mockConfirmer) ConfirmExternal(ctx context.Context, rawURL string) (bool, error) {
	args := m.Called(ctx, rawURL)
	return args.Bool(0), args.Error(1)
}

type dynamicLinks struct{ got []string }

func (d *dynamicLinks) HandleDynamicLink(_ context.Context, link string) error {
	d.got = append(d.got, link)
	return nil
}

const evilURL = "https://evil.example/claim"

func phishingFor(bad string) *mockPhishing {
	p := &mockPhishing{}
	p.On("MaybeUpdateState", mock.Anything).Return(nil)
	p.On("Test", bad).Return(phishing.Result{Result: true, Type: phishing.TypeBlacklist})
	p.On("Test", mock.Anything).Return(phishing.Result{Type: phishing.TypeAll})
	return p
}

func TestDecideOrder(t *testing.T) {
	ctx := context.Background()
	opener := &mockOpener{}
	opener.On("CanOpen", mock.Anything, "mailto:a@b.c").Return(true, nil)
	opener.On("CanOpen", mock.Anything, mock.Anything).Return(false, nil)

	g := NewGuard(Options{WalletScheme: "haqq:", DynamicLinkHosts: []string{"haqq.page.link"}}, nil,
		WithPhishing(phishingFor(evilURL)), WithOpener(opener))

	tests := []struct {
		url    string
		action Action
	}{
		{"about:blank", ActionAllow},
		{"blob:https://x/1", ActionAllow},
		{evilURL, ActionAllowAfterConfirm},
		{"mailto:a@b.c", ActionRedirectExternal},
		{"haqq://wc?uri=x", ActionRedirectExternal},
		{"unknown-scheme://x", ActionAllow},
		{"https://haqq.page.link/?link=https://haqq.network", ActionRedirectExternal},
		{"https://app.uniswap.org", ActionAllow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.action, g.Decide(ctx, tt.url).Action, tt.url)
	}
}

func TestDecideInternalSkipsPhishing(t *testing.T) {
	p := &mockPhishing{}
	g := NewGuard(Options{}, nil, WithPhishing(p))

	assert.Equal(t, ActionAllow, g.Decide(context.Background(), "about:blank").Action)
	p.AssertNotCalled(t, "MaybeUpdateState", mock.Anything)
	p.AssertNotCalled(t, "Test", mock.Anything)
}

func TestDecideRefreshFailureStillTests(t *testing.T) {
	p := &mockPhishing{}
	p.On("MaybeUpdateState", mock.Anything).Return(errors.New("offline"))
	p.On("Test", evilURL).Return(phishing.Result{Result: true})

	g := NewGuard(Options{}, nil, WithPhishing(p))
	assert.Equal(t, ActionAllowAfterConfirm, g.Decide(context.Background(), evilURL).Action)
}

func TestResolvePhishing(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(Options{}, nil, WithPhishing(phishingFor(evilURL)))

	tests := []struct {
		name   string
		answer bool
		err    error
		want   bool
	}{
		{"continue", true, nil, true},
		{"back", false, nil, false},
		{"prompt failed", true, errors.New("surface gone"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mockConfirmer{}
			c.On("ConfirmPhishing", mock.Anything, evilURL).Return(tt.answer, tt.err)
			out := g.Resolve(ctx, evilURL, c)
			assert.Equal(t, tt.want, out.Navigate)
			c.AssertExpectations(t)
		})
	}

	assert.False(t, g.Resolve(ctx, evilURL, nil).Navigate)
}

func TestResolveExternal(t *testing.T) {
	ctx := context.Background()
	opener := &mockOpener{}
	opener.On("CanOpen", mock.Anything, mock.Anything).Return(true, nil)
	opener.On("Open", mock.Anything, mock.Anything).Return(nil)
	g := NewGuard(Options{WalletScheme: "haqq:"}, nil, WithOpener(opener))

	declined := &mockConfirmer{}
	declined.On("ConfirmExternal", mock.Anything, "tg://resolve").Return(false, nil)
	out := g.Resolve(ctx, "tg://resolve", declined)
	assert.False(t, out.Navigate)
	opener.AssertNotCalled(t, "Open", mock.Anything, "tg://resolve")

	allowed := &mockConfirmer{}
	allowed.On("ConfirmExternal", mock.Anything, "tg://resolve").Return(true, nil)
	out = g.Resolve(ctx, "tg://resolve", allowed)
	assert.False(t, out.Navigate)
	opener.AssertCalled(t, "Open", mock.Anything, "tg://resolve")

	// The wallet's own scheme opens without asking.
	silent := &mockConfirmer{}
	out = g.Resolve(ctx, "haqq://send", silent)
	assert.False(t, out.Navigate)
	silent.AssertNotCalled(t, "ConfirmExternal", mock.Anything, mock.Anything)
	opener.AssertCalled(t, "Open", mock.Anything, "haqq://send")
}

func TestResolveDynamicLink(t *testing.T) {
	links := &dynamicLinks{}
	g := NewGuard(Options{DynamicLinkHosts: []string{"haqq.page.link"}}, nil, WithDynamicLinks(links))

	out := g.Resolve(context.Background(), "https://haqq.page.link/?link=https://haqq.network/a", nil)
	assert.False(t, out.Navigate)
	assert.True(t, out.CloseSurface)
	assert.Equal(t, []string{"https://haqq.network/a"}, links.got)
}

func TestResolveCancelledContextDenies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGuard(Options{}, nil, WithPhishing(phishingFor(evilURL)))
	c := &mockConfirmer{}
	c.On("ConfirmPhishing", mock.Anything, evilURL).Return(true, nil)
	assert.False(t, g.Resolve(ctx, evilURL, c).Navigate)
}
