package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/dappbridge/internal/domain/origin"
	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/web3/bridge"
	"github.com/GriffinCanCode/dappbridge/internal/web3/methods"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
	"github.com/GriffinCanCode/dappbridge/internal/web3/phishing"
)

const (
	dapp     = "https://dapp.example"
	accountA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type nopSurface struct{}

func (nopSurface) Inject(context.Context, string) error { return nil }
func (nopSurface) Reload(context.Context) error         { return nil }
func (nopSurface) Close(context.Context) error          { return nil }

type fixture struct {
	router  *gin.Engine
	store   *origin.Store
	manager *bridge.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := origin.NewStore(ctx, origin.NewMemoryBackend(), logger)
	require.NoError(t, err)
	w, err := wallet.New(wallet.DefaultRegistry(), "0x2be3", []string{accountA})
	require.NoError(t, err)

	detector := phishing.NewDetector(phishing.Options{}, nil, nil, logger)
	detector.SetList(phishing.Config{Version: 3, Blacklist: []string{"evil.example"}})

	manager := bridge.NewManager(bridge.ManagerOptions{
		Methods:  methods.Deps{Wallet: w},
		Sessions: store,
	}, nil, logger)
	t.Cleanup(manager.CloseAll)

	guard := navigation.NewGuard(navigation.Options{DynamicLinkHosts: []string{"links.wallet.example"}}, logger,
		navigation.WithPhishing(detector))

	router := gin.New()
	router.UseRawPath = true
	NewHandlers(store, manager, guard, w, detector, logger).Register(router)

	return &fixture{router: router, store: store, manager: manager}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "online", body["status"])

	code, body = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "0x2be3", body["chain"])
	assert.EqualValues(t, 0, body["tabs"])
	ph := body["phishing"].(map[string]any)
	assert.Equal(t, true, ph["enabled"])
	assert.EqualValues(t, 3, ph["version"])
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Create(ctx, dapp, origin.Fields{SelectedAccount: accountA, SelectedChainIDHex: "0x1"})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, "https://idle.example", origin.Fields{})
	require.NoError(t, err)

	code, body := f.do(t, http.MethodGet, "/sessions", "")
	assert.Equal(t, http.StatusOK, code)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["total"])
	assert.EqualValues(t, 1, stats["active"])

	code, body = f.do(t, http.MethodGet, "/sessions/https:%2F%2Fdapp.example", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, dapp, body["origin"])
	assert.Equal(t, accountA, body["selected_account"])

	code, body = f.do(t, http.MethodGet, "/sessions/dapp.example", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0x1", body["selected_chain_id_hex"])

	code, _ = f.do(t, http.MethodDelete, "/sessions/dapp.example", "")
	assert.Equal(t, http.StatusOK, code)
	_, ok := f.store.GetByOrigin(dapp)
	assert.False(t, ok)

	code, body = f.do(t, http.MethodGet, "/sessions/dapp.example", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session not found", body["error"])

	code, _ = f.do(t, http.MethodDelete, "/sessions/dapp.example", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTabEndpoints(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/tabs", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["count"])
	assert.Empty(t, body["tabs"])

	tab := f.manager.Open(dapp+"/swap", bridge.Host{Surface: nopSurface{}})

	code, body = f.do(t, http.MethodGet, "/tabs", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
	first := body["tabs"].([]any)[0].(map[string]any)
	assert.Equal(t, tab.ID().String(), first["id"])
	assert.Equal(t, dapp, first["origin"])

	code, _ = f.do(t, http.MethodDelete, "/tabs/"+tab.ID().String(), "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, f.manager.Len())

	code, _ = f.do(t, http.MethodDelete, "/tabs/"+tab.ID().String(), "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListChains(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/chains", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0x2be3", body["selected"])
	assert.NotEmpty(t, body["chains"])
}

func TestDecideNavigation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		input  string
		action navigation.Action
		url    string
	}{
		{"plain", "https://app.uniswap.org", navigation.ActionAllow, "https://app.uniswap.org"},
		{"bare host", "evil.example", navigation.ActionAllowAfterConfirm, "https://evil.example"},
		{"dynamic link", "https://links.wallet.example/?link=haqq%3A%2F%2Fx", navigation.ActionRedirectExternal, ""},
		{"internal", "about:blank", navigation.ActionAllow, "about:blank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(DecideRequest{URL: tt.input})
			require.NoError(t, err)

			code, body := f.do(t, http.MethodPost, "/navigation/decide", string(payload))
			assert.Equal(t, http.StatusOK, code)
			decision := body["decision"].(map[string]any)
			assert.Equal(t, string(tt.action), decision["action"])
			if tt.url != "" {
				assert.Equal(t, tt.url, body["url"])
			}
		})
	}

	code, _ := f.do(t, http.MethodPost, "/navigation/decide", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
