package remote

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/dappbridge/internal/domain/origin"
	"github.com/GriffinCanCode/dappbridge/internal/domain/wallet"
	"github.com/GriffinCanCode/dappbridge/internal/web3/bridge"
	"github.com/GriffinCanCode/dappbridge/internal/web3/methods"
	"github.com/GriffinCanCode/dappbridge/internal/web3/navigation"
)

const (
	dapp     = "https://dapp.example"
	accountA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type harness struct {
	store   *origin.Store
	manager *bridge.Manager
	ws      *websocket.Conn
}

func newHarness(t *testing.T, cfg Config, query string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := origin.NewStore(ctx, origin.NewMemoryBackend(), logger)
	require.NoError(t, err)
	w, err := wallet.New(wallet.DefaultRegistry(), "0x2be3", []string{accountA})
	require.NoError(t, err)

	manager := bridge.NewManager(bridge.ManagerOptions{
		Methods:    methods.Deps{Wallet: w},
		Navigation: navigation.Options{DynamicLinkHosts: []string{"links.wallet.example"}},
		Sessions:   store,
	}, nil, logger)
	t.Cleanup(manager.CloseAll)

	router := gin.New()
	router.GET("/tabs/connect", NewHandler(manager, cfg, nil, nil, logger).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tabs/connect" + query
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	return &harness{store: store, manager: manager, ws: ws}
}

func (h *harness) write(t *testing.T, f Frame) {
	t.Helper()
	require.NoError(t, h.ws.WriteJSON(f))
}

// next reads frames until one of type typ satisfies match.
func (h *harness) next(t *testing.T, typ string, match func(Frame) bool) Frame {
	t.Helper()
	require.NoError(t, h.ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f Frame
		require.NoError(t, h.ws.ReadJSON(&f))
		if f.Type == typ && (match == nil || match(f)) {
			return f
		}
	}
}

func isResponse(f Frame) bool {
	return strings.Contains(f.Script, "window.postMessage(")
}

func (h *harness) postRequest(t *testing.T, id int, method string) {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"data":   map[string]any{"id": id, "jsonrpc": "2.0", "method": method, "params": []any{}},
		"origin": dapp,
		"name":   bridge.DefaultProviderName,
	})
	require.NoError(t, err)
	data, err := json.Marshal(string(msg))
	require.NoError(t, err)
	h.write(t, Frame{Type: FrameMessage, Data: data})
}

// open greets, navigates to dapp and completes the load handshake.
func (h *harness) open(t *testing.T) string {
	t.Helper()
	ready := h.next(t, FrameReady, nil)
	require.NotEmpty(t, ready.TabID)
	assert.Contains(t, ready.Script, bridge.DefaultProviderName)
	assert.NotContains(t, ready.Script, "__DAPP_BRIDGE_CONFIG__")

	h.next(t, FrameInject, func(f Frame) bool { return strings.Contains(f.Script, dapp) })

	h.write(t, Frame{Type: FrameShouldStart, ID: "nav-1", URL: dapp + "/"})
	res := h.next(t, FrameShouldStartResult, nil)
	assert.Equal(t, "nav-1", res.ID)
	require.NotNil(t, res.Allow)
	assert.True(t, *res.Allow)

	h.write(t, Frame{Type: FrameLoad, URL: dapp + "/"})
	return ready.TabID
}

func TestConnectionGreetsAndNavigates(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "?url="+dapp+"/")
	tabID := h.open(t)

	require.Eventually(t, func() bool {
		infos := h.manager.List()
		return len(infos) == 1 && infos[0].ID == tabID && infos[0].Origin == dapp
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAccountPromptRoundTrip(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "?url="+dapp+"/")
	h.open(t)

	h.postRequest(t, 1, "eth_requestAccounts")
	prompt := h.next(t, FramePrompt, nil)
	assert.Equal(t, PromptSelectAccount, prompt.Kind)
	assert.True(t, strings.HasPrefix(prompt.ID, "prm_"))
	assert.Contains(t, string(prompt.Data), accountA)

	h.write(t, Frame{Type: FramePromptResult, ID: prompt.ID, Data: json.RawMessage(`"` + accountA + `"`)})

	changed := h.next(t, FrameAccountsChanged, func(f Frame) bool { return strings.Contains(string(f.Data), accountA) })
	assert.JSONEq(t, `["`+accountA+`"]`, string(changed.Data))

	resp := h.next(t, FrameInject, isResponse)
	assert.Contains(t, resp.Script, `"result":["`+accountA+`"]`)

	sess, ok := h.store.GetByOrigin(dapp)
	require.True(t, ok)
	assert.True(t, sess.IsActive())
}

func TestDeclinedPromptYieldsNoAccounts(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "?url="+dapp+"/")
	h.open(t)

	h.postRequest(t, 7, "eth_requestAccounts")
	prompt := h.next(t, FramePrompt, nil)
	h.write(t, Frame{Type: FramePromptResult, ID: prompt.ID, Error: ReplyRejected})

	resp := h.next(t, FrameInject, isResponse)
	assert.Contains(t, resp.Script, `"result":[]`)
	_, ok := h.store.GetByOrigin(dapp)
	assert.False(t, ok)
}

func TestPromptTimeoutCancels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromptTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg, "?url="+dapp+"/")
	h.open(t)

	h.postRequest(t, 3, "eth_requestAccounts")
	h.next(t, FramePrompt, nil)

	resp := h.next(t, FrameInject, isResponse)
	assert.Contains(t, resp.Script, `"result":[]`)
}

func TestPingAndUnknownFrames(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "")
	h.next(t, FrameReady, nil)

	h.write(t, Frame{Type: FramePing})
	h.next(t, FramePong, nil)

	h.write(t, Frame{Type: "bogus"})
	errFrame := h.next(t, FrameError, nil)
	assert.Equal(t, "unknown message type", errFrame.Message)

	require.NoError(t, h.ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errFrame = h.next(t, FrameError, nil)
	assert.Equal(t, "malformed frame", errFrame.Message)
}

func TestDisconnectClosesTab(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "")
	h.next(t, FrameReady, nil)
	require.Eventually(t, func() bool { return h.manager.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.ws.Close())
	require.Eventually(t, func() bool { return h.manager.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPageMessageAcceptsObjectOrString(t *testing.T) {
	obj := Frame{Data: json.RawMessage(`{"type":"WINDOW_INFO"}`)}
	assert.Equal(t, `{"type":"WINDOW_INFO"}`, string(obj.pageMessage()))

	str := Frame{Data: json.RawMessage(`"{\"type\":\"WINDOW_INFO\"}"`)}
	assert.Equal(t, `{"type":"WINDOW_INFO"}`, string(str.pageMessage()))
}

func TestDynamicLinkHandsOffAndCloses(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "")
	h.next(t, FrameReady, nil)

	h.write(t, Frame{Type: FrameNavigate, URL: "https://links.wallet.example/?link=haqq%3A%2F%2Fsend"})
	link := h.next(t, FrameDynamicLink, nil)
	assert.Equal(t, "haqq://send", link.URL)
	h.next(t, FrameClose, nil)
}
