package remote

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

// Frame types sent by the renderer.
const (
	FrameMessage      = "message"
	FrameLoad         = "load"
	FrameShouldStart  = "should_start"
	FramePromptResult = "prompt_result"
	FrameNavigate     = "navigate"
	FramePing         = "ping"
)

// Frame types sent to the renderer.
const (
	FrameReady             = "ready"
	FrameInject            = "inject"
	FrameReload            = "reload"
	FrameClose             = "close"
	FramePrompt            = "prompt"
	FrameShouldStartResult = "should_start_result"
	FrameOpenExternal      = "open_external"
	FrameNetworkSettings   = "open_network_settings"
	FrameDynamicLink       = "dynamic_link"
	FrameAccountsChanged   = "accounts_changed"
	FrameWindowInfo        = "window_info"
	FramePong              = "pong"
	FrameError             = "error"
)

// Prompt kinds.
const (
	PromptSelectAccount   = "select_account"
	PromptConfirmPhishing = "confirm_phishing"
	PromptConfirmExternal = "confirm_external"
	PromptCanOpen         = "can_open"
	PromptSign            = "sign"
)

// Prompt error strings a renderer uses to decline.
const (
	ReplyRejected  = "rejected"
	ReplyCancelled = "cancelled"
)

// Frame is one WebSocket message in either direction. Only the fields a
// type needs are set.
type Frame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	TabID     string          `json:"tab_id,omitempty"`
	URL       string          `json:"url,omitempty"`
	Script    string          `json:"script,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Allow     *bool           `json:"allow,omitempty"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

func newFrame(typ string) Frame {
	return Frame{Type: typ, Timestamp: time.Now().Unix()}
}

// pageMessage returns the raw page message carried by a message frame. The
// renderer may forward the channel string as is or as an already-decoded
// object.
func (f Frame) pageMessage() []byte {
	if len(f.Data) > 0 && f.Data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(f.Data, &s); err == nil {
			return []byte(s)
		}
	}
	return f.Data
}
