package bridge

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/dappbridge/internal/web3/inpage"
)

// Event names emitted on window.ethereum.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventDisconnect      = "disconnect"
)

// Event is an EIP-1193 provider event. Params become the arguments of
// window.ethereum.emit after the name.
type Event struct {
	Name   string
	Params []any
}

// AccountsChanged builds the accountsChanged event.
func AccountsChanged(accounts []string) Event {
	if accounts == nil {
		accounts = []string{}
	}
	return Event{Name: EventAccountsChanged, Params: []any{accounts}}
}

// ChainChanged builds the chainChanged event.
func ChainChanged(chainIDHex string) Event {
	return Event{Name: EventChainChanged, Params: []any{chainIDHex}}
}

// Disconnected builds the disconnect event.
func Disconnected() Event {
	return Event{Name: EventDisconnect}
}

// Message is the envelope posted to the page for a provider response.
type Message struct {
	Data   any    `json:"data"`
	Origin string `json:"origin"`
	Name   string `json:"name"`
}

// jsEscaper applies to encoded JSON, where these characters can only occur
// inside string literals.
var jsEscaper = strings.NewReplacer(
	"<", `\u003c`,
	">", `\u003e`,
	"&", `\u0026`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// jsLiteral renders v as a JavaScript expression. HTML-significant
// characters and the U+2028/U+2029 line terminators are escaped so page
// text can neither close a script element nor end a statement. Values that
// cannot be encoded become undefined.
func jsLiteral(v any) string {
	data, err := sonic.Marshal(v)
	if err != nil {
		return "undefined"
	}
	return jsEscaper.Replace(string(data))
}

// PostMessageJS delivers msg to the page's message listeners.
func PostMessageJS(msg Message, targetOrigin string) string {
	return "(function(){try{window.postMessage(" + jsLiteral(msg) + "," + jsLiteral(targetOrigin) +
		");}catch(e){console.error('bridge postMessage failed',e);}})();true;"
}

// EmitToEthereumJS emits ev on window.ethereum when a provider exists.
func EmitToEthereumJS(ev Event) string {
	var b strings.Builder
	b.WriteString("if(window.ethereum){window.ethereum.emit(")
	b.WriteString(jsLiteral(ev.Name))
	for _, p := range ev.Params {
		b.WriteByte(',')
		b.WriteString(jsLiteral(p))
	}
	b.WriteString(");}true;")
	return b.String()
}

// EmitToWindowJS dispatches a bubbling CustomEvent on window.
func EmitToWindowJS(name string, detail any) string {
	return "window.dispatchEvent(new CustomEvent(" + jsLiteral(name) +
		",{bubbles:true,detail:" + jsLiteral(detail) + "}));true;"
}

// ChangeLocationJS navigates the page to href.
func ChangeLocationJS(href string) string {
	return "(function(){window.location.href=" + jsLiteral(href) + ";})();true;"
}

// WindowInfoJS asks the page to report its title, URL and icon.
const WindowInfoJS = `(function(){var c=window.__dappBridge||window.ReactNativeWebView;if(!c){return;}` +
	`var i=document.querySelector?document.querySelector('link[rel~="icon"]'):null;` +
	`c.postMessage(JSON.stringify({type:'WINDOW_INFO',payload:{title:document.title,url:window.location.href,icon:i?i.href:undefined}}));})();true;`

// PreloadJS is the provider shim configured for one tab.
func PreloadJS(cfg inpage.Config) string {
	return strings.Replace(inpage.Source(), inpage.ConfigPlaceholder, jsLiteral(cfg), 1)
}
