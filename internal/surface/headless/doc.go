/*
Package headless renders dApp pages in-process for the bridge.

# Overview

A Surface loads a document over HTTP, parses it with goquery and gives it
a goja runtime with a minimal window: event listeners, postMessage,
location, console and a document that answers simple selector queries.
There is no layout and no network access from page code.

# Page lifecycle

 1. Load fetches the URL through the shared HTTP client
 2. A fresh runtime is created and the window environment installed
 3. The attached page's preload script runs, then inline page scripts
 4. The page is told the load finished

Scripts posted to window.__dappBridge reach the attached Page. Assigning
location.href asks the Page whether to load, then loads asynchronously.

# Limits

Every script runs under Config.Timeout and is interrupted when its context
ends. Timers are inert.
*/
package headless
