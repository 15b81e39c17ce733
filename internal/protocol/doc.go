// Package protocol defines the JSON messages exchanged with clients.
//
// Channel connections (websocket):
//
//	→ {"type":"execute","code":"console.log(1)","timeout":3000,"autoRunDelay":500}
//	→ {"type":"terminate"}
//	→ {"type":"ping"}
//	← {"type":"complete","runId":"run_...","logs":[{"type":"log","content":"1","line":1}],"outcome":"completed","durationMs":104}
//	← {"type":"error","message":"..."}
//	← {"type":"pong"}
//
// One-shot HTTP:
//
//	POST /run {"source":"...","timeoutMs":3000} → {"runId":"...","logs":[...],"outcome":"...","durationMs":...}
//
// Encoding uses sonic in encoding/json compatible mode.
package protocol
