// Package ws exposes host channels over websockets.
//
// Each connection gets its own host.Channel, so a client has at most one
// live run; sending execute again supersedes it and terminate abandons it.
// Exactly one complete message is sent per execute that is not abandoned.
package ws
