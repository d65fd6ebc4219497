// Package eventbus carries the change events of confirmed actions from a
// document's run context to whoever listens: websocket clients through the
// in-process Hub, and other processes through Redis pub/sub.
package eventbus
