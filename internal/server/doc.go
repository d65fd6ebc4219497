// Package server exposes open documents over HTTP. Actions are posted as JSON
// and the changes of every confirmed action are streamed to websocket
// clients.
package server
