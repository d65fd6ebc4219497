// Package runcontext hosts model lineages.
//
// A Document owns one lineage: it holds the confirmed model and runs every
// action against it on a single goroutine, so actions never overlap. Actions
// arrive synchronously through Execute or asynchronously through
// FutureExecuteAction, which is how promise completions and queued messenger
// work get back into the model. A failed action leaves the confirmed model
// in place; a successful one replaces it and its change events are
// published.
package runcontext
