// Package inmemorystore provides a thread-safe, in-memory implementation
// of the snapshotstore.Store interface. It is suitable for development, testing,
// or any scenario where documents do not need to outlive the process.
package inmemorystore
