// Package dag is a small directed graph used to order recalculation.
//
// Nodes are string ids. An edge from a to b records that b depends on a, so
// in a topological order a always comes before b. Iteration follows node
// insertion order, which keeps the produced orders deterministic.
package dag
