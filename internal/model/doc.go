// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the reactive calculation model: a tree of named members
// whose values are derived from HCL expressions that reference one another.
//
// # Core Concepts
//
//   - Model: The aggregate root. It owns the id → member registry, the reverse
//     dependency map ("who reads me") and the top-level children. A Model is
//     also the root of name resolution.
//
//   - Member: A named node. DataMember holds a value, optionally computed by
//     code. FunctionMember holds a callable compiled from code. Folder groups
//     children and exposes their values as one object. FolderFunction turns a
//     folder of members into a callable. ErrorMember stands in for a member of
//     an unknown type.
//
//   - State: Every member is NORMAL, ERROR, PENDING or INVALID once calculated.
//     Non-normal states flow to dependents: an error upstream becomes a
//     "depends on" error downstream.
//
// # Snapshots
//
// Models and members are copy-on-write records. Once LockAll has run, a model
// and everything it references is frozen and may be shared freely between
// goroutines. Changing anything means taking a mutable copy of the model
// (GetMutableModel) and of each member touched (GetMutableMember). Untouched
// members are shared by reference between the old and new snapshots.
//
// Model does not apply actions itself; the action package drives creation,
// deletion, updates and recalculation through the exported API here.
package model
