// Package nodesystem implements the node graph behind Plantarium.
//
// A System owns a set of nodes created from registered node types, the
// connection table wiring their output sockets to input sockets, and a
// designated output node. Every mutation schedules the affected nodes and
// recomputes their downstream closure in topological order; the output
// node's result is published as a result event.
//
// Mutations are recorded by a coalescing, diff-based undo history, and a
// debounced save event carries the serialized snapshot. Coalescing is driven
// explicitly through Tick, FlushPending or Run, against an injectable Clock.
package nodesystem
