package mcts

// nodeID indexes a Node inside a tree's arena. It replaces cross-tree
// pointers entirely: a Node only ever refers to other nodes of the same
// tree by index, so the whole tree can be freed (or partially pruned) by
// returning indices to a freelist instead of relying on the garbage
// collector to find a cycle-free graph.
type nodeID int32

// NodeID is an exported alias for nodeID, letting a caller outside this
// package (the player orchestrating search) hold a leaf reference
// returned by SelectLeaf/Path.Leaf without this package exposing the
// arena's internal representation as a brand new concrete type.
type NodeID = nodeID

// nilNode marks the absence of a child edge (not yet traversed) or of a
// parent (the tree root).
const nilNode nodeID = -1

func (id nodeID) isValid() bool { return id >= 0 }
