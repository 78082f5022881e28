package treestate

import (
	"context"
	"iter"
)

// NodeInfo is returned by the tree-walking iterators below and carries
// traversal metadata about a node in addition to the node itself.
type NodeInfo struct {
	Id     NodeId
	Node   *ModelNode
	Depth  int
	IsLast bool
}

// All returns a depth-first iterator over every node reachable from id
// whose children are known, regardless of expansion state. Context errors
// are returned unwrapped.
func All(ctx context.Context, m *TreeModel, id NodeId) iter.Seq2[NodeInfo, error] {
	return dfsSeq(ctx, m, id, true)
}

// Visible returns a depth-first iterator over id's descendants that are
// actually on screen: a node is visited only if every one of its ancestors
// (down to id) is expanded. This is the traversal [FlatVisibleOrder] is
// built from.
func Visible(ctx context.Context, m *TreeModel, id NodeId) iter.Seq2[NodeInfo, error] {
	return dfsSeq(ctx, m, id, false)
}

// BreadthFirst returns a breadth-first iterator over every node reachable
// from id whose children are known, regardless of expansion state.
func BreadthFirst(ctx context.Context, m *TreeModel, id NodeId) iter.Seq2[NodeInfo, error] {
	return bfsSeq(ctx, m, id)
}

// dfsSeq walks depth-first starting at id's children. followCollapsed
// controls whether a node's children are pushed even when the node itself
// is collapsed (or is an info node, or is id; id itself is never yielded).
func dfsSeq(ctx context.Context, m *TreeModel, id NodeId, followCollapsed bool) iter.Seq2[NodeInfo, error] {
	return func(yield func(NodeInfo, error) bool) {
		roots, ok := m.parentChildMap[id]
		if !ok {
			return
		}
		stack := make([]NodeInfo, 0, len(roots))
		for i := len(roots) - 1; i >= 0; i-- {
			n := m.idToNode[roots[i]]
			stack = append(stack, NodeInfo{Id: roots[i], Node: n, Depth: 0, IsLast: i == len(roots)-1})
		}

		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				yield(NodeInfo{}, err)
				return
			}

			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if !yield(f, nil) {
				return
			}

			descend := followCollapsed || (f.Node.Hierarchy != nil && f.Node.Hierarchy.IsExpanded)
			if !descend {
				continue
			}
			children, ok := m.parentChildMap[f.Id]
			if !ok {
				continue
			}
			for i := len(children) - 1; i >= 0; i-- {
				n := m.idToNode[children[i]]
				stack = append(stack, NodeInfo{Id: children[i], Node: n, Depth: f.Depth + 1, IsLast: i == len(children)-1})
			}
		}
	}
}

// bfsSeq walks breadth-first starting at id's children.
func bfsSeq(ctx context.Context, m *TreeModel, id NodeId) iter.Seq2[NodeInfo, error] {
	return func(yield func(NodeInfo, error) bool) {
		roots, ok := m.parentChildMap[id]
		if !ok {
			return
		}
		queue := make([]NodeInfo, 0, len(roots))
		for i, r := range roots {
			n := m.idToNode[r]
			queue = append(queue, NodeInfo{Id: r, Node: n, Depth: 0, IsLast: i == len(roots)-1})
		}

		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				yield(NodeInfo{}, err)
				return
			}

			f := queue[0]
			queue = queue[1:]

			if !yield(f, nil) {
				return
			}

			children, ok := m.parentChildMap[f.Id]
			if !ok {
				continue
			}
			for i, c := range children {
				n := m.idToNode[c]
				queue = append(queue, NodeInfo{Id: c, Node: n, Depth: f.Depth + 1, IsLast: i == len(children)-1})
			}
		}
	}
}

// FlatVisibleOrder materializes [Visible]'s traversal from the root into a
// slice, the shape range-selection is computed over.
func FlatVisibleOrder(m *TreeModel) []NodeId {
	ids := make([]NodeId, 0)
	for info, err := range Visible(context.Background(), m, RootId) {
		if err != nil {
			break
		}
		ids = append(ids, info.Id)
	}
	return ids
}
