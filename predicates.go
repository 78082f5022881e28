package treestate

import "strings"

// Common predicate functions for filtering [NodeInfo] streams produced by
// [All], [Visible], and [BreadthFirst].

// PredIsExpanded reports whether a node is a hierarchy node that is
// currently expanded.
func PredIsExpanded(n *ModelNode) bool {
	return n.Hierarchy != nil && n.Hierarchy.IsExpanded
}

// PredIsCollapsed is the inverse of PredIsExpanded; info nodes count as
// collapsed since they are never expandable.
func PredIsCollapsed(n *ModelNode) bool {
	return !PredIsExpanded(n)
}

// PredIsSelected reports whether a node is a selected hierarchy node.
func PredIsSelected(n *ModelNode) bool {
	return n.Hierarchy != nil && n.Hierarchy.IsSelected
}

// PredIsLoading reports whether a node's children are currently loading.
func PredIsLoading(n *ModelNode) bool {
	return n.Hierarchy != nil && n.Hierarchy.IsLoading
}

// PredIsInfoNode reports whether a node is an info node.
func PredIsInfoNode(n *ModelNode) bool {
	return n.IsInfoNode()
}

// PredHasError reports whether a node is a hierarchy node carrying a
// load error.
func PredHasError(n *ModelNode) bool {
	return n.Hierarchy != nil && n.Hierarchy.Error != nil
}

// PredIsGroupingNode reports whether a node's key is a [GroupingKey].
func PredIsGroupingNode(n *ModelNode) bool {
	return n.Hierarchy != nil && n.Hierarchy.NodeData.IsGroupingNode()
}

// PredHasLabel returns a predicate matching a node's label exactly
// (case-sensitive).
func PredHasLabel(label string) func(*ModelNode) bool {
	return func(n *ModelNode) bool {
		return n.Hierarchy != nil && n.Hierarchy.NodeData.Label == label
	}
}

// PredHasLabelIgnoreCase returns a predicate matching a node's label,
// case-insensitively.
func PredHasLabelIgnoreCase(label string) func(*ModelNode) bool {
	return func(n *ModelNode) bool {
		return n.Hierarchy != nil && strings.EqualFold(n.Hierarchy.NodeData.Label, label)
	}
}

// PredContainsLabel returns a predicate matching any node whose label
// contains substr, case-insensitively.
func PredContainsLabel(substr string) func(*ModelNode) bool {
	needle := strings.ToLower(substr)
	return func(n *ModelNode) bool {
		return n.Hierarchy != nil && strings.Contains(strings.ToLower(n.Hierarchy.NodeData.Label), needle)
	}
}

// PredNot negates a predicate.
func PredNot(p func(*ModelNode) bool) func(*ModelNode) bool {
	return func(n *ModelNode) bool { return !p(n) }
}

// PredAnd combines predicates, matching only when every one does.
func PredAnd(preds ...func(*ModelNode) bool) func(*ModelNode) bool {
	return func(n *ModelNode) bool {
		for _, p := range preds {
			if !p(n) {
				return false
			}
		}
		return true
	}
}

// PredOr combines predicates, matching when any one does.
func PredOr(preds ...func(*ModelNode) bool) func(*ModelNode) bool {
	return func(n *ModelNode) bool {
		for _, p := range preds {
			if p(n) {
				return true
			}
		}
		return false
	}
}
