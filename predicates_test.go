package treestate

import "testing"

func hierNode(label string, opts ...func(*HierarchyModelNode)) *ModelNode {
	h := &HierarchyModelNode{NodeData: HierarchyNode{Label: label}}
	for _, opt := range opts {
		opt(h)
	}
	return &ModelNode{Hierarchy: h}
}

func infoNode() *ModelNode {
	return &ModelNode{Info: &InfoModelNode{Type: InfoUnknown}}
}

func TestPredIsExpanded(t *testing.T) {
	expanded := hierNode("a", func(h *HierarchyModelNode) { h.IsExpanded = true })
	collapsed := hierNode("a")

	if !PredIsExpanded(expanded) {
		t.Error("PredIsExpanded(expanded) = false, want true")
	}
	if PredIsExpanded(collapsed) {
		t.Error("PredIsExpanded(collapsed) = true, want false")
	}
	if PredIsExpanded(infoNode()) {
		t.Error("PredIsExpanded(info node) = true, want false")
	}
}

func TestPredIsCollapsed(t *testing.T) {
	if PredIsCollapsed(hierNode("a", func(h *HierarchyModelNode) { h.IsExpanded = true })) {
		t.Error("PredIsCollapsed(expanded) = true, want false")
	}
	if !PredIsCollapsed(hierNode("a")) {
		t.Error("PredIsCollapsed(collapsed) = false, want true")
	}
	if !PredIsCollapsed(infoNode()) {
		t.Error("PredIsCollapsed(info node) = false, want true (info nodes count as collapsed)")
	}
}

func TestPredIsSelected(t *testing.T) {
	selected := hierNode("a", func(h *HierarchyModelNode) { h.IsSelected = true })
	if !PredIsSelected(selected) {
		t.Error("PredIsSelected(selected) = false, want true")
	}
	if PredIsSelected(hierNode("a")) {
		t.Error("PredIsSelected(unselected) = true, want false")
	}
}

func TestPredIsLoading(t *testing.T) {
	loading := hierNode("a", func(h *HierarchyModelNode) { h.IsLoading = true })
	if !PredIsLoading(loading) {
		t.Error("PredIsLoading(loading) = false, want true")
	}
	if PredIsLoading(hierNode("a")) {
		t.Error("PredIsLoading(not loading) = true, want false")
	}
}

func TestPredIsInfoNode(t *testing.T) {
	if !PredIsInfoNode(infoNode()) {
		t.Error("PredIsInfoNode(info node) = false, want true")
	}
	if PredIsInfoNode(hierNode("a")) {
		t.Error("PredIsInfoNode(hierarchy node) = true, want false")
	}
}

func TestPredHasError(t *testing.T) {
	withErr := hierNode("a", func(h *HierarchyModelNode) { h.Error = &NodeError{Type: ErrorTimeout} })
	if !PredHasError(withErr) {
		t.Error("PredHasError(node with error) = false, want true")
	}
	if PredHasError(hierNode("a")) {
		t.Error("PredHasError(node without error) = true, want false")
	}
}

func TestPredIsGroupingNode(t *testing.T) {
	grouping := &ModelNode{Hierarchy: &HierarchyModelNode{NodeData: HierarchyNode{
		Key:   GroupingKey{Kind: GroupByClass, Value: "g"},
		Label: "g",
	}}}
	if !PredIsGroupingNode(grouping) {
		t.Error("PredIsGroupingNode(grouping key) = false, want true")
	}
	if PredIsGroupingNode(hierNode("a")) {
		t.Error("PredIsGroupingNode(generic key) = true, want false")
	}
}

func TestPredHasLabel(t *testing.T) {
	pred := PredHasLabel("Alpha")
	if !pred(hierNode("Alpha")) {
		t.Error("PredHasLabel exact match failed")
	}
	if pred(hierNode("alpha")) {
		t.Error("PredHasLabel should be case-sensitive")
	}
}

func TestPredHasLabelIgnoreCase(t *testing.T) {
	pred := PredHasLabelIgnoreCase("Alpha")
	if !pred(hierNode("alpha")) {
		t.Error("PredHasLabelIgnoreCase should match regardless of case")
	}
	if pred(hierNode("Beta")) {
		t.Error("PredHasLabelIgnoreCase matched an unrelated label")
	}
}

func TestPredContainsLabel(t *testing.T) {
	pred := PredContainsLabel("pha")
	if !pred(hierNode("Alpha")) {
		t.Error("PredContainsLabel should match a substring regardless of case")
	}
	if pred(hierNode("Beta")) {
		t.Error("PredContainsLabel matched a label without the substring")
	}
}

func TestPredNot(t *testing.T) {
	always := func(*ModelNode) bool { return true }
	if PredNot(always)(hierNode("a")) {
		t.Error("PredNot(always true) should be false")
	}
}

func TestPredAnd(t *testing.T) {
	n := hierNode("Alpha", func(h *HierarchyModelNode) { h.IsExpanded = true })
	if !PredAnd(PredIsExpanded, PredHasLabel("Alpha"))(n) {
		t.Error("PredAnd should match when all predicates hold")
	}
	if PredAnd(PredIsExpanded, PredHasLabel("Beta"))(n) {
		t.Error("PredAnd should not match when one predicate fails")
	}
}

func TestPredOr(t *testing.T) {
	n := hierNode("Alpha")
	if !PredOr(PredIsExpanded, PredHasLabel("Alpha"))(n) {
		t.Error("PredOr should match when at least one predicate holds")
	}
	if PredOr(PredIsExpanded, PredHasLabel("Beta"))(n) {
		t.Error("PredOr should not match when no predicate holds")
	}
}
