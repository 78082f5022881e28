package treestate

import (
	"context"
	"testing"
)

func seededActionsWithChildren(t *testing.T, values ...string) (*TreeActions, []NodeId) {
	t.Helper()
	var nodes []HierarchyNode
	for _, v := range values {
		nodes = append(nodes, HierarchyNode{Key: GenericKey{Value: v}})
	}
	p := &fakeProvider{byParent: map[string]func() ([]HierarchyNode, error){
		"": func() ([]HierarchyNode, error) { return nodes, nil },
	}}
	actions := newActionsForTest(p)
	actions.ReloadSubTree(context.Background(), RootId, ReloadOptions{State: ReloadDiscard})
	waitFor(t, func() bool { return ChildrenKnown(actions.Model(), RootId) })

	ids, _ := Children(actions.Model(), RootId)
	return actions, ids
}

func TestSelectionHandler_SingleMode(t *testing.T) {
	actions, ids := seededActionsWithChildren(t, "a", "b", "c")
	h := NewSelectionHandler(actions, SelectionSingle)
	h.SyncVisibleOrder(actions.Model())

	h.Click(ids[0], ClickModifiers{})
	if !IsNodeSelected(actions.Model(), ids[0]) {
		t.Fatal("first click did not select")
	}
	h.Click(ids[1], ClickModifiers{})
	if IsNodeSelected(actions.Model(), ids[0]) || !IsNodeSelected(actions.Model(), ids[1]) {
		t.Error("SelectionSingle did not replace the previous selection")
	}
}

func TestSelectionHandler_SingleMode_ClickOnSelectedDeselects(t *testing.T) {
	actions, ids := seededActionsWithChildren(t, "a", "b")
	h := NewSelectionHandler(actions, SelectionSingle)
	h.SyncVisibleOrder(actions.Model())

	h.Click(ids[0], ClickModifiers{})
	h.Click(ids[0], ClickModifiers{})
	if IsNodeSelected(actions.Model(), ids[0]) {
		t.Error("clicking the sole selected node again should deselect it")
	}
}

func TestSelectionHandler_MultipleMode_TogglesRegardlessOfModifiers(t *testing.T) {
	actions, ids := seededActionsWithChildren(t, "a", "b", "c")
	h := NewSelectionHandler(actions, SelectionMultiple)
	h.SyncVisibleOrder(actions.Model())

	h.Click(ids[0], ClickModifiers{})
	h.Click(ids[1], ClickModifiers{})
	if !IsNodeSelected(actions.Model(), ids[0]) || !IsNodeSelected(actions.Model(), ids[1]) {
		t.Fatal("plain click did not add to the existing selection")
	}

	h.Click(ids[0], ClickModifiers{Ctrl: true})
	if IsNodeSelected(actions.Model(), ids[0]) {
		t.Error("click on a selected node did not toggle it off")
	}
	if !IsNodeSelected(actions.Model(), ids[1]) {
		t.Error("toggle affected an unrelated node")
	}
}

func TestSelectionHandler_ExtendedMode_ShiftRange(t *testing.T) {
	actions, ids := seededActionsWithChildren(t, "a", "b", "c", "d")
	h := NewSelectionHandler(actions, SelectionExtended)
	h.SyncVisibleOrder(actions.Model())

	h.Click(ids[0], ClickModifiers{})
	h.Click(ids[2], ClickModifiers{Shift: true})

	for i, id := range ids {
		want := i <= 2
		if got := IsNodeSelected(actions.Model(), id); got != want {
			t.Errorf("IsNodeSelected(ids[%d]) = %v, want %v", i, got, want)
		}
	}
}

func TestSelectionHandler_ExtendedMode_ShiftExtendsFromSameAnchor(t *testing.T) {
	actions, ids := seededActionsWithChildren(t, "a", "b", "c", "d")
	h := NewSelectionHandler(actions, SelectionExtended)
	h.SyncVisibleOrder(actions.Model())

	h.Click(ids[0], ClickModifiers{})
	h.Click(ids[1], ClickModifiers{Shift: true})
	h.Click(ids[3], ClickModifiers{Shift: true})

	for i, id := range ids {
		want := i <= 3
		if got := IsNodeSelected(actions.Model(), id); got != want {
			t.Errorf("IsNodeSelected(ids[%d]) = %v, want %v (anchor should stay at ids[0])", i, got, want)
		}
	}
}

func TestSelectionHandler_NoneMode_IgnoresClicks(t *testing.T) {
	actions, ids := seededActionsWithChildren(t, "a", "b")
	h := NewSelectionHandler(actions, SelectionNone)
	h.SyncVisibleOrder(actions.Model())

	h.Click(ids[0], ClickModifiers{})
	if IsNodeSelected(actions.Model(), ids[0]) {
		t.Error("SelectionNone click selected a node")
	}
}

func TestSelectionHandler_KeyActivate_MatchesClick(t *testing.T) {
	actions, ids := seededActionsWithChildren(t, "a", "b")
	h := NewSelectionHandler(actions, SelectionSingle)
	h.SyncVisibleOrder(actions.Model())

	h.KeyActivate(ids[0], ClickModifiers{})
	if !IsNodeSelected(actions.Model(), ids[0]) {
		t.Error("KeyActivate did not select like a click")
	}
}

func TestRangeBetween(t *testing.T) {
	order := []NodeId{idOf("a"), idOf("b"), idOf("c"), idOf("d")}

	got := rangeBetween(order, idOf("b"), idOf("d"))
	want := []NodeId{idOf("b"), idOf("c"), idOf("d")}
	if len(got) != len(want) {
		t.Fatalf("rangeBetween() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rangeBetween()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Reversed order of the same two endpoints yields the same range.
	reversed := rangeBetween(order, idOf("d"), idOf("b"))
	for i := range want {
		if reversed[i] != want[i] {
			t.Errorf("rangeBetween(reversed)[%d] = %v, want %v", i, reversed[i], want[i])
		}
	}

	if got := rangeBetween(order, idOf("ghost"), idOf("c")); len(got) != 1 || got[0] != idOf("c") {
		t.Errorf("rangeBetween(absent, c) = %v, want [c]", got)
	}
}
