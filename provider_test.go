package treestate

import (
	"errors"
	"testing"
)

func TestSizeLimit(t *testing.T) {
	u := Unbounded()
	if !u.IsUnbounded() {
		t.Error("Unbounded().IsUnbounded() = false, want true")
	}
	if _, ok := u.Value(); ok {
		t.Error("Unbounded().Value() ok = true, want false")
	}
	if got := u.String(); got != "unbounded" {
		t.Errorf("Unbounded().String() = %q, want %q", got, "unbounded")
	}

	l := Limit(42)
	if l.IsUnbounded() {
		t.Error("Limit(42).IsUnbounded() = true, want false")
	}
	v, ok := l.Value()
	if !ok || v != 42 {
		t.Errorf("Limit(42).Value() = (%d, %v), want (42, true)", v, ok)
	}
	if got := l.String(); got != "42" {
		t.Errorf("Limit(42).String() = %q, want %q", got, "42")
	}
}

func TestHierarchyNode_Id(t *testing.T) {
	parentKeys := []NodeKey{GenericKey{Value: "root"}}
	n := HierarchyNode{Key: GenericKey{Value: "child"}, ParentKeys: parentKeys}
	want := createNodeId(parentKeys, n.Key)
	if got := n.Id(); got != want {
		t.Errorf("HierarchyNode.Id() = %q, want %q", got, want)
	}
}

func TestHierarchyNode_IsGroupingNode(t *testing.T) {
	plain := HierarchyNode{Key: GenericKey{Value: "x"}}
	if plain.IsGroupingNode() {
		t.Error("plain node reported as grouping node")
	}
	grouped := HierarchyNode{Key: GroupingKey{Kind: GroupByClass, Value: "x"}}
	if !grouped.IsGroupingNode() {
		t.Error("grouping-keyed node not reported as grouping node")
	}
}

func TestRowsLimitExceededError(t *testing.T) {
	err := &RowsLimitExceededError{Limit: Limit(10)}
	want := "rows limit exceeded: 10"
	if got := err.Error(); got != want {
		t.Errorf("RowsLimitExceededError.Error() = %q, want %q", got, want)
	}
}

func TestTimeoutError(t *testing.T) {
	cause := errors.New("deadline")
	err := &TimeoutError{Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("TimeoutError does not unwrap to its cause")
	}
	want := "hierarchy load timed out: deadline"
	if got := err.Error(); got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
}
