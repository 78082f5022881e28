package treestate

import (
	"context"
	"iter"
	"strconv"
)

// SizeLimit is a per-hierarchy-level size cap reported back on a
// ResultSetTooLarge info node as "the offending limit". Whether an
// "unbounded" cap can itself be reported as exceeded is left to the
// provider: this type is a closed sum of "a concrete count" or
// "unbounded" rather than a bare int so provider implementations are
// forced to say which one they mean, and the engine never has to guess: it
// accepts and forwards whatever the provider reports, including an
// "unbounded" limit being exceeded.
type SizeLimit struct {
	unbounded bool
	value     int
}

// Unbounded returns a SizeLimit with no cap.
func Unbounded() SizeLimit { return SizeLimit{unbounded: true} }

// Limit returns a SizeLimit capped at n. n must be > 0.
func Limit(n int) SizeLimit { return SizeLimit{value: n} }

// IsUnbounded reports whether the limit is "unbounded".
func (s SizeLimit) IsUnbounded() bool { return s.unbounded }

// Value returns the concrete cap and true, or (0, false) if unbounded.
func (s SizeLimit) Value() (int, bool) { return s.value, !s.unbounded }

func (s SizeLimit) String() string {
	if s.unbounded {
		return "unbounded"
	}
	return strconv.Itoa(s.value)
}

// FilterRule is an opaque, provider-defined structured predicate. The
// engine never interprets it; it only stores and forwards it.
type FilterRule any

// InstanceFilter is a predicate applied to a single hierarchy level,
// independent of filters applied elsewhere. A nil
// *InstanceFilter means "no filter active" at that level.
type InstanceFilter struct {
	Rule FilterRule
}

// NodePath is a root-to-target sequence of instance keys, as produced by a
// caller's path-finding logic (e.g. "reveal this instance in the tree").
type NodePath []InstanceKey

// HierarchyNode is the provider's description of a single node, before the
// engine wraps it into a tree model node.
type HierarchyNode struct {
	Key         NodeKey
	ParentKeys  []NodeKey
	Label       string
	HasChildren bool

	AutoExpand        bool
	SupportsFiltering bool
	ExtendedData      map[string]any

	// NonGroupingAncestorId is populated by the provider's grouping step for
	// grouping nodes only; it is an id, not a pointer, to
	// avoid a mutual owning cycle between a grouping node and its
	// non-grouping ancestor.
	NonGroupingAncestorId *NodeId
}

// Id derives the node's stable identifier from its key path.
func (n HierarchyNode) Id() NodeId {
	return createNodeId(n.ParentKeys, n.Key)
}

// IsGroupingNode reports whether the node's key is a [GroupingKey].
func (n HierarchyNode) IsGroupingNode() bool {
	_, ok := n.Key.(GroupingKey)
	return ok
}

// GetNodesRequest is the input to [HierarchyProvider.GetNodes].
type GetNodesRequest struct {
	// ParentNode is nil when requesting root-level nodes.
	ParentNode              *HierarchyNode
	HierarchyLevelSizeLimit SizeLimit
	InstanceFilter          *InstanceFilter
	IgnoreCache             bool
}

// GetNodeInstanceKeysRequest is the input to
// [HierarchyProvider.GetNodeInstanceKeys].
type GetNodeInstanceKeysRequest struct {
	ParentNode              *HierarchyNode
	InstanceFilter          *InstanceFilter
	HierarchyLevelSizeLimit SizeLimit
}

// FormatterFunc formats a hierarchy node's label. A nil value restores the
// provider's built-in formatting.
type FormatterFunc func(HierarchyNode) string

// FilterChange describes a hierarchy-wide target-path filter update.
type FilterChange struct {
	NewFilter []NodePath
}

// FormatterChange marks that the active formatter changed.
type FormatterChange struct{}

// HierarchyChangeEvent is delivered to listeners registered via
// [HierarchyProvider.OnHierarchyChanged]. At least one of its fields is
// non-nil.
type HierarchyChangeEvent struct {
	FilterChange    *FilterChange
	FormatterChange *FormatterChange
}

// RowsLimitExceededError is the signal a provider raises, instead of a
// generic error, when a level's result set exceeds the requested
// [SizeLimit].
type RowsLimitExceededError struct {
	Limit SizeLimit
}

func (e *RowsLimitExceededError) Error() string {
	return "rows limit exceeded: " + e.Limit.String()
}

// TimeoutError is the signal a provider raises when it gives up on a
// request after its own deadline, as distinct from a generic failure.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string { return "hierarchy load timed out: " + e.Cause.Error() }
func (e *TimeoutError) Unwrap() error { return e.Cause }

// HierarchyProvider is the only collaborator the engine calls.
// Implementations live outside this package; providers/memory,
// providers/filesystem, and providers/s3 ship three of them.
//
// GetNodes returns a lazy, finite, non-restartable sequence of nodes (or
// an error). A *RowsLimitExceededError yielded as the error of the final
// pair signals the rows-limit-exceeded case; any other non-nil error is a
// generic failure. The sequence must stop producing promptly once the
// supplied context is cancelled.
type HierarchyProvider interface {
	GetNodes(ctx context.Context, req GetNodesRequest) iter.Seq2[HierarchyNode, error]
	GetNodeInstanceKeys(ctx context.Context, req GetNodeInstanceKeysRequest) iter.Seq2[InstanceKey, error]

	SetFormatter(fn FormatterFunc)
	SetHierarchyFilter(paths []NodePath)

	// OnHierarchyChanged registers a listener invoked synchronously from
	// within the call that triggered the change (SetFormatter,
	// SetHierarchyFilter, or an external data change). The engine must not
	// call back into the provider from inside the listener.
	// The returned func unregisters the listener.
	OnHierarchyChanged(fn func(HierarchyChangeEvent)) (unsubscribe func())

	Dispose()
}
