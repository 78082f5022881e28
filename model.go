package treestate

import "fmt"

// NodeErrorType classifies an error attached to a hierarchy model node.
type NodeErrorType int

const (
	// ErrorChildrenLoad marks a generic children-load failure.
	ErrorChildrenLoad NodeErrorType = iota
	// ErrorTimeout marks a children-load failure the provider reported as
	// a timeout.
	ErrorTimeout
)

// NodeError is the error state attached to a hierarchy model node's
// Error field after a failed children load.
type NodeError struct {
	Type    NodeErrorType
	Message string
}

// InfoNodeType enumerates the non-hierarchy child kinds a loader may
// synthesize.
type InfoNodeType int

const (
	// InfoResultSetTooLarge marks a level whose result set exceeded its
	// configured SizeLimit.
	InfoResultSetTooLarge InfoNodeType = iota
	// InfoNoFilterMatches marks a level that came back empty while an
	// instance filter was active.
	InfoNoFilterMatches
	// InfoUnknown marks a generic children-load failure: the node carries
	// a user-neutral message, while the cause and its type (including the
	// ChildrenLoad case) live on the parent's Error field instead.
	InfoUnknown
)

// HierarchyModelNode is the state of a hierarchy node inside the model.
type HierarchyModelNode struct {
	NodeData       HierarchyNode
	IsExpanded     bool
	IsSelected     bool
	IsLoading      bool
	HierarchyLimit SizeLimit
	InstanceFilter *InstanceFilter
	Error          *NodeError
}

// InfoModelNode is the state of an info node inside the model.
type InfoModelNode struct {
	Type               InfoNodeType
	Message            string
	ResultSetSizeLimit *SizeLimit
}

// ModelNode is a single entry of [TreeModel.idToNode]: exactly one of
// Hierarchy or Info is non-nil.
type ModelNode struct {
	Id        NodeId
	ParentId  NodeId
	Hierarchy *HierarchyModelNode
	Info      *InfoModelNode
}

// IsInfoNode reports whether the node is an info node. Info nodes never
// have children.
func (n *ModelNode) IsInfoNode() bool { return n.Info != nil }

// LoadedNode is a node as produced by the loader, ready to be grafted into
// the model via [AddHierarchyPart].
type LoadedNode struct {
	Id        NodeId
	Hierarchy *HierarchyModelNode
	Info      *InfoModelNode
}

// LoadedTreePart is the atomic unit the loader hands to the model.
type LoadedTreePart struct {
	ParentId    NodeId
	LoadedNodes []LoadedNode
}

// TreeModel is the immutable, structurally-validated snapshot of a tree's
// state. Every mutator function in this file takes a *TreeModel and
// returns a new one; unchanged nodes are shared by pointer between the old
// and new snapshot (copy-on-write), so callers must never mutate a
// ModelNode in place.
type TreeModel struct {
	RootHierarchyLimit SizeLimit
	RootInstanceFilter *InstanceFilter
	RootIsLoading      bool
	RootError          *NodeError

	idToNode       map[NodeId]*ModelNode
	parentChildMap map[NodeId][]NodeId
}

// NewModel returns an empty model holding only the root sentinel, as
// created when a [TreeState] mounts.
func NewModel() *TreeModel {
	return &TreeModel{
		RootHierarchyLimit: Unbounded(),
		idToNode:           make(map[NodeId]*ModelNode),
		parentChildMap:     make(map[NodeId][]NodeId),
	}
}

// clone makes a shallow copy: new map headers, same *ModelNode pointers.
// Callers overwrite only the entries that actually change.
func (m *TreeModel) clone() *TreeModel {
	n := &TreeModel{
		RootHierarchyLimit: m.RootHierarchyLimit,
		RootInstanceFilter: m.RootInstanceFilter,
		RootIsLoading:      m.RootIsLoading,
		RootError:          m.RootError,
		idToNode:           make(map[NodeId]*ModelNode, len(m.idToNode)),
		parentChildMap:     make(map[NodeId][]NodeId, len(m.parentChildMap)),
	}
	for k, v := range m.idToNode {
		n.idToNode[k] = v
	}
	for k, v := range m.parentChildMap {
		n.parentChildMap[k] = v
	}
	return n
}

// GetNode looks up a node by id. The root sentinel (RootId) is never a key
// of idToNode; callers interested in root state read the TreeModel's Root*
// fields directly.
func GetNode(m *TreeModel, id NodeId) (*ModelNode, bool) {
	n, ok := m.idToNode[id]
	return n, ok
}

// ChildrenKnown reports whether id's children have been loaded at least
// once (a key in parentChildMap).
func ChildrenKnown(m *TreeModel, id NodeId) bool {
	_, ok := m.parentChildMap[id]
	return ok
}

// Children returns the ordered child ids of id, and whether they are
// known. The order is provider-emission order; the core never re-sorts
// it.
func Children(m *TreeModel, id NodeId) ([]NodeId, bool) {
	c, ok := m.parentChildMap[id]
	return c, ok
}

// IsNodeSelected reports a hierarchy node's selection state. Unknown ids
// and info nodes report false.
func IsNodeSelected(m *TreeModel, id NodeId) bool {
	n, ok := m.idToNode[id]
	if !ok || n.Hierarchy == nil {
		return false
	}
	return n.Hierarchy.IsSelected
}

// ExpandAction is the instruction [ExpandNode] returns to its caller about
// what asynchronous work, if any, must follow the model mutation.
type ExpandAction int

const (
	// ExpandNoAction means the mutation is complete; nothing to load.
	ExpandNoAction ExpandAction = iota
	// ExpandLoadChildren means children are unknown and must be loaded.
	ExpandLoadChildren
	// ExpandReloadChildren means a stale ChildrenLoad error was cleared and
	// children must be reloaded, ignoring any cache.
	ExpandReloadChildren
)

func withHierarchy(n *ModelNode, h HierarchyModelNode) *ModelNode {
	return &ModelNode{Id: n.Id, ParentId: n.ParentId, Hierarchy: &h}
}

// ExpandNode updates id's expansion flag and reports what load, if any,
// must follow. Unknown ids and info nodes are a no-op.
func ExpandNode(m *TreeModel, id NodeId, expanded bool) (*TreeModel, ExpandAction) {
	n, ok := m.idToNode[id]
	if !ok || n.Hierarchy == nil {
		return m, ExpandNoAction
	}
	h := n.Hierarchy
	if h.IsExpanded == expanded {
		return m, ExpandNoAction
	}

	newModel := m.clone()

	if !expanded {
		nh := *h
		nh.IsExpanded = false
		newModel.idToNode[id] = withHierarchy(n, nh)
		return newModel, ExpandNoAction
	}

	if h.Error != nil && h.Error.Type == ErrorChildrenLoad {
		removeSubTreeInPlace(newModel, id)
		nh := *h
		nh.IsExpanded = true
		nh.IsLoading = true
		nh.Error = nil
		newModel.idToNode[id] = withHierarchy(n, nh)
		return newModel, ExpandReloadChildren
	}

	if !ChildrenKnown(m, id) {
		nh := *h
		nh.IsExpanded = true
		nh.IsLoading = true
		newModel.idToNode[id] = withHierarchy(n, nh)
		return newModel, ExpandLoadChildren
	}

	nh := *h
	nh.IsExpanded = true
	newModel.idToNode[id] = withHierarchy(n, nh)
	return newModel, ExpandNoAction
}

// AddHierarchyPart atomically replaces the subtree under parentId with
// part's nodes, clears parentId's error, and clears its loading flag.
// parentId == RootId targets the root sentinel.
func AddHierarchyPart(m *TreeModel, parentId NodeId, part LoadedTreePart) *TreeModel {
	newModel := m.clone()
	removeSubTreeInPlace(newModel, parentId)

	ids := make([]NodeId, len(part.LoadedNodes))
	for i, ln := range part.LoadedNodes {
		ids[i] = ln.Id
		newModel.idToNode[ln.Id] = &ModelNode{
			Id:        ln.Id,
			ParentId:  parentId,
			Hierarchy: ln.Hierarchy,
			Info:      ln.Info,
		}
	}
	newModel.parentChildMap[parentId] = ids

	if parentId == RootId {
		newModel.RootError = nil
		newModel.RootIsLoading = false
		return newModel
	}
	if p, ok := newModel.idToNode[parentId]; ok && p.Hierarchy != nil {
		nh := *p.Hierarchy
		nh.Error = nil
		nh.IsLoading = false
		newModel.idToNode[parentId] = withHierarchy(p, nh)
	}
	return newModel
}

// RemoveSubTree recursively deletes parentId's descendants; parentId
// itself, if it exists, is left intact.
func RemoveSubTree(m *TreeModel, parentId NodeId) *TreeModel {
	newModel := m.clone()
	removeSubTreeInPlace(newModel, parentId)
	return newModel
}

func removeSubTreeInPlace(m *TreeModel, parentId NodeId) {
	children, ok := m.parentChildMap[parentId]
	if !ok {
		return
	}
	for _, c := range children {
		removeSubTreeInPlace(m, c)
		delete(m.idToNode, c)
	}
	delete(m.parentChildMap, parentId)
}

// SetHierarchyLimit assigns id's per-level size limit and removes its
// existing subtree. The returned bool is should-reload: true when id is
// the root sentinel or was already expanded.
func SetHierarchyLimit(m *TreeModel, id NodeId, limit SizeLimit) (*TreeModel, bool) {
	newModel := m.clone()
	if id == RootId {
		newModel.RootHierarchyLimit = limit
		removeSubTreeInPlace(newModel, RootId)
		return newModel, true
	}
	n, ok := newModel.idToNode[id]
	if !ok || n.Hierarchy == nil {
		return m, false
	}
	nh := *n.Hierarchy
	nh.HierarchyLimit = limit
	newModel.idToNode[id] = withHierarchy(n, nh)
	removeSubTreeInPlace(newModel, id)
	return newModel, nh.IsExpanded
}

// SetInstanceFilter assigns id's filter, removes its existing subtree, and
// (for non-root targets) forces IsExpanded so the new level becomes
// visible on reload, so should-reload is true for every known target; it
// is false only when id is unknown, in which case m is returned unchanged.
func SetInstanceFilter(m *TreeModel, id NodeId, filter *InstanceFilter) (*TreeModel, bool) {
	newModel := m.clone()
	if id == RootId {
		newModel.RootInstanceFilter = filter
		removeSubTreeInPlace(newModel, RootId)
		return newModel, true
	}
	n, ok := newModel.idToNode[id]
	if !ok || n.Hierarchy == nil {
		return m, false
	}
	nh := *n.Hierarchy
	nh.InstanceFilter = filter
	nh.IsExpanded = true
	newModel.idToNode[id] = withHierarchy(n, nh)
	removeSubTreeInPlace(newModel, id)
	return newModel, true
}

// SelectionChangeType is the command kind a selection change carries.
type SelectionChangeType int

const (
	// SelectReplace replaces the whole selection with the given ids.
	SelectReplace SelectionChangeType = iota
	// SelectAdd adds the given ids to the selection.
	SelectAdd
	// SelectRemove removes the given ids from the selection.
	SelectRemove
)

// SelectNodes applies a selection change. Unknown ids are skipped for Add/Remove; Replace walks every
// known hierarchy node once.
func SelectNodes(m *TreeModel, ids []NodeId, changeType SelectionChangeType) *TreeModel {
	newModel := m.clone()
	switch changeType {
	case SelectReplace:
		want := make(map[NodeId]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		for id, n := range newModel.idToNode {
			if n.Hierarchy == nil {
				continue
			}
			target := want[id]
			if n.Hierarchy.IsSelected == target {
				continue
			}
			nh := *n.Hierarchy
			nh.IsSelected = target
			newModel.idToNode[id] = withHierarchy(n, nh)
		}
	case SelectAdd, SelectRemove:
		target := changeType == SelectAdd
		for _, id := range ids {
			n, ok := newModel.idToNode[id]
			if !ok || n.Hierarchy == nil || n.Hierarchy.IsSelected == target {
				continue
			}
			nh := *n.Hierarchy
			nh.IsSelected = target
			newModel.idToNode[id] = withHierarchy(n, nh)
		}
	}
	return newModel
}

// ValidateInvariants checks the model's structural invariants and returns
// the first violation found, or nil. It is a test and debugging aid, not
// part of the engine's runtime hot path.
func ValidateInvariants(m *TreeModel) error {
	for parent, children := range m.parentChildMap {
		for _, c := range children {
			if _, ok := m.idToNode[c]; !ok {
				return fmt.Errorf("dangling id %q in parentChildMap[%q]", c, parent)
			}
		}
	}
	for id, n := range m.idToNode {
		if n.Hierarchy != nil && n.Hierarchy.IsExpanded {
			if !ChildrenKnown(m, id) && !n.Hierarchy.IsLoading {
				return fmt.Errorf("node %q is expanded but children are neither known nor loading", id)
			}
		}
		if n.Info != nil {
			if _, ok := m.parentChildMap[id]; ok {
				return fmt.Errorf("info node %q has children", id)
			}
		}
	}
	return nil
}
