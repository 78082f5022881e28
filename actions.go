package treestate

import (
	"context"
	"sync"
	"sync/atomic"
)

// ReloadState names how much of the previous model a reload preserves.
type ReloadState int

const (
	// ReloadKeep preserves expansion, selection, per-level limits and
	// filters below the reload target, reloading only what was already
	// expanded.
	ReloadKeep ReloadState = iota
	// ReloadDiscard drops expansion, selection, limits and filters below
	// the target.
	ReloadDiscard
	// ReloadReset drops everything below the target, including selection.
	// Only legal at the root.
	ReloadReset
)

// ReloadOptions configures [TreeActions.ReloadTree] and
// [TreeActions.ReloadSubTree].
type ReloadOptions struct {
	State ReloadState
}

// TreeActions is the single in-flight mutator of one tree's state.
// It owns the current [TreeModel] snapshot, the loader used to fill it,
// and the bookkeeping needed to cancel stale loads when a newer one
// supersedes them.
//
// A TreeActions is not safe for concurrent use by multiple goroutines
// beyond the synchronization it does internally; callers are expected to
// drive it from a single owning goroutine, as [TreeState] does.
type TreeActions struct {
	Loader *TreeLoader

	mu        sync.Mutex
	model     *TreeModel
	publish   func(*TreeModel)
	onLimit   func(NodeId, SizeLimit)
	onLoadErr func(NodeId, *NodeError)

	generation atomic.Uint64
	cancelFns  map[NodeId]context.CancelFunc
}

// NewTreeActions returns a TreeActions seeded with an empty model. publish
// is invoked, from the actions' own goroutine, after every model mutation;
// it must not block.
func NewTreeActions(loader *TreeLoader, publish func(*TreeModel)) *TreeActions {
	return &TreeActions{
		Loader:    loader,
		model:     NewModel(),
		publish:   publish,
		cancelFns: make(map[NodeId]context.CancelFunc),
	}
}

// OnHierarchyLimitExceeded registers the callback invoked whenever a level
// load reports a ResultSetTooLarge info node.
func (a *TreeActions) OnHierarchyLimitExceeded(fn func(NodeId, SizeLimit)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLimit = fn
}

// OnHierarchyLoadError registers the callback invoked whenever a level load
// fails.
func (a *TreeActions) OnHierarchyLoadError(fn func(NodeId, *NodeError)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLoadErr = fn
}

// Model returns the current snapshot.
func (a *TreeActions) Model() *TreeModel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model
}

// cancelLoad cancels any load currently in flight for id, if one exists.
func (a *TreeActions) cancelLoad(id NodeId) {
	if cancel, ok := a.cancelFns[id]; ok {
		cancel()
		delete(a.cancelFns, id)
	}
}

// beginLoad installs a fresh cancellation context for id, cancelling
// whatever load was previously running there (a newer action for the same
// node always supersedes an older one).
func (a *TreeActions) beginLoad(ctx context.Context, id NodeId) context.Context {
	a.cancelLoad(id)
	loadCtx, cancel := context.WithCancel(ctx)
	a.cancelFns[id] = cancel
	return loadCtx
}

func (a *TreeActions) endLoad(id NodeId) {
	delete(a.cancelFns, id)
}

// setModelLocked installs model as the current snapshot and publishes it. Must
// be called with a.mu held.
func (a *TreeActions) setModelLocked(model *TreeModel) {
	a.model = model
	if a.publish != nil {
		a.publish(model)
	}
}

// drain consumes events from a loader stream, grafting each onto the
// current model and publishing after every graft, until the stream closes.
func (a *TreeActions) drain(events <-chan LoadEvent) {
	for ev := range events {
		a.mu.Lock()
		model := AddHierarchyPart(a.model, ev.Part.ParentId, ev.Part)
		if ev.NodeErr != nil {
			model = applyNodeError(model, ev.Part.ParentId, ev.NodeErr)
		}
		a.setModelLocked(model)
		onLimit := a.onLimit
		onLoadErr := a.onLoadErr
		a.mu.Unlock()

		if ev.LimitExceeded != nil && onLimit != nil {
			onLimit(ev.Part.ParentId, *ev.LimitExceeded)
		}
		if ev.NodeErr != nil && onLoadErr != nil {
			onLoadErr(ev.Part.ParentId, ev.NodeErr)
		}
	}
}

// applyNodeError sets parentId's (or the root's) Error field without
// touching anything AddHierarchyPart already cleared.
func applyNodeError(m *TreeModel, parentId NodeId, nodeErr *NodeError) *TreeModel {
	newModel := m.clone()
	if parentId == RootId {
		newModel.RootError = nodeErr
		return newModel
	}
	n, ok := newModel.idToNode[parentId]
	if !ok || n.Hierarchy == nil {
		return newModel
	}
	nh := *n.Hierarchy
	nh.Error = nodeErr
	newModel.idToNode[parentId] = withHierarchy(n, nh)
	return newModel
}

// providerNodeOf returns the HierarchyNode backing id, or nil for the root.
func providerNodeOf(m *TreeModel, id NodeId) *HierarchyNode {
	if id == RootId {
		return nil
	}
	n, ok := m.idToNode[id]
	if !ok || n.Hierarchy == nil {
		return nil
	}
	nd := n.Hierarchy.NodeData
	return &nd
}

// effectiveFilter resolves the filter to apply when loading node's
// children: node's own filter, or, if node is a grouping node, the filter
// of its nearest non-grouping ancestor.
func effectiveFilter(m *TreeModel, node *HierarchyNode, own *InstanceFilter) *InstanceFilter {
	if node == nil || !node.IsGroupingNode() || node.NonGroupingAncestorId == nil {
		return own
	}
	anc, ok := m.idToNode[*node.NonGroupingAncestorId]
	if !ok || anc.Hierarchy == nil {
		return own
	}
	return anc.Hierarchy.InstanceFilter
}

// ExpandNode sets id's expansion state and, if children must be loaded,
// launches that load asynchronously. It returns once the
// model mutation is visible; the load itself, if any, continues in the
// background and is reported through publish/the registered callbacks.
func (a *TreeActions) ExpandNode(ctx context.Context, id NodeId, expanded bool) {
	a.mu.Lock()
	newModel, action := ExpandNode(a.model, id, expanded)
	a.setModelLocked(newModel)
	if action == ExpandNoAction {
		a.mu.Unlock()
		return
	}
	model := a.model
	loadCtx := a.beginLoad(ctx, id)
	a.mu.Unlock()

	node := providerNodeOf(model, id)
	filter := effectiveFilter(model, node, filterOf(model, id))
	limit := limitOf(model, id)

	opts := LoadOptions{
		Limit:              func(NodeId) SizeLimit { return limit },
		GetInstanceFilter:  func(childId NodeId) *InstanceFilter { return filterForDescendant(model, id, childId, filter) },
		ShouldLoadChildren: AutoExpandOnly,
		BuildNode:          IdentityBuildNode,
		IgnoreCache:        action == ExpandReloadChildren,
	}

	events := a.Loader.LoadNodes(loadCtx, id, node, opts)
	go func() {
		a.drain(events)
		a.mu.Lock()
		a.endLoad(id)
		a.mu.Unlock()
	}()
}

// filterForDescendant returns the filter to request for childId's
// children: the root's newly-set filter only applies at the load root
// itself; freshly discovered descendants (reachable only through
// autoExpand) start with no filter. Grouping descendants are not resolved
// to an ancestor's filter here.
func filterForDescendant(m *TreeModel, rootId, childId NodeId, rootFilter *InstanceFilter) *InstanceFilter {
	if childId == rootId {
		return rootFilter
	}
	return nil
}

func filterOf(m *TreeModel, id NodeId) *InstanceFilter {
	if id == RootId {
		return m.RootInstanceFilter
	}
	if n, ok := m.idToNode[id]; ok && n.Hierarchy != nil {
		return n.Hierarchy.InstanceFilter
	}
	return nil
}

func limitOf(m *TreeModel, id NodeId) SizeLimit {
	if id == RootId {
		return m.RootHierarchyLimit
	}
	if n, ok := m.idToNode[id]; ok && n.Hierarchy != nil {
		return n.Hierarchy.HierarchyLimit
	}
	return Unbounded()
}

// SetHierarchyLimit assigns id's per-level size limit, clears its subtree,
// and reloads it if it was already expanded or is the root.
func (a *TreeActions) SetHierarchyLimit(ctx context.Context, id NodeId, limit SizeLimit) {
	a.mu.Lock()
	newModel, shouldReload := SetHierarchyLimit(a.model, id, limit)
	a.setModelLocked(newModel)
	a.mu.Unlock()
	if shouldReload {
		a.reloadLevel(ctx, id, false)
	}
}

// SetInstanceFilter assigns id's filter, clears its subtree, and reloads
// it. When id is a grouping node, the reload requests the filter of its
// nearest non-grouping ancestor (see effectiveFilter); the filter stored
// on the grouping node itself is not sent to the provider.
func (a *TreeActions) SetInstanceFilter(ctx context.Context, id NodeId, filter *InstanceFilter) {
	a.mu.Lock()
	newModel, _ := SetInstanceFilter(a.model, id, filter)
	a.setModelLocked(newModel)
	a.mu.Unlock()
	a.reloadLevel(ctx, id, true)
}

// reloadLevel performs a single-level (non-recursive) load of id's
// children, used after a limit/filter change where only the directly
// affected level needs fresh data; anything the user had expanded beneath
// it is gone already (removeSubTreeInPlace ran as part of the Set* call)
// and will be reloaded lazily on next expand.
func (a *TreeActions) reloadLevel(ctx context.Context, id NodeId, ignoreCache bool) {
	a.mu.Lock()
	model := a.model
	loadCtx := a.beginLoad(ctx, id)
	a.mu.Unlock()

	node := providerNodeOf(model, id)
	filter := effectiveFilter(model, node, filterOf(model, id))
	limit := limitOf(model, id)

	opts := LoadOptions{
		Limit:              func(NodeId) SizeLimit { return limit },
		GetInstanceFilter:  func(NodeId) *InstanceFilter { return filter },
		ShouldLoadChildren: NeverLoadChildren,
		BuildNode:          IdentityBuildNode,
		IgnoreCache:        ignoreCache,
	}

	events := a.Loader.LoadNodes(loadCtx, id, node, opts)
	go func() {
		a.drain(events)
		a.mu.Lock()
		a.endLoad(id)
		a.mu.Unlock()
	}()
}

// ReloadTree reloads the whole tree from the root. Any load
// in flight anywhere in the tree is cancelled first: a root reload always
// supersedes everything beneath it.
func (a *TreeActions) ReloadTree(ctx context.Context, opts ReloadOptions) error {
	return a.ReloadSubTree(ctx, RootId, opts)
}

// ReloadSubTree reloads parentId's subtree according to opts.State.
// ReloadReset is only legal at the root; requesting it below the root
// returns ErrInvalidReloadState without touching the model.
func (a *TreeActions) ReloadSubTree(ctx context.Context, parentId NodeId, opts ReloadOptions) error {
	if opts.State < ReloadKeep || opts.State > ReloadReset {
		return ErrInvalidReloadState
	}
	if opts.State == ReloadReset && parentId != RootId {
		return ErrInvalidReloadState
	}

	a.mu.Lock()
	oldModel := a.model
	if parentId == RootId {
		for id, cancel := range a.cancelFns {
			cancel()
			delete(a.cancelFns, id)
		}
	} else {
		a.cancelLoad(parentId)
	}

	expanded, collapsed := subtreeExpansionSets(oldModel, parentId)
	selected := make(map[NodeId]bool)
	if opts.State != ReloadReset {
		collectSelected(oldModel, parentId, selected)
	}

	staged := RemoveSubTree(oldModel, parentId)
	if parentId == RootId {
		if opts.State != ReloadReset {
			staged.RootInstanceFilter = oldModel.RootInstanceFilter
		} else {
			staged.RootInstanceFilter = nil
		}
		staged.RootIsLoading = true
	} else if n, ok := staged.idToNode[parentId]; ok && n.Hierarchy != nil {
		nh := *n.Hierarchy
		nh.IsLoading = true
		staged.idToNode[parentId] = withHierarchy(n, nh)
	}
	a.setModelLocked(staged)
	loadCtx := a.beginLoad(ctx, parentId)
	a.mu.Unlock()

	node := providerNodeOf(oldModel, parentId)
	rootFilter := filterOf(oldModel, parentId)

	buildNode := func(hn HierarchyNode) HierarchyModelNode {
		built := IdentityBuildNode(hn)
		if opts.State != ReloadKeep {
			return built
		}
		if prior, ok := oldModel.idToNode[hn.Id()]; ok && prior.Hierarchy != nil {
			built.HierarchyLimit = prior.Hierarchy.HierarchyLimit
			built.InstanceFilter = prior.Hierarchy.InstanceFilter
		}
		if selected[hn.Id()] {
			built.IsSelected = true
		}
		if expanded[hn.Id()] {
			built.IsExpanded = true
			built.IsLoading = true
		}
		return built
	}

	shouldLoadChildren := func(hn HierarchyNode) bool {
		id := hn.Id()
		if opts.State == ReloadKeep && expanded[id] {
			return true
		}
		if opts.State == ReloadKeep && collapsed[id] {
			return false
		}
		return hn.AutoExpand
	}

	getInstanceFilter := func(id NodeId) *InstanceFilter {
		if id == parentId {
			return rootFilter
		}
		if opts.State == ReloadKeep {
			if n, ok := oldModel.idToNode[id]; ok && n.Hierarchy != nil {
				return n.Hierarchy.InstanceFilter
			}
		}
		return nil
	}

	limitFn := func(id NodeId) SizeLimit {
		if id == parentId {
			return limitOf(oldModel, parentId)
		}
		if opts.State == ReloadKeep {
			if n, ok := oldModel.idToNode[id]; ok && n.Hierarchy != nil {
				return n.Hierarchy.HierarchyLimit
			}
		}
		return Unbounded()
	}

	loadOpts := LoadOptions{
		Limit:              limitFn,
		GetInstanceFilter:  getInstanceFilter,
		ShouldLoadChildren: shouldLoadChildren,
		BuildNode:          buildNode,
		IgnoreCache:        true,
	}

	events := a.Loader.LoadNodes(loadCtx, parentId, node, loadOpts)
	go func() {
		a.drain(events)
		a.mu.Lock()
		a.endLoad(parentId)
		if opts.State == ReloadReset && parentId == RootId {
			reset := SelectNodes(a.model, nil, SelectReplace)
			a.setModelLocked(reset)
		}
		a.mu.Unlock()
	}()
	return nil
}

// subtreeExpansionSets walks parentId's previously-loaded subtree,
// recording which descendants were expanded and which were explicitly
// collapsed, so a ReloadKeep reload can reproduce the same shape.
func subtreeExpansionSets(m *TreeModel, parentId NodeId) (expanded, collapsed map[NodeId]bool) {
	expanded = make(map[NodeId]bool)
	collapsed = make(map[NodeId]bool)
	var walk func(NodeId)
	walk = func(id NodeId) {
		children, ok := m.parentChildMap[id]
		if !ok {
			return
		}
		for _, c := range children {
			n, ok := m.idToNode[c]
			if !ok || n.Hierarchy == nil {
				continue
			}
			if n.Hierarchy.IsExpanded {
				expanded[c] = true
			} else {
				collapsed[c] = true
			}
			walk(c)
		}
	}
	walk(parentId)
	return expanded, collapsed
}

// collectSelected records every selected hierarchy node under parentId
// into selected. Only the subtree proper is walked; parentId itself and
// its siblings are not included.
func collectSelected(m *TreeModel, parentId NodeId, selected map[NodeId]bool) {
	var walk func(NodeId)
	walk = func(id NodeId) {
		children, ok := m.parentChildMap[id]
		if !ok {
			return
		}
		for _, c := range children {
			n, ok := m.idToNode[c]
			if !ok {
				continue
			}
			if n.Hierarchy != nil && n.Hierarchy.IsSelected {
				selected[c] = true
			}
			walk(c)
		}
	}
	walk(parentId)
}

// SelectNodes applies a selection change to the current model. Unlike Expand/Reload this never triggers a load.
func (a *TreeActions) SelectNodes(ids []NodeId, changeType SelectionChangeType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setModelLocked(SelectNodes(a.model, ids, changeType))
}

// Dispose cancels every load in flight. The TreeActions must not be used
// afterward.
func (a *TreeActions) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, cancel := range a.cancelFns {
		cancel()
		delete(a.cancelFns, id)
	}
}
