package treestate

import (
	"context"
	"iter"
	"sync"
	"time"
)

// Config is the mandatory configuration for a [TreeState]. Everything else
// tunable is an [Option].
type Config struct {
	// GetHierarchyProvider constructs the provider backing this tree. It is
	// called once, the first time the tree is mounted.
	GetHierarchyProvider func(context.Context) (HierarchyProvider, error)

	// OnHierarchyLimitExceeded, if set, is invoked whenever a level load
	// reports its result set exceeded the requested size limit.
	OnHierarchyLimitExceeded func(NodeId, SizeLimit)

	// OnHierarchyLoadError, if set, is invoked whenever a level load fails.
	OnHierarchyLoadError func(NodeId, *NodeError)

	// GetFilteredPaths, if set, resolves the hierarchy-wide target-path
	// filter asynchronously instead of the caller supplying paths directly
	// via SetHierarchyFilter. See ResolveHierarchyFilter.
	GetFilteredPaths func(context.Context) ([]NodePath, error)
}

// TreeNode is the read-only projection of a model node exposed to callers
// of [TreeState]. Exactly one of the hierarchy fields or the info fields
// is meaningful, discriminated by IsInfo.
type TreeNode struct {
	Id NodeId

	IsInfo bool

	// Hierarchy-node fields, meaningful when !IsInfo.
	Label        string
	HasChildren  bool
	IsExpanded   bool
	IsSelected   bool
	IsLoading    bool
	IsFilterable bool
	IsFiltered   bool
	Error        *NodeError
	ExtendedData map[string]any

	// Info-node fields, meaningful when IsInfo.
	InfoType           InfoNodeType
	InfoMessage        string
	ResultSetSizeLimit *SizeLimit
}

func projectNode(n *ModelNode) TreeNode {
	if n.Info != nil {
		return TreeNode{
			Id:                 n.Id,
			IsInfo:             true,
			InfoType:           n.Info.Type,
			InfoMessage:        n.Info.Message,
			ResultSetSizeLimit: n.Info.ResultSetSizeLimit,
		}
	}
	h := n.Hierarchy
	return TreeNode{
		Id:           n.Id,
		Label:        h.NodeData.Label,
		HasChildren:  h.NodeData.HasChildren,
		IsExpanded:   h.IsExpanded,
		IsSelected:   h.IsSelected,
		IsLoading:    h.IsLoading,
		IsFilterable: h.NodeData.SupportsFiltering && h.NodeData.HasChildren,
		IsFiltered:   h.InstanceFilter != nil,
		Error:        h.Error,
		ExtendedData: h.NodeData.ExtendedData,
	}
}

// RootDetails is the projection of the root sentinel's own state, since it
// has no ModelNode of its own to project.
type RootDetails struct {
	HierarchyLimit SizeLimit
	InstanceFilter *InstanceFilter
	IsLoading      bool
	Error          *NodeError
}

// TreeState is the single entry point a caller drives a tree through.
// It owns the provider, the [TreeLoader], the [TreeActions] mutator, and
// the [SelectionHandler], and keeps its own mirror of the current
// [TreeModel] so reads do not go through the TreeActions lock.
//
// A TreeState is safe for concurrent use.
type TreeState struct {
	cfg  Config
	opts *options

	mu            sync.Mutex
	provider      HierarchyProvider
	actions       *TreeActions
	selection     *SelectionHandler
	model         *TreeModel
	disposed      bool
	unsubscribe   func()
	filterGen     uint64
	filterLoading bool
}

// New constructs a TreeState. The provider is not built, and no load is
// started, until the first call to ReloadTree, ExpandNode, or any other
// method that needs it.
func New(ctx context.Context, cfg Config, opts ...Option) *TreeState {
	return &TreeState{
		cfg:   cfg,
		opts:  newOptions(opts),
		model: NewModel(),
	}
}

// ensureMounted builds the provider and wires the loader/actions/selection
// machinery on first use. Safe to call repeatedly.
func (s *TreeState) ensureMounted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.actions != nil {
		return nil
	}
	if s.cfg.GetHierarchyProvider == nil {
		return ErrNoProvider
	}
	provider, err := s.cfg.GetHierarchyProvider(ctx)
	if err != nil {
		return err
	}

	s.provider = provider
	loader := NewTreeLoader(provider)
	s.actions = NewTreeActions(loader, s.onModelChanged)
	s.actions.OnHierarchyLimitExceeded(s.cfg.OnHierarchyLimitExceeded)
	s.actions.OnHierarchyLoadError(s.cfg.OnHierarchyLoadError)
	s.selection = NewSelectionHandler(s.actions, s.opts.selectionMode)
	s.unsubscribe = provider.OnHierarchyChanged(s.onHierarchyChanged)
	s.model = s.actions.Model()
	return nil
}

// onModelChanged is TreeActions' publish callback. It keeps the facade's
// own model mirror current and re-derives the selection handler's flat
// visible order, guarding against a stray publication arriving after
// Dispose.
func (s *TreeState) onModelChanged(model *TreeModel) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.model = model
	selection := s.selection
	s.mu.Unlock()

	if selection != nil {
		selection.SyncVisibleOrder(model)
	}
}

// onHierarchyChanged reacts to provider-initiated changes. A
// filter change invalidates everything below the root since the provider
// may now include or exclude arbitrary nodes; a formatter change only
// needs existing labels refreshed, so expansion and selection are kept.
func (s *TreeState) onHierarchyChanged(ev HierarchyChangeEvent) {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return
	}

	ctx := context.Background()
	switch {
	case ev.FilterChange != nil:
		s.actions.ReloadTree(ctx, ReloadOptions{State: ReloadDiscard})
	case ev.FormatterChange != nil:
		s.actions.ReloadTree(ctx, ReloadOptions{State: ReloadKeep})
	}
}

// Model returns the current snapshot directly, for callers that want more
// than the TreeNode projection offers (e.g. walking with [All]).
func (s *TreeState) Model() *TreeModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// RootNodes projects the current root-level nodes.
func (s *TreeState) RootNodes() []TreeNode {
	return s.Children(RootId)
}

// Children projects id's currently known children, in provider-emission
// order. Returns nil if id's children have never been loaded.
func (s *TreeState) Children(id NodeId) []TreeNode {
	model := s.Model()
	ids, ok := Children(model, id)
	if !ok {
		return nil
	}
	out := make([]TreeNode, len(ids))
	for i, c := range ids {
		n, _ := GetNode(model, c)
		out[i] = projectNode(n)
	}
	return out
}

// RootDetails projects the root sentinel's own state.
func (s *TreeState) RootDetails() RootDetails {
	model := s.Model()
	return RootDetails{
		HierarchyLimit: model.RootHierarchyLimit,
		InstanceFilter: model.RootInstanceFilter,
		IsLoading:      model.RootIsLoading,
		Error:          model.RootError,
	}
}

// HierarchyLevelDetails bundles the state of a single hierarchy level
// (the children of a node, or of the root): the backing node's own
// projection (nil at the root), the level's current limit and filter,
// setters for both, and a factory for enumerating the level's instance
// keys straight from the provider.
type HierarchyLevelDetails struct {
	Node           *TreeNode
	HierarchyLimit SizeLimit
	InstanceFilter *InstanceFilter

	SetHierarchyLimit func(ctx context.Context, limit SizeLimit) error
	SetInstanceFilter func(ctx context.Context, filter *InstanceFilter) error
	InstanceKeys      func(ctx context.Context) iter.Seq2[InstanceKey, error]
}

// nodeInstanceKeys delegates to the provider's GetNodeInstanceKeys for the
// level described by parent/filter/limit. Returns an empty sequence if the
// provider has not been mounted yet.
func (s *TreeState) nodeInstanceKeys(parent *HierarchyNode, filter *InstanceFilter, limit SizeLimit) func(context.Context) iter.Seq2[InstanceKey, error] {
	return func(ctx context.Context) iter.Seq2[InstanceKey, error] {
		s.mu.Lock()
		provider := s.provider
		s.mu.Unlock()
		if provider == nil {
			return func(func(InstanceKey, error) bool) {}
		}
		return provider.GetNodeInstanceKeys(ctx, GetNodeInstanceKeysRequest{
			ParentNode:              parent,
			InstanceFilter:          filter,
			HierarchyLevelSizeLimit: limit,
		})
	}
}

// GetHierarchyLevelDetails describes id's children level (or the root
// level, for id == RootId), reporting false if id is unknown or names an
// info node, neither of which has a children level of its own.
func (s *TreeState) GetHierarchyLevelDetails(id NodeId) (HierarchyLevelDetails, bool) {
	model := s.Model()

	if id == RootId {
		return HierarchyLevelDetails{
			HierarchyLimit:    model.RootHierarchyLimit,
			InstanceFilter:    model.RootInstanceFilter,
			SetHierarchyLimit: func(ctx context.Context, limit SizeLimit) error { return s.SetHierarchyLimit(ctx, RootId, limit) },
			SetInstanceFilter: func(ctx context.Context, filter *InstanceFilter) error { return s.SetInstanceFilter(ctx, RootId, filter) },
			InstanceKeys:      s.nodeInstanceKeys(nil, model.RootInstanceFilter, model.RootHierarchyLimit),
		}, true
	}

	n, ok := GetNode(model, id)
	if !ok || n.Hierarchy == nil {
		return HierarchyLevelDetails{}, false
	}
	h := n.Hierarchy
	node := projectNode(n)
	return HierarchyLevelDetails{
		Node:              &node,
		HierarchyLimit:    h.HierarchyLimit,
		InstanceFilter:    h.InstanceFilter,
		SetHierarchyLimit: func(ctx context.Context, limit SizeLimit) error { return s.SetHierarchyLimit(ctx, id, limit) },
		SetInstanceFilter: func(ctx context.Context, filter *InstanceFilter) error { return s.SetInstanceFilter(ctx, id, filter) },
		InstanceKeys:      s.nodeInstanceKeys(&h.NodeData, h.InstanceFilter, h.HierarchyLimit),
	}, true
}

// IsLoading reports whether the root level is currently loading, including
// an in-flight ResolveHierarchyFilter call. Use GetHierarchyLevelDetails
// for a specific node's loading state.
func (s *TreeState) IsLoading() bool {
	s.mu.Lock()
	filterLoading := s.filterLoading
	s.mu.Unlock()
	return s.RootDetails().IsLoading || filterLoading
}

// ResolveHierarchyFilter awaits Config.GetFilteredPaths, if set, and installs
// the resolved paths as the provider's hierarchy-wide filter via
// provider.SetHierarchyFilter once the callback settles. IsLoading reports
// true for the duration of the call. A no-op if GetFilteredPaths is unset.
//
// The result is dropped rather than applied if, by the time the callback
// settles, the TreeState has been disposed or a newer ResolveHierarchyFilter
// call has superseded this one.
func (s *TreeState) ResolveHierarchyFilter(ctx context.Context) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	if s.cfg.GetFilteredPaths == nil {
		return nil
	}

	s.mu.Lock()
	s.filterGen++
	gen := s.filterGen
	s.filterLoading = true
	provider := s.provider
	s.mu.Unlock()

	go func() {
		paths, err := s.cfg.GetFilteredPaths(ctx)

		s.mu.Lock()
		current := s.filterGen == gen
		if current {
			s.filterLoading = false
		}
		disposed := s.disposed
		s.mu.Unlock()

		if err != nil || disposed || !current {
			return
		}
		provider.SetHierarchyFilter(paths)
	}()
	return nil
}

// ExpandNode expands or collapses id, loading its children if they are not
// already known.
func (s *TreeState) ExpandNode(ctx context.Context, id NodeId, expanded bool) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	start := time.Now()
	s.actions.ExpandNode(ctx, id, expanded)
	s.opts.measure("ExpandNode", start)
	return nil
}

// SetHierarchyLimit assigns id's per-level size limit.
func (s *TreeState) SetHierarchyLimit(ctx context.Context, id NodeId, limit SizeLimit) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	s.actions.SetHierarchyLimit(ctx, id, limit)
	return nil
}

// SetInstanceFilter assigns id's instance filter.
func (s *TreeState) SetInstanceFilter(ctx context.Context, id NodeId, filter *InstanceFilter) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	s.actions.SetInstanceFilter(ctx, id, filter)
	return nil
}

// ReloadTree reloads the whole tree from the root.
func (s *TreeState) ReloadTree(ctx context.Context, opts ReloadOptions) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := s.actions.ReloadTree(ctx, opts)
	s.opts.measure("ReloadTree", start)
	return err
}

// ReloadSubTree reloads parentId's subtree. Returns ErrInvalidReloadState
// if opts.State is ReloadReset and parentId is not the root.
func (s *TreeState) ReloadSubTree(ctx context.Context, parentId NodeId, opts ReloadOptions) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := s.actions.ReloadSubTree(ctx, parentId, opts)
	s.opts.measure("ReloadSubTree", start)
	return err
}

// SelectNodes applies a selection change directly, bypassing the click
// action table.
func (s *TreeState) SelectNodes(ctx context.Context, ids []NodeId, changeType SelectionChangeType) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	s.actions.SelectNodes(ids, changeType)
	return nil
}

// Click applies a click on id under the active selection mode.
func (s *TreeState) Click(ctx context.Context, id NodeId, mods ClickModifiers) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	s.selection.Click(id, mods)
	return nil
}

// KeyActivate applies a Space/Enter activation on id, equivalent to a
// click with the same modifiers.
func (s *TreeState) KeyActivate(ctx context.Context, id NodeId, mods ClickModifiers) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	s.selection.KeyActivate(id, mods)
	return nil
}

// SetSelectionMode changes the active selection mode.
func (s *TreeState) SetSelectionMode(mode SelectionMode) {
	s.mu.Lock()
	selection := s.selection
	s.mu.Unlock()
	if selection != nil {
		selection.SetMode(mode)
	}
}

// SetFormatter installs a custom label formatter on the provider.
func (s *TreeState) SetFormatter(ctx context.Context, fn FormatterFunc) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	s.provider.SetFormatter(fn)
	return nil
}

// SetHierarchyFilter installs a hierarchy-wide target-path filter on the
// provider.
func (s *TreeState) SetHierarchyFilter(ctx context.Context, paths []NodePath) error {
	if err := s.ensureMounted(ctx); err != nil {
		return err
	}
	s.provider.SetHierarchyFilter(paths)
	return nil
}

// Dispose cancels every in-flight load, unsubscribes from the provider,
// and disposes it. The TreeState must not be used afterward.
func (s *TreeState) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.actions != nil {
		s.actions.Dispose()
	}
	if s.provider != nil {
		s.provider.Dispose()
	}
}
