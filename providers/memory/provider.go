// Package memory is an in-memory treestate.HierarchyProvider backed by a
// plain Go forest of *Item values, built eagerly and served lazily one
// level at a time through iter.Seq2. It exists for tests and demos of the
// engine.
package memory

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/lattice-tree/treestate"
)

// Item is a single node of the in-memory forest. Children are attached
// before the Item is ever handed to a Provider; the provider never changes
// the forest's shape. The WithAutoExpand option sets AutoExpand on the
// matching Items in place.
type Item struct {
	ID                string
	Label             string
	Children          []*Item
	AutoExpand        bool
	SupportsFiltering bool
	ExtendedData      map[string]any
}

// LabelContains is the only FilterRule memory.Provider understands: an
// InstanceFilter carrying one keeps only children whose label contains
// Substr, case-insensitively.
type LabelContains struct {
	Substr string
}

// Option configures a Provider at construction time.
type Option func(*Provider)

// WithAutoExpand marks every item matching pred (recursively) as
// auto-expanding.
func WithAutoExpand(pred func(*Item) bool) Option {
	return func(p *Provider) {
		var walk func(*Item)
		walk = func(it *Item) {
			if pred(it) {
				it.AutoExpand = true
			}
			for _, c := range it.Children {
				walk(c)
			}
		}
		for _, r := range p.roots {
			walk(r)
		}
	}
}

// Provider is a treestate.HierarchyProvider over an in-memory forest.
type Provider struct {
	roots []*Item
	byID  map[string]*Item

	mu        sync.Mutex
	formatter treestate.FormatterFunc
	filter    []treestate.NodePath
	listeners map[int]func(treestate.HierarchyChangeEvent)
	nextLID   int
}

// NewProvider returns a provider serving roots and their descendants.
func NewProvider(roots []*Item, opts ...Option) *Provider {
	p := &Provider{
		roots:     roots,
		byID:      make(map[string]*Item),
		listeners: make(map[int]func(treestate.HierarchyChangeEvent)),
	}
	var index func(*Item)
	index = func(it *Item) {
		p.byID[it.ID] = it
		for _, c := range it.Children {
			index(c)
		}
	}
	for _, r := range roots {
		index(r)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NestedDataAdapter exposes the accessors NewProviderFromNestedData needs
// to turn an arbitrary nested data source into an Item forest.
type NestedDataAdapter[T any] interface {
	ID(T) string
	Label(T) string
	Children(T) []T
}

// NewProviderFromNestedData builds a Provider from data already structured
// as a parent-child hierarchy, converting it eagerly via adapter.
func NewProviderFromNestedData[T any](items []T, adapter NestedDataAdapter[T], opts ...Option) *Provider {
	var build func(T) *Item
	build = func(v T) *Item {
		it := &Item{ID: adapter.ID(v), Label: adapter.Label(v)}
		for _, c := range adapter.Children(v) {
			it.Children = append(it.Children, build(c))
		}
		return it
	}
	roots := make([]*Item, len(items))
	for i, v := range items {
		roots[i] = build(v)
	}
	return NewProvider(roots, opts...)
}

func (p *Provider) itemFor(node *treestate.HierarchyNode) (*Item, bool) {
	if node == nil {
		return nil, true
	}
	key, ok := node.Key.(treestate.GenericKey)
	if !ok {
		return nil, false
	}
	it, ok := p.byID[key.Value]
	return it, ok
}

func (p *Provider) toHierarchyNode(parentKeys []treestate.NodeKey, it *Item) treestate.HierarchyNode {
	p.mu.Lock()
	formatter := p.formatter
	p.mu.Unlock()

	label := it.Label
	hn := treestate.HierarchyNode{
		Key:               treestate.GenericKey{Value: it.ID},
		ParentKeys:        parentKeys,
		Label:             label,
		HasChildren:       len(it.Children) > 0,
		AutoExpand:        it.AutoExpand,
		SupportsFiltering: it.SupportsFiltering,
		ExtendedData:      it.ExtendedData,
	}
	if formatter != nil {
		hn.Label = formatter(hn)
	}
	return hn
}

// GetNodes implements treestate.HierarchyProvider.
func (p *Provider) GetNodes(ctx context.Context, req treestate.GetNodesRequest) iter.Seq2[treestate.HierarchyNode, error] {
	return func(yield func(treestate.HierarchyNode, error) bool) {
		it, ok := p.itemFor(req.ParentNode)
		if !ok {
			return
		}
		children := p.roots
		var parentKeys []treestate.NodeKey
		if it != nil {
			children = it.Children
			parentKeys = append(append([]treestate.NodeKey(nil), req.ParentNode.ParentKeys...), req.ParentNode.Key)
		}

		filtered := children
		if req.InstanceFilter != nil {
			if rule, ok := req.InstanceFilter.Rule.(LabelContains); ok {
				filtered = make([]*Item, 0, len(children))
				needle := strings.ToLower(rule.Substr)
				for _, c := range children {
					if strings.Contains(strings.ToLower(c.Label), needle) {
						filtered = append(filtered, c)
					}
				}
			}
		}

		if n, ok := req.HierarchyLevelSizeLimit.Value(); ok && len(filtered) > n {
			yield(treestate.HierarchyNode{}, &treestate.RowsLimitExceededError{Limit: req.HierarchyLevelSizeLimit})
			return
		}

		for _, c := range filtered {
			if err := ctx.Err(); err != nil {
				yield(treestate.HierarchyNode{}, err)
				return
			}
			if !yield(p.toHierarchyNode(parentKeys, c), nil) {
				return
			}
		}
	}
}

// GetNodeInstanceKeys implements treestate.HierarchyProvider. Memory items
// are not ECInstance-backed, so each yields a synthetic key scoped to this
// package.
func (p *Provider) GetNodeInstanceKeys(ctx context.Context, req treestate.GetNodeInstanceKeysRequest) iter.Seq2[treestate.InstanceKey, error] {
	return func(yield func(treestate.InstanceKey, error) bool) {
		it, ok := p.itemFor(req.ParentNode)
		if !ok {
			return
		}
		children := p.roots
		if it != nil {
			children = it.Children
		}
		for _, c := range children {
			if err := ctx.Err(); err != nil {
				yield(treestate.InstanceKey{}, err)
				return
			}
			if !yield(treestate.InstanceKey{ClassName: "memory.Item", ID: c.ID}, nil) {
				return
			}
		}
	}
}

// SetFormatter implements treestate.HierarchyProvider.
func (p *Provider) SetFormatter(fn treestate.FormatterFunc) {
	p.mu.Lock()
	p.formatter = fn
	listeners := p.snapshotListeners()
	p.mu.Unlock()
	p.notify(listeners, treestate.HierarchyChangeEvent{FormatterChange: &treestate.FormatterChange{}})
}

// SetHierarchyFilter implements treestate.HierarchyProvider.
func (p *Provider) SetHierarchyFilter(paths []treestate.NodePath) {
	p.mu.Lock()
	p.filter = paths
	listeners := p.snapshotListeners()
	p.mu.Unlock()
	p.notify(listeners, treestate.HierarchyChangeEvent{FilterChange: &treestate.FilterChange{NewFilter: paths}})
}

// OnHierarchyChanged implements treestate.HierarchyProvider.
func (p *Provider) OnHierarchyChanged(fn func(treestate.HierarchyChangeEvent)) func() {
	p.mu.Lock()
	id := p.nextLID
	p.nextLID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) snapshotListeners() []func(treestate.HierarchyChangeEvent) {
	out := make([]func(treestate.HierarchyChangeEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

func (p *Provider) notify(listeners []func(treestate.HierarchyChangeEvent), ev treestate.HierarchyChangeEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}

// Dispose implements treestate.HierarchyProvider. The in-memory forest
// holds no external resources; Dispose only drops listener references.
func (p *Provider) Dispose() {
	p.mu.Lock()
	p.listeners = make(map[int]func(treestate.HierarchyChangeEvent))
	p.mu.Unlock()
}
