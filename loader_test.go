package treestate

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
)

// fakeProvider is a minimal HierarchyProvider stub driven entirely by a
// per-parent-key function, letting each test script exactly what a level
// returns.
type fakeProvider struct {
	byParent     map[string]func() ([]HierarchyNode, error)
	instanceKeys map[string][]InstanceKey

	mu          sync.Mutex
	filterCalls [][]NodePath
}

func (p *fakeProvider) setHierarchyFilterCalls() [][]NodePath {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]NodePath, len(p.filterCalls))
	copy(out, p.filterCalls)
	return out
}

func parentKey(node *HierarchyNode) string {
	if node == nil {
		return ""
	}
	return string(node.Id())
}

func (p *fakeProvider) GetNodes(ctx context.Context, req GetNodesRequest) iter.Seq2[HierarchyNode, error] {
	return func(yield func(HierarchyNode, error) bool) {
		fn, ok := p.byParent[parentKey(req.ParentNode)]
		if !ok {
			return
		}
		nodes, err := fn()
		if err != nil {
			yield(HierarchyNode{}, err)
			return
		}
		for _, n := range nodes {
			if ctx.Err() != nil {
				yield(HierarchyNode{}, ctx.Err())
				return
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (p *fakeProvider) GetNodeInstanceKeys(_ context.Context, req GetNodeInstanceKeysRequest) iter.Seq2[InstanceKey, error] {
	keys := p.instanceKeys[parentKey(req.ParentNode)]
	return func(yield func(InstanceKey, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}
func (p *fakeProvider) SetFormatter(FormatterFunc) {}
func (p *fakeProvider) SetHierarchyFilter(paths []NodePath) {
	p.mu.Lock()
	p.filterCalls = append(p.filterCalls, paths)
	p.mu.Unlock()
}
func (p *fakeProvider) OnHierarchyChanged(func(HierarchyChangeEvent)) func() { return func() {} }
func (p *fakeProvider) Dispose()                                             {}

func drainEvents(ch <-chan LoadEvent) []LoadEvent {
	var out []LoadEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func defaultOpts() LoadOptions {
	return LoadOptions{
		Limit:              func(NodeId) SizeLimit { return Unbounded() },
		GetInstanceFilter:  func(NodeId) *InstanceFilter { return nil },
		ShouldLoadChildren: NeverLoadChildren,
		BuildNode:          IdentityBuildNode,
	}
}

func TestLoadNodes_SingleLevel(t *testing.T) {
	p := &fakeProvider{byParent: map[string]func() ([]HierarchyNode, error){
		"": func() ([]HierarchyNode, error) {
			return []HierarchyNode{
				{Key: GenericKey{Value: "a"}},
				{Key: GenericKey{Value: "b"}},
			}, nil
		},
	}}
	loader := NewTreeLoader(p)
	events := drainEvents(loader.LoadNodes(context.Background(), RootId, nil, defaultOpts()))

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if len(events[0].Part.LoadedNodes) != 2 {
		t.Errorf("got %d nodes, want 2", len(events[0].Part.LoadedNodes))
	}
	if events[0].NodeErr != nil || events[0].LimitExceeded != nil {
		t.Error("unexpected error/limit on a clean load")
	}
}

func TestLoadNodes_RowsLimitExceeded(t *testing.T) {
	p := &fakeProvider{byParent: map[string]func() ([]HierarchyNode, error){
		"": func() ([]HierarchyNode, error) {
			return nil, &RowsLimitExceededError{Limit: Limit(5)}
		},
	}}
	loader := NewTreeLoader(p)
	events := drainEvents(loader.LoadNodes(context.Background(), RootId, nil, defaultOpts()))

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.LimitExceeded == nil {
		t.Fatal("LimitExceeded = nil, want set")
	}
	if n, _ := ev.LimitExceeded.Value(); n != 5 {
		t.Errorf("LimitExceeded value = %d, want 5", n)
	}
	if len(ev.Part.LoadedNodes) != 1 || ev.Part.LoadedNodes[0].Info == nil {
		t.Fatal("rows-limit event did not carry exactly one info node")
	}
	if ev.Part.LoadedNodes[0].Info.Type != InfoResultSetTooLarge {
		t.Errorf("info node type = %v, want InfoResultSetTooLarge", ev.Part.LoadedNodes[0].Info.Type)
	}
	if ev.NodeErr != nil {
		t.Error("rows-limit event unexpectedly carried a NodeErr")
	}
}

func TestLoadNodes_GenericFailureClassifiedAsChildrenLoad(t *testing.T) {
	p := &fakeProvider{byParent: map[string]func() ([]HierarchyNode, error){
		"": func() ([]HierarchyNode, error) {
			return nil, errors.New("boom")
		},
	}}
	loader := NewTreeLoader(p)
	events := drainEvents(loader.LoadNodes(context.Background(), RootId, nil, defaultOpts()))

	ev := events[0]
	if ev.NodeErr == nil {
		t.Fatal("NodeErr = nil, want set")
	}
	if ev.NodeErr.Type != ErrorChildrenLoad {
		t.Errorf("NodeErr.Type = %v, want ErrorChildrenLoad", ev.NodeErr.Type)
	}
	if ev.Part.LoadedNodes[0].Info.Type != InfoUnknown {
		t.Errorf("info node type = %v, want InfoUnknown", ev.Part.LoadedNodes[0].Info.Type)
	}
}

func TestLoadNodes_TimeoutClassified(t *testing.T) {
	p := &fakeProvider{byParent: map[string]func() ([]HierarchyNode, error){
		"": func() ([]HierarchyNode, error) {
			return nil, &TimeoutError{Cause: errors.New("deadline exceeded")}
		},
	}}
	loader := NewTreeLoader(p)
	events := drainEvents(loader.LoadNodes(context.Background(), RootId, nil, defaultOpts()))

	if events[0].NodeErr.Type != ErrorTimeout {
		t.Errorf("NodeErr.Type = %v, want ErrorTimeout", events[0].NodeErr.Type)
	}
}

func TestLoadNodes_EmptyWithActiveFilterYieldsNoMatchInfo(t *testing.T) {
	p := &fakeProvider{byParent: map[string]func() ([]HierarchyNode, error){
		"": func() ([]HierarchyNode, error) { return nil, nil },
	}}
	loader := NewTreeLoader(p)
	opts := defaultOpts()
	opts.GetInstanceFilter = func(NodeId) *InstanceFilter { return &InstanceFilter{Rule: "needle"} }

	events := drainEvents(loader.LoadNodes(context.Background(), RootId, nil, opts))
	ev := events[0]
	if len(ev.Part.LoadedNodes) != 1 || ev.Part.LoadedNodes[0].Info == nil {
		t.Fatal("empty filtered level did not yield exactly one info node")
	}
	if ev.Part.LoadedNodes[0].Info.Type != InfoNoFilterMatches {
		t.Errorf("info node type = %v, want InfoNoFilterMatches", ev.Part.LoadedNodes[0].Info.Type)
	}
}

func TestLoadNodes_RecursesIntoAutoExpand(t *testing.T) {
	child := HierarchyNode{Key: GenericKey{Value: "child"}, AutoExpand: true}
	childId := child.Id()

	p := &fakeProvider{byParent: map[string]func() ([]HierarchyNode, error){
		"": func() ([]HierarchyNode, error) {
			return []HierarchyNode{child}, nil
		},
		string(childId): func() ([]HierarchyNode, error) {
			return []HierarchyNode{{Key: GenericKey{Value: "grandchild"}}}, nil
		},
	}}
	loader := NewTreeLoader(p)
	opts := defaultOpts()
	opts.ShouldLoadChildren = AutoExpandOnly

	events := drainEvents(loader.LoadNodes(context.Background(), RootId, nil, opts))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (root level + auto-expanded child level)", len(events))
	}

	var sawChildLevel bool
	for _, ev := range events {
		if ev.Part.ParentId == childId {
			sawChildLevel = true
			if len(ev.Part.LoadedNodes) != 1 {
				t.Errorf("child level got %d nodes, want 1", len(ev.Part.LoadedNodes))
			}
		}
	}
	if !sawChildLevel {
		t.Error("auto-expand child level was never loaded")
	}
}

func TestLoadNodes_CancelledContextEmitsNothing(t *testing.T) {
	p := &fakeProvider{byParent: map[string]func() ([]HierarchyNode, error){
		"": func() ([]HierarchyNode, error) {
			return []HierarchyNode{{Key: GenericKey{Value: "a"}}}, nil
		},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := NewTreeLoader(p)
	events := drainEvents(loader.LoadNodes(ctx, RootId, nil, defaultOpts()))
	if len(events) != 0 {
		t.Errorf("got %d events on a pre-cancelled context, want 0", len(events))
	}
}
