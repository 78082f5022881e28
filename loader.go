package treestate

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentSubLoads bounds how many sibling/nested levels LoadNodes
// loads concurrently. Real providers rarely fan out wide enough to need
// more; this keeps a pathological autoExpand chain from opening an
// unbounded number of concurrent provider calls.
const maxConcurrentSubLoads = 8

// LimitFunc resolves the effective size limit to request for id's children.
type LimitFunc func(id NodeId) SizeLimit

// FilterFunc resolves the effective instance filter to request for id's
// children.
type FilterFunc func(id NodeId) *InstanceFilter

// ShouldLoadChildrenFunc decides whether a freshly loaded hierarchy child
// should itself be recursively loaded.
type ShouldLoadChildrenFunc func(node HierarchyNode) bool

// BuildNodeFunc converts a provider HierarchyNode into the model's initial
// HierarchyModelNode state. The default (identity) builder is used for
// fresh loads; reloads substitute one that re-applies preserved attributes.
type BuildNodeFunc func(node HierarchyNode) HierarchyModelNode

// LoadOptions configures one LoadNodes invocation.
type LoadOptions struct {
	Limit              LimitFunc
	GetInstanceFilter  FilterFunc
	ShouldLoadChildren ShouldLoadChildrenFunc
	BuildNode          BuildNodeFunc
	IgnoreCache        bool
}

// IdentityBuildNode is the default BuildNodeFunc used for a fresh (non-
// reload) load: no attribute is preserved because there is nothing to
// preserve.
func IdentityBuildNode(node HierarchyNode) HierarchyModelNode {
	return HierarchyModelNode{NodeData: node, HierarchyLimit: Unbounded()}
}

// NeverLoadChildren is a ShouldLoadChildrenFunc that never recurses,
// i.e. a plain single-level load.
func NeverLoadChildren(HierarchyNode) bool { return false }

// AutoExpandOnly recurses into children the provider marked autoExpand,
// the default behaviour of a fresh (non-reload) expand.
func AutoExpandOnly(node HierarchyNode) bool { return node.AutoExpand }

// LoadEvent is one element of the stream LoadNodes produces: a loaded part
// plus whatever node-level error or limit-exceeded signal must be applied
// to its parent once grafted.
type LoadEvent struct {
	Part          LoadedTreePart
	NodeErr       *NodeError
	LimitExceeded *SizeLimit
}

// TreeLoader turns HierarchyProvider output into LoadedTreeParts.
type TreeLoader struct {
	Provider HierarchyProvider
}

// NewTreeLoader returns a loader bound to provider.
func NewTreeLoader(provider HierarchyProvider) *TreeLoader {
	return &TreeLoader{Provider: provider}
}

// LoadNodes loads id's children and, recursively, every descendant that
// opts.ShouldLoadChildren accepts, emitting one LoadEvent per distinct
// parentId encountered, in breadth-first order with sub-loads allowed to
// interleave. The returned channel is closed once every sub-load has
// finished or ctx is cancelled; a cancelled load emits no further events.
func (l *TreeLoader) LoadNodes(ctx context.Context, id NodeId, node *HierarchyNode, opts LoadOptions) <-chan LoadEvent {
	out := make(chan LoadEvent)
	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentSubLoads)
		l.loadRecursive(gctx, g, id, node, opts, out)
		_ = g.Wait()
	}()
	return out
}

func (l *TreeLoader) loadRecursive(ctx context.Context, g *errgroup.Group, id NodeId, node *HierarchyNode, opts LoadOptions, out chan<- LoadEvent) {
	part, nodeErr, limitExceeded, cancelled := l.loadLevel(ctx, id, node, opts)
	if cancelled {
		return
	}

	select {
	case <-ctx.Done():
		return
	case out <- LoadEvent{Part: part, NodeErr: nodeErr, LimitExceeded: limitExceeded}:
	}

	for _, ln := range part.LoadedNodes {
		if ln.Hierarchy == nil {
			continue
		}
		childNode := ln.Hierarchy.NodeData
		childId := ln.Id
		if !opts.ShouldLoadChildren(childNode) {
			continue
		}
		g.Go(func() error {
			l.loadRecursive(ctx, g, childId, &childNode, opts, out)
			return nil
		})
	}
}

// loadLevel loads a single parent's children and classifies whatever
// error comes back into the node-error/info-node pair the model expects.
// cancelled is true when ctx was cancelled mid-stream, in which case
// part/nodeErr/limitExceeded are meaningless and nothing should be
// published.
func (l *TreeLoader) loadLevel(ctx context.Context, id NodeId, node *HierarchyNode, opts LoadOptions) (part LoadedTreePart, nodeErr *NodeError, limitExceeded *SizeLimit, cancelled bool) {
	filter := opts.GetInstanceFilter(id)
	limit := opts.Limit(id)

	req := GetNodesRequest{
		ParentNode:              node,
		HierarchyLevelSizeLimit: limit,
		InstanceFilter:          filter,
		IgnoreCache:             opts.IgnoreCache,
	}

	var nodes []HierarchyNode
	var rowsLimit *RowsLimitExceededError
	var streamErr error

	for hn, err := range l.Provider.GetNodes(ctx, req) {
		if err != nil {
			streamErr = err
			break
		}
		nodes = append(nodes, hn)
	}

	if streamErr != nil {
		if ctx.Err() != nil {
			return LoadedTreePart{}, nil, nil, true
		}
		if errors.As(streamErr, &rowsLimit) {
			return LoadedTreePart{
				ParentId: id,
				LoadedNodes: []LoadedNode{{
					Id:   infoNodeId(id, "rows-limit"),
					Info: &InfoModelNode{Type: InfoResultSetTooLarge, ResultSetSizeLimit: &rowsLimit.Limit},
				}},
			}, nil, &rowsLimit.Limit, false
		}

		errType := ErrorChildrenLoad
		var timeoutErr *TimeoutError
		if errors.As(streamErr, &timeoutErr) {
			errType = ErrorTimeout
		}
		return LoadedTreePart{
			ParentId: id,
			LoadedNodes: []LoadedNode{{
				Id:   infoNodeId(id, "children-load"),
				Info: &InfoModelNode{Type: InfoUnknown, Message: "children failed to load"},
			}},
		}, &NodeError{Type: errType, Message: childrenLoadError(id, streamErr).Error()}, nil, false
	}

	if len(nodes) == 0 && filter != nil {
		return LoadedTreePart{
			ParentId: id,
			LoadedNodes: []LoadedNode{{
				Id:   infoNodeId(id, "no-match"),
				Info: &InfoModelNode{Type: InfoNoFilterMatches},
			}},
		}, nil, nil, false
	}

	loaded := make([]LoadedNode, len(nodes))
	for i, hn := range nodes {
		built := opts.BuildNode(hn)
		loaded[i] = LoadedNode{Id: hn.Id(), Hierarchy: &built}
	}
	return LoadedTreePart{ParentId: id, LoadedNodes: loaded}, nil, nil, false
}

// infoNodeId derives a deterministic id for a synthetic info node, scoped
// to its parent and distinguished by kind so two different info kinds
// under the same parent never collide.
func infoNodeId(parentId NodeId, kind string) NodeId {
	return createNodeId([]NodeKey{GenericKey{Value: string(parentId)}}, GenericKey{Value: "info:" + kind})
}
