// Package filesystem is a treestate.HierarchyProvider over a local
// directory tree, listing entries lazily via os.ReadDir one level at a
// time, only stating and listing the level the engine actually asks for.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lattice-tree/treestate"
)

// ErrSymlinkLoop is returned when following a symlink would revisit a
// directory already materialized earlier in this provider's lifetime.
var ErrSymlinkLoop = errors.New("filesystem: symlink loop detected")

// Option configures a Provider at construction time.
type Option func(*Provider)

// WithFollowSymlinks makes the provider resolve symlinks to their targets
// instead of treating them as opaque leaves. Disabled by default.
func WithFollowSymlinks() Option {
	return func(p *Provider) { p.followSymlinks = true }
}

// Provider lists a single directory tree rooted at root. The tree's own
// root is exposed as the sole node at the engine's RootId level; expanding
// it lists root's directory entries, and so on recursively.
type Provider struct {
	root           string
	followSymlinks bool

	mu         sync.Mutex
	formatter  treestate.FormatterFunc
	filterGlob string
	listeners  map[int]func(treestate.HierarchyChangeEvent)
	nextLID    int
	visited    sync.Map
}

// NewProvider returns a provider rooted at path, resolving `~`, `.`, and
// `..` to an absolute, cleaned path.
func NewProvider(path string, opts ...Option) (*Provider, error) {
	abs, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(abs); err != nil {
		return nil, fmt.Errorf("filesystem: stat %s: %w", abs, err)
	}
	p := &Provider{
		root:      abs,
		listeners: make(map[int]func(treestate.HierarchyChangeEvent)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("filesystem: resolve %s: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("filesystem: resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// entry pairs an os.FileInfo with its absolute path, since FileInfo.Name
// alone cannot reconstruct the path.
type entry struct {
	info os.FileInfo
	path string
}

func (p *Provider) stat(path string) (entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return entry{}, fmt.Errorf("filesystem: lstat %s: %w", path, err)
	}
	if p.followSymlinks && info.Mode()&os.ModeSymlink != 0 {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return entry{}, fmt.Errorf("filesystem: resolve symlink %s: %w", path, err)
		}
		info, err = os.Stat(resolved)
		if err != nil {
			return entry{}, fmt.Errorf("filesystem: stat %s: %w", resolved, err)
		}
		path = resolved
	}
	if info.IsDir() {
		key := inodeKey(info)
		if _, seen := p.visited.LoadOrStore(key, path); seen {
			return entry{}, ErrSymlinkLoop
		}
	}
	return entry{info: info, path: path}, nil
}

func (p *Provider) toHierarchyNode(parentKeys []treestate.NodeKey, e entry) treestate.HierarchyNode {
	p.mu.Lock()
	formatter := p.formatter
	p.mu.Unlock()

	hn := treestate.HierarchyNode{
		Key:               treestate.GenericKey{Value: e.path},
		ParentKeys:        parentKeys,
		Label:             e.info.Name(),
		HasChildren:       e.info.IsDir(),
		SupportsFiltering: e.info.IsDir(),
		ExtendedData: map[string]any{
			"path":  e.path,
			"size":  e.info.Size(),
			"isDir": e.info.IsDir(),
		},
	}
	if formatter != nil {
		hn.Label = formatter(hn)
	}
	return hn
}

// GetNodes implements treestate.HierarchyProvider.
func (p *Provider) GetNodes(ctx context.Context, req treestate.GetNodesRequest) iter.Seq2[treestate.HierarchyNode, error] {
	return func(yield func(treestate.HierarchyNode, error) bool) {
		if req.ParentNode == nil {
			e, err := p.stat(p.root)
			if err != nil {
				yield(treestate.HierarchyNode{}, err)
				return
			}
			yield(p.toHierarchyNode(nil, e), nil)
			return
		}

		key, ok := req.ParentNode.Key.(treestate.GenericKey)
		if !ok {
			return
		}
		dirEntries, err := os.ReadDir(key.Value)
		if err != nil {
			yield(treestate.HierarchyNode{}, fmt.Errorf("filesystem: read dir %s: %w", key.Value, err))
			return
		}
		sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

		glob := p.globFilter(req.InstanceFilter)
		parentKeys := append(append([]treestate.NodeKey(nil), req.ParentNode.ParentKeys...), req.ParentNode.Key)

		names := make([]string, 0, len(dirEntries))
		for _, de := range dirEntries {
			if glob != "" {
				if ok, _ := filepath.Match(glob, de.Name()); !ok {
					continue
				}
			}
			names = append(names, de.Name())
		}

		if n, ok := req.HierarchyLevelSizeLimit.Value(); ok && len(names) > n {
			yield(treestate.HierarchyNode{}, &treestate.RowsLimitExceededError{Limit: req.HierarchyLevelSizeLimit})
			return
		}

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield(treestate.HierarchyNode{}, err)
				return
			}
			e, err := p.stat(filepath.Join(key.Value, name))
			if err != nil {
				if !yield(treestate.HierarchyNode{}, err) {
					return
				}
				continue
			}
			if !yield(p.toHierarchyNode(parentKeys, e), nil) {
				return
			}
		}
	}
}

func (p *Provider) globFilter(f *treestate.InstanceFilter) string {
	if f == nil {
		return ""
	}
	g, _ := f.Rule.(string)
	return g
}

// GetNodeInstanceKeys implements treestate.HierarchyProvider, yielding one
// synthetic key per directory entry, keyed by absolute path.
func (p *Provider) GetNodeInstanceKeys(ctx context.Context, req treestate.GetNodeInstanceKeysRequest) iter.Seq2[treestate.InstanceKey, error] {
	return func(yield func(treestate.InstanceKey, error) bool) {
		dir := p.root
		if req.ParentNode != nil {
			if key, ok := req.ParentNode.Key.(treestate.GenericKey); ok {
				dir = key.Value
			}
		}
		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			yield(treestate.InstanceKey{}, fmt.Errorf("filesystem: read dir %s: %w", dir, err))
			return
		}
		for _, de := range dirEntries {
			if err := ctx.Err(); err != nil {
				yield(treestate.InstanceKey{}, err)
				return
			}
			full := filepath.Join(dir, de.Name())
			if !yield(treestate.InstanceKey{ClassName: "filesystem.Entry", ID: full}, nil) {
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

// SetHierarchyFilter implements treestate.HierarchyProvider. paths are
// passed to listeners in the change event and not stored; this provider's
// own glob filtering is driven
// per-level by InstanceFilter, not by this hierarchy-wide mechanism.
func (p *Provider) SetHierarchyFilter(paths []treestate.NodePath) {
	p.mu.Lock()
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

// Dispose implements treestate.HierarchyProvider.
func (p *Provider) Dispose() {
	p.mu.Lock()
	p.listeners = make(map[int]func(treestate.HierarchyChangeEvent))
	p.mu.Unlock()
}
