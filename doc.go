// Package treestate turns an asynchronous, possibly-infinite, lazily
// loaded hierarchy into an observable, immutable tree model suitable for
// rendering by any UI toolkit.
//
// The package owns the state machine for node lifecycles, coordinates
// cancellable asynchronous loading across sibling and nested levels,
// preserves user state (expansion, selection, filters) across reloads,
// reconciles partial results from out-of-order completions, and exposes a
// stable selection-change protocol. It never touches storage, a network
// socket, or a terminal: the only collaborator it calls is a
// [HierarchyProvider] supplied by the caller.
//
// The moving pieces are:
//
//   - [TreeModel] — the immutable snapshot of nodes and parent/child links.
//   - [TreeLoader] — turns provider output into loaded tree parts.
//   - [TreeActions] — the state machine that mutates the model and drives
//     loads.
//   - [TreeState] — the lifecycle owner: builds a provider, subscribes to
//     change notifications, and exposes a read-only projection for
//     rendering.
//   - [SelectionHandler] — turns click/keyboard intents into selection
//     changes.
//
// Basic usage:
//
//	state := treestate.New(ctx, treestate.Config{
//		GetHierarchyProvider: func(context.Context) (treestate.HierarchyProvider, error) {
//			return memory.NewProvider(data), nil
//		},
//	})
//	defer state.Dispose()
//	if err := state.ReloadTree(ctx, treestate.ReloadOptions{}); err != nil {
//		log.Fatal(err)
//	}
//	// ReloadTree returns once the load has started; RootNodes shows only
//	// what has been loaded and published so far.
//	for _, n := range state.RootNodes() {
//		fmt.Println(n.Label)
//	}
package treestate
