package treestate

import "sync"

// SelectionMode names how many nodes a [SelectionHandler] allows selected
// at once and how click modifiers are interpreted.
type SelectionMode int

const (
	// SelectionNone ignores every click/activation.
	SelectionNone SelectionMode = iota
	// SelectionSingle replaces the selection with the clicked node unless
	// it is already selected, in which case the click deselects it.
	// Modifiers are ignored.
	SelectionSingle
	// SelectionMultiple adds the clicked node to the selection unless it
	// is already selected, in which case the click removes it. Modifiers
	// are ignored.
	SelectionMultiple
	// SelectionExtended adds shift-click range selection on top of
	// SelectionMultiple's behaviour.
	SelectionExtended
)

// ClickModifiers mirrors the keyboard modifiers held during a click or key
// activation.
type ClickModifiers struct {
	Shift bool
	Ctrl  bool
}

// SelectionHandler drives a [TreeActions]'s selection state from click and
// key-activation events, implementing the mode/modifier action table and
// shift-click range selection.
type SelectionHandler struct {
	actions *TreeActions

	mu        sync.Mutex
	mode      SelectionMode
	flatOrder []NodeId
	anchor    *NodeId
}

// NewSelectionHandler returns a handler driving actions in the given mode.
func NewSelectionHandler(actions *TreeActions, mode SelectionMode) *SelectionHandler {
	return &SelectionHandler{actions: actions, mode: mode}
}

// SetMode changes the active selection mode. It does not itself change the
// current selection.
func (h *SelectionHandler) SetMode(mode SelectionMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mode = mode
}

// Mode returns the active selection mode.
func (h *SelectionHandler) Mode() SelectionMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// SyncVisibleOrder recomputes the flat visible order the handler computes
// ranges over. Callers must invoke this whenever the set of visible nodes
// changes (an expand/collapse, a reload, or a fresh hierarchy part being
// grafted); [TreeState] does this after every model publication.
func (h *SelectionHandler) SyncVisibleOrder(m *TreeModel) {
	order := FlatVisibleOrder(m)
	h.mu.Lock()
	h.flatOrder = order
	h.mu.Unlock()
}

// Click applies a click on id under the active mode and mods, per the
// mode/modifier behaviour described on the [SelectionMode] constants.
func (h *SelectionHandler) Click(id NodeId, mods ClickModifiers) {
	h.mu.Lock()
	mode := h.mode
	anchor := h.anchor
	order := h.flatOrder
	h.mu.Unlock()

	switch mode {
	case SelectionNone:
		return

	case SelectionSingle:
		if IsNodeSelected(h.actions.Model(), id) {
			h.actions.SelectNodes([]NodeId{id}, SelectRemove)
		} else {
			h.actions.SelectNodes([]NodeId{id}, SelectReplace)
		}
		h.setAnchor(id)

	case SelectionMultiple:
		h.toggle(id)
		h.setAnchor(id)

	case SelectionExtended:
		if mods.Shift && anchor != nil {
			h.actions.SelectNodes(rangeBetween(order, *anchor, id), SelectReplace)
			// A shift-click extends from the anchor but does not move it,
			// so a second shift-click further down still extends from the
			// same origin.
			return
		}
		if mods.Ctrl {
			h.toggle(id)
			h.setAnchor(id)
			return
		}
		h.actions.SelectNodes([]NodeId{id}, SelectReplace)
		h.setAnchor(id)
	}
}

// KeyActivate handles a Space/Enter activation on id, which behaves
// exactly like a click with the same modifiers held.
func (h *SelectionHandler) KeyActivate(id NodeId, mods ClickModifiers) {
	h.Click(id, mods)
}

func (h *SelectionHandler) setAnchor(id NodeId) {
	h.mu.Lock()
	h.anchor = &id
	h.mu.Unlock()
}

func (h *SelectionHandler) toggle(id NodeId) {
	model := h.actions.Model()
	if IsNodeSelected(model, id) {
		h.actions.SelectNodes([]NodeId{id}, SelectRemove)
		return
	}
	h.actions.SelectNodes([]NodeId{id}, SelectAdd)
}

// rangeBetween returns every id in order between a and b inclusive,
// regardless of which one comes first. If
// either id is absent from order, only the other is returned.
func rangeBetween(order []NodeId, a, b NodeId) []NodeId {
	ai, bi := -1, -1
	for i, id := range order {
		if id == a {
			ai = i
		}
		if id == b {
			bi = i
		}
	}
	if ai == -1 && bi == -1 {
		return nil
	}
	if ai == -1 {
		return []NodeId{order[bi]}
	}
	if bi == -1 {
		return []NodeId{order[ai]}
	}
	if ai > bi {
		ai, bi = bi, ai
	}
	out := make([]NodeId, bi-ai+1)
	copy(out, order[ai:bi+1])
	return out
}
