package treestate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// NodeId is the stable identifier of a tree model node. Two nodes with
// equal key paths (ancestor keys followed by the node's own key) always
// produce equal ids, so reloading the same hierarchy yields stable
// identities.
type NodeId string

// RootId is the sentinel identifier of the root node.
const RootId NodeId = ""

// InstanceKey identifies a single ECInstance-like row by class and id. It
// is the atomic unit of an InstanceSetKey and of
// [HierarchyProvider.GetNodeInstanceKeys].
type InstanceKey struct {
	ClassName string
	ID        string
}

func (k InstanceKey) String() string {
	return k.ClassName + ":" + k.ID
}

// GroupingKind enumerates the ways a provider may group sibling nodes.
type GroupingKind int

const (
	// GroupByClass groups instances sharing the same ECClass.
	GroupByClass GroupingKind = iota
	// GroupByLabel groups instances sharing the same display label.
	GroupByLabel
	// GroupByProperty groups instances sharing a property value.
	GroupByProperty
	// GroupByBaseClass groups instances sharing a base class.
	GroupByBaseClass
)

func (k GroupingKind) String() string {
	switch k {
	case GroupByClass:
		return "class"
	case GroupByLabel:
		return "label"
	case GroupByProperty:
		return "property"
	case GroupByBaseClass:
		return "base-class"
	default:
		return "unknown"
	}
}

// NodeKey is the variant key a [HierarchyNode] carries: an opaque generic
// key, an instance-set key, or a grouping key. Implementations are
// [GenericKey], [InstanceSetKey], and [GroupingKey].
type NodeKey interface {
	// keyString returns a canonical, order-sensitive serialization used to
	// derive a NodeId. It never changes meaning between calls for
	// semantically-equal keys.
	keyString() string
}

// GenericKey is an opaque key supplied by the provider, used for nodes
// that do not map to any ECInstance (e.g. a custom grouping header coming
// from business logic outside the ECSQL layer).
type GenericKey struct {
	Value string
}

func (k GenericKey) keyString() string { return "g:" + k.Value }

// InstanceSetKey identifies a node backed by one or more ECInstances. A
// merged node (several rows collapsed into one tree node) carries more
// than one entry.
type InstanceSetKey struct {
	Instances []InstanceKey
}

func (k InstanceSetKey) keyString() string {
	parts := make([]string, len(k.Instances))
	for i, inst := range k.Instances {
		parts[i] = inst.String()
	}
	sort.Strings(parts)
	return "i:" + strings.Join(parts, ",")
}

// GroupingKey identifies a synthetic grouping node introduced by the
// provider's grouping step.
type GroupingKey struct {
	Kind GroupingKind
	// Value is the class name, label, or property value being grouped by,
	// depending on Kind.
	Value string
}

func (k GroupingKey) keyString() string { return "k:" + k.Kind.String() + ":" + k.Value }

// createNodeId derives a [NodeId] from a node's key path: its ancestor
// keys followed by its own key, in order. The derivation is a SHA-256
// digest of the canonical serialization of the path so that ids have a
// fixed, predictable length regardless of how deep or wide the key data
// is: instance-set keys can carry arbitrarily many rows for a merged node.
func createNodeId(parentKeys []NodeKey, own NodeKey) NodeId {
	h := sha256.New()
	for _, k := range parentKeys {
		fmt.Fprintf(h, "%s/", k.keyString())
	}
	fmt.Fprintf(h, "%s", own.keyString())
	return NodeId(hex.EncodeToString(h.Sum(nil)))
}
