package nodestore

import (
	"fmt"
	"sync"

	"github.com/contentgraph/corestore/segment"
	"github.com/contentgraph/corestore/segment/hamt"
)

// SegmentStore is the alternative commit path described in the data-flow
// notes: instead of versioned properties inside a DocumentStore record,
// each commit serializes the touched subtree as new immutable segment
// records and publishes the new root via the Journal's CAS slot. It keeps
// one in-memory canonical tree per workspace; segment records are the
// durable encoding of that tree, not a second source of truth to reconcile.
type SegmentStore struct {
	writer    *segment.Writer
	journal   *segment.Journal
	cache     *segment.Cache
	workspace string

	mu   sync.Mutex
	tree *segTreeNode
}

type segTreeNode struct {
	properties map[string]string
	children   map[string]*segTreeNode
}

func newSegTreeNode() *segTreeNode {
	return &segTreeNode{properties: map[string]string{}, children: map[string]*segTreeNode{}}
}

// NewSegmentStore opens a SegmentStore rooted at an empty tree; call
// Reopen to load the tree addressed by the journal's existing head for
// workspace.
func NewSegmentStore(w *segment.Writer, j *segment.Journal, c *segment.Cache, workspace string) *SegmentStore {
	return &SegmentStore{writer: w, journal: j, cache: c, workspace: workspace, tree: newSegTreeNode()}
}

// SegmentPathOp mirrors document.PathOp's shape without importing the
// document package, keeping the two commit paths independent.
type SegmentPathOp struct {
	Path       string
	IsNew      bool
	IsDelete   bool
	Properties map[string]string
}

func splitPath(path string) []string {
	if path == "" || path == "/" {
		return nil
	}
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		parts = append(parts, path[start:])
	}
	return parts
}

func (t *segTreeNode) descend(segs []string, create bool) *segTreeNode {
	cur := t
	for _, s := range segs {
		next, ok := cur.children[s]
		if !ok {
			if !create {
				return nil
			}
			next = newSegTreeNode()
			cur.children[s] = next
		}
		cur = next
	}
	return cur
}

// Apply stages ops against the in-memory tree and publishes the result as
// a new generation of segment records, CAS-swapping the journal head.
// Concurrent commits race on the journal CAS; the caller is responsible
// for retrying on engerr.ConflictingUpdate exactly as NodeStoreBranch.Merge
// does for the DocumentEngine path.
func (s *SegmentStore) Apply(ops []SegmentPathOp) (segment.RecordId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevHead, hadHead, err := s.journal.Head(s.workspace)
	if err != nil {
		return segment.RecordId{}, err
	}

	for _, op := range ops {
		segs := splitPath(op.Path)
		if len(segs) == 0 {
			continue
		}
		parent := s.tree.descend(segs[:len(segs)-1], true)
		name := segs[len(segs)-1]
		switch {
		case op.IsDelete:
			delete(parent.children, name)
		case op.IsNew:
			n := newSegTreeNode()
			for k, v := range op.Properties {
				n.properties[k] = v
			}
			parent.children[name] = n
		default:
			n, ok := parent.children[name]
			if !ok {
				n = newSegTreeNode()
				parent.children[name] = n
			}
			for k, v := range op.Properties {
				n.properties[k] = v
			}
		}
	}

	rootId, err := s.writeNode(s.tree)
	if err != nil {
		return segment.RecordId{}, err
	}
	s.writer.AddRoot(rootId.Offset)
	if _, err := s.writer.Flush(); err != nil {
		return segment.RecordId{}, err
	}
	if err := s.journal.SetHead(s.workspace, prevHead, hadHead, rootId); err != nil {
		return segment.RecordId{}, err
	}
	return rootId, nil
}

// writeNode recursively publishes n and its children bottom-up: a
// childless node gets a ChildZero template, any other a MapRecord (§4.5)
// referenced as ChildMany.
func (s *SegmentStore) writeNode(n *segTreeNode) (segment.RecordId, error) {
	propertyIds := make([]segment.RecordId, 0, len(n.properties))
	propTemplates := make([]segment.PropertyTemplate, 0, len(n.properties))
	for name, value := range n.properties {
		ref, err := s.writer.WriteString(value)
		if err != nil {
			return segment.RecordId{}, err
		}
		propertyIds = append(propertyIds, ref.RecordId)
		propTemplates = append(propTemplates, segment.PropertyTemplate{Name: name, Type: segment.PropString})
	}

	var childRef *segment.RecordId
	tmpl := segment.Template{Properties: propTemplates, Child: segment.ChildZero}

	// Every non-empty node publishes its children through a MapRecord; a
	// true ChildOne inline shape (bypassing the map entirely for
	// single-child nodes) is an optimization left for a future pass.
	if len(n.children) > 0 {
		tmpl.Child = segment.ChildMany
		id, err := s.writeChildMap(n.children)
		if err != nil {
			return segment.RecordId{}, err
		}
		childRef = &id
	}

	tmplRef, err := s.writer.WriteTemplate(tmpl)
	if err != nil {
		return segment.RecordId{}, err
	}

	ns, err := s.writer.WriteNodeState(tmplRef, childRef, propertyIds)
	if err != nil {
		return segment.RecordId{}, err
	}
	return ns.Id, nil
}

func (s *SegmentStore) writeChildMap(children map[string]*segTreeNode) (segment.RecordId, error) {
	pairs := make(map[string]segment.RecordId, len(children))
	for name, child := range children {
		id, err := s.writeNode(child)
		if err != nil {
			return segment.RecordId{}, err
		}
		pairs[name] = id
	}
	node := hamt.Build(pairs)
	return hamt.WriteNode(s.writer, node)
}

// Head returns the current published root RecordId for the workspace, or
// ok=false if nothing has been committed yet.
func (s *SegmentStore) Head() (segment.RecordId, bool, error) {
	return s.journal.Head(s.workspace)
}

// Get resolves path against the last-applied in-memory tree, independent
// of whatever generation is currently the journal head (a SegmentStore
// always reflects its own writer's latest Apply).
func (s *SegmentStore) Get(path string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.tree.descend(splitPath(path), false)
	if n == nil {
		return nil, false
	}
	out := make(map[string]string, len(n.properties))
	for k, v := range n.properties {
		out[k] = v
	}
	return out, true
}

// Reopen rebuilds the in-memory tree from the journal's current head for
// workspace, walking every NodeState/Template/MapRecord it references back
// into segTreeNode form. A workspace with no published head yet reopens to
// an empty tree rather than an error.
func (s *SegmentStore) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok, err := s.journal.Head(s.workspace)
	if err != nil {
		return fmt.Errorf("nodestore: segment store reopen: %w", err)
	}
	if !ok {
		s.tree = newSegTreeNode()
		return nil
	}

	tree, err := s.readTree(segment.NodeState{Id: head})
	if err != nil {
		return fmt.Errorf("nodestore: segment store reopen: %w", err)
	}
	s.tree = tree
	return nil
}

// readTree decodes the NodeState at ns and every child it transitively
// reaches through its child map, rebuilding the in-memory tree shape
// SegmentStore.Apply maintains during a live session.
func (s *SegmentStore) readTree(ns segment.NodeState) (*segTreeNode, error) {
	seg, err := s.cache.Get(ns.Id.Segment)
	if err != nil {
		return nil, err
	}
	tmplRef, childRef, propIds, err := seg.ReadNodeState(ns, s.cache.Resolve)
	if err != nil {
		return nil, err
	}

	tmplSeg := seg
	if tmplRef.Segment != seg.Id() {
		if tmplSeg, err = s.cache.Get(tmplRef.Segment); err != nil {
			return nil, err
		}
	}
	tmpl, err := tmplSeg.ReadTemplate(tmplRef.Offset, s.cache.Resolve)
	if err != nil {
		return nil, err
	}

	n := newSegTreeNode()
	for i, propId := range propIds {
		if i >= len(tmpl.Properties) {
			break
		}
		value, err := segment.ResolveString(seg, propId, s.cache.Resolve)
		if err != nil {
			return nil, err
		}
		n.properties[tmpl.Properties[i].Name] = value
	}

	if childRef != nil && tmpl.Child == segment.ChildMany {
		mapSeg := seg
		if childRef.Segment != seg.Id() {
			if mapSeg, err = s.cache.Get(childRef.Segment); err != nil {
				return nil, err
			}
		}
		mapNode, err := hamt.ReadNode(mapSeg, *childRef, s.cache.Resolve, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range mapNode.Entries() {
			child, err := s.readTree(segment.NodeState{Id: e.Value})
			if err != nil {
				return nil, err
			}
			n.children[e.Key] = child
		}
	}

	return n, nil
}
