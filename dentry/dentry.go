package dentry

import (
	"path"
	"strings"

	"github.com/google/btree"
)

// btreeDegree is the branching factor for each Dentry's child index. Small
// directories dominate real filesystems, so a modest degree keeps node
// overhead low while still giving O(log n) ordered lookup for the rare
// wide directory.
const btreeDegree = 8

// childItem adapts a *Dentry into btree.Item, ordering children by name —
// spec §3 requires the Dentry's child set be "ordered by name".
type childItem struct {
	name string
	d    *Dentry
}

func (c childItem) Less(than btree.Item) bool {
	return c.name < than.(childItem).name
}

// Dentry is one edge from a parent directory to a named child with a
// specific Inode (spec §3).
type Dentry struct {
	Name   string
	Parent *Dentry
	Inode  *Inode

	children *btree.BTree

	// fullPath caches the path of this dentry relative to the tree root,
	// materialised lazily by FullPath (or for a whole subtree by
	// MaterializePaths).
	fullPath string
	pathSet  bool

	// needsExtraction is set by the planner on every dentry visited
	// during plan() and cleared by the executor once Phase A/B has
	// applied the dentry (spec §4.4, §4.5).
	needsExtraction bool
}

// NewDentry constructs a detached Dentry named name pointing at ino.
// Callers must Link it under a parent (or use it as a tree root).
func NewDentry(name string, ino *Inode) *Dentry {
	return &Dentry{Name: name, Inode: ino}
}

// Link makes child a named entry under d, replacing any existing child of
// the same name, and registers child's inode back-reference.
func (d *Dentry) Link(child *Dentry) {
	if d.children == nil {
		d.children = btree.New(btreeDegree)
	}
	child.Parent = d
	d.children.ReplaceOrInsert(childItem{name: child.Name, d: child})
	if child.Inode != nil {
		child.Inode.Dentries = append(child.Inode.Dentries, child)
		child.Inode.Nlink++
	}
}

// Child looks up a single named child, or nil if absent.
func (d *Dentry) Child(name string) *Dentry {
	if d.children == nil {
		return nil
	}
	item := d.children.Get(childItem{name: name})
	if item == nil {
		return nil
	}
	return item.(childItem).d
}

// Children returns the child dentries in name order.
func (d *Dentry) Children() []*Dentry {
	if d.children == nil {
		return nil
	}
	out := make([]*Dentry, 0, d.children.Len())
	d.children.Ascend(func(item btree.Item) bool {
		out = append(out, item.(childItem).d)
		return true
	})
	return out
}

// IsRoot reports whether d has no parent.
func (d *Dentry) IsRoot() bool { return d.Parent == nil }

// NeedsExtraction reports the transient per-extraction flag.
func (d *Dentry) NeedsExtraction() bool { return d.needsExtraction }

// SetNeedsExtraction sets the transient per-extraction flag.
func (d *Dentry) SetNeedsExtraction(v bool) { d.needsExtraction = v }

// FullPath returns the path of d relative to the tree root, materialising
// it (and every ancestor's) lazily on first access and caching the result.
func (d *Dentry) FullPath() string {
	if d.pathSet {
		return d.fullPath
	}
	if d.Parent == nil {
		d.fullPath, d.pathSet = "", true
		return d.fullPath
	}
	parentPath := d.Parent.FullPath()
	if parentPath == "" {
		d.fullPath = d.Name
	} else {
		d.fullPath = parentPath + "/" + d.Name
	}
	d.pathSet = true
	return d.fullPath
}

// InvalidatePath clears the cached full path of d and everything beneath
// it, forcing re-materialisation on next access.
func (d *Dentry) InvalidatePath() {
	d.pathSet = false
	d.fullPath = ""
	for _, c := range d.Children() {
		c.InvalidatePath()
	}
}

// VisitFunc is the visitor contract for tree traversal: it receives the
// dentry (any caller context travels in the closure) and returns either
// nil (continue) or a non-nil error, which short-circuits the traversal
// (spec §4.3).
type VisitFunc func(d *Dentry) error

// PreOrder walks the subtree rooted at d in pre-order (parent before
// children), calling visit on every dentry including d itself. The first
// non-nil return from visit aborts the walk and is returned by PreOrder.
func PreOrder(d *Dentry, visit VisitFunc) error {
	if err := visit(d); err != nil {
		return err
	}
	for _, c := range d.Children() {
		if err := PreOrder(c, visit); err != nil {
			return err
		}
	}
	return nil
}

// PostOrder walks the subtree rooted at d in post-order (children before
// parent) — "depth" order in spec terms — calling visit on every dentry
// including d itself. The first non-nil return from visit aborts the
// walk and is returned by PostOrder. Used for Phase C timestamp
// application so that writing into a child does not disturb a parent's
// mtime after the parent has already been stamped.
func PostOrder(d *Dentry, visit VisitFunc) error {
	for _, c := range d.Children() {
		if err := PostOrder(c, visit); err != nil {
			return err
		}
	}
	return visit(d)
}

// MaterializePaths forces FullPath() to be computed (and cached) for
// every dentry in the subtree rooted at d.
func MaterializePaths(d *Dentry) {
	_ = PreOrder(d, func(n *Dentry) error {
		n.FullPath()
		return nil
	})
}

// Lookup resolves a canonical, slash-separated path (no leading/trailing
// slash; empty string means root) relative to root, returning nil if any
// path component is missing.
func Lookup(root *Dentry, canonical string) *Dentry {
	canonical = strings.Trim(canonical, "/")
	if canonical == "" {
		return root
	}
	cur := root
	for _, part := range strings.Split(path.Clean(canonical), "/") {
		if cur == nil {
			return nil
		}
		cur = cur.Child(part)
	}
	return cur
}
