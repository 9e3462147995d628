package memstore

import (
	"sort"
	"strings"
)

// TreeNode is one folder in the derived memory tree. The tree is never
// stored: it is rebuilt on demand from the flat path set, so a memory's
// position is determined solely by its path.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Files    []string    `json:"files,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// BuildTree groups a flat set of leaf paths by shared folder prefixes.
// The root node has an empty name and path unless a subfolder root is
// given, in which case only paths under it are included.
func BuildTree(paths []string, root string) *TreeNode {
	node := &TreeNode{Name: Base(root), Path: root}
	index := map[string]*TreeNode{root: node}

	prefix := ""
	if root != "" {
		prefix = root + "/"
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	for _, p := range sorted {
		if root != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		rel := strings.TrimPrefix(p, prefix)
		segs := strings.Split(rel, "/")

		parent := node
		folder := root
		for _, seg := range segs[:len(segs)-1] {
			if folder == "" {
				folder = seg
			} else {
				folder = folder + "/" + seg
			}
			child, ok := index[folder]
			if !ok {
				child = &TreeNode{Name: seg, Path: folder}
				index[folder] = child
				parent.Children = append(parent.Children, child)
			}
			parent = child
		}
		parent.Files = append(parent.Files, segs[len(segs)-1])
	}

	return node
}

// Flatten returns the full leaf paths under the node, matching the flat
// list the tree was built from.
func (n *TreeNode) Flatten() []string {
	var out []string
	prefix := ""
	if n.Path != "" {
		prefix = n.Path + "/"
	}
	for _, f := range n.Files {
		out = append(out, prefix+f)
	}
	for _, c := range n.Children {
		out = append(out, c.Flatten()...)
	}
	sort.Strings(out)
	return out
}

// Render produces an indented text view. At each level files come first,
// alphabetically, then subfolders; folder names carry a trailing slash.
func (n *TreeNode) Render() string {
	var b strings.Builder
	n.render(&b, 0)
	return b.String()
}

func (n *TreeNode) render(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	if n.Name != "" {
		b.WriteString(indent)
		b.WriteString(n.Name)
		b.WriteString("/\n")
		indent = strings.Repeat("  ", depth+1)
		depth++
	}
	for _, f := range n.Files {
		b.WriteString(indent)
		b.WriteString(f)
		b.WriteString("\n")
	}
	for _, c := range n.Children {
		c.render(b, depth)
	}
}
