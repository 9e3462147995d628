// Package memstore layers hierarchical namespace semantics over the
// backend's flat memory store.
//
// The backend only knows read/write/delete/list on flat names. Everything
// else — nested folders, recursive listing, the derived tree, archival
// naming, move/rename — is imposed here by treating `/`-delimited path
// segments as folder boundaries. Folders are purely derived from paths and
// never materialized.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pders01/navi/internal/backend"
)

const (
	markerOpen  = "<!-- updated: "
	markerClose = " -->"

	// maxArchiveAttempts caps the numeric-suffix search for a unique
	// archive destination.
	maxArchiveAttempts = 1000
)

// EditMode selects how Edit interprets its find pattern.
type EditMode string

const (
	EditLiteral EditMode = "literal"
	EditRegex   EditMode = "regex"
)

// MoveReceipt reports the outcome of a move. Residual is set when the
// destination write succeeded but the source delete failed: the content
// now exists at both paths, and the caller must be told both facts.
type MoveReceipt struct {
	Source   string `json:"source"`
	Dest     string `json:"dest"`
	Residual bool   `json:"residual,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source (archive dates, timestamp markers).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store owns the mapping from logical paths to memory content. All remote
// access goes through the backend invoker; no other component mutates
// memory documents.
type Store struct {
	backend backend.Invoker
	now     func() time.Time
}

// New creates a Store over the given backend.
func New(inv backend.Invoker, opts ...Option) *Store {
	s := &Store{backend: inv, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write stores content at a path, creating it on first write and
// overwriting on subsequent writes. When stamp is set, an invisible
// timestamp marker is appended before storing. Parent folders need no
// creation: they exist by virtue of the path.
func (s *Store) Write(ctx context.Context, path, content string, stamp bool) error {
	path = Normalize(path)
	if err := ValidatePath(path); err != nil {
		return err
	}
	if stamp {
		content = s.stamp(content)
	}
	_, err := s.backend.Invoke(ctx, backend.ToolWriteMemory, map[string]any{
		"memory_file_name": path,
		"content":          content,
	})
	if err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

// Read returns the content stored at a path.
func (s *Store) Read(ctx context.Context, path string) (string, error) {
	path = Normalize(path)
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	res, err := s.backend.Invoke(ctx, backend.ToolReadMemory, map[string]any{
		"memory_file_name": path,
	})
	if err != nil {
		if isBackendNotFound(err) {
			return "", &NotFoundError{Path: path}
		}
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return res.Text, nil
}

// Delete removes the memory at a path.
func (s *Store) Delete(ctx context.Context, path string) error {
	path = Normalize(path)
	if err := ValidatePath(path); err != nil {
		return err
	}
	_, err := s.backend.Invoke(ctx, backend.ToolDeleteMemory, map[string]any{
		"memory_file_name": path,
	})
	if err != nil {
		if isBackendNotFound(err) {
			return &NotFoundError{Path: path}
		}
		return fmt.Errorf("delete %q: %w", path, err)
	}
	return nil
}

// List returns known memory paths in lexicographic order. With a folder it
// restricts to paths under that prefix; non-recursive listing keeps only
// the folder's direct leaves.
func (s *Store) List(ctx context.Context, folder string, recursive bool) ([]string, error) {
	all, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}

	folder = Normalize(folder)
	prefix := ""
	if folder != "" {
		if err := ValidatePath(folder); err != nil {
			return nil, err
		}
		prefix = folder + "/"
	}

	var out []string
	for _, p := range all {
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		if !recursive && strings.Contains(strings.TrimPrefix(p, prefix), "/") {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// Tree returns the derived folder tree, optionally rooted at a subfolder.
func (s *Store) Tree(ctx context.Context, root string) (*TreeNode, error) {
	root = Normalize(root)
	if root != "" {
		if err := ValidatePath(root); err != nil {
			return nil, err
		}
	}
	all, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(all, root), nil
}

// Move renames a memory. The destination must be free; moves never
// overwrite. Implemented as read-write-delete against the flat store, which
// is not atomic: on a partial failure the receipt carries a residual
// warning instead of pretending the move completed.
func (s *Store) Move(ctx context.Context, source, dest string) (*MoveReceipt, error) {
	source = Normalize(source)
	dest = Normalize(dest)
	if err := ValidatePath(source); err != nil {
		return nil, err
	}
	if err := ValidatePath(dest); err != nil {
		return nil, err
	}

	content, err := s.Read(ctx, source)
	if err != nil {
		return nil, err
	}
	if _, err := s.Read(ctx, dest); err == nil {
		return nil, &AlreadyExistsError{Path: dest}
	} else {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	return s.relocate(ctx, source, dest, content)
}

// relocate writes content to dest and deletes source, reporting partial
// failure through the receipt.
func (s *Store) relocate(ctx context.Context, source, dest, content string) (*MoveReceipt, error) {
	if err := s.Write(ctx, dest, content, false); err != nil {
		return nil, err
	}

	receipt := &MoveReceipt{Source: source, Dest: dest}
	if err := s.Delete(ctx, source); err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			receipt.Residual = true
			receipt.Warning = fmt.Sprintf(
				"content moved to %q but removing source %q failed (%v); both paths now hold the content",
				dest, source, err,
			)
		}
	}
	return receipt, nil
}

// Archive moves a memory into the reserved archive subtree under a
// date-prefixed name, disambiguating collisions with a numeric suffix.
func (s *Store) Archive(ctx context.Context, path, category string) (*MoveReceipt, error) {
	path = Normalize(path)
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if category != "" {
		category = Normalize(category)
		if err := ValidatePath(category); err != nil {
			return nil, err
		}
	}

	content, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]bool)
	all, err := s.listAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		taken[p] = true
	}

	day := s.now()
	leaf := Base(path)
	dest := ""
	for n := 0; n < maxArchiveAttempts; n++ {
		candidate := ArchivePath(leaf, day, category, n)
		if !taken[candidate] {
			dest = candidate
			break
		}
	}
	if dest == "" {
		return nil, &ArchiveCollisionError{Path: path, Attempts: maxArchiveAttempts}
	}

	return s.relocate(ctx, path, dest, content)
}

// Edit applies a single substitution pass to a memory and writes it back.
// Literal mode replaces every occurrence of find and fails with
// PatternNotFound when find does not occur; regex mode applies a regexp
// substitution and treats zero matches as a no-op rewrite.
func (s *Store) Edit(ctx context.Context, path, find, replace string, mode EditMode) error {
	path = Normalize(path)
	if err := ValidatePath(path); err != nil {
		return err
	}

	content, err := s.Read(ctx, path)
	if err != nil {
		return err
	}
	body, hadMarker := splitMarker(content)

	var edited string
	switch mode {
	case EditLiteral, "":
		if !strings.Contains(body, find) {
			return &PatternNotFoundError{Path: path, Pattern: find}
		}
		edited = strings.ReplaceAll(body, find, replace)
	case EditRegex:
		re, err := regexp.Compile(find)
		if err != nil {
			return &InvalidPatternError{Pattern: find, Err: err}
		}
		edited = re.ReplaceAllString(body, replace)
	default:
		return fmt.Errorf("unknown edit mode %q", mode)
	}

	return s.Write(ctx, path, edited, hadMarker)
}

// listAll fetches every known leaf path from the backend, normalized to
// logical form.
func (s *Store) listAll(ctx context.Context) ([]string, error) {
	res, err := s.backend.Invoke(ctx, backend.ToolListMemories, nil)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	var names []string
	switch v := res.Data.(type) {
	case []any:
		for _, item := range v {
			if name, ok := item.(string); ok {
				names = append(names, name)
			}
		}
	case map[string]any:
		if items, ok := v["memories"].([]any); ok {
			for _, item := range items {
				if name, ok := item.(string); ok {
					names = append(names, name)
				}
			}
		}
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		name = Normalize(name)
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// stamp appends the invisible timestamp marker.
func (s *Store) stamp(content string) string {
	ts := s.now().UTC().Format(time.RFC3339)
	return strings.TrimRight(content, "\n") + "\n\n" + markerOpen + ts + markerClose + "\n"
}

// splitMarker removes a trailing timestamp marker, reporting whether one
// was present.
func splitMarker(content string) (body string, hadMarker bool) {
	trimmed := strings.TrimRight(content, "\n")
	idx := strings.LastIndex(trimmed, markerOpen)
	if idx < 0 || !strings.HasSuffix(trimmed, markerClose) {
		return content, false
	}
	body = strings.TrimRight(trimmed[:idx], "\n")
	return body, true
}

// StripMarker returns content without its trailing timestamp marker, if
// any. Exposed for callers comparing written and read-back content.
func StripMarker(content string) string {
	body, _ := splitMarker(content)
	return body
}
