package memstore

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pders01/navi/internal/backend"
	"github.com/pders01/navi/internal/testutil"
)

func testStore(t *testing.T) (*Store, *testutil.FakeBackend) {
	t.Helper()
	fake := testutil.NewFakeBackend()
	clock := func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	}
	return New(fake.Client(t), WithClock(clock)), fake
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "architecture/auth-flow.md", "# Auth Flow\n\nDetails.", true); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.Read(ctx, "architecture/auth-flow")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(got, "<!-- updated: 2026-08-29T12:00:00Z -->") {
		t.Errorf("stored content missing timestamp marker: %q", got)
	}
	if body := StripMarker(got); body != "# Auth Flow\n\nDetails." {
		t.Errorf("StripMarker = %q, want original content", body)
	}
}

func TestWriteWithoutStamp(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "notes", "plain", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := store.Read(ctx, "notes")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "plain" {
		t.Errorf("read = %q, want %q", got, "plain")
	}
}

func TestReadNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	_, err := store.Read(ctx, "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("read missing = %v, want NotFoundError", err)
	}
	if nf.Path != "missing" {
		t.Errorf("NotFoundError.Path = %q, want %q", nf.Path, "missing")
	}
}

func TestDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	var nf *NotFoundError
	if err := store.Delete(ctx, "missing"); !errors.As(err, &nf) {
		t.Fatalf("delete missing = %v, want NotFoundError", err)
	}
}

func TestInvalidPathRejectedBeforeRemoteCall(t *testing.T) {
	ctx := context.Background()
	store, fake := testStore(t)

	var bad *InvalidPathError
	if err := store.Write(ctx, "../escape", "x", false); !errors.As(err, &bad) {
		t.Fatalf("write = %v, want InvalidPathError", err)
	}
	if calls := fake.CallsTo(backend.ToolWriteMemory); len(calls) != 0 {
		t.Errorf("backend received %d write calls, want 0", len(calls))
	}
}

func TestListFolders(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	seed := []string{
		"readme",
		"architecture/auth-flow",
		"architecture/decisions/adr-001",
		"notes/todo",
	}
	for _, p := range seed {
		if err := store.Write(ctx, p, "content", false); err != nil {
			t.Fatalf("seed %q: %v", p, err)
		}
	}

	tests := []struct {
		name      string
		folder    string
		recursive bool
		expected  []string
	}{
		{
			name:      "all recursive",
			recursive: true,
			expected: []string{
				"architecture/auth-flow",
				"architecture/decisions/adr-001",
				"notes/todo",
				"readme",
			},
		},
		{
			name:     "root only",
			expected: []string{"readme"},
		},
		{
			name:      "folder recursive",
			folder:    "architecture",
			recursive: true,
			expected: []string{
				"architecture/auth-flow",
				"architecture/decisions/adr-001",
			},
		},
		{
			name:     "folder direct leaves",
			folder:   "architecture",
			expected: []string{"architecture/auth-flow"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.folder, tt.recursive)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("List(%q, %v) = %v, want %v", tt.folder, tt.recursive, got, tt.expected)
			}
		})
	}
}

func TestTreeMatchesList(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	seed := []string{"a/b/c", "a/d", "e"}
	for _, p := range seed {
		if err := store.Write(ctx, p, "x", false); err != nil {
			t.Fatalf("seed %q: %v", p, err)
		}
	}

	tree, err := store.Tree(ctx, "")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	listed, err := store.List(ctx, "", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := tree.Flatten(); !reflect.DeepEqual(got, listed) {
		t.Errorf("tree.Flatten() = %v, want %v", got, listed)
	}
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "drafts/auth", "content", false); err != nil {
		t.Fatalf("write: %v", err)
	}

	receipt, err := store.Move(ctx, "drafts/auth", "architecture/auth")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if receipt.Residual {
		t.Errorf("receipt.Residual = true, want false")
	}

	if _, err := store.Read(ctx, "drafts/auth"); err == nil {
		t.Errorf("source still readable after move")
	}
	got, err := store.Read(ctx, "architecture/auth")
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if got != "content" {
		t.Errorf("dest content = %q, want %q", got, "content")
	}
}

func TestMoveDestinationOccupied(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "a", "original", false); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := store.Write(ctx, "b", "other", false); err != nil {
		t.Fatalf("write b: %v", err)
	}

	var exists *AlreadyExistsError
	if _, err := store.Move(ctx, "a", "b"); !errors.As(err, &exists) {
		t.Fatalf("move onto occupied dest = %v, want AlreadyExistsError", err)
	}

	// Both memories must be untouched.
	for path, want := range map[string]string{"a": "original", "b": "other"} {
		got, err := store.Read(ctx, path)
		if err != nil {
			t.Fatalf("read %q: %v", path, err)
		}
		if got != want {
			t.Errorf("%q = %q after failed move, want %q", path, got, want)
		}
	}
}

func TestMoveResidualOnDeleteFailure(t *testing.T) {
	ctx := context.Background()
	store, fake := testStore(t)

	if err := store.Write(ctx, "src", "content", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	fake.FailWith[backend.ToolDeleteMemory] = "storage unavailable"

	receipt, err := store.Move(ctx, "src", "dst")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !receipt.Residual {
		t.Fatalf("receipt.Residual = false, want true")
	}
	if !strings.Contains(receipt.Warning, "src") || !strings.Contains(receipt.Warning, "dst") {
		t.Errorf("warning %q does not name both paths", receipt.Warning)
	}
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "notes/auth", "v1", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	receipt, err := store.Archive(ctx, "notes/auth", "")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if receipt.Dest != "archive/20260829_auth" {
		t.Errorf("dest = %q, want archive/20260829_auth", receipt.Dest)
	}

	// Archiving a fresh memory with the same leaf on the same day picks
	// the next numeric suffix.
	if err := store.Write(ctx, "notes/auth", "v2", false); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	receipt, err = store.Archive(ctx, "notes/auth", "")
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if receipt.Dest != "archive/20260829_auth_1" {
		t.Errorf("dest = %q, want archive/20260829_auth_1", receipt.Dest)
	}

	got, err := store.Read(ctx, "archive/20260829_auth_1")
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if got != "v2" {
		t.Errorf("archived content = %q, want v2", got)
	}
}

func TestArchiveWithCategory(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "auth", "x", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	receipt, err := store.Archive(ctx, "auth", "design")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if receipt.Dest != "archive/design/20260829_auth" {
		t.Errorf("dest = %q, want archive/design/20260829_auth", receipt.Dest)
	}
}

func TestEditLiteral(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "doc", "foo bar foo", true); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Edit(ctx, "doc", "foo", "baz", EditLiteral); err != nil {
		t.Fatalf("edit: %v", err)
	}

	got, err := store.Read(ctx, "doc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if body := StripMarker(got); body != "baz bar baz" {
		t.Errorf("edited body = %q, want %q", body, "baz bar baz")
	}
	// The memory was stamped on write, so the edit re-stamps it.
	if !strings.Contains(got, "<!-- updated: ") {
		t.Errorf("edit dropped the timestamp marker: %q", got)
	}
}

func TestEditLiteralPatternNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "doc", "content", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	var missing *PatternNotFoundError
	if err := store.Edit(ctx, "doc", "absent", "x", EditLiteral); !errors.As(err, &missing) {
		t.Fatalf("edit = %v, want PatternNotFoundError", err)
	}
}

func TestEditRegex(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "doc", "port 9121 and port 9232", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Edit(ctx, "doc", `port (\d+)`, "port=$1", EditRegex); err != nil {
		t.Fatalf("edit: %v", err)
	}

	got, err := store.Read(ctx, "doc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "port=9121 and port=9232" {
		t.Errorf("edited = %q", got)
	}
}

func TestEditRegexInvalidPattern(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)

	if err := store.Write(ctx, "doc", "content", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	var bad *InvalidPatternError
	if err := store.Edit(ctx, "doc", "(unclosed", "x", EditRegex); !errors.As(err, &bad) {
		t.Fatalf("edit = %v, want InvalidPatternError", err)
	}
}

func TestSplitMarker(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		body      string
		hadMarker bool
	}{
		{
			name:      "with marker",
			content:   "body\n\n<!-- updated: 2026-08-29T12:00:00Z -->\n",
			body:      "body",
			hadMarker: true,
		},
		{
			name:    "no marker",
			content: "body\n",
			body:    "body\n",
		},
		{
			name:    "marker not at end",
			content: "<!-- updated: x -->\nbody",
			body:    "<!-- updated: x -->\nbody",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, had := splitMarker(tt.content)
			if body != tt.body || had != tt.hadMarker {
				t.Errorf("splitMarker(%q) = (%q, %v), want (%q, %v)",
					tt.content, body, had, tt.body, tt.hadMarker)
			}
		})
	}
}
