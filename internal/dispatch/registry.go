package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/pders01/navi/internal/backend"
	"github.com/pders01/navi/internal/memstore"
	"github.com/pders01/navi/internal/proto"
)

// refsDefaultLimit caps find-references output unless "all" is set.
const refsDefaultLimit = 10

// handlerFunc executes a validated command. It returns the result payload,
// an optional warning for partial outcomes, and an error from the typed
// taxonomy.
type handlerFunc func(ctx context.Context, d *Dispatcher, cmd proto.Command, p params) (any, string, error)

type commandSpec struct {
	params  []ParamSpec
	handler handlerFunc
}

// registry is the fixed command set. Daemon lifecycle commands are not
// here: the supervisor handles them on the CLI side, before any dispatch.
var registry = map[string]commandSpec{
	"find-symbol": {
		params: []ParamSpec{
			{Name: "pattern", Kind: StringParam, Required: true},
			{Name: "kind", Kind: StringParam},
			{Name: "path", Kind: StringParam},
			{Name: "body", Kind: BoolParam},
			{Name: "depth", Kind: IntParam},
			{Name: "exact", Kind: BoolParam},
		},
		handler: handleFindSymbol,
	},
	"find-references": {
		params: []ParamSpec{
			{Name: "symbol", Kind: StringParam, Required: true},
			{Name: "file", Kind: StringParam, Required: true},
			{Name: "all", Kind: BoolParam},
		},
		handler: handleFindReferences,
	},
	"overview": {
		params: []ParamSpec{
			{Name: "file", Kind: StringParam, Required: true},
		},
		handler: handleOverview,
	},
	"search-pattern": {
		params: []ParamSpec{
			{Name: "pattern", Kind: StringParam, Required: true},
			{Name: "glob", Kind: StringParam},
			{Name: "path", Kind: StringParam},
			{Name: "lines", Kind: IntParam},
		},
		handler: handleSearchPattern,
	},
	"status": {
		handler: handleStatus,
	},
	"activate-project": {
		params: []ParamSpec{
			{Name: "project", Kind: StringParam, Required: true},
		},
		handler: handleActivateProject,
	},
	"tools": {
		handler: handleTools,
	},
	"memory.list": {
		params: []ParamSpec{
			{Name: "folder", Kind: StringParam},
			{Name: "recursive", Kind: BoolParam},
		},
		handler: handleMemoryList,
	},
	"memory.read": {
		params: []ParamSpec{
			{Name: "path", Kind: StringParam, Required: true},
		},
		handler: handleMemoryRead,
	},
	"memory.write": {
		params: []ParamSpec{
			{Name: "path", Kind: StringParam, Required: true},
			{Name: "timestamp", Kind: BoolParam},
		},
		handler: handleMemoryWrite,
	},
	"memory.delete": {
		params: []ParamSpec{
			{Name: "path", Kind: StringParam, Required: true},
		},
		handler: handleMemoryDelete,
	},
	"memory.move": {
		params: []ParamSpec{
			{Name: "source", Kind: StringParam, Required: true},
			{Name: "dest", Kind: StringParam, Required: true},
		},
		handler: handleMemoryMove,
	},
	"memory.archive": {
		params: []ParamSpec{
			{Name: "path", Kind: StringParam, Required: true},
			{Name: "category", Kind: StringParam},
		},
		handler: handleMemoryArchive,
	},
	"memory.tree": {
		params: []ParamSpec{
			{Name: "root", Kind: StringParam},
		},
		handler: handleMemoryTree,
	},
	"memory.edit": {
		params: []ParamSpec{
			{Name: "path", Kind: StringParam, Required: true},
			{Name: "find", Kind: StringParam, Required: true},
			{Name: "replace", Kind: StringParam, Required: true},
			{Name: "mode", Kind: StringParam},
		},
		handler: handleMemoryEdit,
	},
	"memory.search": {
		params: []ParamSpec{
			{Name: "pattern", Kind: StringParam, Required: true},
			{Name: "folder", Kind: StringParam},
		},
		handler: handleMemorySearch,
	},
	"memory.stats": {
		handler: handleMemoryStats,
	},
}

func handleFindSymbol(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	args := map[string]any{
		"name_path_pattern":  p.str("pattern", ""),
		"substring_matching": !p.boolean("exact", false),
		"include_body":       p.boolean("body", false),
		"depth":              p.num("depth", 0),
	}
	if kind := p.str("kind", ""); kind != "" {
		lsp, ok := backend.SymbolKinds[kind]
		if !ok {
			return nil, "", &proto.Error{
				Kind:    proto.KindInvalidParameter,
				Subject: "kind",
				Message: fmt.Sprintf("unknown symbol kind %q", kind),
			}
		}
		args["include_kinds"] = []int{lsp}
	}
	if path := p.str("path", ""); path != "" {
		args["relative_path"] = path
	}
	res, err := d.backend.Invoke(ctx, backend.ToolFindSymbol, args)
	if err != nil {
		return nil, "", err
	}
	return res.Data, "", nil
}

func handleFindReferences(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	res, err := d.backend.Invoke(ctx, backend.ToolFindReferences, map[string]any{
		"name_path":     p.str("symbol", ""),
		"relative_path": p.str("file", ""),
	})
	if err != nil {
		return nil, "", err
	}
	if p.boolean("all", false) {
		return res.Data, "", nil
	}
	switch data := res.Data.(type) {
	case []any:
		if len(data) > refsDefaultLimit {
			warning := fmt.Sprintf("showing first %d of %d references", refsDefaultLimit, len(data))
			return data[:refsDefaultLimit], warning, nil
		}
	case string:
		// Some backends render references as plain text, one per line.
		lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
		if len(lines) > refsDefaultLimit {
			warning := fmt.Sprintf("showing first %d of %d reference lines", refsDefaultLimit, len(lines))
			return strings.Join(lines[:refsDefaultLimit], "\n"), warning, nil
		}
	}
	return res.Data, "", nil
}

func handleOverview(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	res, err := d.backend.Invoke(ctx, backend.ToolSymbolsOverview, map[string]any{
		"relative_path": p.str("file", ""),
	})
	if err != nil {
		return nil, "", err
	}
	return res.Data, "", nil
}

func handleSearchPattern(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	args := map[string]any{"substring_pattern": p.str("pattern", "")}
	if glob := p.str("glob", ""); glob != "" {
		args["file_pattern"] = glob
	}
	if path := p.str("path", ""); path != "" {
		args["relative_path"] = path
	}
	if lines := p.num("lines", 0); lines > 0 {
		args["context_lines_before"] = lines
		args["context_lines_after"] = lines
	}
	res, err := d.backend.Invoke(ctx, backend.ToolSearchPattern, args)
	if err != nil {
		return nil, "", err
	}
	return res.Data, "", nil
}

func handleStatus(ctx context.Context, d *Dispatcher, _ proto.Command, _ params) (any, string, error) {
	res, err := d.backend.Invoke(ctx, backend.ToolCurrentConfig, nil)
	if err != nil {
		return nil, "", err
	}
	return res.Data, "", nil
}

func handleActivateProject(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	res, err := d.backend.Invoke(ctx, backend.ToolActivateProject, map[string]any{
		"project": p.str("project", ""),
	})
	if err != nil {
		return nil, "", err
	}
	return res.Data, "", nil
}

func handleTools(ctx context.Context, d *Dispatcher, _ proto.Command, _ params) (any, string, error) {
	tools, err := d.backend.ListTools(ctx)
	if err != nil {
		return nil, "", err
	}
	return tools, "", nil
}

func handleMemoryList(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	paths, err := d.store.List(ctx, p.str("folder", ""), p.boolean("recursive", true))
	if err != nil {
		return nil, "", err
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, "", nil
}

func handleMemoryRead(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	content, err := d.store.Read(ctx, p.str("path", ""))
	if err != nil {
		return nil, "", err
	}
	return content, "", nil
}

func handleMemoryWrite(ctx context.Context, d *Dispatcher, cmd proto.Command, p params) (any, string, error) {
	path := p.str("path", "")
	if err := d.store.Write(ctx, path, cmd.RawBody, p.boolean("timestamp", true)); err != nil {
		return nil, "", err
	}
	return fmt.Sprintf("memory %q written", memstore.Normalize(path)), "", nil
}

func handleMemoryDelete(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	path := p.str("path", "")
	if err := d.store.Delete(ctx, path); err != nil {
		return nil, "", err
	}
	return fmt.Sprintf("memory %q deleted", memstore.Normalize(path)), "", nil
}

func handleMemoryMove(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	receipt, err := d.store.Move(ctx, p.str("source", ""), p.str("dest", ""))
	if err != nil {
		return nil, "", err
	}
	return receipt, receipt.Warning, nil
}

func handleMemoryArchive(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	receipt, err := d.store.Archive(ctx, p.str("path", ""), p.str("category", ""))
	if err != nil {
		return nil, "", err
	}
	return receipt, receipt.Warning, nil
}

func handleMemoryTree(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	tree, err := d.store.Tree(ctx, p.str("root", ""))
	if err != nil {
		return nil, "", err
	}
	return struct {
		Tree     *memstore.TreeNode `json:"tree"`
		Rendered string             `json:"rendered"`
	}{tree, tree.Render()}, "", nil
}

func handleMemoryEdit(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	mode := memstore.EditMode(p.str("mode", string(memstore.EditLiteral)))
	if mode != memstore.EditLiteral && mode != memstore.EditRegex {
		return nil, "", &proto.Error{
			Kind:    proto.KindInvalidParameter,
			Subject: "mode",
			Message: fmt.Sprintf("mode must be %q or %q", memstore.EditLiteral, memstore.EditRegex),
		}
	}
	path := p.str("path", "")
	if err := d.store.Edit(ctx, path, p.str("find", ""), p.str("replace", ""), mode); err != nil {
		return nil, "", err
	}
	return fmt.Sprintf("memory %q edited", memstore.Normalize(path)), "", nil
}

func handleMemorySearch(ctx context.Context, d *Dispatcher, _ proto.Command, p params) (any, string, error) {
	args := map[string]any{"pattern": p.str("pattern", "")}
	if folder := p.str("folder", ""); folder != "" {
		args["folder"] = folder
	}
	res, err := d.backend.Invoke(ctx, backend.ToolSearchMemory, args)
	if err != nil {
		return nil, "", err
	}
	return res.Data, "", nil
}

func handleMemoryStats(ctx context.Context, d *Dispatcher, _ proto.Command, _ params) (any, string, error) {
	res, err := d.backend.Invoke(ctx, backend.ToolMemoryStats, nil)
	if err != nil {
		return nil, "", err
	}
	return res.Data, "", nil
}
