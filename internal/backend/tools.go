package backend

// Tool names on a Serena-compatible backend. The dispatcher maps command
// names onto these; nothing outside this package should spell them out.
const (
	ToolFindSymbol      = "find_symbol"
	ToolFindReferences  = "find_referencing_symbols"
	ToolSymbolsOverview = "get_symbols_overview"
	ToolSearchPattern   = "search_for_pattern"
	ToolCurrentConfig   = "get_current_config"
	ToolActivateProject = "activate_project"

	ToolReadMemory   = "read_memory"
	ToolWriteMemory  = "write_memory"
	ToolDeleteMemory = "delete_memory"
	ToolListMemories = "list_memories"
	ToolSearchMemory = "search_memories"
	ToolMemoryStats  = "memory_stats"
)

// SymbolKinds maps human-readable kind names to LSP SymbolKind numbers,
// as expected by the backend's include_kinds filter.
var SymbolKinds = map[string]int{
	"namespace": 3,
	"class":     5,
	"method":    6,
	"property":  7,
	"interface": 11,
	"function":  12,
	"constant":  14,
}
