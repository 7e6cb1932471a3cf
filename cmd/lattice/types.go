package main

// CLIResult is the JSON envelope for command output.
type CLIResult struct {
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
	Results any    `json:"results,omitempty"`
}

// CLIBuildReport summarizes a build or update.
type CLIBuildReport struct {
	SessionID    string          `json:"session_id"`
	Kind         string          `json:"kind"`
	Files        int             `json:"files"`
	GraphNodes   int             `json:"graph_nodes"`
	GraphEdges   int             `json:"graph_edges"`
	Definitions  int             `json:"definitions"`
	Issues       []CLIIssue      `json:"issues,omitempty"`
	Cycles       []string        `json:"cycles,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	CacheVersion string          `json:"cache_version"`
	Modules      []CLIModuleInfo `json:"modules,omitempty"`
}

// CLIModuleInfo is one evaluated module in verbose build output.
type CLIModuleInfo struct {
	File        string          `json:"file"`
	Definitions []CLIDefinition `json:"definitions,omitempty"`
}

// CLIDefinition is one evaluated definition.
type CLIDefinition struct {
	CanonicalID string `json:"canonical_id"`
	ExportName  string `json:"export_name"`
	Kind        string `json:"kind"`
	Line        int    `json:"line"`
}

// CLIIssue is one evaluation diagnostic.
type CLIIssue struct {
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	File        string `json:"file"`
	CanonicalID string `json:"canonical_id,omitempty"`
	Line        int    `json:"line"`
}

// CLIStatus mirrors the session projection.
type CLIStatus struct {
	SessionID    string `json:"session_id"`
	Built        bool   `json:"built"`
	Files        int    `json:"files"`
	GraphNodes   int    `json:"graph_nodes"`
	GraphEdges   int    `json:"graph_edges"`
	Issues       int    `json:"issues"`
	Cycles       int    `json:"cycles"`
	CacheVersion string `json:"cache_version"`
	BuiltAt      string `json:"built_at,omitempty"`
}
