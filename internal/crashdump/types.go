// Package crashdump records diagnostic dumps when hookgate panics.
package crashdump

import "time"

// CrashInfo is one crash dump as written to disk.
type CrashInfo struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	PanicValue string         `json:"panic_value"`
	StackTrace string         `json:"stack_trace"`
	Runtime    RuntimeInfo    `json:"runtime"`
	Metadata   DumpMetadata   `json:"metadata"`
	Context    *ContextInfo   `json:"context,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
}

// RuntimeInfo describes the Go runtime at crash time.
type RuntimeInfo struct {
	GOOS         string `json:"goos"`
	GOARCH       string `json:"goarch"`
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
}

// DumpMetadata describes the process that crashed.
type DumpMetadata struct {
	Version    string `json:"version"`
	Command    string `json:"command,omitempty"`
	User       string `json:"user,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
}

// ContextInfo describes the dispatch in flight when the panic happened.
type ContextInfo struct {
	Event      string `json:"event"`
	SessionKey string `json:"session_key,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// DumpSummary is the listing view of a dump.
type DumpSummary struct {
	ID         string
	Timestamp  time.Time
	PanicValue string
	FilePath   string
	Size       int64
}
