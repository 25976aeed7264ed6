package calls

// DirectoryStatus is the outcome of an idempotent directory creation.
type DirectoryStatus string

const (
	DirectoryCreated       DirectoryStatus = "created"
	DirectoryAlreadyExists DirectoryStatus = "exists"
	DirectoryFailed        DirectoryStatus = "failed"
)

// Ok reports whether the directory exists after the operation.
func (s DirectoryStatus) Ok() bool {
	return s == DirectoryCreated || s == DirectoryAlreadyExists
}

// ProcessInfo describes a running process on a drone.
type ProcessInfo struct {
	PID     int    `json:"pid"`
	Name    string `json:"name"`
	Cmdline string `json:"cmdline"`
}

// RefreshResult is the result of a Refresh call.
type RefreshResult struct {
	// Pidfiles maps each requested pidfile path to its contents.
	// Missing pidfiles are omitted.
	Pidfiles map[string]string `json:"pidfiles"`

	// Processes lists the running processes matching the requested
	// process name.
	Processes []ProcessInfo `json:"processes"`
}

// Response is the combined result of one executed batch. Results are
// aligned 1:1 with the submitted calls. When a call fails, execution
// stops, Results holds the results of the calls before it and Error
// describes the failure.
type Response struct {
	Results  []any    `json:"results"`
	Warnings []string `json:"warnings"`
	Error    string   `json:"error,omitempty"`
}
