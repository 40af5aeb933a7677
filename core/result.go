package core

// Failure is one attributed failure extracted from a test run. An empty
// FilePath means the failure could not be attributed to a file.
type Failure struct {
	FilePath string `json:"file_path"`
	Message  string `json:"message"`
	Excerpt  string `json:"excerpt,omitempty"`
}

// RunResult is the outcome of one test run.
type RunResult struct {
	Success  bool      `json:"success"`
	Output   string    `json:"output"`
	Failures []Failure `json:"failures"`
}
