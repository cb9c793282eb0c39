package api

// v0 contains public types for scripts wrapping the CLI.

// Job describes one generated job file and the chunk it covers.
type Job struct {
	Ordinal   int    `json:"ordinal" yaml:"ordinal"`
	ChunkPath string `json:"chunk_path" yaml:"chunk_path"`
	JobPath   string `json:"job_path" yaml:"job_path"`
	SubmitCmd string `json:"submit_cmd" yaml:"submit_cmd"`
}

// Run describes one recorded generation run.
type Run struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Source    string `json:"source" yaml:"source"`
	ChunkSize int    `json:"chunk_size" yaml:"chunk_size"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
	Jobs      int    `json:"jobs" yaml:"jobs"`
}
