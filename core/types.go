package core

import "time"

// Metadata describes where a chunk came from.
type Metadata struct {
	// Source is the absolute path of the file the chunk was cut from.
	Source string `json:"source"`

	// ChunkIndex is the zero-based position of the chunk within its source.
	ChunkIndex int `json:"chunk_index"`

	// TotalChunks is the number of chunks the source produced.
	TotalChunks int `json:"total_chunks"`

	// ContentHash is the hex SHA-256 of Content.
	ContentHash string `json:"content_hash,omitempty"`
}

// Document is an indexed unit of text. Documents are treated as immutable
// once created; the vector store hands out copies.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// RetrievalResult is a single ranked hit from a similarity search.
type RetrievalResult struct {
	Document Document `json:"document"`

	// Score is the cosine similarity in [-1, 1].
	Score float64 `json:"score"`

	// Rank is 1-based.
	Rank int `json:"rank"`
}

// TaskLog is the persisted record of one agent invocation.
type TaskLog struct {
	TaskID       string    `json:"task_id"`
	Query        string    `json:"query"`
	RetrievedIDs []string  `json:"retrieved_ids"`
	Steps        []string  `json:"steps"`
	Answer       string    `json:"answer"`
	Importance   float64   `json:"importance"`
	Verified     bool      `json:"verified"`
	TimedOut     bool      `json:"timed_out"`
	CreatedAt    time.Time `json:"created_at"`
}

// Successful reports whether the task produced a verified, complete answer.
func (t *TaskLog) Successful() bool {
	return t.Verified && !t.TimedOut
}

// Clone returns a deep copy so stored logs cannot be mutated through
// the caller's reference.
func (t *TaskLog) Clone() *TaskLog {
	if t == nil {
		return nil
	}
	c := *t
	c.RetrievedIDs = append([]string(nil), t.RetrievedIDs...)
	c.Steps = append([]string(nil), t.Steps...)
	return &c
}

// AgentResponse is what a query returns to the caller.
type AgentResponse struct {
	TaskID     string   `json:"task_id,omitempty"`
	Answer     string   `json:"answer"`
	References []string `json:"references"`
	Steps      []string `json:"steps"`
	Verified   bool     `json:"verified"`
	TimedOut   bool     `json:"timed_out"`
	Confidence float64  `json:"confidence"`
}
