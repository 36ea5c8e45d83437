package protocol

import "time"

const Version = "1.0"

// EvalContext identifies who asked for an evaluation and from where.
// Privileged is asserted by the front-end after its own checks; the core
// only threads it through to the interpreter context variables.
type EvalContext struct {
	Actor      string `json:"actor"`
	Origin     string `json:"origin"`
	Privileged bool   `json:"privileged,omitempty"`
}

// CacheKey is the pagination identity: one pending output stream per
// (actor, origin) pair.
func (c EvalContext) CacheKey() string {
	return c.Origin + ":" + c.Actor
}

// CommitInfo describes one applied state change.
type CommitInfo struct {
	ID           string    `json:"id"`
	Parent       string    `json:"parent,omitempty"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
	Message      string    `json:"message"`
	Summary      string    `json:"summary,omitempty"`
	FilesChanged int       `json:"files_changed"`
	Insertions   int       `json:"insertions"`
	Deletions    int       `json:"deletions"`
}

// EvalResult is what every front-end receives: raw output lines plus flags.
// Formatting is the front-end's problem.
type EvalResult struct {
	Output        []string    `json:"output"`
	IsError       bool        `json:"is_error"`
	Commit        *CommitInfo `json:"commit,omitempty"`
	MoreAvailable bool        `json:"more_available"`
	Unpersisted   bool        `json:"unpersisted,omitempty"`
}

// Wire messages for the web front-end. The same shapes ride the REST
// endpoints and the websocket console.

type EvalRequest struct {
	Code   string `json:"code"`
	Actor  string `json:"actor"`
	Origin string `json:"origin,omitempty"`
}

type ContinueRequest struct {
	Actor  string `json:"actor"`
	Origin string `json:"origin,omitempty"`
}

type RollbackRequest struct {
	Ref   string `json:"ref"`
	Actor string `json:"actor,omitempty"`
}

type EvalResponse struct {
	RequestID string     `json:"request_id,omitempty"`
	Result    EvalResult `json:"result"`
	ErrorCode string     `json:"error_code,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type HistoryResponse struct {
	Commits []CommitInfo `json:"commits"`
}

// Websocket console envelope.

type WSRequest struct {
	Type   string `json:"type"` // "eval" | "continue" | "history"
	Code   string `json:"code,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Actor  string `json:"actor,omitempty"`
	Origin string `json:"origin,omitempty"`
}

type WSResponse struct {
	Type      string       `json:"type"`
	RequestID string       `json:"request_id,omitempty"`
	Result    *EvalResult  `json:"result,omitempty"`
	Commits   []CommitInfo `json:"commits,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
	Error     string       `json:"error,omitempty"`
}
