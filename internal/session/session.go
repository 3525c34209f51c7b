// Package session provides multi-turn query history for ragit.
// A Session is the conversation state behind a single knowledge base: the
// ordered list of query turns that the query pipeline's rephrase step
// consults to resolve follow-up questions.
package session

import (
	"time"

	"github.com/ragit-kb/ragit/internal/uid"
	"github.com/ragit-kb/ragit/pkg/version"
)

// Session represents a named, persisted conversation against one knowledge base.
type Session struct {
	// Name is the user-provided session identifier.
	Name string `json:"name"`

	// ProjectPath is the absolute path to the knowledge base root.
	ProjectPath string `json:"project_path"`

	// CreatedAt is when the session was first created.
	CreatedAt time.Time `json:"created_at"`

	// LastUsed is when the session was last accessed.
	LastUsed time.Time `json:"last_used"`

	// Version is the ragit version that created this session.
	Version string `json:"version"`

	// Turns is the ordered history of query turns, oldest first.
	Turns []QueryTurn `json:"turns"`

	// SessionDir is the directory where session data is stored.
	// This is computed, not persisted.
	SessionDir string `json:"-"`
}

// QueryTurn is one round of the query pipeline: the raw question, the
// (possibly rephrased) query actually retrieved against, the chunks used to
// ground the answer, and the answer text. Its Uid is derived from the query
// and answer, tagged uid.KindQueryTurn.
type QueryTurn struct {
	// Uid identifies this turn; see uid.NewQueryTurn.
	Uid string `json:"uid"`

	// Query is the question as the user asked it.
	Query string `json:"query"`

	// RephrasedQuery is the query actually used for retrieval, or empty if
	// the rephrase step left it unchanged.
	RephrasedQuery string `json:"rephrased_query,omitempty"`

	// ChunkUids are the chunks retrieved to ground the answer, in the
	// order they were rendered into context.
	ChunkUids []string `json:"chunk_uids,omitempty"`

	// Answer is the LLM's response for this turn.
	Answer string `json:"answer"`

	// Timestamp is when the turn completed.
	Timestamp time.Time `json:"timestamp"`
}

// SessionInfo provides summary information about a session for listing.
type SessionInfo struct {
	// Name is the session identifier.
	Name string

	// ProjectPath is the absolute path to the knowledge base root.
	ProjectPath string

	// LastUsed is when the session was last accessed.
	LastUsed time.Time

	// Size is the total storage size in bytes.
	Size int64

	// Valid indicates if the project path still exists.
	Valid bool

	// TurnCount is the number of query turns recorded.
	TurnCount int
}

// NewSession creates a new, empty session for the given knowledge base.
func NewSession(name, projectPath, sessionDir string) *Session {
	now := time.Now()
	return &Session{
		Name:        name,
		ProjectPath: projectPath,
		CreatedAt:   now,
		LastUsed:    now,
		Version:     version.Version,
		Turns:       []QueryTurn{},
		SessionDir:  sessionDir,
	}
}

// UpdateLastUsed updates the LastUsed timestamp to now.
func (s *Session) UpdateLastUsed() {
	s.LastUsed = time.Now()
}

// AppendTurn records a completed query turn, computing its uid from the
// query and answer text.
func (s *Session) AppendTurn(query, rephrasedQuery, answer string, chunkUids []string) QueryTurn {
	turn := QueryTurn{
		Uid:            uid.NewQueryTurn(query, answer).String(),
		Query:          query,
		RephrasedQuery: rephrasedQuery,
		ChunkUids:      chunkUids,
		Answer:         answer,
		Timestamp:      time.Now(),
	}
	s.Turns = append(s.Turns, turn)
	return turn
}

// History returns the conversation history for the rephrase step, oldest
// first.
func (s *Session) History() []QueryTurn {
	return s.Turns
}

// IsStale returns true if the session hasn't been used within the given duration.
func (s *Session) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUsed) > maxAge
}

// ToInfo converts a Session to SessionInfo for listing.
func (s *Session) ToInfo(size int64, valid bool) *SessionInfo {
	return &SessionInfo{
		Name:        s.Name,
		ProjectPath: s.ProjectPath,
		LastUsed:    s.LastUsed,
		Size:        size,
		Valid:       valid,
		TurnCount:   len(s.Turns),
	}
}
