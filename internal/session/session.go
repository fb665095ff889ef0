// Package session holds per-browser dashboard state as an explicit
// state-transition container: a single immutable State value per session,
// advanced only by enumerated Action values through a pure Reduce function.
// Nothing mutates a State in place; Dispatch replaces the stored value
// wholesale, so a partially built grid can never leak between uploads.
package session

import (
	"sync"

	"github.com/google/uuid"

	"gridchat/internal/chat"
	"gridchat/internal/ingest"
)

// State is the full dashboard state for one session. Treat as a value:
// reducers return a new State and never mutate the receiver's slices.
type State struct {
	ID       string
	Filename string
	Grid     *ingest.TypedGrid

	UploadBusy bool
	IngestBusy bool
	ChatBusy   bool

	// Table and RowsStored describe the last successful database push.
	Table      string
	RowsStored int64

	Messages  []chat.Message
	LastError string
}

// Action is one enumerated state transition.
type Action interface {
	reduce(State) State
}

// Reduce applies a to s and returns the next state. Pure; safe to call on
// any copy of a State.
func Reduce(s State, a Action) State {
	return a.reduce(s)
}

// UploadStarted marks a grid-path upload as in flight.
type UploadStarted struct{ Filename string }

func (a UploadStarted) reduce(s State) State {
	s.UploadBusy = true
	s.Filename = a.Filename
	s.LastError = ""
	return s
}

// GridReady installs a freshly materialized grid, replacing any prior one
// and resetting the chat transcript (it described the old dataset).
type GridReady struct {
	Filename string
	Grid     *ingest.TypedGrid
}

func (a GridReady) reduce(s State) State {
	s.UploadBusy = false
	s.Filename = a.Filename
	s.Grid = a.Grid
	s.Messages = nil
	s.LastError = ""
	return s
}

type UploadFailed struct{ Err string }

func (a UploadFailed) reduce(s State) State {
	s.UploadBusy = false
	s.LastError = a.Err
	return s
}

// IngestStarted marks a database-path upload as in flight.
type IngestStarted struct{ Filename string }

func (a IngestStarted) reduce(s State) State {
	s.IngestBusy = true
	s.Filename = a.Filename
	s.LastError = ""
	return s
}

type IngestFinished struct {
	Table string
	Rows  int64
}

func (a IngestFinished) reduce(s State) State {
	s.IngestBusy = false
	s.Table = a.Table
	s.RowsStored = a.Rows
	return s
}

type IngestFailed struct{ Err string }

func (a IngestFailed) reduce(s State) State {
	s.IngestBusy = false
	s.LastError = a.Err
	return s
}

type ChatAsked struct{ Question string }

func (a ChatAsked) reduce(s State) State {
	s.ChatBusy = true
	s.Messages = appendMessage(s.Messages, chat.Message{Role: "user", Content: a.Question})
	s.LastError = ""
	return s
}

type ChatAnswered struct{ Reply string }

func (a ChatAnswered) reduce(s State) State {
	s.ChatBusy = false
	s.Messages = appendMessage(s.Messages, chat.Message{Role: "assistant", Content: a.Reply})
	return s
}

type ChatFailed struct{ Err string }

func (a ChatFailed) reduce(s State) State {
	s.ChatBusy = false
	s.LastError = a.Err
	return s
}

// Cleared resets the session to empty, keeping only its identity.
type Cleared struct{}

func (Cleared) reduce(s State) State {
	return State{ID: s.ID}
}

// appendMessage copies before appending so two states never share a backing
// array.
func appendMessage(msgs []chat.Message, m chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs)+1)
	out = append(out, msgs...)
	return append(out, m)
}

// Store maps session ids to their current State. Dispatch is the only write
// path.
type Store struct {
	mu     sync.Mutex
	states map[string]State
}

func NewStore() *Store {
	return &Store{states: make(map[string]State)}
}

// Create allocates a new empty session and returns its state.
func (st *Store) Create() State {
	s := State{ID: uuid.NewString()}
	st.mu.Lock()
	st.states[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the current state for id.
func (st *Store) Get(id string) (State, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.states[id]
	return s, ok
}

// Dispatch reduces the session's state by a and stores the result. Unknown
// ids are created on the fly so a stale cookie degrades to a fresh session
// rather than an error.
func (st *Store) Dispatch(id string, a Action) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.states[id]
	if !ok {
		s = State{ID: id}
	}
	s = Reduce(s, a)
	st.states[id] = s
	return s
}
