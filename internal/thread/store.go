package thread

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeFunc observes every committed message write.
type ChangeFunc func(threadID string, msg Message)

// Store keeps threads in memory.
//
// Every mutation is a single replace-by-key step performed under the store
// lock, so writes from concurrent backend tasks can interleave arbitrarily
// without corrupting each other. Stale writers are filtered by the guard
// passed to Replace.
type Store struct {
	mu       sync.Mutex
	threads  map[string]*Thread
	lastTS   int64
	now      func() time.Time
	onChange ChangeFunc
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		threads: make(map[string]*Thread),
		now:     time.Now,
	}
}

// OnChange registers fn to be called after each committed message write.
// fn runs outside the store lock.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// nextTimestamp returns a strictly increasing millisecond-based stamp so
// that no two messages ever share a Key. Caller must hold the lock.
func (s *Store) nextTimestamp() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func (s *Store) thread(id string) (*Thread, error) {
	t, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *Store) notify(threadID string, msgs ...Message) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn == nil {
		return
	}
	for _, m := range msgs {
		fn(threadID, m)
	}
}

// Create starts a new empty thread.
func (s *Store) Create(title string) Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := &Thread{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  make([]Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.threads[t.ID] = t
	return t.clone()
}

// Get returns a snapshot of a thread.
func (s *Store) Get(id string) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(id)
	if err != nil {
		return Thread{}, err
	}
	return t.clone(), nil
}

// List returns snapshots of all threads, newest first.
func (s *Store) List() []Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a thread.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.thread(id); err != nil {
		return err
	}
	delete(s.threads, id)
	return nil
}

// SetTitle renames a thread.
func (s *Store) SetTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(id)
	if err != nil {
		return err
	}
	t.Title = title
	return nil
}

// History returns a copy of the thread's messages.
func (s *Store) History(id string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(id)
	if err != nil {
		return nil, err
	}
	return append([]Message(nil), t.Messages...), nil
}

// AppendUser appends a user message. An untitled thread takes its title from
// the first prompt.
func (s *Store) AppendUser(id, content string) (Message, error) {
	s.mu.Lock()
	t, err := s.thread(id)
	if err != nil {
		s.mu.Unlock()
		return Message{}, err
	}
	msg := Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: s.nextTimestamp(),
	}
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = s.now()
	if t.Title == "" {
		t.Title = DeriveTitle(content)
	}
	s.mu.Unlock()

	s.notify(id, msg)
	return msg, nil
}

// SetSystemPrompt replaces the leading system message, or prepends one when
// the thread has none. An empty prompt leaves the thread untouched.
func (s *Store) SetSystemPrompt(id, prompt string) error {
	if prompt == "" {
		return nil
	}

	s.mu.Lock()
	t, err := s.thread(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	var msg Message
	if len(t.Messages) > 0 && t.Messages[0].Role == RoleSystem {
		t.Messages[0].Content = prompt
		msg = t.Messages[0]
	} else {
		msg = Message{Role: RoleSystem, Content: prompt, Timestamp: s.nextTimestamp()}
		t.Messages = append([]Message{msg}, t.Messages...)
	}
	t.UpdatedAt = s.now()
	s.mu.Unlock()

	s.notify(id, msg)
	return nil
}

// InsertPlaceholders inserts one pending assistant message per backend at
// index at (a negative index appends) and returns their keys in order.
func (s *Store) InsertPlaceholders(id string, at int, backendIDs []string, pendingText string) ([]Key, error) {
	s.mu.Lock()
	t, err := s.thread(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if at < 0 || at > len(t.Messages) {
		at = len(t.Messages)
	}

	placeholders := make([]Message, 0, len(backendIDs))
	keys := make([]Key, 0, len(backendIDs))
	ts := s.nextTimestamp()
	for _, b := range backendIDs {
		m := Message{
			Role:      RoleAssistant,
			Content:   pendingText,
			BackendID: b,
			Timestamp: ts,
			Pending:   true,
		}
		placeholders = append(placeholders, m)
		keys = append(keys, m.Key())
	}

	msgs := make([]Message, 0, len(t.Messages)+len(placeholders))
	msgs = append(msgs, t.Messages[:at]...)
	msgs = append(msgs, placeholders...)
	msgs = append(msgs, t.Messages[at:]...)
	t.Messages = msgs
	t.UpdatedAt = s.now()
	s.mu.Unlock()

	s.notify(id, placeholders...)
	return keys, nil
}

// Replace atomically rewrites the message identified by key. The write only
// happens when guard (if any) still returns true while the store lock is
// held; it reports whether the message was written. A key that no longer
// exists is not an error: the message was removed by a newer edit.
func (s *Store) Replace(id string, key Key, guard func() bool, mutate func(*Message)) (bool, error) {
	s.mu.Lock()
	t, err := s.thread(id)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	i := t.indexOf(key)
	if i < 0 || (guard != nil && !guard()) {
		s.mu.Unlock()
		return false, nil
	}
	msg := t.Messages[i]
	mutate(&msg)
	// identity is immutable
	msg.Timestamp, msg.BackendID = key.Timestamp, key.BackendID
	t.Messages[i] = msg
	t.UpdatedAt = s.now()
	s.mu.Unlock()

	s.notify(id, msg)
	return true, nil
}

// Message returns a copy of the message identified by key.
func (s *Store) Message(id string, key Key) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(id)
	if err != nil {
		return Message{}, err
	}
	i := t.indexOf(key)
	if i < 0 {
		return Message{}, fmt.Errorf("message %d/%s: %w", key.Timestamp, key.BackendID, ErrNotFound)
	}
	return t.Messages[i], nil
}

// UserTurn returns the turnIndex-th user message (0-based).
func (s *Store) UserTurn(id string, turnIndex int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(id)
	if err != nil {
		return Message{}, err
	}
	turns := t.UserTurns()
	if turnIndex < 0 || turnIndex >= len(turns) {
		return Message{}, fmt.Errorf("turn %d: %w", turnIndex, ErrNotFound)
	}
	return t.Messages[turns[turnIndex]], nil
}

// EditUserTurn rewrites the turnIndex-th user message and deletes every
// message between it and the next user message. It returns the history up
// to and including the edited message, and the index at which the new
// answers belong.
func (s *Store) EditUserTurn(id string, turnIndex int, text string) ([]Message, int, error) {
	s.mu.Lock()
	t, err := s.thread(id)
	if err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	turns := t.UserTurns()
	if turnIndex < 0 || turnIndex >= len(turns) {
		s.mu.Unlock()
		return nil, 0, fmt.Errorf("turn %d: %w", turnIndex, ErrNotFound)
	}

	pos := turns[turnIndex]
	end := len(t.Messages)
	if turnIndex+1 < len(turns) {
		end = turns[turnIndex+1]
	}

	t.Messages[pos].Content = text
	edited := t.Messages[pos]
	msgs := make([]Message, 0, len(t.Messages)-(end-pos-1))
	msgs = append(msgs, t.Messages[:pos+1]...)
	msgs = append(msgs, t.Messages[end:]...)
	t.Messages = msgs
	t.UpdatedAt = s.now()
	history := append([]Message(nil), t.Messages[:pos+1]...)
	s.mu.Unlock()

	s.notify(id, edited)
	return history, pos + 1, nil
}
