package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playperu/agenthunt/internal/hunt"
)

// FileName is the document FileStore keeps in its directory.
const FileName = "agent-hunt-progress.json"

type shareEntry struct {
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type fileState struct {
	Sessions map[string]hunt.GameState `json:"sessions"`
	Updated  map[string]time.Time      `json:"updated"`
	Shares   map[string]shareEntry     `json:"shares"`
}

// FileStore is the single-device engine: every snapshot and share token
// lives in one JSON document that is rewritten atomically on each change.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	state    fileState
}

func NewFileStore(dir string) (*FileStore, error) {
	s := &FileStore{
		filePath: filepath.Join(dir, FileName),
		state: fileState{
			Sessions: make(map[string]hunt.GameState),
			Updated:  make(map[string]time.Time),
			Shares:   make(map[string]shareEntry),
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Save(_ context.Context, st hunt.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.state.Sessions[st.SessionID]; ok && cur.Revision > st.Revision {
		return nil
	}
	s.state.Sessions[st.SessionID] = st.Clone()
	s.state.Updated[st.SessionID] = time.Now().UTC()
	return s.persistLocked()
}

func (s *FileStore) Load(_ context.Context, sessionID string) (hunt.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state.Sessions[sessionID]
	if !ok {
		return hunt.GameState{}, ErrNotFound
	}
	return st.Clone(), nil
}

func (s *FileStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Sessions[sessionID]; !ok {
		return nil
	}
	delete(s.state.Sessions, sessionID)
	delete(s.state.Updated, sessionID)
	return s.persistLocked()
}

func (s *FileStore) List(_ context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.state.Sessions))
	for id, st := range s.state.Sessions {
		out = append(out, summarize(st, s.state.Updated[id]))
	}
	s.mu.RUnlock()
	return newestFirst(out, limit), nil
}

func (s *FileStore) Put(_ context.Context, token, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for t, e := range s.state.Shares {
		if !now.Before(e.ExpiresAt) {
			delete(s.state.Shares, t)
		}
	}
	s.state.Shares[token] = shareEntry{SessionID: sessionID, ExpiresAt: now.Add(ttl)}
	return s.persistLocked()
}

func (s *FileStore) Resolve(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.Shares[token]
	if !ok || !time.Now().Before(e.ExpiresAt) {
		return "", ErrNotFound
	}
	return e.SessionID, nil
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.Sessions == nil {
		state.Sessions = make(map[string]hunt.GameState)
	}
	if state.Updated == nil {
		state.Updated = make(map[string]time.Time)
	}
	if state.Shares == nil {
		state.Shares = make(map[string]shareEntry)
	}
	s.state = state
	return nil
}

func (s *FileStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.filePath)
}
