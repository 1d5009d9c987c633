package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/system"
)

// Phase is the lifecycle phase of a local sandbox.
type Phase string

const (
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
	PhaseStopped  Phase = "stopped"
	PhaseError    Phase = "error"
)

// Server is one tracked dev-server process.
type Server struct {
	OwnerID      string    `json:"ownerId"`
	BranchID     string    `json:"branchId"`
	Port         int       `json:"port"`
	PID          int       `json:"pid"`
	LastAccessed time.Time `json:"lastAccessed"`
	StartedAt    time.Time `json:"startedAt"`
	Command      string    `json:"command"`
	State        Phase     `json:"state,omitempty"`
	Cwd          string    `json:"cwd,omitempty"`
}

// Key returns the owner/branch form of the server's key.
func (s Server) Key() string {
	return s.OwnerID + "/" + s.BranchID
}

// State is the registry document.
type State struct {
	Servers []Server `json:"servers"`
}

// Find returns the index of the entry for owner/branch.
func (s *State) Find(owner, branch string) (int, bool) {
	for i, srv := range s.Servers {
		if srv.OwnerID == owner && srv.BranchID == branch {
			return i, true
		}
	}
	return -1, false
}

// Get returns the entry for owner/branch.
func (s *State) Get(owner, branch string) (Server, bool) {
	if i, ok := s.Find(owner, branch); ok {
		return s.Servers[i], true
	}
	return Server{}, false
}

// Put inserts srv, replacing any entry with the same key.
func (s *State) Put(srv Server) {
	if i, ok := s.Find(srv.OwnerID, srv.BranchID); ok {
		s.Servers[i] = srv
		return
	}
	s.Servers = append(s.Servers, srv)
}

// Remove deletes the entry for owner/branch and reports whether one existed.
func (s *State) Remove(owner, branch string) (Server, bool) {
	i, ok := s.Find(owner, branch)
	if !ok {
		return Server{}, false
	}
	srv := s.Servers[i]
	s.Servers = append(s.Servers[:i], s.Servers[i+1:]...)
	return srv, true
}

// RemoveIf deletes every entry matching pred and returns them.
func (s *State) RemoveIf(pred func(Server) bool) []Server {
	var removed []Server
	kept := s.Servers[:0]
	for _, srv := range s.Servers {
		if pred(srv) {
			removed = append(removed, srv)
			continue
		}
		kept = append(kept, srv)
	}
	s.Servers = kept
	return removed
}

// LeastRecentlyUsed returns the entry with the minimum LastAccessed.
func (s *State) LeastRecentlyUsed() (Server, bool) {
	if len(s.Servers) == 0 {
		return Server{}, false
	}
	victim := s.Servers[0]
	for _, srv := range s.Servers[1:] {
		if srv.LastAccessed.Before(victim.LastAccessed) {
			victim = srv
		}
	}
	return victim, true
}

// SortByAccess orders entries oldest access first.
func (s *State) SortByAccess() {
	sort.SliceStable(s.Servers, func(i, j int) bool {
		return s.Servers[i].LastAccessed.Before(s.Servers[j].LastAccessed)
	})
}

func (s *State) clone() *State {
	return &State{Servers: append([]Server(nil), s.Servers...)}
}

// Registry owns the in-memory state and its on-disk projection.
type Registry struct {
	path string
	fs   system.FileSystem

	mu    sync.Mutex
	state *State
}

// New creates a Registry backed by the file at path and loads it.
// A nil fs uses the real filesystem.
func New(path string, fsys system.FileSystem) *Registry {
	if fsys == nil {
		fsys = system.DefaultFS()
	}
	r := &Registry{path: path, fs: fsys}
	r.state = r.read()
	return r
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// Load returns a copy of the current state.
func (r *Registry) Load() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Save replaces the state wholesale and writes it out.
func (r *Registry) Save(s *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s.clone()
	return r.write(r.state)
}

// Update runs fn on a copy of the state under the registry lock. When fn
// succeeds the copy becomes the current state and is written out. A write
// failure is returned but the in-memory state is kept.
func (r *Registry) Update(fn func(*State) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	r.state = next
	return r.write(next)
}

func (r *Registry) read() *State {
	data, err := r.fs.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("failed to read registry, starting empty", "path", r.path, "error", err)
		}
		return &State{}
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		logging.Warn("corrupt registry, starting empty", "path", r.path, "error", err)
		return &State{}
	}
	return &s
}

func (r *Registry) write(s *State) error {
	out := s
	if out.Servers == nil {
		out = &State{Servers: []Server{}}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := r.fs.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := r.fs.Rename(tmp, r.path); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
