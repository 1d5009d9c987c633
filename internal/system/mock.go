package system

import (
	"io/fs"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// MockFS implements FileSystem for testing.
type MockFS struct {
	mu    sync.RWMutex
	files map[string]*mockFile
	dirs  map[string]bool

	// Error injection
	ReadFileErr  error
	WriteFileErr error
	RenameErr    error
	RemoveErr    error
	StatErr      error
	MkdirAllErr  error
}

type mockFile struct {
	data []byte
	mode fs.FileMode
}

// NewMockFS creates a new MockFS with an empty filesystem.
func NewMockFS() *MockFS {
	return &MockFS{
		files: make(map[string]*mockFile),
		dirs:  make(map[string]bool),
	}
}

// AddFile adds a file to the mock filesystem.
func (m *MockFS) AddFile(path string, data []byte, mode fs.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &mockFile{data: data, mode: mode}
	dir := filepath.Dir(path)
	for dir != "." && dir != "/" {
		m.dirs[dir] = true
		dir = filepath.Dir(dir)
	}
}

// AddDir adds a directory to the mock filesystem.
func (m *MockFS) AddDir(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
}

// GetFile returns the contents of a file in the mock filesystem.
func (m *MockFS) GetFile(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok {
		return nil, false
	}
	return f.data, true
}

// Files returns the paths of every file, for asserting on leftovers.
func (m *MockFS) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	return paths
}

func (m *MockFS) ReadFile(path string) ([]byte, error) {
	if m.ReadFileErr != nil {
		return nil, m.ReadFileErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return f.data, nil
}

func (m *MockFS) WriteFile(path string, data []byte, perm fs.FileMode) error {
	if m.WriteFileErr != nil {
		return m.WriteFileErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &mockFile{data: append([]byte(nil), data...), mode: perm}
	return nil
}

func (m *MockFS) Rename(oldpath, newpath string) error {
	if m.RenameErr != nil {
		return m.RenameErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[oldpath]
	if !ok {
		return fs.ErrNotExist
	}
	delete(m.files, oldpath)
	m.files[newpath] = f
	return nil
}

func (m *MockFS) Remove(path string) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		delete(m.files, path)
		return nil
	}
	if _, ok := m.dirs[path]; ok {
		delete(m.dirs, path)
		return nil
	}
	return fs.ErrNotExist
}

func (m *MockFS) Stat(path string) (fs.FileInfo, error) {
	if m.StatErr != nil {
		return nil, m.StatErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.files[path]; ok {
		return &mockFileInfo{name: filepath.Base(path), size: int64(len(f.data)), mode: f.mode}, nil
	}
	if _, ok := m.dirs[path]; ok {
		return &mockFileInfo{name: filepath.Base(path), isDir: true, mode: fs.ModeDir | 0755}, nil
	}
	return nil, fs.ErrNotExist
}

func (m *MockFS) MkdirAll(path string, perm fs.FileMode) error {
	if m.MkdirAllErr != nil {
		return m.MkdirAllErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current := path
	for current != "." && current != "/" {
		m.dirs[current] = true
		current = filepath.Dir(current)
	}
	return nil
}

func (m *MockFS) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, fileOk := m.files[path]
	_, dirOk := m.dirs[path]
	return fileOk || dirOk
}

func (m *MockFS) IsDir(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.dirs[path]
	return ok
}

// mockFileInfo implements fs.FileInfo for testing.
type mockFileInfo struct {
	name  string
	size  int64
	mode  fs.FileMode
	isDir bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return time.Now() }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() interface{}   { return nil }

// MockSignaler implements Signaler for testing.
type MockSignaler struct {
	mu sync.Mutex

	// Live holds the pids that answer signal 0.
	Live map[int]bool

	// Foreign holds pids that exist but reject signals with EPERM.
	Foreign map[int]bool

	// Signals records every non-probe signal delivered.
	Signals []MockSignal

	// KillOnTerm makes SIGTERM remove the process from Live.
	KillOnTerm bool
}

// MockSignal records one delivered signal.
type MockSignal struct {
	PID    int
	Signal syscall.Signal
}

// NewMockSignaler creates a MockSignaler with the given live pids.
func NewMockSignaler(live ...int) *MockSignaler {
	m := &MockSignaler{
		Live:    make(map[int]bool),
		Foreign: make(map[int]bool),
	}
	for _, pid := range live {
		m.Live[pid] = true
	}
	return m
}

func (m *MockSignaler) Signal(pid int, sig syscall.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := pid
	if target < 0 {
		target = -target
	}
	if m.Foreign[target] {
		return syscall.EPERM
	}
	if !m.Live[target] {
		return syscall.ESRCH
	}
	if sig == 0 {
		return nil
	}

	m.Signals = append(m.Signals, MockSignal{PID: pid, Signal: sig})
	if sig == syscall.SIGKILL || (sig == syscall.SIGTERM && m.KillOnTerm) {
		delete(m.Live, target)
	}
	return nil
}

// Spawn marks pid as live.
func (m *MockSignaler) Spawn(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Live[pid] = true
}

// Kill marks pid as dead, as if it crashed.
func (m *MockSignaler) Kill(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Live, pid)
}

// Sent returns a copy of the recorded signals.
func (m *MockSignaler) Sent() []MockSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockSignal(nil), m.Signals...)
}
