package system

import (
	"errors"
	"io/fs"
	"strings"
	"syscall"
	"testing"
)

func TestMockFS_ReadWriteFile(t *testing.T) {
	mockFS := NewMockFS()

	content := []byte("hello world")
	if err := mockFS.WriteFile("/test/file.txt", content, 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	data, err := mockFS.ReadFile("/test/file.txt")
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("ReadFile = %q, want %q", string(data), "hello world")
	}
}

func TestMockFS_ReadFile_NotExists(t *testing.T) {
	mockFS := NewMockFS()

	_, err := mockFS.ReadFile("/nonexistent")
	if err != fs.ErrNotExist {
		t.Errorf("ReadFile error = %v, want fs.ErrNotExist", err)
	}
}

func TestMockFS_Rename(t *testing.T) {
	mockFS := NewMockFS()
	mockFS.AddFile("/state/servers.json.tmp", []byte("new"), 0644)
	mockFS.AddFile("/state/servers.json", []byte("old"), 0644)

	if err := mockFS.Rename("/state/servers.json.tmp", "/state/servers.json"); err != nil {
		t.Fatalf("Rename error: %v", err)
	}

	data, _ := mockFS.GetFile("/state/servers.json")
	if string(data) != "new" {
		t.Errorf("target = %q, want %q", data, "new")
	}
	if mockFS.Exists("/state/servers.json.tmp") {
		t.Error("source should be gone after rename")
	}
	if err := mockFS.Rename("/missing", "/x"); err != fs.ErrNotExist {
		t.Errorf("Rename missing = %v, want fs.ErrNotExist", err)
	}
}

func TestMockFS_Stat(t *testing.T) {
	mockFS := NewMockFS()
	mockFS.AddFile("/test/file.txt", []byte("content"), 0644)
	mockFS.AddDir("/test/dir")

	info, err := mockFS.Stat("/test/file.txt")
	if err != nil {
		t.Fatalf("Stat file error: %v", err)
	}
	if info.IsDir() {
		t.Error("File should not be a directory")
	}
	if info.Size() != 7 {
		t.Errorf("Size = %d, want 7", info.Size())
	}

	info, err = mockFS.Stat("/test/dir")
	if err != nil {
		t.Fatalf("Stat dir error: %v", err)
	}
	if !info.IsDir() {
		t.Error("Dir should be a directory")
	}
}

func TestMockFS_ErrorInjection(t *testing.T) {
	mockFS := NewMockFS()
	boom := errors.New("disk full")
	mockFS.WriteFileErr = boom
	mockFS.RenameErr = boom

	if err := mockFS.WriteFile("/a", nil, 0644); err != boom {
		t.Errorf("WriteFile = %v, want injected error", err)
	}
	if err := mockFS.Rename("/a", "/b"); err != boom {
		t.Errorf("Rename = %v, want injected error", err)
	}
}

func TestMockFS_MkdirAll(t *testing.T) {
	mockFS := NewMockFS()
	if err := mockFS.MkdirAll("/var/lib/forage-pool/logs", 0755); err != nil {
		t.Fatalf("MkdirAll error: %v", err)
	}
	for _, dir := range []string{"/var", "/var/lib", "/var/lib/forage-pool", "/var/lib/forage-pool/logs"} {
		if !mockFS.IsDir(dir) {
			t.Errorf("%s should be a directory", dir)
		}
	}
}

func TestMockSignaler(t *testing.T) {
	s := NewMockSignaler(100, 200)
	s.Foreign[300] = true

	if !Alive(s, 100) {
		t.Error("pid 100 should be alive")
	}
	if !Alive(s, 300) {
		t.Error("EPERM pid should count as alive")
	}
	if Alive(s, 400) {
		t.Error("unknown pid should be dead")
	}
	if Alive(s, 0) || Alive(s, -1) {
		t.Error("non-positive pids are never alive")
	}

	if err := s.Signal(-100, syscall.SIGTERM); err != nil {
		t.Fatalf("SIGTERM to group: %v", err)
	}
	if !Alive(s, 100) {
		t.Error("SIGTERM should not kill without KillOnTerm")
	}
	if err := s.Signal(-100, syscall.SIGKILL); err != nil {
		t.Fatalf("SIGKILL to group: %v", err)
	}
	if Alive(s, 100) {
		t.Error("SIGKILL should kill")
	}

	sent := s.Sent()
	if len(sent) != 2 || sent[0].PID != -100 || sent[1].Signal != syscall.SIGKILL {
		t.Errorf("Sent() = %+v", sent)
	}

	s.Kill(200)
	if err := s.Signal(200, syscall.SIGTERM); err != syscall.ESRCH {
		t.Errorf("signal to dead pid = %v, want ESRCH", err)
	}
}

func TestFilterEnv(t *testing.T) {
	base := []string{
		"PATH=/usr/bin",
		"HOME=/home/dev",
		"PORT=3000",
		"FLY_API_TOKEN=secret",
		"FORAGE_POOL_STATE_DIR=/var/lib/forage-pool",
		"MALFORMED",
	}
	env := filterEnv(base, map[string]string{"PORT": "9000", "NODE_ENV": "development"})

	joined := strings.Join(env, "\n")
	for _, want := range []string{"PATH=/usr/bin", "HOME=/home/dev", "PORT=9000", "NODE_ENV=development"} {
		if !strings.Contains(joined, want) {
			t.Errorf("env missing %q", want)
		}
	}
	for _, leaked := range []string{"FLY_API_TOKEN", "FORAGE_POOL_STATE_DIR", "PORT=3000", "MALFORMED"} {
		if strings.Contains(joined, leaked) {
			t.Errorf("env should not contain %q", leaked)
		}
	}
	for i := 1; i < len(env); i++ {
		if env[i-1] > env[i] {
			t.Fatalf("env not sorted: %v", env)
		}
	}
}
