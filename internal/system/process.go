package system

import (
	"errors"
	"os"
	"sort"
	"strings"
	"syscall"
)

// osSignaler implements Signaler with kill(2).
type osSignaler struct{}

func (s *osSignaler) Signal(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

// Alive reports whether pid names a live process. EPERM means the process
// exists but belongs to someone else, which still counts as alive.
func Alive(s Signaler, pid int) bool {
	if pid <= 0 {
		return false
	}
	err := s.Signal(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// privatePrefixes are variables of the manager itself that must not leak
// into sandboxed dev servers.
var privatePrefixes = []string{
	"FORAGE_POOL_",
	"FLY_API_TOKEN",
	"FLY_ACCESS_TOKEN",
}

// SafeEnviron returns the current environment minus manager secrets, with
// extra applied on top. The result is sorted for stable output.
func SafeEnviron(extra map[string]string) []string {
	return filterEnv(os.Environ(), extra)
}

func filterEnv(base []string, extra map[string]string) []string {
	vars := make(map[string]string, len(base)+len(extra))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || isPrivate(k) {
			continue
		}
		vars[k] = v
	}
	for k, v := range extra {
		vars[k] = v
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

func isPrivate(key string) bool {
	for _, p := range privatePrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
