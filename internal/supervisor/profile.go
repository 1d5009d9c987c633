package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

// OverrideFile is the per-branch launch override, read from the branch root.
const OverrideFile = "forage-pool.yaml"

// Profile kinds, in detection priority order.
const (
	ProfileOverride = "override"
	ProfileWeb      = "web"
	ProfileServer   = "server"
	ProfileRoot     = "root"
)

// Profile is the resolved way to start a branch.
type Profile struct {
	Kind    string
	Dir     string
	Argv    []string
	Command string
	Env     map[string]string
}

type override struct {
	Command string            `yaml:"command"`
	Cwd     string            `yaml:"cwd"`
	Env     map[string]string `yaml:"env"`
}

type packageJSON struct {
	Scripts map[string]string `json:"scripts"`
}

var appDirs = []struct {
	kind string
	dir  string
}{
	{ProfileWeb, filepath.Join("apps", "web")},
	{ProfileServer, filepath.Join("apps", "server")},
}

// DetectLaunchProfile picks the directory and command for branchDir.
// defaultCommand is used when only the repository root qualifies.
func DetectLaunchProfile(branchDir, defaultCommand string) (Profile, error) {
	if _, err := os.Stat(branchDir); err != nil {
		return Profile{}, fmt.Errorf("branch directory: %w", err)
	}

	if p, ok, err := detectOverride(branchDir); err != nil || ok {
		return p, err
	}

	for _, app := range appDirs {
		dir := filepath.Join(branchDir, app.dir)
		pkg, ok, err := readPackageJSON(filepath.Join(dir, "package.json"))
		if err != nil {
			return Profile{}, err
		}
		if !ok {
			continue
		}
		command := "npm start"
		if _, hasDev := pkg.Scripts["dev"]; hasDev {
			command = "npm run dev"
		}
		return newProfile(app.kind, dir, command)
	}

	return newProfile(ProfileRoot, branchDir, defaultCommand)
}

func detectOverride(branchDir string) (Profile, bool, error) {
	path := filepath.Join(branchDir, OverrideFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	var o override
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Profile{}, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	if o.Command == "" {
		return Profile{}, false, fmt.Errorf("%s: command is required", path)
	}

	dir := branchDir
	if o.Cwd != "" {
		// cwd is confined to the branch even when it contains ".." or symlinks.
		dir, err = securejoin.SecureJoin(branchDir, o.Cwd)
		if err != nil {
			return Profile{}, false, fmt.Errorf("%s: invalid cwd %q: %w", path, o.Cwd, err)
		}
	}

	p, err := newProfile(ProfileOverride, dir, o.Command)
	p.Env = o.Env
	return p, err == nil, err
}

func readPackageJSON(path string) (packageJSON, bool, error) {
	var pkg packageJSON
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return pkg, false, nil
	}
	if err != nil {
		return pkg, false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkg, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return pkg, true, nil
}

func newProfile(kind, dir, command string) (Profile, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return Profile{}, fmt.Errorf("invalid command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return Profile{}, fmt.Errorf("empty command for %s profile", kind)
	}
	return Profile{Kind: kind, Dir: dir, Argv: argv, Command: command}, nil
}
