package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "/etc/forage-pool/config.toml"
	DefaultStateDir     = "/var/lib/forage-pool"
	DefaultWorkspaceDir = "/var/lib/forage-pool/workspaces"
	RegistryFile        = "servers.json"
	InventoryFile       = "machines.db"

	DefaultMaxSandboxes      = 10
	DefaultPortFrom          = 9000
	DefaultPortTo            = 9009
	DefaultReadinessAttempts = 60
	DefaultReadinessInterval = time.Second
	DefaultGracePeriod       = 2 * time.Second
	DefaultCommand           = "npm run dev"
	DefaultListenAddr        = "127.0.0.1:7090"

	DefaultMachinesAPI    = "https://api.machines.dev"
	DefaultGraphQLAPI     = "https://api.fly.io/graphql"
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultWaitAttempts   = 5
	DefaultWaitTimeout    = 60 * time.Second
	DefaultMachineCPUs    = 1
	DefaultMachineMemory  = 1024
	DefaultMachineCPUKind = "shared"
)

// Environment variables consulted by Load. They win over file values.
const (
	EnvConfigPath    = "FORAGE_POOL_CONFIG"
	EnvStateDir      = "FORAGE_POOL_STATE_DIR"
	EnvWorkspaceRoot = "FORAGE_POOL_WORKSPACE_ROOT"
	EnvAPIToken      = "FLY_API_TOKEN"
	EnvOrg           = "FLY_ORG"
)

// idRegex validates owner and branch identifiers. They become directory
// names under the workspace root, so path separators are never allowed.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// ValidateID checks that an owner or branch identifier is usable.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if !idRegex.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("invalid %s %q: must start with a letter or digit, contain only letters, digits, '.', '_' or '-', and be at most 63 characters", kind, id)
	}
	return nil
}

// Duration is a time.Duration that decodes from TOML strings like "1s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// PortRange is an inclusive range of local TCP ports.
type PortRange struct {
	From int `toml:"from"`
	To   int `toml:"to"`
}

// Size returns the number of ports in the range.
func (r PortRange) Size() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Contains reports whether p lies within the range.
func (r PortRange) Contains(p int) bool {
	return p >= r.From && p <= r.To
}

// PoolConfig configures the local sandbox pool.
type PoolConfig struct {
	MaxSandboxes      int               `toml:"max_sandboxes"`
	PortRange         PortRange         `toml:"port_range"`
	WorkspaceRoot     string            `toml:"workspace_root"`
	DefaultCommand    string            `toml:"default_command"`
	NodeEnv           string            `toml:"node_env"`
	Env               map[string]string `toml:"env"`
	GracePeriod       Duration          `toml:"grace_period"`
	ReadinessInterval Duration          `toml:"readiness_interval"`
	ReadinessAttempts int               `toml:"readiness_attempts"`
	MonitorInterval   Duration          `toml:"monitor_interval"`
}

// GuestConfig is the default machine size for remote sandboxes.
type GuestConfig struct {
	CPUKind  string `toml:"cpu_kind"`
	CPUs     int    `toml:"cpus"`
	MemoryMB int    `toml:"memory_mb"`
}

// RemoteConfig configures the hosted machine provider.
type RemoteConfig struct {
	MachinesURL   string              `toml:"machines_url"`
	GraphQLURL    string              `toml:"graphql_url"`
	Org           string              `toml:"org"`
	Token         string              `toml:"-"`
	Image         string              `toml:"image"`
	Regions       map[string][]string `toml:"regions"`
	RetryAttempts int                 `toml:"retry_attempts"`
	RetryDelay    Duration            `toml:"retry_delay"`
	WaitAttempts  int                 `toml:"wait_attempts"`
	WaitTimeout   Duration            `toml:"wait_timeout"`
	Guest         GuestConfig         `toml:"guest"`
}

// RegionGroups returns the configured group names in a stable order.
func (r *RemoteConfig) RegionGroups() []string {
	names := make([]string, 0, len(r.Regions))
	for name := range r.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// Config is the complete forage-pool configuration.
type Config struct {
	StateDir string       `toml:"state_dir"`
	Pool     PoolConfig   `toml:"pool"`
	Remote   RemoteConfig `toml:"remote"`
	Server   ServerConfig `toml:"server"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		StateDir: DefaultStateDir,
		Pool: PoolConfig{
			MaxSandboxes:      DefaultMaxSandboxes,
			PortRange:         PortRange{From: DefaultPortFrom, To: DefaultPortTo},
			WorkspaceRoot:     DefaultWorkspaceDir,
			DefaultCommand:    DefaultCommand,
			NodeEnv:           "development",
			GracePeriod:       Duration{DefaultGracePeriod},
			ReadinessInterval: Duration{DefaultReadinessInterval},
			ReadinessAttempts: DefaultReadinessAttempts,
			MonitorInterval:   Duration{30 * time.Second},
		},
		Remote: RemoteConfig{
			MachinesURL: DefaultMachinesAPI,
			GraphQLURL:  DefaultGraphQLAPI,
			Org:         "personal",
			Regions: map[string][]string{
				"us": {"iad", "ord", "dfw", "sjc"},
				"eu": {"ams", "fra", "lhr"},
			},
			RetryAttempts: DefaultRetryAttempts,
			RetryDelay:    Duration{DefaultRetryDelay},
			WaitAttempts:  DefaultWaitAttempts,
			WaitTimeout:   Duration{DefaultWaitTimeout},
			Guest: GuestConfig{
				CPUKind:  DefaultMachineCPUKind,
				CPUs:     DefaultMachineCPUs,
				MemoryMB: DefaultMachineMemory,
			},
		},
		Server: ServerConfig{
			Listen: DefaultListenAddr,
		},
	}
}

// Load reads the configuration file at path, applies environment
// overrides and validates the result. An empty path resolves to
// $FORAGE_POOL_CONFIG and then DefaultConfigPath; a missing file is only
// an error when the path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		// Maps merge on decode, so a configured region table replaces the
		// defaults instead of extending them.
		defaults := cfg.Remote.Regions
		cfg.Remote.Regions = nil
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys in config %s: %v", path, undecoded)
		}
		if cfg.Remote.Regions == nil {
			cfg.Remote.Regions = defaults
		}
	} else if !errors.Is(err, fs.ErrNotExist) || explicit {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStateDir); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv(EnvWorkspaceRoot); v != "" {
		c.Pool.WorkspaceRoot = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		c.Remote.Token = v
	}
	if v := os.Getenv(EnvOrg); v != "" {
		c.Remote.Org = v
	}
}

// Validate checks that the Config is usable.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if !filepath.IsAbs(c.Pool.WorkspaceRoot) {
		return fmt.Errorf("pool.workspace_root must be an absolute path (got %q)", c.Pool.WorkspaceRoot)
	}
	if c.Pool.MaxSandboxes < 1 {
		return fmt.Errorf("pool.max_sandboxes must be at least 1 (got %d)", c.Pool.MaxSandboxes)
	}
	r := c.Pool.PortRange
	if r.From < 1 || r.To > 65535 || r.Size() == 0 {
		return fmt.Errorf("pool.port_range %d-%d is invalid", r.From, r.To)
	}
	if c.Pool.ReadinessAttempts < 1 {
		return fmt.Errorf("pool.readiness_attempts must be at least 1")
	}
	if c.Pool.ReadinessInterval.Duration <= 0 {
		return fmt.Errorf("pool.readiness_interval must be positive")
	}
	if c.Pool.GracePeriod.Duration < 0 {
		return fmt.Errorf("pool.grace_period cannot be negative")
	}
	if c.Remote.RetryAttempts < 1 {
		return fmt.Errorf("remote.retry_attempts must be at least 1")
	}
	for group, regions := range c.Remote.Regions {
		if len(regions) == 0 {
			return fmt.Errorf("remote.regions.%s is empty", group)
		}
	}
	return nil
}

// Paths holds the file locations derived from StateDir.
type Paths struct {
	StateDir      string
	RegistryPath  string
	LogsDir       string
	AuditDir      string
	InventoryPath string
}

// Paths returns the derived state locations.
func (c *Config) Paths() *Paths {
	return &Paths{
		StateDir:      c.StateDir,
		RegistryPath:  filepath.Join(c.StateDir, RegistryFile),
		LogsDir:       filepath.Join(c.StateDir, "logs"),
		AuditDir:      filepath.Join(c.StateDir, "audit"),
		InventoryPath: filepath.Join(c.StateDir, InventoryFile),
	}
}

// Ensure creates the state directories.
func (p *Paths) Ensure() error {
	for _, dir := range []string{p.StateDir, p.LogsDir, p.AuditDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
