package testutil

import (
	"embed"
	"encoding/json"

	"github.com/BurntSushi/toml"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

//go:embed fixtures/*
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadConfigFixture decodes a TOML config fixture over the defaults.
func LoadConfigFixture(name string) (*config.Config, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	cfg.Remote.Regions = nil
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRegistryFixture loads a registry document fixture.
func LoadRegistryFixture(name string) (*registry.State, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	var s registry.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ValidConfig returns the valid config fixture.
func ValidConfig() (*config.Config, error) {
	return LoadConfigFixture("valid_config.toml")
}

// InvalidConfig returns the invalid config fixture.
func InvalidConfig() (*config.Config, error) {
	return LoadConfigFixture("invalid_config.toml")
}

// ValidRegistry returns the two-server registry fixture.
func ValidRegistry() (*registry.State, error) {
	return LoadRegistryFixture("registry.json")
}

// Override returns the launch override fixture, ready to be written as a
// branch's forage-pool.yaml.
func Override() ([]byte, error) {
	return LoadFixture("override.yaml")
}
