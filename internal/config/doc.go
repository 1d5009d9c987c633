// Package config provides configuration types and loading for forage-pool.
//
// # Configuration File
//
// Configuration is a TOML document, by default /etc/forage-pool/config.toml:
//
//	state_dir = "/var/lib/forage-pool"
//
//	[pool]
//	max_sandboxes = 10
//	port_range = { from = 9000, to = 9009 }
//	workspace_root = "/srv/branches"
//	readiness_attempts = 60
//	readiness_interval = "1s"
//	grace_period = "2s"
//
//	[remote]
//	org = "personal"
//	image = "registry.fly.io/sandbox:latest"
//	regions = { us = ["iad", "ord"], eu = ["ams"] }
//
//	[server]
//	listen = "127.0.0.1:7090"
//
// A missing default file means built-in defaults. Unknown keys are
// rejected so typos do not silently fall back to defaults.
//
// # Environment
//
// FORAGE_POOL_CONFIG, FORAGE_POOL_STATE_DIR, FORAGE_POOL_WORKSPACE_ROOT,
// FLY_API_TOKEN and FLY_ORG override file values. The API token is only
// ever read from the environment.
//
// # Identifiers
//
// ValidateID guards owner and branch identifiers, which end up as
// directory names under the workspace root.
package config
