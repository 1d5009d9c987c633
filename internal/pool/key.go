package pool

import (
	"fmt"
	"strings"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

// Key identifies a sandbox.
type Key struct {
	OwnerID  string
	BranchID string
}

func (k Key) String() string {
	return k.OwnerID + "/" + k.BranchID
}

// Validate checks both identifiers.
func (k Key) Validate() error {
	if err := config.ValidateID("owner", k.OwnerID); err != nil {
		return errors.ValidationError(err.Error())
	}
	if err := config.ValidateID("branch", k.BranchID); err != nil {
		return errors.ValidationError(err.Error())
	}
	return nil
}

// ParseKey parses the owner/branch form.
func ParseKey(s string) (Key, error) {
	owner, branch, ok := strings.Cut(s, "/")
	if !ok {
		return Key{}, errors.ValidationError(fmt.Sprintf("invalid sandbox key %q: expected owner/branch", s))
	}
	k := Key{OwnerID: owner, BranchID: branch}
	return k, k.Validate()
}

// KeyOf returns the key of a registry entry.
func KeyOf(srv registry.Server) Key {
	return Key{OwnerID: srv.OwnerID, BranchID: srv.BranchID}
}

func (k Key) matches(srv registry.Server) bool {
	return srv.OwnerID == k.OwnerID && srv.BranchID == k.BranchID
}
