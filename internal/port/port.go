package port

import (
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

// Allocate returns the first port in r that is not in used.
// It returns false when every port in the range is taken.
func Allocate(r config.PortRange, used map[int]bool) (int, bool) {
	for p := r.From; p <= r.To; p++ {
		if !used[p] {
			return p, true
		}
	}
	return 0, false
}

// UsedPorts collects the ports held by servers.
func UsedPorts(servers []registry.Server) map[int]bool {
	used := make(map[int]bool, len(servers))
	for _, s := range servers {
		used[s.Port] = true
	}
	return used
}
