// Package port allocates local TCP ports for sandbox dev servers.
//
// Every sandbox in the pool listens on a distinct port drawn from the
// configured range (9000-9009 by default). Allocation scans the ports held
// by registry entries and hands out the lowest free one:
//
//	used := port.UsedPorts(state.Servers)
//	p, ok := port.Allocate(cfg.Pool.PortRange, used)
//
// # Allocation Strategy
//
// First-fit: the lowest available value is chosen. The allocator is pure
// and never probes the network, so a port held by an unrelated process is
// only detected when the dev server fails to bind and readiness times out.
package port
