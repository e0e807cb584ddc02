package elektroid

import (
	"context"
	"fmt"
)

// connectorDesc pairs a vendor header with the constructor for the
// Connector that understands it. Registry.Open probes each pair in turn
// with that connector's own handshake; no common identity request is sent
// and no reply is used to pick a connector up front. The registry is a
// value callers construct once and pass around, not a global mutable
// table (design note, §9).
type connectorDesc struct {
	Header      VendorHeader
	NewConn     func() Connector
	Description string
}

// Registry holds the known connector families this build supports.
// Grounded on the CONNECTOR_DEVICE_DESCS-driven dispatch in connector.c,
// generalized to cover more than one protocol family (Elektron and
// MicroBrute) rather than a single hard-coded one.
type Registry struct {
	descs []connectorDesc
}

// NewRegistry returns a Registry preloaded with every connector family
// this package implements.
func NewRegistry() *Registry {
	return &Registry{descs: []connectorDesc{
		{Header: elektronVendorHeader, NewConn: func() Connector { return NewElektronConnector() }, Description: "Elektron"},
		{Header: microbruteVendorHeader, NewConn: func() Connector { return NewMicroBruteConnector(0) }, Description: "Arturia MicroBrute"},
	}}
}

// Register adds a connector family. Intended for a caller extending the
// registry with a locally defined connector without modifying this
// package.
func (r *Registry) Register(desc connectorDesc) {
	r.descs = append(r.descs, desc)
}

// Open tries each registered connector family's vendor header against
// devnode in turn, returning the first Backend whose handshake succeeds.
// A real deployment with multiple devices attached would instead use
// EnumeratePorts (udev_enum.go) to narrow the candidate list before
// probing, but Open alone is enough for a single-device setup.
func (r *Registry) Open(ctx context.Context, devnode string) (*Backend, error) {
	var lastErr error
	for _, d := range r.descs {
		b, err := NewBackend(ctx, devnode, d.Header, d.NewConn())
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no connector registered", ErrNotSupported)
	}
	return nil, fmt.Errorf("probing %s: %w", devnode, lastErr)
}
