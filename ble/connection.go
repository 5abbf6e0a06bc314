package ble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/hci"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/scient-labs/scient-gateway/device"
)

var (
	successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scient_gateway_ble_successful_connections_total",
	})
	failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scient_gateway_ble_failed_connections_total",
	})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scient_gateway_ble_disconnections_total",
	})
)

// connection counts its own release so the disconnect metric matches dials one to one.
type connection struct {
	ble.Client
	handle device.Handle
}

func (c *connection) CancelConnection() error {
	disconnectsCounter.Inc()
	log.Trace().Stringer("Device", c.handle).Msg("ble: releasing connection")

	return c.Client.CancelConnection()
}

func dialAddr(h device.Handle) ble.Addr {
	addr := ble.NewAddr(h.Address)

	if h.AddressType == device.AddressRandom {
		return hci.RandomAddress{Addr: addr}
	}

	return addr
}

// Dial connects to the device behind the handle. The caller must release the returned
// connection with CancelConnection. Connection setup is serialized across callers; waiting for
// a turn honours ctx.
func (h *Handle) Dial(ctx context.Context, dh device.Handle) (device.Conn, error) {
	if err := h.dialing.Acquire(ctx, 1); err != nil {
		failedConnectionsCounter.Inc()
		return nil, fmt.Errorf("failed to dial %v: %w", dh, err)
	}

	c, err := h.dialLocked(ctx, dh)

	h.dialing.Release(1)

	if err != nil {
		failedConnectionsCounter.Inc()
		return nil, fmt.Errorf("failed to dial %v: %w", dh, err)
	}

	successfulConnectionsCounter.Inc()
	log.Debug().Stringer("Device", dh).Msg("ble: connected to device")

	return &connection{Client: c, handle: dh}, nil
}

// dialLocked must hold h.dialing. The HCI layer only ever sets the random peer address type,
// so the parameters are re-applied with the handle's own type before every dial.
func (h *Handle) dialLocked(ctx context.Context, dh device.Handle) (ble.Client, error) {
	params := h.connParams.AdapterOptions()
	params.PeerAddressType = peerAddressType(dh)

	if err := h.setConnParams(params); err != nil {
		return nil, fmt.Errorf("cannot set connection parameters: %w", err)
	}

	return h.dial(ctx, dialAddr(dh))
}

func peerAddressType(h device.Handle) uint8 {
	if h.AddressType == device.AddressRandom {
		return 0x01
	}

	return 0x00
}
