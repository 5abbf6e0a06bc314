package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	ble_mod "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/hci"
	"github.com/scient-labs/scient-gateway/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type FakeAdvertisement struct {
	name string
	addr ble_mod.Addr
}

func (f FakeAdvertisement) LocalName() string                 { return f.name }
func (f FakeAdvertisement) ManufacturerData() []byte          { return nil }
func (f FakeAdvertisement) ServiceData() []ble_mod.ServiceData { return nil }
func (f FakeAdvertisement) Services() []ble_mod.UUID          { return nil }
func (f FakeAdvertisement) OverflowService() []ble_mod.UUID   { return nil }
func (f FakeAdvertisement) TxPowerLevel() int                 { return 0 }
func (f FakeAdvertisement) Connectable() bool                 { return true }
func (f FakeAdvertisement) SolicitedService() []ble_mod.UUID  { return nil }
func (f FakeAdvertisement) RSSI() int                         { return -60 }
func (f FakeAdvertisement) Addr() ble_mod.Addr                { return f.addr }

const target = "Scient BLE Node"

// fakeScan replays advertisements, then behaves like the HCI device: blocks until the context
// is done and returns its error, unless failWith is set.
func fakeScan(advs []FakeAdvertisement, failWith error) func(context.Context, bool, ble_mod.AdvHandler) error {
	return func(ctx context.Context, _ bool, h ble_mod.AdvHandler) error {
		for _, a := range advs {
			h(a)
		}

		if failWith != nil {
			return failWith
		}

		<-ctx.Done()
		return ctx.Err()
	}
}

func TestScanByName_FiltersAndDeduplicates(t *testing.T) {
	h := &Handle{scan: fakeScan([]FakeAdvertisement{
		{name: target, addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:01")},
		{name: "Other Node", addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:02")},
		{name: target, addr: hci.RandomAddress{Addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:03")}},
		{name: target, addr: ble_mod.NewAddr("aa:bb:cc:dd:ee:01")},
		{name: "Scient BLE Node 2", addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:04")},
		{name: "", addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:05")},
	}, nil)}

	got, err := h.ScanByName(context.Background(), target, 20*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, []device.Handle{
		{Address: "aa:bb:cc:dd:ee:01", AddressType: device.AddressPublic},
		{Address: "aa:bb:cc:dd:ee:03", AddressType: device.AddressRandom},
	}, got)
}

func TestScanByName_ShortenedNameDoesNotMatch(t *testing.T) {
	h := &Handle{scan: fakeScan([]FakeAdvertisement{
		// advertising packet without scan response, shortened name only.
		{name: "Scient", addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:01")},
		{name: "Scient BLE", addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:02")},
		{name: target, addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:02")},
	}, nil)}

	got, err := h.ScanByName(context.Background(), target, 20*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, []device.Handle{{Address: "aa:bb:cc:dd:ee:02", AddressType: device.AddressPublic}}, got)
}

func TestScanByName_NoDevices(t *testing.T) {
	h := &Handle{scan: fakeScan([]FakeAdvertisement{
		{name: "Other Node", addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:02")},
	}, nil)}

	got, err := h.ScanByName(context.Background(), target, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanByName_FailsClosedOnTransportError(t *testing.T) {
	reset := errors.New("hci: controller reset")

	h := &Handle{scan: fakeScan([]FakeAdvertisement{
		{name: target, addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:01")},
	}, reset)}

	got, err := h.ScanByName(context.Background(), target, time.Second)

	assert.ErrorIs(t, err, ErrScanAborted)
	assert.ErrorIs(t, err, reset)
	assert.Empty(t, got)
}

func TestScanByName_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &Handle{scan: fakeScan(nil, nil)}

	got, err := h.ScanByName(ctx, target, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

func TestScanByName_IgnoresLateAdvertisements(t *testing.T) {
	var late ble_mod.AdvHandler

	h := &Handle{scan: func(ctx context.Context, _ bool, handler ble_mod.AdvHandler) error {
		late = handler
		<-ctx.Done()
		return ctx.Err()
	}}

	got, err := h.ScanByName(context.Background(), target, 5*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, got)

	late(FakeAdvertisement{name: target, addr: ble_mod.NewAddr("AA:BB:CC:DD:EE:01")})

	assert.Empty(t, got)
}
