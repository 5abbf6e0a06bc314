package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/scient-labs/scient-gateway/device"
	"github.com/scient-labs/scient-gateway/geo"
	"github.com/scient-labs/scient-gateway/host"
	"github.com/scient-labs/scient-gateway/relay"
)

var errTransport = errors.New("att: transport closed")

// nodeProfile lays out seven characteristics with the telemetry one at index 6.
func nodeProfile() *ble.Profile {
	var chars []*ble.Characteristic

	for i := 0; i < 7; i++ {
		chars = append(chars, &ble.Characteristic{UUID: ble.UUID16(uint16(0x2a00 + i)), Property: ble.CharRead})
	}

	return &ble.Profile{Services: []*ble.Service{{UUID: ble.UUID16(0x1800), Characteristics: chars}}}
}

// behaviour of one fake device.
type fakeNode struct {
	dialErr    error
	profileErr error
	profile    *ble.Profile
	value      []byte
	readErr    error
	// blocks ReadCharacteristic until the connection is cancelled.
	hang bool
}

type fakeConn struct {
	node     fakeNode
	dialer   *fakeDialer
	released chan struct{}
	once     sync.Once
}

func (c *fakeConn) DiscoverProfile(bool) (*ble.Profile, error) {
	if c.node.profileErr != nil {
		return nil, c.node.profileErr
	}

	if c.node.profile != nil {
		return c.node.profile, nil
	}

	return nodeProfile(), nil
}

func (c *fakeConn) ReadCharacteristic(*ble.Characteristic) ([]byte, error) {
	c.dialer.enterRead()
	defer c.dialer.leaveRead()

	if c.node.hang {
		<-c.released
		return nil, errTransport
	}

	return c.node.value, c.node.readErr
}

func (c *fakeConn) CancelConnection() error {
	c.dialer.cancels.Add(1)
	c.once.Do(func() { close(c.released) })

	return nil
}

// fakeDialer connects one device at a time, like the adapter does, and tracks how many
// reads are in flight on the connections it hands out.
type fakeDialer struct {
	nodes map[string]fakeNode

	dials   atomic.Int32
	cancels atomic.Int32

	dialing sync.Mutex

	mu       sync.Mutex
	inFlight int
	maxSeen  int
	// held open per read to observe parallelism.
	delay time.Duration
}

func (d *fakeDialer) Dial(ctx context.Context, h device.Handle) (device.Conn, error) {
	d.dialing.Lock()
	defer d.dialing.Unlock()

	d.dials.Add(1)

	node := d.nodes[h.Address]

	if node.dialErr != nil {
		return nil, node.dialErr
	}

	return &fakeConn{node: node, dialer: d, released: make(chan struct{})}, nil
}

func (d *fakeDialer) enterRead() {
	d.mu.Lock()
	d.inFlight += 1
	if d.inFlight > d.maxSeen {
		d.maxSeen = d.inFlight
	}
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}
}

func (d *fakeDialer) leaveRead() {
	d.mu.Lock()
	d.inFlight -= 1
	d.mu.Unlock()
}

type fakeScanner struct {
	handles []device.Handle
	err     error
	calls   atomic.Int32
}

func (s *fakeScanner) ScanByName(context.Context, string, time.Duration) ([]device.Handle, error) {
	s.calls.Add(1)

	return s.handles, s.err
}

type fakeRelay struct {
	mu        sync.Mutex
	delivered []relay.Envelope
	fail      func(relay.Envelope) error
}

func (r *fakeRelay) Deliver(_ context.Context, env relay.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.delivered = append(r.delivered, env)

	if r.fail != nil {
		return r.fail(env)
	}

	return nil
}

func (r *fakeRelay) Delivered() []relay.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]relay.Envelope(nil), r.delivered...)
}

type fakeHost struct{ snap host.Snapshot }

func (h fakeHost) Sample(context.Context) (host.Snapshot, error) { return h.snap, nil }

type fakeLocator struct{ loc geo.Location }

func (l fakeLocator) Resolve(context.Context) (geo.Location, error) { return l.loc, nil }

func handles(addrs ...string) (out []device.Handle) {
	for _, a := range addrs {
		out = append(out, device.Handle{Address: a})
	}

	return out
}
