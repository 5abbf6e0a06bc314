package ble

import (
  "fmt"
  "slices"

  "github.com/go-ble/ble/linux/hci/cmd"
)

type ConnParams string

const (
  ConnParamsDefault  ConnParams = "default"
  // Slower connection interval. Nodes on coin cells drop fewer links with it, at the cost of
  // a slower profile discovery.
  ConnParamsLowPower ConnParams = "low-power"
)

var allConnParams = []ConnParams{ConnParamsDefault, ConnParamsLowPower}

// *flag.Value
func (c *ConnParams) String() string {
  return string(*c)
}

func (c *ConnParams) Set(v string) error {
  if v == "" {
    *c = ConnParamsDefault
    return nil
  }

  p := ConnParams(v)

  if !slices.Contains(allConnParams, p) {
    return fmt.Errorf("unknown connection param %v (must be one of %v)", p, allConnParams)
  }

  *c = p
  return nil
}

func (c ConnParams) AdapterOptions() cmd.LECreateConnection {
  p := cmd.LECreateConnection{
    LEScanInterval:        0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
    LEScanWindow:          0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
    InitiatorFilterPolicy: 0x00,      // White list is not used
    PeerAddressType:       0x00,      // set per dial from the handle's address type
    PeerAddress:           [6]byte{}, //
    OwnAddressType:        0x00,      // Public Device Address
    ConnIntervalMin:       0x0018,    // 0x0006 - 0x0C80; N * 1.25 msec
    ConnIntervalMax:       0x0028,    // 0x0006 - 0x0C80; N * 1.25 msec
    ConnLatency:           0x0000,    // 0x0000 - 0x01F3; N * 1.25 msec
    SupervisionTimeout:    0x0190,    // 0x000A - 0x0C80; N * 10 msec
    MinimumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
    MaximumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
  }

  switch c {
  case ConnParamsDefault:
    break
  case ConnParamsLowPower:
    // interval max * (latency + 1) must stay below half the supervision timeout.
    p.ConnIntervalMin    = 0x0050 // 100ms
    p.ConnIntervalMax    = 0x00a0 // 200ms
    p.ConnLatency        = 0x0004
    p.SupervisionTimeout = 0x0320 // 8s
  default:
    panic("unknown Bluetooth connection param: " + c)
  }

  return p
}
