package device

import (
  "errors"
  "fmt"
  "strings"

  "github.com/go-ble/ble"
)

var (
  // Could not establish a link with the device.
  ErrConnect = errors.New("connect failure")
  // The transport raised an error while discovering or reading attributes.
  ErrRead = errors.New("read failure")
  // The device exposes no (readable) telemetry attribute.
  ErrNoAttributes = errors.New("no attributes")
  // The device answered with its "no data" sentinel.
  ErrNullPayload = errors.New("null payload")
  // The attribute value does not match the telemetry payload format.
  ErrParse = errors.New("malformed payload")
)

type AddressType uint8

const (
  AddressPublic AddressType = iota
  AddressRandom
)

func (t AddressType) String() string {
  switch t {
  case AddressPublic:
    return "public"
  case AddressRandom:
    return "random"
  default:
    return fmt.Sprintf("unknown(%d)", uint8(t))
  }
}

// Handle addresses one device found during a scan. Handles are produced fresh every cycle.
type Handle struct {
  Address string
  AddressType AddressType
}

func (h Handle) String() string {
  return fmt.Sprintf("%s (%v)", strings.ToLower(h.Address), h.AddressType)
}

// Conn is the subset of a BLE client connection a device model needs. ble.Client satisfies it.
type Conn interface {
  DiscoverProfile(force bool) (*ble.Profile, error)
  ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
  CancelConnection() error
}

// Model describes a family of devices: how they advertise themselves and how their telemetry
// is read over an established connection.
type Model interface {
  TargetName() string
  Read(c Conn) (Reading, error)
  String() string
}
