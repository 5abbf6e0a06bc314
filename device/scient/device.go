package scient

import (
  "fmt"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog/log"
  "github.com/scient-labs/scient-gateway/device"
)

const (
  DefaultTargetName = "Scient BLE Node"

  // Position of the telemetry characteristic in the node firmware's attribute table.
  DefaultAttributeIndex = 6
)

type Device struct {
  name string
  index int

  // optional; when set the characteristic is looked up by UUID before falling back to index.
  uuid ble.UUID
}

func New(name string, index int, uuid ble.UUID) *Device {
  if name == "" {
    name = DefaultTargetName
  }

  return &Device{
    name: name,
    index: index,
    uuid: uuid,
  }
}

func (d *Device) TargetName() string {
  return d.name
}

func (d *Device) String() string {
  if d.uuid != nil {
    return fmt.Sprintf("scient[name=%q, uuid=%v, index=%d]", d.name, d.uuid, d.index)
  }

  return fmt.Sprintf("scient[name=%q, index=%d]", d.name, d.index)
}

func characteristics(p *ble.Profile) (out []*ble.Characteristic) {
  if p == nil {
    return nil
  }

  for _, svc := range p.Services {
    out = append(out, svc.Characteristics...)
  }

  return out
}

func readable(c *ble.Characteristic) bool {
  return c.Property & ble.CharRead != 0
}

// locate resolves the telemetry characteristic: by UUID when configured and exposed by the
// device, by attribute table position otherwise.
func (d *Device) locate(chars []*ble.Characteristic) (*ble.Characteristic, error) {
  if len(chars) == 0 {
    return nil, device.ErrNoAttributes
  }

  if d.uuid != nil {
    for _, c := range chars {
      if c.UUID.Equal(d.uuid) {
        if !readable(c) {
          return nil, fmt.Errorf("%w: characteristic %v does not support read",
            device.ErrNoAttributes, c.UUID)
        }

        return c, nil
      }
    }

    log.Debug().
      Stringer("UUID", d.uuid).
      Int("Index", d.index).
      Msg("scient: characteristic UUID not exposed by device, falling back to index")
  }

  if d.index < 0 || d.index >= len(chars) {
    return nil, fmt.Errorf("%w: attribute index %d out of range (device has %d)",
      device.ErrNoAttributes, d.index, len(chars))
  }

  c := chars[d.index]

  if !readable(c) {
    return nil, fmt.Errorf("%w: attribute %d (%v) does not support read",
      device.ErrNoAttributes, d.index, c.UUID)
  }

  return c, nil
}

// Read discovers the device's attributes, reads the telemetry characteristic and parses it.
// The returned reading carries no address; the caller owns the connection.
func (d *Device) Read(c device.Conn) (r device.Reading, err error) {
  p, err := c.DiscoverProfile(true)

  if err != nil {
    return r, fmt.Errorf("%w: cannot discover profile: %w", device.ErrRead, err)
  }

  char, err := d.locate(characteristics(p))

  if err != nil {
    return r, err
  }

  data, err := c.ReadCharacteristic(char)

  if err != nil {
    return r, fmt.Errorf("%w: failed to read characteristic %v: %w", device.ErrRead, char.UUID, err)
  }

  log.Trace().
    Stringer("UUID", char.UUID).
    Hex("Data", data).
    Msg("scient: read telemetry characteristic")

  if len(data) == 0 || data[0] == 0 {
    return r, device.ErrNullPayload
  }

  return Parse(data)
}
