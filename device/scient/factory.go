package scient

import (
  "fmt"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog/log"
  "github.com/scient-labs/scient-gateway/device"
)

type Factory struct{}

func (f *Factory) FromSpec(spec device.DeviceSpec) (device.Model, error) {
  index, err := spec.Index(DefaultAttributeIndex)
  if err != nil {
    return nil, fmt.Errorf("invalid index: %w", err)
  }

  if index < 0 {
    return nil, fmt.Errorf("invalid index %d: must not be negative", index)
  }

  var uuid ble.UUID

  if s := spec.UUID(); s != "" {
    if uuid, err = ble.Parse(s); err != nil {
      return nil, fmt.Errorf("invalid uuid: %w", err)
    }
  }

  d := New(spec.Name(), index, uuid)

  log.Debug().Stringer("Model", d).Msg("scient: configured node model")

  return d, nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
name (string): Complete local name advertised by the nodes (default "Scient BLE Node")
index (int): Position of the telemetry characteristic in the attribute table (default 6)
uuid (string): UUID of the telemetry characteristic. Looked up first, index is the fallback.`
}
