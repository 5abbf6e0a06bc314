package device

import (
  "strconv"
  "strings"

  "github.com/rs/zerolog/log"
)

type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldIndex = "index"
  DeviceSpecFieldUUID = "uuid"
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

func (ds DeviceSpec) UUID() string {
  return ds[DeviceSpecFieldUUID]
}

// Index returns the positional attribute index, or def when the spec does not set one.
func (ds DeviceSpec) Index(def int) (int, error) {
  v, ok := ds[DeviceSpecFieldIndex]

  if !ok || v == "" {
    return def, nil
  }

  return strconv.Atoi(v)
}
