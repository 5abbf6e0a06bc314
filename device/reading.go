package device

import (
  "fmt"
)

// Reading is one parsed telemetry sample. Measurements are kept as the decimal tokens sent
// by the device so precision and formatting survive untouched.
type Reading struct {
  Address string

  Temperature string
  Pressure string
  Humidity string
  Gas string
}

func (r Reading) String() string {
  return fmt.Sprintf("Reading[Addr=%v,Temperature=%v,Pressure=%v,Humidity=%v,Gas=%v]",
    r.Address, r.Temperature, r.Pressure, r.Humidity, r.Gas)
}

// Fields returns the measurements in wire order: temperature, pressure, humidity, gas.
func (r Reading) Fields() []string {
  return []string{r.Temperature, r.Pressure, r.Humidity, r.Gas}
}
