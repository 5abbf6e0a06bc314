package scient

import (
  "strings"

  "github.com/pkg/errors"
  "github.com/scient-labs/scient-gateway/device"
)

const (
  labelTemperature = "T:"
  labelPressure = "P:"
  labelHumidity = "H:"
  labelGas = "G:"

  escapedNewline = `\n`
  escapedCarriageReturn = `\r`
)

// wire order, also the order values are assigned in.
var labels = []string{labelTemperature, labelPressure, labelHumidity, labelGas}

// Parse isolates the telemetry payload from a raw attribute value and parses it.
//
// The node firmware sends `T:<val>;P:<val>;H:<val>;G:<val>;` terminated by a newline, which
// some firmware revisions print in its escaped two-character form. Anything after the first
// terminator is ignored.
func Parse(raw []byte) (reading device.Reading, err error) {
  payload, err := extractPayload(raw)

  if err != nil {
    return reading, err
  }

  return ParsePayload(payload)
}

func extractPayload(raw []byte) (string, error) {
  s := string(raw)
  end := strings.IndexByte(s, '\n')

  if esc := strings.Index(s, escapedNewline); esc >= 0 && (end < 0 || esc < end) {
    end = esc
  }

  if end < 0 {
    return "", errors.Wrapf(device.ErrParse, "no line terminator in attribute value %q", s)
  }

  payload := strings.TrimSuffix(s[:end], escapedCarriageReturn)
  payload = strings.Trim(payload, " \t\r\x00\"'")

  if !strings.HasPrefix(payload, labelTemperature) {
    return "", errors.Wrapf(device.ErrParse, "payload %q does not start with %q",
      payload, labelTemperature)
  }

  return payload, nil
}

// ParsePayload parses an isolated `T:..;P:..;H:..;G:..;` payload. Labels are stripped and the
// remaining values are assigned by position, not by label.
func ParsePayload(payload string) (reading device.Reading, err error) {
  stripped := payload

  for _, label := range labels {
    if !strings.Contains(payload, label) {
      return reading, errors.Wrapf(device.ErrParse, "missing label %q in payload %q",
        label, payload)
    }

    stripped = strings.ReplaceAll(stripped, label, "")
  }

  var values []string

  for _, part := range strings.Split(stripped, ";") {
    if part = strings.TrimSpace(part); part != "" {
      values = append(values, part)
    }
  }

  if len(values) != len(labels) {
    return reading, errors.Wrapf(device.ErrParse, "want %d values, got %d in payload %q",
      len(labels), len(values), payload)
  }

  reading.Temperature = values[0]
  reading.Pressure = values[1]
  reading.Humidity = values[2]
  reading.Gas = values[3]

  return reading, nil
}
