package scient_test

import (
  "errors"
  "reflect"
  "testing"

  "github.com/scient-labs/scient-gateway/device"
  "github.com/scient-labs/scient-gateway/device/scient"
)

func TestParse_ReferencePayload(t *testing.T) {
  raw := []byte("T:24.5;P:1013;H:60;G:120;\n")

  got, err := scient.Parse(raw)

  if err != nil {
    t.Fatalf("Parse(%q) got error: %v", raw, err)
  }

  want := device.Reading{
    Temperature: "24.5",
    Pressure:    "1013",
    Humidity:    "60",
    Gas:         "120",
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Parse(%q): got %+#v, wanted %+#v", raw, got, want)
  }
}

func TestParse_RoundTrip(t *testing.T) {
  samples := [][4]string{
    {"24.5", "1013", "60", "120"},
    {"-3.25", "998.72", "100.00", "0"},
    {"0", "0", "0", "0"},
    {"21.437", "1001.2", "45.9", "98765.4321"},
    {"1e3", "+12", "007", ".5"},
  }

  for _, s := range samples {
    raw := []byte("T:" + s[0] + ";P:" + s[1] + ";H:" + s[2] + ";G:" + s[3] + ";\n")

    got, err := scient.Parse(raw)

    if err != nil {
      t.Fatalf("Parse(%q) got error: %v", raw, err)
    }

    if !reflect.DeepEqual(got.Fields(), s[:]) {
      t.Fatalf("Parse(%q): got %v, wanted %v", raw, got.Fields(), s)
    }
  }
}

func TestParse_WrapperVariants(t *testing.T) {
  want := []string{"24.5", "1013", "60", "120"}

  inputs := []string{
    // escaped terminator as printed by older firmware
    `T:24.5;P:1013;H:60;G:120;\n`,
    `T:24.5;P:1013;H:60;G:120;\r\n`,
    "T:24.5;P:1013;H:60;G:120;\r\n",
    // trailing garbage after the terminator is ignored
    "T:24.5;P:1013;H:60;G:120;\n\x00\x00\x00",
    "T:24.5;P:1013;H:60;G:120;\nT:1;P:2;H:3;G:4;\n",
    // quoting and whitespace artifacts
    "'T:24.5;P:1013;H:60;G:120;'\n",
    "  T: 24.5 ; P: 1013 ; H: 60 ; G: 120 ;  \n",
    // trailing separator is optional
    "T:24.5;P:1013;H:60;G:120\n",
  }

  for _, in := range inputs {
    got, err := scient.Parse([]byte(in))

    if err != nil {
      t.Fatalf("Parse(%q) got error: %v", in, err)
    }

    if !reflect.DeepEqual(got.Fields(), want) {
      t.Fatalf("Parse(%q): got %v, wanted %v", in, got.Fields(), want)
    }
  }
}

func TestParse_Malformed(t *testing.T) {
  inputs := []string{
    "",
    "\n",
    // no terminator
    "T:24.5;P:1013;H:60;G:120;",
    // missing prefix marker
    "P:1013;H:60;G:120;T:24.5;\n",
    "xT:24.5;P:1013;H:60;G:120;\n",
    // missing labels
    "T:24.5;1013;H:60;G:120;\n",
    "T:24.5;P:1013;H:60;120;\n",
    "T:24.5;P:1013;G:120;\n",
    // fewer than four values
    "T:24.5;P:;H:60;G:120;\n",
    "T:;P:;H:;G:;\n",
    "T:24.5;P:1013;H:60;G: ;\n",
    // more than four values
    "T:24.5;P:1013;H:60;G:120;5;\n",
  }

  for _, in := range inputs {
    got, err := scient.Parse([]byte(in))

    if !errors.Is(err, device.ErrParse) {
      t.Fatalf("Parse(%q): got error %v, wanted %v", in, err, device.ErrParse)
    }

    if !reflect.DeepEqual(got, device.Reading{}) {
      t.Fatalf("Parse(%q): got partial reading %+#v", in, got)
    }
  }
}

// Values are assigned by position once labels are stripped, so an empty field compensated by
// an extra unlabeled value shifts the remaining measurements.
func TestParsePayload_PositionalAssignment(t *testing.T) {
  payload := "T:;P:1013;H:60;G:120;7;"

  got, err := scient.ParsePayload(payload)

  if err != nil {
    t.Fatalf("ParsePayload(%q) got error: %v", payload, err)
  }

  want := device.Reading{
    Temperature: "1013",
    Pressure:    "60",
    Humidity:    "120",
    Gas:         "7",
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("ParsePayload(%q): got %+#v, wanted %+#v", payload, got, want)
  }
}
