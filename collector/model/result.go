package model

import (
	"fmt"

	"github.com/scient-labs/scient-gateway/device"
)

type Result struct {
  Reading device.Reading
  Error error
}

func (c Result) String() string {
  if c.Error != nil {
    return fmt.Sprintf("result:error(%v)", c.Error)
  } else {
    return fmt.Sprintf("result:success(%v)", c.Reading)
  }
}

// CycleResult holds one result per device handle of a cycle, in handle order.
type CycleResult []Result

// Readings returns the successful readings aligned with the handles, nil where the read failed.
func (c CycleResult) Readings() []*device.Reading {
  out := make([]*device.Reading, len(c))

  for i := range c {
    if c[i].Error == nil {
      reading := c[i].Reading
      out[i] = &reading
    }
  }

  return out
}

func (c CycleResult) Failed() (n int) {
  for _, r := range c {
    if r.Error != nil {
      n += 1
    }
  }

  return n
}
