package ble

import (
  "context"
  "fmt"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/semaphore"
)

type Advertisement = ble.Advertisement

type Handle struct {
  dev *linux.Device

  // indirections over dev so scanning and dialing can be exercised without an adapter.
  scan func(ctx context.Context, allowDup bool, h ble.AdvHandler) error
  dial func(ctx context.Context, a ble.Addr) (ble.Client, error)
  setConnParams func(p cmd.LECreateConnection) error

  connParams ConnParams

  // the controller accepts a single pending LE Create Connection and the HCI layer keeps one
  // set of connection parameters, so connection setup is serialized.
  dialing *semaphore.Weighted
}

func newHandle(
  dev *linux.Device,
  connParams ConnParams,
  scan func(ctx context.Context, allowDup bool, h ble.AdvHandler) error,
  dial func(ctx context.Context, a ble.Addr) (ble.Client, error),
  setConnParams func(p cmd.LECreateConnection) error,
) *Handle {
  return &Handle{
    dev: dev,
    scan: scan,
    dial: dial,
    setConnParams: setConnParams,
    connParams: connParams,
    dialing: semaphore.NewWeighted(1),
  }
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    successfulConnectionsCounter,
    failedConnectionsCounter,
    disconnectsCounter,
    scansCounter,
  )
}

func Init(deviceId int, flags Flags) (*Handle, error) {
  return InitWithConnParams(
    deviceId,
    ConnParamsDefault,
    flags,
  )
}

func InitWithConnParams(deviceId int, connParams ConnParams, flags Flags) (*Handle, error) {
  var scanType scanType = scanTypePassive

  if flags & FlagScanTypeActive == FlagScanTypeActive {
    scanType = scanTypeActive
  }

  log.Debug().
    Stringer("ScanType", scanType).
    Stringer("ConnParams", &connParams).
    Stringer("Flags", flags).
    Int("DeviceID", deviceId).
    Msg("Initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(cmd.LESetScanParameters{
      LEScanType:           uint8(scanType), // 0x00: passive, 0x01: active
      LEScanInterval:       0x0010,          // 0x0004 - 0x4000; N * 0.625msec
      LEScanWindow:         0x0010,          // 0x0004 - 0x4000; N * 0.625msec
      OwnAddressType:       0x00,            // 0x00: public, 0x01: random
      ScanningFilterPolicy: 0x00,            // 0x00: accept all
    }),
    ble.OptConnParams(connParams.AdapterOptions()),
  )

  if err != nil {
    return nil, fmt.Errorf("failed to init bluetooth device: %w", err)
  }

  ble.SetDefaultDevice(dev)

  return newHandle(dev, connParams, dev.Scan, dev.Dial, dev.HCI.SetConnParams), nil
}

func (h *Handle) Stop() {
  if h.dev != nil {
    h.dev.Stop()
  }
}
