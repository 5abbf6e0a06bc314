package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/scient-labs/scient-gateway/ble"
)

type discoveredDevice struct {
  name string
  connectable bool
  services []string
}

// mergeAdvertisement folds one advertisement into what is known about its sender.
func mergeAdvertisement(devices map[string]discoveredDevice, a ble.Advertisement) {
  services := make(map[string]bool)

  for _, uuid := range a.Services() {
    services[uuid.String()] = true
  }

  info, ok := devices[a.Addr().String()]

  if ok {
    if info.name == "" {
      info.name = a.LocalName()
    }

    for _, uuid := range info.services {
      services[uuid] = true
    }
  } else {
    info.name = a.LocalName()
  }

  info.connectable = a.Connectable()
  info.services = maps.Keys(services)

  devices[a.Addr().String()] = info
}

func doDeviceDiscovery(cfg config) {
  target := cfg.Node.TargetName()

  log.Info().
    Str("TargetName", target).
    Msg("Starting in device discovery mode - collecting devices for 5 seconds...")

  handle, err := ble.Init(cfg.BluetoothDeviceId, ble.FlagScanTypeActive)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      5 * time.Second,
    ),
  )

  devices := make(map[string]discoveredDevice)

  err = handle.ScanAll(ctx, func(a ble.Advertisement) {
    mergeAdvertisement(devices, a)

    log.Debug().
      Str("Addr", a.Addr().String()).
      Str("Name", a.LocalName()).
      Bool("Connectable", a.Connectable()).
      Int("RSSI", a.RSSI()).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("Received device advertisement")
  })

  if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  log.Info().Int("Found", len(devices)).Msg("Finished device discovery")

  for addr, data := range devices {
    log.Info().
      Str("Addr", addr).
      Str("Name", data.name).
      Bool("Connectable", data.connectable).
      Bool("Target", data.name == target).
      Strs("Services", data.services).
      Msg("Found device")
  }
}
