package ble

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"
)

// Nordic UART Service, the usual carrier for the OTA frames.
const (
	DefaultServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	DefaultWriteUUID   = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	DefaultNotifyUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// Config identifies the peripheral and its OTA characteristics.
type Config struct {
	// Address is the peripheral address as printed by the adapter
	// (a MAC on Linux and Windows, a UUID on macOS)
	Address string

	ServiceUUID string
	WriteUUID   string
	NotifyUUID  string

	Options
}

// Dial enables adapter, waits until the peripheral at cfg.Address
// advertises, connects and subscribes to the notify characteristic.
// Pairing is not attempted.
func Dial(ctx context.Context, adapter *bluetooth.Adapter, cfg Config) (*Link, error) {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	if cfg.Address == "" {
		return nil, errors.New("ble: address is required")
	}

	svcUUID, err := parseUUID(cfg.ServiceUUID, DefaultServiceUUID)
	if err != nil {
		return nil, err
	}
	writeUUID, err := parseUUID(cfg.WriteUUID, DefaultWriteUUID)
	if err != nil {
		return nil, err
	}
	notifyUUID, err := parseUUID(cfg.NotifyUUID, DefaultNotifyUUID)
	if err != nil {
		return nil, err
	}

	if err := adapter.Enable(); err != nil {
		return nil, errors.Wrap(err, "ble: enable adapter")
	}

	addr, err := find(ctx, adapter, cfg.Address)
	if err != nil {
		return nil, err
	}

	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, errors.Wrapf(err, "ble: connect %s", cfg.Address)
	}

	writeChar, notifyChar, err := discover(device, svcUUID, writeUUID, notifyUUID)
	if err != nil {
		_ = device.Disconnect()
		return nil, err
	}

	link := NewLink(writeChar, cfg.Options)
	link.close = device.Disconnect

	if err := notifyChar.EnableNotifications(func(value []byte) {
		buf := make([]byte, len(value))
		copy(buf, value)
		link.Notify(buf)
	}); err != nil {
		_ = device.Disconnect()
		return nil, errors.Wrap(err, "ble: enable notifications")
	}

	return link, nil
}

// find scans until addr advertises or ctx is done.
func find(ctx context.Context, adapter *bluetooth.Adapter, addr string) (bluetooth.Address, error) {
	found := make(chan bluetooth.Address, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !strings.EqualFold(result.Address.String(), addr) {
				return
			}
			select {
			case found <- result.Address:
			default:
			}
			_ = a.StopScan()
		})
	}()

	select {
	case a := <-found:
		<-scanErr
		return a, nil
	case err := <-scanErr:
		select {
		case a := <-found:
			return a, nil
		default:
		}
		if err == nil {
			err = errors.New("scan stopped")
		}
		return bluetooth.Address{}, errors.Wrapf(err, "ble: %s not found", addr)
	case <-ctx.Done():
		_ = adapter.StopScan()
		<-scanErr
		return bluetooth.Address{}, errors.Wrapf(ctx.Err(), "ble: %s not found", addr)
	}
}

func discover(device bluetooth.Device, svc, write, notify bluetooth.UUID) (bluetooth.DeviceCharacteristic, bluetooth.DeviceCharacteristic, error) {
	var writeChar, notifyChar bluetooth.DeviceCharacteristic

	services, err := device.DiscoverServices([]bluetooth.UUID{svc})
	if err != nil {
		return writeChar, notifyChar, errors.Wrap(err, "ble: discover services")
	}
	if len(services) == 0 {
		return writeChar, notifyChar, errors.Errorf("ble: service %s not found", svc.String())
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{write, notify})
	if err != nil {
		return writeChar, notifyChar, errors.Wrap(err, "ble: discover characteristics")
	}

	var foundWrite, foundNotify bool
	for _, c := range chars {
		switch c.UUID() {
		case write:
			writeChar, foundWrite = c, true
		case notify:
			notifyChar, foundNotify = c, true
		}
	}
	if !foundWrite || !foundNotify {
		return writeChar, notifyChar, errors.New("ble: required characteristic missing")
	}
	return writeChar, notifyChar, nil
}

func parseUUID(s, fallback string) (bluetooth.UUID, error) {
	if s == "" {
		s = fallback
	}
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		return bluetooth.UUID{}, errors.Wrapf(err, "ble: uuid %q", s)
	}
	return u, nil
}
