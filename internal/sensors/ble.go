package sensors

import (
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/rucktrack/sessionkit/internal/model"
	"github.com/rucktrack/sessionkit/internal/monitoring"
)

var (
	serviceHeartRate = bluetooth.ServiceUUIDHeartRate
	charHeartRate    = bluetooth.CharacteristicUUIDHeartRateMeasurement
)

const bleScanTimeout = 15 * time.Second

// BLEHeartRateSource reads heart rate from a Bluetooth LE strap advertising
// the standard Heart Rate service.
type BLEHeartRateSource struct {
	adapter *bluetooth.Adapter
	device  *bluetooth.Device
	ch      chan model.HeartRateSample

	mu     sync.Mutex
	paused bool
}

func NewBLEHeartRateSource() *BLEHeartRateSource {
	return &BLEHeartRateSource{
		adapter: bluetooth.DefaultAdapter,
		ch:      make(chan model.HeartRateSample, 64),
	}
}

// Start scans for a heart rate strap, connects, and subscribes to
// measurement notifications. Blocks up to the scan timeout.
func (s *BLEHeartRateSource) Start() error {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("bluetooth enable: %w", err)
	}

	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.HasServiceUUID(serviceHeartRate) {
				monitoring.Logf("ble: found heart rate device %s", result.LocalName())
				adapter.StopScan()
				found <- result
			}
		})
		if err != nil {
			monitoring.Logf("ble: scan error: %v", err)
		}
	}()

	var result bluetooth.ScanResult
	select {
	case result = <-found:
	case <-time.After(bleScanTimeout):
		s.adapter.StopScan()
		return fmt.Errorf("no heart rate device found within %s", bleScanTimeout)
	}

	device, err := s.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect %s: %w", result.LocalName(), err)
	}
	ptr := new(bluetooth.Device)
	*ptr = device
	s.device = ptr

	services, err := s.device.DiscoverServices([]bluetooth.UUID{serviceHeartRate})
	if err != nil || len(services) == 0 {
		return fmt.Errorf("discover heart rate service: %w", err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charHeartRate})
	if err != nil || len(chars) == 0 {
		return fmt.Errorf("discover heart rate characteristic: %w", err)
	}

	return chars[0].EnableNotifications(func(buf []byte) {
		bpm := parseHeartRate(buf)
		if bpm <= 0 {
			return
		}
		s.mu.Lock()
		paused := s.paused
		s.mu.Unlock()
		if paused {
			return
		}
		select {
		case s.ch <- model.HeartRateSample{BPM: bpm, Timestamp: time.Now().UTC()}:
		default:
			// Consumer is behind; drop rather than block the BLE stack.
		}
	})
}

// Pause drops notifications without disconnecting the strap, so Resume
// needs no rescan.
func (s *BLEHeartRateSource) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *BLEHeartRateSource) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

func (s *BLEHeartRateSource) Stop() error {
	if s.device != nil {
		if err := s.device.Disconnect(); err != nil {
			monitoring.Logf("ble: disconnect: %v", err)
		}
		s.device = nil
	}
	close(s.ch)
	return nil
}

func (s *BLEHeartRateSource) Samples() <-chan model.HeartRateSample {
	return s.ch
}

// parseHeartRate decodes a Heart Rate Measurement value. Bit 0 of the flags
// byte selects an 8-bit or 16-bit heart rate field.
func parseHeartRate(buf []byte) int {
	if len(buf) < 2 {
		return 0
	}
	if buf[0]&0x01 != 0 {
		if len(buf) < 3 {
			return 0
		}
		return int(uint16(buf[1]) | uint16(buf[2])<<8)
	}
	return int(buf[1])
}
