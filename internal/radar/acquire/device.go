// Package acquire runs the sensor-facing half of the tracker: it pulls raw
// frames from a radar device, packs them, and publishes them into the
// shared-memory slot for the compute process. It also owns device recovery
// and the realtime scheduling setup.
package acquire

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrDeviceGone signals an unrecoverable device read; the supervisor reacts
// by tearing the device down and reinitializing it.
var ErrDeviceGone = errors.New("radar device gone")

// Device is one attached radar sensor. Implementations are not safe for
// concurrent use; the supervisor serializes all calls.
type Device interface {
	// Start begins frame acquisition.
	Start() error
	// Stop halts acquisition but keeps the device open.
	Stop() error
	// NextFrame blocks until one complete frame is available and returns
	// its packed 12-bit payload. The returned slice is only valid until the
	// next call.
	NextFrame() ([]byte, error)
	// Close releases the device. A closed device cannot be restarted;
	// recovery goes through the factory.
	Close() error
}

// DeviceFactory opens a fresh device handle. The supervisor calls it at
// startup and again after every unrecoverable device error.
type DeviceFactory func() (Device, error)

// RealtimePriority is the SCHED_FIFO priority the acquisition loop requests.
// Frame pacing comes from the sensor; missing a slot wakeup drops a frame.
const RealtimePriority = 10

// SetRealtimePriority moves the calling process onto the SCHED_FIFO
// scheduler. Requires CAP_SYS_NICE; callers treat failure as a warning, not
// a fatal error, so development machines still work.
func SetRealtimePriority(priority int) error {
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	return unix.SchedSetAttr(0, attr, 0)
}
