package pipeline

import (
	"math"

	"github.com/banshee-data/proximity.report/internal/radar/detect"
)

// Channel capacities. The uplink is deep enough to ride out a slow consumer
// for a few seconds of frames; the downlink stays shallow because controls
// are coalesced anyway.
const (
	UplinkCapacity   = 40
	DownlinkCapacity = 4
)

// Control is one message from the application side to the processing loop:
// platform motion rates from the IMU and, optionally, a new sensitivity.
type Control struct {
	RateX float64
	RateY float64

	Sensitivity    float64
	HasSensitivity bool
}

// Distributor carries detections out of the processing loop and controls
// into it. The processing side calls PublishDetections and NextControl; the
// application side calls SendControl and reads Detections. Both sides may be
// in different goroutines; the channels are the only shared state besides
// the loop-owned coalescing registers.
type Distributor struct {
	uplink   chan []detect.Detection
	downlink chan Control

	// Coalescing registers, owned by the processing loop.
	rateX       float64
	rateY       float64
	sensitivity float64
}

// NewDistributor creates a distributor with the neutral sensitivity.
func NewDistributor() *Distributor {
	return &Distributor{
		uplink:      make(chan []detect.Detection, UplinkCapacity),
		downlink:    make(chan Control, DownlinkCapacity),
		sensitivity: 0.5,
	}
}

// Detections is the application-side receive channel. A closed channel means
// the processing loop has shut down.
func (d *Distributor) Detections() <-chan []detect.Detection { return d.uplink }

// SendControl queues a control message without blocking. When the downlink
// is full the message is dropped; rates are refreshed continuously and the
// next one supersedes it.
func (d *Distributor) SendControl(c Control) bool {
	select {
	case d.downlink <- c:
		return true
	default:
		return false
	}
}

// PublishDetections sends one frame's detections to the application side,
// blocking when the uplink is full so detections are never silently lost.
func (d *Distributor) PublishDetections(ds []detect.Detection) {
	d.uplink <- ds
}

// CloseUplink signals the application side that no more detections will
// arrive. Processing-loop side only.
func (d *Distributor) CloseUplink() { close(d.uplink) }

// NextControl drains all pending control messages and returns the coalesced
// motion rates and current sensitivity for this cycle. Rate magnitudes decay
// by half each cycle and pending messages raise them to their running
// maximum, so a burst of IMU updates widens the motion estimate rather than
// thrashing it. Processing-loop side only.
func (d *Distributor) NextControl() (rateX, rateY, sensitivity float64) {
	d.rateX /= 2
	d.rateY /= 2

	for {
		select {
		case c := <-d.downlink:
			d.rateX = math.Max(d.rateX, math.Abs(c.RateX))
			d.rateY = math.Max(d.rateY, math.Abs(c.RateY))
			if c.HasSensitivity {
				d.sensitivity = c.Sensitivity
			}
		default:
			return d.rateX, d.rateY, d.sensitivity
		}
	}
}
