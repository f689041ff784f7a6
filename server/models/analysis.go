package models

import (
	"math"
	"time"
)

type Frame struct {
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
	Image     []byte    `json:"-"`
	Seq       uint64    `json:"seq"`
}

type MotionScore struct {
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
	Intensity float64   `json:"intensity"`
}

type ObjectClass string

const (
	ClassCar        ObjectClass = "car"
	ClassMotorcycle ObjectClass = "motorcycle"
	ClassBus        ObjectClass = "bus"
	ClassTruck      ObjectClass = "truck"
	ClassBicycle    ObjectClass = "bicycle"
	ClassPedestrian ObjectClass = "pedestrian"
)

// IsVehicle reports whether the class takes part in collision heuristics.
func (c ObjectClass) IsVehicle() bool {
	switch c {
	case ClassCar, ClassMotorcycle, ClassBus, ClassTruck, ClassBicycle:
		return true
	}
	return false
}

// BoundingBox is expressed in xyxy pixel coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b BoundingBox) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

func (b BoundingBox) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

func (b BoundingBox) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

func (b BoundingBox) Diagonal() float64 {
	return math.Hypot(b.Width(), b.Height())
}

// IoU returns the intersection-over-union of two boxes in [0,1].
func (b BoundingBox) IoU(o BoundingBox) float64 {
	ix := math.Min(b.X2, o.X2) - math.Max(b.X1, o.X1)
	iy := math.Min(b.Y2, o.Y2) - math.Max(b.Y1, o.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

type Detection struct {
	Class      ObjectClass `json:"class"`
	Box        BoundingBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// DetectionResult is the canonical classifier output. An empty Detections slice is
// valid; Degraded is set when the external classifier could not be consulted.
type DetectionResult struct {
	Detections []Detection `json:"detections"`
	Degraded   bool        `json:"degraded"`
}

func (r DetectionResult) Vehicles() []Detection {
	var out []Detection
	for _, d := range r.Detections {
		if d.Class.IsVehicle() {
			out = append(out, d)
		}
	}
	return out
}

type Classification string

const (
	ClassificationNone               Classification = "none"
	ClassificationCollisionCandidate Classification = "collision-candidate"
)

type FusedScore struct {
	CameraID       string         `json:"camera_id"`
	Timestamp      time.Time      `json:"timestamp"`
	Seq            uint64         `json:"seq"`
	Confidence     float64        `json:"confidence"`
	Classification Classification `json:"classification"`
	Motion         float64        `json:"motion"`
	VehicleCount   int            `json:"vehicle_count"`
	Vehicles       []Detection    `json:"vehicles,omitempty"`
	OverlapBonus   bool           `json:"overlap_bonus"`
	Degraded       bool           `json:"degraded"`
}
