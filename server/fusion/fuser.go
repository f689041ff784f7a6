package fusion

import (
	"math"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
)

// Fuser combines motion and detections into a single confidence in
// [0,100]. It holds no state; the caller supplies the previous frame's
// detections.
type Fuser struct {
	cfg                config.FusionConfig
	candidateThreshold float64
}

func NewFuser(cfg config.FusionConfig, candidateThreshold float64) *Fuser {
	return &Fuser{cfg: cfg, candidateThreshold: candidateThreshold}
}

func (f *Fuser) Fuse(motion models.MotionScore, current, previous models.DetectionResult) models.FusedScore {
	fused := models.FusedScore{
		CameraID:  motion.CameraID,
		Timestamp: motion.Timestamp,
		Motion:    motion.Intensity,
		Degraded:  current.Degraded,
	}

	score := f.cfg.MotionWeight * motion.Intensity

	if !current.Degraded {
		for _, d := range current.Detections {
			scale := 1.0
			if !d.Class.IsVehicle() {
				scale = f.cfg.PedestrianScale
			}
			score += f.cfg.DetectionWeight * d.Confidence * scale
		}

		vehicles := current.Vehicles()
		fused.VehicleCount = len(vehicles)
		fused.Vehicles = vehicles
		if f.collisionGeometry(vehicles, previous) {
			fused.OverlapBonus = true
			score += f.cfg.OverlapBonus
		}
	}

	fused.Confidence = clamp(score, 0, 100)
	if fused.Confidence >= f.candidateThreshold {
		fused.Classification = models.ClassificationCollisionCandidate
	} else {
		fused.Classification = models.ClassificationNone
	}
	return fused
}

// collisionGeometry reports whether two or more vehicles overlap enough, or
// whether the closest pair's separation jumped relative to the last frame.
func (f *Fuser) collisionGeometry(vehicles []models.Detection, previous models.DetectionResult) bool {
	if len(vehicles) < 2 {
		return false
	}

	for i := 0; i < len(vehicles); i++ {
		for j := i + 1; j < len(vehicles); j++ {
			if vehicles[i].Box.IoU(vehicles[j].Box) >= f.cfg.OverlapIoU {
				return true
			}
		}
	}

	if previous.Degraded || f.cfg.RelativeShift <= 0 {
		return false
	}
	prevVehicles := previous.Vehicles()
	if len(prevVehicles) < 2 {
		return false
	}

	cur, okCur := closestPairDistance(vehicles)
	prev, okPrev := closestPairDistance(prevVehicles)
	if !okCur || !okPrev {
		return false
	}
	return math.Abs(cur-prev) >= f.cfg.RelativeShift
}

// closestPairDistance returns the smallest centre distance between two
// vehicles, in units of the pair's mean box diagonal.
func closestPairDistance(vehicles []models.Detection) (float64, bool) {
	best := math.Inf(1)
	for i := 0; i < len(vehicles); i++ {
		for j := i + 1; j < len(vehicles); j++ {
			a, b := vehicles[i].Box, vehicles[j].Box
			scale := (a.Diagonal() + b.Diagonal()) / 2
			if scale <= 0 {
				continue
			}
			ax, ay := a.Center()
			bx, by := b.Center()
			if d := math.Hypot(ax-bx, ay-by) / scale; d < best {
				best = d
			}
		}
	}
	return best, !math.IsInf(best, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
