package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"go.uber.org/zap"
)

// Model is the external object detector. Records use the model's own schema.
type Model interface {
	Detect(ctx context.Context, image []byte) ([]map[string]any, error)
}

// cocoClasses maps the COCO ids the detector emits for road users.
var cocoClasses = map[int]models.ObjectClass{
	0: models.ClassPedestrian,
	1: models.ClassBicycle,
	2: models.ClassCar,
	3: models.ClassMotorcycle,
	5: models.ClassBus,
	7: models.ClassTruck,
}

var classNames = map[string]models.ObjectClass{
	"car":        models.ClassCar,
	"motorcycle": models.ClassMotorcycle,
	"motorbike":  models.ClassMotorcycle,
	"bus":        models.ClassBus,
	"truck":      models.ClassTruck,
	"bicycle":    models.ClassBicycle,
	"person":     models.ClassPedestrian,
	"pedestrian": models.ClassPedestrian,
}

type Adapter struct {
	model         Model
	minConfidence float64
	timeout       time.Duration
	logger        *zap.Logger
}

func NewAdapter(model Model, minConfidence float64, timeout time.Duration, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		model:         model,
		minConfidence: minConfidence,
		timeout:       timeout,
		logger:        logger,
	}
}

// Classify runs the model on one frame. Failures never reach the caller:
// they produce an empty, degraded result.
func (a *Adapter) Classify(ctx context.Context, frame models.Frame) (result models.DetectionResult) {
	if a.model == nil {
		return models.DetectionResult{Degraded: true}
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Classifier panic",
				zap.String("camera_id", frame.CameraID),
				zap.Any("panic", r))
			result = models.DetectionResult{Degraded: true}
		}
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	raw, err := a.model.Detect(ctx, frame.Image)
	if err != nil {
		a.logger.Warn("Classifier unavailable, continuing with motion only",
			zap.String("camera_id", frame.CameraID),
			zap.Uint64("seq", frame.Seq),
			zap.Error(err))
		return models.DetectionResult{Degraded: true}
	}

	result.Detections = make([]models.Detection, 0, len(raw))
	for _, record := range raw {
		det, err := Normalize(record)
		if err != nil {
			a.logger.Debug("Skipping unmappable detection", zap.Error(err))
			continue
		}
		if det.Confidence < a.minConfidence {
			continue
		}
		result.Detections = append(result.Detections, det)
	}
	return result
}

// Normalize maps one raw model record onto a Detection. Records of classes
// outside the road-user set are rejected.
func Normalize(record map[string]any) (models.Detection, error) {
	class, err := recordClass(record)
	if err != nil {
		return models.Detection{}, err
	}

	conf, ok := firstNumber(record, "confidence", "conf", "score")
	if !ok || conf < 0 || conf > 1 {
		return models.Detection{}, fmt.Errorf("invalid confidence in %v", record)
	}

	box, err := recordBox(record)
	if err != nil {
		return models.Detection{}, err
	}

	return models.Detection{Class: class, Box: box, Confidence: conf}, nil
}

func recordClass(record map[string]any) (models.ObjectClass, error) {
	for _, key := range []string{"class", "label", "name", "class_name"} {
		v, exists := record[key]
		if !exists {
			continue
		}
		if s, isString := v.(string); isString {
			if class, known := classNames[strings.ToLower(strings.TrimSpace(s))]; known {
				return class, nil
			}
			if id, err := strconv.Atoi(s); err == nil {
				return cocoClass(id)
			}
			return "", fmt.Errorf("irrelevant class %q", s)
		}
		if n, isNumber := toFloat(v); isNumber {
			return cocoClass(int(n))
		}
	}

	if n, ok := firstNumber(record, "class_id", "cls"); ok {
		return cocoClass(int(n))
	}

	return "", fmt.Errorf("no class in %v", record)
}

func cocoClass(id int) (models.ObjectClass, error) {
	if class, ok := cocoClasses[id]; ok {
		return class, nil
	}
	return "", fmt.Errorf("irrelevant class id %d", id)
}

func recordBox(record map[string]any) (models.BoundingBox, error) {
	for _, key := range []string{"bbox", "box", "xyxy"} {
		v, exists := record[key]
		if !exists {
			continue
		}
		switch b := v.(type) {
		case []any:
			return boxFromSlice(b)
		case []float64:
			values := make([]any, len(b))
			for i, n := range b {
				values[i] = n
			}
			return boxFromSlice(values)
		case map[string]any:
			return boxFromMap(b)
		}
	}
	return models.BoundingBox{}, fmt.Errorf("no box in %v", record)
}

func boxFromSlice(values []any) (models.BoundingBox, error) {
	if len(values) != 4 {
		return models.BoundingBox{}, fmt.Errorf("box needs 4 values, got %d", len(values))
	}
	var xyxy [4]float64
	for i, v := range values {
		n, ok := toFloat(v)
		if !ok {
			return models.BoundingBox{}, fmt.Errorf("non-numeric box value %v", v)
		}
		xyxy[i] = n
	}
	return validBox(models.BoundingBox{X1: xyxy[0], Y1: xyxy[1], X2: xyxy[2], Y2: xyxy[3]})
}

func boxFromMap(m map[string]any) (models.BoundingBox, error) {
	if x1, ok := firstNumber(m, "x1"); ok {
		y1, ok1 := firstNumber(m, "y1")
		x2, ok2 := firstNumber(m, "x2")
		y2, ok3 := firstNumber(m, "y2")
		if ok1 && ok2 && ok3 {
			return validBox(models.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2})
		}
	}

	x, okX := firstNumber(m, "x")
	y, okY := firstNumber(m, "y")
	w, okW := firstNumber(m, "width", "w")
	h, okH := firstNumber(m, "height", "h")
	if okX && okY && okW && okH {
		return validBox(models.BoundingBox{X1: x, Y1: y, X2: x + w, Y2: y + h})
	}

	return models.BoundingBox{}, fmt.Errorf("unrecognized box %v", m)
}

func validBox(b models.BoundingBox) (models.BoundingBox, error) {
	if b.X2 < b.X1 || b.Y2 < b.Y1 {
		return models.BoundingBox{}, fmt.Errorf("inverted box %+v", b)
	}
	return b, nil
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, exists := m[key]; exists {
			if n, ok := toFloat(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
