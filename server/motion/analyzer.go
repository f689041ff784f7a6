package motion

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrFrameTooLarge = errors.New("frame dimensions exceed limit")
)

const defaultMaxPixels = 4096 * 4096

// Grid is a downsampled luma view of a frame, row-major, values in [0,255].
type Grid struct {
	Size  int
	Cells []float64
}

type Analyzer struct {
	gridSize   int
	noiseFloor float64
	maxPixels  int
	logger     *zap.Logger
}

func NewAnalyzer(cfg config.MotionConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.GridSize
	if size < 2 {
		size = 32
	}
	maxPixels := cfg.MaxPixels
	if maxPixels <= 0 {
		maxPixels = defaultMaxPixels
	}
	return &Analyzer{
		gridSize:   size,
		noiseFloor: math.Max(0, math.Min(cfg.NoiseFloor, 0.99)),
		maxPixels:  maxPixels,
		logger:     logger,
	}
}

// Grid decodes the frame and resamples it onto the analyzer's fixed grid.
// The header is checked first so a frame declaring huge dimensions is
// refused before any pixel buffer is allocated.
func (a *Analyzer) Grid(frame models.Frame) (g *Grid, err error) {
	if len(frame.Image) == 0 {
		return nil, ErrEmptyFrame
	}
	defer func() {
		if r := recover(); r != nil {
			g, err = nil, fmt.Errorf("failed to decode frame: panic: %v", r)
		}
	}()

	header, _, err := image.DecodeConfig(bytes.NewReader(frame.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame header: %w", err)
	}
	if header.Width <= 0 || header.Height <= 0 {
		return nil, ErrEmptyFrame
	}
	if header.Width > a.maxPixels/header.Height {
		return nil, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, header.Width, header.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(frame.Image))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if src.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	dst := image.NewGray(image.Rect(0, 0, a.gridSize, a.gridSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	g = &Grid{Size: a.gridSize, Cells: make([]float64, a.gridSize*a.gridSize)}
	for y := 0; y < a.gridSize; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+a.gridSize]
		for x, v := range row {
			g.Cells[y*a.gridSize+x] = float64(v)
		}
	}
	return g, nil
}

// Compare returns the motion intensity between two grids in [0,1]. Cell
// deltas under the noise floor count as zero; the rest are shifted down by
// the floor so the score grows continuously from it.
func (a *Analyzer) Compare(prev, cur *Grid) float64 {
	if prev == nil || cur == nil || prev.Size != cur.Size || len(prev.Cells) != len(cur.Cells) || len(cur.Cells) == 0 {
		return 0
	}

	deltas := make([]float64, len(cur.Cells))
	span := 1 - a.noiseFloor
	for i := range cur.Cells {
		d := math.Abs(cur.Cells[i]-prev.Cells[i]) / 255
		if d < a.noiseFloor {
			continue
		}
		deltas[i] = (d - a.noiseFloor) / span
	}

	return clamp01(stat.Mean(deltas, nil))
}

// Analyze scores frame against prev and returns the grid to use as the next
// reference. A frame that cannot be decoded scores zero, leaves the reference
// untouched and reports the decode error.
func (a *Analyzer) Analyze(prev *Grid, frame models.Frame) (models.MotionScore, *Grid, error) {
	score := models.MotionScore{
		CameraID:  frame.CameraID,
		Timestamp: frame.Timestamp,
	}

	cur, err := a.Grid(frame)
	if err != nil {
		a.logger.Warn("Malformed frame, motion scored as zero",
			zap.String("camera_id", frame.CameraID),
			zap.Uint64("seq", frame.Seq),
			zap.Error(err))
		return score, prev, err
	}

	score.Intensity = a.Compare(prev, cur)
	return score, cur, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
