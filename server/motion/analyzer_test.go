package motion

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(t *testing.T, level uint8) models.Frame {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return encode(t, img)
}

func halfFrame(t *testing.T, left, right uint8) models.Frame {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			v := left
			if x >= 32 {
				v = right
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return encode(t, img)
}

func encode(t *testing.T, img image.Image) models.Frame {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return models.Frame{CameraID: "cam-1", Timestamp: time.Unix(0, 0), Image: buf.Bytes()}
}

func newAnalyzer() *Analyzer {
	return NewAnalyzer(config.MotionConfig{GridSize: 16, NoiseFloor: 0.04}, nil)
}

func TestAnalyzeFirstFrameScoresZero(t *testing.T) {
	a := newAnalyzer()

	score, grid, _ := a.Analyze(nil, solidFrame(t, 200))
	require.NotNil(t, grid)
	assert.Zero(t, score.Intensity)
	assert.Equal(t, "cam-1", score.CameraID)
	assert.Len(t, grid.Cells, 16*16)
}

func TestAnalyzeIdenticalFramesScoreZero(t *testing.T) {
	a := newAnalyzer()

	_, ref, _ := a.Analyze(nil, solidFrame(t, 120))
	score, _, _ := a.Analyze(ref, solidFrame(t, 120))
	assert.Zero(t, score.Intensity)
}

func TestAnalyzeFlickerBelowNoiseFloor(t *testing.T) {
	a := newAnalyzer()

	_, ref, _ := a.Analyze(nil, solidFrame(t, 120))
	score, _, _ := a.Analyze(ref, solidFrame(t, 125))
	assert.Zero(t, score.Intensity)
}

func TestAnalyzeMonotonicInChange(t *testing.T) {
	a := newAnalyzer()
	_, ref, _ := a.Analyze(nil, solidFrame(t, 0))

	small, _, _ := a.Analyze(ref, solidFrame(t, 60))
	large, _, _ := a.Analyze(ref, solidFrame(t, 180))
	full, _, _ := a.Analyze(ref, solidFrame(t, 255))

	assert.Greater(t, small.Intensity, 0.0)
	assert.Greater(t, large.Intensity, small.Intensity)
	assert.Greater(t, full.Intensity, large.Intensity)
	assert.InDelta(t, 1.0, full.Intensity, 1e-9)
}

func TestAnalyzePartialChange(t *testing.T) {
	a := newAnalyzer()
	_, ref, _ := a.Analyze(nil, solidFrame(t, 0))

	half, _, _ := a.Analyze(ref, halfFrame(t, 0, 255))
	assert.InDelta(t, 0.5, half.Intensity, 0.1)
}

func TestAnalyzeMalformedFrameKeepsReference(t *testing.T) {
	a := newAnalyzer()
	_, ref, _ := a.Analyze(nil, solidFrame(t, 10))

	bad := models.Frame{CameraID: "cam-1", Image: []byte("not an image")}
	score, next, err := a.Analyze(ref, bad)
	assert.Error(t, err)
	assert.Zero(t, score.Intensity)
	assert.Same(t, ref, next)

	empty := models.Frame{CameraID: "cam-1"}
	score, next, err = a.Analyze(ref, empty)
	assert.ErrorIs(t, err, ErrEmptyFrame)
	assert.Zero(t, score.Intensity)
	assert.Same(t, ref, next)
}

// hugeHeaderPNG encodes a 1x1 gray PNG, then rewrites its IHDR to declare
// width x height so only the header claims the large size.
func hugeHeaderPNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()

	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	require.Equal(t, "IHDR", string(data[12:16]))
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestGridRefusesOversizedHeader(t *testing.T) {
	a := NewAnalyzer(config.MotionConfig{GridSize: 16, NoiseFloor: 0.04, MaxPixels: 1920 * 1080}, nil)
	frame := models.Frame{CameraID: "cam-1", Image: hugeHeaderPNG(t, 20000, 20000)}

	grid, err := a.Grid(frame)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Nil(t, grid)

	_, ref, _ := a.Analyze(nil, solidFrame(t, 10))
	score, next, err := a.Analyze(ref, frame)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, score.Intensity)
	assert.Same(t, ref, next)
}

func TestGridAcceptsFrameAtPixelLimit(t *testing.T) {
	a := NewAnalyzer(config.MotionConfig{GridSize: 16, MaxPixels: 64 * 48}, nil)
	grid, err := a.Grid(solidFrame(t, 100))
	require.NoError(t, err)
	assert.Len(t, grid.Cells, 16*16)
}

func TestCompareMismatchedGrids(t *testing.T) {
	a := newAnalyzer()
	prev := &Grid{Size: 2, Cells: []float64{0, 0, 0, 0}}
	cur := &Grid{Size: 3, Cells: make([]float64, 9)}
	assert.Zero(t, a.Compare(prev, cur))
}
