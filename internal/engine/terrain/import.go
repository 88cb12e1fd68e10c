package terrain

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-terrain/pkg/math"
)

// MaxBatchSize is the largest batch whose vertices fit 16-bit indices.
const MaxBatchSize = 129

// Configuration errors returned by Prepare.
var (
	ErrInvalidSize       = errors.New("terrain size must be 2^n+1")
	ErrInvalidBatchSize  = errors.New("batch sizes must be 2^n+1 with min <= max <= size")
	ErrBatchTooLarge     = errors.New("max batch size exceeds 16-bit index limit")
	ErrInvalidWorldSize  = errors.New("world size must be positive")
	ErrInvalidHeightData = errors.New("input height data does not match terrain size")
	ErrNotPrepared       = errors.New("terrain is not prepared")
)

// ImportData describes a terrain built from raw inputs rather than a saved file.
type ImportData struct {
	Alignment    Alignment
	Size         int
	WorldSize    float32
	MaxBatchSize int
	MinBatchSize int
	Pos          math.Vec3

	// InputImage is sampled for heights when set (top row is north).
	InputImage *Image
	// InputFloat is used when InputImage is nil; row-major, south row first.
	InputFloat []float32
	// ConstantHeight fills the terrain when no other input is set.
	ConstantHeight float32

	InputScale float32
	InputBias  float32

	LayerDeclaration LayerDeclaration
	LayerList        []LayerInstance
}

// DefaultImportData returns the stock import settings.
func DefaultImportData() ImportData {
	return ImportData{
		Alignment:    AlignXZ,
		Size:         1025,
		WorldSize:    1000,
		MaxBatchSize: 65,
		MinBatchSize: 17,
		InputScale:   1,
	}
}

// Validate checks the sizing rules a terrain needs before anything is built.
func (d *ImportData) Validate() error {
	return validateSizes(d.Size, d.WorldSize, d.MinBatchSize, d.MaxBatchSize)
}

func validateSizes(size int, worldSize float32, minBatch, maxBatch int) error {
	if !isPow2Plus1(size) {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if !isPow2Plus1(minBatch) || !isPow2Plus1(maxBatch) {
		return fmt.Errorf("%w: min %d max %d", ErrInvalidBatchSize, minBatch, maxBatch)
	}
	if minBatch > maxBatch || maxBatch > size {
		return fmt.Errorf("%w: min %d max %d size %d", ErrInvalidBatchSize, minBatch, maxBatch, size)
	}
	if maxBatch > MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, maxBatch, MaxBatchSize)
	}
	if worldSize <= 0 {
		return fmt.Errorf("%w: %g", ErrInvalidWorldSize, worldSize)
	}
	return nil
}

// buildHeights produces the row-major height array for the import.
func (d *ImportData) buildHeights() ([]float32, error) {
	n := d.Size * d.Size
	heights := make([]float32, n)
	switch {
	case d.InputImage != nil:
		img := d.InputImage
		if img.Width < 1 || img.Height < 1 {
			return nil, fmt.Errorf("%w: empty image", ErrInvalidHeightData)
		}
		for y := 0; y < d.Size; y++ {
			// images are top-down, terrain rows run south to north
			srcY := (d.Size - 1 - y) * (img.Height - 1) / max(d.Size-1, 1)
			for x := 0; x < d.Size; x++ {
				srcX := x * (img.Width - 1) / max(d.Size-1, 1)
				heights[y*d.Size+x] = img.Value(srcX, srcY)*d.InputScale + d.InputBias
			}
		}
	case d.InputFloat != nil:
		if len(d.InputFloat) != n {
			return nil, fmt.Errorf("%w: got %d samples, want %d", ErrInvalidHeightData, len(d.InputFloat), n)
		}
		for i, h := range d.InputFloat {
			heights[i] = h*d.InputScale + d.InputBias
		}
	default:
		if d.ConstantHeight != 0 {
			for i := range heights {
				heights[i] = d.ConstantHeight
			}
		}
	}
	return heights, nil
}
