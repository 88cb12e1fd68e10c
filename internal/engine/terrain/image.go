package terrain

import (
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"
)

// PixelFormat describes the layout of an Image.
type PixelFormat uint8

const (
	FormatL8 PixelFormat = iota
	FormatL16
	FormatFloat32
	FormatRGB8
	FormatRGBA8
)

// ErrImageBounds is returned when a blit does not fit the destination.
var ErrImageBounds = errors.New("image region out of bounds")

// BytesPerPixel returns the storage size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatL8:
		return 1
	case FormatL16:
		return 2
	case FormatRGB8:
		return 3
	case FormatFloat32, FormatRGBA8:
		return 4
	}
	return 0
}

func (f PixelFormat) String() string {
	switch f {
	case FormatL8:
		return "L8"
	case FormatL16:
		return "L16"
	case FormatFloat32:
		return "R32F"
	case FormatRGB8:
		return "RGB8"
	case FormatRGBA8:
		return "RGBA8"
	}
	return fmt.Sprintf("PixelFormat(%d)", uint8(f))
}

// Image is a tightly packed 2D pixel buffer, top row first.
type Image struct {
	Width, Height int
	Format        PixelFormat
	Data          []byte
}

// NewImage allocates a zeroed image.
func NewImage(w, h int, f PixelFormat) *Image {
	return &Image{Width: w, Height: h, Format: f, Data: make([]byte, w*h*f.BytesPerPixel())}
}

func (img *Image) offset(x, y int) int {
	return (y*img.Width + x) * img.Format.BytesPerPixel()
}

// Value returns the first channel at (x, y). Integer formats are normalized to [0,1].
func (img *Image) Value(x, y int) float32 {
	o := img.offset(x, y)
	switch img.Format {
	case FormatL16:
		return float32(binary.LittleEndian.Uint16(img.Data[o:])) / 65535
	case FormatFloat32:
		return gomath.Float32frombits(binary.LittleEndian.Uint32(img.Data[o:]))
	default:
		return float32(img.Data[o]) / 255
	}
}

// SetFloat stores v at (x, y) in a FormatFloat32 image.
func (img *Image) SetFloat(x, y int, v float32) {
	binary.LittleEndian.PutUint32(img.Data[img.offset(x, y):], gomath.Float32bits(v))
}

// Blit copies src into img with its top-left corner at (dx, dy).
func (img *Image) Blit(src *Image, dx, dy int) error {
	if src.Format != img.Format {
		return fmt.Errorf("%w: format %s into %s", ErrImageBounds, src.Format, img.Format)
	}
	if dx < 0 || dy < 0 || dx+src.Width > img.Width || dy+src.Height > img.Height {
		return fmt.Errorf("%w: %dx%d at (%d,%d) into %dx%d",
			ErrImageBounds, src.Width, src.Height, dx, dy, img.Width, img.Height)
	}
	row := src.Width * src.Format.BytesPerPixel()
	for y := 0; y < src.Height; y++ {
		so := src.offset(0, y)
		copy(img.Data[img.offset(dx, dy+y):], src.Data[so:so+row])
	}
	return nil
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	out := *img
	out.Data = append([]byte(nil), img.Data...)
	return &out
}
