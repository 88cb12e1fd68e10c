package assets

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrNotSquare is returned for heightmaps that are not square.
var ErrNotSquare = errors.New("heightmap must be square")

// DecodeHeightmap reads a PNG, JPEG, BMP or TIFF heightmap. Luminance is
// normalized to [0,1] and mapped through scale and bias. 16-bit greyscale
// keeps its full precision. Heights are returned south row first, the
// image's top row being north.
func DecodeHeightmap(r io.Reader, scale, bias float32) (size int, heights []float32, err error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return 0, nil, fmt.Errorf("decoding heightmap: %w", err)
	}
	b := img.Bounds()
	if b.Dx() != b.Dy() {
		return 0, nil, fmt.Errorf("%w: %s %dx%d", ErrNotSquare, format, b.Dx(), b.Dy())
	}
	size = b.Dx()
	heights = make([]float32, size*size)
	for y := 0; y < size; y++ {
		row := (size - 1 - y) * size
		for x := 0; x < size; x++ {
			heights[row+x] = luminance(img, b.Min.X+x, b.Min.Y+y)*scale + bias
		}
	}
	return size, heights, nil
}

func luminance(img image.Image, x, y int) float32 {
	switch im := img.(type) {
	case *image.Gray16:
		return float32(im.Gray16At(x, y).Y) / 0xffff
	case *image.Gray:
		return float32(im.GrayAt(x, y).Y) / 0xff
	}
	g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
	return float32(g.Y) / 0xffff
}
