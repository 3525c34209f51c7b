package chunkbuild

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/ragit-kb/ragit/internal/llm"
)

// maxImageDimension is the largest width/height a normalized image may
// have.
const maxImageDimension = 1024

// NormalizeImage decodes bytes per imageType, resizes so the larger
// dimension is at most maxImageDimension, and re-encodes as PNG. A PNG
// that already fits is returned unmodified.
func NormalizeImage(raw []byte, imageType llm.ImageType) ([]byte, error) {
	img, format, err := decodeImage(raw, imageType)
	if err != nil {
		return nil, fmt.Errorf("chunkbuild: decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w <= maxImageDimension && h <= maxImageDimension {
		if format == "png" {
			return raw, nil
		}
		return encodePNG(img)
	}

	resized := resizeTriangle(img, maxImageDimension, maxImageDimension)
	return encodePNG(resized)
}

func decodeImage(raw []byte, imageType llm.ImageType) (image.Image, string, error) {
	r := bytes.NewReader(raw)
	switch imageType {
	case llm.ImageTypePNG:
		img, err := png.Decode(r)
		return img, "png", err
	case llm.ImageTypeJPEG:
		img, err := jpeg.Decode(r)
		return img, "jpeg", err
	case llm.ImageTypeGIF:
		img, err := gif.Decode(r)
		return img, "gif", err
	default:
		img, format, err := image.Decode(r)
		return img, format, err
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("chunkbuild: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// resizeTriangle scales src to fit within maxW x maxH, preserving aspect
// ratio, using a bilinear-ish triangle filter approximated by area
// averaging over the source footprint of each destination pixel.
func resizeTriangle(src image.Image, maxW, maxH int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	scale := float64(maxW) / float64(srcW)
	if hScale := float64(maxH) / float64(srcH); hScale < scale {
		scale = hScale
	}
	dstW := maxInt(1, int(float64(srcW)*scale))
	dstH := maxInt(1, int(float64(srcH)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	for y := 0; y < dstH; y++ {
		srcY0 := int(float64(y) / scale)
		srcY1 := int(float64(y+1) / scale)
		if srcY1 <= srcY0 {
			srcY1 = srcY0 + 1
		}
		for x := 0; x < dstW; x++ {
			srcX0 := int(float64(x) / scale)
			srcX1 := int(float64(x+1) / scale)
			if srcX1 <= srcX0 {
				srcX1 = srcX0 + 1
			}
			dst.Set(x, y, averageBox(src, bounds.Min.X+srcX0, bounds.Min.Y+srcY0, bounds.Min.X+srcX1, bounds.Min.Y+srcY1))
		}
	}
	return dst
}

func averageBox(src image.Image, x0, y0, x1, y1 int) color.Color {
	var rSum, gSum, bSum, aSum, count uint64
	bounds := src.Bounds()
	for y := y0; y < y1 && y < bounds.Max.Y; y++ {
		for x := x0; x < x1 && x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			rSum += uint64(r)
			gSum += uint64(g)
			bSum += uint64(b)
			aSum += uint64(a)
			count++
		}
	}
	if count == 0 {
		return color.RGBA{}
	}
	return color.RGBA64{
		R: uint16(rSum / count),
		G: uint16(gSum / count),
		B: uint16(bSum / count),
		A: uint16(aSum / count),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
