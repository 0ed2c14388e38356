package ioadapter

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"svrecon/internal/model"
)

// DiagnosticDumper saves 2D slice views of volume-sized diagnostic fields
// (bias fields, confidence maps, the evolving reconstruction) as JPEGs,
// adapted from the teacher's pkg/visualization/viewer.go slice-extraction
// code: same axis-based extraction and gray16-to-JPEG path, generalised
// from normalised-intensity volumes to signed/log-space diagnostic fields
// via an explicit value range instead of an assumed [0,1] scale.
type DiagnosticDumper struct{}

// ExtractSlice extracts a 2D slice from a model.Volume along the given
// axis ("x", "y", or "z") at the given voxel position, mapping [lo, hi] to
// the full 16-bit gray range.
func (DiagnosticDumper) ExtractSlice(v *model.Volume, axis string, position int, lo, hi float64) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	rng := hi - lo
	if rng <= 0 {
		rng = 1
	}

	toGray := func(val float64) uint16 {
		if val < lo {
			val = lo
		}
		t := (val - lo) / rng
		return uint16(math.Max(0, math.Min(65535, t*65535)))
	}

	switch axis {
	case "x", "X":
		if position >= v.NX {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.NX)
		}
		img := image.NewGray16(image.Rect(0, 0, v.NZ, v.NY))
		for y := 0; y < v.NY; y++ {
			for z := 0; z < v.NZ; z++ {
				img.SetGray16(z, y, color.Gray16{Y: toGray(v.At(position, y, z))})
			}
		}
		return img, nil

	case "y", "Y":
		if position >= v.NY {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.NY)
		}
		img := image.NewGray16(image.Rect(0, 0, v.NX, v.NZ))
		for z := 0; z < v.NZ; z++ {
			for x := 0; x < v.NX; x++ {
				img.SetGray16(x, z, color.Gray16{Y: toGray(v.At(x, position, z))})
			}
		}
		return img, nil

	case "z", "Z":
		if position >= v.NZ {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.NZ)
		}
		img := image.NewGray16(image.Rect(0, 0, v.NX, v.NY))
		for y := 0; y < v.NY; y++ {
			for x := 0; x < v.NX; x++ {
				img.SetGray16(x, y, color.Gray16{Y: toGray(v.At(x, y, position))})
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// SaveSlice writes an extracted slice as a JPEG.
func (DiagnosticDumper) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// DumpSequence saves every slice along axis into outputDir, named by axis
// and position, used to dump bias fields or confidence maps for visual
// debugging across an outer iteration.
func (d DiagnosticDumper) DumpSequence(v *model.Volume, axis, outputDir string, lo, hi float64) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.NX
	case "y", "Y":
		maxPos = v.NY
	case "z", "Z":
		maxPos = v.NZ
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	for pos := 0; pos < maxPos; pos++ {
		img, err := d.ExtractSlice(v, axis, pos, lo, hi)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := d.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
