// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

// Package segimage provides the raster building blocks for semantic
// segmentation datasets: a bidirectional codec between RGB color-coded label
// images, per-pixel class indices and one-hot class tensors, and a
// deterministic sliding-window tiler.
//
// The codec operates on batches of gomlx tensors (leading batch axis plus the
// spatial axes), the tiler on standard image.Image values. All operations are
// pure; the package holds no state beyond the immutable LabelMap
// configuration.
package segimage

import (
	"slices"

	"github.com/gomlx/exceptions"
)

// UnknownClass is the sentinel returned by LabelMap.ClassOf (and written by
// LabelMap.RGBToLabel) for pixels whose color matches no class, unless a
// fallback class was configured with LabelMap.WithFallback.
const UnknownClass = int32(-1)

// Class is one entry of a LabelMap: a class name and the RGB triple that
// encodes it in color-coded label images.
type Class struct {
	Name  string
	Color [3]uint8
}

// LabelMap is an ordered class-index to RGB-color mapping. The order defines
// the canonical class indices (0..NumClasses()-1) and the priority when
// decoding colors: the first matching class wins.
//
// A LabelMap is immutable after construction and safe for concurrent use.
type LabelMap struct {
	classes  []Class
	fallback int32
}

// NewLabelMap creates a LabelMap from the ordered list of classes.
//
// Pixels that match no class decode to UnknownClass. Use WithFallback to map
// them to a catch-all class instead.
func NewLabelMap(classes ...Class) *LabelMap {
	if len(classes) == 0 {
		exceptions.Panicf("segimage.NewLabelMap requires at least one class")
	}
	return &LabelMap{
		classes:  slices.Clone(classes),
		fallback: UnknownClass,
	}
}

// WithFallback configures the class index assigned to pixels whose color
// matches no class. It must be a valid class index.
//
// It returns the LabelMap to allow cascaded configuration calls.
func (lm *LabelMap) WithFallback(class int) *LabelMap {
	if class < 0 || class >= len(lm.classes) {
		exceptions.Panicf("segimage.LabelMap.WithFallback(%d): index out of range for %d classes",
			class, len(lm.classes))
	}
	lm.fallback = int32(class)
	return lm
}

// NumClasses returns the number of classes K in the map.
func (lm *LabelMap) NumClasses() int { return len(lm.classes) }

// Name returns the name of the given class index.
func (lm *LabelMap) Name(class int) string { return lm.classes[class].Name }

// Color returns the RGB triple encoding the given class index.
func (lm *LabelMap) Color(class int) [3]uint8 { return lm.classes[class].Color }

// ClassOf returns the index of the first class whose color matches (r, g, b)
// exactly, or the configured fallback (UnknownClass by default) if none does.
func (lm *LabelMap) ClassOf(r, g, b uint8) int32 {
	for class, c := range lm.classes {
		if c.Color[0] == r && c.Color[1] == g && c.Color[2] == b {
			return int32(class)
		}
	}
	return lm.fallback
}
