// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

package segimage

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
)

// Tile decomposes img into size×size sub-images cut at the offsets
// (0, 0), (0, stride), …, (stride, 0), … in row-major order. Windows that
// would cross the image boundary are discarded: no padding, no partial tiles.
//
// The result is deterministic, so two same-sized images tiled with the same
// (size, stride) yield index-aligned tile lists. With stride == size the
// tiling is exhaustive and non-overlapping (modulo the boundary discard);
// with stride < size adjacent tiles overlap.
func Tile(img image.Image, size, stride int) []image.Image {
	if size <= 0 || stride <= 0 {
		exceptions.Panicf("segimage.Tile: size (%d) and stride (%d) must be positive", size, stride)
	}
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	var tiles []image.Image
	for row := 0; row+size <= rows; row += stride {
		for col := 0; col+size <= cols; col += stride {
			window := image.Rect(col, row, col+size, row+size).Add(bounds.Min)
			tiles = append(tiles, imaging.Crop(img, window))
		}
	}
	return tiles
}

// TileCount returns the number of tiles Tile produces for an image with the
// given dimensions, without cutting them.
func TileCount(rows, cols, size, stride int) int {
	if size <= 0 || stride <= 0 {
		exceptions.Panicf("segimage.TileCount: size (%d) and stride (%d) must be positive", size, stride)
	}
	perAxis := func(extent int) int {
		if extent < size {
			return 0
		}
		return (extent-size)/stride + 1
	}
	return perAxis(rows) * perAxis(cols)
}
