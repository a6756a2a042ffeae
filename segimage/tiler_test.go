// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

package segimage

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientImage returns an img whose pixel (x, y) encodes its own coordinates,
// so tiles can be traced back to their source offset.
func gradientImage(rows, cols int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	return img
}

func TestTileBoundaryDiscard(t *testing.T) {
	// A 200×200 image yields exactly one 200×200 tile.
	tiles := Tile(gradientImage(200, 200), 200, 100)
	require.Len(t, tiles, 1)

	// 300×300 yields the four offsets (0,0), (0,100), (100,0), (100,100).
	tiles = Tile(gradientImage(300, 300), 200, 100)
	require.Len(t, tiles, 4)

	// 250×250 yields one tile only: offset 100 would need 300 pixels.
	tiles = Tile(gradientImage(250, 250), 200, 100)
	require.Len(t, tiles, 1)

	// Image smaller than the tile yields nothing.
	assert.Empty(t, Tile(gradientImage(100, 150), 200, 100))
}

func TestTileRowMajorOrder(t *testing.T) {
	tiles := Tile(gradientImage(300, 300), 200, 100)
	require.Len(t, tiles, 4)
	wantOffsets := [][2]int{{0, 0}, {0, 100}, {100, 0}, {100, 100}} // (row, col)
	for ii, tile := range tiles {
		require.Equal(t, image.Pt(200, 200), tile.Bounds().Size())
		r, g, _, _ := tile.At(tile.Bounds().Min.X, tile.Bounds().Min.Y).RGBA()
		assert.Equal(t, wantOffsets[ii][1], int(r>>8), "tile %d col offset", ii)
		assert.Equal(t, wantOffsets[ii][0], int(g>>8), "tile %d row offset", ii)
	}
}

func TestTileDeterminism(t *testing.T) {
	img := gradientImage(300, 250)
	first := Tile(img, 100, 50)
	second := Tile(img, 100, 50)
	require.Len(t, second, len(first))
	for ii := range first {
		assert.Equal(t, first[ii], second[ii])
	}
}

func TestTilePairedImagesAlign(t *testing.T) {
	// Two same-shape images produce index-aligned, same-sized tile lists.
	inputTiles := Tile(gradientImage(270, 410), 64, 32)
	labelTiles := Tile(gradientImage(270, 410), 64, 32)
	require.Len(t, labelTiles, len(inputTiles))
	require.Equal(t, TileCount(270, 410, 64, 32), len(inputTiles))
	for ii := range inputTiles {
		assert.Equal(t, inputTiles[ii].Bounds().Size(), labelTiles[ii].Bounds().Size())
	}
}

func TestTileOverlapVsExhaustive(t *testing.T) {
	// stride == size: exhaustive, non-overlapping cover.
	assert.Len(t, Tile(gradientImage(400, 400), 200, 200), 4)
	// stride < size: overlapping windows.
	assert.Len(t, Tile(gradientImage(400, 400), 200, 100), 9)
}

func TestTileInvalidArgsPanic(t *testing.T) {
	img := gradientImage(10, 10)
	assert.Panics(t, func() { Tile(img, 0, 1) })
	assert.Panics(t, func() { Tile(img, 1, 0) })
	assert.Panics(t, func() { TileCount(10, 10, -1, 1) })
}
