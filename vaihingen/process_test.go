// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

package vaihingen

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/aerialml/aerialseg/segimage"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns a Config rooted at a fresh temporary directory, with the
// raw directories already created.
func testConfig(t *testing.T) *Config {
	t.Helper()
	baseDir := t.TempDir()
	config := &Config{
		DataDir:      baseDir,
		RawInputDir:  path.Join(baseDir, "raw", "top"),
		RawLabelDir:  path.Join(baseDir, "raw", "gts"),
		ProcessedDir: path.Join(baseDir, "processed"),
		TileSize:     200,
		TileStride:   100,
		TargetSize:   200,
		TrainRatio:   0.75,
		BatchSize:    4,
		Seed:         1,
		Labels:       segimage.NewLabelMap(Classes...).WithFallback(0),
	}
	require.NoError(t, os.MkdirAll(config.RawInputDir, 0755))
	require.NoError(t, os.MkdirAll(config.RawLabelDir, 0755))
	return config
}

// solidImage returns a rows×cols image filled with the given color.
func solidImage(rows, cols int, c color.NRGBA) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeTIFF(t *testing.T, filePath string, img image.Image) {
	t.Helper()
	f, err := os.Create(filePath)
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, img, nil))
	require.NoError(t, f.Close())
}

// writeRasterPair creates a same-named (input, ground truth) .tif pair of the
// given size, the ground truth filled with the color of labelClass.
func writeRasterPair(t *testing.T, config *Config, fileName string, rows, cols, labelClass int) {
	t.Helper()
	key := Classes[labelClass].Color
	writeTIFF(t, path.Join(config.RawInputDir, fileName),
		solidImage(rows, cols, color.NRGBA{R: 127, G: 127, B: 127, A: 255}))
	writeTIFF(t, path.Join(config.RawLabelDir, fileName),
		solidImage(rows, cols, color.NRGBA{R: key[0], G: key[1], B: key[2], A: 255}))
}

func countPNGs(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestProcessPartitionSplit(t *testing.T) {
	config := testConfig(t)
	// 4 source files, ratio 0.75: the first 3 (sorted order) go to train.
	// Each raster is 200×200, so exactly one tile pair per file.
	for ii := 0; ii < 4; ii++ {
		writeRasterPair(t, config, fmt.Sprintf("area%d.tif", ii), 200, 200, ii)
	}
	require.NoError(t, Process(config))

	assert.Equal(t, 3, countPNGs(t, config.TilesDir(Train, InputSubDir)))
	assert.Equal(t, 3, countPNGs(t, config.TilesDir(Train, OutputSubDir)))
	assert.Equal(t, 1, countPNGs(t, config.TilesDir(Validation, InputSubDir)))
	assert.Equal(t, 1, countPNGs(t, config.TilesDir(Validation, OutputSubDir)))

	// Listing order is preserved within each partition: the Nth train tile
	// decodes to the Nth file's class, and validation got the last file.
	for ii := 0; ii < 3; ii++ {
		assertTileClass(t, config, path.Join(config.TilesDir(Train, OutputSubDir), fmt.Sprintf("%d.png", ii)), ii)
	}
	assertTileClass(t, config, path.Join(config.TilesDir(Validation, OutputSubDir), "0.png"), 3)
}

// assertTileClass decodes a written label tile and checks every pixel decodes
// to wantClass through the label codec.
func assertTileClass(t *testing.T, config *Config, filePath string, wantClass int) {
	t.Helper()
	img, err := loadImage(filePath)
	require.NoError(t, err)
	rgb := timage.ToTensor(dtypes.Uint8).Batch([]image.Image{img})
	labels := config.Labels.RGBToLabel(rgb)
	for _, class := range tensors.MustCopyFlatData[int32](labels) {
		require.Equal(t, int32(wantClass), class)
	}
}

func TestProcessEndToEnd(t *testing.T) {
	config := testConfig(t)
	config.TrainRatio = 1.0
	// One 200×200 pair with tile size 200 / stride 100 writes exactly one
	// tile pair, named 0.png on both sides. The ground truth is Clutter red
	// (255, 0, 0) and must decode to class index 5.
	writeRasterPair(t, config, "area1.tif", 200, 200, 5)
	require.NoError(t, Process(config))

	inputDir := config.TilesDir(Train, InputSubDir)
	outputDir := config.TilesDir(Train, OutputSubDir)
	require.Equal(t, 1, countPNGs(t, inputDir))
	require.Equal(t, 1, countPNGs(t, outputDir))
	require.FileExists(t, path.Join(inputDir, "0.png"))
	require.FileExists(t, path.Join(outputDir, "0.png"))
	assertTileClass(t, config, path.Join(outputDir, "0.png"), 5)
}

func TestProcessBoundaryDiscard(t *testing.T) {
	config := testConfig(t)
	config.TrainRatio = 1.0
	// 300×300 tiles into 4 pairs; a second 250×250 raster adds only 1 more.
	writeRasterPair(t, config, "a.tif", 300, 300, 1)
	writeRasterPair(t, config, "b.tif", 250, 250, 2)
	require.NoError(t, Process(config))
	assert.Equal(t, 5, countPNGs(t, config.TilesDir(Train, InputSubDir)))
	assert.Equal(t, 5, countPNGs(t, config.TilesDir(Train, OutputSubDir)))
}

func TestProcessDimensionMismatch(t *testing.T) {
	config := testConfig(t)
	writeTIFF(t, path.Join(config.RawInputDir, "a.tif"),
		solidImage(200, 200, color.NRGBA{A: 255}))
	writeTIFF(t, path.Join(config.RawLabelDir, "a.tif"),
		solidImage(300, 300, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	err := Process(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatched dimensions")
}

func TestProcessRerunOverwrites(t *testing.T) {
	config := testConfig(t)
	writeRasterPair(t, config, "a.tif", 200, 200, 0)
	require.NoError(t, Process(config))
	// Re-running regenerates the same layout in place, directories included.
	require.NoError(t, Process(config))
	assert.Equal(t, 1, countPNGs(t, config.TilesDir(Train, InputSubDir)))
}

func TestProcessEmptySource(t *testing.T) {
	config := testConfig(t)
	err := Process(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .tif rasters")
}
