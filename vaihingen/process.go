// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

package vaihingen

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path"
	"strings"

	_ "golang.org/x/image/tiff" // Raw rasters are .tif.

	"github.com/aerialml/aerialseg/segimage"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Process materializes the tiled train/validation layout from the raw
// Vaihingen rasters.
//
// It enumerates the .tif files of config.RawLabelDir in sorted order, assigns
// the first floor(TrainRatio*n) of them to the train partition and the rest
// to validation, and for each file pair tiles the input raster and its
// ground-truth raster with (TileSize, TileStride) and writes every tile pair
// as PNG under the partition's input/output bucket directories, named by a
// zero-based per-partition counter so that input/<N>.png and output/<N>.png
// are a matched pair.
//
// The split is deterministic: re-running regenerates the same tiles in the
// same order, overwriting any previous run. A failure mid-run leaves a
// partial tile set behind and is reported to the caller.
func Process(config *Config) error {
	fileNames, err := rasterFileNames(config.RawLabelDir)
	if err != nil {
		return err
	}
	if len(fileNames) == 0 {
		return errors.Errorf("no .tif rasters found in %q", config.RawLabelDir)
	}
	numTrain := int(float64(len(fileNames)) * config.TrainRatio)
	klog.Infof("Processing %d Vaihingen rasters: %d train, %d validation",
		len(fileNames), numTrain, len(fileNames)-numTrain)
	if err := processPartition(config, Train, fileNames[:numTrain]); err != nil {
		return err
	}
	return processPartition(config, Validation, fileNames[numTrain:])
}

// rasterFileNames lists the .tif files in dir. os.ReadDir returns entries
// sorted by name, which fixes the listing order the train/validation split
// depends on.
func rasterFileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list rasters in %q", dir)
	}
	var fileNames []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tif") {
			continue
		}
		fileNames = append(fileNames, entry.Name())
	}
	return fileNames, nil
}

// processPartition tiles the given file pairs into the partition's input and
// output bucket directories, creating them if needed.
func processPartition(config *Config, partition Partition, fileNames []string) error {
	inputDir := config.TilesDir(partition, InputSubDir)
	outputDir := config.TilesDir(partition, OutputSubDir)
	for _, dir := range []string{inputDir, outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create tiles directory %q", dir)
		}
	}

	var pBar *progressbar.ProgressBar
	if len(fileNames) > 0 {
		pBar = progressbar.NewOptions(len(fileNames),
			progressbar.OptionSetDescription(fmt.Sprintf("Tiling %s", partition)),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rasters"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	tileIdx := 0
	var bytesWritten int64
	for _, fileName := range fileNames {
		labelImg, err := loadImage(path.Join(config.RawLabelDir, fileName))
		if err != nil {
			return err
		}
		inputImg, err := loadImage(path.Join(config.RawInputDir, fileName))
		if err != nil {
			return err
		}
		if !inputImg.Bounds().Size().Eq(labelImg.Bounds().Size()) {
			return errors.Errorf("raster pair %q has mismatched dimensions: input is %s, ground truth is %s",
				fileName, inputImg.Bounds().Size(), labelImg.Bounds().Size())
		}

		inputTiles := segimage.Tile(inputImg, config.TileSize, config.TileStride)
		labelTiles := segimage.Tile(labelImg, config.TileSize, config.TileStride)
		for ii := range inputTiles {
			tileName := fmt.Sprintf("%d.png", tileIdx)
			n, err := saveImage(path.Join(inputDir, tileName), inputTiles[ii])
			bytesWritten += n
			if err != nil {
				return err
			}
			n, err = saveImage(path.Join(outputDir, tileName), labelTiles[ii])
			bytesWritten += n
			if err != nil {
				return err
			}
			tileIdx++
		}
		if pBar != nil {
			_ = pBar.Add(1)
		}
	}
	if pBar != nil {
		_ = pBar.Close()
		fmt.Println()
	}
	klog.Infof("%s partition: %d tile pairs (%s) from %d rasters",
		partition, tileIdx, humanize.IBytes(uint64(bytesWritten)), len(fileNames))
	return nil
}

// loadImage decodes one raster (PNG or TIFF) from disk.
func loadImage(filePath string) (image.Image, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open raster %q", filePath)
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode raster %q", filePath)
	}
	return img, nil
}

// saveImage writes img as PNG, returning the number of bytes written.
func saveImage(filePath string, img image.Image) (int64, error) {
	f, err := os.Create(filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to create tile %q", filePath)
	}
	cw := &countingWriter{w: f}
	if err = png.Encode(cw, img); err != nil {
		_ = f.Close()
		return cw.n, errors.Wrapf(err, "failed to encode tile %q", filePath)
	}
	if err = f.Close(); err != nil {
		return cw.n, errors.Wrapf(err, "failed to close tile %q", filePath)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	cw.n += int64(n)
	return
}
