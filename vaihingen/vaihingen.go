// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

// Package vaihingen prepares the ISPRS Vaihingen 2D semantic labeling dataset
// (https://www.isprs.org/education/benchmarks/UrbanSemLab/) for training
// segmentation models with GoMLX.
//
// It tiles the full-resolution aerial rasters and their color-coded ground
// truth into fixed-size patches split into train/validation partitions
// (Process), and serves the resulting tile pairs as train.Dataset batch
// streams with augmentation, feature-wise normalization and one-hot label
// encoding (Dataset).
package vaihingen

import (
	"path"

	"github.com/aerialml/aerialseg/segimage"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
)

// On-disk layout names. Processed tiles land in
// <ProcessedDir>/{train,validation}/{input,output}/bogus_class/<N>.png where
// N is a per-partition sequential counter shared by the input tile and its
// label tile. The single "bogus_class" bucket exists because class-directory
// oriented batch loaders expect one sub-directory per class.
const (
	InputSubDir       = "input"
	OutputSubDir      = "output"
	SingleClassSubDir = "bogus_class"
)

// Partition is one of the two disjoint subsets of the dataset.
type Partition int

const (
	Train Partition = iota
	Validation
)

// String implements fmt.Stringer, and doubles as the partition's directory
// name in the processed layout.
func (p Partition) String() string {
	switch p {
	case Train:
		return "train"
	case Validation:
		return "validation"
	}
	return "unknown"
}

// Classes is the Vaihingen label key table: the canonical class order and the
// RGB color encoding each class in the ground-truth rasters.
var Classes = []segimage.Class{
	{Name: "Impervious", Color: [3]uint8{255, 255, 255}},
	{Name: "Building", Color: [3]uint8{0, 0, 255}},
	{Name: "Low vegetation", Color: [3]uint8{0, 255, 255}},
	{Name: "Tree", Color: [3]uint8{0, 255, 0}},
	{Name: "Car", Color: [3]uint8{255, 255, 0}},
	{Name: "Clutter", Color: [3]uint8{255, 0, 0}},
}

// NumClasses in the Vaihingen dataset.
var NumClasses = len(Classes)

// Config collects every knob of the preparation pipeline. Create it with
// DefaultConfig and adjust fields before passing it to Process or NewDataset.
type Config struct {
	// DataDir is the base data directory, under which the raw and processed
	// layouts live.
	DataDir string

	// RawInputDir holds the aerial imagery rasters (.tif), RawLabelDir the
	// same-named color-coded ground-truth rasters. Filenames pair input to
	// label by exact match.
	RawInputDir string
	RawLabelDir string

	// ProcessedDir is the root of the tiled train/validation layout.
	ProcessedDir string

	// TileSize is the side of the square tiles; TileStride the offset between
	// successive tile windows. With TileStride < TileSize tiles overlap.
	TileSize   int
	TileStride int

	// TargetSize is the tile side expected by the model. Tiles are resized at
	// batch time when it differs from TileSize.
	TargetSize int

	// TrainRatio is the fraction of source files assigned to the train
	// partition; the remainder goes to validation.
	TrainRatio float64

	// BatchSize used by the batch streams and the normalization fit.
	BatchSize int

	// Seed for shuffling and augmentation draws.
	Seed int64

	// Labels is the label key table used to encode ground-truth colors.
	Labels *segimage.LabelMap
}

// DefaultConfig returns the standard Vaihingen configuration rooted at
// baseDir ("~" is expanded). Unmatched ground-truth colors (resampling
// artifacts at raster edges) fall back to class 0, matching the dataset's
// convention.
func DefaultConfig(baseDir string) *Config {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	rawDir := path.Join(baseDir, "raw_data", "ISPRS_semantic_labeling_Vaihingen")
	return &Config{
		DataDir:      baseDir,
		RawInputDir:  path.Join(rawDir, "top"),
		RawLabelDir:  path.Join(rawDir, "gts_for_participants"),
		ProcessedDir: path.Join(baseDir, "processed_data", "vaihingen"),
		TileSize:     200,
		TileStride:   100,
		TargetSize:   200,
		TrainRatio:   0.75,
		BatchSize:    32,
		Seed:         1,
		Labels:       segimage.NewLabelMap(Classes...).WithFallback(0),
	}
}

// TilesDir returns the bucket directory holding the tiles of the given
// partition and role (InputSubDir or OutputSubDir).
func (c *Config) TilesDir(partition Partition, role string) string {
	return path.Join(c.ProcessedDir, partition.String(), role, SingleClassSubDir)
}
