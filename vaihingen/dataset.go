// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

package vaihingen

import (
	"fmt"
	"image"
	"io"
	"math"
	"math/rand"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Dataset implements train.Dataset over one processed partition: each Yield
// returns a batch of input tiles (shaped [batch_size, height, width, 3], of
// the configured float dtype) and the matching batch of one-hot encoded
// label tiles (shaped [batch_size, height, width, NumClasses()]).
//
// It iterates over matched tile-pair indices: the Nth input tile and the Nth
// label tile are always loaded together, and when augmentation is enabled one
// sampled transform is applied to both, keeping pixel correspondence intact.
type Dataset struct {
	name      string
	config    *Config
	partition Partition

	batchSize int
	infinite  bool
	dtype     dtypes.DType
	toTensor  *timage.ToTensorConfig

	augment      bool
	rng          *rand.Rand
	mean, stddev []float64 // Per-channel; nil disables normalization.

	numTiles int

	// mu protects the iteration state below, and rng above.
	mu        sync.Mutex
	pos       int
	shuffle   *rand.Rand
	selection []int
}

var _ train.Dataset = &Dataset{}

// NewDataset creates a Dataset over the tiles Process wrote for the given
// partition.
//
//   - batchSize: number of tile pairs per Yield.
//   - infinite: if set the dataset cycles forever and never returns io.EOF.
//     Otherwise it yields one epoch of full batches (a trailing partial batch
//     is dropped) and can be restarted with Reset.
//   - shuffle: if not nil, used to shuffle. Infinite datasets sample with
//     replacement; finite ones iterate a fresh permutation per epoch.
//   - dtype: element type of the yielded tensors; must be a float dtype.
func NewDataset(name string, config *Config, partition Partition,
	batchSize int, infinite bool, shuffle *rand.Rand, dtype dtypes.DType) (*Dataset, error) {
	if !dtype.IsFloat() {
		return nil, errors.Errorf("dataset %q requires a float dtype, got %s", name, dtype)
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset %q requires a positive batch size, got %d", name, batchSize)
	}
	numTiles, err := countTilePairs(config, partition)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{
		name:      name,
		config:    config,
		partition: partition,
		batchSize: batchSize,
		infinite:  infinite,
		dtype:     dtype,
		toTensor:  timage.ToTensor(dtype),
		rng:       rand.New(rand.NewSource(config.Seed)),
		numTiles:  numTiles,
		shuffle:   shuffle,
	}
	ds.Reset()
	return ds, nil
}

// countTilePairs returns the number of tile pairs in the partition, checking
// the input and output buckets agree.
func countTilePairs(config *Config, partition Partition) (int, error) {
	counts := make(map[string]int, 2)
	for _, role := range []string{InputSubDir, OutputSubDir} {
		dir := config.TilesDir(partition, role)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to list tiles in %q -- did you run Process first?", dir)
		}
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".png") {
				counts[role]++
			}
		}
	}
	if counts[InputSubDir] != counts[OutputSubDir] {
		return 0, errors.Errorf("partition %s has %d input tiles but %d output tiles",
			partition, counts[InputSubDir], counts[OutputSubDir])
	}
	if counts[InputSubDir] == 0 {
		return 0, errors.Errorf("partition %s has no tiles -- did you run Process first?", partition)
	}
	return counts[InputSubDir], nil
}

// WithAugmentation enables synchronized augmentation: per tile pair, one
// horizontal-flip and one vertical-flip coin toss, applied to both the input
// and the label tile.
//
// It returns the Dataset to allow cascaded configuration calls.
func (ds *Dataset) WithAugmentation() *Dataset {
	ds.augment = true
	return ds
}

// WithNormalization enables feature-wise normalization of the input batches:
// each channel c is mapped to (x - mean[c]) / stddev[c]. Use FitNormalization
// to compute the statistics from the train partition.
//
// It returns the Dataset to allow cascaded configuration calls.
func (ds *Dataset) WithNormalization(mean, stddev []float64) *Dataset {
	if len(mean) != 3 || len(stddev) != 3 {
		exceptions.Panicf("vaihingen.Dataset.WithNormalization: need 3 per-channel values, got mean[%d], stddev[%d]",
			len(mean), len(stddev))
	}
	ds.mean, ds.stddev = mean, stddev
	return ds
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// NumTilePairs returns the number of tile pairs in the partition.
func (ds *Dataset) NumTilePairs() int { return ds.numTiles }

// yieldIndices selects the tile-pair indices of the next batch.
func (ds *Dataset) yieldIndices() ([]int, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	indices := make([]int, 0, ds.batchSize)
	for len(indices) < ds.batchSize {
		var idx int
		if ds.infinite {
			if ds.shuffle != nil {
				// Sample with replacement.
				idx = ds.shuffle.Intn(ds.numTiles)
			} else {
				idx = ds.pos
				ds.pos = (ds.pos + 1) % ds.numTiles
			}
		} else {
			if ds.pos >= ds.numTiles {
				return nil, io.EOF
			}
			if ds.shuffle != nil {
				idx = ds.selection[ds.pos]
			} else {
				idx = ds.pos
			}
			ds.pos++
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// YieldImages yields the next batch as raw images, before tensor conversion
// and normalization: inputs[ii] and labelImages[ii] are the (augmented) tile
// pair of one draw. Useful for inspection and sampling.
func (ds *Dataset) YieldImages() (inputs, labelImages []image.Image, err error) {
	indices, err := ds.yieldIndices()
	if err != nil {
		return nil, nil, err
	}
	inputs = make([]image.Image, len(indices))
	labelImages = make([]image.Image, len(indices))
	for ii, idx := range indices {
		inputImg, err := ds.loadTile(InputSubDir, idx, imaging.Linear)
		if err != nil {
			return nil, nil, err
		}
		// Nearest-neighbor keeps label colors exactly on the key table.
		labelImg, err := ds.loadTile(OutputSubDir, idx, imaging.NearestNeighbor)
		if err != nil {
			return nil, nil, err
		}
		if ds.augment {
			ds.mu.Lock()
			hFlip, vFlip := ds.rng.Intn(2) == 1, ds.rng.Intn(2) == 1
			ds.mu.Unlock()
			if hFlip {
				inputImg, labelImg = imaging.FlipH(inputImg), imaging.FlipH(labelImg)
			}
			if vFlip {
				inputImg, labelImg = imaging.FlipV(inputImg), imaging.FlipV(labelImg)
			}
		}
		inputs[ii], labelImages[ii] = inputImg, labelImg
	}
	return inputs, labelImages, nil
}

// loadTile reads one tile PNG, resizing it to the configured TargetSize with
// the given filter if needed.
func (ds *Dataset) loadTile(role string, idx int, filter imaging.ResampleFilter) (image.Image, error) {
	filePath := path.Join(ds.config.TilesDir(ds.partition, role), fmt.Sprintf("%d.png", idx))
	img, err := loadImage(filePath)
	if err != nil {
		return nil, err
	}
	if ds.config.TargetSize > 0 && img.Bounds().Size() != image.Pt(ds.config.TargetSize, ds.config.TargetSize) {
		img = imaging.Resize(img, ds.config.TargetSize, ds.config.TargetSize, filter)
	}
	return img, nil
}

// Yield implements train.Dataset. It returns the Dataset itself as spec, the
// input batch as the only inputs tensor and the one-hot label batch as the
// only labels tensor.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	inputImages, labelImages, err := ds.YieldImages()
	if err != nil {
		return nil, nil, nil, err
	}
	inputBatch := ds.toTensor.Batch(inputImages)
	if ds.mean != nil {
		ds.normalizeBatch(inputBatch)
	}

	labelRGB := timage.ToTensor(dtypes.Uint8).Batch(labelImages)
	oneHot := ds.config.Labels.RGBToOneHot(labelRGB, ds.dtype)
	labelRGB.MustFinalizeAll()

	return ds, []*tensors.Tensor{inputBatch}, []*tensors.Tensor{oneHot}, nil
}

// normalizeBatch applies (x-mean)/stddev per channel, in place.
func (ds *Dataset) normalizeBatch(batch *tensors.Tensor) {
	switch ds.dtype {
	case dtypes.Float32:
		normalizeBatchImpl[float32](batch, ds.mean, ds.stddev)
	case dtypes.Float64:
		normalizeBatchImpl[float64](batch, ds.mean, ds.stddev)
	default:
		exceptions.Panicf("vaihingen.Dataset: normalization not implemented for dtype %s", ds.dtype)
	}
}

func normalizeBatchImpl[T float32 | float64](batch *tensors.Tensor, mean, stddev []float64) {
	numChannels := len(mean)
	batch.MustMutableFlatData(func(flatAny any) {
		flat := flatAny.([]T)
		for ii := range flat {
			channel := ii % numChannels
			flat[ii] = T((float64(flat[ii]) - mean[channel]) / stddev[channel])
		}
	})
}

// Reset implements train.Dataset: it restarts the dataset from the beginning,
// re-shuffling the selection for finite shuffled datasets.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.pos = 0
	if ds.infinite || ds.shuffle == nil {
		return
	}
	ds.selection = ds.shuffle.Perm(ds.numTiles)
}

// FitNormalization computes per-channel mean and standard deviation over one
// sample batch of the train input partition, in the [0, 1] channel scale the
// input tensors use. Channels with zero variance get stddev 1, so dividing by
// it is a no-op.
func FitNormalization(config *Config) (mean, stddev []float64, err error) {
	numTiles, err := countTilePairs(config, Train)
	if err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewSource(config.Seed))
	sampleSize := min(config.BatchSize, numTiles)

	var sum, sumSquares [3]float64
	var count float64
	inputDir := config.TilesDir(Train, InputSubDir)
	for _, idx := range rng.Perm(numTiles)[:sampleSize] {
		img, err := loadImage(path.Join(inputDir, fmt.Sprintf("%d.png", idx)))
		if err != nil {
			return nil, nil, err
		}
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				for channel, v := range [3]uint32{r, g, b} {
					value := float64(v) / float64(0xFFFF)
					sum[channel] += value
					sumSquares[channel] += value * value
				}
			}
			count += float64(bounds.Dx())
		}
	}

	mean = make([]float64, 3)
	stddev = make([]float64, 3)
	for channel := range mean {
		mean[channel] = sum[channel] / count
		variance := sumSquares[channel]/count - mean[channel]*mean[channel]
		if variance <= 0 {
			stddev[channel] = 1
		} else {
			stddev[channel] = math.Sqrt(variance)
		}
	}
	return mean, stddev, nil
}

// MakeTrainValidationDatasets builds the two batch streams used for training:
// both infinite, shuffled, augmented and normalized with statistics fit on
// the train partition.
func MakeTrainValidationDatasets(config *Config, dtype dtypes.DType) (trainDS, validationDS *Dataset, err error) {
	mean, stddev, err := FitNormalization(config)
	if err != nil {
		return nil, nil, err
	}
	trainDS, err = NewDataset("vaihingen train", config, Train,
		config.BatchSize, true, rand.New(rand.NewSource(config.Seed)), dtype)
	if err != nil {
		return nil, nil, err
	}
	trainDS.WithAugmentation().WithNormalization(mean, stddev)
	validationDS, err = NewDataset("vaihingen validation", config, Validation,
		config.BatchSize, true, rand.New(rand.NewSource(config.Seed)), dtype)
	if err != nil {
		return nil, nil, err
	}
	validationDS.WithAugmentation().WithNormalization(mean, stddev)
	return trainDS, validationDS, nil
}
