// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

package segimage

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// This file implements the label codec: conversions between RGB color-coded
// label batches (shaped [batch, height, width, 3], Uint8), label-index
// batches ([batch, height, width], Int32) and one-hot batches
// ([batch, height, width, NumClasses()]).
//
// All conversions are pure and deterministic. Shape or dtype mismatches
// panic, following the convention of gomlx's tensors/images package.

// assertRGBBatch panics unless t is shaped [batch, height, width, 3] of Uint8.
func assertRGBBatch(op string, t *tensors.Tensor) {
	if t.Rank() != 4 || t.Shape().Dimensions[3] != 3 {
		exceptions.Panicf("segimage.%s: RGB batch must be shaped [batch, height, width, 3], got %s",
			op, t.Shape())
	}
	if t.DType() != dtypes.Uint8 {
		exceptions.Panicf("segimage.%s: RGB batch must be Uint8, got %s", op, t.DType())
	}
}

// assertLabelBatch panics unless t is shaped [batch, height, width] of Int32.
func assertLabelBatch(op string, t *tensors.Tensor) {
	if t.Rank() != 3 {
		exceptions.Panicf("segimage.%s: label batch must be shaped [batch, height, width], got %s",
			op, t.Shape())
	}
	if t.DType() != dtypes.Int32 {
		exceptions.Panicf("segimage.%s: label batch must be Int32, got %s", op, t.DType())
	}
}

// RGBToLabel converts a batch of RGB label images, shaped
// [batch, height, width, 3] (Uint8), to a batch of per-pixel class indices,
// shaped [batch, height, width] (Int32).
//
// Each pixel is assigned the index of the first class whose color matches
// exactly (integer equality per channel, no tolerance). Unmatched pixels get
// the LabelMap's fallback, UnknownClass unless WithFallback was set.
func (lm *LabelMap) RGBToLabel(rgb *tensors.Tensor) *tensors.Tensor {
	assertRGBBatch("RGBToLabel", rgb)
	dims := rgb.Shape().Dimensions
	labels := tensors.FromShape(shapes.Make(dtypes.Int32, dims[0], dims[1], dims[2]))
	tensors.MustConstFlatData(rgb, func(rgbFlat []uint8) {
		labels.MustMutableFlatData(func(flatAny any) {
			flat := flatAny.([]int32)
			for ii := range flat {
				pixel := rgbFlat[3*ii : 3*ii+3]
				flat[ii] = lm.ClassOf(pixel[0], pixel[1], pixel[2])
			}
		})
	})
	return labels
}

// LabelToRGB converts a batch of per-pixel class indices, shaped
// [batch, height, width] (Int32), back to RGB, shaped
// [batch, height, width, 3] (Uint8), by direct table lookup.
//
// Out-of-range indices (including UnknownClass) map to black (0, 0, 0).
func (lm *LabelMap) LabelToRGB(labels *tensors.Tensor) *tensors.Tensor {
	assertLabelBatch("LabelToRGB", labels)
	dims := labels.Shape().Dimensions
	numClasses := int32(lm.NumClasses())
	rgb := tensors.FromShape(shapes.Make(dtypes.Uint8, dims[0], dims[1], dims[2], 3))
	tensors.MustConstFlatData(labels, func(labelsFlat []int32) {
		rgb.MustMutableFlatData(func(flatAny any) {
			flat := flatAny.([]uint8)
			for ii, class := range labelsFlat {
				if class < 0 || class >= numClasses {
					continue // Leave the pixel black.
				}
				copy(flat[3*ii:3*ii+3], lm.classes[class].Color[:])
			}
		})
	})
	return rgb
}

// LabelToOneHot expands a batch of per-pixel class indices, shaped
// [batch, height, width] (Int32), into a one-hot batch shaped
// [batch, height, width, NumClasses()] of the given dtype.
//
// Out-of-range indices (including UnknownClass) produce an all-zero vector.
// Supported dtypes: Float32, Float64, Int32 and Uint8.
func (lm *LabelMap) LabelToOneHot(labels *tensors.Tensor, dtype dtypes.DType) *tensors.Tensor {
	assertLabelBatch("LabelToOneHot", labels)
	switch dtype {
	case dtypes.Float32:
		return labelToOneHotImpl[float32](lm, labels)
	case dtypes.Float64:
		return labelToOneHotImpl[float64](lm, labels)
	case dtypes.Int32:
		return labelToOneHotImpl[int32](lm, labels)
	case dtypes.Uint8:
		return labelToOneHotImpl[uint8](lm, labels)
	default:
		exceptions.Panicf("segimage.LabelToOneHot: dtype %s not supported", dtype)
		return nil
	}
}

func labelToOneHotImpl[T float32 | float64 | int32 | uint8](lm *LabelMap, labels *tensors.Tensor) *tensors.Tensor {
	dims := labels.Shape().Dimensions
	numClasses := lm.NumClasses()
	oneHot := tensors.FromShape(shapes.Make(
		dtypes.FromGenericsType[T](), dims[0], dims[1], dims[2], numClasses))
	tensors.MustConstFlatData(labels, func(labelsFlat []int32) {
		oneHot.MustMutableFlatData(func(flatAny any) {
			flat := flatAny.([]T)
			// tensors.FromShape zero-initializes, only the 1s need setting.
			for ii, class := range labelsFlat {
				if class < 0 || int(class) >= numClasses {
					continue
				}
				flat[ii*numClasses+int(class)] = 1
			}
		})
	})
	return oneHot
}

// OneHotToLabel collapses a one-hot (or class-probability) batch, shaped
// [batch, height, width, NumClasses()], to per-pixel class indices, shaped
// [batch, height, width] (Int32), taking the argmax over the channel axis.
// Ties break to the lowest index.
func (lm *LabelMap) OneHotToLabel(oneHot *tensors.Tensor) *tensors.Tensor {
	numClasses := lm.NumClasses()
	if oneHot.Rank() != 4 || oneHot.Shape().Dimensions[3] != numClasses {
		exceptions.Panicf("segimage.OneHotToLabel: batch must be shaped [batch, height, width, %d], got %s",
			numClasses, oneHot.Shape())
	}
	switch oneHot.DType() {
	case dtypes.Float32:
		return oneHotToLabelImpl[float32](lm, oneHot)
	case dtypes.Float64:
		return oneHotToLabelImpl[float64](lm, oneHot)
	case dtypes.Int32:
		return oneHotToLabelImpl[int32](lm, oneHot)
	case dtypes.Uint8:
		return oneHotToLabelImpl[uint8](lm, oneHot)
	default:
		exceptions.Panicf("segimage.OneHotToLabel: dtype %s not supported", oneHot.DType())
		return nil
	}
}

func oneHotToLabelImpl[T float32 | float64 | int32 | uint8](lm *LabelMap, oneHot *tensors.Tensor) *tensors.Tensor {
	dims := oneHot.Shape().Dimensions
	numClasses := lm.NumClasses()
	labels := tensors.FromShape(shapes.Make(dtypes.Int32, dims[0], dims[1], dims[2]))
	tensors.MustConstFlatData(oneHot, func(oneHotFlat []T) {
		labels.MustMutableFlatData(func(flatAny any) {
			flat := flatAny.([]int32)
			for ii := range flat {
				pixel := oneHotFlat[ii*numClasses : (ii+1)*numClasses]
				argMax := 0
				for class := 1; class < numClasses; class++ {
					if pixel[class] > pixel[argMax] {
						argMax = class
					}
				}
				flat[ii] = int32(argMax)
			}
		})
	})
	return labels
}

// RGBToOneHot is the composition of RGBToLabel and LabelToOneHot.
func (lm *LabelMap) RGBToOneHot(rgb *tensors.Tensor, dtype dtypes.DType) *tensors.Tensor {
	labels := lm.RGBToLabel(rgb)
	defer labels.MustFinalizeAll()
	return lm.LabelToOneHot(labels, dtype)
}

// OneHotToRGB is the composition of OneHotToLabel and LabelToRGB.
func (lm *LabelMap) OneHotToRGB(oneHot *tensors.Tensor) *tensors.Tensor {
	labels := lm.OneHotToLabel(oneHot)
	defer labels.MustFinalizeAll()
	return lm.LabelToRGB(labels)
}
