// Copyright 2026 The AerialSeg Authors. SPDX-License-Identifier: Apache-2.0

// vaihingen_prepare tiles the raw ISPRS Vaihingen rasters into the processed
// train/validation layout and sanity-checks the resulting batch streams.
//
// It expects the raw dataset under <data>/raw_data/ISPRS_semantic_labeling_Vaihingen
// and writes tiles under <data>/processed_data/vaihingen.
package main

import (
	"flag"
	"fmt"

	"github.com/aerialml/aerialseg/vaihingen"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var flagDataDir = flag.String("data", "~/work/vaihingen", "Base data directory holding the raw_data/ and processed_data/ layouts.")

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	config := vaihingen.DefaultConfig(*flagDataDir)
	if err := vaihingen.Process(config); err != nil {
		klog.Exitf("Failed to process Vaihingen dataset: %+v", err)
	}

	// One batch from each stream confirms the processed layout is servable.
	trainDS, validationDS := must.M2(vaihingen.MakeTrainValidationDatasets(config, dtypes.Float32))
	for _, ds := range []*vaihingen.Dataset{trainDS, validationDS} {
		_, inputs, labels, err := ds.Yield()
		must.M(err)
		fmt.Printf("%s: %d tile pairs, inputs %s, labels %s\n",
			ds.Name(), ds.NumTilePairs(), inputs[0].Shape(), labels[0].Shape())
	}
}
