package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"

	"speech-emotion/audio"
	"speech-emotion/features"
	"speech-emotion/wav"
)

func main() {
	runs := flag.Int("n", 5, "Number of extraction passes")
	dump := flag.String("dump", "", "Write the normalized clip to this WAV file")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run ./cmd/test_determinism [-n 5] <audio-file>")
	}
	path := flag.Arg(0)

	normalizer := audio.NewNormalizer()
	extractor := features.NewExtractor()
	ctx := context.Background()

	var baseline features.Tensor
	maxDiff := 0.0

	for i := 0; i < *runs; i++ {
		waveform, src, err := normalizer.NormalizeFile(ctx, path)
		if err != nil {
			log.Fatalf("run %d: %v", i+1, err)
		}
		tensor, err := extractor.ExtractTensor(waveform)
		if err != nil {
			log.Fatalf("run %d: %v", i+1, err)
		}

		if i == 0 {
			baseline = tensor
			fmt.Printf("Source: %s, %d Hz, %d ch, %.2fs\n", src.Format, src.SampleRate, src.Channels, src.Duration)
			fmt.Printf("Tensor shape: %v\n", tensor.Shape)
			if *dump != "" {
				if err := wav.WriteWavFile(*dump, waveform.Samples(), waveform.SampleRate(), 1); err != nil {
					log.Fatalf("failed to write %s: %v", *dump, err)
				}
				fmt.Printf("Normalized clip written to %s\n", *dump)
			}
			continue
		}

		if tensor.Shape != baseline.Shape {
			log.Fatalf("run %d: shape %v differs from %v", i+1, tensor.Shape, baseline.Shape)
		}
		runDiff := 0.0
		for j := range tensor.Data {
			d := math.Abs(float64(tensor.Data[j] - baseline.Data[j]))
			if d > runDiff {
				runDiff = d
			}
		}
		fmt.Printf("Run %d: max diff %.9f\n", i+1, runDiff)
		if runDiff > maxDiff {
			maxDiff = runDiff
		}
	}

	if maxDiff == 0 {
		fmt.Println("Feature extraction is deterministic")
		return
	}
	fmt.Printf("Feature extraction is NOT deterministic (max diff %.9f)\n", maxDiff)
}
