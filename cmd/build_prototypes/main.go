package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"speech-emotion/audio"
	"speech-emotion/classifier"
	"speech-emotion/features"
)

func main() {
	rootDir := flag.String("dir", "", "Root directory with one subdirectory per emotion")
	outputFile := flag.String("out", "saved_models/prototypes.json", "Output prototypes JSON file")
	k := flag.Int("k", 5, "Number of nearest neighbours stored with the model")
	appendMode := flag.Bool("append", false, "Add to the prototypes already in -out instead of replacing them")
	flag.Parse()

	if *rootDir == "" {
		log.Fatal("Usage: go run ./cmd/build_prototypes -dir <directory> [-out <file>] [-k 5]\n\n" +
			"Example structure:\n" +
			"  dataset/\n" +
			"    happy/\n" +
			"      clip1.wav\n" +
			"    sad/\n" +
			"      clip1.mp3\n")
	}

	subdirs, err := discoverSubdirectories(*rootDir)
	if err != nil {
		log.Fatalf("failed to read directory: %v", err)
	}
	if len(subdirs) == 0 {
		log.Fatalf("no subdirectories found in %s", *rootDir)
	}

	normalizer := audio.NewNormalizer()
	extractor := features.NewExtractor()
	ctx := context.Background()

	var prototypes []classifier.Prototype
	stats := make(map[string]int)

	for _, subdir := range subdirs {
		label := strings.ToLower(filepath.Base(subdir))
		if classifier.LabelIndex(label) < 0 {
			log.Printf("Skipping %s: not one of %v", filepath.Base(subdir), classifier.Labels())
			continue
		}

		files, err := collectAudioFiles(subdir)
		if err != nil {
			log.Printf("  ERROR reading directory: %v", err)
			continue
		}
		log.Printf("Processing %s (%d files)", label, len(files))

		for i, path := range files {
			proto, err := classifier.BuildPrototypeFromPath(ctx, normalizer, extractor, path, label)
			if err != nil {
				log.Printf("  [%d/%d] %s: ERROR %v", i+1, len(files), filepath.Base(path), err)
				continue
			}
			prototypes = append(prototypes, proto)
			stats[label]++
		}
	}

	if len(prototypes) == 0 {
		log.Fatal("no prototypes were created")
	}

	var model *classifier.PrototypeModel
	if *appendMode {
		model, err = classifier.LoadPrototypeModel(*outputFile, *k)
		if err != nil {
			log.Fatalf("failed to load existing prototypes: %v", err)
		}
		for _, proto := range prototypes {
			if err := model.AddPrototype(proto); err != nil {
				log.Fatalf("failed to add %s: %v", proto.Source, err)
			}
		}
	} else {
		model, err = classifier.NewPrototypeModel(prototypes, *k)
		if err != nil {
			log.Fatalf("failed to build model: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(*outputFile), 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	if err := model.Save(*outputFile); err != nil {
		log.Fatalf("failed to save prototypes: %v", err)
	}

	log.Printf("Added %d prototypes, %d total in %s", len(prototypes), model.Stats().PrototypeCount, *outputFile)
	log.Println("Label distribution:")
	for _, label := range classifier.Labels() {
		log.Printf("  %-10s %d", label, stats[label])
	}
}

func discoverSubdirectories(rootDir string) ([]string, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, err
	}

	var subdirs []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			subdirs = append(subdirs, filepath.Join(rootDir, entry.Name()))
		}
	}
	return subdirs, nil
}

func collectAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := audio.FormatFromName(entry.Name()); ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
