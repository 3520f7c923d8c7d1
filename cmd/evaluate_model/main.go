package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"speech-emotion/audio"
	"speech-emotion/classifier"
	"speech-emotion/features"
)

// EvaluationConfig holds evaluation parameters
type EvaluationConfig struct {
	ManifestPath string
	DataDir      string
	ReportPath   string
	Verbose      bool
}

// ClassMetrics tracks per-class performance
type ClassMetrics struct {
	ClassName     string  `json:"className"`
	TotalSamples  int     `json:"totalSamples"`
	CorrectCount  int     `json:"correctCount"`
	Accuracy      float64 `json:"accuracy"`
	AvgConfidence float64 `json:"avgConfidence"`
}

// EvaluationReport contains the evaluation results
type EvaluationReport struct {
	Timestamp       time.Time                 `json:"timestamp"`
	Model           classifier.ModelInfo      `json:"model"`
	TotalSamples    int                       `json:"totalSamples"`
	CorrectCount    int                       `json:"correctCount"`
	Failed          int                       `json:"failed"`
	OverallAccuracy float64                   `json:"overallAccuracy"`
	ClassMetrics    []ClassMetrics            `json:"classMetrics"`
	ConfusionMatrix map[string]map[string]int `json:"confusionMatrix"`
	ProcessingTime  string                    `json:"processingTime"`
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Model Evaluation ===")

	candidates := classifier.DefaultManifestPaths
	if config.ManifestPath != "" {
		candidates = []string{config.ManifestPath}
	}
	loader := classifier.NewLoader(candidates...)
	model, err := loader.Get()
	if err != nil {
		log.Fatalf("ERROR: Failed to load model: %v", err)
	}
	info, _ := loader.Info()
	log.Printf("Model: %s (%s), input %s", info.Name, info.Backend, info.InputShape)

	subdirs, err := os.ReadDir(config.DataDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to read evaluation directory: %v", err)
	}

	report := EvaluationReport{
		Timestamp:       time.Now(),
		Model:           info,
		ConfusionMatrix: make(map[string]map[string]int),
	}

	normalizer := audio.NewNormalizer()
	extractor := features.NewExtractor()
	ctx := context.Background()

	for _, entry := range subdirs {
		trueLabel := strings.ToLower(entry.Name())
		if !entry.IsDir() || classifier.LabelIndex(trueLabel) < 0 {
			continue
		}
		dir := filepath.Join(config.DataDir, entry.Name())
		metrics := ClassMetrics{ClassName: trueLabel}
		row := make(map[string]int)
		confidence := 0.0

		files, _ := os.ReadDir(dir)
		for _, f := range files {
			if _, ok := audio.FormatFromName(f.Name()); f.IsDir() || !ok {
				continue
			}
			path := filepath.Join(dir, f.Name())
			prediction, err := predict(ctx, normalizer, extractor, model, path)
			if err != nil {
				log.Printf("WARNING: %s: %v", path, err)
				report.Failed++
				continue
			}

			metrics.TotalSamples++
			confidence += prediction.Confidence
			row[prediction.Label]++
			if prediction.Label == trueLabel {
				metrics.CorrectCount++
			} else if config.Verbose {
				log.Printf("  %s: predicted %s (%.1f%%)", f.Name(), prediction.Label, prediction.Confidence*100)
			}
		}

		if metrics.TotalSamples > 0 {
			metrics.Accuracy = float64(metrics.CorrectCount) / float64(metrics.TotalSamples) * 100
			metrics.AvgConfidence = confidence / float64(metrics.TotalSamples)
		}
		report.ClassMetrics = append(report.ClassMetrics, metrics)
		report.ConfusionMatrix[trueLabel] = row
		report.TotalSamples += metrics.TotalSamples
		report.CorrectCount += metrics.CorrectCount
	}

	if report.TotalSamples == 0 {
		log.Fatalf("no labelled audio found under %s", config.DataDir)
	}
	report.OverallAccuracy = float64(report.CorrectCount) / float64(report.TotalSamples) * 100
	report.ProcessingTime = time.Since(report.Timestamp).Round(time.Millisecond).String()

	printReport(report)

	if config.ReportPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			err = os.WriteFile(config.ReportPath, data, 0644)
		}
		if err != nil {
			log.Printf("WARNING: Failed to save report: %v", err)
		} else {
			log.Printf("Report saved to: %s", config.ReportPath)
		}
	}
}

func parseFlags() EvaluationConfig {
	config := EvaluationConfig{}

	flag.StringVar(&config.ManifestPath, "manifest", "", "Model manifest (defaults to the server's search paths)")
	flag.StringVar(&config.DataDir, "dir", "dataset", "Directory with one subdirectory per emotion")
	flag.StringVar(&config.ReportPath, "report", "evaluation_report.json", "Path to save the report (empty to skip)")
	flag.BoolVar(&config.Verbose, "verbose", false, "Log every misclassification")
	flag.Parse()

	return config
}

func predict(ctx context.Context, normalizer *audio.Normalizer, extractor *features.Extractor, model classifier.Classifier, path string) (classifier.PredictionResult, error) {
	waveform, _, err := normalizer.NormalizeFile(ctx, path)
	if err != nil {
		return classifier.PredictionResult{}, err
	}
	tensor, err := extractor.ExtractTensor(waveform)
	if err != nil {
		return classifier.PredictionResult{}, err
	}
	return classifier.Classify(ctx, model, tensor)
}

func printReport(report EvaluationReport) {
	labels := classifier.Labels()

	fmt.Println()
	fmt.Printf("Samples: %d  Correct: %d  Failed: %d  Accuracy: %.2f%%  (%s)\n",
		report.TotalSamples, report.CorrectCount, report.Failed, report.OverallAccuracy, report.ProcessingTime)
	fmt.Println()

	for _, m := range report.ClassMetrics {
		fmt.Printf("%-10s %4d/%-4d %6.2f%%  avg confidence %.3f\n",
			m.ClassName, m.CorrectCount, m.TotalSamples, m.Accuracy, m.AvgConfidence)
	}

	fmt.Println()
	fmt.Printf("%-10s", "true\\pred")
	for _, l := range labels {
		fmt.Printf("%9s", l)
	}
	fmt.Println()
	for _, trueLabel := range labels {
		row, ok := report.ConfusionMatrix[trueLabel]
		if !ok {
			continue
		}
		fmt.Printf("%-10s", trueLabel)
		for _, l := range labels {
			fmt.Printf("%9d", row[l])
		}
		fmt.Println()
	}
}
