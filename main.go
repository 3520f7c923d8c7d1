package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"

	"speech-emotion/db"
	"speech-emotion/models"
	"speech-emotion/utils"
	"speech-emotion/wav"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

func main() {
	_ = godotenv.Load()

	if err := utils.CreateFolder(utils.GetEnv("TMP_DIR", "tmp")); err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		ctx := context.Background()
		logger.ErrorContext(ctx, "Failed create tmp dir.", slog.Any("error", err))
	}

	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' or 'runs' subcommands")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := wav.CheckFFmpegAvailable(); err != nil {
			log.Printf("WARNING: %v\n", err)
			log.Println("The server will start but only WAV uploads can be decoded until FFmpeg is installed.")
		} else {
			log.Println("FFmpeg is available")
		}

		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "5000", "Port to use")
		serveCmd.Parse(os.Args[2:])
		serve(*protocol, *port)
	case "runs":
		runsCmd := flag.NewFlagSet("runs", flag.ExitOnError)
		limit := runsCmd.Int("n", 20, "Number of recent runs to show")
		runsCmd.Parse(os.Args[2:])
		if err := printRuns(utils.GetEnv("RUN_LOG_DSN", ""), *limit); err != nil {
			log.Fatalf("failed to read run log: %v", err)
		}
	default:
		fmt.Println("Expected 'serve' or 'runs' subcommands")
		os.Exit(1)
	}
}

func printRuns(dsn string, limit int) error {
	if dsn == "" {
		return fmt.Errorf("RUN_LOG_DSN is not set")
	}
	client, err := db.NewSQLiteClient(dsn)
	if err != nil {
		return err
	}
	defer client.Close()

	runs, err := client.RecentRuns(limit)
	if err != nil {
		return err
	}
	counts, err := client.OutcomeCounts()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tFORMAT\tSECONDS\tRATE\tCH\tOUTCOME\tLATENCY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%d\t%d\t%s\t%.1fms\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.SourceFormat,
			r.SourceSeconds, r.SourceRate, r.Channels, r.Outcome, r.LatencyMs)
	}
	tw.Flush()

	fmt.Println()
	for _, o := range models.Outcomes {
		fmt.Printf("%-18s %d\n", o, counts[o])
	}
	return nil
}
