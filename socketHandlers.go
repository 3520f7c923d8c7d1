package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"log/slog"
	"strings"

	"speech-emotion/models"
	"speech-emotion/pipeline"
	"speech-emotion/utils"

	"github.com/mdobak/go-xerrors"
)

// emitter is the part of socketio.Conn the controller needs.
type emitter interface {
	ID() string
	Emit(eventName string, v ...interface{})
}

type socketController struct {
	analyzer *pipeline.Analyzer
}

func newSocketController(analyzer *pipeline.Analyzer) *socketController {
	return &socketController{analyzer: analyzer}
}

func emitError(socket emitter, message string) {
	socket.Emit("analysisError", map[string]string{"message": message})
}

func (c *socketController) emitModelInfo(socket emitter) {
	info, err := c.analyzer.ModelInfo()
	if err != nil {
		emitError(socket, "model unavailable: "+err.Error())
		return
	}
	socket.Emit("modelInfo", info)
}

// decodeAudioPayload accepts plain base64 or a data URL.
func decodeAudioPayload(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ";base64,"); i != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
}

func (c *socketController) handleNewRecording(ctx context.Context, socket emitter, recordData string) {
	logger := utils.GetLogger()

	if recordData == "" {
		logger.ErrorContext(ctx, "no data received in newRecording event")
		emitError(socket, "no audio data received")
		return
	}

	var recData models.RecordData
	if err := json.Unmarshal([]byte(recordData), &recData); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse record payload", slog.Any("error", err))
		emitError(socket, "invalid audio payload")
		return
	}
	if recData.Audio == "" {
		emitError(socket, "no audio data received")
		return
	}

	fileName := recData.FileName
	if fileName == "" {
		fileName = "recording.wav"
	}

	raw, err := decodeAudioPayload(recData.Audio)
	if err != nil {
		logger.WarnContext(ctx, "invalid base64 audio", slog.String("socketID", socket.ID()), slog.Any("error", err))
		emitError(socket, "invalid audio payload")
		return
	}

	log.Printf("[handleNewRecording] Analyzing %s (%d bytes) for socket %s\n", fileName, len(raw), socket.ID())

	result, err := c.analyzer.Analyze(ctx, fileName, bytes.NewReader(raw))
	if err != nil {
		status, message := describeError(err)
		if status >= 500 {
			logger.ErrorContext(ctx, "analysis failed", slog.String("socketID", socket.ID()), slog.Any("error", xerrors.New(err)))
		}
		emitError(socket, message)
		return
	}

	if recData.Explain && c.analyzer.CanExplain() {
		if err := c.analyzer.Explain(ctx, result); err != nil {
			logger.WarnContext(ctx, "narration failed", slog.Any("error", xerrors.New(err)))
		}
	}

	logger.InfoContext(ctx, "prediction emitted",
		slog.String("socketID", socket.ID()),
		slog.String("label", result.Prediction.Label),
		slog.Float64("confidence", result.Prediction.Confidence),
	)
	socket.Emit("prediction", result)
}
