package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"speech-emotion/audio"
	"speech-emotion/chat"
	"speech-emotion/classifier"
	"speech-emotion/db"
	"speech-emotion/features"
	"speech-emotion/metrics"
	"speech-emotion/models"
	"speech-emotion/pipeline"
	"speech-emotion/utils"
	"speech-emotion/wav"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type apiError struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
	FFmpeg bool   `json:"ffmpeg"`
	Error  string `json:"error,omitempty"`
}

type runsResponse struct {
	Runs   []models.InferenceRun  `json:"runs"`
	Counts map[models.Outcome]int `json:"counts"`
}

// runStore is the read side of the run log.
type runStore interface {
	RecentRuns(limit int) ([]models.InferenceRun, error)
	OutcomeCounts() (map[models.Outcome]int, error)
}

// multipart overhead allowed on top of the audio itself
const formOverheadBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
}

// describeError maps an analysis failure to a status code and a message safe
// to show the uploader.
func describeError(err error) (int, string) {
	var extractionErr *features.ExtractionError
	switch {
	case audio.IsDecodeError(err):
		return http.StatusUnprocessableEntity, err.Error()
	case classifier.IsContractMismatch(err), errors.As(err, &extractionErr):
		return http.StatusInternalServerError, "model contract violation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "analysis cancelled"
	default:
		return http.StatusBadGateway, "inference failed"
	}
}

func newPredictHandler(analyzer *pipeline.Analyzer, maxUploadBytes int64) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		setCORS(w, "POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+formOverheadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "no audio file provided")
			return
		}
		defer file.Close()

		log.Printf("[HTTP] Prediction request: file=%s, size=%d\n", header.Filename, header.Size)

		result, err := analyzer.Analyze(ctx, header.Filename, file)
		if err != nil {
			status, message := describeError(err)
			if status >= http.StatusInternalServerError {
				logger.ErrorContext(ctx, "analysis failed", slog.String("file", header.Filename), slog.Any("error", xerrors.New(err)))
			} else {
				logger.WarnContext(ctx, "rejected upload", slog.String("file", header.Filename), slog.String("reason", err.Error()))
			}
			writeJSONError(w, status, message)
			return
		}

		if explain, _ := strconv.ParseBool(r.FormValue("explain")); explain && analyzer.CanExplain() {
			if err := analyzer.Explain(ctx, result); err != nil {
				logger.WarnContext(ctx, "narration failed", slog.Any("error", xerrors.New(err)))
			}
		}

		logger.InfoContext(ctx, "prediction complete",
			slog.String("id", result.ID),
			slog.String("label", result.Prediction.Label),
			slog.Float64("confidence", result.Prediction.Confidence),
			slog.Float64("latencyMs", result.LatencyMs),
		)
		writeJSON(w, http.StatusOK, result)
	}
}

func newModelInfoHandler(analyzer *pipeline.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w, "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		info, err := analyzer.ModelInfo()
		if err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "model unavailable: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func newHealthHandler(analyzer *pipeline.Analyzer, ffmpegCheck func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", FFmpeg: ffmpegCheck() == nil}
		if info, err := analyzer.ModelInfo(); err == nil {
			resp.Model = info.Name
		}
		if err := analyzer.Health(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func newRunsHandler(store runStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w, "GET, OPTIONS")
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if store == nil {
			writeJSONError(w, http.StatusNotFound, "run log is disabled")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		runs, err := store.RecentRuns(limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to read run log")
			return
		}
		counts, err := store.OutcomeCounts()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to read run log")
			return
		}
		if runs == nil {
			runs = []models.InferenceRun{}
		}
		writeJSON(w, http.StatusOK, runsResponse{Runs: runs, Counts: counts})
	}
}

// app holds the long-lived services shared by HTTP and socket handlers.
type app struct {
	analyzer       *pipeline.Analyzer
	runs           runStore
	metrics        *metrics.Metrics
	maxUploadBytes int64
	ffmpegCheck    func() error
}

func (a *app) routes(socketServer http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	if socketServer != nil {
		mux.Handle("/socket.io/", socketServer)
	}
	mux.HandleFunc("/api/emotion/predict", a.metrics.Wrap("/api/emotion/predict", newPredictHandler(a.analyzer, a.maxUploadBytes)))
	mux.HandleFunc("/api/model", a.metrics.Wrap("/api/model", newModelInfoHandler(a.analyzer)))
	mux.HandleFunc("/api/health", a.metrics.Wrap("/api/health", newHealthHandler(a.analyzer, a.ffmpegCheck)))
	mux.HandleFunc("/api/runs", a.metrics.Wrap("/api/runs", newRunsHandler(a.runs)))
	mux.Handle("/metrics", a.metrics.Handler())
	mux.Handle("/", http.FileServer(http.Dir("static")))
	return mux
}

func newApp(ctx context.Context) (*app, func()) {
	logger := utils.GetLogger()
	var closers []func()

	tmpDir := utils.GetEnv("TMP_DIR", "tmp")
	maxMB, err := strconv.Atoi(utils.GetEnv("UPLOAD_MAX_MB", "25"))
	if err != nil || maxMB <= 0 {
		log.Printf("invalid UPLOAD_MAX_MB, using 25")
		maxMB = 25
	}
	maxUploadBytes := int64(maxMB) << 20

	var loader *classifier.Loader
	if manifest := utils.GetEnv("MODEL_MANIFEST", ""); manifest != "" {
		loader = classifier.NewLoader(manifest)
	} else {
		loader = classifier.NewLoader()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	opts := []pipeline.Option{
		pipeline.WithTempDir(tmpDir),
		pipeline.WithMaxUploadBytes(maxUploadBytes),
		pipeline.WithObserver(m),
		pipeline.WithLogger(logger),
	}

	var runs runStore
	if dsn := utils.GetEnv("RUN_LOG_DSN", ""); dsn != "" {
		client, err := db.NewSQLiteClient(dsn)
		if err != nil {
			logger.ErrorContext(ctx, "failed to open run log, continuing without it", slog.Any("error", xerrors.New(err)))
		} else {
			log.Printf("Run log enabled at %s\n", dsn)
			if days, err := strconv.Atoi(utils.GetEnv("RUN_LOG_RETENTION_DAYS", "30")); err == nil && days > 0 {
				if removed, err := client.PruneRuns(time.Now().AddDate(0, 0, -days)); err != nil {
					logger.WarnContext(ctx, "failed to prune run log", slog.Any("error", xerrors.New(err)))
				} else if removed > 0 {
					log.Printf("Pruned %d runs older than %d days\n", removed, days)
				}
			}
			opts = append(opts, pipeline.WithRunRecorder(client))
			runs = client
			closers = append(closers, func() { client.Close() })
		}
	}

	if apiKey := utils.GetEnv("GEMINI_API_KEY", ""); apiKey != "" {
		narrator, err := chat.NewNarrator(ctx, apiKey)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create narrator", slog.Any("error", xerrors.New(err)))
		} else {
			log.Println("Narration enabled")
			opts = append(opts, pipeline.WithNarrator(narrator))
		}
	}

	normalizer := audio.NewNormalizer(audio.WithTempDir(tmpDir))
	analyzer := pipeline.New(normalizer, features.NewExtractor(), loader, opts...)

	// load eagerly so a broken manifest shows up in the startup log
	if info, err := analyzer.ModelInfo(); err != nil {
		logger.ErrorContext(ctx, "failed to load emotion model", slog.Any("error", xerrors.New(err)))
	} else {
		log.Printf("Loaded model %s (backend=%s, input=%s)\n", info.Name, info.Backend, info.InputShape)
	}

	a := &app{
		analyzer:       analyzer,
		runs:           runs,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
		ffmpegCheck:    wav.CheckFFmpegAvailable,
	}
	return a, func() {
		for _, c := range closers {
			c()
		}
	}
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	a, cleanup := newApp(context.Background())
	defer cleanup()

	controller := newSocketController(a.analyzer)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		log.Printf("requestModelInfo received from %s\n", socket.ID())
		controller.emitModelInfo(socket)
	})

	server.OnEvent("/", "newRecording", func(socket socketio.Conn, msg string) {
		log.Printf("newRecording received from %s, data length: %d\n", socket.ID(), len(msg))
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleNewRecording for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleNewRecording(context.Background(), socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTP(protocol == "https", port, a.routes(server))
}

func serveHTTP(serveHTTPS bool, port string, handler http.Handler) {
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert: set CERT_FILE and CERT_KEY")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
