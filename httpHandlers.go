package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"

	"pipeline-integrity/catalog"
	"pipeline-integrity/db"
	"pipeline-integrity/defect"
	"pipeline-integrity/pipeline"
	"pipeline-integrity/report"
	"pipeline-integrity/utils"
)

type apiError struct {
	Message string `json:"message"`
}

type ingestRequest struct {
	Rows []defect.RawRow `json:"rows"`
}

type predictResponse struct {
	Prediction *defect.Prediction  `json:"prediction,omitempty"`
	Rejected   *defect.RejectedRow `json:"rejected,omitempty"`
}

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

func newIngestHandler(service *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid ingest payload")
			return
		}
		if len(req.Rows) == 0 {
			writeJSONError(w, http.StatusBadRequest, "no rows provided")
			return
		}

		result, err := service.IngestBatch(req.Rows)
		if err != nil {
			logger := utils.GetLogger()
			logger.ErrorContext(r.Context(), "batch ingestion failed", slog.Any("error", xerrors.New(err)))
			if errors.Is(err, pipeline.ErrPersistence) {
				// The catalog holds the batch; only the write-through store
				// failed. Return the result so callers don't re-ingest.
				writeJSON(w, http.StatusMultiStatus, map[string]interface{}{
					"result": result,
					"error":  "catalog updated but persistence failed",
				})
				return
			}
			writeJSONError(w, http.StatusInternalServerError, "batch ingestion failed")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func newDefectsHandler(service *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "GET required")
			return
		}

		filter, err := parseFilter(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		defects, err := service.Query(filter)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":   len(defects),
			"defects": defects,
		})
	}
}

func parseFilter(r *http.Request) (catalog.Filter, error) {
	var filter catalog.Filter
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("severity")); raw != "" {
		severity := defect.Severity(raw)
		filter.Severity = &severity
	}
	if raw := strings.TrimSpace(query.Get("type")); raw != "" {
		defectType := defect.DefectType(raw)
		filter.DefectType = &defectType
	}
	if raw := strings.TrimSpace(query.Get("segment")); raw != "" {
		segment, err := strconv.Atoi(raw)
		if err != nil {
			return catalog.Filter{}, xerrors.New("segment must be an integer")
		}
		filter.Segment = &segment
	}

	return filter, nil
}

func newStatsHandler(service *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "GET required")
			return
		}
		writeJSON(w, http.StatusOK, service.Statistics())
	}
}

func newPredictHandler(service *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}

		var row defect.RawRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid defect payload")
			return
		}

		prediction, rejected, err := service.ClassifySingle(row)
		if err != nil {
			logger := utils.GetLogger()
			logger.ErrorContext(r.Context(), "prediction failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "prediction failed")
			return
		}
		if rejected != nil {
			writeJSON(w, http.StatusUnprocessableEntity, predictResponse{Rejected: rejected})
			return
		}

		writeJSON(w, http.StatusOK, predictResponse{Prediction: &prediction})
	}
}

func newPredictBatchHandler(service *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid predict payload")
			return
		}
		if len(req.Rows) == 0 {
			writeJSONError(w, http.StatusBadRequest, "no rows provided")
			return
		}

		predictions, err := service.ClassifyBatch(req.Rows)
		if err != nil {
			logger := utils.GetLogger()
			logger.ErrorContext(r.Context(), "batch prediction failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "batch prediction failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":       len(predictions),
			"predictions": predictions,
		})
	}
}

func newModelInfoHandler(service *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "GET required")
			return
		}
		writeJSON(w, http.StatusOK, service.ModelInfo())
	}
}

func newReportHandler(service *pipeline.Service, reporter *report.GeminiClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "GET required")
			return
		}
		if reporter == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "report generation not configured (set GEMINI_API_KEY)")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		summary, err := reporter.Summarize(ctx, service.Statistics())
		if err != nil {
			logger := utils.GetLogger()
			logger.ErrorContext(r.Context(), "report generation failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadGateway, "report generation failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"report": summary})
	}
}

func serve(port, modelPath string, k int) {
	logger := utils.GetLogger()
	ctx := context.Background()

	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	// The model load is the pipeline's only startup suspend point; a missing
	// artifact is fatal (no partial operation without a model).
	classifier, err := defect.NewClassifierFromFile(modelPath, k)
	if err != nil {
		log.Fatalf("failed to load severity classifier: %v", err)
	}
	modelStats := classifier.Stats()
	if modelStats.UsingExample {
		logger.WarnContext(ctx, "serving with the bundled example model",
			slog.String("path", modelPath))
	}
	logger.InfoContext(ctx, "classifier loaded",
		slog.String("version", modelStats.Version),
		slog.Int("prototypes", modelStats.PrototypeCount))

	opts := []pipeline.Option{}
	if strings.EqualFold(utils.GetEnv("PERSIST_DEFECTS", "false"), "true") {
		store, err := db.NewClient()
		if err != nil {
			log.Fatalf("failed to open defect store: %v", err)
		}
		defer store.Close()
		opts = append(opts, pipeline.WithStore(store))
		logger.InfoContext(ctx, "write-through persistence enabled")
	}

	service := pipeline.New(classifier, opts...)

	var reporter *report.GeminiClient
	if os.Getenv("GEMINI_API_KEY") != "" {
		reporter, err = report.NewGeminiClient(ctx)
		if err != nil {
			logger.WarnContext(ctx, "report generation disabled", slog.Any("error", xerrors.New(err)))
		}
	}

	controller := newSocketController(service)

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
		controller.handleRequestModelInfo(socket)
	})

	server.OnEvent("/", "requestStats", func(socket socketio.Conn) {
		controller.handleRequestStats(socket)
	})

	server.OnEvent("/", "ingestBatch", func(socket socketio.Conn, msg string) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleIngestBatch for socket %s: %v\n", socket.ID(), r)
					socket.Emit("ingestError", map[string]string{"message": "internal server error during ingestion"})
				}
			}()
			controller.handleIngestBatch(socket, msg)
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

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/ingest", newIngestHandler(service))
	mux.HandleFunc("/api/defects", newDefectsHandler(service))
	mux.HandleFunc("/api/stats", newStatsHandler(service))
	mux.HandleFunc("/api/predict", newPredictHandler(service))
	mux.HandleFunc("/api/predict/batch", newPredictBatchHandler(service))
	mux.HandleFunc("/api/model", newModelInfoHandler(service))
	mux.HandleFunc("/api/report", newReportHandler(service, reporter))

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
