package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"

	"pipeline-integrity/defect"
	"pipeline-integrity/pipeline"
	"pipeline-integrity/utils"
)

// socketController serves the realtime surface: model metadata, catalog
// statistics, and batch ingestion over socket.io.
type socketController struct {
	service *pipeline.Service
}

func newSocketController(service *pipeline.Service) *socketController {
	return &socketController{service: service}
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	payload, err := json.Marshal(c.service.ModelInfo())
	if err != nil {
		logAndEmitError(socket, "failed to marshal model info", err)
		return
	}
	socket.Emit("modelInfo", string(payload))
}

func (c *socketController) handleRequestModelInfo(socket socketio.Conn) {
	c.emitModelInfo(socket)
}

func (c *socketController) handleRequestStats(socket socketio.Conn) {
	payload, err := json.Marshal(c.service.Statistics())
	if err != nil {
		logAndEmitError(socket, "failed to marshal catalog statistics", err)
		return
	}
	socket.Emit("catalogStats", string(payload))
}

// handleIngestBatch ingests a JSON array of raw rows, answers the caller with
// the batch result, and pushes fresh statistics to the same socket.
func (c *socketController) handleIngestBatch(socket socketio.Conn, msg string) {
	var rows []defect.RawRow
	if err := json.Unmarshal([]byte(msg), &rows); err != nil {
		logAndEmitError(socket, "invalid ingest payload", err)
		return
	}
	if len(rows) == 0 {
		socket.Emit("ingestError", map[string]string{"message": "no rows provided"})
		return
	}

	result, err := c.service.IngestBatch(rows)
	if err != nil {
		if !errors.Is(err, pipeline.ErrPersistence) {
			logAndEmitError(socket, "batch ingestion failed", err)
			return
		}
		// The catalog holds the batch; report the store failure but still
		// deliver the result so the caller doesn't replay the rows.
		logAndEmitError(socket, "catalog updated but persistence failed", err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		logAndEmitError(socket, "failed to marshal ingest result", err)
		return
	}
	socket.Emit("ingestResult", string(payload))

	c.handleRequestStats(socket)
}

func logAndEmitError(socket socketio.Conn, message string, err error) {
	logger := utils.GetLogger()
	logger.ErrorContext(context.Background(), message,
		slog.String("socketId", socket.ID()),
		slog.Any("error", xerrors.New(err)))
	socket.Emit("ingestError", map[string]string{"message": message})
}
