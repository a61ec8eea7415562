package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/llmquality/verbatim-api/internal/api/dto"
	"github.com/llmquality/verbatim-api/internal/api/model"
	"github.com/llmquality/verbatim-api/internal/config"
	"github.com/llmquality/verbatim-api/internal/hub"
	"github.com/llmquality/verbatim-api/internal/ingest"
)

// WSHandler serves the live notification connection. Each client
// gets one subscriber in the registry; everything written to the
// wire goes through the subscriber's outbound queue so the socket
// has a single writer.
type WSHandler struct {
	logger   *slog.Logger
	pipeline *ingest.Pipeline
	registry *hub.Registry
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler instance
func NewWSHandler(deps *Dependencies) *WSHandler {
	return &WSHandler{
		logger:   deps.Logger,
		pipeline: deps.Pipeline,
		registry: deps.Registry,
		cfg:      deps.WebSocket,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser origin enforcement is handled upstream
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub := hub.NewSubscriber(h.cfg.SendBuffer)
	h.registry.Register(sub)

	go h.writePump(conn, sub)
	h.readLoop(c.Request.Context(), conn, sub)
}

// writePump drains the subscriber's outbound queue to the socket.
// It ends when the queue is closed (unregistration) or a write
// fails, and owns closing the connection.
func (h *WSHandler) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	defer conn.Close()

	writeTimeout := h.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	for msg := range sub.Outbound() {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("WebSocket write failed, dropping client",
				slog.String("error", err.Error()),
			)
			h.registry.Unregister(sub)
			// Keep draining so pending broadcasts don't block
			for range sub.Outbound() {
			}
			return
		}
	}
}

// readLoop processes inbound client envelopes until the connection
// goes away.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sub *hub.Subscriber) {
	defer h.registry.Unregister(sub)

	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("WebSocket closed unexpectedly",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		h.handleEnvelope(ctx, sub, data)
	}
}

// handleEnvelope dispatches one inbound frame. Malformed requests
// get an in-band error envelope; the connection stays open.
func (h *WSHandler) handleEnvelope(ctx context.Context, sub *hub.Subscriber, data []byte) {
	var envelope dto.ClientEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.sendJSON(sub, dto.StatusEnvelope{Status: "error", Message: "malformed request"})
		return
	}

	switch envelope.Action {
	case dto.ActionCSV:
		h.handleCSV(ctx, sub, envelope)
	case dto.ActionRerun:
		h.handleRerun(ctx, sub, envelope)
	default:
		h.sendJSON(sub, dto.StatusEnvelope{
			Status:  "error",
			Message: "unknown action: " + envelope.Action,
		})
	}
}

// handleCSV decodes the upload, submits every non-blank line and
// echoes the created records back to the client.
func (h *WSHandler) handleCSV(ctx context.Context, sub *hub.Subscriber, envelope dto.ClientEnvelope) {
	decoded, err := base64.StdEncoding.DecodeString(envelope.CSVFile)
	if err != nil {
		h.logger.Error("Failed to decode CSV upload", slog.String("error", err.Error()))
		h.sendJSON(sub, dto.StatusEnvelope{Status: "error", Message: "invalid base64 csv_file"})
		return
	}

	lines := strings.Split(string(decoded), "\n")
	h.logger.Info("Processing CSV upload",
		slog.Int("lines", len(lines)),
		slog.Int("year", envelope.Year),
	)

	verbatims, err := h.pipeline.SubmitNew(ctx, lines, envelope.Year)
	if err != nil {
		h.logger.Error("CSV submission failed", slog.String("error", err.Error()))
		h.sendJSON(sub, dto.StatusEnvelope{Status: "error", Message: err.Error()})
		if verbatims == nil {
			return
		}
		// Records that made it into the store are still echoed
	}

	h.sendJSON(sub, dto.StatusEnvelope{Status: "CSV processed", Count: len(verbatims)})
	h.echoVerbatims(sub, verbatims)
}

// handleRerun re-queues existing records and reports the per-item
// breakdown, skipped items included, back to the client.
func (h *WSHandler) handleRerun(ctx context.Context, sub *hub.Subscriber, envelope dto.ClientEnvelope) {
	items := make([]ingest.RerunItem, 0, len(envelope.Verbatims))
	for _, raw := range envelope.Verbatims {
		var ref struct {
			ID string `json:"id"`
		}
		// A raw item that fails to parse keeps an empty id and is
		// classified as non-existing downstream
		_ = json.Unmarshal(raw, &ref)
		items = append(items, ingest.RerunItem{ID: ref.ID, Raw: raw})
	}

	report, err := h.pipeline.SubmitRerun(ctx, items)
	if err != nil {
		h.logger.Error("Rerun submission failed", slog.String("error", err.Error()))
	}

	skipped := make([]json.RawMessage, 0, len(report.Skipped))
	for _, item := range report.Skipped {
		skipped = append(skipped, item.Raw)
	}

	h.sendJSON(sub, dto.RerunEnvelope{
		Status:               "RERUN initiated",
		PublishedCount:       report.Published,
		NonExistingCount:     len(report.Skipped),
		NonExistingVerbatims: skipped,
	})
	h.echoVerbatims(sub, report.Requeued)
}

func (h *WSHandler) echoVerbatims(sub *hub.Subscriber, verbatims []model.Verbatim) {
	for _, v := range verbatims {
		item, err := dto.FromModel(v)
		if err != nil {
			h.logger.Error("Failed to encode verbatim for client",
				slog.String("verbatim_id", v.VerbatimID),
				slog.String("error", err.Error()),
			)
			continue
		}
		h.sendJSON(sub, item)
	}
}

func (h *WSHandler) sendJSON(sub *hub.Subscriber, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket payload", slog.String("error", err.Error()))
		return
	}

	if err := sub.Send(data); err != nil {
		h.logger.Warn("Failed to enqueue WebSocket payload", slog.String("error", err.Error()))
	}
}
