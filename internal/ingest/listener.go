// Package ingest exposes the engine's log intake over websocket. An
// external log-fetching collaborator connects and pushes line frames; each
// frame feeds both the similarity store and the profile tracker.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/skoglund/chronicle/internal/engine"
	"github.com/skoglund/chronicle/pkg/types"
)

// Frame is one pushed log line. Timestamp is optional; a zero value means
// the line is ingested as of arrival time.
type Frame struct {
	Line      string    `json:"line"`
	Server    string    `json:"server"`
	Cluster   string    `json:"cluster,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ack is the per-frame reply: either accepted or an input error. Fatal
// storage failures close the connection instead.
type ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Listener accepts websocket connections and streams log frames into the
// engine.
type Listener struct {
	engine *engine.ContextEngine
	server *http.Server
	logger *log.Logger
}

// NewListener creates a listener bound to addr.
func NewListener(eng *engine.ContextEngine, addr string) *Listener {
	l := &Listener{
		engine: eng,
		logger: log.New(log.Writer(), "[ingest] ", log.LstdFlags),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", l.handleIngest)

	l.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  0, // long-lived streaming connections
		WriteTimeout: 0,
	}
	return l
}

// ListenAndServe blocks serving connections until Shutdown is called.
func (l *Listener) ListenAndServe() error {
	l.logger.Printf("log ingest listening on ws://%s/ingest", l.server.Addr)
	err := l.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains active ones.
func (l *Listener) Shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}

// handleIngest upgrades the connection and consumes frames until the peer
// closes or a fatal storage failure occurs.
func (l *Listener) handleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		l.logger.Printf("websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	l.logger.Printf("log source connected from %s", r.RemoteAddr)
	ctx := r.Context()

	for {
		frame, err := readFrame(ctx, conn)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			l.logger.Printf("read frame: %v", err)
			conn.Close(websocket.StatusUnsupportedData, "malformed frame")
			return
		}

		reply := ack{OK: true}
		if frame.Server == "" || frame.Line == "" {
			reply = ack{OK: false, Error: "line and server are required"}
		} else if err := l.ingest(ctx, frame); err != nil {
			l.logger.Printf("ingest frame: %v", err)
			conn.Close(websocket.StatusInternalError, "storage unavailable")
			return
		}
		if err := writeAck(ctx, conn, reply); err != nil {
			l.logger.Printf("write ack: %v", err)
			return
		}
	}
}

// ingest feeds one frame into both memory paths. Invalid frames are
// acknowledged as errors by the caller, not ingested.
func (l *Listener) ingest(ctx context.Context, frame Frame) error {
	if frame.Line == "" || frame.Server == "" {
		return nil
	}
	scope := types.Scope{Server: frame.Server, Cluster: frame.Cluster}
	return l.engine.IngestLogsAt(ctx, []string{frame.Line}, scope, frame.Timestamp)
}

func readFrame(ctx context.Context, conn *websocket.Conn) (Frame, error) {
	var frame Frame
	msgType, data, err := conn.Read(ctx)
	if err != nil {
		return frame, err
	}
	if msgType != websocket.MessageText {
		return frame, fmt.Errorf("unexpected message type %v", msgType)
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return frame, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

func writeAck(ctx context.Context, conn *websocket.Conn, reply ack) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
