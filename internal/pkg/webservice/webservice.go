package webservice

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/sestream/internal/pkg/codec"
)

const writeWait = 5 * time.Second

// Source is the consumer state served over HTTP.
type Source interface {
	Latest() ([]codec.Record, time.Time, bool)
	Node(id string) (codec.Record, bool)
	Listen() (uuid.UUID, <-chan []byte)
	Unlisten(uuid.UUID)
}

type errorBody struct {
	Error string `json:"error"`
}

// App serves the latest estimate, a live stream of payloads and the metrics endpoint.
type App struct {
	source   Source
	metrics  http.Handler
	upgrader websocket.Upgrader
}

// New returns an App. A nil source or metrics handler leaves its routes out.
func New(source Source, metrics http.Handler) *App {
	return &App{
		source:  source,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router builds the route table.
func (app *App) Router() *mux.Router {
	r := mux.NewRouter()
	if app.source != nil {
		r.HandleFunc("/results/latest", app.LatestHandler).Methods("GET")
		r.HandleFunc("/results/latest/{node}", app.NodeHandler).Methods("GET")
		r.HandleFunc("/results/stream", app.StreamHandler).Methods("GET")
	}
	if app.metrics != nil {
		r.Handle("/metrics", app.metrics).Methods("GET")
	}
	return r
}

// ListenAndServe serves the router on addr until ctx is done.
func (app *App) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	logs.Infof("[Webservice] listening on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logs.Errorf(err, "[Webservice] malformed JSON")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	w.Write(body)
}

// LatestHandler returns the last received payload.
func (app *App) LatestHandler(w http.ResponseWriter, r *http.Request) {
	records, received, ok := app.source.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{"no estimate received yet"})
		return
	}
	w.Header().Set("Last-Modified", received.UTC().Format(http.TimeFormat))
	writeJSON(w, http.StatusOK, records)
}

// NodeHandler returns one node of the last received payload.
func (app *App) NodeHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["node"]
	record, ok := app.source.Node(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{"node " + id + " not in latest estimate"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// StreamHandler upgrades to a websocket and forwards every payload as a text message.
func (app *App) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("[Webservice] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	id, live := app.source.Listen()
	defer app.source.Unlisten(id)
	logs.Debugf("[Webservice] stream %s opened from %s", id, r.RemoteAddr)

	// the read side only exists to notice the peer closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-live:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logs.Debugf("[Webservice] stream %s write: %v", id, err)
				return
			}
		case <-closed:
			logs.Debugf("[Webservice] stream %s closed by peer", id)
			return
		}
	}
}
