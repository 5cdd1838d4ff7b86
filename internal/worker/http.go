package worker

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// statusPayload is the JSON body served at /status.
type statusPayload struct {
	WorkerID      string      `json:"worker_id"`
	HasAssignment bool        `json:"has_assignment"`
	Synthesizers  int         `json:"synthesizers"`
	BufferSize    int         `json:"buffer_size"`
	Assignment    interface{} `json:"assignment,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Router builds the health/ready/status handler set. Metrics are served
// separately since they live on their own registry (internal/metrics).
func (w *Worker) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", w.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", w.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/status", w.handleStatus).Methods(http.MethodGet)
	return r
}

func (w *Worker) handleHealth(rw http.ResponseWriter, r *http.Request) {
	if !w.Healthy() {
		rw.WriteHeader(http.StatusServiceUnavailable)
		rw.Write([]byte("no assignment or synthesizers"))
		return
	}
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("OK"))
}

func (w *Worker) handleReady(rw http.ResponseWriter, r *http.Request) {
	if !w.Ready() {
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("READY"))
}

func (w *Worker) handleStatus(rw http.ResponseWriter, r *http.Request) {
	a := w.CurrentAssignment()
	payload := statusPayload{
		WorkerID:      w.id,
		HasAssignment: a != nil,
		Synthesizers:  w.SynthesizerCount(),
		BufferSize:    w.BufferSize(),
		Timestamp:     time.Now().UTC(),
	}
	if a != nil {
		payload.Assignment = a
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(payload)
}
