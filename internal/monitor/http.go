package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// statusSummary is the JSON body served at /status.
type statusSummary struct {
	FamilyCount int       `json:"family_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// familyStatus is one entry in the /families array.
type familyStatus struct {
	FamilyID          string    `json:"family_id"`
	Status            string    `json:"status"`
	ConsecutiveRed    int       `json:"consecutive_red"`
	HasScores         bool      `json:"has_scores"`
	JensenShannonMean float64   `json:"jensen_shannon_mean,omitempty"`
	Wasserstein       float64   `json:"wasserstein,omitempty"`
	KolmogorovSmirnov float64   `json:"kolmogorov_smirnov,omitempty"`
	SampleCount       int       `json:"sample_count,omitempty"`
	ComputedAt        time.Time `json:"computed_at,omitempty"`
}

// Router builds the monitor's HTTP handler set. Divergence gauges are
// served separately via the metrics.Monitor Handler, since they live on
// their own registry.
func (mon *Monitor) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", mon.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/families", mon.handleFamilies).Methods(http.MethodGet)
	r.HandleFunc("/compute", mon.handleCompute).Methods(http.MethodPost)
	return r
}

func (mon *Monitor) handleStatus(rw http.ResponseWriter, r *http.Request) {
	mon.mu.RLock()
	count := len(mon.families)
	mon.mu.RUnlock()

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(statusSummary{FamilyCount: count, Timestamp: time.Now().UTC()})
}

func (mon *Monitor) handleFamilies(rw http.ResponseWriter, r *http.Request) {
	mon.mu.RLock()
	families := make(map[string]*FamilyMonitor, len(mon.families))
	for id, fm := range mon.families {
		families[id] = fm
	}
	mon.mu.RUnlock()

	out := make([]familyStatus, 0, len(families))
	for id, fm := range families {
		scores, status, consecutiveRed, hasScores := fm.Snapshot()
		entry := familyStatus{
			FamilyID:       id,
			Status:         status.String(),
			ConsecutiveRed: consecutiveRed,
			HasScores:      hasScores,
		}
		if hasScores {
			entry.JensenShannonMean = scores.JensenShannonMean
			entry.Wasserstein = scores.Wasserstein
			entry.KolmogorovSmirnov = scores.KolmogorovSmirnov
			entry.SampleCount = scores.SampleCount
			entry.ComputedAt = scores.ComputedAt
		}
		out = append(out, entry)
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(out)
}

// handleCompute triggers an out-of-band compute pass synchronously and
// reports 202 once it has run, rather than merely queuing it.
func (mon *Monitor) handleCompute(rw http.ResponseWriter, r *http.Request) {
	mon.ComputeAll()
	rw.WriteHeader(http.StatusAccepted)
}
