package ctlapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/plexsphere/tetherd/internal/tethering"
)

// Controller is the subset of *tethering.Engine the control API
// drives.
type Controller interface {
	Enable(mode tethering.Mode, upstreamIfname string) (bool, error)
	Disable(mode tethering.Mode) error
	ActiveMode() tethering.Mode
	EnableCount() int64
}

// NetworkCounter reports the number of active private networks,
// satisfied by *privnet.Manager.
type NetworkCounter interface {
	Count() int
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Mode            string `json:"mode"`
	EnableCount     int64  `json:"enable_count"`
	PrivateNetworks int    `json:"private_networks"`
}

type enableRequest struct {
	Mode     string `json:"mode"`
	Upstream string `json:"upstream"`
}

type disableRequest struct {
	Mode string `json:"mode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func parseMode(s string) (tethering.Mode, error) {
	switch s {
	case "nat":
		return tethering.ModeNAT, nil
	case "bridged-ap":
		return tethering.ModeBridgedAP, nil
	default:
		return tethering.ModeNone, fmt.Errorf("ctlapi: unknown mode %q", s)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Mux builds the HTTP handler served over the control socket.
func Mux(engine Controller, networks NetworkCounter) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		count := 0
		if networks != nil {
			count = networks.Count()
		}
		writeJSON(w, http.StatusOK, StatusResponse{
			Mode:            engine.ActiveMode().String(),
			EnableCount:     engine.EnableCount(),
			PrivateNetworks: count,
		})
	})

	mux.HandleFunc("/v1/enable", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req enableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		mode, err := parseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		started, err := engine.Enable(mode, req.Upstream)
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"started": started})
	})

	mux.HandleFunc("/v1/disable", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var req disableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		mode, err := parseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := engine.Disable(mode); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	return mux
}
