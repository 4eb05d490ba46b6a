package api

import (
	"encoding/json"
	"errors"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/maxot/showrunner/internal/lifecycle"
	"github.com/maxot/showrunner/internal/scenario"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth returns a simple health check
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StartGameRequest is the request body for starting a show
type StartGameRequest struct {
	Scenario string   `json:"scenario"` // path to a .show bundle or scenario yaml
	Players  []string `json:"players"`
}

// handleGameStart loads the scenario and begins a new show
func (r *Router) handleGameStart(w http.ResponseWriter, req *http.Request) {
	var body StartGameRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Scenario == "" {
		writeError(w, http.StatusBadRequest, "scenario is required")
		return
	}

	scn, err := scenario.Load(body.Scenario)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	game, err := r.svc.Start(req.Context(), lifecycle.StartRequest{
		Scenario: scn,
		Players:  body.Players,
	})
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

func (r *Router) handleGamePause(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.Pause(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (r *Router) handleGameResume(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.Resume(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (r *Router) handleGameSkip(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.SkipStage(); err != nil {
		if errors.Is(err, lifecycle.ErrSkipDenied) {
			writeError(w, http.StatusConflict, "skip not allowed here")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
}

func (r *Router) handleGameStop(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.ForceStop(req.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// GameStatusResponse summarizes the running show for the console
type GameStatusResponse struct {
	Running   bool   `json:"running"`
	State     string `json:"state,omitempty"`
	GameUUID  string `json:"game_uuid,omitempty"`
	Scenario  string `json:"scenario,omitempty"`
	Connected int    `json:"connected_players,omitempty"`
	Clients   int    `json:"clients"`
}

// handleGameStatus reports whether a show runs and where it is
func (r *Router) handleGameStatus(w http.ResponseWriter, req *http.Request) {
	resp := GameStatusResponse{Clients: r.wsHub.ClientCount()}

	game, err := r.svc.Game()
	if err != nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Running = true
	resp.GameUUID = game.UUID
	resp.Scenario = game.ScenarioName

	if eng, err := r.svc.Engine(); err == nil {
		resp.State = eng.State()
	}
	if sess, err := r.svc.Session(); err == nil {
		resp.Connected = sess.ConnectedCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRecentGames returns the latest game records
func (r *Router) handleRecentGames(w http.ResponseWriter, req *http.Request) {
	games, err := r.store.RecentGames(req.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// handleJoinQR renders the join URL as a QR code for player devices
func (r *Router) handleJoinQR(w http.ResponseWriter, req *http.Request) {
	png, err := qrcode.Encode(r.publicURL, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
