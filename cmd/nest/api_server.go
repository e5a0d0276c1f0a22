package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Actions delivered to the serve loop.
const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI exposes configuration and process control.
type ServerAPI struct {
	cm         *ConfigManager
	actionChan chan string
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func NewServerAPI(cm *ConfigManager, actionChan chan string, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{cm: cm, actionChan: actionChan, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/server endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/server/config", a.handleConfig)
	mux.HandleFunc("/api/server/version", a.handleVersion)
	mux.HandleFunc("/api/server/shutdown", a.handleAction(actionShutdown, "Server is shutting down..."))
	mux.HandleFunc("/api/server/restart", a.handleAction(actionRestart, "Server is restarting..."))
}

// allowMethod answers 405 unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func (a *ServerAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if requireScope(w, r, ScopeServerConfig) {
			respondWithJSON(w, http.StatusOK, a.cm.Get())
		}
	case http.MethodPut:
		if requireScope(w, r, ScopeServerConfig) {
			a.updateConfig(w, r)
		}
	default:
		w.Header().Set("Allow", "GET, PUT")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// updateConfig replaces the whole configuration. Listen addresses and the
// database path only take effect after a restart; engine settings apply
// immediately.
func (a *ServerAPI) updateConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig Config
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&newConfig); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid config body: %v", err))
		return
	}

	old := a.cm.Get()
	if err := a.cm.Update(newConfig); err != nil {
		if errors.Is(err, errConfigRejected) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("Failed to save configuration", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save configuration")
		return
	}

	restart := old.Server.SiteAddr != newConfig.Server.SiteAddr ||
		old.Server.ApiAddr != newConfig.Server.ApiAddr ||
		old.Server.DatabasePath != newConfig.Server.DatabasePath
	a.logger.Info("Configuration updated via API", "restart_required", restart)
	respondWithJSON(w, http.StatusOK, a.cm.Get())
}

func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, ScopeStatsRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{Version: Version, Commit: Commit, BuildDate: BuildDate})
}

// handleAction acknowledges the request, then hands action to the serve
// loop, which shuts the HTTP servers down gracefully.
func (a *ServerAPI) handleAction(action, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) || !requireScope(w, r, ScopeServerControl) {
			return
		}
		a.logger.Warn("Server action requested via API", "action", action)
		respondWithJSON(w, http.StatusAccepted, map[string]string{"message": message})
		go func() {
			a.actionChan <- action
		}()
	}
}

// handleHealthCheck is unauthenticated for container health checks.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if allowMethod(w, r, http.MethodGet) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
