package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/CTAG07/nest/pkg/nest"
	"github.com/natefinch/atomic"
)

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	engine *nest.Nest
	logger *slog.Logger
}

// TemplateInfo describes an indexed template.
type TemplateInfo struct {
	Name   string   `json:"name"`
	Tokens []string `json:"tokens"`
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(engine *nest.Nest, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		engine: engine,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates/refresh", t.handleRefresh)
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/", t.handleFile)
}

// handleRefresh triggers a manual refresh of templates from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, ScopeTemplatesWrite) {
		return
	}
	if err := t.engine.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns every known template with its token names.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, ScopeTemplatesRead) {
		return
	}
	names, err := t.engine.TemplateNames()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list templates: %v", err))
		return
	}
	infos := make([]TemplateInfo, 0, len(names))
	for _, name := range names {
		ix, err := t.engine.Index(name)
		if err != nil {
			// Deleted since it was listed.
			continue
		}
		tokens := make([]string, 0, len(ix.Names))
		for token := range ix.Names {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)
		infos = append(infos, TemplateInfo{Name: name, Tokens: tokens})
	}
	respondWithJSON(w, http.StatusOK, infos)
}

// templatePath resolves a template name from the URL to a file inside the
// template directory.
func (t *TemplateAPI) templatePath(name string) (string, int, error) {
	if name == "" || strings.HasSuffix(name, "/") {
		return "", http.StatusNotFound, errors.New("Not Found")
	}
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", http.StatusBadRequest, errors.New("Invalid template name format")
	}

	templateDir, err := filepath.Abs(t.engine.GetTemplateDir())
	if err != nil {
		return "", http.StatusInternalServerError, errors.New("Failed to resolve template directory")
	}
	file := name
	if ext := t.engine.GetConfig().Extension; ext != "" {
		file += "." + ext
	}
	path := filepath.Join(templateDir, filepath.FromSlash(file))
	if !strings.HasPrefix(path, templateDir+string(filepath.Separator)) {
		return "", http.StatusForbidden, errors.New("Access denied: Path outside template directory")
	}
	return path, 0, nil
}

// handleFile manages CRUD operations for a single template file.
func (t *TemplateAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	path, code, err := t.templatePath(name)
	if err != nil {
		respondWithError(w, code, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, ScopeTemplatesRead) {
			return
		}
		content, err := os.ReadFile(path)
		if err != nil {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(content)

	case http.MethodPut:
		if !requireScope(w, r, ScopeTemplatesWrite) {
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create template directory: %v", err))
			return
		}
		if err = atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write template file: %v", err))
			return
		}
		t.refreshAfterChange(name)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !requireScope(w, r, ScopeTemplatesWrite) {
			return
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template file: %v", err))
			return
		}
		t.refreshAfterChange(name)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// refreshAfterChange re-indexes the template directory after a file was
// written or removed. A failure leaves the previous cache in place, where
// stale entries are still re-checked against file modification times.
func (t *TemplateAPI) refreshAfterChange(name string) {
	if err := t.engine.Refresh(); err != nil {
		t.logger.Warn("Template refresh after file change failed", "template", name, "error", err)
	}
}
