package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/CTAG07/nest/pkg/nest"
)

// maxTreeBytes caps request bodies holding input trees.
const maxTreeBytes = 4 << 20

// RenderAPI renders ad-hoc input trees posted by API clients.
type RenderAPI struct {
	engine *nest.Nest
	logger *slog.Logger
}

func NewRenderAPI(engine *nest.Nest, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{
		engine: engine,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for the /api/render endpoint.
func (a *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render", a.handleRender)
}

// handleRender renders the JSON or YAML input tree in the request body.
func (a *RenderAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, ScopeRenderExec) {
		return
	}

	tree, err := readTree(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := a.engine.Render(tree)
	if err != nil {
		a.logger.Warn("API render failed", "error", err)
		respondWithError(w, renderErrorStatus(err), fmt.Sprintf("Render failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

// readTree decodes the request body as YAML when the content type says so
// and as JSON otherwise.
func readTree(r *http.Request) (nest.Value, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxTreeBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return nest.ParseYAML(body)
	case "application/toml":
		return nest.ParseTOML(body)
	default:
		return nest.ParseJSON(body)
	}
}

// renderErrorStatus maps engine errors onto HTTP status codes.
func renderErrorStatus(err error) int {
	switch {
	case errors.Is(err, nest.ErrTemplateFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, nest.ErrNoNameLabel),
		errors.Is(err, nest.ErrInvalidNameLabel),
		errors.Is(err, nest.ErrBadParams),
		errors.Is(err, nest.ErrUnsupportedValue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
