package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/CTAG07/nest/pkg/nest"
	"github.com/CTAG07/nest/pkg/pagestore"
)

// PagesAPI manages the input trees stored for site pages.
type PagesAPI struct {
	store  *pagestore.Store
	logger *slog.Logger
}

func NewPagesAPI(store *pagestore.Store, logger *slog.Logger) *PagesAPI {
	return &PagesAPI{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/pages endpoints.
func (p *PagesAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/pages", p.handleList)
	mux.HandleFunc("/api/pages/", p.handlePage)
}

func (p *PagesAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, ScopePagesRead) {
		return
	}
	pages, err := p.store.List(r.Context())
	if err != nil {
		p.logger.Error("Failed to list pages", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list pages")
		return
	}
	respondWithJSON(w, http.StatusOK, pages)
}

// validPageName accepts slash-separated names without dot segments.
func validPageName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}
	return path.Clean(name) == name && !strings.HasPrefix(name, "..")
}

// handlePage manages CRUD operations for a single stored page.
func (p *PagesAPI) handlePage(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/pages/")
	if !validPageName(name) {
		respondWithError(w, http.StatusBadRequest, "Invalid page name format")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, ScopePagesRead) {
			return
		}
		tree, err := p.store.Get(r.Context(), name)
		if err != nil {
			if errors.Is(err, pagestore.ErrPageNotFound) {
				respondWithError(w, http.StatusNotFound, "Page not found")
				return
			}
			p.logger.Error("Failed to load page", "page", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to load page")
			return
		}
		respondWithJSON(w, http.StatusOK, tree)

	case http.MethodPut:
		if !requireScope(w, r, ScopePagesWrite) {
			return
		}
		tree, err := readTree(r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, ok := tree.(nest.Keyed); !ok {
			respondWithError(w, http.StatusBadRequest, "Page tree must be an object")
			return
		}
		if err = p.store.Put(r.Context(), name, tree); err != nil {
			p.logger.Error("Failed to store page", "page", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to store page: %v", err))
			return
		}
		p.logger.Info("Page stored via API", "page", name)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !requireScope(w, r, ScopePagesWrite) {
			return
		}
		if err := p.store.Delete(r.Context(), name); err != nil {
			if errors.Is(err, pagestore.ErrPageNotFound) {
				respondWithError(w, http.StatusNotFound, "Page not found")
				return
			}
			p.logger.Error("Failed to delete page", "page", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete page")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
