package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CTAG07/nest/pkg/nest"
	"github.com/CTAG07/nest/pkg/pagestore"
)

type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	engine      *nest.Nest
	store       *pagestore.Store
	authAPI     *AuthAPI
	renderAPI   *RenderAPI
	templateAPI *TemplateAPI
	pagesAPI    *PagesAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	siteMux     *http.ServeMux
	apiMux      *http.ServeMux
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	config := cm.Get()

	engine, err := nest.New(logger, config.Nest)
	if err != nil {
		return nil, fmt.Errorf("failed to create template engine: %w", err)
	}
	cm.SetEngine(engine)

	store, err := pagestore.New(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create page store: %w", err)
	}
	store.SetLogger(logger)

	authAPI, err := NewAuthAPI(db, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create auth api: %w", err)
	}

	server := &Server{
		cm:          cm,
		db:          db,
		logger:      logger,
		engine:      engine,
		store:       store,
		authAPI:     authAPI,
		renderAPI:   NewRenderAPI(engine, logger),
		templateAPI: NewTemplateAPI(engine, logger),
		pagesAPI:    NewPagesAPI(store, logger),
		statsAPI:    NewStatsAPI(store, logger),
		serverAPI:   NewServerAPI(cm, actionChan, logger),
		siteMux:     http.NewServeMux(),
		apiMux:      http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.renderAPI.RegisterRoutes(apiMux)
	server.templateAPI.RegisterRoutes(apiMux)
	server.pagesAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", authedAPI)

	server.siteMux.HandleFunc("/favicon.ico", handleFavicon)
	server.siteMux.HandleFunc("/", server.handlePage)

	return server, nil
}

// Close releases the prepared statements of the page and key stores.
func (s *Server) Close() {
	s.authAPI.Close()
	s.store.Close()
}

// handlePage renders the stored page named by the request path.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	config := s.cm.Get()
	name := strings.Trim(r.URL.Path, "/")
	if name == "" {
		name = config.Server.IndexPage
	}
	if !validPageName(name) {
		http.NotFound(w, r)
		return
	}

	tree, err := s.store.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, pagestore.ErrPageNotFound) {
			s.logger.Debug("Page not found", "page", name, "remote_addr", getClientIP(r, s.cm))
			http.NotFound(w, r)
			return
		}
		s.logger.Error("Failed to load page", "page", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	out, renderErr := s.engine.Render(tree)
	if err = s.store.RecordRender(r.Context(), name, time.Since(start), renderErr); err != nil {
		s.logger.Warn("Failed to record render stats", "page", name, "error", err)
	}
	if renderErr != nil {
		s.logger.Error("Failed to render page", "page", name, "error", renderErr)
		code := renderErrorStatus(renderErr)
		if code == http.StatusNotFound {
			// A page pointing at a missing template is a server fault.
			code = http.StatusInternalServerError
		}
		http.Error(w, http.StatusText(code), code)
		return
	}

	s.logger.Info("Serving page", "page", name, "remote_addr", getClientIP(r, s.cm))
	for k, v := range config.Server.Headers {
		w.Header().Set(k, v)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	_, _ = w.Write([]byte(out))
}

// getClientIP only honours forwarding headers from trusted proxies.
func getClientIP(r *http.Request, cm *ConfigManager) string {
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteIP = r.RemoteAddr
	}
	if !cm.IsTrusted(remoteIP) {
		return remoteIP
	}

	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}
	// The first IP in X-Forwarded-For is the original client.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}
	return remoteIP
}

// handleFavicon keeps favicon requests from being treated as page lookups.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
