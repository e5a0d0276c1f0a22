package main

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL
);
`

// authHeader carries the raw API key on every API request.
const authHeader = "nest-auth"

// masterKeyID is the first key ever created. It always holds ScopeAll and
// cannot be deleted, so the API can never be locked.
const masterKeyID = 1

func setupAuthSchema(db *sql.DB) error {
	_, err := db.Exec(authSchema)
	return err
}

// keyStore wraps the prepared statements over api_keys.
type keyStore struct {
	stmtCount  *sql.Stmt
	stmtLookup *sql.Stmt
	stmtList   *sql.Stmt
	stmtInsert *sql.Stmt
	stmtDelete *sql.Stmt
}

func newKeyStore(db *sql.DB) (*keyStore, error) {
	ks := &keyStore{}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&ks.stmtCount, `SELECT COUNT(*) FROM api_keys;`},
		{&ks.stmtLookup, `SELECT scopes FROM api_keys WHERE key_hash = ?;`},
		{&ks.stmtList, `SELECT id, description, scopes FROM api_keys ORDER BY id;`},
		{&ks.stmtInsert, `INSERT INTO api_keys (key_hash, description, scopes) VALUES (?, ?, ?) RETURNING id;`},
		{&ks.stmtDelete, `DELETE FROM api_keys WHERE id = ?;`},
	}
	for _, st := range stmts {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			ks.close()
			return nil, fmt.Errorf("failed to prepare api key statement: %w", err)
		}
		*st.dst = stmt
	}
	return ks, nil
}

func (ks *keyStore) close() {
	for _, stmt := range []*sql.Stmt{ks.stmtCount, ks.stmtLookup, ks.stmtList, ks.stmtInsert, ks.stmtDelete} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// AuthAPI authenticates API requests and manages the keys that grant scopes.
type AuthAPI struct {
	keys   *keyStore
	logger *slog.Logger
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) (*AuthAPI, error) {
	keys, err := newKeyStore(db)
	if err != nil {
		return nil, err
	}
	return &AuthAPI{keys: keys, logger: logger}, nil
}

// Close releases the prepared statements.
func (a *AuthAPI) Close() {
	a.keys.close()
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// APIKeyInfo is the structure returned when listing keys.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse is returned once, on creation; only the hash is stored.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

// Authenticate resolves the nest-auth header to a permission set. While no
// keys exist the API is open and every request gets ScopeAll.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perms, code := a.permissionsFor(r)
		if perms == nil {
			respondWithError(w, code, http.StatusText(code))
			return
		}
		next.ServeHTTP(w, r.WithContext(withPermissions(r.Context(), perms)))
	})
}

// permissionsFor returns the request's permissions, or nil and the status
// to fail with.
func (a *AuthAPI) permissionsFor(r *http.Request) (*Permissions, int) {
	ctx := r.Context()
	var keyCount int
	if err := a.keys.stmtCount.QueryRowContext(ctx).Scan(&keyCount); err != nil {
		a.logger.Error("Authenticate failed to count keys", "error", err)
		return nil, http.StatusInternalServerError
	}
	if keyCount == 0 {
		return newPermissions([]string{ScopeAll}), 0
	}

	apiKey := r.Header.Get(authHeader)
	if apiKey == "" {
		return nil, http.StatusUnauthorized
	}
	var stored string
	err := a.keys.stmtLookup.QueryRowContext(ctx, hashAPIKey(apiKey)).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		a.logger.Debug("Rejected unknown API key", "remote_addr", r.RemoteAddr)
		return nil, http.StatusUnauthorized
	}
	if err != nil {
		a.logger.Error("Authenticate failed to query API key", "error", err)
		return nil, http.StatusInternalServerError
	}
	return newPermissions(splitScopes(stored)), 0
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listKeys(w, r)
	case http.MethodPost:
		a.createKey(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	a.deleteKey(w, r, id)
}

// handleCheckMe reports the scopes of the calling key.
func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	perms, ok := permissionsFrom(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": perms.Scopes()})
}

func (a *AuthAPI) listKeys(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, ScopeAuthManage) {
		return
	}
	rows, err := a.keys.stmtList.QueryContext(r.Context())
	if err != nil {
		a.logger.Error("Failed to query API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list keys")
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := make([]APIKeyInfo, 0)
	for rows.Next() {
		var key APIKeyInfo
		var stored string
		if err = rows.Scan(&key.ID, &key.Description, &stored); err != nil {
			a.logger.Error("Failed to scan API key row", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to list keys")
			return
		}
		key.Scopes = splitScopes(stored)
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		a.logger.Error("Failed to iterate API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list keys")
		return
	}
	respondWithJSON(w, http.StatusOK, keys)
}

// createKey issues a key. The very first key is always granted ScopeAll,
// whatever was requested.
func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, ScopeAuthManage) {
		return
	}
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	var keyCount int
	if err := a.keys.stmtCount.QueryRowContext(r.Context()).Scan(&keyCount); err != nil {
		a.logger.Error("Failed to count API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create key")
		return
	}
	scopes := []string{ScopeAll}
	if keyCount > 0 {
		var err error
		if scopes, err = normalizeScopes(req.Scopes); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		a.logger.Error("Failed to generate new API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create key")
		return
	}
	var id int
	err = a.keys.stmtInsert.QueryRowContext(r.Context(), hashAPIKey(rawKey), req.Description, joinScopes(scopes)).Scan(&id)
	if err != nil {
		a.logger.Error("Failed to insert new API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create key")
		return
	}

	a.logger.Info("API key created", "id", id, "scopes", joinScopes(scopes))
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{ID: id, RawKey: rawKey, Scopes: scopes})
}

func (a *AuthAPI) deleteKey(w http.ResponseWriter, r *http.Request, id int) {
	if !requireScope(w, r, ScopeAuthManage) {
		return
	}
	if id == masterKeyID {
		respondWithError(w, http.StatusBadRequest, "The master key cannot be deleted")
		return
	}
	res, err := a.keys.stmtDelete.ExecContext(r.Context(), id)
	if err != nil {
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondWithError(w, http.StatusNotFound, "Key not found")
		return
	}
	a.logger.Info("API key deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// generateAPIKey returns "nest_" followed by 32 random bytes in hex.
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "nest_" + hex.EncodeToString(buf), nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
