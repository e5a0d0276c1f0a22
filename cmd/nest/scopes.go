package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Scopes enforced by the API handlers. A key holding ScopeAll passes every
// check.
const (
	ScopeAll            = "*"
	ScopeRenderExec     = "render:exec"
	ScopeTemplatesRead  = "templates:read"
	ScopeTemplatesWrite = "templates:write"
	ScopePagesRead      = "pages:read"
	ScopePagesWrite     = "pages:write"
	ScopeStatsRead      = "stats:read"
	ScopeServerConfig   = "server:config"
	ScopeServerControl  = "server:control"
	ScopeAuthManage     = "auth:manage"
)

var knownScopes = map[string]struct{}{
	ScopeAll:            {},
	ScopeRenderExec:     {},
	ScopeTemplatesRead:  {},
	ScopeTemplatesWrite: {},
	ScopePagesRead:      {},
	ScopePagesWrite:     {},
	ScopeStatsRead:      {},
	ScopeServerConfig:   {},
	ScopeServerControl:  {},
	ScopeAuthManage:     {},
}

// normalizeScopes validates requested scopes against knownScopes and returns
// them sorted without duplicates. A request containing ScopeAll collapses to
// it alone.
func normalizeScopes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	set := make(map[string]struct{}, len(requested))
	for _, scope := range requested {
		if _, ok := knownScopes[scope]; !ok {
			return nil, fmt.Errorf("unknown scope %q", scope)
		}
		set[scope] = struct{}{}
	}
	if _, ok := set[ScopeAll]; ok {
		return []string{ScopeAll}, nil
	}
	scopes := make([]string, 0, len(set))
	for scope := range set {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// Scopes are stored space separated; normalizeScopes guarantees none
// contains a space.
func joinScopes(scopes []string) string { return strings.Join(scopes, " ") }

func splitScopes(stored string) []string { return strings.Fields(stored) }

type contextKey string

const contextKeyPermissions = contextKey("permissions")

// Permissions holds the scopes granted to the key that made a request.
type Permissions struct {
	ScopeSet map[string]struct{}
}

func newPermissions(scopes []string) *Permissions {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return &Permissions{ScopeSet: set}
}

// Has reports whether the permissions grant scope, directly or through ScopeAll.
func (p *Permissions) Has(scope string) bool {
	if _, ok := p.ScopeSet[ScopeAll]; ok {
		return true
	}
	_, ok := p.ScopeSet[scope]
	return ok
}

// Scopes returns the granted scopes in sorted order.
func (p *Permissions) Scopes() []string {
	scopes := make([]string, 0, len(p.ScopeSet))
	for s := range p.ScopeSet {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes
}

func withPermissions(ctx context.Context, p *Permissions) context.Context {
	return context.WithValue(ctx, contextKeyPermissions, p)
}

func permissionsFrom(r *http.Request) (*Permissions, bool) {
	p, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	return p, ok
}

// requireScope responds with 403 and returns false if the request's key
// lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if p, ok := permissionsFrom(r); ok && p.Has(scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}
