// Package api serves read-only JSON views of temporary roles and supporters.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/whotypes/rolekeeper/internal/data"
	"go.uber.org/zap"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type TemporaryRoleReader interface {
	GetTemporaryRolesForGuild(ctx context.Context, guildID string) ([]data.TemporaryRole, error)
	GetUserTemporaryRoles(ctx context.Context, guildID, userID string) ([]data.TemporaryRole, error)
}

type SupporterReader interface {
	GetSupporters(ctx context.Context, guildID string) ([]data.SupporterGrant, error)
}

type TemporaryRoleList struct {
	GuildID string               `json:"guildId"`
	UserID  string               `json:"userId,omitempty"`
	Roles   []data.TemporaryRole `json:"roles"`
	Count   int                  `json:"count"`
}

type SupporterList struct {
	GuildID    string                `json:"guildId"`
	Supporters []data.SupporterGrant `json:"supporters"`
	Count      int                   `json:"count"`
}

type Health struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Storage bool   `json:"storage"`
}

// Server holds the handlers' dependencies. Either reader may be nil when no
// storage is configured; those endpoints then answer 503.
type Server struct {
	tempRoles  TemporaryRoleReader
	supporters SupporterReader
	apiKey     string
	startedAt  time.Time
	logger     *zap.Logger
}

func NewServer(tempRoles TemporaryRoleReader, supporters SupporterReader, apiKey string, logger *zap.Logger) *Server {
	return &Server{
		tempRoles:  tempRoles,
		supporters: supporters,
		apiKey:     apiKey,
		startedAt:  time.Now(),
		logger:     logger.Named("api"),
	}
}

// Router builds the HTTP handler, including CORS and panic recovery.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)

	guilds := api.PathPrefix("/guilds/{guildID}").Subrouter()
	guilds.Use(s.requireAPIKey, validateIDs)
	guilds.HandleFunc("/temporary-roles", s.getGuildTemporaryRoles).Methods(http.MethodGet)
	guilds.HandleFunc("/users/{userID}/temporary-roles", s.getUserTemporaryRoles).Methods(http.MethodGet)
	guilds.HandleFunc("/supporters", s.getSupporters).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Error: "not found"})
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"}),
	)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(cors(r))
}

// requireAPIKey checks the bearer token when an API key is configured.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, Response{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validateIDs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range mux.Vars(r) {
			if !data.IsSnowflake(value) {
				writeJSON(w, http.StatusBadRequest, Response{Error: "invalid " + name})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: Health{
			Status:  "ok",
			Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
			Storage: s.tempRoles != nil,
		},
	})
}

func (s *Server) getGuildTemporaryRoles(w http.ResponseWriter, r *http.Request) {
	if s.tempRoles == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Error: "storage is not configured"})
		return
	}
	guildID := mux.Vars(r)["guildID"]

	roles, err := s.tempRoles.GetTemporaryRolesForGuild(r.Context(), guildID)
	if err != nil {
		s.logger.Error("Failed to list temporary roles", zap.String("guildID", guildID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Response{Error: "failed to load temporary roles"})
		return
	}

	sortByExpiry(roles)
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    TemporaryRoleList{GuildID: guildID, Roles: nonNil(roles), Count: len(roles)},
	})
}

func (s *Server) getUserTemporaryRoles(w http.ResponseWriter, r *http.Request) {
	if s.tempRoles == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Error: "storage is not configured"})
		return
	}
	vars := mux.Vars(r)
	guildID, userID := vars["guildID"], vars["userID"]

	roles, err := s.tempRoles.GetUserTemporaryRoles(r.Context(), guildID, userID)
	if err != nil {
		s.logger.Error("Failed to list user temporary roles",
			zap.String("guildID", guildID),
			zap.String("userID", userID),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Response{Error: "failed to load temporary roles"})
		return
	}

	sortByExpiry(roles)
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    TemporaryRoleList{GuildID: guildID, UserID: userID, Roles: nonNil(roles), Count: len(roles)},
	})
}

func (s *Server) getSupporters(w http.ResponseWriter, r *http.Request) {
	if s.supporters == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Error: "storage is not configured"})
		return
	}
	guildID := mux.Vars(r)["guildID"]

	grants, err := s.supporters.GetSupporters(r.Context(), guildID)
	if err != nil {
		s.logger.Error("Failed to list supporters", zap.String("guildID", guildID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Response{Error: "failed to load supporters"})
		return
	}

	sort.SliceStable(grants, func(a, b int) bool { return grants[a].AssignedAt.Before(grants[b].AssignedAt) })
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    SupporterList{GuildID: guildID, Supporters: nonNil(grants), Count: len(grants)},
	})
}

func sortByExpiry(roles []data.TemporaryRole) {
	sort.SliceStable(roles, func(a, b int) bool { return roles[a].ExpiresAt.Before(roles[b].ExpiresAt) })
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
