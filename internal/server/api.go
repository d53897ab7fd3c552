// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/profile"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ProfileInfo summarizes one known profile for the list endpoint.
type ProfileInfo struct {
	Key  string `json:"key"`
	Open bool   `json:"open"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListProfiles returns every known profile,
// annotated with whether it currently has an open Pipeline.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	keys, err := s.mgr.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list profiles", err.Error())
		return
	}

	out := make([]ProfileInfo, 0, len(keys))
	for _, k := range keys {
		_, open := s.registry.Get(k)
		out = append(out, ProfileInfo{Key: k.String(), Open: open})
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out, "count": len(out)})
}

// handleRefreshProfile pages the API for new media and returns how
// many were newly inserted.
func (s *Server) handleRefreshProfile(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile key", err.Error())
		return
	}

	inserted, err := s.mgr.Refresh(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusBadGateway, "refresh failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted": inserted})
}

// handleOpenProfile starts key's boot.Pipeline.
func (s *Server) handleOpenProfile(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile key", err.Error())
		return
	}

	if err := s.registry.Open(key); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open profile", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, SuccessResponse{Success: true, Message: "profile opened"})
}

// handleCloseProfile shuts down key's boot.Pipeline, idempotently.
func (s *Server) handleCloseProfile(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile key", err.Error())
		return
	}

	if err := s.registry.Close(key); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to close profile", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "profile closed"})
}

// handleGetCatalog returns key's current catalog snapshot. It reads
// straight from disk rather than through the registry, so the catalog
// is visible whether or not the profile's Pipeline is currently open.
func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile key", err.Error())
		return
	}

	store := catalog.NewStore(profile.CatalogPath(s.config.DataDir, key))
	cat, err := store.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load catalog", err.Error())
		return
	}
	if cat == nil {
		cat = &catalog.Catalog{ProfileName: key.Username}
	}
	writeJSON(w, http.StatusOK, cat)
}

// handleDeleteProfile removes key's catalog and download tree,
// closing its Pipeline first if one is open.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile key", err.Error())
		return
	}

	_ = s.registry.Close(key)
	if err := s.mgr.Delete(key, s.config.DownloadDir); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete profile", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "profile deleted"})
}

var errMissingPathValue = errors.New("missing service or username in path")

func keyFromPath(r *http.Request) (profile.Key, error) {
	service := r.PathValue("service")
	username := r.PathValue("username")
	if service == "" || username == "" {
		return profile.Key{}, errMissingPathValue
	}
	return profile.Key{Service: service, Username: username}, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}
