package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"apkforge/internal/apikey"
)

type generateKeyRequest struct {
	Name string `json:"name"`
}

type keyActionRequest struct {
	APIKey string `json:"api_key"`
}

// keyResponse is the public view of a key. The plaintext secret only appears
// in the generate response, never afterwards.
type keyResponse struct {
	KeyID        string `json:"key_id"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	CreatedAt    string `json:"created_at"`
	LastUsed     string `json:"last_used,omitempty"`
	RequestCount int64  `json:"request_count"`
}

// handleGenerateKey issues a new API key and returns the secret exactly once.
func (s *Server) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// An empty body is fine, the key just gets the default name
		req.Name = ""
	}

	issued, err := s.keys.Issue(req.Name)
	if err != nil {
		log.Printf("key issue failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate API key")
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		APIKey string `json:"api_key"`
		keyResponse
	}{
		APIKey:      issued.Secret,
		keyResponse: toKeyResponse(issued.Key),
	})
}

// handleVerifyKey checks a secret and returns the key's metadata.
func (s *Server) handleVerifyKey(w http.ResponseWriter, r *http.Request) {
	var req keyActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeBadRequest(w, "api_key is required")
		return
	}

	key, err := s.keys.Validate(req.APIKey)
	if errors.Is(err, apikey.ErrKeyInvalid) {
		writeForbidden(w, "Invalid or inactive API key")
		return
	}
	if err != nil {
		log.Printf("key verify failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to verify API key")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Valid bool `json:"valid"`
		keyResponse
	}{
		Valid:       true,
		keyResponse: toKeyResponse(key),
	})
}

// handleRevokeKey deactivates the caller's own key. The caller must present
// the secret, so only a key's holder can revoke it.
func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	var req keyActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeBadRequest(w, "api_key is required")
		return
	}

	key, err := s.keys.Validate(req.APIKey)
	if errors.Is(err, apikey.ErrKeyInvalid) {
		writeForbidden(w, "Invalid or inactive API key")
		return
	}
	if err != nil {
		log.Printf("key revoke failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key")
		return
	}

	if err := s.keys.Revoke(key.KeyID); err != nil {
		log.Printf("key revoke failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "API key revoked"})
}

func toKeyResponse(k apikey.Key) keyResponse {
	resp := keyResponse{
		KeyID:        k.KeyID,
		Name:         k.Name,
		Active:       k.Active,
		CreatedAt:    k.CreatedAt.Format(time.RFC3339),
		RequestCount: k.RequestCount,
	}
	if k.LastUsed != nil {
		resp.LastUsed = k.LastUsed.Format(time.RFC3339)
	}
	return resp
}
