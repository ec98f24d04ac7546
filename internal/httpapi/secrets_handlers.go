package httpapi

import (
	"net/http"
	"strings"

	"jobfeed-engine/internal/secrets"
)

// TokenStore holds per-source API tokens.
type TokenStore interface {
	Set(sourceType, identifier, token string) error
	Delete(sourceType, identifier string) error
	Has(sourceType, identifier string) bool
}

type keychainTokens struct{}

func (keychainTokens) Set(t, i, tok string) error { return secrets.SetSourceToken(t, i, tok) }
func (keychainTokens) Delete(t, i string) error   { return secrets.DeleteSourceToken(t, i) }
func (keychainTokens) Has(t, i string) bool       { return secrets.HasSourceToken(t, i) }

type SecretsHandler struct {
	Tokens TokenStore
}

type sourceTokenReq struct {
	SourceType string `json:"sourceType"`
	Identifier string `json:"sourceIdentifier"`
	Token      string `json:"token"`
}

func (req *sourceTokenReq) normalize() bool {
	req.SourceType = strings.ToLower(strings.TrimSpace(req.SourceType))
	req.Identifier = strings.TrimSpace(req.Identifier)
	return req.SourceType != "" && req.Identifier != ""
}

func (h SecretsHandler) SetSourceToken(w http.ResponseWriter, r *http.Request) {
	var req sourceTokenReq
	if err := decodeStrict(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if !req.normalize() || strings.TrimSpace(req.Token) == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "sourceType, sourceIdentifier and token are required")
		return
	}
	if err := h.Tokens.Set(req.SourceType, req.Identifier, req.Token); err != nil {
		WriteError(w, r, http.StatusBadRequest, "keychain_error", "failed to store token: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h SecretsHandler) DeleteSourceToken(w http.ResponseWriter, r *http.Request) {
	req := sourceTokenReq{
		SourceType: r.URL.Query().Get("sourceType"),
		Identifier: r.URL.Query().Get("sourceIdentifier"),
	}
	if !req.normalize() {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "sourceType and sourceIdentifier are required")
		return
	}
	if err := h.Tokens.Delete(req.SourceType, req.Identifier); err != nil {
		WriteError(w, r, http.StatusBadRequest, "keychain_error", "failed to delete token: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h SecretsHandler) HasSourceToken(w http.ResponseWriter, r *http.Request) {
	req := sourceTokenReq{
		SourceType: r.URL.Query().Get("sourceType"),
		Identifier: r.URL.Query().Get("sourceIdentifier"),
	}
	if !req.normalize() {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "sourceType and sourceIdentifier are required")
		return
	}
	writeJSON(w, map[string]any{"present": h.Tokens.Has(req.SourceType, req.Identifier)})
}
