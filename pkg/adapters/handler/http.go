package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/soft-duck/shorty/pkg/config"
	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/ports"
)

type HTTPHandler struct {
	service ports.LinkService
	cfg     *config.Config
	clock   domain.Clock
	logger  *slog.Logger
}

func NewHTTPHandler(service ports.LinkService, cfg *config.Config, clock domain.Clock, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{service: service, cfg: cfg, clock: clock, logger: logger}
}

// PublicConfig is the subset of the configuration exposed to frontends.
type PublicConfig struct {
	PublicURL         string `json:"public_url"`
	MaxLinkLength     int    `json:"max_link_length"`
	MaxJSONSize       int64  `json:"max_json_size"`
	MaxCustomIDLength int    `json:"max_custom_id_length"`
	DefaultMaxUses    int64  `json:"default_max_uses"`
	DefaultValidFor   int64  `json:"default_valid_for"`
}

func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (h *HTTPHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PublicConfig{
		PublicURL:         h.cfg.PublicURL,
		MaxLinkLength:     h.cfg.MaxLinkLength,
		MaxJSONSize:       h.cfg.MaxJSONSize,
		MaxCustomIDLength: h.cfg.MaxCustomIDLength,
		DefaultMaxUses:    h.cfg.DefaultMaxUses,
		DefaultValidFor:   h.cfg.DefaultValidFor,
	})
}

// CreateCustom shortens a link described by a JSON LinkConfig body.
func (h *HTTPHandler) CreateCustom(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxJSONSize)

	var req domain.LinkConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	link, err := h.service.CreateWithConfig(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeShortURL(w, link)
}

// CreateFromPath shortens the request URI itself: POST /https://example.com?q=1.
func (h *HTTPHandler) CreateFromPath(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimPrefix(r.RequestURI, "/")

	link, err := h.service.CreateDefault(r.Context(), target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeShortURL(w, link)
}

// Redirect resolves the id in the path and redirects to its destination.
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")

	link := h.service.Resolve(r.Context(), id)
	if link == nil {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}

	// The destination is stored verbatim; http.Redirect would rewrite relative targets.
	w.Header().Set("Location", link.RedirectTo)
	w.WriteHeader(http.StatusTemporaryRedirect)
}

// List dumps every stored link.
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if links == nil {
		links = []domain.Link{}
	}
	writeJSON(w, http.StatusOK, links)
}

// Show returns one stored link without counting a use.
func (h *HTTPHandler) Show(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.Peek(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if link == nil {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// Delete revokes a link immediately.
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.service.Invalidate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}

	h.logger.InfoContext(r.Context(), "link invalidated", "id", id, "by", UserEmail(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// Clean removes invalid links now instead of waiting for the scheduler.
func (h *HTTPHandler) Clean(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.Clean(r.Context(), h.clock.Now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (h *HTTPHandler) writeShortURL(w http.ResponseWriter, link *domain.Link) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(link.Formatted(h.cfg.PublicURL)))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.StatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		if domain.KindOf(err) == domain.KindStorage {
			msg = http.StatusText(status)
		}
	}
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
