// Package control serves the daemon's local HTTP API used by meshctl.
package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/meshchat/internal/delivery"
	"github.com/matheus3301/meshchat/internal/link"
	"github.com/matheus3301/meshchat/internal/status"
	"github.com/matheus3301/meshchat/internal/store"
	"go.uber.org/zap"
)

const maxBodySize = 64 << 10

var errNotFound = errors.New("not found")

// LinkState reports the hub link's current state.
type LinkState interface {
	State() status.State
}

// Handler maps control requests onto the delivery pipeline.
type Handler struct {
	device   string
	pipeline *delivery.Pipeline
	link     LinkState
	logger   *zap.Logger
	started  time.Time
}

// NewHandler creates the control API for one device.
func NewHandler(device string, p *delivery.Pipeline, l LinkState, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		device:   device,
		pipeline: p,
		link:     l,
		logger:   logger,
		started:  time.Now(),
	}
}

// Routes builds the control router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/status", h.getStatus)

	r.Route("/chats", func(r chi.Router) {
		r.Get("/", h.listChats)
		r.Route("/{peerID}", func(r chi.Router) {
			r.Get("/", h.getChat)
			r.Delete("/", h.deleteChat)
			r.Post("/messages", h.sendMessage)
			r.Post("/read", h.markRead)
		})
	})

	r.Route("/peers", func(r chi.Router) {
		r.Get("/", h.listPeers)
		r.Post("/scan", h.startScan)
		r.Post("/scan/stop", h.stopScan)
		r.Post("/{peerID}/connect", h.connectPeer)
	})

	r.Get("/profile", h.getProfile)
	r.Put("/profile", h.updateProfile)
	r.Get("/settings", h.getSettings)
	r.Patch("/settings", h.updateSettings)
	r.Post("/reset", h.reset)
	return r
}

func (h *Handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Device:    h.device,
		Link:      h.link.State(),
		Identity:  h.pipeline.Profile(),
		Peers:     len(h.pipeline.Peers()),
		Scanning:  h.pipeline.Scanning(),
		StartedAt: h.started.UnixMilli(),
	})
}

func (h *Handler) listChats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Chats())
}

func (h *Handler) getChat(w http.ResponseWriter, r *http.Request) {
	chat := h.pipeline.Chat(chi.URLParam(r, "peerID"))
	if chat == nil {
		h.writeError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.pipeline.SendMessage(chi.URLParam(r, "peerID"), req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	peerID := chi.URLParam(r, "peerID")
	if h.pipeline.Chat(peerID) == nil {
		h.writeError(w, errNotFound)
		return
	}
	ids, err := h.pipeline.MarkAsRead(peerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ReadResponse{MessageIDs: ids})
}

func (h *Handler) deleteChat(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	notify := true
	if v := r.URL.Query().Get("notify"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "notify must be a boolean"})
			return
		}
		notify = parsed
	}
	found, err := h.pipeline.DeleteChat(chi.URLParam(r, "peerID"), notify)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		h.writeError(w, errNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPeers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Peers())
}

func (h *Handler) startScan(w http.ResponseWriter, _ *http.Request) {
	if err := h.pipeline.StartScan(); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) stopScan(w http.ResponseWriter, _ *http.Request) {
	h.pipeline.StopScan()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) connectPeer(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.ConnectToPeer(chi.URLParam(r, "peerID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) getProfile(w http.ResponseWriter, _ *http.Request) {
	profile := h.pipeline.Profile()
	if profile == nil {
		h.writeError(w, delivery.ErrNoIdentity)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	profile, err := h.pipeline.UpdateProfile(req.Name, req.AvatarIndex)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Settings())
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch store.SettingsPatch
	if !h.decode(w, r, &patch) {
		return
	}
	settings, err := h.pipeline.UpdateSettings(patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if !confirmed(w, r) {
		return
	}
	if err := h.pipeline.ClearAllData(); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// confirmed rejects destructive requests that lack confirm=true.
func confirmed(w http.ResponseWriter, r *http.Request) bool {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); ok {
		return true
	}
	writeJSON(w, http.StatusPreconditionFailed, ErrorResponse{Error: "confirmation required: pass confirm=true"})
	return false
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("control request failed", zap.Error(err))
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, delivery.ErrEmptyContent),
		errors.Is(err, delivery.ErrInvalidProfile),
		errors.Is(err, store.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, delivery.ErrNoIdentity):
		return http.StatusConflict
	case errors.Is(err, link.ErrNotOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("control request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
