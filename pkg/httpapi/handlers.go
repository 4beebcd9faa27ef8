package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gregLibert/secure-element/pkg/se"
	"github.com/gregLibert/secure-element/pkg/wired"
)

// StatusResponse describes the session.
type StatusResponse struct {
	State  string `json:"state"`
	Handle uint32 `json:"handle,omitempty"`
	ID     string `json:"id,omitempty"`
	Wired  bool   `json:"wired"`
}

type OpenResponse struct {
	Handle uint32 `json:"handle"`
}

type DisconnectResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

type AtrResponse struct {
	Atr string `json:"atr"`
}

type TransceiveRequest struct {
	APDU string `json:"apdu"`
}

type TransceiveResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// SessionHandler serves the /session routes.
type SessionHandler struct {
	ctrl *wired.Controller
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /session.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.Status()
	resp := StatusResponse{
		State:  st.State.String(),
		Handle: uint32(st.Handle),
		Wired:  st.WiredModeRequested,
	}
	if st.Handle != se.NoHandle {
		resp.ID = st.ID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Open handles POST /session.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	handle, err := h.ctrl.Open(r.Context())
	if err != nil {
		writeSEError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, OpenResponse{Handle: uint32(handle)})
}

// Disconnect handles DELETE /session/{handle}.
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}
	if !h.ctrl.Session().Owns(handle) {
		writeError(w, http.StatusNotFound, "no session with this handle")
		return
	}
	writeJSON(w, http.StatusOK, DisconnectResponse{Acknowledged: h.ctrl.Disconnect(r.Context(), handle)})
}

// Activate handles POST /session/interface.
func (h *SessionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ActivateInterface(r.Context()); err != nil {
		writeSEError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deactivate handles DELETE /session/interface.
func (h *SessionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.DeactivateInterface(r.Context()); err != nil {
		writeSEError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /session/{handle}/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}
	if err := h.ctrl.Reset(r.Context(), handle); err != nil {
		writeSEError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAtr handles GET /session/{handle}/atr.
func (h *SessionHandler) GetAtr(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}
	atr, err := h.ctrl.GetAtr(r.Context(), handle)
	if err != nil {
		writeSEError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AtrResponse{Atr: strings.ToUpper(hex.EncodeToString(atr))})
}

// Transceive handles POST /session/{handle}/transceive.
func (h *SessionHandler) Transceive(w http.ResponseWriter, r *http.Request) {
	handle, ok := handleParam(w, r)
	if !ok {
		return
	}

	var req TransceiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	apdu, err := hex.DecodeString(strings.ReplaceAll(req.APDU, " ", ""))
	if err != nil {
		writeError(w, http.StatusBadRequest, "apdu is not hex: "+err.Error())
		return
	}

	resp, err := h.ctrl.Transceive(r.Context(), handle, apdu)
	if err != nil {
		writeSEError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TransceiveResponse{Response: strings.ToUpper(hex.EncodeToString(resp))})
}

func handleParam(w http.ResponseWriter, r *http.Request) (se.Handle, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, "handle"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "handle must be an unsigned integer")
		return se.NoHandle, false
	}
	return se.Handle(v), true
}

// statusFor maps session error kinds onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case se.IsInvalidStateError(err):
		return http.StatusConflict, "invalid_state"
	case se.IsAlreadyOpenError(err):
		return http.StatusConflict, "already_open"
	case se.IsHandleInvalidError(err):
		return http.StatusNotFound, "handle_invalid"
	case se.IsInvalidArgumentError(err):
		return http.StatusBadRequest, "invalid_argument"
	case se.IsTimeoutError(err):
		return http.StatusGatewayTimeout, "timeout"
	case se.IsProtocolError(err):
		return http.StatusBadGateway, "protocol"
	case se.IsHardwareFaultError(err):
		return http.StatusBadGateway, "hardware_fault"
	}
	return http.StatusInternalServerError, ""
}

func writeSEError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
