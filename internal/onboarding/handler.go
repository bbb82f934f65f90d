package onboarding

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"lv-onboarding/internal/artifacts"
	"lv-onboarding/internal/auth"
	"lv-onboarding/internal/httputil"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	AttemptHeader = "X-Signup-Attempt"
	AttemptCookie = "signup_attempt"
)

type Handler struct {
	seq          *Sequencer
	completer    *Completer
	auth         *auth.Service
	logger       *zap.Logger
	secureCookie bool
}

func NewHandler(seq *Sequencer, completer *Completer, authSvc *auth.Service, logger *zap.Logger, secureCookie bool) *Handler {
	return &Handler{seq: seq, completer: completer, auth: authSvc, logger: logger, secureCookie: secureCookie}
}

type startResponse struct {
	AttemptToken string `json:"attempt_token"`
	Outcome
}

// Start handles step 1. A request without a valid attempt opens a new one.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request, attemptID string) {
	in, err := readStepInput(r)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	var token string
	if attemptID == "" {
		attemptID, token, err = h.auth.NewAttempt()
	} else {
		token, err = h.auth.SignAttempt(attemptID)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := h.seq.Submit(r.Context(), attemptID, 1, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.setAttemptCookie(w, token)
	httputil.WriteJSON(w, http.StatusCreated, startResponse{AttemptToken: token, Outcome: out})
}

func (h *Handler) Enter(w http.ResponseWriter, r *http.Request, attemptID string) {
	n, err := stepParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.seq.Enter(r.Context(), attemptID, n)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request, attemptID string) {
	n, err := stepParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if n == 1 {
		h.Start(w, r, attemptID)
		return
	}
	in, err := readStepInput(r)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.seq.Submit(r.Context(), attemptID, n, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Back(w http.ResponseWriter, r *http.Request, attemptID string) {
	n, err := stepParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.back(w, r, attemptID, n)
}

// BackFromReview leaves the final confirmation for the last step.
func (h *Handler) BackFromReview(w http.ResponseWriter, r *http.Request, attemptID string) {
	h.back(w, r, attemptID, StepCount+1)
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request, attemptID string, n int) {
	view, err := h.seq.Back(r.Context(), attemptID, n)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.Redirect(w, view.Path)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request, attemptID string) {
	p, err := h.seq.Progress(r.Context(), attemptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Restart(w http.ResponseWriter, r *http.Request, attemptID string) {
	if err := h.seq.Restart(r.Context(), attemptID); err != nil {
		h.writeError(w, err)
		return
	}
	h.clearAttemptCookie(w)
	httputil.Redirect(w, PathFor(1))
}

// Review shows the accumulated data before final confirmation.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request, attemptID string) {
	fields, err := h.completer.Review(r.Context(), attemptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"fields": fields})
}

type completeResponse struct {
	IdentityID    string `json:"identity_id"`
	AccountNumber string `json:"account_number"`
	Secret        string `json:"secret"`
	Currency      string `json:"currency"`
	Leverage      int    `json:"leverage"`
	Status        string `json:"status"`
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request, attemptID string) {
	res, err := h.completer.Complete(r.Context(), attemptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.clearAttemptCookie(w)
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusCreated, completeResponse{
		IdentityID:    res.IdentityID,
		AccountNumber: res.Credential.AccountNumber,
		Secret:        res.Credential.Secret,
		Currency:      res.Account.Currency,
		Leverage:      res.Account.Leverage,
		Status:        string(res.Account.Status),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	var re *RedirectError
	switch {
	case errors.As(err, &ve):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.ErrorResponse{Error: "validation failed", Fields: ve.Fields})
	case errors.As(err, &re):
		httputil.Redirect(w, re.Path)
	case errors.Is(err, ErrUnknownStep):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrAttemptRequired):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrAlreadyCompleted):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrProvisioningFailed):
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: ErrProvisioningFailed.Error()})
	default:
		h.logger.Error("signup request failed", zap.Error(err))
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}

func (h *Handler) setAttemptCookie(w http.ResponseWriter, token string) {
	w.Header().Set(AttemptHeader, token)
	http.SetCookie(w, &http.Cookie{
		Name:     AttemptCookie,
		Value:    token,
		Path:     "/signup",
		MaxAge:   int(h.auth.TTL() / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAttemptCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AttemptCookie,
		Value:    "",
		Path:     "/signup",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// stepParam reads {n} from /signup/step-{n}. Routes without it are step 1.
func stepParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "n")
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrUnknownStep
	}
	return n, nil
}

// readStepInput flattens a JSON object into string fields and file uploads.
// Booleans and numbers keep their JSON text ("true", "5551234567").
func readStepInput(r *http.Request) (StepInput, error) {
	var raw map[string]json.RawMessage
	if err := httputil.ReadJSON(r, &raw); err != nil {
		return StepInput{}, err
	}
	in := StepInput{Fields: map[string]string{}, Files: map[string]artifacts.Upload{}}
	for key, value := range raw {
		value = bytes.TrimSpace(value)
		if len(value) == 0 || bytes.Equal(value, []byte("null")) {
			continue
		}
		switch value[0] {
		case '"':
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return StepInput{}, errors.New("invalid value for " + key)
			}
			in.Fields[key] = s
		case '{':
			var up artifacts.Upload
			if err := json.Unmarshal(value, &up); err != nil {
				return StepInput{}, errors.New("invalid file for " + key)
			}
			in.Files[key] = up
		case '[':
			return StepInput{}, errors.New("invalid value for " + key)
		default:
			in.Fields[key] = string(value)
		}
	}
	return in, nil
}
