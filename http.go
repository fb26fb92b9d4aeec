package billingkit

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultMaxWebhookBody caps webhook payloads well above anything Stripe
// or Paddle send.
const defaultMaxWebhookBody = 1 << 20

// signatureHeaders are consulted in order when no explicit header is
// configured.
var signatureHeaders = []string{"Stripe-Signature", "Paddle-Signature"}

// WebhookHandlerOption configures WebhookHandler.
type WebhookHandlerOption func(*webhookHandler)

// WithSignatureHeader pins the header the provider signature is read from
// instead of probing the known provider headers.
func WithSignatureHeader(name string) WebhookHandlerOption {
	return func(h *webhookHandler) {
		if name != "" {
			h.signatureHeader = name
		}
	}
}

// WithMaxBodySize overrides the webhook payload size limit in bytes.
func WithMaxBodySize(limit int64) WebhookHandlerOption {
	return func(h *webhookHandler) {
		if limit > 0 {
			h.maxBody = limit
		}
	}
}

type webhookHandler struct {
	svc             Service
	signatureHeader string
	maxBody         int64
}

// WebhookHandler returns the HTTP endpoint that receives billing provider
// webhooks. Signature verification failures and malformed requests return
// 400 so the provider stops redelivering them; processing failures return
// 500 so it retries.
func WebhookHandler(svc Service, opts ...WebhookHandlerOption) http.Handler {
	if svc == nil {
		panic("billingkit: Service is required")
	}

	h := &webhookHandler{svc: svc, maxBody: defaultMaxWebhookBody}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	signature := h.signature(r)
	if signature == "" {
		writeWebhookError(w, http.StatusBadRequest, "missing webhook signature")
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), payload, signature); err != nil {
		if errors.Is(err, ErrWebhookVerificationFailed) {
			writeWebhookError(w, http.StatusBadRequest, "invalid webhook signature")
			return
		}
		writeWebhookError(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

func (h *webhookHandler) signature(r *http.Request) string {
	if h.signatureHeader != "" {
		return r.Header.Get(h.signatureHeader)
	}
	for _, name := range signatureHeaders {
		if sig := r.Header.Get(name); sig != "" {
			return sig
		}
	}
	return ""
}

func writeWebhookError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Routes mounts the webhook endpoint on a fresh router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/", billingkit.Routes(svc))
func Routes(svc Service, opts ...WebhookHandlerOption) chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/webhooks/billing", WebhookHandler(svc, opts...))
	return r
}
