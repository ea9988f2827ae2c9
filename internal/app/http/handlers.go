package apphttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fitcalc/site-backend/internal/app/usecase"
	"github.com/fitcalc/site-backend/internal/domain/model"
)

const maxBodyBytes = 64 << 10

// Delivery is the outcome of the outbound email provider call made before persistence.
type Delivery struct {
	Provider string
	Status   string
	Error    string
}

// Notifier sends the form to the outbound provider (Mailchimp / ConvertKit / Resend).
// プロバイダ連携はこのパッケージの外側で実装します。
type Notifier interface {
	Notify(ctx context.Context, kind string, fields map[string]string) Delivery
}

// NoopNotifier records submissions without contacting any provider.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, map[string]string) Delivery {
	return Delivery{Provider: string(model.ProviderNone), Status: "received"}
}

// Options carries handler policy.
type Options struct {
	// StrictPersistence makes a failed audit write fail the request with 503.
	StrictPersistence bool
	Notifier          Notifier
}

type handlers struct {
	svc  *usecase.SubmissionService
	opts Options
}

// Register wires API endpoints onto the provided mux.
func Register(mux *http.ServeMux, svc *usecase.SubmissionService, opts Options) {
	if opts.Notifier == nil {
		opts.Notifier = NoopNotifier{}
	}
	h := &handlers{svc: svc, opts: opts}
	mux.HandleFunc("GET /healthz", h.healthz) // DB接続も確認するため healthz
	mux.HandleFunc("POST /api/newsletter", h.newsletter)
	mux.HandleFunc("POST /api/contact", h.contact)
	mux.HandleFunc("POST /api/embed-requests", h.embedRequest)
	mux.HandleFunc("GET /api/admin/submission-counts", h.counts)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		Status string `json:"status"`
		Driver string `json:"driver"`
	}
	driver, err := h.svc.Ping(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, resp{Status: "ng", Driver: string(driver)})
		return
	}
	writeJSON(w, http.StatusOK, resp{Status: "ok", Driver: string(driver)})
}

type newsletterReq struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

func (h *handlers) newsletter(w http.ResponseWriter, r *http.Request) {
	var req newsletterReq
	if !decode(w, r, &req) {
		return
	}
	if blank(req.Email) {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	d := h.opts.Notifier.Notify(r.Context(), "newsletter", map[string]string{"email": req.Email, "source": req.Source})
	res := h.svc.SaveNewsletter(r.Context(), model.NewsletterSubmissionInput{
		Email: req.Email, Source: req.Source,
		Provider: d.Provider, Status: d.Status, Error: d.Error,
	})
	h.respond(w, r, res)
}

type contactReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (h *handlers) contact(w http.ResponseWriter, r *http.Request) {
	var req contactReq
	if !decode(w, r, &req) {
		return
	}
	if blank(req.Name) || blank(req.Email) || blank(req.Subject) || blank(req.Message) {
		writeError(w, r, http.StatusBadRequest, "name, email, subject and message are required")
		return
	}
	d := h.opts.Notifier.Notify(r.Context(), "contact", map[string]string{
		"name": req.Name, "email": req.Email, "subject": req.Subject, "message": req.Message,
	})
	res := h.svc.SaveContact(r.Context(), model.ContactSubmissionInput{
		Name: req.Name, Email: req.Email, Subject: req.Subject, Message: req.Message,
		Provider: d.Provider, Status: d.Status, Error: d.Error,
	})
	h.respond(w, r, res)
}

type embedReq struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Website        string `json:"website"`
	Calculator     string `json:"calculator"`
	CalculatorSlug string `json:"calculatorSlug"`
	Notes          string `json:"notes"`
}

func (h *handlers) embedRequest(w http.ResponseWriter, r *http.Request) {
	var req embedReq
	if !decode(w, r, &req) {
		return
	}
	if blank(req.Name) || blank(req.Email) {
		writeError(w, r, http.StatusBadRequest, "name and email are required")
		return
	}
	d := h.opts.Notifier.Notify(r.Context(), "embed_request", map[string]string{
		"name": req.Name, "email": req.Email, "website": req.Website,
		"calculator": req.Calculator, "calculatorSlug": req.CalculatorSlug, "notes": req.Notes,
	})
	res := h.svc.SaveEmbedRequest(r.Context(), model.EmbedRequestSubmissionInput{
		Name: req.Name, Email: req.Email, Website: req.Website,
		Calculator: req.Calculator, CalculatorSlug: req.CalculatorSlug, Notes: req.Notes,
		Provider: d.Provider, Status: d.Status, Error: d.Error,
	})
	h.respond(w, r, res)
}

// counts は 0 を「不明」として扱うこと（取得失敗時も 0 が返る）。
func (h *handlers) counts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Counts(r.Context()))
}

type submitResp struct {
	OK        bool   `json:"ok"`
	Persisted bool   `json:"persisted"`
	Driver    string `json:"driver"`
}

// respond は保存失敗でも原則 200 を返します。strict モードのみ 503。
func (h *handlers) respond(w http.ResponseWriter, r *http.Request, res model.SaveResult) {
	if !res.Success && h.opts.StrictPersistence {
		writeError(w, r, http.StatusServiceUnavailable, "submission could not be recorded")
		return
	}
	writeJSON(w, http.StatusOK, submitResp{OK: true, Persisted: res.Success, Driver: string(res.Driver)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
