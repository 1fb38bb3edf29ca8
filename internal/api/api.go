// internal/api/api.go
// Package api exposes the form submission endpoints.
//
// Each submission endpoint decodes a JSON object, validates it, checks the
// honeypot fields, renders the notification and relays it in exactly one
// delivery attempt. The status codes and response bodies are part of the
// public contract with the embedding web pages.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dalemusser/formrelay/httputil"
	"github.com/dalemusser/formrelay/internal/notify"
	"github.com/dalemusser/formrelay/internal/spam"
	"github.com/dalemusser/formrelay/internal/submission"
	"github.com/dalemusser/formrelay/metrics"
	"github.com/dalemusser/formrelay/pantry/email"
)

// Response messages.
const (
	msgNoData            = "No data provided"
	msgTooLarge          = "Request body too large"
	msgInvalidSubmission = "Invalid submission"
	msgInternal          = "Internal server error"
)

type kindText struct {
	sent   string
	failed string
}

var texts = map[submission.Kind]kindText{
	submission.Contact:     {sent: "Message sent successfully", failed: "Failed to send message"},
	submission.Reservation: {sent: "Reservation sent successfully", failed: "Failed to send reservation"},
}

// Sender delivers one rendered message. *email.Sender and *email.LogSender
// implement it.
type Sender interface {
	Send(ctx context.Context, msg email.Message) error
}

// Handler serves the submission endpoints. It is safe for concurrent use.
type Handler struct {
	validator   *submission.Validator
	formatter   *notify.Formatter
	sender      Sender
	recipient   string
	sendTimeout time.Duration
	logger      *zap.Logger
}

// Config wires a Handler.
type Config struct {
	Validator *submission.Validator
	Formatter *notify.Formatter
	Sender    Sender

	// Recipient receives every notification.
	Recipient string

	// SendTimeout bounds one delivery attempt; zero means the request
	// context alone.
	SendTimeout time.Duration

	Logger *zap.Logger
}

// New builds a Handler. Validator, Formatter and Sender are required.
func New(cfg Config) (*Handler, error) {
	if cfg.Validator == nil || cfg.Formatter == nil || cfg.Sender == nil {
		return nil, errors.New("api: validator, formatter and sender are required")
	}
	if cfg.Recipient == "" {
		return nil, errors.New("api: recipient is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{
		validator:   cfg.Validator,
		formatter:   cfg.Formatter,
		sender:      cfg.Sender,
		recipient:   cfg.Recipient,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger,
	}, nil
}

// Contact handles POST /api/contact.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, submission.Contact)
}

// Reservation handles POST /api/reservation.
func (h *Handler) Reservation(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, submission.Reservation)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind submission.Kind) {
	log := h.logger.With(
		zap.String("kind", kind.String()),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("remote_ip", r.RemoteAddr),
	)

	raw, err := httputil.DecodeObject(r)
	if err != nil {
		metrics.RecordSubmission(kind.String(), metrics.OutcomeBadRequest)
		if errors.Is(err, httputil.ErrTooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		log.Debug("submission body rejected", zap.Error(err))
		httputil.Error(w, http.StatusBadRequest, msgNoData)
		return
	}

	verdict := h.validator.Validate(raw, kind)
	if !verdict.Valid {
		outcome := metrics.OutcomeInvalid
		if verdict.Has(submission.CodeRejected) {
			outcome = metrics.OutcomeSpam
		}
		metrics.RecordSubmission(kind.String(), outcome)
		log.Info("submission failed validation", zap.Strings("codes", verdict.Codes()))
		httputil.Error(w, http.StatusBadRequest, verdict.Messages())
		return
	}

	if spam.Honeypot(raw) {
		metrics.RecordSubmission(kind.String(), metrics.OutcomeHoneypot)
		log.Warn("honeypot triggered")
		httputil.Error(w, http.StatusBadRequest, msgInvalidSubmission)
		return
	}

	n, err := h.formatter.Render(*verdict.Data)
	if err != nil {
		log.Error("notification render failed", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, msgInternal)
		return
	}

	ctx := r.Context()
	if h.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sendTimeout)
		defer cancel()
	}

	start := time.Now()
	err = h.sender.Send(ctx, email.Message{
		To:       []string{h.recipient},
		FromName: n.SenderName,
		Subject:  n.Subject,
		TextBody: n.TextBody,
		HTMLBody: n.HTMLBody,
		ReplyTo:  n.ReplyTo,
	})
	metrics.ObserveSend(kind.String(), time.Since(start), err)
	if err != nil {
		metrics.RecordSubmission(kind.String(), metrics.OutcomeSendFailed)
		log.Error("notification send failed", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, texts[kind].failed)
		return
	}

	metrics.RecordSubmission(kind.String(), metrics.OutcomeSent)
	log.Info("submission relayed",
		zap.String("language", verdict.Data.Language.String()),
		zap.String("contact_method", verdict.Data.ContactMethod),
	)
	httputil.Message(w, texts[kind].sent)
}
