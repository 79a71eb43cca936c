package webhook

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/deduplication"
	"veritas/internal/logger"
	"veritas/internal/router"
	"veritas/pkg/errors"
	"veritas/pkg/logging"
	"veritas/pkg/metrics"
	"veritas/pkg/models"
)

type Submitter interface {
	Submit(ctx context.Context, ev models.InboundEvent) (deduplication.Admission, error)
}

type Filter interface {
	Ignore(ctx context.Context, ev models.InboundEvent) (string, bool)
}

type Handler struct {
	whatsapp  config.WhatsAppConfig
	cfg       config.WebhookConfig
	submitter Submitter
	filter    Filter
	logger    logger.Logger
	now       func() time.Time
}

// NewHandler builds the webhook handler. filter may be nil.
func NewHandler(wa config.WhatsAppConfig, cfg config.WebhookConfig, submitter Submitter, filter Filter, log logger.Logger) *Handler {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		whatsapp:  wa,
		cfg:       cfg,
		submitter: submitter,
		filter:    filter,
		logger:    log,
		now:       time.Now,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes, middleware ...gin.HandlerFunc) {
	r.GET(h.cfg.Path, h.Verify)
	r.POST(h.cfg.Path, append(middleware, h.Receive)...)
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Webhook error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.WarnwCtx(c.Request.Context(), "Webhook rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.AbortWithStatusJSON(status, errors.ToErrorResponse(err))
}

// Verify answers the subscription handshake by echoing hub.challenge.
// @Summary      Verify webhook subscription
// @Tags         webhook
// @Produce      plain
// @Param        hub.mode          query     string  true  "Must be subscribe"
// @Param        hub.verify_token  query     string  true  "Shared verify token"
// @Param        hub.challenge     query     string  true  "Value to echo back"
// @Success      200               {string}  string
// @Failure      403               {object}  map[string]any
// @Router       /webhook [get]
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.whatsapp.VerifyToken == "" || token != h.whatsapp.VerifyToken {
		h.HandleError(c, errors.ErrForbidden.WithMessage("webhook verification failed"))
		return
	}

	h.logger.Infow("Webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive parses a notification and submits every message synchronously. Any
// refused submission answers 503 so the platform redelivers the batch; events
// already admitted come back as duplicates.
// @Summary      Receive WhatsApp notification
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Param        X-Hub-Signature-256  header    string        false  "HMAC-SHA256 of the body"
// @Param        notification         body      Notification  true   "WhatsApp Cloud API notification"
// @Success      200                  {object}  map[string]string
// @Failure      400                  {object}  map[string]any
// @Failure      403                  {object}  map[string]any
// @Failure      413                  {object}  map[string]any
// @Failure      429                  {object}  map[string]any
// @Failure      503                  {object}  map[string]any
// @Router       /webhook [post]
func (h *Handler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.HandleError(c, errors.ErrPayloadTooLarge.WithCause(err))
			return
		}
		h.HandleError(c, errors.ErrValidation.WithMessage("failed to read body").WithCause(err))
		return
	}

	if h.whatsapp.AppSecret != "" && !validSignature(h.whatsapp.AppSecret, c.GetHeader(SignatureHeader), body) {
		h.HandleError(c, errors.ErrForbidden.WithMessage("invalid signature"))
		return
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		h.HandleError(c, errors.ErrValidation.WithMessage("invalid notification body").WithCause(err))
		return
	}

	for _, st := range n.Statuses() {
		h.logStatus(ctx, st)
	}

	var refused error
	for _, ev := range n.Events(h.now()) {
		if err := h.submit(ctx, ev); err != nil {
			refused = err
		}
	}

	if refused != nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithCause(refused))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) submit(ctx context.Context, ev models.InboundEvent) error {
	ctx = logging.WithEventID(ctx, ev.EventID)
	metrics.EventsReceivedTotal.WithLabelValues(constants.IngestTypeWebhook, payloadType(ev)).Inc()

	if ev.EventID == "" {
		h.logger.WarnwCtx(ctx, "Skipping message without id", "sender_id", ev.SenderID)
		return nil
	}

	if h.filter != nil {
		if rule, ignored := h.filter.Ignore(ctx, ev); ignored {
			h.logger.InfowCtx(ctx, "Event ignored by filter", "rule", rule)
			return nil
		}
	}

	admission, err := h.submitter.Submit(ctx, ev)
	if err != nil {
		if stderrors.Is(err, router.ErrShuttingDown) || stderrors.Is(err, deduplication.ErrStoreUnavailable) {
			h.logger.WarnwCtx(ctx, "Event refused, platform will redeliver", "error", err)
			return err
		}
		h.logger.ErrorwCtx(ctx, "Event submission failed", "error", err)
		return nil
	}

	h.logger.DebugwCtx(ctx, "Event submitted", "admission", admission.String())
	return nil
}

func (h *Handler) logStatus(ctx context.Context, st Status) {
	fields := []interface{}{
		"message_id", st.ID,
		"status", st.Status,
		"recipient_id", st.RecipientID,
	}
	if st.Status == "failed" {
		h.logger.WarnwCtx(ctx, "Outbound message failed", append(fields, "errors", st.Errors)...)
		return
	}
	h.logger.DebugwCtx(ctx, "Outbound message status", fields...)
}

func payloadType(ev models.InboundEvent) string {
	if ev.Payload == nil {
		return string(models.PayloadTypeUnsupported)
	}
	return string(ev.Payload.Type())
}
