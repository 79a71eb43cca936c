package main

import (
	"context"
	"errors"
	"fmt"

	"veritas/internal/constants"
	"veritas/internal/deduplication"
	"veritas/internal/logger"
	"veritas/internal/router"
	"veritas/internal/webhook"
	"veritas/pkg/logging"
	"veritas/pkg/metrics"
	"veritas/pkg/models"
	"veritas/pkg/retry"
)

// ingestHandler feeds inbound_event envelopes from the broker into the router.
// Refusals are returned so the consumer retries and eventually dead-letters.
type ingestHandler struct {
	submitter webhook.Submitter
	filter    webhook.Filter
	logger    logger.Logger
}

func newIngestHandler(submitter webhook.Submitter, filter webhook.Filter, log logger.Logger) *ingestHandler {
	return &ingestHandler{
		submitter: submitter,
		filter:    filter,
		logger:    log,
	}
}

func (h *ingestHandler) Handle(ctx context.Context, env models.Envelope) error {
	if env.Type != models.EnvelopeTypeInboundEvent {
		h.logger.WarnwCtx(ctx, "Skipping envelope of unexpected type", "type", env.Type, "envelope_id", env.ID)
		return nil
	}

	var ev models.InboundEvent
	if err := env.DecodeBody(&ev); err != nil {
		return retry.NewFatalError(err)
	}
	if ev.EventID == "" {
		return retry.NewFatalError(fmt.Errorf("envelope %s carries an event without id", env.ID))
	}

	ctx = logging.WithEventID(ctx, ev.EventID)
	payload := string(models.PayloadTypeUnsupported)
	if ev.Payload != nil {
		payload = string(ev.Payload.Type())
	}
	metrics.EventsReceivedTotal.WithLabelValues(constants.IngestTypeKafka, payload).Inc()

	if h.filter != nil {
		if rule, ignored := h.filter.Ignore(ctx, ev); ignored {
			h.logger.InfowCtx(ctx, "Event ignored by filter", "rule", rule)
			return nil
		}
	}

	admission, err := h.submitter.Submit(ctx, ev)
	if err != nil {
		if errors.Is(err, router.ErrShuttingDown) || errors.Is(err, deduplication.ErrStoreUnavailable) {
			return retry.NewRetryableError(err)
		}
		h.logger.ErrorwCtx(ctx, "Event submission failed", "error", err)
		return nil
	}

	h.logger.DebugwCtx(ctx, "Event submitted", "admission", admission.String())
	return nil
}
