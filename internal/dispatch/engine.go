// Package dispatch runs bulk send campaigns against a ready tenant session.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wablast/internal/domain"
	"wablast/internal/observability"
	"wablast/internal/util"
)

// Session is what the engine needs from a tenant session.
type Session interface {
	TenantID() string
	Ready() bool
	Send(ctx context.Context, to, body string) error
	BeginDispatch() bool
	EndDispatch()
}

type Engine struct {
	// Delay is the fixed wait between consecutive send attempts.
	Delay time.Duration
	// SendTimeout bounds each individual adapter send so one unresponsive
	// call cannot stall the whole campaign.
	SendTimeout time.Duration
	// RecipientSuffix is appended to each raw recipient to address it on
	// the network.
	RecipientSuffix string
	Log             *slog.Logger
}

// Dispatch sends message to every recipient in order, one at a time. A
// single recipient's failure is recorded and never aborts the remaining
// queue; only losing the session (or the caller's context) cuts the loop
// short, and then every unattempted recipient is recorded as failed.
func (e *Engine) Dispatch(ctx context.Context, sess Session, message string, recipients []string) (domain.DispatchResult, error) {
	if !sess.Ready() {
		return domain.DispatchResult{}, domain.ErrSessionNotReady
	}
	if !sess.BeginDispatch() {
		return domain.DispatchResult{}, domain.ErrDispatchInProgress
	}
	defer sess.EndDispatch()

	res := domain.DispatchResult{
		CampaignID: util.NewCampaignID(),
		Results:    make([]domain.SendRecord, 0, len(recipients)),
	}
	log := e.Log.With("tenant_id", sess.TenantID(), "campaign_id", res.CampaignID)
	log.Info("campaign started", "recipients", len(recipients))
	start := time.Now()

loop:
	for i, rcpt := range recipients {
		if !sess.Ready() {
			e.failRemaining(&res, recipients[i:], domain.ReasonSessionLost)
			break
		}

		sctx, cancel := context.WithTimeout(ctx, e.SendTimeout)
		sendStart := time.Now()
		err := sess.Send(sctx, rcpt+e.RecipientSuffix, message)
		cancel()
		observability.SendLatency.Observe(time.Since(sendStart).Seconds())

		switch {
		case err == nil:
			res.Results = append(res.Results, domain.SendRecord{Recipient: rcpt, Outcome: domain.OutcomeSent})
			res.Sent++
			observability.DispatchSends.WithLabelValues("sent").Inc()
		case errors.Is(err, domain.ErrSessionNotReady):
			// The adapter dropped between the readiness check and the send.
			e.failRemaining(&res, recipients[i:], domain.ReasonSessionLost)
			break loop
		default:
			reason := err.Error()
			if errors.Is(err, context.DeadlineExceeded) {
				reason = domain.ReasonTimeout
			}
			res.Results = append(res.Results, domain.SendRecord{Recipient: rcpt, Outcome: domain.OutcomeFailed, Reason: reason})
			res.Failed++
			observability.DispatchSends.WithLabelValues("failed").Inc()
			log.Warn("send failed", "recipient", rcpt, "err", err)
		}

		// Suspend after every attempt except the last.
		if i < len(recipients)-1 {
			if err := e.pause(ctx); err != nil {
				e.failRemaining(&res, recipients[i+1:], domain.ReasonCanceled)
				break
			}
		}
	}

	res.Duration = time.Since(start)
	if res.Failed > 0 {
		observability.Campaigns.WithLabelValues("partial").Inc()
		log.Warn("campaign finished with failures", "sent", res.Sent, "failed", res.Failed, "duration", res.Duration)
	} else {
		observability.Campaigns.WithLabelValues("ok").Inc()
		log.Info("campaign finished", "sent", res.Sent, "duration", res.Duration)
	}
	return res, nil
}

// pause waits out the inter-send delay, cut short by the caller's context.
func (e *Engine) pause(ctx context.Context) error {
	if e.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) failRemaining(res *domain.DispatchResult, remaining []string, reason string) {
	for _, rcpt := range remaining {
		res.Results = append(res.Results, domain.SendRecord{Recipient: rcpt, Outcome: domain.OutcomeFailed, Reason: reason})
		res.Failed++
		observability.DispatchSends.WithLabelValues("failed").Inc()
	}
}
