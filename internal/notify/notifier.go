package notify

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/atinyakov/DocLedger/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const sendTimeout = 30 * time.Second

// Recorder observes delivery outcomes.
type Recorder interface {
	ObserveNotification(outcome string)
}

// Notifier sends mint notifications in the background. Sends are throttled
// by a token bucket shared across all recipients.
type Notifier struct {
	mailer   Mailer
	limiter  *rate.Limiter
	recorder Recorder
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier allowing perSecond messages per second.
// A nil mailer disables delivery; notifications are then logged and skipped.
func NewNotifier(mailer Mailer, perSecond float64, recorder Recorder, log *zap.Logger) *Notifier {
	if perSecond <= 0 {
		perSecond = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		mailer:   mailer,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		recorder: recorder,
		log:      log.With(zap.String("component", "notify")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enabled reports whether a mailer is configured.
func (n *Notifier) Enabled() bool {
	return n.mailer != nil
}

// NotifyMinted emails to about doc. It returns immediately; the outcome is
// only logged and counted.
func (n *Notifier) NotifyMinted(doc models.Document, to string) {
	if to == "" {
		return
	}
	if n.mailer == nil {
		n.log.Info("notification skipped, mailer not configured", zap.Int64("token_id", doc.TokenID))
		n.observe("skipped")
		return
	}
	if _, err := mail.ParseAddress(to); err != nil {
		n.log.Warn("notification skipped, invalid recipient", zap.Int64("token_id", doc.TokenID), zap.Error(err))
		n.observe("skipped")
		return
	}

	msg := mintedMessage(doc, to)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(n.ctx, sendTimeout)
		defer cancel()

		if err := n.limiter.Wait(ctx); err != nil {
			n.log.Warn("notification dropped", zap.Int64("token_id", doc.TokenID), zap.Error(err))
			n.observe("failed")
			return
		}
		if err := n.mailer.Send(ctx, msg); err != nil {
			n.log.Error("failed to send notification",
				zap.Int64("token_id", doc.TokenID),
				zap.String("to", to),
				zap.Error(err),
			)
			n.observe("failed")
			return
		}
		n.log.Info("notification sent", zap.Int64("token_id", doc.TokenID), zap.String("to", to))
		n.observe("sent")
	}()
}

// Shutdown waits for in-flight sends until ctx is done, then aborts the rest.
func (n *Notifier) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-done
		return ctx.Err()
	}
}

func (n *Notifier) observe(outcome string) {
	if n.recorder != nil {
		n.recorder.ObserveNotification(outcome)
	}
}

func mintedMessage(doc models.Document, to string) Message {
	name := doc.Name
	if name == "" {
		name = "A document"
	}
	return Message{
		To:      to,
		Subject: "A document has been issued to you",
		Body: fmt.Sprintf("%s has been registered on DocLedger.\n\nToken ID: %d\nContent ID: %s\nContent hash: %s\nOwner: %s\nIssued at: %s\n",
			name, doc.TokenID, doc.ContentID, doc.ContentHash, doc.Owner, doc.MintedAt.Format(time.RFC3339)),
	}
}
