// Package callback delivers finalized conversation summaries to the
// downstream consumer with bounded exponential-backoff retry.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"quotebot/internal/config"
	"quotebot/internal/logger"
)

// ErrDeliveryFailed is returned once every retry attempt is exhausted
var ErrDeliveryFailed = errors.New("callback delivery failed")

// Deliverer sends final outputs to one external HTTP consumer
type Deliverer struct {
	url        string
	maxRetries int
	baseDelay  time.Duration
	client     *http.Client

	// sleep is swappable so tests can observe the backoff schedule
	// without waiting it out
	sleep func(time.Duration)
}

// NewDeliverer creates a Deliverer from the callback configuration
func NewDeliverer(cfg config.CallbackConfig) *Deliverer {
	return &Deliverer{
		url:        cfg.URL,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
		sleep:      time.Sleep,
	}
}

// SetSleep replaces the inter-attempt sleep function. Test hook.
func (d *Deliverer) SetSleep(sleep func(time.Duration)) {
	d.sleep = sleep
}

// Send posts the final output, retrying up to the configured attempt count
// with delays of base, 2*base, 4*base and so on. A non-2xx status or a
// transport failure counts as a failed attempt. Exhaustion returns an error
// wrapping ErrDeliveryFailed; anything beyond that is the caller's concern.
func (d *Deliverer) Send(ctx context.Context, output *FinalOutput) error {
	body, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("error encoding final output: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		logger.Log.WithFields(logrus.Fields{
			"conversation_id": output.ConversationID,
			"attempt":         attempt,
			"max_retries":     d.maxRetries,
		}).Info("Sending callback")

		lastErr = d.post(ctx, body)
		if lastErr == nil {
			logger.Log.WithField("conversation_id", output.ConversationID).
				Info("Callback delivered successfully")
			return nil
		}

		logger.Log.WithError(lastErr).WithFields(logrus.Fields{
			"conversation_id": output.ConversationID,
			"attempt":         attempt,
		}).Warn("Callback attempt failed")

		if attempt < d.maxRetries {
			delay := d.baseDelay * (1 << (attempt - 1))
			logger.Log.WithField("delay", delay).Info("Retrying callback")
			d.sleep(delay)
		}
	}

	logger.Log.WithError(lastErr).WithFields(logrus.Fields{
		"conversation_id": output.ConversationID,
		"max_retries":     d.maxRetries,
	}).Error("Callback delivery exhausted all attempts")

	return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, d.maxRetries, lastErr)
}

func (d *Deliverer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("error posting callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	return nil
}
