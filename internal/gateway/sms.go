package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/academy-api/internal/config"
	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
)

var errNoPhone = errors.New("account has no phone number")

// SMSSender posts messages to an HTTP SMS provider. Sends are throttled to
// the provider's rate, retried with backoff on transient failures, and
// short-circuited while the provider keeps failing.
type SMSSender struct {
	cfg        config.SMSConfig
	dir        repository.DirectoryRepository
	client     *http.Client
	limiter    *rate.Limiter
	cb         *circuitbreaker.CircuitBreaker
	newBackOff func() backoff.BackOff
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

func NewSMSSender(cfg config.SMSConfig, dir repository.DirectoryRepository) *SMSSender {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &SMSSender{
		cfg:     cfg,
		dir:     dir,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sms-provider",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return backoff.WithMaxRetries(b, 3)
		},
	}
}

func (s *SMSSender) Deliver(ctx context.Context, userID uuid.UUID, message string) error {
	if !s.cfg.Enabled {
		return apperrors.NewExternalDelivery(string(model.ChannelSMS), errors.New("sms channel disabled"))
	}

	account, err := s.dir.Account(ctx, userID)
	if err != nil {
		return apperrors.NewExternalDelivery(string(model.ChannelSMS), err)
	}
	if strings.TrimSpace(account.Phone) == "" {
		return apperrors.NewExternalDelivery(string(model.ChannelSMS), errNoPhone)
	}

	payload, err := json.Marshal(smsRequest{To: account.Phone, From: s.cfg.Sender, Body: message})
	if err != nil {
		return apperrors.NewExternalDelivery(string(model.ChannelSMS), err)
	}

	err = s.cb.Execute(func() error {
		return backoff.Retry(func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
			return s.post(ctx, payload)
		}, backoff.WithContext(s.newBackOff(), ctx))
	})
	if err != nil {
		return apperrors.NewExternalDelivery(string(model.ChannelSMS), err)
	}
	return nil
}

func (s *SMSSender) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.BaseURL, "/")+"/messages", bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, body)
	default:
		return backoff.Permanent(fmt.Errorf("sms provider rejected message with %d: %s", resp.StatusCode, body))
	}
}
