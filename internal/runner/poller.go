// Package runner drives a single Run Code invocation against a judge.
package runner

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/terra-clan/screening-engine/internal/judge"
	"github.com/terra-clan/screening-engine/internal/models"
)

// Config holds poller settings
type Config struct {
	Interval    time.Duration
	MaxAttempts int
	// QueueTimeout bounds the wait for a judge slot
	QueueTimeout time.Duration
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller submits source to a judge and polls the token to a terminal
// state
type Poller struct {
	judge   judge.Judge
	cfg     Config
	sleep   SleepFunc
	limiter Limiter
}

// Option configures a Poller
type Option func(*Poller)

// WithSleep replaces the wait between polls
func WithSleep(fn SleepFunc) Option {
	return func(p *Poller) {
		p.sleep = fn
	}
}

// WithLimiter caps concurrent runs against the judge
func WithLimiter(l Limiter) Option {
	return func(p *Poller) {
		p.limiter = l
	}
}

// NewPoller creates a poller
func NewPoller(j judge.Judge, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 20
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = 15 * time.Second
	}

	p := &Poller{
		judge: j,
		cfg:   cfg,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Placeholder is the result shown while a run is in flight
func Placeholder() *models.ExecutionResult {
	return &models.ExecutionResult{Status: models.ExecRunning, Output: MsgRunning}
}

// Precheck returns a terminal result for runs that never reach the judge,
// nil otherwise
func Precheck(source string, lang *models.Language, name string) *models.ExecutionResult {
	if !lang.Executable() {
		label := name
		if lang != nil && lang.Label != "" {
			label = lang.Label
		}
		return &models.ExecutionResult{Status: models.ExecUnsupported, Output: UnsupportedMessage(label)}
	}
	if strings.TrimSpace(source) == "" {
		return &models.ExecutionResult{Status: models.ExecEmptyInput, Output: MsgEmptyInput}
	}
	return nil
}

// Run executes source in lang and returns a terminal result. It never
// returns nil.
func (p *Poller) Run(ctx context.Context, source string, lang *models.Language) *models.ExecutionResult {
	name := ""
	if lang != nil {
		name = lang.Value
	}
	if res := Precheck(source, lang, name); res != nil {
		return res
	}

	if p.limiter != nil {
		release, res := p.acquire(ctx)
		if res != nil {
			return res
		}
		defer release()
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(source))
	token, err := p.judge.Submit(ctx, encoded, "", lang.JudgeID)
	if err != nil {
		slog.Warn("judge submit failed", "error", err, "language", lang.Value)
		return classify(ctx, err)
	}
	if token == "" {
		return failure(models.ExecUnknownError, msgNoToken)
	}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.cfg.Interval); err != nil {
				p.release(token)
				return &models.ExecutionResult{Status: models.ExecCanceled, Output: msgCanceled, Token: token, Attempts: attempt - 1}
			}
		}

		sub, err := p.judge.Poll(ctx, token)
		if err != nil {
			slog.Warn("judge poll failed", "error", err, "token", token, "attempt", attempt)
			p.release(token)
			res := classify(ctx, err)
			res.Token = token
			res.Attempts = attempt
			return res
		}

		if sub.Pending() {
			continue
		}

		if sub.Token == "" {
			sub.Token = token
		}
		res := buildResult(sub)
		res.Attempts = attempt
		slog.Debug("judge run finished", "token", token, "status", res.Status, "attempts", attempt)
		return res
	}

	p.release(token)
	res := failure(models.ExecTimeout, msgPollCeiling)
	res.Token = token
	res.Attempts = p.cfg.MaxAttempts
	return res
}

// acquire waits for a judge slot. A nil func comes with a terminal result.
func (p *Poller) acquire(ctx context.Context) (func(), *models.ExecutionResult) {
	wait, cancel := context.WithTimeout(ctx, p.cfg.QueueTimeout)
	defer cancel()

	release, err := p.limiter.Acquire(wait)
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, &models.ExecutionResult{Status: models.ExecCanceled, Output: msgCanceled}
	}
	slog.Warn("judge slot unavailable", "error", err, "wait", p.cfg.QueueTimeout)
	return nil, failure(models.ExecRateLimited, msgRateLimited)
}

// release frees judge resources for a token the loop stopped polling
func (p *Poller) release(token string) {
	r, ok := p.judge.(judge.Releaser)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Release(ctx, token); err != nil {
		slog.Warn("failed to release judge submission", "error", err, "token", token)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
