// Package chat runs one send of a chat transcript: it stores an optimistic
// pending pair, relays the question, classifies the answer and commits the
// pair, or reverts it on failure.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/studylog/internal/classify"
	"github.com/pbaille/studylog/internal/domain"
	"github.com/pbaille/studylog/internal/metrics"
	"github.com/pbaille/studylog/internal/relay"
)

var (
	// ErrEmptyInput is returned for a send with no text and no image
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy is returned while another send on the same transcript is in flight
	ErrBusy = errors.New("a send is already in progress")
)

// State is the controller's position in the send cycle
type State int

const (
	Idle State = iota
	Sending
	Streaming
	AwaitingBatch
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case AwaitingBatch:
		return "awaiting_batch"
	case Committing:
		return "committing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Relay is the upstream completions API
type Relay interface {
	Stream(ctx context.Context, messages []relay.Message, model string) (*relay.Stream, error)
	Complete(ctx context.Context, messages []relay.Message, opts relay.CompleteOptions) (string, error)
}

// Store is the part of the question store a send touches
type Store interface {
	EnsureUnsorted(ctx context.Context) error
	Taxonomy(ctx context.Context) (domain.Taxonomy, error)
	BeginPair(ctx context.Context, day string, user domain.Entry) (*domain.Pair, error)
	CommitPair(ctx context.Context, id, subject, unit string, answer domain.Entry) (*domain.Pair, error)
	DiscardPair(ctx context.Context, id string) error
}

// Config selects models and the answer format
type Config struct {
	Model       string
	VisionModel string
	Format      classify.Format
}

// Request is one learner turn. Image is a data URL or remote URL.
type Request struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// Update carries the cumulative answer text after each fragment
type Update struct {
	PairID string `json:"pair_id"`
	Text   string `json:"text"`
}

// Result is a committed send
type Result struct {
	Pair       *domain.Pair `json:"pair"`
	Subject    string       `json:"subject"`
	Unit       string       `json:"unit"`
	Answer     string       `json:"answer"`
	Classified bool         `json:"classified"`
}

// Controller owns the send cycle of one day transcript
type Controller struct {
	day     string
	relay   Relay
	store   Store
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	state State
}

// New creates a controller for the transcript of day
func New(day string, r Relay, s Store, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	return &Controller{
		day:     day,
		relay:   r,
		store:   s,
		cfg:     cfg,
		logger:  logger.With(zap.String("day", day)),
		metrics: metrics.Default(),
		now:     time.Now,
	}
}

// Day returns the transcript day the controller writes to
func (c *Controller) Day() string {
	return c.day
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// acquire moves Idle to Sending, failing fast if a send is in flight
func (c *Controller) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return false
	}
	c.state = Sending
	return true
}

// Send relays req and files the answer. onUpdate, if set, receives the
// cumulative answer after every streamed fragment. On failure the pending
// pair is removed and the controller is Idle again.
func (c *Controller) Send(ctx context.Context, req Request, onUpdate func(Update)) (*Result, error) {
	text := strings.TrimSpace(req.Text)
	image := strings.TrimSpace(req.Image)
	if text == "" && image == "" {
		c.metrics.Sends.WithLabelValues("empty").Inc()
		return nil, ErrEmptyInput
	}
	if !c.acquire() {
		c.metrics.Sends.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	defer c.setState(Idle)

	start := time.Now()
	res, err := c.send(ctx, text, image, onUpdate)
	c.metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.Sends.WithLabelValues("failed").Inc()
		c.logger.Warn("send failed", zap.Error(err))
		return nil, err
	}
	c.metrics.Sends.WithLabelValues("committed").Inc()
	c.logger.Info("send committed",
		zap.String("pair_id", res.Pair.ID),
		zap.String("subject", res.Subject),
		zap.String("unit", res.Unit),
		zap.Bool("classified", res.Classified),
	)
	return res, nil
}

func (c *Controller) send(ctx context.Context, text, image string, onUpdate func(Update)) (*Result, error) {
	// the reserved bucket is always a candidate the model may name
	if err := c.store.EnsureUnsorted(ctx); err != nil {
		return nil, fmt.Errorf("ensure unsorted: %w", err)
	}
	tax, err := c.store.Taxonomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	ts := c.now()
	pair, err := c.store.BeginPair(ctx, c.day, domain.Entry{
		Sender:    domain.SenderUser,
		Text:      text,
		Timestamp: &ts,
		Image:     image,
	})
	if err != nil {
		return nil, fmt.Errorf("begin pair: %w", err)
	}

	res, err := c.answer(ctx, pair, tax, text, image, onUpdate)
	if err != nil {
		// revert even when the request context is already cancelled
		if derr := c.store.DiscardPair(context.WithoutCancel(ctx), pair.ID); derr != nil {
			c.logger.Error("discard pending pair", zap.String("pair_id", pair.ID), zap.Error(derr))
		}
		return nil, err
	}
	return res, nil
}

func (c *Controller) answer(ctx context.Context, pair *domain.Pair, tax domain.Taxonomy, text, image string, onUpdate func(Update)) (*Result, error) {
	var (
		reply  string
		format classify.Format
		err    error
	)

	if image != "" {
		c.setState(AwaitingBatch)
		format = c.cfg.Format
		msgs := []relay.Message{
			relay.TextMessage(relay.RoleSystem, classify.SystemPrompt(tax, format)),
			relay.ImageMessage(relay.RoleUser, image, classify.UserPrompt(text)),
		}
		reply, err = c.relay.Complete(ctx, msgs, relay.CompleteOptions{
			Model: c.cfg.VisionModel,
			JSON:  format == classify.FormatJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("relay question: %w", err)
		}
	} else {
		c.setState(Streaming)
		format = streamFormat(c.cfg.Format)
		msgs := []relay.Message{
			relay.TextMessage(relay.RoleSystem, classify.SystemPrompt(tax, format)),
			relay.TextMessage(relay.RoleUser, classify.UserPrompt(text)),
		}
		reply, err = c.stream(ctx, pair.ID, msgs, onUpdate)
		if err != nil {
			return nil, fmt.Errorf("relay question: %w", err)
		}
	}

	c.setState(Committing)
	parsed := format.ParseAnswer(reply, tax)
	if parsed.Classified {
		c.metrics.Classifications.WithLabelValues("classified").Inc()
	} else {
		c.metrics.Classifications.WithLabelValues("fallback").Inc()
	}

	ts := c.now()
	committed, err := c.store.CommitPair(ctx, pair.ID, parsed.Subject, parsed.Unit, domain.Entry{
		Sender:    domain.SenderModel,
		Text:      parsed.Remainder,
		Timestamp: &ts,
	})
	if err != nil {
		return nil, fmt.Errorf("commit pair: %w", err)
	}

	return &Result{
		Pair:       committed,
		Subject:    committed.Subject,
		Unit:       committed.Unit,
		Answer:     parsed.Remainder,
		Classified: parsed.Classified,
	}, nil
}

func (c *Controller) stream(ctx context.Context, pairID string, msgs []relay.Message, onUpdate func(Update)) (string, error) {
	s, err := c.relay.Stream(ctx, msgs, c.cfg.Model)
	if err != nil {
		return "", err
	}
	defer s.Close()
	defer func() {
		if n := s.Dropped(); n > 0 {
			c.logger.Warn("dropped malformed fragments", zap.String("pair_id", pairID), zap.Int("count", n))
		}
	}()

	var sb strings.Builder
	for {
		frag, err := s.Next()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(frag)
		if onUpdate != nil {
			onUpdate(Update{PairID: pairID, Text: sb.String()})
		}
	}
}

// streamFormat returns the prefix format used for streamed answers.
// JSON is only requested from batch calls.
func streamFormat(f classify.Format) classify.Format {
	if f == classify.FormatJSON {
		return classify.FormatParagraph
	}
	return f
}
