// Package transport implements the hub transport contract over NATS.
//
// Subjects, for hub name H and client id C:
//
//	H.invoke.<Target>      request/reply invocation
//	H.join                 join request, acknowledged by a reply and a Connected push
//	H.client.C.<Target>    server pushes for this client
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"transit-client/internal/hub"
	"transit-client/internal/transit"
)

type NATSConfig struct {
	URL           string
	Hub           string
	ClientName    string
	MaxReconnects int // -1 retries forever
	ReconnectWait time.Duration
	// InvokeTimeout bounds a request whose context has no deadline.
	InvokeTimeout time.Duration
	// JoinTimeout bounds one join attempt.
	JoinTimeout time.Duration
}

const (
	joinRetryMin = 50 * time.Millisecond
	joinRetryMax = 2 * time.Second
)

// RemoteError is a failure reported by the hub in an invocation completion.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "hub error: " + e.Message }

var errNotStarted = errors.New("nats connection not started")

type invocation struct {
	InvocationID string `json:"invocationId"`
	ClientID     string `json:"clientId"`
	Target       string `json:"target"`
	Arguments    []any  `json:"arguments"`
}

type completion struct {
	InvocationID string          `json:"invocationId"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type joinMessage struct {
	ClientID string `json:"clientId"`
}

// NATSDialer builds one NATS connection per hub.Adapter Connect call.
type NATSDialer struct {
	cfg NATSConfig
	log *slog.Logger
}

func NewNATSDialer(cfg NATSConfig, logger *slog.Logger) *NATSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Hub == "" {
		cfg.Hub = "UserHub"
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "transit-client"
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 2 * time.Second
	}
	return &NATSDialer{cfg: cfg, log: logger.With("component", "nats")}
}

func (d *NATSDialer) Build(h hub.Handlers) (hub.Transport, error) {
	if strings.TrimSpace(d.cfg.URL) == "" {
		return nil, errors.New("nats url is empty")
	}
	if h.Push == nil || h.State == nil {
		return nil, errors.New("nats transport needs push and state handlers")
	}
	id := uuid.NewString()
	return &natsConn{
		cfg:      d.cfg,
		log:      d.log.With("client_id", id),
		h:        h,
		clientID: id,
		hub:      subjectToken(d.cfg.Hub),
	}, nil
}

type natsConn struct {
	cfg      NATSConfig
	log      *slog.Logger
	h        hub.Handlers
	clientID string
	hub      string

	mu         sync.Mutex
	nc         *nats.Conn
	sub        *nats.Subscription
	closed     bool
	joinCancel context.CancelFunc
	joins      sync.WaitGroup
}

func (c *natsConn) pushPrefix() string { return c.hub + ".client." + c.clientID + "." }

func (c *natsConn) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := []nats.Option{
		nats.Name(c.cfg.ClientName),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.log.Warn("nats disconnected", "error", err)
			c.h.State(transit.Reconnecting)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.log.Info("nats reconnected", "url", nc.ConnectedUrl())
			c.h.State(transit.Connected)
			c.join(nc)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.log.Info("nats closed")
			c.h.State(transit.Disconnected)
		}),
	}
	if c.cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(c.cfg.ReconnectWait))
	}
	nc, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}
	sub, err := nc.Subscribe(c.pushPrefix()+">", c.onMsg)
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe pushes: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		nc.Close()
		return errors.New("nats transport closed during start")
	}
	c.nc, c.sub = nc, sub
	c.mu.Unlock()

	c.h.State(transit.Connected)
	c.join(nc)
	return nil
}

// join asks the hub to acknowledge this client. Attempts repeat with capped
// backoff until the hub replies, so a join sent before the hub has
// resubscribed after a server restart is retried. A newer join or Close
// cancels the running one.
func (c *natsConn) join(nc *nats.Conn) {
	b, err := json.Marshal(joinMessage{ClientID: c.clientID})
	if err != nil {
		c.log.Error("encode join", "error", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.joinCancel != nil {
		c.joinCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.joinCancel = cancel
	c.joins.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.joins.Done()
		defer cancel()

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = joinRetryMin
		bo.MaxInterval = joinRetryMax
		bo.MaxElapsedTime = 0

		attempts := 0
		err := backoff.Retry(func() error {
			if nc.IsClosed() {
				return backoff.Permanent(nats.ErrConnectionClosed)
			}
			attempts++
			rctx, rcancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
			defer rcancel()
			if _, err := nc.RequestWithContext(rctx, c.hub+".join", b); err != nil {
				c.log.Debug("join not acknowledged", "attempt", attempts, "error", err)
				return err
			}
			return nil
		}, backoff.WithContext(bo, ctx))
		switch {
		case err == nil:
			c.log.Debug("join acknowledged", "attempts", attempts)
		case ctx.Err() == nil:
			c.log.Error("join failed", "attempts", attempts, "error", err)
		}
	}()
}

func (c *natsConn) onMsg(m *nats.Msg) {
	target := strings.TrimPrefix(m.Subject, c.pushPrefix())
	if target == "" || strings.Contains(target, ".") {
		c.log.Debug("ignoring push on unexpected subject", "subject", m.Subject)
		return
	}
	c.h.Push(target, json.RawMessage(m.Data))
}

func (c *natsConn) Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil {
		return nil, errNotStarted
	}
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(invocation{
		InvocationID: uuid.NewString(),
		ClientID:     c.clientID,
		Target:       target,
		Arguments:    args,
	})
	if err != nil {
		return nil, fmt.Errorf("encode invocation: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok && c.cfg.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.InvokeTimeout)
		defer cancel()
	}
	msg, err := nc.RequestWithContext(ctx, c.hub+".invoke."+subjectToken(target), body)
	if err != nil {
		return nil, err
	}
	var comp completion
	if err := json.Unmarshal(msg.Data, &comp); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if comp.Error != "" {
		return nil, &RemoteError{Message: comp.Error}
	}
	return comp.Result, nil
}

func (c *natsConn) Close() error {
	c.mu.Lock()
	c.closed = true
	nc := c.nc
	c.nc, c.sub = nil, nil
	if c.joinCancel != nil {
		c.joinCancel()
	}
	c.mu.Unlock()
	if nc != nil {
		nc.Close()
	}
	c.joins.Wait()
	return nil
}

// subjectToken maps s onto one subject token: separators, wildcards and
// whitespace become underscores.
func subjectToken(s string) string {
	tok := strings.Map(func(r rune) rune {
		if r == '.' || r == '*' || r == '>' || r == '/' || unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if tok == "" {
		return "_"
	}
	return tok
}
