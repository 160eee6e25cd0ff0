// Package transport sets up the byte streams between two peers. Each peer
// listens for exactly one inbound connection and dials the other peer; messages
// are read from the inbound connection and written to the outbound one.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDialTimeout is returned when the peer could not be reached in time.
	ErrDialTimeout = errors.New("transport: dial timeout")
	// ErrAcceptTimeout is returned when the peer did not connect in time.
	ErrAcceptTimeout = errors.New("transport: accept timeout")
)

// Config for the peer connection.
type Config struct {
	Listen        string        `mapstructure:"listen"`
	Peer          string        `mapstructure:"peer"`
	DialTimeout   time.Duration `mapstructure:"dial-timeout"`
	AcceptTimeout time.Duration `mapstructure:"accept-timeout"`
	RetryInterval time.Duration `mapstructure:"retry-interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Listen:        "127.0.0.1:7070",
		Peer:          "127.0.0.1:7071",
		DialTimeout:   time.Minute,
		AcceptTimeout: 5 * time.Minute,
		RetryInterval: 200 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.Listen == "" || cfg.Peer == "" {
		return errors.New("listen and peer addresses are required")
	}
	if cfg.DialTimeout <= 0 || cfg.AcceptTimeout <= 0 || cfg.RetryInterval <= 0 {
		return errors.New("timeouts and retry interval must be positive")
	}
	return nil
}

// Opt configures transport functions.
type Opt func(*options)

type options struct {
	logger *zap.Logger
	clock  clockwork.Clock
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(o *options) {
		o.logger = logger
	}
}

func withClock(clock clockwork.Clock) Opt {
	return func(o *options) {
		o.clock = clock
	}
}

func applyOpts(opts []Opt) options {
	o := options{
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Session joins the inbound and outbound streams.
type Session struct {
	in        io.ReadCloser
	out       io.WriteCloser
	closeOnce sync.Once
	closeErr  error
}

var _ io.ReadWriteCloser = (*Session)(nil)

// Join builds a session from already established streams.
func Join(in io.ReadCloser, out io.WriteCloser) *Session {
	return &Session{in: in, out: out}
}

func (s *Session) Read(p []byte) (int, error) {
	return s.in.Read(p)
}

func (s *Session) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

// Close closes both streams.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.out.Close(), s.in.Close())
	})
	return s.closeErr
}

// Listener accepts a single inbound connection.
type Listener struct {
	ln net.Listener
}

// Listen binds the address.
func Listen(address string) (*Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops listening.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Accept waits for one connection and closes the listener.
func (l *Listener) Accept(ctx context.Context, timeout time.Duration, opts ...Opt) (net.Conn, error) {
	o := applyOpts(opts)
	defer l.ln.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var timedOut bool
	var mu sync.Mutex
	go func() {
		select {
		case <-ctx.Done():
		case <-o.clock.After(timeout):
			mu.Lock()
			timedOut = true
			mu.Unlock()
		}
		l.ln.Close()
	}()
	conn, err := l.ln.Accept()
	if err != nil {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case timedOut:
			return nil, fmt.Errorf("%w: %s", ErrAcceptTimeout, l.ln.Addr())
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("accept: %w", err)
		}
	}
	o.logger.Debug("accepted connection", zap.Stringer("remote", conn.RemoteAddr()))
	return conn, nil
}

// Dial connects to address, retrying every retryInterval until timeout.
func Dial(ctx context.Context, address string, timeout, retryInterval time.Duration, opts ...Opt) (net.Conn, error) {
	o := applyOpts(opts)
	deadline := o.clock.After(timeout)
	var d net.Dialer
	for attempt := 1; ; attempt++ {
		conn, err := d.DialContext(ctx, "tcp", address)
		if err == nil {
			o.logger.Debug("connected", zap.String("address", address), zap.Int("attempts", attempt))
			return conn, nil
		}
		o.logger.Debug("connection attempt failed", zap.String("address", address), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrDialTimeout, address, attempt, err)
		case <-o.clock.After(retryInterval):
		}
	}
}

// Open listens on cfg.Listen and dials cfg.Peer concurrently, returning once
// both connections are up.
func Open(ctx context.Context, cfg Config, opts ...Opt) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ln, err := Listen(cfg.Listen)
	if err != nil {
		return nil, err
	}
	return open(ctx, ln, cfg, opts...)
}

func open(ctx context.Context, ln *Listener, cfg Config, opts ...Opt) (*Session, error) {
	var in, out net.Conn
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		in, err = ln.Accept(egCtx, cfg.AcceptTimeout, opts...)
		return err
	})
	eg.Go(func() error {
		var err error
		out, err = Dial(egCtx, cfg.Peer, cfg.DialTimeout, cfg.RetryInterval, opts...)
		return err
	})
	if err := eg.Wait(); err != nil {
		for _, c := range []net.Conn{in, out} {
			if c != nil {
				c.Close()
			}
		}
		return nil, err
	}
	return Join(in, out), nil
}
