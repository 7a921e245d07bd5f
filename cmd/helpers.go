// cmd/helpers.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signsinfo/capacity/internal/access"
	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/datekey"
	"github.com/signsinfo/capacity/internal/notify"
	"github.com/signsinfo/capacity/internal/report"
	"github.com/signsinfo/capacity/internal/store"
	"github.com/signsinfo/capacity/internal/usage"
)

// localLevel is the level assumed for the local database when none is set.
const localLevel = "admin"

// session bundles what a command needs to talk to the capacity data.
type session struct {
	cfg      *Config
	backend  backend.Backend
	guard    *access.Guard
	notifier notify.Notifier
	closers  []func() error
}

// openSession loads the config and builds the backend, guard and notifier.
// The caller must Close the session.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}

	if err := s.openBackend(); err != nil {
		return nil, err
	}
	if err := s.buildGuard(); err != nil {
		s.Close()
		return nil, err
	}
	s.buildNotifier(ctx)
	return s, nil
}

func (s *session) openBackend() error {
	if s.cfg.API != "" {
		Debug("using capacity API at %s", s.cfg.API)
		s.backend = backend.NewClient(backend.ClientConfig{
			BaseURL:   s.cfg.API,
			Token:     s.cfg.Token,
			DebugFunc: Debug,
		})
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.DB), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	st, err := store.OpenStore(s.cfg.DB)
	if err != nil {
		return err
	}
	Debug("using local database %s", s.cfg.DB)
	s.backend = st
	s.closers = append(s.closers, st.Close)
	return nil
}

func (s *session) buildGuard() error {
	table, err := s.cfg.table()
	if err != nil {
		return err
	}

	var provider access.Provider
	switch {
	case s.cfg.Level != "":
		provider = access.Static(s.cfg.Level)
	case s.cfg.API != "":
		provider = access.NewHTTPProvider(access.HTTPProviderConfig{
			LoginURL: s.cfg.loginURL(),
			Token:    s.cfg.Token,
		})
	default:
		provider = access.Static(localLevel)
	}
	s.guard = &access.Guard{Table: table, Provider: provider}
	return nil
}

// buildNotifier always prints to the console and also publishes to Redis
// when configured. An unreachable Redis is reported and skipped.
func (s *session) buildNotifier(ctx context.Context) {
	sinks := notify.Multi{notify.NewConsole(os.Stdout)}

	if s.cfg.Redis.URL != "" {
		pub, err := s.redisPublisher(ctx)
		if err != nil {
			warnColor.Fprintf(os.Stderr, "   - ⚠️ Redis notifications disabled: %v\n", err)
		} else {
			sinks = append(sinks, pub)
			s.closers = append(s.closers, pub.Close)
		}
	}
	s.notifier = sinks
}

func (s *session) redisPublisher(ctx context.Context) (*notify.RedisPublisher, error) {
	pub, err := notify.NewRedisPublisher(notify.RedisPublisherConfig{
		RedisURL:      s.cfg.Redis.URL,
		RedisPassword: s.cfg.Redis.Password,
		Channel:       s.cfg.Redis.Channel,
		Stream:        s.cfg.Redis.Stream,
		StreamMaxLen:  s.cfg.Redis.StreamMaxLen,
		DebugFunc:     Debug,
	})
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pub.Ping(pingCtx); err != nil {
		pub.Close()
		return nil, err
	}
	return pub, nil
}

// board returns a usage board wired to the session.
func (s *session) board() *usage.Board {
	return usage.NewBoard(usage.BoardConfig{
		Backend:  s.backend,
		Guard:    s.guard,
		Notifier: s.notifier,
		AreaUnit: s.cfg.AreaUnit,
		LogFn:    logFn,
	})
}

// loadBoard returns a board with day loaded.
func (s *session) loadBoard(ctx context.Context, day datekey.Key) (*usage.Board, error) {
	b := s.board()
	if err := b.Load(ctx, day); err != nil {
		return nil, fmt.Errorf("load %s: %w", day, err)
	}
	return b, nil
}

// resolver returns a report resolver wired to the session.
func (s *session) resolver() *report.Resolver {
	return report.NewResolver(report.ResolverConfig{
		Backend: s.backend,
		Guard:   s.guard,
		LogFn:   logFn,
	})
}

// Close releases the database and Redis connections.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			Debug("close: %v", err)
		}
	}
}

// logFn routes library log messages to the CLI's output.
func logFn(level, msg string) {
	switch level {
	case "warning", "error":
		warnColor.Fprintf(os.Stderr, "   - ⚠️ %s\n", msg)
	case "info":
		fmt.Printf("   - %s\n", msg)
	default:
		Debug("%s", msg)
	}
}

// parseDay returns today for an empty value, otherwise a validated key.
func parseDay(s string) (datekey.Key, error) {
	if s == "" || s == "today" {
		return datekey.Today(), nil
	}
	t, err := datekey.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w (want YYYY-MM-DD)", err)
	}
	return datekey.Of(t), nil
}

// parseID parses a positional id argument.
func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}
