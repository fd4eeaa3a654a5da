package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/parkd/internal/clock"
	"github.com/danmuck/parkd/internal/lots"
	"github.com/danmuck/parkd/internal/observability"
	"github.com/danmuck/parkd/internal/protocol/frame"
	"github.com/danmuck/parkd/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Coordinator endpoint configuration.
type ServiceConfig struct {
	ListenAddr    string
	DiscoveryAddr string
	AdvertiseHost string
	// MetricsAddr enables the /metrics endpoint when set.
	MetricsAddr string
	Lots        []lots.Lot
	Session     session.Config
	Limits      frame.Limits
	Clock       clock.Clock
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:    ":15002",
		DiscoveryAddr: ":15001",
		AdvertiseHost: "127.0.0.1",
		Session:       session.DefaultConfig(),
		Limits:        frame.DefaultLimits(),
		Clock:         clock.Real{},
	}
}

// Service binds the session listener, the discovery socket and the optional
// metrics endpoint around one Dispatcher.
type Service struct {
	cfg        ServiceConfig
	dispatcher *Dispatcher
}

func NewServiceWithConfig(cfg ServiceConfig) (*Service, error) {
	defaults := DefaultServiceConfig()
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = defaults.ListenAddr
	}
	if strings.TrimSpace(cfg.AdvertiseHost) == "" {
		cfg.AdvertiseHost = defaults.AdvertiseHost
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = defaults.Limits
	}
	cfg.Session = cfg.Session.WithDefaults()

	registry, err := lots.New(cfg.Lots)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg: cfg,
		dispatcher: NewDispatcher(registry, DispatcherConfig{
			Session: cfg.Session,
			Limits:  cfg.Limits,
			Clock:   cfg.Clock,
		}),
	}, nil
}

func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Run binds the configured sockets and blocks until SIGINT, SIGTERM or ctx
// cancellation. Bind failures are returned before anything is served.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("coordinator: listen %s: %w", s.cfg.ListenAddr, err)
	}
	var pc net.PacketConn
	if addr := strings.TrimSpace(s.cfg.DiscoveryAddr); addr != "" {
		pc, err = net.ListenPacket("udp", addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("coordinator: discovery listen %s: %w", addr, err)
		}
	}
	return s.Serve(ctx, ln, pc)
}

// Serve runs the coordinator on existing sockets. pc may be nil to disable
// discovery. Both sockets are closed on return.
func (s *Service) Serve(ctx context.Context, ln net.Listener, pc net.PacketConn) error {
	var responder *DiscoveryResponder
	if pc != nil {
		var err error
		responder, err = NewDiscoveryResponder(pc, session.DiscoveryInfo{
			Address: s.cfg.AdvertiseHost,
			Port:    listenerPort(ln),
		}, s.cfg.Session.Backoff)
		if err != nil {
			_ = pc.Close()
			_ = ln.Close()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		return nil
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})

	if responder != nil {
		g.Go(func() error {
			return responder.Serve(gctx)
		})
	}
	if addr := strings.TrimSpace(s.cfg.MetricsAddr); addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, addr)
		})
	}

	log.Info().Str("addr", ln.Addr().String()).Int("lots", s.dispatcher.registry.Len()).Msg("coordinator.Service listening")
	return g.Wait()
}

// acceptLoop hands connections to the dispatcher until the listener is
// closed. Other Accept errors are retried with backoff; only a bind failure
// stops the coordinator.
func (s *Service) acceptLoop(ctx context.Context, ln net.Listener) error {
	retry := session.NewRetry(s.cfg.Session.Backoff)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Int("failures", retry.Failures()+1).Msg("coordinator.Service accept failed")
			if retry.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		retry.Reset()
		if err := s.dispatcher.Open(ctx, conn); err != nil {
			return nil
		}
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("coordinator.metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("coordinator: metrics: %w", err)
	}
	return nil
}

func listenerPort(ln net.Listener) uint16 {
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return 0
}
