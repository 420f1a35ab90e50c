package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mini-live-chat/go-core/internal/command"
	"mini-live-chat/go-core/internal/config"
	"mini-live-chat/go-core/internal/platform/ratelimiter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The relay is transport-only; origin policy belongs to the deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the long-lived broadcast relay service.
type Server struct {
	cfg     config.RelayConfig
	log     *slog.Logger
	metrics *metrics
	hub     *hub

	connLimiter    *ratelimiter.MapLimiter
	ingressLimiter *ratelimiter.MapLimiter

	httpSrv    *http.Server
	metricsSrv *http.Server
}

// New builds a relay server. reg may be nil to skip metric registration
// (tests pass a private registry).
func New(cfg config.RelayConfig, log *slog.Logger, reg prometheus.Registerer) *Server {
	m := newMetrics(reg)
	return &Server{
		cfg:            cfg,
		log:            log,
		metrics:        m,
		hub:            newHub(cfg.QueueDepth, log, m),
		connLimiter:    ratelimiter.New(cfg.ConnRPS, cfg.ConnBurst, 10*time.Minute),
		ingressLimiter: ratelimiter.New(cfg.IngressRPS, cfg.IngressBurst, 10*time.Minute),
	}
}

// Handler exposes the websocket endpoint; tests mount it on httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			w.Write([]byte("relay running"))
			return
		}
		s.serveConn(w, r)
	})
	return mux
}

// ConnectedPeers reports the live connection count.
func (s *Server) ConnectedPeers() int {
	return s.hub.size()
}

func (s *Server) serveConn(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.connLimiter.Allow(host, time.Now()) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := s.hub.register(uuid.NewString())
	s.log.Info("peer connected", "conn_id", p.id)

	go s.writeLoop(ws, p)
	s.readLoop(ws, p)
}

// readLoop drives one connection's inbound stream. Malformed envelopes are
// dropped with a diagnostic; they never crash the relay or disconnect the
// sender.
func (s *Server) readLoop(ws *websocket.Conn, p *peer) {
	defer func() {
		s.hub.unregister(p)
		ws.Close()
		s.log.Info("peer disconnected", "conn_id", p.id)
		s.ingressLimiter.Forget(p.id)
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if !s.ingressLimiter.Allow(p.id, time.Now()) {
			s.metrics.droppedTotal.WithLabelValues("throttled").Inc()
			continue
		}
		if _, err := command.DecodeFrame(raw); err != nil {
			s.log.Warn("invalid command format", "conn_id", p.id, "error", err)
			s.metrics.droppedTotal.WithLabelValues("malformed").Inc()
			continue
		}
		// Rebroadcast the exact bytes; content stays opaque.
		s.hub.broadcast(raw)
	}
}

// writeLoop drains the peer's bounded queue onto the socket and keeps the
// connection alive with pings. Exits when the queue is closed (unregister or
// overflow drop) or a write fails.
func (s *Server) writeLoop(ws *websocket.Conn, p *peer) {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ping.Stop()
		ws.Close()
	}()

	for {
		select {
		case raw, ok := <-p.send:
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ListenAndServe runs the relay (and the optional metrics listener) until
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Handler()}

	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("metrics listener failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops accepting connections and closes the live ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.metricsSrv != nil {
		_ = s.metricsSrv.Shutdown(ctx)
	}
	if s.httpSrv == nil {
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)
	s.hub.closeAll()
	return err
}
