package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/quizduel/internal/duel"
	"github.com/park285/quizduel/internal/obslog"
)

type Options struct {
	// OriginPatterns is passed to websocket.Accept; empty means same-origin only.
	OriginPatterns []string
	PingInterval   time.Duration
}

// Server exposes the duel loop over websockets.
type Server struct {
	router  *httprouter.Router
	manager *duel.Manager
	rdb     *redis.Client
	opts    Options
}

func New(m *duel.Manager, rdb *redis.Client, opts Options) *Server {
	if opts.PingInterval == 0 {
		opts.PingInterval = 30 * time.Second
	}
	s := &Server{router: httprouter.New(), manager: m, rdb: rdb, opts: opts}
	s.router.GET("/ws/matchmaking/:username", s.serveMatchmaking)
	s.router.GET("/healthz", s.serveHealth)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) serveMatchmaking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	player := strings.TrimSpace(ps.ByName("username"))
	if player == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.opts.OriginPatterns})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("player", player), zap.Error(err))
		return
	}
	conn := newConn(c)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	obslog.L().Info("ws_connect", zap.String("player", player), zap.String("conn_id", conn.ID()), zap.String("remote", r.RemoteAddr))
	go conn.pingLoop(ctx, s.opts.PingInterval)

	err = s.manager.Serve(ctx, player, conn)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure, websocket.CloseStatus(err) == websocket.StatusGoingAway:
	default:
		obslog.L().Debug("ws_read_end", zap.String("player", player), zap.String("conn_id", conn.ID()), zap.Error(err))
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
	obslog.L().Info("ws_disconnect", zap.String("player", player), zap.String("conn_id", conn.ID()))
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status, code := "ok", http.StatusOK
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		status, code = "redis unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// hijacked websocket handlers end with ctx, Shutdown does not wait for them
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		return nil
	}
}
