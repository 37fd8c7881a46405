package duel

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/park285/quizduel/internal/matchqueue"
	"github.com/park285/quizduel/internal/obslog"
	"github.com/park285/quizduel/internal/questions"
	"github.com/park285/quizduel/internal/registry"
	"github.com/park285/quizduel/internal/session"
	"github.com/park285/quizduel/internal/sessionid"
	"github.com/park285/quizduel/pkg/duelproto"
)

// Manager runs the per-connection duel loop.
type Manager struct {
	queue     Queue
	sessions  Sessions
	registry  *registry.Registry
	questions questions.Source
	finalizer *Finalizer
	texts     Texts
	opts      Options
}

func NewManager(q Queue, s Sessions, reg *registry.Registry, src questions.Source, fin *Finalizer, texts Texts, opts Options) *Manager {
	return &Manager{
		queue:     q,
		sessions:  s,
		registry:  reg,
		questions: src,
		finalizer: fin,
		texts:     texts,
		opts:      opts.withDefaults(),
	}
}

// client is the registry binding for one connection.
type client struct {
	Transport
	player string
	state  atomic.Int32

	mu     sync.Mutex
	gameID string
}

func (c *client) State() State     { return State(c.state.Load()) }
func (c *client) setState(s State) { c.state.Store(int32(s)) }

// markPairing claims a searching client for a pairing in flight.
func (c *client) markPairing() {
	if !c.state.CompareAndSwap(int32(StateWaiting), int32(StatePairing)) {
		c.state.CompareAndSwap(int32(StateQueued), int32(StatePairing))
	}
}

func (c *client) enterGame(id string) {
	c.mu.Lock()
	c.gameID = id
	c.mu.Unlock()
	c.setState(StateInGame)
}

func (c *client) currentGame() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID
}

// Serve owns t until the peer disconnects or ctx ends. It never returns an error for
// client mistakes; only the transport read error that ended the loop is returned.
func (m *Manager) Serve(ctx context.Context, player string, t Transport) error {
	player = strings.TrimSpace(player)
	if player == "" {
		return ErrInvalidPlayer
	}
	c := &client{Transport: t, player: player}
	c.setState(StateConnecting)

	if prev := m.registry.Register(player, c); prev != nil {
		obslog.L().Info("duel_connection_replaced", zap.String("player", player), zap.String("prev_conn", prev.ID()), zap.String("conn", t.ID()))
	}
	defer m.disconnect(c)

	m.search(ctx, c)

	for {
		raw, err := t.Read(ctx)
		if err != nil {
			return err
		}
		var msg duelproto.Inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			obslog.L().Debug("duel_bad_message", zap.String("player", player), zap.Error(err))
			continue
		}
		switch msg.Type {
		case duelproto.TypeSubmitAnswer:
			m.handleAnswer(ctx, c, msg)
		case duelproto.TypeFinishGame:
			m.handleFinish(ctx, c, msg)
		case duelproto.TypeCancelSearch:
			m.handleCancel(ctx, c)
		default:
			obslog.L().Debug("duel_unknown_message", zap.String("player", player), zap.String("type", msg.Type))
		}
	}
}

func (m *Manager) search(ctx context.Context, c *client) {
	c.setState(StateQueued)
	m.sendStatus(ctx, c, textFinding)

	res, err := m.queue.Enqueue(ctx, c.player)
	if err != nil {
		obslog.L().Warn("duel_enqueue_error", zap.String("player", c.player), zap.Error(err))
		c.setState(StateConnecting)
		m.sendStatus(ctx, c, textMatchFailed)
		return
	}
	if res.Status != matchqueue.StatusMatchFound {
		// the opponent's loop may already have paired us
		if c.state.CompareAndSwap(int32(StateQueued), int32(StateWaiting)) {
			m.sendStatus(ctx, c, textWaiting)
		}
		return
	}
	m.startGame(ctx, res)
}

func (m *Manager) startGame(ctx context.Context, res matchqueue.MatchResult) {
	p1, p2 := res.Players[0], res.Players[1]
	log := obslog.L().With(zap.String("game_id", res.SessionID), zap.String("player1", p1), zap.String("player2", p2))

	for _, p := range res.Players {
		if cl := m.lookup(p); cl != nil {
			cl.markPairing()
		}
	}

	qs, err := m.questions.Random(ctx, m.opts.QuestionCount)
	if err == nil {
		err = m.createSession(ctx, res.SessionID, p1, p2)
	}
	if err != nil {
		log.Error("duel_match_start_error", zap.Error(err))
		for _, p := range res.Players {
			if cl := m.lookup(p); cl != nil {
				cl.setState(StateConnecting)
			}
			m.registry.Send(ctx, p, duelproto.NewStatus(m.text(textMatchFailed)))
		}
		return
	}

	public := questions.PublicAll(qs)
	cfg := duelproto.GameConfig{QuestionCount: len(public), TimerPerQuestion: m.opts.TimerPerQuestion}
	for _, p := range res.Players {
		if cl := m.lookup(p); cl != nil {
			cl.enterGame(res.SessionID)
		}
		start := duelproto.GameStart{
			Type:      duelproto.TypeGameStart,
			GameID:    res.SessionID,
			Opponent:  sessionid.Opponent(res.SessionID, p),
			Questions: public,
			Config:    cfg,
		}
		if !m.registry.Send(ctx, p, start) {
			log.Warn("duel_game_start_undelivered", zap.String("player", p))
		}
	}
	log.Info("duel_match_found", zap.Int("questions", len(public)))
}

// createSession opens the session for a new pairing. A previous duel of the same pair that
// is still awaiting finalize is persisted first so its result is not overwritten.
func (m *Manager) createSession(ctx context.Context, id, p1, p2 string) error {
	_, err := m.sessions.Create(ctx, id, p1, p2)
	if !errors.Is(err, session.ErrPendingFinalize) {
		return err
	}
	obslog.L().Info("duel_rematch_finalize_pending", zap.String("game_id", id))

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.FinalizeTimeout)
	ferr := m.finalizer.Finalize(fctx, id)
	cancel()
	if ferr != nil && !errors.Is(ferr, session.ErrNotFound) {
		return ferr
	}
	_, err = m.sessions.Create(ctx, id, p1, p2)
	return err
}

func (m *Manager) handleAnswer(ctx context.Context, c *client, msg duelproto.Inbound) {
	gameID := m.gameFor(c, msg.GameID)
	qid := int64(msg.QID)

	correct, ok, err := m.questions.CorrectOption(ctx, qid)
	if err != nil {
		obslog.L().Warn("duel_answer_lookup_error", zap.String("player", c.player), zap.Int64("q_id", qid), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	if !questions.Matches(correct, msg.Answer) {
		_ = c.WriteJSON(ctx, duelproto.AnswerResult{Type: duelproto.TypeAnswerResult, Correct: false, CorrectOption: correct})
		return
	}

	total, applied, err := m.sessions.AddScoreOnce(ctx, gameID, c.player, qid, m.opts.PointsPerAnswer)
	if err != nil {
		obslog.L().Warn("duel_score_error", zap.String("game_id", gameID), zap.String("player", c.player), zap.Int64("q_id", qid), zap.Error(err))
		return
	}
	_ = c.WriteJSON(ctx, duelproto.AnswerResult{Type: duelproto.TypeAnswerResult, Correct: true, Score: &total, CorrectOption: correct})

	if applied && strings.TrimSpace(msg.Opponent) != "" {
		opp := sessionid.Opponent(gameID, c.player)
		if opp != "" {
			m.registry.Send(ctx, opp, duelproto.OpponentUpdate{Type: duelproto.TypeOpponentUpdate, OpponentScore: total})
		}
	}
}

func (m *Manager) handleFinish(ctx context.Context, c *client, msg duelproto.Inbound) {
	defer func() { _ = c.WriteJSON(ctx, duelproto.NewGameOverAck()) }()

	gameID := m.gameFor(c, msg.GameID)
	res, err := m.sessions.MarkFinished(ctx, gameID, c.player)
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrNotParticipant):
		obslog.L().Debug("duel_finish_ignored", zap.String("game_id", gameID), zap.String("player", c.player), zap.Error(err))
		return
	case err != nil:
		obslog.L().Warn("duel_finish_error", zap.String("game_id", gameID), zap.String("player", c.player), zap.Error(err))
		return
	}
	if !res.Tripped {
		return
	}

	// 마지막 FINISH 직후 연결이 끊겨도 확정은 끝까지 진행
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.FinalizeTimeout)
	defer cancel()
	_ = m.finalizer.Finalize(fctx, gameID)
}

// handleCancel always answers. Outside a search it is a no-op acknowledged as cancelled;
// once the opponent has popped this player the pairing stands and the reply says so.
func (m *Manager) handleCancel(ctx context.Context, c *client) {
	removed, err := m.queue.Remove(ctx, c.player)
	if err != nil {
		obslog.L().Warn("duel_cancel_error", zap.String("player", c.player), zap.Error(err))
		if s := c.State(); s == StateQueued || s == StateWaiting {
			m.sendStatus(ctx, c, textWaiting)
			return
		}
	}
	if removed {
		if !c.state.CompareAndSwap(int32(StateWaiting), int32(StateConnecting)) {
			c.state.CompareAndSwap(int32(StateQueued), int32(StateConnecting))
		}
		m.sendStatus(ctx, c, textCancelled)
		return
	}
	switch c.State() {
	case StateQueued, StateWaiting, StatePairing:
		// 상대가 이미 큐에서 꺼냄. GAME_START 또는 match_failed가 뒤따름
		obslog.L().Debug("duel_cancel_while_pairing", zap.String("player", c.player))
		m.sendStatus(ctx, c, textPairing)
		return
	}
	m.sendStatus(ctx, c, textCancelled)
}

func (m *Manager) disconnect(c *client) {
	prev := c.State()
	c.setState(StateClosed)
	m.registry.Release(c.player, c)

	if prev == StateQueued || prev == StateWaiting {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.FinalizeTimeout)
		defer cancel()
		if _, err := m.queue.Remove(ctx, c.player); err != nil {
			obslog.L().Warn("duel_disconnect_dequeue_error", zap.String("player", c.player), zap.Error(err))
		}
	}
	obslog.L().Debug("duel_disconnect", zap.String("player", c.player), zap.String("state", prev.String()), zap.String("game_id", c.currentGame()))
}

// gameFor prefers the id the client sent and falls back to the game this connection joined.
func (m *Manager) gameFor(c *client, sent string) string {
	if id := strings.TrimSpace(sent); id != "" {
		return id
	}
	return c.currentGame()
}

func (m *Manager) lookup(player string) *client {
	conn, ok := m.registry.Lookup(player)
	if !ok {
		return nil
	}
	cl, _ := conn.(*client)
	return cl
}

func (m *Manager) text(key string) string {
	if m.texts == nil {
		return fallbackTexts[key]
	}
	return m.texts.Text(key, fallbackTexts[key])
}

func (m *Manager) sendStatus(ctx context.Context, c *client, key string) {
	_ = c.WriteJSON(ctx, duelproto.NewStatus(m.text(key)))
}
