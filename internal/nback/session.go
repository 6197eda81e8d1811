package nback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/NBackTrainer/server/internal/events"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/metrics"
)

const (
	actorPlayer = "PLAYER"
	actorSystem = "SYSTEM"

	storeTimeout = 5 * time.Second
)

// Session is the N-back session controller. One Session runs one game at a
// time; StartGame supersedes any game in progress.
//
// Event handlers subscribed to the session's EventLog run on the goroutine
// that changed the state. They may read State, Score, HighScore and Scores,
// which never wait on the publishing goroutine and may already reflect a
// later change. Handlers must not call StartGame, EndGame, CheckMatch,
// SetGameType or Close.
type Session struct {
	cfg      Config
	store    HighScoreStore
	speaker  Speaker
	gen      Generator
	clock    Clock
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector

	baseCtx   context.Context
	closeBase context.CancelFunc

	// lifecycle serializes StartGame, EndGame and Close.
	lifecycle sync.Mutex
	// pubMu keeps events in the order their state changes were made.
	pubMu sync.Mutex

	mu            sync.Mutex
	id            string
	phase         Phase
	gameType      GameType
	runType       GameType
	sequence      []int
	index         int
	value         int
	score         int
	highScore     int
	feedback      Feedback
	feedbackGen   uint64
	feedbackTimer Timer
	startedAt     time.Time
	task          *Task
	closed        bool

	// view is republished under mu on every change; readers never take mu.
	view atomic.Pointer[sessionView]
}

type sessionView struct {
	state  State
	scores Scores
}

// Builder assembles a Session.
type Builder struct {
	cfg      Config
	gameType GameType
	store    HighScoreStore
	speaker  Speaker
	gen      Generator
	clock    Clock
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// MakeBuilder creates a builder with the reference configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg:      DefaultConfig(),
		gameType: GameTypeVisual,
	}
}

// WithConfig sets the session parameters.
func (b Builder) WithConfig(cfg Config) Builder {
	b.cfg = cfg
	return b
}

// WithGameType sets the initial game type.
func (b Builder) WithGameType(t GameType) Builder {
	b.gameType = t
	return b
}

// WithStore sets the high score store. Required.
func (b Builder) WithStore(s HighScoreStore) Builder {
	b.store = s
	return b
}

// WithSpeaker sets the speech collaborator used by audio sessions.
func (b Builder) WithSpeaker(s Speaker) Builder {
	b.speaker = s
	return b
}

// WithGenerator replaces the random sequence generator.
func (b Builder) WithGenerator(g Generator) Builder {
	b.gen = g
	return b
}

// WithClock replaces the wall clock.
func (b Builder) WithClock(c Clock) Builder {
	b.clock = c
	return b
}

// WithEventLog sets the log that receives session events.
func (b Builder) WithEventLog(el *events.EventLog) Builder {
	b.eventLog = el
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *logger.Logger) Builder {
	b.logger = l
	return b
}

// WithMetrics sets the metrics collector.
func (b Builder) WithMetrics(m *metrics.Collector) Builder {
	b.metrics = m
	return b
}

// Build validates the configuration and creates an idle session.
func (b Builder) Build() (*Session, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, ErrNoStore
	}
	if _, err := ParseGameType(string(b.gameType)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := &Session{
		cfg:      b.cfg,
		store:    b.store,
		speaker:  b.speaker,
		gen:      b.gen,
		clock:    b.clock,
		eventLog: b.eventLog,
		logger:   b.logger,
		metrics:  b.metrics,
		phase:    PhaseIdle,
		gameType: b.gameType,
		runType:  b.gameType,
		value:    NoStimulus,
		feedback: FeedbackNeutral,
	}
	if s.speaker == nil {
		s.speaker = nopSpeaker{}
	}
	if s.gen == nil {
		s.gen = NewRandomGenerator()
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.eventLog == nil {
		s.eventLog = events.NewEventLog(nil)
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.Get()
	}
	s.logger = s.logger.With(logger.String("component", "session"))
	s.baseCtx, s.closeBase = context.WithCancel(context.Background())
	s.storeViewLocked()
	return s, nil
}

// Events returns the log the session publishes to.
func (s *Session) Events() *events.EventLog {
	return s.eventLog
}

// Config returns the session parameters.
func (s *Session) Config() Config {
	return s.cfg
}

// State returns a snapshot of the presentation state.
func (s *Session) State() State {
	return s.view.Load().state
}

// Score returns the running score of the current or last session.
func (s *Session) Score() int {
	return s.view.Load().scores.Score
}

// HighScore returns the last high score the store accepted.
func (s *Session) HighScore() int {
	return s.view.Load().scores.HighScore
}

// Scores returns the running score and high score together.
func (s *Session) Scores() Scores {
	return s.view.Load().scores
}

// LoadHighScore refreshes the cached high score from the store.
func (s *Session) LoadHighScore(ctx context.Context) error {
	hs, err := s.store.HighScore(ctx)
	if err != nil {
		return fmt.Errorf("failed to load high score: %w", err)
	}

	s.mu.Lock()
	if hs == s.highScore {
		s.mu.Unlock()
		return nil
	}
	s.highScore = hs
	ev := s.newEvent(events.EventTypeHighScore, actorSystem, Scores{Score: s.score, HighScore: hs})
	s.unlockAndPublish(ev)
	return nil
}

// SetGameType changes the type used by the next StartGame. A game already
// running keeps the type it was started with.
func (s *Session) SetGameType(t GameType) error {
	if _, err := ParseGameType(string(t)); err != nil {
		return err
	}

	s.mu.Lock()
	if s.gameType == t {
		s.mu.Unlock()
		return nil
	}
	s.gameType = t
	ev := s.newEvent(events.EventTypeGameTypeChanged, actorPlayer, GameTypePayload{GameType: t})
	s.unlockAndPublish(ev)
	return nil
}

// StartGame cancels any game in progress, generates a fresh sequence and
// starts presenting it. The high score is re-read from the store first; a
// read failure keeps the cached value.
func (s *Session) StartGame(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	superseded := s.stopLoop()

	seq, err := s.gen.Generate(s.cfg.EventCount, s.cfg.AlphabetSize, s.cfg.MinMatches, s.cfg.NBack)
	if err != nil {
		s.publish(superseded...)
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	hs, hsErr := s.store.HighScore(ctx)
	if hsErr != nil {
		s.logger.Warn("Could not read high score, keeping cached value", logger.Err(hsErr))
	}

	s.mu.Lock()
	if hsErr == nil {
		s.highScore = hs
	}
	s.id = uuid.NewString()
	s.phase = PhaseRunning
	s.runType = s.gameType
	s.sequence = seq
	s.index = 0
	s.value = NoStimulus
	s.score = 0
	s.feedback = FeedbackNeutral
	s.feedbackGen++
	s.startedAt = s.clock.Now()

	id, runType := s.id, s.runType
	evs := append(superseded,
		s.newEvent(events.EventTypeSessionStarted, actorPlayer, SessionStartedPayload{
			GameType:   runType,
			NBack:      s.cfg.NBack,
			Total:      len(seq),
			IntervalMs: s.cfg.Interval.Milliseconds(),
		}),
		s.newEvent(events.EventTypeScoreChanged, actorSystem, Scores{Score: 0, HighScore: s.highScore}),
	)
	s.task = StartTask(s.baseCtx, func(ctx context.Context) {
		s.run(ctx, runType, seq)
	})
	s.unlockAndPublish(evs...)

	s.metrics.RecordSessionStarted()
	s.logger.Info("Session started",
		logger.String("session_id", id),
		logger.String("game_type", string(runType)),
		logger.Int("n_back", s.cfg.NBack))
	s.logger.Debug("Generated sequence",
		logger.String("session_id", id),
		logger.Any("sequence", seq),
		logger.Int("matches", CountMatches(seq, s.cfg.NBack)))
	return nil
}

// EndGame stops a running game immediately without touching the high score.
// It is a no-op unless a game is running.
func (s *Session) EndGame() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.publish(s.stopLoop()...)
}

// Close ends any running game and releases the session. StartGame fails
// afterwards.
func (s *Session) Close() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	evs := s.stopLoop()

	s.mu.Lock()
	s.closed = true
	if s.feedbackTimer != nil {
		s.feedbackTimer.Stop()
		s.feedbackTimer = nil
	}
	s.mu.Unlock()

	s.closeBase()
	s.publish(evs...)
}

// CheckMatch scores a match press against the stimulus N positions before
// the current one. Presses before N+1 stimuli have been shown, or outside a
// running game, are ignored.
//
// Pressing again on the same stimulus evaluates the same pair again and, on
// a true match, scores again.
func (s *Session) CheckMatch() MatchResult {
	s.mu.Lock()
	if s.phase != PhaseRunning || s.value == NoStimulus || s.index-1 < s.cfg.NBack {
		s.mu.Unlock()
		s.metrics.RecordMatch(string(MatchIgnored))
		return MatchIgnored
	}

	result := MatchRejected
	s.feedback = FeedbackMiss
	if s.value == s.sequence[s.index-1-s.cfg.NBack] {
		result = MatchConfirmed
		s.feedback = FeedbackMatch
		s.score++
	}

	s.feedbackGen++
	gen := s.feedbackGen
	if s.feedbackTimer != nil {
		s.feedbackTimer.Stop()
	}
	s.feedbackTimer = s.clock.AfterFunc(s.cfg.FeedbackDelay, func() {
		s.clearFeedback(gen)
	})

	evs := []events.GameEvent{
		s.newEvent(events.EventTypeMatchChecked, actorPlayer, MatchPayload{
			Index:    s.index,
			Result:   result,
			Feedback: s.feedback,
			Score:    s.score,
		}),
	}
	if result == MatchConfirmed {
		evs = append(evs, s.newEvent(events.EventTypeScoreChanged, actorSystem,
			Scores{Score: s.score, HighScore: s.highScore}))
	}
	s.unlockAndPublish(evs...)

	s.metrics.RecordMatch(string(result))
	return result
}

func (s *Session) clearFeedback(gen uint64) {
	s.mu.Lock()
	if s.feedbackGen != gen || s.feedback == FeedbackNeutral {
		s.mu.Unlock()
		return
	}
	s.feedback = FeedbackNeutral
	s.feedbackTimer = nil
	ev := s.newEvent(events.EventTypeFeedbackCleared, actorSystem, s.stateLocked())
	s.unlockAndPublish(ev)
}

// run is the playback loop. It publishes one stimulus per interval, then
// waits one more interval and finishes the session.
func (s *Session) run(ctx context.Context, gameType GameType, seq []int) {
	for _, value := range seq {
		start := time.Now()
		if !s.present(ctx, gameType, value) {
			return
		}
		s.metrics.RecordTick(time.Since(start))

		if err := sleep(ctx, s.clock, s.cfg.Interval); err != nil {
			return
		}
	}
	s.finish(ctx)
}

func (s *Session) present(ctx context.Context, gameType GameType, value int) bool {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.value = value
	s.index++

	payload := StimulusPayload{
		Index:  s.index,
		Value:  value,
		Letter: LetterFor(value),
		Spoken: gameType.Audible(),
	}
	if cell, ok := CellFor(value); ok && gameType.Visible() {
		payload.Cell = &cell
	}
	ev := s.newEvent(events.EventTypeStimulusShown, actorSystem, payload)
	s.unlockAndPublish(ev)

	if gameType.Audible() {
		if ss, ok := s.speaker.(SessionSpeaker); ok {
			ss.SpeakSession(ev.SessionID, payload.Letter)
		} else {
			s.speaker.Speak(payload.Letter)
		}
	}
	return true
}

func (s *Session) finish(ctx context.Context) {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseEnded
	s.storeViewLocked()
	score, prior := s.score, s.highScore
	id := s.id
	s.mu.Unlock()

	s.metrics.RecordSessionEnded(true)
	beat := score >= prior
	accepted := false
	if beat {
		// Detached from ctx so a late Stop cannot abort the write midway.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		start := time.Now()
		err := s.store.SetHighScore(wctx, score)
		cancel()
		s.metrics.RecordHighScoreWrite(time.Since(start), err)
		if err != nil {
			s.logger.Error("Failed to persist high score, keeping previous value",
				logger.String("session_id", id),
				logger.Int("score", score),
				logger.Int("high_score", prior),
				logger.Err(err))
		} else {
			accepted = true
		}
	}

	s.mu.Lock()
	changed := accepted && s.highScore != score
	if accepted {
		s.highScore = score
	}
	evs := []events.GameEvent{s.newEvent(events.EventTypeSessionEnded, actorSystem, s.summaryLocked(true))}
	if changed {
		evs = append(evs, s.newEvent(events.EventTypeHighScore, actorSystem,
			Scores{Score: score, HighScore: score}))
	}
	s.unlockAndPublish(evs...)

	s.logger.Info("Session completed",
		logger.String("session_id", id),
		logger.Int("score", score),
		logger.Bool("new_high_score", changed))
}

// stopLoop cancels the running loop, waits for it, and moves a running game
// to Ended. It returns the events to publish. Caller holds s.lifecycle.
func (s *Session) stopLoop() []events.GameEvent {
	s.mu.Lock()
	task := s.task
	s.task = nil
	s.mu.Unlock()

	if task != nil {
		task.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRunning {
		return nil
	}
	s.phase = PhaseEnded
	s.storeViewLocked()
	s.metrics.RecordSessionEnded(false)
	s.logger.Info("Session ended early",
		logger.String("session_id", s.id),
		logger.Int("score", s.score),
		logger.Int("shown", s.index))
	return []events.GameEvent{s.newEvent(events.EventTypeSessionEnded, actorPlayer, s.summaryLocked(false))}
}

func (s *Session) stateLocked() State {
	gameType := s.gameType
	if s.phase == PhaseRunning {
		gameType = s.runType
	}
	return State{
		SessionID: s.id,
		Phase:     s.phase,
		GameType:  gameType,
		NBack:     s.cfg.NBack,
		Value:     s.value,
		Index:     s.index,
		Total:     len(s.sequence),
		Feedback:  s.feedback,
	}
}

func (s *Session) summaryLocked(completed bool) Summary {
	return Summary{
		SessionID: s.id,
		GameType:  s.runType,
		NBack:     s.cfg.NBack,
		Shown:     s.index,
		Total:     len(s.sequence),
		Score:     s.score,
		HighScore: s.highScore,
		Completed: completed,
		StartedAt: s.startedAt,
		EndedAt:   s.clock.Now(),
	}
}

func (s *Session) newEvent(t events.EventType, actor string, payload interface{}) events.GameEvent {
	return events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: s.clock.Now(),
		Type:      t,
		SessionID: s.id,
		ActorID:   actor,
		Payload:   payload,
	}
}

// storeViewLocked republishes the state read by State and Scores. Caller
// holds s.mu.
func (s *Session) storeViewLocked() {
	s.view.Store(&sessionView{
		state:  s.stateLocked(),
		scores: Scores{Score: s.score, HighScore: s.highScore},
	})
}

// unlockAndPublish releases s.mu and appends evs in order. Taking pubMu
// before releasing s.mu keeps publication order equal to mutation order;
// handlers run under pubMu, so nothing they call may take s.mu.
func (s *Session) unlockAndPublish(evs ...events.GameEvent) {
	s.storeViewLocked()
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	for _, e := range evs {
		s.eventLog.Append(e)
	}
}

func (s *Session) publish(evs ...events.GameEvent) {
	if len(evs) == 0 {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	for _, e := range evs {
		s.eventLog.Append(e)
	}
}
