package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/MRamiBalles/NBackTrainer/server/internal/events"
	"github.com/MRamiBalles/NBackTrainer/server/internal/nback"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
)

// repositoryContract runs the same behaviour against every backend.
func repositoryContract(open func() *Repositories) {
	var (
		ctx   context.Context
		repos *Repositories
	)

	BeforeEach(func() {
		ctx = context.Background()
		repos = open()
		DeferCleanup(func() {
			Expect(repos.Close()).To(Succeed())
		})
	})

	It("should report zero before any high score is written", func() {
		Expect(repos.HighScores.HighScore(ctx)).To(Equal(0))
	})

	It("should overwrite and reset the high score", func() {
		Expect(repos.HighScores.SetHighScore(ctx, 4)).To(Succeed())
		Expect(repos.HighScores.SetHighScore(ctx, 6)).To(Succeed())
		Expect(repos.HighScores.HighScore(ctx)).To(Equal(6))

		Expect(repos.HighScores.Reset(ctx)).To(Succeed())
		Expect(repos.HighScores.HighScore(ctx)).To(Equal(0))
	})

	It("should list recent sessions newest first", func() {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"a", "b", "c"} {
			Expect(repos.Sessions.Record(ctx, SessionRecord{
				SessionID: id,
				GameType:  "Visual",
				NBack:     2,
				Shown:     10,
				Total:     10,
				Score:     i,
				Completed: true,
				StartedAt: base.Add(time.Duration(i) * time.Minute),
				EndedAt:   base.Add(time.Duration(i)*time.Minute + 20*time.Second),
			})).To(Succeed())
		}

		recent, err := repos.Sessions.Recent(ctx, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(recent).To(HaveLen(2))
		Expect(recent[0].SessionID).To(Equal("c"))
		Expect(recent[1].SessionID).To(Equal("b"))
		Expect(recent[0].Completed).To(BeTrue())
		Expect(recent[0].EndedAt.Equal(base.Add(2*time.Minute + 20*time.Second))).To(BeTrue())
	})

	It("should replace a session recorded twice", func() {
		rec := SessionRecord{SessionID: "s", Score: 1, EndedAt: time.Now()}
		Expect(repos.Sessions.Record(ctx, rec)).To(Succeed())
		rec.Score = 3
		Expect(repos.Sessions.Record(ctx, rec)).To(Succeed())

		recent, err := repos.Sessions.Recent(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(recent).To(HaveLen(1))
		Expect(recent[0].Score).To(Equal(3))
	})

	It("should replay the events of one session in time order", func() {
		t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		Expect(repos.Events.Append(ctx, EventRecord{
			ID: "2", SessionID: "s1", Timestamp: t0.Add(time.Second),
			EventType: "STIMULUS_SHOWN", ActorID: "SYSTEM", Payload: json.RawMessage(`{"index":1}`),
		})).To(Succeed())
		Expect(repos.Events.Append(ctx, EventRecord{
			ID: "1", SessionID: "s1", Timestamp: t0,
			EventType: "SESSION_STARTED", ActorID: "PLAYER", Payload: json.RawMessage(`{}`),
		})).To(Succeed())
		Expect(repos.Events.Append(ctx, EventRecord{
			ID: "3", SessionID: "other", Timestamp: t0, EventType: "SESSION_STARTED", ActorID: "PLAYER",
		})).To(Succeed())

		got, err := repos.Events.GetBySession(ctx, "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].ID).To(Equal("1"))
		Expect(got[1].ID).To(Equal("2"))
		Expect(got[1].Payload).To(MatchJSON(`{"index":1}`))
	})
}

var _ = Describe("SQLite repositories", func() {
	repositoryContract(func() *Repositories {
		path := filepath.Join(GinkgoT().TempDir(), "data", "nback.db")
		repos, err := Open(DriverSQLite, path, 1)
		Expect(err).NotTo(HaveOccurred())
		return repos
	})

	It("should keep the high score across reopen", func() {
		path := filepath.Join(GinkgoT().TempDir(), "nback.db")
		repos, err := Open(DriverSQLite, path, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(repos.HighScores.SetHighScore(context.Background(), 8)).To(Succeed())
		Expect(repos.Close()).To(Succeed())

		repos, err = Open(DriverSQLite, path, 1)
		Expect(err).NotTo(HaveOccurred())
		defer repos.Close()
		Expect(repos.HighScores.HighScore(context.Background())).To(Equal(8))
	})
})

var _ = Describe("Memory repositories", func() {
	repositoryContract(func() *Repositories {
		repos, err := Open(DriverMemory, "", 0)
		Expect(err).NotTo(HaveOccurred())
		return repos
	})
})

var _ = Describe("Open", func() {
	It("should reject unknown drivers", func() {
		_, err := Open("postgres", "x", 1)
		Expect(err).To(MatchError(ErrUnknownDriver))
	})
})

var _ = Describe("Persister", func() {
	It("should store session events and skip the rest", func() {
		store := NewMemoryEventStore()
		p := NewPersister(store)

		Expect(p.Append(events.GameEvent{
			ID: "e1", SessionID: "s1", Timestamp: time.Now(), Type: events.EventTypeScoreChanged,
			ActorID: "SYSTEM", Payload: nback.Scores{Score: 2, HighScore: 5},
		})).To(Succeed())
		Expect(p.Append(events.GameEvent{ID: "e2", Type: events.EventTypeSpeech})).To(Succeed())

		got, err := store.GetBySession(context.Background(), "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].EventType).To(Equal("SCORE_CHANGED"))
		Expect(got[0].Payload).To(MatchJSON(`{"score":2,"high_score":5}`))

		Expect(store.GetBySession(context.Background(), "")).To(BeEmpty())
	})
})

var _ = Describe("SessionRecorder", func() {
	It("should record every ended session", func() {
		store := NewMemorySessionStore()
		rec := NewSessionRecorder(store, logger.NewNop())
		el := events.NewEventLog(nil)
		unsubscribe := rec.Attach(el)
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- rec.Run(ctx) }()

		el.Append(events.GameEvent{Type: events.EventTypeScoreChanged, Payload: nback.Scores{}})
		el.Append(events.GameEvent{
			Type:      events.EventTypeSessionEnded,
			SessionID: "s1",
			Payload: nback.Summary{
				SessionID: "s1", GameType: nback.GameTypeAudio, NBack: 2,
				Shown: 10, Total: 10, Score: 4, HighScore: 4, Completed: true,
				EndedAt: time.Now(),
			},
		})

		Eventually(func() ([]SessionRecord, error) {
			return store.Recent(context.Background(), 10)
		}).Should(HaveLen(1))

		cancel()
		Expect(<-done).To(Succeed())

		recent, _ := store.Recent(context.Background(), 10)
		Expect(recent[0].GameType).To(Equal("Audio"))
		Expect(recent[0].Score).To(Equal(4))
	})
})
