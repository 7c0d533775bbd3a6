// Package quest runs a timed, strictly sequential quiz over a question bank
// and keeps a short history of completed attempts in key-value storage.
package quest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playperu/campustour/internal/kv"
)

// Storage keys. Both values are JSON.
const (
	ProgressKey = "questProgress"
	HistoryKey  = "questHistory"
)

var (
	ErrNotInProgress = errors.New("quest not in progress")
	ErrEmptyBank     = errors.New("quest bank is empty")
)

type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Completed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not started"
	case InProgress:
		return "in progress"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Progress is the persisted in-progress attempt.
type Progress struct {
	Index     int      `json:"index"`
	Answers   []string `json:"ans"`
	Elapsed   int      `json:"t"`
	Completed bool     `json:"comp"`
}

// HistoryEntry records one completed attempt. Time is in seconds.
type HistoryEntry struct {
	Time    int       `json:"time"`
	Correct int       `json:"correct"`
	Total   int       `json:"total"`
	Date    time.Time `json:"date"`
}

type Options struct {
	TickInterval time.Duration
	HistoryLimit int
	Now          func() time.Time
}

func (o *Options) setDefaults() {
	if o.TickInterval == 0 {
		o.TickInterval = time.Second
	}
	if o.HistoryLimit == 0 {
		o.HistoryLimit = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Status is a snapshot of the engine.
type Status struct {
	Phase   Phase
	Index   int
	Answers []string
	Elapsed int
	// Current is the question being asked while in progress.
	Current *Entry
}

type Engine struct {
	bank   Bank
	store  kv.Store
	logger *slog.Logger
	opts   Options
	wg     sync.WaitGroup

	mu      sync.Mutex
	phase   Phase
	index   int
	answers []string
	elapsed int
	history []HistoryEntry
	result  *HistoryEntry
	stop    chan struct{}
}

// New builds an engine and restores history and any unfinished attempt from
// store. Unreadable stored values are logged and ignored.
func New(ctx context.Context, bank Bank, store kv.Store, logger *slog.Logger, opts Options) (*Engine, error) {
	opts.setDefaults()
	e := &Engine{bank: bank, store: store, logger: logger, opts: opts}

	if raw, err := store.Get(ctx, HistoryKey); err == nil {
		if err := json.Unmarshal([]byte(raw), &e.history); err != nil {
			logger.Warn("discarding unreadable quest history", "error", err)
			e.history = nil
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("loading quest history: %w", err)
	}

	raw, err := store.Get(ctx, ProgressKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return e, nil
	case err != nil:
		return nil, fmt.Errorf("loading quest progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logger.Warn("discarding unreadable quest progress", "error", err)
		return e, nil
	}
	if p.Completed || p.Index < 0 || p.Index >= len(bank) {
		return e, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = InProgress
	e.index = p.Index
	e.answers = append([]string{}, p.Answers...)
	e.elapsed = p.Elapsed
	e.startTicker()
	logger.Info("resumed quest", "index", p.Index, "elapsed", p.Elapsed)
	return e, nil
}

// Start begins a fresh attempt at the first question.
func (e *Engine) Start(ctx context.Context) error {
	if len(e.bank) == 0 {
		return ErrEmptyBank
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = InProgress
	e.index = 0
	e.answers = []string{}
	e.elapsed = 0
	e.result = nil
	e.startTicker()
	return e.saveProgress(ctx)
}

// Submit records value as the answer to the current question and advances.
// Answers are only scored once the last question is answered.
func (e *Engine) Submit(ctx context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != InProgress {
		return ErrNotInProgress
	}
	e.answers = append(e.answers, value)
	if e.index >= len(e.bank)-1 {
		return e.complete(ctx)
	}
	e.index++
	return e.saveProgress(ctx)
}

// Acknowledge continues past a question without options.
func (e *Engine) Acknowledge(ctx context.Context) error {
	return e.Submit(ctx, "")
}

// Reset abandons the attempt. Nothing is added to the history.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTicker()
	e.phase = NotStarted
	e.index = 0
	e.answers = nil
	e.elapsed = 0
	e.result = nil
	if err := e.store.Delete(ctx, ProgressKey); err != nil {
		return fmt.Errorf("clearing quest progress: %w", err)
	}
	return nil
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		Phase:   e.phase,
		Index:   e.index,
		Answers: append([]string{}, e.answers...),
		Elapsed: e.elapsed,
	}
	if e.phase == InProgress {
		q := e.bank[e.index]
		s.Current = &q
	}
	return s
}

// History returns completed attempts, oldest first.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry{}, e.history...)
}

// Result returns the entry recorded by the last completion.
func (e *Engine) Result() (HistoryEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return HistoryEntry{}, false
	}
	return *e.result, true
}

// Close stops the timer and waits for it to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.stopTicker()
	e.mu.Unlock()
	e.wg.Wait()
}

// complete must be called with e.mu held.
func (e *Engine) complete(ctx context.Context) error {
	e.stopTicker()
	e.phase = Completed

	correct := 0
	for i, a := range e.answers {
		if i < len(e.bank) && a == e.bank[i].Answer {
			correct++
		}
	}
	entry := HistoryEntry{
		Time:    e.elapsed,
		Correct: correct,
		// One less than the number of questions; kept as clients display it.
		Total: len(e.bank) - 1,
		Date:  e.opts.Now().UTC(),
	}
	e.result = &entry
	e.history = append(e.history, entry)
	if over := len(e.history) - e.opts.HistoryLimit; over > 0 {
		e.history = append([]HistoryEntry{}, e.history[over:]...)
	}

	data, err := json.Marshal(e.history)
	if err != nil {
		return fmt.Errorf("encoding quest history: %w", err)
	}
	if err := e.store.Set(ctx, HistoryKey, string(data)); err != nil {
		return fmt.Errorf("saving quest history: %w", err)
	}
	if err := e.store.Delete(ctx, ProgressKey); err != nil {
		return fmt.Errorf("clearing quest progress: %w", err)
	}
	e.logger.Info("quest completed", "correct", correct, "total", entry.Total, "seconds", entry.Time)
	return nil
}

// saveProgress must be called with e.mu held.
func (e *Engine) saveProgress(ctx context.Context) error {
	data, err := json.Marshal(Progress{Index: e.index, Answers: e.answers, Elapsed: e.elapsed})
	if err != nil {
		return fmt.Errorf("encoding quest progress: %w", err)
	}
	if err := e.store.Set(ctx, ProgressKey, string(data)); err != nil {
		return fmt.Errorf("saving quest progress: %w", err)
	}
	return nil
}

// startTicker must be called with e.mu held.
func (e *Engine) startTicker() {
	e.stopTicker()
	stop := make(chan struct{})
	e.stop = stop
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		t := time.NewTicker(e.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				e.tick(stop)
			}
		}
	}()
}

// stopTicker must be called with e.mu held.
func (e *Engine) stopTicker() {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

func (e *Engine) tick(stop chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != stop || e.phase != InProgress {
		return
	}
	e.elapsed++
	if err := e.saveProgress(context.Background()); err != nil {
		e.logger.Warn("persisting quest timer", "error", err)
	}
}

// FormatElapsed renders seconds as m:ss.
func FormatElapsed(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
