// Package profile hosts the condition-extraction side channel that grows user
// profiles from what they say.
package profile

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	profilemodel "github.com/assessli/carebot/backend/internal/model/profile"
	"github.com/assessli/carebot/backend/internal/observability"
)

// ConditionExtractor enumerates symptom phrases in free text.
type ConditionExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// ConditionLogger appends extracted conditions to a user's profile outside the
// request path. Failures are logged and never reported to the caller.
type ConditionLogger struct {
	store     profilemodel.Store
	extractor ConditionExtractor
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger

	wg sync.WaitGroup
}

// NewConditionLogger wires the side channel. timeout bounds one extraction run.
func NewConditionLogger(store profilemodel.Store, extractor ConditionExtractor, timeout time.Duration) *ConditionLogger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ConditionLogger{
		store:     store,
		extractor: extractor,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
		log:       observability.Component("profile"),
	}
}

// Submit starts extraction in the background and returns immediately. The
// run keeps ctx's values but not its cancellation.
func (l *ConditionLogger) Submit(ctx context.Context, userID, transcript string) {
	if l == nil || l.extractor == nil || strings.TrimSpace(transcript) == "" {
		return
	}

	detached := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.log.Error("condition extraction panicked", "user_id", userID, "panic", r)
			}
		}()

		runCtx, cancel := context.WithTimeout(detached, l.timeout)
		defer cancel()

		added, err := l.Log(runCtx, userID, transcript)
		if err != nil {
			observability.LoggerFromContext(runCtx).Warn("condition extraction failed",
				"component", "profile", "user_id", userID, "error", err)
			return
		}
		if added > 0 {
			l.log.Info("conditions logged", "user_id", userID, "count", added)
		}
	}()
}

// Log extracts and appends conditions synchronously, returning how many were
// appended. Unknown users are skipped before any model call.
func (l *ConditionLogger) Log(ctx context.Context, userID, transcript string) (int, error) {
	_, ok, err := l.store.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	conditions, err := l.extractor.Extract(ctx, transcript)
	if err != nil {
		return 0, err
	}

	for i, condition := range conditions {
		if err := l.store.AppendCondition(ctx, userID, condition, l.now()); err != nil {
			return i, err
		}
	}
	return len(conditions), nil
}

// Wait blocks until every submitted extraction has finished.
func (l *ConditionLogger) Wait() {
	l.wg.Wait()
}
