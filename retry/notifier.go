package retry

import (
	"sync"
	"time"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
)

// Notifier rate-limits user-facing "retrying..." notices so a flapping
// backend does not spam the caller. At most one notice per error class is
// emitted within a rolling window; the per-class counter decays once the
// window passes.
type Notifier struct {
	mu     sync.Mutex
	window time.Duration
	emit   func(attempt int, n apierrors.Normalized)
	seen   map[apierrors.Class]time.Time
	now    func() time.Time
}

// NewNotifier creates a notifier that forwards at most one notice per error
// class per window to emit.
func NewNotifier(window time.Duration, emit func(attempt int, n apierrors.Normalized)) *Notifier {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Notifier{
		window: window,
		emit:   emit,
		seen:   make(map[apierrors.Class]time.Time),
		now:    time.Now,
	}
}

// OnRetry is shaped to plug into WithOnRetry.
func (n *Notifier) OnRetry(attempt int, err error) {
	if n.emit == nil {
		return
	}

	class := apierrors.ClassOf(err)

	n.mu.Lock()
	last, ok := n.seen[class]
	suppressed := ok && n.now().Sub(last) < n.window
	if !suppressed {
		n.seen[class] = n.now()
	}
	n.mu.Unlock()

	if suppressed {
		return
	}
	n.emit(attempt, apierrors.Normalize(err))
}
