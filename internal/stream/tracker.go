package stream

import (
	"sort"
	"time"
)

type corpusActivity struct {
	files      int
	firstSeen  time.Time
	lastIngest time.Time
}

// ingestTracker debounces run triggers: a corpus becomes due once no
// submission for it arrived during the settle window.
type ingestTracker struct {
	settle  time.Duration
	pending map[string]*corpusActivity
}

func newIngestTracker(settle time.Duration) *ingestTracker {
	return &ingestTracker{
		settle:  settle,
		pending: make(map[string]*corpusActivity),
	}
}

func (t *ingestTracker) record(corpusID string, at time.Time) {
	activity, ok := t.pending[corpusID]
	if !ok {
		activity = &corpusActivity{firstSeen: at}
		t.pending[corpusID] = activity
	}
	activity.files++
	activity.lastIngest = at
}

// due removes and returns the settled corpora, oldest activity first
func (t *ingestTracker) due(now time.Time) []string {
	var ready []string
	for corpusID, activity := range t.pending {
		if now.Sub(activity.lastIngest) >= t.settle {
			ready = append(ready, corpusID)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := t.pending[ready[i]], t.pending[ready[j]]
		if !a.firstSeen.Equal(b.firstSeen) {
			return a.firstSeen.Before(b.firstSeen)
		}
		return ready[i] < ready[j]
	})

	for _, corpusID := range ready {
		delete(t.pending, corpusID)
	}
	return ready
}

// retry puts a corpus back so it becomes due again one settle window after now
func (t *ingestTracker) retry(corpusID string, now time.Time) {
	if _, ok := t.pending[corpusID]; ok {
		return
	}
	t.pending[corpusID] = &corpusActivity{firstSeen: now, lastIngest: now}
}

func (t *ingestTracker) size() int {
	return len(t.pending)
}
