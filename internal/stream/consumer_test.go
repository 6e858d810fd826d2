package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RishiKendai/overlap/internal/ingest"
	"github.com/RishiKendai/overlap/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeadLetters struct {
	mu      sync.Mutex
	entries []string
	err     error
}

func (f *fakeDeadLetters) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	for _, v := range values {
		f.entries = append(f.entries, v.(string))
	}
	cmd.SetVal(int64(len(f.entries)))
	return cmd
}

func (f *fakeDeadLetters) decoded(t *testing.T) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(f.entries))
	for _, raw := range f.entries {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &entry))
		out = append(out, entry)
	}
	return out
}

// fakeStream serves queued batches to XReadGroup and pages to XAutoClaim
type fakeStream struct {
	mu           sync.Mutex
	batches      [][]redis.XMessage
	claimPages   [][]redis.XMessage
	claimStarts  []string
	acked        []string
	trimmedMinID []string
}

func (f *fakeStream) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(errors.New("BUSYGROUP Consumer Group name already exists"))
	return cmd
}

func (f *fakeStream) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)

	f.mu.Lock()
	if len(f.batches) == 0 {
		f.mu.Unlock()
		select {
		case <-ctx.Done():
		case <-time.After(a.Block):
		}
		cmd.SetErr(redis.Nil)
		return cmd
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	f.mu.Unlock()

	cmd.SetVal([]redis.XStream{{Stream: a.Streams[0], Messages: batch}})
	return cmd
}

func (f *fakeStream) XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.claimStarts = append(f.claimStarts, a.Start)
	cmd := redis.NewXAutoClaimCmd(ctx)
	if len(f.claimPages) == 0 {
		cmd.SetVal(nil, "0-0")
		return cmd
	}

	page := f.claimPages[0]
	f.claimPages = f.claimPages[1:]
	next := "0-0"
	if len(f.claimPages) > 0 {
		next = page[len(page)-1].ID
	}
	cmd.SetVal(page, next)
	return cmd
}

func (f *fakeStream) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.acked = append(f.acked, ids...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeStream) XTrimMinID(ctx context.Context, key string, minID string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trimmedMinID = append(f.trimmedMinID, minID)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(0)
	return cmd
}

func (f *fakeStream) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

type processorFunc func(ctx context.Context, submission *models.Submission) error

func (f processorFunc) ProcessSubmission(ctx context.Context, submission *models.Submission) error {
	return f(ctx, submission)
}

type recordingProcessor struct {
	mu    sync.Mutex
	files []string
}

func (r *recordingProcessor) ProcessSubmission(ctx context.Context, submission *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, submission.CorpusID+"/"+submission.File)
	return nil
}

type fakeTrigger struct {
	calls []string
	errs  []error
}

func (f *fakeTrigger) TriggerRun(ctx context.Context, corpusID string) error {
	f.calls = append(f.calls, corpusID)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func submissionMessage(id, corpusID, file string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]interface{}{
		"corpusId":     corpusID,
		"repository":   "r1",
		"revision":     testRevision,
		"file":         file,
		"fingerprints": `[{"hash":1,"line":1}]`,
	}}
}

type testClock struct {
	at time.Time
}

func (c *testClock) now() time.Time { return c.at }

func (c *testClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestConsumer(client StreamClient, processor SubmissionProcessor, dlq *fakeDeadLetters) (*Consumer, *testClock) {
	retry := NewRetryHandler(dlq, "dlq", 0)
	retry.baseDelay = time.Millisecond

	clock := &testClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewConsumer(client, "overlap:stream", "overlap:group", "consumer-1", processor, retry, 24*time.Hour)
	c.block = 5 * time.Millisecond
	c.now = clock.now
	c.lastClaim = clock.at
	c.lastTrim = clock.at
	return c, clock
}

func TestConsumer_ReadBatch(t *testing.T) {
	client := &fakeStream{batches: [][]redis.XMessage{{
		submissionMessage("1-0", "c1", "a.go"),
		{ID: "2-0", Values: map[string]interface{}{"corpusId": "c1"}},
		submissionMessage("3-0", "c2", "b.go"),
	}}}
	processor := &recordingProcessor{}
	dlq := &fakeDeadLetters{}
	c, _ := newTestConsumer(client, processor, dlq)

	require.NoError(t, c.readBatch(context.Background()))

	assert.Equal(t, []string{"c1/a.go", "c2/b.go"}, processor.files)
	assert.Equal(t, []string{"1-0", "2-0", "3-0"}, client.ackedIDs())

	entries := dlq.decoded(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "2-0", entries[0]["message_id"])
	assert.Equal(t, true, entries[0]["permanent"])
}

func TestConsumer_PermanentFailureIsParkedOnce(t *testing.T) {
	calls := 0
	processor := processorFunc(func(ctx context.Context, submission *models.Submission) error {
		calls++
		return fmt.Errorf("failed: %w", &ingest.PermanentError{Err: ingest.ErrNoFingerprinter})
	})
	client := &fakeStream{}
	dlq := &fakeDeadLetters{}
	c, _ := newTestConsumer(client, processor, dlq)
	c.retryHandler.maxRetries = 5

	err := c.handle(context.Background(), submissionMessage("4-0", "c1", "a.go"))

	assert.ErrorIs(t, err, ErrDeadLettered)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"4-0"}, client.ackedIDs())
	assert.Len(t, dlq.decoded(t), 1)
}

func TestConsumer_UnparkedFailureStaysPending(t *testing.T) {
	processor := processorFunc(func(ctx context.Context, submission *models.Submission) error {
		return errors.New("store down")
	})
	client := &fakeStream{}
	dlq := &fakeDeadLetters{err: errors.New("redis down")}
	c, _ := newTestConsumer(client, processor, dlq)

	err := c.handle(context.Background(), submissionMessage("5-0", "c1", "a.go"))

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDeadLettered))
	assert.Empty(t, client.ackedIDs())
}

func TestConsumer_ClaimStalePages(t *testing.T) {
	client := &fakeStream{claimPages: [][]redis.XMessage{
		{submissionMessage("1-0", "c1", "a.go"), submissionMessage("2-0", "c1", "b.go")},
		{submissionMessage("3-0", "c1", "c.go")},
	}}
	processor := &recordingProcessor{}
	c, _ := newTestConsumer(client, processor, &fakeDeadLetters{})

	require.NoError(t, c.claimStale(context.Background()))

	assert.Equal(t, []string{"0-0", "2-0"}, client.claimStarts)
	assert.Equal(t, []string{"1-0", "2-0", "3-0"}, client.ackedIDs())
	assert.Len(t, processor.files, 3)
}

func TestConsumer_MaintainTrimsAndClaimsOnSchedule(t *testing.T) {
	client := &fakeStream{}
	c, clock := newTestConsumer(client, &recordingProcessor{}, &fakeDeadLetters{})

	c.maintain(context.Background())
	assert.Empty(t, client.claimStarts)
	assert.Empty(t, client.trimmedMinID)

	clock.advance(30 * time.Second)
	c.maintain(context.Background())
	assert.Len(t, client.claimStarts, 1)
	assert.Empty(t, client.trimmedMinID)

	clock.advance(time.Hour)
	c.maintain(context.Background())
	assert.Len(t, client.claimStarts, 2)

	cutoff := clock.at.Add(-24 * time.Hour)
	assert.Equal(t, []string{fmt.Sprintf("%d-0", cutoff.UnixMilli())}, client.trimmedMinID)
}

func TestConsumer_TriggersRunOnceCorpusSettles(t *testing.T) {
	client := &fakeStream{}
	trigger := &fakeTrigger{}
	c, clock := newTestConsumer(client, &recordingProcessor{}, &fakeDeadLetters{})
	c.WithRunTrigger(trigger, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.handle(ctx, submissionMessage("1-0", "c1", "a.go")))
	clock.advance(40 * time.Second)
	c.maintain(ctx)
	assert.Empty(t, trigger.calls)

	// a late file pushes the run back
	require.NoError(t, c.handle(ctx, submissionMessage("2-0", "c1", "b.go")))
	clock.advance(40 * time.Second)
	c.maintain(ctx)
	assert.Empty(t, trigger.calls)

	clock.advance(20 * time.Second)
	c.maintain(ctx)
	assert.Equal(t, []string{"c1"}, trigger.calls)

	clock.advance(time.Hour)
	c.maintain(ctx)
	assert.Equal(t, []string{"c1"}, trigger.calls)
}

func TestConsumer_TriggerFailures(t *testing.T) {
	client := &fakeStream{}
	trigger := &fakeTrigger{errs: []error{
		errors.New("all run slots are busy"),
		nil,
		&ingest.PermanentError{Err: errors.New("corpus gone")},
	}}
	c, clock := newTestConsumer(client, &recordingProcessor{}, &fakeDeadLetters{})
	c.WithRunTrigger(trigger, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.handle(ctx, submissionMessage("1-0", "c1", "a.go")))
	clock.advance(time.Minute)
	c.maintain(ctx)
	assert.Equal(t, []string{"c1"}, trigger.calls)
	assert.Equal(t, 1, c.tracker.size())

	clock.advance(time.Minute)
	c.maintain(ctx)
	assert.Equal(t, []string{"c1", "c1"}, trigger.calls)
	assert.Zero(t, c.tracker.size())

	require.NoError(t, c.handle(ctx, submissionMessage("2-0", "c2", "b.go")))
	clock.advance(time.Minute)
	c.maintain(ctx)
	assert.Equal(t, []string{"c1", "c1", "c2"}, trigger.calls)
	assert.Zero(t, c.tracker.size())
}

func TestConsumer_DeadLetteredSubmissionsDoNotTrigger(t *testing.T) {
	processor := processorFunc(func(ctx context.Context, submission *models.Submission) error {
		return &ingest.PermanentError{Err: ingest.ErrNoFingerprinter}
	})
	trigger := &fakeTrigger{}
	c, clock := newTestConsumer(&fakeStream{}, processor, &fakeDeadLetters{})
	c.WithRunTrigger(trigger, time.Minute)

	_ = c.handle(context.Background(), submissionMessage("1-0", "c1", "a.go"))
	clock.advance(time.Hour)
	c.maintain(context.Background())

	assert.Empty(t, trigger.calls)
}

func TestConsumer_WithRunTriggerDisabled(t *testing.T) {
	c, _ := newTestConsumer(&fakeStream{}, &recordingProcessor{}, &fakeDeadLetters{})

	c.WithRunTrigger(&fakeTrigger{}, 0)
	assert.Nil(t, c.tracker)

	c.WithRunTrigger(nil, time.Minute)
	assert.Nil(t, c.tracker)
}

func TestConsumer_StartStopsOnCancel(t *testing.T) {
	client := &fakeStream{batches: [][]redis.XMessage{{submissionMessage("1-0", "c1", "a.go")}}}
	c, _ := newTestConsumer(client, &recordingProcessor{}, &fakeDeadLetters{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return len(client.ackedIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestIngestTracker_DueOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := newIngestTracker(time.Minute)

	tracker.record("late", base.Add(10*time.Second))
	tracker.record("early", base)
	tracker.record("busy", base)
	tracker.record("busy", base.Add(50*time.Second))

	assert.Equal(t, []string{"early", "late"}, tracker.due(base.Add(70*time.Second)))
	assert.Equal(t, 1, tracker.size())
	assert.Equal(t, 2, tracker.pending["busy"].files)

	assert.Equal(t, []string{"busy"}, tracker.due(base.Add(2*time.Minute)))
	assert.Zero(t, tracker.size())
}
