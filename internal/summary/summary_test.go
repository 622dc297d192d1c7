package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/stretchr/testify/require"
)

type fakeEventCounts struct {
	counts map[string]int64
	err    error
}

func (f *fakeEventCounts) SaveEventRecord(_ context.Context, _ *storage.EventRecord) error {
	return nil
}

func (f *fakeEventCounts) CountEventsSince(_ context.Context, _ time.Time) (map[string]int64, error) {
	return f.counts, f.err
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) SendMessage(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return f.err
}

func TestRate(t *testing.T) {
	counts := map[string]int64{
		"resend/email.sent":   200,
		"resend/email.opened": 67,
	}

	rate, ok := Rate(counts, "resend/email.opened", "resend/email.sent")
	require.True(t, ok)
	require.Equal(t, "33.5", rate.StringFixed(1))

	_, ok = Rate(counts, "resend/email.opened", "resend/email.delivered")
	require.False(t, ok, "missing denominator must not divide")

	_, ok = Rate(map[string]int64{"a": 0}, "b", "a")
	require.False(t, ok, "zero denominator must not divide")
}

func TestReporter_RunSendsDigest(t *testing.T) {
	notifier := &fakeNotifier{}
	r := NewReporter(&fakeEventCounts{counts: map[string]int64{
		"web/page.viewed":          100,
		"web/post.liked":           7,
		"resend/email.sent":        40,
		"resend/email.opened":      10,
		"ghost/subscriber.created": 2,
	}}, notifier, nil)

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, notifier.sent, 1)

	text := notifier.sent[0]
	require.Contains(t, text, "Total events: 159")
	require.Contains(t, text, "ghost/subscriber.created: 2")
	require.Contains(t, text, "Open rate: 25.0%")
	require.Contains(t, text, "Like rate: 7.0%")
}

func TestReporter_AggregationFailurePropagates(t *testing.T) {
	notifier := &fakeNotifier{}
	r := NewReporter(&fakeEventCounts{err: errors.New("db down")}, notifier, nil)

	require.Error(t, r.Run(context.Background()))
	require.Empty(t, notifier.sent)
}

func TestReporter_DeliveryFailureIsBestEffort(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("telegram down")}
	r := NewReporter(&fakeEventCounts{counts: map[string]int64{"web/page.viewed": 1}}, notifier, nil)

	require.NoError(t, r.Run(context.Background()))
}

func TestReporter_EscapesRenderedText(t *testing.T) {
	notifier := &fakeNotifier{}
	r := NewReporter(&fakeEventCounts{counts: map[string]int64{"web/page.viewed": 3}}, notifier,
		func(s string) string { return "<" + s + ">" })

	require.NoError(t, r.Run(context.Background()))
	require.Contains(t, notifier.sent[0], "<Total events: 3>")
}
