// Package summary produces the daily activity digest: event counts by
// source and type over the last 24 hours plus engagement rates, delivered to
// the operator channel.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/beacon-lab/project-beacon/internal/notify"
	"github.com/shopspring/decimal"
)

// Notifier delivers the digest. Implemented by telegram.Client.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

// Escaper escapes digest text for the delivery channel's markup.
type Escaper func(string) string

// Reporter builds and sends daily summaries.
type Reporter struct {
	events   storage.EventRecordStore
	notifier Notifier
	escape   Escaper
	window   time.Duration
}

// NewReporter creates a reporter over a 24h window.
func NewReporter(events storage.EventRecordStore, notifier Notifier, escape Escaper) *Reporter {
	if escape == nil {
		escape = func(s string) string { return s }
	}
	return &Reporter{
		events:   events,
		notifier: notifier,
		escape:   escape,
		window:   24 * time.Hour,
	}
}

// Run aggregates the window and sends the digest. Counting failures
// propagate for retry; delivery is best-effort.
func (r *Reporter) Run(ctx context.Context) error {
	since := time.Now().UTC().Add(-r.window)
	counts, err := r.events.CountEventsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to aggregate daily summary: %w", err)
	}

	text := r.render(counts, since)
	notify.BestEffort(ctx, "daily-summary", func(ctx context.Context) error {
		return r.notifier.SendMessage(ctx, text)
	})
	return nil
}

// render formats the digest. Counts are keyed "source/type".
func (r *Reporter) render(counts map[string]int64, since time.Time) string {
	keys := make([]string, 0, len(counts))
	var total int64
	for k, n := range counts {
		keys = append(keys, k)
		total += n
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("*" + r.escape(fmt.Sprintf("Daily summary since %s", since.Format("2006-01-02 15:04"))) + "*\n")
	b.WriteString(r.escape(fmt.Sprintf("Total events: %d", total)))
	for _, k := range keys {
		b.WriteString("\n" + r.escape(fmt.Sprintf("%s: %d", k, counts[k])))
	}

	if rate, ok := Rate(counts, "resend/email.opened", "resend/email.sent"); ok {
		b.WriteString("\n" + r.escape("Open rate: "+rate.StringFixed(1)+"%"))
	}
	if rate, ok := Rate(counts, "web/post.liked", "web/page.viewed"); ok {
		b.WriteString("\n" + r.escape("Like rate: "+rate.StringFixed(1)+"%"))
	}
	return b.String()
}

// Rate computes numerator/denominator as a percentage with decimal
// arithmetic. Reports ok=false when the denominator is missing or zero.
func Rate(counts map[string]int64, numeratorKey, denominatorKey string) (decimal.Decimal, bool) {
	den := counts[denominatorKey]
	if den == 0 {
		return decimal.Zero, false
	}
	num := decimal.NewFromInt(counts[numeratorKey])
	return num.Mul(decimal.NewFromInt(100)).DivRound(decimal.NewFromInt(den), 2), true
}
