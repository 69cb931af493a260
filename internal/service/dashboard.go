package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whispersend/backend/internal/ledger"
	"github.com/whispersend/backend/internal/model"
	"github.com/whispersend/backend/internal/phone"
)

const (
	recentLimit = 5
	chartDays   = 7
)

type Dashboard struct {
	Credits model.Credits      `json:"credits"`
	Recent  []model.Message    `json:"recent_messages"`
	Daily   []model.DailyCount `json:"daily"`
}

type Reader struct {
	ledger ledger.Ledger
	now    func() time.Time
	loc    *time.Location
}

func NewReader(l ledger.Ledger, loc *time.Location) *Reader {
	if loc == nil {
		loc = time.UTC
	}
	return &Reader{ledger: l, now: time.Now, loc: loc}
}

func (r *Reader) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := r.ledger.Credits(gctx, userID)
		d.Credits = c
		return err
	})
	g.Go(func() error {
		msgs, err := r.ledger.ListMessages(gctx, userID, model.MessageFilter{Limit: recentLimit})
		d.Recent = maskPhones(msgs)
		return err
	})
	g.Go(func() error {
		days, err := r.DailyCounts(gctx, userID)
		d.Daily = days
		return err
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// History lists messages newest first with recipient phones masked.
func (r *Reader) History(ctx context.Context, userID string, f model.MessageFilter) ([]model.Message, error) {
	msgs, err := r.ledger.ListMessages(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	return maskPhones(msgs), nil
}

func (r *Reader) Credits(ctx context.Context, userID string) (model.Credits, error) {
	return r.ledger.Credits(ctx, userID)
}

// DailyCounts buckets the last seven days of messages by local day, oldest
// first, with empty days reported as zero.
func (r *Reader) DailyCounts(ctx context.Context, userID string) ([]model.DailyCount, error) {
	today := startOfDay(r.now().In(r.loc))
	since := today.AddDate(0, 0, -(chartDays - 1))

	stamps, err := r.ledger.MessagesSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	return bucketDays(stamps, since, chartDays, r.loc), nil
}

func bucketDays(stamps []time.Time, since time.Time, days int, loc *time.Location) []model.DailyCount {
	out := make([]model.DailyCount, days)
	index := make(map[string]int, days)
	for i := range out {
		key := since.AddDate(0, 0, i).Format("02/01")
		out[i].Day = key
		index[key] = i
	}
	for _, ts := range stamps {
		if i, ok := index[ts.In(loc).Format("02/01")]; ok {
			out[i].Count++
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func maskPhones(msgs []model.Message) []model.Message {
	for i := range msgs {
		msgs[i].RecipientPhone = phone.Mask(msgs[i].RecipientPhone)
	}
	return msgs
}
