// Package retention archives records older than the retention window.
package retention

import (
	"context"
	"fmt"
	"time"

	metrics "github.com/aixgo-dev/nutrilog/pkg/observability"
	"github.com/aixgo-dev/nutrilog/pkg/records"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultRetentionDays is how long records stay live.
const DefaultRetentionDays = 30

// Target is one collection to sweep.
type Target struct {
	// Label names the collection in logs.
	Label      string
	Collection string
}

// CollectionResult reports the sweep of one collection.
type CollectionResult struct {
	Label      string `json:"label"`
	Collection string `json:"collection"`
	Found      int    `json:"found"`
	Archived   int    `json:"archived"`
	Failed     int    `json:"failed"`
}

// Report is the outcome of one sweep.
type Report struct {
	Cutoff  time.Time          `json:"cutoff"`
	Results []CollectionResult `json:"results"`
}

// Archived returns the total number of archived records.
func (r Report) Archived() int {
	n := 0
	for _, res := range r.Results {
		n += res.Archived
	}
	return n
}

// Sweeper archives records older than Days across its targets.
type Sweeper struct {
	store   records.Store
	targets []Target
	days    int
	now     func() time.Time
	log     logrus.FieldLogger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithDays sets the retention window in days.
func WithDays(days int) Option {
	return func(s *Sweeper) {
		if days > 0 {
			s.days = days
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Sweeper) { s.log = log }
}

// NewSweeper creates a sweeper for the configured collections. Kinds
// without a collection are skipped.
func NewSweeper(store records.Store, colls records.Collections, opts ...Option) *Sweeper {
	s := &Sweeper{
		store: store,
		days:  DefaultRetentionDays,
		now:   time.Now,
		log:   logrus.StandardLogger(),
	}
	for _, kind := range []records.Kind{records.KindDiet, records.KindExercise} {
		if coll, err := colls.For(kind); err == nil {
			s.targets = append(s.targets, Target{Label: kind.String(), Collection: coll})
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Days returns the retention window.
func (s *Sweeper) Days() int {
	return s.days
}

// Cutoff returns the instant before which records are swept.
func (s *Sweeper) Cutoff() time.Time {
	return s.now().AddDate(0, 0, -s.days)
}

// Run sweeps every target concurrently. A query failure on one
// collection fails the run, but the other collections are still swept
// and their counts reported. Individual archive failures are counted
// and logged without failing the run.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	report := Report{
		Cutoff:  s.Cutoff(),
		Results: make([]CollectionResult, len(s.targets)),
	}

	s.log.WithFields(logrus.Fields{
		"cutoff": report.Cutoff.Format(time.RFC3339),
		"days":   s.days,
	}).Info("[RETENTION] Starting cleanup")

	var g errgroup.Group
	for i, target := range s.targets {
		g.Go(func() error {
			res, err := s.sweep(ctx, target, report.Cutoff)
			report.Results[i] = res
			return err
		})
	}
	err := g.Wait()

	archived := make(map[string]int, len(report.Results))
	for _, res := range report.Results {
		archived[res.Collection] = res.Archived
	}
	metrics.RecordRetentionRun(metrics.StatusLabel(err), archived)

	if err != nil {
		s.log.WithError(err).Error("[RETENTION] Cleanup failed")
		return report, err
	}
	s.log.WithField("archived", report.Archived()).Info("[RETENTION] Cleanup complete")
	return report, nil
}

func (s *Sweeper) sweep(ctx context.Context, target Target, cutoff time.Time) (CollectionResult, error) {
	res := CollectionResult{Label: target.Label, Collection: target.Collection}
	log := s.log.WithField("collection", target.Label)

	pages, err := s.store.QueryBefore(ctx, target.Collection, cutoff)
	if err != nil {
		return res, fmt.Errorf("[%s] query failed: %w", target.Label, err)
	}
	res.Found = len(pages)

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.store.Archive(ctx, page); err != nil {
			res.Failed++
			log.WithError(err).WithField("page_id", page.ID).Warn("[RETENTION] Archive failed")
			continue
		}
		res.Archived++
	}

	log.WithFields(logrus.Fields{
		"found":    res.Found,
		"archived": res.Archived,
	}).Infof("[%s] 清除了 %d 筆舊資料", target.Label, res.Archived)
	return res, nil
}
