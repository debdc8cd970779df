package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"PowerDesk/internal/domain/models"
	domrepo "PowerDesk/internal/domain/repository"
	"PowerDesk/internal/services/analysis"
	"PowerDesk/pkg/logger"

	"github.com/robfig/cron/v3"
)

// ContractWatch periodically flags sessions whose PPA end date has passed.
type ContractWatch struct {
	datasets domrepo.DatasetStore
	schedule string
	cron     *cron.Cron
	log      *logger.Logger
	now      func() time.Time

	mu     sync.RWMutex
	alerts map[string]models.ContractAlert
}

func NewContractWatch(datasets domrepo.DatasetStore, schedule string, log *logger.Logger) *ContractWatch {
	if schedule == "" {
		schedule = "@every 1h"
	}
	return &ContractWatch{
		datasets: datasets,
		schedule: schedule,
		cron:     cron.New(),
		log:      log,
		now:      time.Now,
		alerts:   make(map[string]models.ContractAlert),
	}
}

func (w *ContractWatch) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		alerts, err := w.Check(ctx)
		if err != nil {
			w.log.Error("contract check failed", logger.Error(err))
			return
		}
		if len(alerts) > 0 {
			w.log.Warn("expired contracts", logger.Int("count", len(alerts)))
		}
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

// Stop waits for a running check or for ctx.
func (w *ContractWatch) Stop(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Check scans every session's contract and replaces the alert set.
func (w *ContractWatch) Check(ctx context.Context) ([]models.ContractAlert, error) {
	sessions, err := w.datasets.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	now := w.now().UTC()
	found := make(map[string]models.ContractAlert)
	for _, s := range sessions {
		d, err := w.datasets.Get(ctx, s, models.KindContract)
		if errors.Is(err, domrepo.ErrDatasetNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		terms := analysis.ExtractContractTerms(d.Text)
		end, ok := analysis.ParseContractDate(terms.EndDate)
		if !ok || !end.Before(now) {
			continue
		}
		found[s] = models.ContractAlert{SessionID: s, DatasetID: d.ID, EndDate: terms.EndDate, CheckedAt: now}
	}

	w.mu.Lock()
	w.alerts = found
	w.mu.Unlock()
	return w.Alerts(), nil
}

// Alerts returns the result of the last check ordered by session.
func (w *ContractWatch) Alerts() []models.ContractAlert {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.ContractAlert, 0, len(w.alerts))
	for _, a := range w.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}
