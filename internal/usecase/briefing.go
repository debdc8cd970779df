package usecase

import (
	"context"
	"sync"
	"time"

	"PowerDesk/internal/domain/models"
)

// BriefingUseCase runs every available analysis of a session at once.
type BriefingUseCase struct {
	assistant *AssistantUseCase
	timeout   time.Duration
}

func NewBriefingUseCase(assistant *AssistantUseCase, timeout time.Duration) *BriefingUseCase {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &BriefingUseCase{assistant: assistant, timeout: timeout}
}

// Brief never fails on a single analysis; its error lands in Errors.
func (uc *BriefingUseCase) Brief(ctx context.Context, session string) (*models.Briefing, error) {
	kinds, err := uc.assistant.Available(ctx, session)
	if err != nil {
		return nil, err
	}

	// Overall timeout
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res := &models.Briefing{
		SessionID: session,
		Timestamp: uc.assistant.now().UTC(),
		Analyses:  make(map[models.AnalysisKind]*models.Analysis, len(kinds)),
		Errors:    map[models.AnalysisKind]string{},
	}

	type item struct {
		kind models.AnalysisKind
		val  *models.Analysis
		err  error
	}
	ch := make(chan item, len(kinds))
	var wg sync.WaitGroup
	for _, k := range kinds {
		wg.Add(1)
		go func(k models.AnalysisKind) {
			defer wg.Done()
			v, err := uc.assistant.Analyze(ctx, session, k)
			ch <- item{k, v, err}
		}(k)
	}
	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.kind] = it.err.Error()
			continue
		}
		res.Analyses[it.kind] = it.val
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}
