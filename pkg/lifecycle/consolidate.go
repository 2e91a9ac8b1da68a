package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/atriumhq/atrium/pkg/episode"
	"github.com/atriumhq/atrium/pkg/index"
)

// consolidate merges runs of adjacent near-duplicate episodes within
// each session. Only adjacent episodes merge so the merged time range
// never swallows an unrelated episode in between, keeping session
// episodes pairwise disjoint. Returns the number of absorbed episodes.
func (m *Manager) consolidate(ctx context.Context) (int, error) {
	cfg := m.snapshot()
	groups := make(map[string][]*episode.Episode)
	err := m.store.ForEachActive(ctx, func(ep *episode.Episode) error {
		if !ep.Retrievable() {
			return nil
		}
		if ep.AccessCount > cfg.ConsolidateMaxAccess {
			return nil
		}
		key := ep.UserID + "/" + ep.SessionID
		groups[key] = append(groups[key], ep)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("lifecycle: consolidation scan: %w", err)
	}

	merged := 0
	for _, eps := range groups {
		if len(eps) < 2 {
			continue
		}
		sort.Slice(eps, func(i, j int) bool {
			return eps[i].StartTime.Before(eps[j].StartTime)
		})

		i := 0
		for i < len(eps)-1 {
			run := m.similarRun(ctx, eps, i)
			if len(run) < 2 {
				i++
				continue
			}
			n, err := m.merge(ctx, run)
			if err != nil {
				m.logger.Warn("consolidation merge failed",
					"episode_id", run[0].ID, "error", err)
				i++
				continue
			}
			merged += n
			i += len(run)
		}
	}
	return merged, nil
}

// similarRun extends a run of adjacent episodes starting at i while each
// next episode stays above the similarity threshold with the run head.
func (m *Manager) similarRun(ctx context.Context, eps []*episode.Episode, i int) []*episode.Episode {
	head, err := m.index.Get(ctx, eps[i].ID)
	if err != nil {
		return nil
	}

	run := []*episode.Episode{eps[i]}
	for j := i + 1; j < len(eps); j++ {
		vec, err := m.index.Get(ctx, eps[j].ID)
		if err != nil {
			break
		}
		if index.Cosine(head, vec) < m.snapshot().ConsolidateSimilarity {
			break
		}
		run = append(run, eps[j])
	}
	return run
}

// merge absorbs run[1:] into run[0]: earliest start, latest end, union
// of critical data points, absorbed IDs recorded. Absorbed rows and
// vectors are removed first so readers see either the old episodes or
// the merged one, never duplicates.
func (m *Manager) merge(ctx context.Context, run []*episode.Episode) (int, error) {
	rep := run[0]
	absorbed := run[1:]

	absorbedIDs := make([]string, 0, len(absorbed))
	for _, ep := range absorbed {
		if err := m.index.Delete(ctx, ep.ID); err != nil && !errors.Is(err, index.ErrNotFound) {
			return 0, fmt.Errorf("drop vector %s: %w", ep.ID, err)
		}
		if err := m.store.Delete(ctx, ep.ID); err != nil {
			return 0, fmt.Errorf("drop row %s: %w", ep.ID, err)
		}
		absorbedIDs = append(absorbedIDs, ep.ID)
	}

	_, err := m.store.Update(ctx, rep.ID, func(row *episode.Episode) error {
		for _, ep := range absorbed {
			if ep.StartTime.Before(row.StartTime) {
				row.StartTime = ep.StartTime
			}
			if ep.EndTime.After(row.EndTime) {
				row.EndTime = ep.EndTime
			}
			row.RawRef.TurnCount += ep.RawRef.TurnCount
			if ep.RawRef.LastTurn > row.RawRef.LastTurn {
				row.RawRef.LastTurn = ep.RawRef.LastTurn
			}
			if ep.RawRef.FirstTurn < row.RawRef.FirstTurn {
				row.RawRef.FirstTurn = ep.RawRef.FirstTurn
			}
			mergeCanvas(row, ep)
			mergeFeedback(row, ep)
			row.AccessCount += ep.AccessCount
		}
		row.AbsorbedIDs = append(row.AbsorbedIDs, absorbedIDs...)
		row.Status = episode.StatusConsolidated
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update representative %s: %w", rep.ID, err)
	}

	m.logger.Info("episodes consolidated",
		"episode_id", rep.ID, "absorbed", len(absorbedIDs))
	if m.events != nil {
		m.events.EpisodeConsolidated(rep.ID, absorbedIDs)
	}
	return len(absorbedIDs), nil
}

// mergeCanvas unions the absorbed episode's critical data points into
// the representative. The representative's own values win on key clash.
func mergeCanvas(rep, absorbed *episode.Episode) {
	if absorbed.Canvas == nil {
		return
	}
	if rep.Canvas == nil {
		cp := *absorbed.Canvas
		rep.Canvas = &cp
		return
	}
	for k, v := range absorbed.Canvas.CriticalDataPoints {
		if rep.Canvas.CriticalDataPoints == nil {
			rep.Canvas.CriticalDataPoints = make(map[string]string)
		}
		if _, ok := rep.Canvas.CriticalDataPoints[k]; !ok {
			rep.Canvas.CriticalDataPoints[k] = v
		}
	}
}

// mergeFeedback folds the absorbed feedback aggregate into the
// representative, weighted by event count.
func mergeFeedback(rep, absorbed *episode.Episode) {
	if absorbed.FeedbackScore == nil || absorbed.FeedbackCount == 0 {
		return
	}
	if rep.FeedbackScore == nil {
		s := *absorbed.FeedbackScore
		rep.FeedbackScore = &s
		rep.FeedbackCount = absorbed.FeedbackCount
		return
	}
	total := rep.FeedbackCount + absorbed.FeedbackCount
	folded := (*rep.FeedbackScore*float64(rep.FeedbackCount) +
		*absorbed.FeedbackScore*float64(absorbed.FeedbackCount)) / float64(total)
	rep.FeedbackScore = &folded
	rep.FeedbackCount = total
}
