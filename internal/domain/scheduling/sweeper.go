package scheduling

import (
	"context"
	"time"
)

// SweepStatusSets maps the sweep --status argument to the consultation
// statuses it covers.
var SweepStatusSets = map[string][]string{
	"scheduled":   {StatusScheduled},
	"in_progress": {StatusInProgress},
	"both":        {StatusScheduled, StatusInProgress},
}

// SweepOverdue closes out consultations whose scheduled start passed more
// than hoursOverdue ago, moving them to completed. Cancelled consultations
// are never touched. The sweep is idempotent: a second run over the same
// data finds nothing to update. Per-item failures are logged and skipped so
// one bad row cannot stall the sweep.
func (s *Service) SweepOverdue(ctx context.Context, hoursOverdue int, statusSet string) (*SweepResult, error) {
	if hoursOverdue < 1 {
		return nil, validationf("hours_overdue must be at least 1, got %d", hoursOverdue)
	}
	statuses, ok := SweepStatusSets[statusSet]
	if !ok {
		return nil, validationf("status must be \"scheduled\", \"in_progress\", or \"both\", got %q", statusSet)
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(hoursOverdue) * time.Hour)

	overdue, err := s.consults.ListOverdue(ctx, cutoff, statuses)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Checked: len(overdue)}
	for _, c := range overdue {
		c.Status = StatusCompleted
		if c.ActualEndTime == nil {
			end := c.EndTime
			c.ActualEndTime = &end
		}
		if err := s.consults.UpdateStatus(ctx, c); err != nil {
			result.Skipped++
			s.logger.Error().Err(err).
				Str("consultation_id", c.ID.String()).
				Msg("overdue sweep: failed to complete consultation")
			continue
		}
		result.Updated++
		result.IDs = append(result.IDs, c.ID)
	}

	s.logger.Info().
		Int("checked", result.Checked).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("overdue sweep finished")

	return result, nil
}

// ListOverdue returns the consultations a sweep with the same arguments
// would touch, without changing anything.
func (s *Service) ListOverdue(ctx context.Context, hoursOverdue int, statusSet string) ([]*Consultation, error) {
	if hoursOverdue < 1 {
		return nil, validationf("hours_overdue must be at least 1, got %d", hoursOverdue)
	}
	statuses, ok := SweepStatusSets[statusSet]
	if !ok {
		return nil, validationf("status must be \"scheduled\", \"in_progress\", or \"both\", got %q", statusSet)
	}
	cutoff := s.now().Add(-time.Duration(hoursOverdue) * time.Hour)
	return s.consults.ListOverdue(ctx, cutoff, statuses)
}
