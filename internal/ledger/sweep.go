package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"rollcall/internal/metrics"
	"rollcall/internal/registry"
)

// SweepAbsent appends one ABSENT event (mode SYSTEM) for every student in
// the tenant with no IN/OUT event today. Students who were present at all
// today are skipped, as are students already swept: at most one system
// ABSENT per student per day, so repeat invocations are no-ops.
//
// Each student's append is attempted independently; failures are collected
// and the sweep continues. The returned count is the number of events
// actually appended.
func (s *Service) SweepAbsent(ctx context.Context, tenantID string) (int, error) {
	students, err := s.reg.List(ctx, tenantID, registry.TypeStudent)
	if err != nil {
		return 0, err
	}

	now := s.now()
	today, err := s.repo.ListOnDay(ctx, tenantID, now)
	if err != nil {
		return 0, err
	}
	present := make(map[string]bool)
	swept := make(map[string]bool)
	for _, evt := range today {
		switch evt.Status {
		case StatusIn, StatusOut:
			present[evt.EntityID] = true
		case StatusAbsent:
			swept[evt.EntityID] = true
		}
	}

	count := 0
	var failures []error
	for _, st := range students {
		if present[st.ID] || swept[st.ID] {
			continue
		}
		evt := Event{
			LogID:      uuid.NewString(),
			TenantID:   tenantID,
			EntityID:   st.ID,
			EntityName: st.Name,
			EntityType: st.Type,
			Timestamp:  now,
			Status:     StatusAbsent,
			Mode:       ModeSystem,
		}
		if _, err := s.repo.InsertEvent(ctx, evt); err != nil {
			log.Printf("sweep: absent append failed for %s: %v", st.ID, err)
			failures = append(failures, fmt.Errorf("student %s: %w", st.ID, err))
			continue
		}
		count++
		metrics.SweepMarkedTotal.Inc()
		metrics.MarksTotal.WithLabelValues(string(StatusAbsent), string(ModeSystem)).Inc()
	}
	return count, errors.Join(failures...)
}
