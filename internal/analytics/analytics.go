package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"rollcall/internal/ledger"
	"rollcall/internal/registry"
)

// Service answers read-only reporting queries by scanning the ledger. It
// never mutates anything.
type Service struct {
	events ledger.Repository
	reg    *registry.Service
	now    func() time.Time
}

// NewService creates the aggregator.
func NewService(events ledger.Repository, reg *registry.Service) *Service {
	return &Service{events: events, reg: reg, now: time.Now}
}

// WithNow overrides the service clock. Tests use it to pin the month.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// EntityCounts holds per-entity day counts for one calendar month.
type EntityCounts struct {
	EntityID    string `json:"entity_id"`
	EntityName  string `json:"entity_name"`
	PresentDays int    `json:"present_days"`
	AbsentDays  int    `json:"absent_days"`
	LateDays    int    `json:"late_days"`
}

// ClassSummary is today's headcount for one class of students.
type ClassSummary struct {
	Class        string `json:"class"`
	Total        int    `json:"total"`
	PresentToday int    `json:"present_today"`
	AbsentToday  int    `json:"absent_today"`
	Percentage   int    `json:"percentage"`
}

// dayRecord accumulates one entity's events for one calendar day.
type dayRecord struct {
	presence   bool
	absent     bool
	earliestIn *ledger.Event
}

// monthlyRecords scans the current month's events and folds them into
// per-entity per-day records. Presence on a day overrides an ABSENT event on
// the same day.
func (s *Service) monthlyRecords(ctx context.Context, tenantID string) (map[string]map[string]*dayRecord, map[string]string, error) {
	now := s.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, 0)

	events, err := s.events.ListInRange(ctx, tenantID, from, to)
	if err != nil {
		return nil, nil, err
	}

	days := make(map[string]map[string]*dayRecord) // entity -> day -> record
	names := make(map[string]string)
	for _, evt := range events {
		names[evt.EntityID] = evt.EntityName
		day := evt.Timestamp.Format("2006-01-02")
		byDay, ok := days[evt.EntityID]
		if !ok {
			byDay = make(map[string]*dayRecord)
			days[evt.EntityID] = byDay
		}
		rec, ok := byDay[day]
		if !ok {
			rec = &dayRecord{}
			byDay[day] = rec
		}
		switch evt.Status {
		case ledger.StatusIn:
			rec.presence = true
			e := evt
			if rec.earliestIn == nil || e.Timestamp.Before(rec.earliestIn.Timestamp) {
				rec.earliestIn = &e
			}
		case ledger.StatusOut:
			rec.presence = true
		case ledger.StatusAbsent:
			rec.absent = true
		}
	}
	return days, names, nil
}

// MonthlyCounts reports, for the current month, each entity's count of
// distinct days with at least one IN/OUT event and distinct days marked
// ABSENT with no presence. Late days count days whose first IN was after the
// tenant's opening time. Sorted by entity name, then id.
func (s *Service) MonthlyCounts(ctx context.Context, tenantID string) ([]EntityCounts, error) {
	tenant, err := s.reg.Tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	days, names, err := s.monthlyRecords(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]EntityCounts, 0, len(days))
	for id, byDay := range days {
		c := EntityCounts{EntityID: id, EntityName: names[id]}
		for _, rec := range byDay {
			switch {
			case rec.presence:
				c.PresentDays++
			case rec.absent:
				c.AbsentDays++
			}
			if rec.earliestIn != nil && ledger.ClassifyArrival(*rec.earliestIn, tenant.OpeningTime) == ledger.ClassLate {
				c.LateDays++
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityName != out[j].EntityName {
			return out[i].EntityName < out[j].EntityName
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

// LateComers lists entities with at least one late day this month, most
// late days first; ties break by name ascending.
func (s *Service) LateComers(ctx context.Context, tenantID string) ([]EntityCounts, error) {
	counts, err := s.MonthlyCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := counts[:0]
	for _, c := range counts {
		if c.LateDays > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LateDays != out[j].LateDays {
			return out[i].LateDays > out[j].LateDays
		}
		return out[i].EntityName < out[j].EntityName
	})
	return out, nil
}

// FrequentAbsentees lists entities with at least one absent day this month,
// most absent days first; ties break by name ascending.
func (s *Service) FrequentAbsentees(ctx context.Context, tenantID string) ([]EntityCounts, error) {
	counts, err := s.MonthlyCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := counts[:0]
	for _, c := range counts {
		if c.AbsentDays > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AbsentDays != out[j].AbsentDays {
			return out[i].AbsentDays > out[j].AbsentDays
		}
		return out[i].EntityName < out[j].EntityName
	})
	return out, nil
}

// ClassSummaries reports today's headcount per class over the tenant's
// students. Percentage is present/total rounded to the nearest integer;
// classes with no students report 0.
func (s *Service) ClassSummaries(ctx context.Context, tenantID string) ([]ClassSummary, error) {
	students, err := s.reg.List(ctx, tenantID, registry.TypeStudent)
	if err != nil {
		return nil, err
	}
	today, err := s.events.ListOnDay(ctx, tenantID, s.now())
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool)
	absent := make(map[string]bool)
	for _, evt := range today {
		switch evt.Status {
		case ledger.StatusIn, ledger.StatusOut:
			present[evt.EntityID] = true
		case ledger.StatusAbsent:
			absent[evt.EntityID] = true
		}
	}

	byClass := make(map[string]*ClassSummary)
	for _, st := range students {
		sum, ok := byClass[st.Class]
		if !ok {
			sum = &ClassSummary{Class: st.Class}
			byClass[st.Class] = sum
		}
		sum.Total++
		switch {
		case present[st.ID]:
			sum.PresentToday++
		case absent[st.ID]:
			sum.AbsentToday++
		}
	}

	out := make([]ClassSummary, 0, len(byClass))
	for _, sum := range byClass {
		if sum.Total > 0 {
			sum.Percentage = int(math.Round(float64(sum.PresentToday) / float64(sum.Total) * 100))
		}
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out, nil
}
