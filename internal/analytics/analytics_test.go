package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/analytics"
	"rollcall/internal/ledger"
	"rollcall/internal/registry"
	"rollcall/internal/store"
)

var testNow = time.Date(2026, time.March, 20, 17, 0, 0, 0, time.UTC)

type fixture struct {
	mem     *store.Memory
	reg     *registry.Service
	reports *analytics.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	reg := registry.NewService(mem)
	require.NoError(t, reg.SaveTenant(context.Background(), registry.Tenant{ID: "T1", Name: "Hillside", OpeningTime: "09:00"}))
	reports := analytics.NewService(mem, reg).WithNow(func() time.Time { return testNow })
	return &fixture{mem: mem, reg: reg, reports: reports}
}

func (f *fixture) addStudent(t *testing.T, id, name, class string) {
	t.Helper()
	_, err := f.reg.Register(context.Background(), registry.Entity{
		ID: id, Name: name, TenantID: "T1", Type: registry.TypeStudent, Class: class,
	})
	require.NoError(t, err)
}

// event appends a raw ledger event on the given March 2026 day at hh:mm.
func (f *fixture) event(t *testing.T, entityID, name string, day, hh, mm int, status ledger.Status) {
	t.Helper()
	_, err := f.mem.InsertEvent(context.Background(), ledger.Event{
		LogID:      uuid.NewString(),
		TenantID:   "T1",
		EntityID:   entityID,
		EntityName: name,
		EntityType: registry.TypeStudent,
		Timestamp:  time.Date(2026, time.March, day, hh, mm, 0, 0, time.UTC),
		Status:     status,
		Mode:       ledger.ModeManual,
	})
	require.NoError(t, err)
}

func findCounts(counts []analytics.EntityCounts, id string) *analytics.EntityCounts {
	for i := range counts {
		if counts[i].EntityID == id {
			return &counts[i]
		}
	}
	return nil
}

func TestMonthlyCounts_PresenceOverridesAbsence(t *testing.T) {
	f := newFixture(t)

	// Day 2: swept absent in the morning, then arrived late. Counts as a
	// present day, not an absent one.
	f.event(t, "S1", "Asha", 1, 8, 50, ledger.StatusIn)
	f.event(t, "S1", "Asha", 2, 7, 0, ledger.StatusAbsent)
	f.event(t, "S1", "Asha", 2, 10, 30, ledger.StatusIn)
	f.event(t, "S1", "Asha", 3, 7, 0, ledger.StatusAbsent)

	counts, err := f.reports.MonthlyCounts(context.Background(), "T1")
	require.NoError(t, err)

	c := findCounts(counts, "S1")
	require.NotNil(t, c)
	assert.Equal(t, 2, c.PresentDays)
	assert.Equal(t, 1, c.AbsentDays)
	assert.Equal(t, 1, c.LateDays, "the 10:30 arrival on day 2 is late")
}

func TestMonthlyCounts_OutsideMonthIgnored(t *testing.T) {
	f := newFixture(t)

	f.event(t, "S1", "Asha", 5, 8, 0, ledger.StatusIn)
	_, err := f.mem.InsertEvent(context.Background(), ledger.Event{
		LogID: uuid.NewString(), TenantID: "T1", EntityID: "S1", EntityName: "Asha",
		EntityType: registry.TypeStudent,
		Timestamp:  time.Date(2026, time.February, 27, 8, 0, 0, 0, time.UTC),
		Status:     ledger.StatusIn, Mode: ledger.ModeManual,
	})
	require.NoError(t, err)

	counts, err := f.reports.MonthlyCounts(context.Background(), "T1")
	require.NoError(t, err)
	c := findCounts(counts, "S1")
	require.NotNil(t, c)
	assert.Equal(t, 1, c.PresentDays)
}

func TestLateComers_SortedWithNameTieBreak(t *testing.T) {
	f := newFixture(t)

	// Zane: late twice. Amy and Bella: late once each, tie broken by name.
	f.event(t, "S1", "Zane", 1, 9, 30, ledger.StatusIn)
	f.event(t, "S1", "Zane", 2, 9, 45, ledger.StatusIn)
	f.event(t, "S2", "Bella", 1, 9, 10, ledger.StatusIn)
	f.event(t, "S3", "Amy", 2, 9, 10, ledger.StatusIn)
	// On time, never listed.
	f.event(t, "S4", "Omar", 1, 8, 30, ledger.StatusIn)

	late, err := f.reports.LateComers(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, late, 3)
	assert.Equal(t, "Zane", late[0].EntityName)
	assert.Equal(t, "Amy", late[1].EntityName)
	assert.Equal(t, "Bella", late[2].EntityName)
}

func TestLateComers_FirstInOfDayDecides(t *testing.T) {
	f := newFixture(t)

	// Arrived on time, went out, came back after opening. Not late.
	f.event(t, "S1", "Asha", 1, 8, 30, ledger.StatusIn)
	f.event(t, "S1", "Asha", 1, 12, 0, ledger.StatusOut)
	f.event(t, "S1", "Asha", 1, 13, 0, ledger.StatusIn)

	late, err := f.reports.LateComers(context.Background(), "T1")
	require.NoError(t, err)
	assert.Empty(t, late)
}

func TestFrequentAbsentees_Sorted(t *testing.T) {
	f := newFixture(t)

	f.event(t, "S1", "Asha", 1, 7, 0, ledger.StatusAbsent)
	f.event(t, "S1", "Asha", 2, 7, 0, ledger.StatusAbsent)
	f.event(t, "S2", "Binod", 1, 7, 0, ledger.StatusAbsent)
	f.event(t, "S3", "Cara", 1, 8, 30, ledger.StatusIn)

	absentees, err := f.reports.FrequentAbsentees(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, absentees, 2)
	assert.Equal(t, "Asha", absentees[0].EntityName)
	assert.Equal(t, 2, absentees[0].AbsentDays)
	assert.Equal(t, "Binod", absentees[1].EntityName)
}

func TestClassSummaries(t *testing.T) {
	f := newFixture(t)

	f.addStudent(t, "S1", "Asha", "5A")
	f.addStudent(t, "S2", "Binod", "5A")
	f.addStudent(t, "S3", "Cara", "5A")
	f.addStudent(t, "S4", "Dev", "5B")

	// Today is March 20.
	f.event(t, "S1", "Asha", 20, 8, 30, ledger.StatusIn)
	f.event(t, "S2", "Binod", 20, 8, 35, ledger.StatusIn)
	f.event(t, "S3", "Cara", 20, 7, 0, ledger.StatusAbsent)

	summaries, err := f.reports.ClassSummaries(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	a := summaries[0]
	assert.Equal(t, "5A", a.Class)
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 2, a.PresentToday)
	assert.Equal(t, 1, a.AbsentToday)
	assert.Equal(t, 67, a.Percentage)

	b := summaries[1]
	assert.Equal(t, "5B", b.Class)
	assert.Equal(t, 1, b.Total)
	assert.Equal(t, 0, b.PresentToday)
	assert.Equal(t, 0, b.Percentage)
}

func TestMonthlyCounts_UnknownTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.reports.MonthlyCounts(context.Background(), "T9")
	assert.ErrorIs(t, err, registry.ErrTenantNotFound)
}
