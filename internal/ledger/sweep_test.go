package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/ledger"
	"rollcall/internal/registry"
)

func countByStatus(events []ledger.Event, status ledger.Status) int {
	n := 0
	for _, evt := range events {
		if evt.Status == status {
			n++
		}
	}
	return n
}

func TestSweepAbsent_MarksOnlyStudentsWithNoPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// S1 came in; S2 came in and left again. Both were present at some
	// point today, so only the third student is swept.
	_, err := f.reg.Register(ctx, registry.Entity{ID: "S3", Name: "Cara", TenantID: "T1", Type: registry.TypeStudent, Class: "5B"})
	require.NoError(t, err)

	_, err = f.led.Mark(ctx, "T1", registry.TypeStudent, "S1", ledger.StatusIn, ledger.ModeManual)
	require.NoError(t, err)
	_, err = f.led.Mark(ctx, "T1", registry.TypeStudent, "S2", ledger.StatusIn, ledger.ModeManual)
	require.NoError(t, err)
	f.advance(time.Hour)
	_, err = f.led.Mark(ctx, "T1", registry.TypeStudent, "S2", ledger.StatusOut, ledger.ModeManual)
	require.NoError(t, err)

	count, err := f.led.SweepAbsent(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	history, err := f.led.History(ctx, "T1", "S3", 50, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.StatusAbsent, history[0].Status)
	assert.Equal(t, ledger.ModeSystem, history[0].Mode)

	for _, id := range []string{"S1", "S2"} {
		history, err := f.led.History(ctx, "T1", id, 50, 0)
		require.NoError(t, err)
		assert.Zero(t, countByStatus(history, ledger.StatusAbsent), "present student %s must not be swept", id)
	}
}

func TestSweepAbsent_SecondSweepIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	count, err := f.led.SweepAbsent(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, 2, count) // S1 and S2, not the teacher

	count, err = f.led.SweepAbsent(ctx, "T1")
	require.NoError(t, err)
	assert.Zero(t, count)

	history, err := f.led.History(ctx, "T1", "S1", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, countByStatus(history, ledger.StatusAbsent), "at most one system ABSENT per day")
}

func TestSweepAbsent_SkipsTeachers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.led.SweepAbsent(ctx, "T1")
	require.NoError(t, err)

	history, err := f.led.History(ctx, "T1", "TC1", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSweepAbsent_NextDaySweepsAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	count, err := f.led.SweepAbsent(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f.advance(24 * time.Hour)
	count, err = f.led.SweepAbsent(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "a new day starts a new sweep")
}
