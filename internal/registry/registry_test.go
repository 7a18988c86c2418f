package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/ledger"
	"rollcall/internal/registry"
	"rollcall/internal/store"
)

func newRegistry(t *testing.T) (*registry.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	reg := registry.NewService(mem)
	require.NoError(t, reg.SaveTenant(context.Background(), registry.Tenant{ID: "T1", Name: "Hillside", OpeningTime: "08:45"}))
	return reg, mem
}

func TestParseQRPayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantID  string
		wantTyp registry.EntityType
		wantErr bool
	}{
		{"student payload", `{"student_id":"S1","school_id":"T1"}`, "S1", registry.TypeStudent, false},
		{"teacher payload", `{"teacher_id":"TC1","school_id":"T1"}`, "TC1", registry.TypeTeacher, false},
		{"not json", "garbage", "", "", true},
		{"missing school", `{"student_id":"S1"}`, "", "", true},
		{"missing identifier", `{"school_id":"T1"}`, "", "", true},
		{"empty", "", "", "", true},
		{"site constant is not personal", registry.SiteQR, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := registry.ParseQRPayload(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, registry.ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.EntityID())
			assert.Equal(t, tt.wantTyp, p.EntityType())
			assert.Equal(t, "T1", p.SchoolID)
		})
	}
}

func TestResolveByRollNoOrID(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, registry.Entity{ID: "S1", Name: "Asha", TenantID: "T1", Type: registry.TypeStudent, RollNo: "42"})
	require.NoError(t, err)

	byRoll, err := reg.ResolveByRollNoOrID(ctx, "T1", "42")
	require.NoError(t, err)
	assert.Equal(t, "S1", byRoll.ID)

	byID, err := reg.ResolveByRollNoOrID(ctx, "T1", "S1")
	require.NoError(t, err)
	assert.Equal(t, "S1", byID.ID)

	_, err = reg.ResolveByRollNoOrID(ctx, "T1", "99")
	assert.ErrorIs(t, err, registry.ErrEntityNotFound)

	// Roll numbers are tenant scoped.
	_, err = reg.ResolveByRollNoOrID(ctx, "T2", "42")
	assert.ErrorIs(t, err, registry.ErrEntityNotFound)
}

func TestRegister_Validation(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, registry.Entity{ID: "S1", TenantID: "T1", Type: registry.TypeStudent})
	assert.Error(t, err, "name required")

	_, err = reg.Register(ctx, registry.Entity{ID: "S1", Name: "Asha", TenantID: "T1", Type: "droid"})
	assert.Error(t, err, "unknown type")

	_, err = reg.Register(ctx, registry.Entity{Name: "Asha", TenantID: "T1", Type: registry.TypeStudent})
	assert.Error(t, err, "id required")
}

func TestDelete_CascadesEvents(t *testing.T) {
	reg, mem := newRegistry(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, registry.Entity{ID: "S1", Name: "Asha", TenantID: "T1", Type: registry.TypeStudent})
	require.NoError(t, err)

	led := ledger.NewService(mem, reg, nil)
	_, err = led.Mark(ctx, "T1", registry.TypeStudent, "S1", ledger.StatusIn, ledger.ModeManual)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, "T1", registry.TypeStudent, "S1"))

	_, err = reg.ResolveByID(ctx, "T1", registry.TypeStudent, "S1")
	assert.ErrorIs(t, err, registry.ErrEntityNotFound)

	history, err := led.History(ctx, "T1", "S1", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, history, "deleting an entity removes its ledger events")
}

func TestDelete_UnknownEntity(t *testing.T) {
	reg, _ := newRegistry(t)
	err := reg.Delete(context.Background(), "T1", registry.TypeStudent, "missing")
	assert.ErrorIs(t, err, registry.ErrEntityNotFound)
}

func TestSaveTenant_ValidatesOpeningTime(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	assert.Error(t, reg.SaveTenant(ctx, registry.Tenant{ID: "T1", OpeningTime: "9am"}))
	assert.NoError(t, reg.SaveTenant(ctx, registry.Tenant{ID: "T1", OpeningTime: "07:30"}))

	tenant, err := reg.Tenant(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "07:30", tenant.OpeningTime)

	_, err = reg.Tenant(ctx, "T9")
	assert.ErrorIs(t, err, registry.ErrTenantNotFound)
}
