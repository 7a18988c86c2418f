package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/metrics"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/registry"
)

// Status of one attendance event.
type Status string

const (
	StatusIn     Status = "IN"
	StatusOut    Status = "OUT"
	StatusAbsent Status = "ABSENT"
)

// Mode records how the event was captured.
type Mode string

const (
	ModeManual      Mode = "MANUAL"
	ModeQR          Mode = "QR"
	ModeFingerprint Mode = "FINGERPRINT"
	ModeFace        Mode = "FACE"
	ModeSystem      Mode = "SYSTEM"
)

var (
	// ErrAlreadyIn rejects a second consecutive IN on the same day.
	ErrAlreadyIn = errors.New("already checked in today")
	// ErrAlreadyOut rejects a second consecutive OUT on the same day.
	ErrAlreadyOut = errors.New("already checked out today")
	// ErrOutBeforeIn rejects an OUT with no prior IN that day.
	ErrOutBeforeIn = errors.New("cannot check out before checking in")
	// ErrTenantMismatch rejects a QR payload issued by another school.
	ErrTenantMismatch = errors.New("qr code belongs to another school")
	// ErrInvalidStatus rejects statuses outside IN/OUT/ABSENT.
	ErrInvalidStatus = errors.New("invalid attendance status")
)

// Event is one immutable entry in the append-only attendance ledger.
// EntityName is a point-in-time snapshot and may diverge from the entity's
// current name; that staleness is accepted.
type Event struct {
	LogID      string              `json:"log_id"`
	TenantID   string              `json:"tenant_id"`
	EntityID   string              `json:"entity_id"`
	EntityName string              `json:"entity_name"`
	EntityType registry.EntityType `json:"entity_type"`
	Timestamp  time.Time           `json:"timestamp"`
	Status     Status              `json:"status"`
	Mode       Mode                `json:"mode"`
}

// Repository is the ledger's persistence contract. Events are append-only;
// all listings return newest first. Day queries use the calendar day of the
// given instant in its own location.
type Repository interface {
	InsertEvent(ctx context.Context, evt Event) (Event, error)
	LastEventOnDay(ctx context.Context, tenantID, entityID string, day time.Time) (*Event, error)
	ListByEntity(ctx context.Context, tenantID, entityID string, limit, offset int) ([]Event, error)
	ListOnDay(ctx context.Context, tenantID string, day time.Time) ([]Event, error)
	ListInRange(ctx context.Context, tenantID string, from, to time.Time) ([]Event, error)
	// DeleteByEntity backs the registry's cascade on entity deletion.
	DeleteByEntity(ctx context.Context, tenantID, entityID string) error
}

// Service validates state transitions and appends events. Writes for one
// (entity, day) are serialized through a keyed mutex so two concurrent scans
// cannot both pass the validate-then-append check.
type Service struct {
	repo Repository
	reg  *registry.Service
	q    queue.Queue

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewService creates the ledger service. q may be nil when parent
// notifications are disabled.
func NewService(repo Repository, reg *registry.Service, q queue.Queue) *Service {
	return &Service{
		repo:  repo,
		reg:   reg,
		q:     q,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// WithNow overrides the service clock. Tests use it to pin the calendar day.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

func dayKey(tenantID, entityID string, t time.Time) string {
	return tenantID + "/" + entityID + "/" + t.Format("2006-01-02")
}

func (s *Service) lock(key string) func() {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Mark validates the requested transition against today's last event and
// appends a new one. Student marks emit a fire-and-forget parent notification.
func (s *Service) Mark(ctx context.Context, tenantID string, typ registry.EntityType, entityID string, status Status, mode Mode) (Event, error) {
	switch status {
	case StatusIn, StatusOut, StatusAbsent:
	default:
		return Event{}, ErrInvalidStatus
	}

	ent, err := s.reg.ResolveByID(ctx, tenantID, typ, entityID)
	if err != nil {
		return Event{}, err
	}

	now := s.now()
	unlock := s.lock(dayKey(tenantID, entityID, now))
	defer unlock()

	last, err := s.repo.LastEventOnDay(ctx, tenantID, entityID, now)
	if err != nil {
		return Event{}, err
	}
	if err := validateTransition(last, status); err != nil {
		metrics.RejectedTotal.WithLabelValues(err.Error()).Inc()
		return Event{}, err
	}

	evt := Event{
		LogID:      uuid.NewString(),
		TenantID:   tenantID,
		EntityID:   ent.ID,
		EntityName: ent.Name,
		EntityType: ent.Type,
		Timestamp:  now,
		Status:     status,
		Mode:       mode,
	}
	evt, err = s.repo.InsertEvent(ctx, evt)
	if err != nil {
		return Event{}, err
	}
	metrics.MarksTotal.WithLabelValues(string(status), string(mode)).Inc()

	if ent.Type == registry.TypeStudent {
		s.notifyParent(ctx, evt)
	}
	return evt, nil
}

// validateTransition applies the per-day alternation rules. ABSENT may be
// inserted manually at any point; IN/OUT look at the last event of the day.
func validateTransition(last *Event, requested Status) error {
	switch requested {
	case StatusIn:
		if last != nil && last.Status == StatusIn {
			return ErrAlreadyIn
		}
	case StatusOut:
		if last == nil || last.Status == StatusAbsent {
			return ErrOutBeforeIn
		}
		if last.Status == StatusOut {
			return ErrAlreadyOut
		}
	}
	return nil
}

// MarkByQRToggle resolves a personal QR payload and toggles the entity's
// status for today: IN when there is no event yet (or only an ABSENT), OUT
// after an IN. Once the entity is OUT, further scans fail with ErrAlreadyOut.
func (s *Service) MarkByQRToggle(ctx context.Context, tenantID, payload string) (Event, error) {
	ent, payloadTenant, err := s.reg.ResolveByQRPayload(ctx, payload)
	if err != nil {
		return Event{}, err
	}
	if payloadTenant != tenantID {
		metrics.RejectedTotal.WithLabelValues("tenant_mismatch").Inc()
		return Event{}, ErrTenantMismatch
	}
	return s.toggle(ctx, ent)
}

// MarkBySiteScan handles the shared site QR: the scanner's own identity
// names the entity, so the tenant match is implicit.
func (s *Service) MarkBySiteScan(ctx context.Context, tenantID string, typ registry.EntityType, entityID string) (Event, error) {
	ent, err := s.reg.ResolveByID(ctx, tenantID, typ, entityID)
	if err != nil {
		return Event{}, err
	}
	return s.toggle(ctx, ent)
}

func (s *Service) toggle(ctx context.Context, ent *registry.Entity) (Event, error) {
	last, err := s.repo.LastEventOnDay(ctx, ent.TenantID, ent.ID, s.now())
	if err != nil {
		return Event{}, err
	}
	next := StatusIn
	switch {
	case last == nil || last.Status == StatusAbsent:
		next = StatusIn
	case last.Status == StatusIn:
		next = StatusOut
	case last.Status == StatusOut:
		metrics.RejectedTotal.WithLabelValues("already_out").Inc()
		return Event{}, ErrAlreadyOut
	}
	// Mark revalidates under the per-day lock, so a concurrent scan that
	// lands between the read above and the append fails cleanly instead of
	// breaking alternation.
	return s.Mark(ctx, ent.TenantID, ent.Type, ent.ID, next, ModeQR)
}

// LatestStatus returns the status of the entity's most recent event on the
// given day, or "" when there is none. Pure read.
func (s *Service) LatestStatus(ctx context.Context, tenantID, entityID string, day time.Time) (Status, error) {
	last, err := s.repo.LastEventOnDay(ctx, tenantID, entityID, day)
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", nil
	}
	return last.Status, nil
}

// History returns the entity's events, newest first.
func (s *Service) History(ctx context.Context, tenantID, entityID string, limit, offset int) ([]Event, error) {
	return s.repo.ListByEntity(ctx, tenantID, entityID, limit, offset)
}

func (s *Service) notifyParent(ctx context.Context, evt Event) {
	if s.q == nil {
		return
	}
	body, _ := json.Marshal(notify.Notification{
		TenantID:    evt.TenantID,
		StudentID:   evt.EntityID,
		StudentName: evt.EntityName,
		Status:      string(evt.Status),
		Mode:        string(evt.Mode),
		Timestamp:   evt.Timestamp,
	})
	if err := s.q.Publish(ctx, queue.Message{Type: "parent-notify", Body: body}); err != nil {
		log.Printf("parent notify publish failed for %s: %v", evt.EntityID, err)
	}
}
