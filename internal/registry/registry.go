package registry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// EntityType distinguishes the two kinds of people a school tracks.
type EntityType string

const (
	TypeStudent EntityType = "student"
	TypeTeacher EntityType = "teacher"
)

// Valid reports whether the type is one of the supported values.
func (t EntityType) Valid() bool {
	return t == TypeStudent || t == TypeTeacher
}

var (
	// ErrEntityNotFound is returned when no entity matches the identifier
	// within the tenant.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrTenantNotFound is returned when the tenant itself does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
)

// Tenant is one school. OpeningTime ("HH:MM", local time) drives the
// late-arrival classification on the read side.
type Tenant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OpeningTime string    `json:"opening_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// Entity is a student or teacher registered with a tenant. ID is the
// external identifier (student_id / teacher_id) and is unique per tenant.
type Entity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	TenantID     string     `json:"tenant_id"`
	Type         EntityType `json:"type"`
	Class        string     `json:"class,omitempty"`
	Subject      string     `json:"subject,omitempty"`
	RollNo       string     `json:"roll_no,omitempty"`
	FaceEnrolled bool       `json:"face_enrolled"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Repository persists tenants and entities. Lookups return (nil, nil) when
// the row does not exist; the service maps that to the sentinel errors.
type Repository interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	SaveTenant(ctx context.Context, t Tenant) error

	GetEntity(ctx context.Context, tenantID string, typ EntityType, id string) (*Entity, error)
	FindByRollNoOrID(ctx context.Context, tenantID, identifier string) (*Entity, error)
	// ListEntities returns the tenant's entities; typ == "" means both kinds.
	ListEntities(ctx context.Context, tenantID string, typ EntityType) ([]Entity, error)
	UpsertEntity(ctx context.Context, e Entity) error
	// DeleteEntity removes the entity and cascades to its attendance events.
	DeleteEntity(ctx context.Context, tenantID string, typ EntityType, id string) error
}

// Service resolves entities by external identifier, roll number, or QR
// payload, scoped to a tenant.
type Service struct {
	repo Repository
}

// NewService creates a registry service backed by a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Tenant fetches a tenant by id.
func (s *Service) Tenant(ctx context.Context, id string) (*Tenant, error) {
	t, err := s.repo.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// SaveTenant creates or updates a tenant record.
func (s *Service) SaveTenant(ctx context.Context, t Tenant) error {
	if t.ID == "" {
		return errors.New("tenant id required")
	}
	if t.OpeningTime != "" {
		if _, err := time.Parse("15:04", t.OpeningTime); err != nil {
			return errors.New("opening time must be HH:MM")
		}
	}
	return s.repo.SaveTenant(ctx, t)
}

// ResolveByID looks up an entity by its external identifier within a tenant.
func (s *Service) ResolveByID(ctx context.Context, tenantID string, typ EntityType, id string) (*Entity, error) {
	e, err := s.repo.GetEntity(ctx, tenantID, typ, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEntityNotFound
	}
	return e, nil
}

// ResolveByRollNoOrID resolves a guard-submitted identifier, which may be a
// roll number rather than the system identifier.
func (s *Service) ResolveByRollNoOrID(ctx context.Context, tenantID, identifier string) (*Entity, error) {
	e, err := s.repo.FindByRollNoOrID(ctx, tenantID, identifier)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrEntityNotFound
	}
	return e, nil
}

// Register validates and stores a new entity.
func (s *Service) Register(ctx context.Context, e Entity) (*Entity, error) {
	if e.TenantID == "" || e.ID == "" {
		return nil, errors.New("tenant id and entity id required")
	}
	if !e.Type.Valid() {
		return nil, errors.New("entity type must be student or teacher")
	}
	if strings.TrimSpace(e.Name) == "" {
		return nil, errors.New("name required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := s.repo.UpsertEntity(ctx, e); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns a tenant's entities, optionally filtered by type.
func (s *Service) List(ctx context.Context, tenantID string, typ EntityType) ([]Entity, error) {
	return s.repo.ListEntities(ctx, tenantID, typ)
}

// Delete removes an entity and all of its attendance events.
func (s *Service) Delete(ctx context.Context, tenantID string, typ EntityType, id string) error {
	e, err := s.repo.GetEntity(ctx, tenantID, typ, id)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrEntityNotFound
	}
	return s.repo.DeleteEntity(ctx, tenantID, typ, id)
}
