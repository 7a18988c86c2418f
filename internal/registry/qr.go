package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// SiteQR is the distinguished payload printed on the shared school-gate
// poster. Scanning it toggles the scanner's own attendance.
const SiteQR = "ROLLCALL/SITE"

// ErrInvalidPayload is returned when a QR payload is not parseable JSON or
// is missing required fields.
var ErrInvalidPayload = errors.New("invalid qr payload")

// QRPayload is the structured data encoded in a personal QR code. Exactly
// one of StudentID / TeacherID is set.
type QRPayload struct {
	StudentID string `json:"student_id,omitempty"`
	TeacherID string `json:"teacher_id,omitempty"`
	SchoolID  string `json:"school_id"`
}

// EntityType derives the entity kind from which identifier field is set.
func (p QRPayload) EntityType() EntityType {
	if p.StudentID != "" {
		return TypeStudent
	}
	return TypeTeacher
}

// EntityID returns whichever identifier the payload carries.
func (p QRPayload) EntityID() string {
	if p.StudentID != "" {
		return p.StudentID
	}
	return p.TeacherID
}

// ParseQRPayload decodes a scanned payload. The shared site QR is not a
// personal payload and is rejected here; callers check for SiteQR first.
func ParseQRPayload(raw string) (QRPayload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == SiteQR {
		return QRPayload{}, ErrInvalidPayload
	}
	var p QRPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return QRPayload{}, ErrInvalidPayload
	}
	if p.SchoolID == "" || (p.StudentID == "" && p.TeacherID == "") {
		return QRPayload{}, ErrInvalidPayload
	}
	return p, nil
}

// ResolveByQRPayload parses a personal QR payload and resolves the entity it
// names. The returned tenant id is the payload's school, which callers match
// against their own tenant.
func (s *Service) ResolveByQRPayload(ctx context.Context, raw string) (*Entity, string, error) {
	p, err := ParseQRPayload(raw)
	if err != nil {
		return nil, "", err
	}
	e, err := s.ResolveByID(ctx, p.SchoolID, p.EntityType(), p.EntityID())
	if err != nil {
		return nil, "", err
	}
	return e, p.SchoolID, nil
}
