package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/slganesh1/lume-telehealth/internal/domain"
)

// Directory resolves whether a user may join a call. The record is fetched
// once by the manager and passed in so authorization never costs a second
// store round-trip.
type Directory interface {
	CanJoin(ctx context.Context, record *domain.Call, userID uuid.UUID, role domain.Role) bool
}

// RecordDirectory authorizes against the parties named on the call record:
// the scheduled patient may join as patient, the scheduled clinician as
// clinician, nobody else.
type RecordDirectory struct{}

func (RecordDirectory) CanJoin(_ context.Context, record *domain.Call, userID uuid.UUID, role domain.Role) bool {
	switch role {
	case domain.RolePatient:
		return record.PatientID == userID
	case domain.RoleClinician:
		return record.ClinicianID == userID
	default:
		return false
	}
}
