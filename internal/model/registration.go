package model

import "time"

type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "Pendente"
	RegistrationStatusConfirmed RegistrationStatus = "Confirmada"
	RegistrationStatusCancelled RegistrationStatus = "Cancelada"
)

// Re-entering the current status is allowed; nothing leads back to Pendente.
var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationStatusPending:   {RegistrationStatusPending, RegistrationStatusConfirmed, RegistrationStatusCancelled},
	RegistrationStatusConfirmed: {RegistrationStatusConfirmed, RegistrationStatusCancelled},
	RegistrationStatusCancelled: {RegistrationStatusCancelled, RegistrationStatusConfirmed},
}

func (s RegistrationStatus) IsValid() bool {
	_, ok := registrationTransitions[s]
	return ok
}

func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	for _, to := range registrationTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// RegistrationStatusesLeadingTo returns every status from which next is reachable.
func RegistrationStatusesLeadingTo(next RegistrationStatus) []RegistrationStatus {
	res := make([]RegistrationStatus, 0, 3)
	for _, from := range []RegistrationStatus{RegistrationStatusPending, RegistrationStatusConfirmed, RegistrationStatusCancelled} {
		if from.CanTransitionTo(next) {
			res = append(res, from)
		}
	}
	return res
}

type Registration struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id" validate:"required"`
	EventID            string             `json:"event_id" validate:"required"`
	Status             RegistrationStatus `json:"status"`
	CancellationReason *string            `json:"cancellation_reason,omitempty"`
	Date               time.Time          `json:"date"`
}
