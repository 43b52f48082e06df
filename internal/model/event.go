package model

import "time"

type EventStatus string

const (
	EventStatusScheduled  EventStatus = "Programado"
	EventStatusInProgress EventStatus = "EmAndamento"
	EventStatusCompleted  EventStatus = "Concluído"
	EventStatusCancelled  EventStatus = "Cancelado"
)

// eventTransitions lists, for every status, the statuses it may move to.
var eventTransitions = map[EventStatus][]EventStatus{
	EventStatusScheduled:  {EventStatusInProgress, EventStatusCancelled},
	EventStatusInProgress: {EventStatusCompleted, EventStatusCancelled},
	EventStatusCompleted:  nil,
	EventStatusCancelled:  nil,
}

func (s EventStatus) IsValid() bool {
	_, ok := eventTransitions[s]
	return ok
}

func (s EventStatus) IsTerminal() bool {
	return s.IsValid() && len(eventTransitions[s]) == 0
}

func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	for _, to := range eventTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// EventStatusesLeadingTo returns every status from which next is reachable in one step.
func EventStatusesLeadingTo(next EventStatus) []EventStatus {
	res := make([]EventStatus, 0, 2)
	for _, from := range []EventStatus{EventStatusScheduled, EventStatusInProgress, EventStatusCompleted, EventStatusCancelled} {
		if from.CanTransitionTo(next) {
			res = append(res, from)
		}
	}
	return res
}

type EventType string

const (
	EventTypeRehearsal   EventType = "Ensaio"
	EventTypePerformance EventType = "Apresentacao"
	EventTypeMeeting     EventType = "Reuniao"
	EventTypeWorkshop    EventType = "Oficina"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventTypeRehearsal, EventTypePerformance, EventTypeMeeting, EventTypeWorkshop:
		return true
	}
	return false
}

type Event struct {
	ID             string      `json:"id"`
	Name           string      `json:"name" validate:"required"`
	Date           time.Time   `json:"date"`
	StartTime      TimeOfDay   `json:"start_time"`
	EndTime        TimeOfDay   `json:"end_time"`
	Type           EventType   `json:"type" validate:"required"`
	Status         EventStatus `json:"status"`
	TeamIDs        []string    `json:"team_ids"`
	ParticipantIDs []string    `json:"participant_ids"`
	MeanScore      float64     `json:"mean_score"`
	CreatedAt      *time.Time  `json:"created_at,omitempty"`
	UpdatedAt      *time.Time  `json:"updated_at,omitempty"`
}

type EventPatch struct {
	Name      *string    `json:"name,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	StartTime *TimeOfDay `json:"start_time,omitempty"`
	EndTime   *TimeOfDay `json:"end_time,omitempty"`
	Type      *EventType `json:"type,omitempty"`
}
