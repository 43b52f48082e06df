package model

import "slices"

type Team struct {
	ID             string   `json:"id"`
	Name           string   `json:"name" validate:"required"`
	ResponsibleID  *string  `json:"responsible_id,omitempty"`
	MemberIDs      []string `json:"member_ids"`
	MaxMembers     int      `json:"max_members" validate:"gte=0"`
	EventIDs       []string `json:"event_ids"`
	MeanScore      float64  `json:"mean_score"`
	MeanAttendance float64  `json:"mean_attendance"`
}

func (t *Team) HasMember(userID string) bool {
	return slices.Contains(t.MemberIDs, userID)
}

// Unlimited reports whether the team accepts any number of members.
func (t *Team) Unlimited() bool {
	return t.MaxMembers == 0
}

// HasRoomFor reports whether count members still leave room for one more.
func (t *Team) HasRoomFor(count int) bool {
	return t.Unlimited() || count < t.MaxMembers
}
