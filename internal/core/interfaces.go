package core

import "github.com/dkeye/Huddle/internal/domain"

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

func (r *PublishResult) Merge(o PublishResult) {
	r.SendTo += o.SendTo
	r.Dropped = append(r.Dropped, o.Dropped...)
}

// ParticipantDTO is a read-only presence entry (no transport fields).
type ParticipantDTO struct {
	ID             domain.UserID `json:"id"`
	Username       string        `json:"username"`
	Role           domain.Role   `json:"role"`
	IsBroadcasting bool          `json:"isBroadcasting"`
}

type BreakoutInfo struct {
	ID         domain.BreakoutID `json:"roomId"`
	Instructor domain.PeerRef    `json:"instructor"`
	Student    domain.PeerRef    `json:"student"`
	State      string            `json:"state"`
	Attached   int               `json:"attached"`
}
