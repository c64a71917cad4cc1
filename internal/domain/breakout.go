package domain

type BreakoutID string

// PeerRef is the {id, username} pair clients use to reference a participant.
type PeerRef struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

func RefOf(u User) PeerRef {
	return PeerRef{ID: u.ID, Username: u.Username}
}

// Breakout is the immutable description of a breakout session.
type Breakout struct {
	ID         BreakoutID
	Instructor PeerRef
	Student    PeerRef
}

// Involves reports whether uid is one of the session's two participants.
func (b *Breakout) Involves(uid UserID) bool {
	return b.Instructor.ID == uid || b.Student.ID == uid
}
