package domain

// Participant is a signed-in identity. Transports are tracked by the registry,
// never here.
type Participant struct {
	User         User
	Broadcasting bool
}

func NewParticipant(user *User) *Participant {
	return &Participant{User: *user}
}
