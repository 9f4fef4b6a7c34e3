package models

// Status is the bounty lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusClaimed   Status = "claimed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusClaimed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusClaimed || s == StatusExpired || s == StatusCancelled
}

// CanTransitionTo allows only active -> {claimed, expired, cancelled}.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && next.IsTerminal()
}

// Difficulty is a creator-declared hint for hunters.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}
