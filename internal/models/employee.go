package models

type Employee struct {
	ID           int64               `json:"id"`
	Name         string              `json:"name"`
	Position     string              `json:"position,omitempty"`
	PasswordHash string              `json:"-"`
	Status       string              `json:"status,omitempty"`
	WindowNumber *int                `json:"window_number,omitempty"`
	Topics       []int64             `json:"topics"`
	Schedule     map[string]DayHours `json:"schedule,omitempty"`
	Priority     int                 `json:"priority"`
}

func (e Employee) HasTopic(questionID int64) bool {
	for _, id := range e.Topics {
		if id == questionID {
			return true
		}
	}
	return false
}

type Question struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}
