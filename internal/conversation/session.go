package conversation

import "time"

type State string

const (
	Idle                         State = "idle"
	AwaitingQueueConfirmation    State = "awaiting_queue_confirmation"
	AwaitingReminderConfirmation State = "awaiting_reminder_confirmation"
)

// Session is the dialog state of one phone. Phone is ciphertext.
type Session struct {
	Phone string `gorm:"primaryKey"`
	State State  `gorm:"type:text;not null"`
	// CaseID is the case awaiting reminder confirmation.
	CaseID string
	// CitationID is the id awaiting queue confirmation.
	CitationID string
	UpdatedAt  time.Time `gorm:"not null"`
}

type Intent int

const (
	Other Intent = iota
	Yes
	No
)

var vocabulary = map[string]Intent{
	"YES": Yes, "Y": Yes, "YEA": Yes, "YEAH": Yes, "YEP": Yes, "YUP": Yes, "SURE": Yes, "OK": Yes, "OKAY": Yes,
	"NO": No, "N": No, "NOPE": No, "NAH": No,
}

// Classify maps a reply onto the fixed vocabulary. Case and surrounding
// punctuation are ignored.
func Classify(text string) Intent {
	return vocabulary[normalizeWord(text)]
}

type action int

const (
	actReprompt action = iota
	actConfirmReminder
	actConfirmQueue
	actDecline
)

type transition struct {
	next State
	act  action
}

// transitions covers the awaiting states; Idle input is an id lookup.
var transitions = map[State]map[Intent]transition{
	AwaitingReminderConfirmation: {
		Yes:   {Idle, actConfirmReminder},
		No:    {Idle, actDecline},
		Other: {AwaitingReminderConfirmation, actReprompt},
	},
	AwaitingQueueConfirmation: {
		Yes:   {Idle, actConfirmQueue},
		No:    {Idle, actDecline},
		Other: {AwaitingQueueConfirmation, actReprompt},
	},
}
