package model

import (
	"math"
	"time"
)

type QuestionType string

const (
	ShortText      QuestionType = "short_text"
	LongText       QuestionType = "long_text"
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	Numeric        QuestionType = "numeric"
	Date           QuestionType = "date"
	Time           QuestionType = "time"
)

func (t QuestionType) Valid() bool {
	switch t {
	case ShortText, LongText, SingleChoice, MultipleChoice, Numeric, Date, Time:
		return true
	}
	return false
}

func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultipleChoice
}

// Identity is the authenticated filler or editor, as carried by a bearer token.
type Identity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Form struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AllowGuests bool       `json:"allow_anonymous"`
	IsLocked    bool       `json:"is_locked"`
	Version     int        `json:"version"`
	ShareToken  string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Questions   []Question `json:"-"`
}

// Question returns the question of the form with the given id.
func (f *Form) Question(id int64) (*Question, bool) {
	for i := range f.Questions {
		if f.Questions[i].ID == id {
			return &f.Questions[i], true
		}
	}
	return nil, false
}

type Question struct {
	ID            int64          `json:"id"`
	FormID        int64          `json:"form_id"`
	Text          string         `json:"text"`
	Type          QuestionType   `json:"type"`
	Required      bool           `json:"is_required"`
	Position      int            `json:"position"`
	Image         []byte         `json:"imageBase64,omitempty"`
	MinSelections *int           `json:"minSelections,omitempty"`
	MaxSelections *int           `json:"maxSelections,omitempty"`
	Numeric       *NumericConfig `json:"numericConfig,omitempty"`
	Options       []Option       `json:"options"`
}

type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"-"`
	Text       string `json:"text"`
	Image      []byte `json:"imageBase64,omitempty"`
	Position   int    `json:"-"`
}

// NumericConfig restricts the values a numeric question accepts, either to
// an explicit list or to the sequence start, start+step, ... up to end.
type NumericConfig struct {
	Mode   string    `json:"mode" validate:"oneof=list range"`
	Values []float64 `json:"values,omitempty"`
	Start  *float64  `json:"start,omitempty"`
	End    *float64  `json:"end,omitempty"`
	Step   *float64  `json:"step,omitempty"`
}

const numericEpsilon = 1e-9

func (c *NumericConfig) Allows(v float64) bool {
	switch c.Mode {
	case "list":
		for _, allowed := range c.Values {
			if math.Abs(allowed-v) < numericEpsilon {
				return true
			}
		}
		return false
	case "range":
		if c.Start == nil || c.End == nil {
			return true
		}
		if v < *c.Start-numericEpsilon || v > *c.End+numericEpsilon {
			return false
		}
		if c.Step == nil || *c.Step == 0 {
			return true
		}
		steps := (v - *c.Start) / *c.Step
		return math.Abs(steps-math.Round(steps)) < numericEpsilon
	}
	return true
}

type Response struct {
	ID          int64     `json:"id"`
	FormID      int64     `json:"form_id"`
	UserID      *int64    `json:"user_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Answer struct {
	ID         int64   `json:"id"`
	ResponseID int64   `json:"-"`
	QuestionID int64   `json:"question_id"`
	Text       *string `json:"answer_text"`
	Image      []byte  `json:"-"`
	OptionIDs  []int64 `json:"option_ids,omitempty"`
}

type Collaborator struct {
	ID     int64  `json:"id"`
	FormID int64  `json:"form_id"`
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}
