// Package submission validates a filled-in form and records it as a response.
package submission

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/mbolis/quick-forms/model"
)

// Value is a validated answer, with one variant per question type.
type Value interface {
	isValue()
}

type TextValue struct{ Text string }

type NumberValue struct{ Number float64 }

type DateValue struct{ Date time.Time }

type TimeValue struct{ Time time.Time }

// ChoiceValue is the option picked for a single_choice question.
type ChoiceValue struct{ OptionID int64 }

// ChoicesValue holds the distinct options picked for a multiple_choice question.
type ChoicesValue struct{ OptionIDs []int64 }

func (TextValue) isValue()    {}
func (NumberValue) isValue()  {}
func (DateValue) isValue()    {}
func (TimeValue) isValue()    {}
func (ChoiceValue) isValue()  {}
func (ChoicesValue) isValue() {}

// Answer is a validated answer to one question of the form.
type Answer struct {
	Question *model.Question
	Value    Value
	Image    []byte
}

// storedText is the answer_text column for a value; multiple choices live
// in answer_option instead.
func storedText(v Value) sql.NullString {
	switch v := v.(type) {
	case TextValue:
		return sql.NullString{String: v.Text, Valid: true}
	case NumberValue:
		return sql.NullString{String: strconv.FormatFloat(v.Number, 'f', -1, 64), Valid: true}
	case DateValue:
		return sql.NullString{String: v.Date.Format(dateLayout), Valid: true}
	case TimeValue:
		return sql.NullString{String: v.Time.Format(timeLayout), Valid: true}
	case ChoiceValue:
		return sql.NullString{String: strconv.FormatInt(v.OptionID, 10), Valid: true}
	case ChoicesValue:
		return sql.NullString{}
	}
	panic("submission: unknown answer value")
}

// RawAnswer is one answer as submitted. The value is read from "answer";
// the fields sent by the filling page ("selectedOptionIds",
// "selectedOptionId", "value") are accepted in its place.
type RawAnswer struct {
	QuestionID        int64           `json:"questionId"`
	Answer            json.RawMessage `json:"answer,omitempty"`
	Value             json.RawMessage `json:"value,omitempty"`
	SelectedOptionID  json.RawMessage `json:"selectedOptionId,omitempty"`
	SelectedOptionIDs json.RawMessage `json:"selectedOptionIds,omitempty"`
	Image             json.RawMessage `json:"image,omitempty"`

	upload []byte
}

// raw picks the submitted value. "answer" comes first, then the field the
// filling page uses for the question type; fields left at their blank
// defaults ("" or []) are passed over.
func (a *RawAnswer) raw(t model.QuestionType) json.RawMessage {
	var candidates []json.RawMessage
	switch t {
	case model.SingleChoice:
		candidates = []json.RawMessage{a.Answer, a.SelectedOptionID, a.Value, a.SelectedOptionIDs}
	case model.MultipleChoice:
		candidates = []json.RawMessage{a.Answer, a.SelectedOptionIDs, a.SelectedOptionID, a.Value}
	default:
		candidates = []json.RawMessage{a.Answer, a.Value, a.SelectedOptionID, a.SelectedOptionIDs}
	}

	for _, raw := range candidates {
		if len(bytes.TrimSpace(raw)) == 0 || isNull(raw) {
			continue
		}
		v, err := decode(raw)
		if err != nil || !isBlank(v) {
			return raw
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Submission is the body of a submit request.
type Submission struct {
	Responses []RawAnswer `json:"responses"`
	Answers   []RawAnswer `json:"answers,omitempty"`
}

func (s *Submission) All() []RawAnswer {
	return append(s.Responses, s.Answers...)
}

// AttachUploads hands uploaded files, in order, to the answers whose image
// is a placeholder object rather than base64 text.
func (s *Submission) AttachUploads(files [][]byte) error {
	next := 0
	for _, list := range [][]RawAnswer{s.Responses, s.Answers} {
		for i := range list {
			img := bytes.TrimSpace(list[i].Image)
			if len(img) == 0 || img[0] != '{' {
				continue
			}
			if next == len(files) {
				return model.Invalid("image for question %d was not uploaded", list[i].QuestionID)
			}
			list[i].upload = files[next]
			next++
		}
	}
	return nil
}

func (a *RawAnswer) image() ([]byte, error) {
	if a.upload != nil {
		return a.upload, nil
	}
	if len(a.Image) == 0 || isNull(a.Image) {
		return nil, nil
	}
	var encoded string
	if err := json.Unmarshal(a.Image, &encoded); err != nil || encoded == "" {
		return nil, nil
	}
	return model.DecodeImage(encoded)
}
