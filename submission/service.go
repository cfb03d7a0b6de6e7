package submission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbolis/quick-forms/forms"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
)

type Service struct {
	db    *sql.DB
	forms *forms.Repository
}

func NewService(db *sql.DB) *Service {
	return &Service{db, forms.NewRepository(db)}
}

// Receipt confirms a recorded response.
type Receipt struct {
	ID        int64          `json:"id"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Responses []model.Answer `json:"responses"`
}

// Submit records a response to a form. identity is nil for a guest. Either
// every answer is valid and stored, or nothing is.
func (s *Service) Submit(ctx context.Context, formID int64, identity *model.Identity, raws []RawAnswer) (*Receipt, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.IsLocked {
		return nil, model.Forbidden("form is locked")
	}
	if !form.AllowGuests && identity == nil {
		return nil, model.Unauthenticated("you must be logged in to fill this form")
	}

	answers, err := Validate(form, raws)
	if err != nil {
		return nil, err
	}

	var userID *int64
	if identity != nil {
		userID = &identity.ID
	}
	receipt, err := s.write(ctx, formID, userID, answers)
	if err != nil {
		return nil, err
	}
	log.WithField("form", formID).Debugf("response %d recorded with %d answers", receipt.ID, len(receipt.Responses))
	return receipt, nil
}

func (s *Service) write(ctx context.Context, formID int64, userID *int64, answers []Answer) (*Receipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// the form may have been locked since it was read
	var locked bool
	err = tx.
		QueryRowContext(ctx, "SELECT is_locked FROM form WHERE id = ?", formID).
		Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("form not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select form: %w", err)
	}
	if locked {
		return nil, model.Forbidden("form is locked")
	}

	receipt := &Receipt{
		Success:   true,
		Message:   "response recorded",
		Responses: make([]model.Answer, 0, len(answers)),
	}
	err = tx.
		QueryRowContext(ctx,
			"INSERT INTO response (form_id, user_id, submitted_at) VALUES (?, ?, ?) RETURNING id",
			formID,
			userID,
			time.Now().UTC(),
		).
		Scan(&receipt.ID)
	if err != nil {
		return nil, fmt.Errorf("insert response: %w", err)
	}

	insertAnswer, err := tx.PrepareContext(ctx, "INSERT INTO answer (response_id, question_id, answer_text, image) VALUES (?, ?, ?, ?) RETURNING id")
	if err != nil {
		return nil, fmt.Errorf("prepare answer: %w", err)
	}
	defer insertAnswer.Close()

	insertOption, err := tx.PrepareContext(ctx, "INSERT INTO answer_option (answer_id, option_id) VALUES (?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare answer option: %w", err)
	}
	defer insertOption.Close()

	for _, a := range answers {
		text := storedText(a.Value)
		stored := model.Answer{ResponseID: receipt.ID, QuestionID: a.Question.ID}
		if text.Valid {
			stored.Text = &text.String
		}

		err = insertAnswer.
			QueryRowContext(ctx, receipt.ID, a.Question.ID, text, a.Image).
			Scan(&stored.ID)
		if err != nil {
			return nil, fmt.Errorf("insert answer: %w", err)
		}

		switch v := a.Value.(type) {
		case ChoicesValue:
			for _, optionID := range v.OptionIDs {
				_, err = insertOption.ExecContext(ctx, stored.ID, optionID)
				if err != nil {
					return nil, fmt.Errorf("insert answer option: %w", err)
				}
			}
			stored.OptionIDs = v.OptionIDs
		case ChoiceValue:
			stored.OptionIDs = []int64{v.OptionID}
		case TextValue, NumberValue, DateValue, TimeValue:
		default:
			return nil, fmt.Errorf("unhandled answer value %T", v)
		}

		receipt.Responses = append(receipt.Responses, stored)
	}

	return receipt, tx.Commit()
}
