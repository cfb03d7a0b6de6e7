package forms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbolis/quick-forms/model"
)

// Update applies an edited draft to a stored form. Questions are matched by
// id and updated in place, so their answers survive; unknown or missing ids
// are inserted as new questions, and stored questions left out of the draft
// are deleted. Options are matched the same way, by id and then by text.
//
// When the draft carries a version it must match the stored one. Every
// update bumps the version.
func (repo *Repository) Update(ctx context.Context, formID int64, d *Draft) (version int, err error) {
	if err = d.Validate(); err != nil {
		return
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	version, err = bumpVersion(ctx, tx, formID, d.Version)
	if err != nil {
		return
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE form SET title = ?, description = ?, allow_guests = ? WHERE id = ?",
		d.Title,
		d.Description,
		d.AllowGuests,
		formID,
	)
	if err != nil {
		return 0, fmt.Errorf("update form: %w", err)
	}

	stored, err := loadQuestions(ctx, tx, formID)
	if err != nil {
		return
	}
	byID := make(map[int64]*model.Question, len(stored))
	for i := range stored {
		byID[stored[i].ID] = &stored[i]
	}

	kept := map[int64]bool{}
	for i := range d.Questions {
		q := &d.Questions[i]
		if old, ok := byID[q.ID]; ok && !kept[q.ID] {
			kept[q.ID] = true
			err = updateQuestion(ctx, tx, old, i+1, q)
		} else {
			_, err = insertQuestion(ctx, tx, formID, i+1, q)
		}
		if err != nil {
			return
		}
	}

	for _, old := range stored {
		if kept[old.ID] {
			continue
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM question WHERE id = ?", old.ID)
		if err != nil {
			return 0, fmt.Errorf("delete question: %w", err)
		}
	}

	return version, tx.Commit()
}

// bumpVersion increments the version of a form, failing with Conflict when
// expected is set and no longer matches.
func bumpVersion(ctx context.Context, tx *sql.Tx, formID int64, expected *int) (int, error) {
	var current int
	err := tx.
		QueryRowContext(ctx, "SELECT version FROM form WHERE id = ?", formID).
		Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.NotFound("form not found")
	}
	if err != nil {
		return 0, fmt.Errorf("select form version: %w", err)
	}

	if expected != nil && *expected != current {
		return 0, model.Conflict("form was changed by someone else (version %d, yours is %d): reload it and try again", current, *expected)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE form SET version = ?, updated_at = ? WHERE id = ?",
		current+1,
		time.Now().UTC(),
		formID,
	)
	if err != nil {
		return 0, fmt.Errorf("update form version: %w", err)
	}
	return current + 1, nil
}

func updateQuestion(ctx context.Context, tx *sql.Tx, old *model.Question, position int, q *QuestionDraft) error {
	image := old.Image
	if q.image != nil {
		image = q.image
	} else if q.dropsImage() {
		image = nil
	}

	numeric, err := encodeNumeric(q.Numeric)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE question
		SET text = ?, type = ?, required = ?, position = ?, image = ?, min_selections = ?, max_selections = ?, numeric_config = ?
		WHERE id = ?`,
		q.Text,
		q.Type,
		q.Required,
		position,
		image,
		q.MinSelections,
		q.MaxSelections,
		numeric,
		old.ID,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}

	return mergeOptions(ctx, tx, old, q)
}

func mergeOptions(ctx context.Context, tx *sql.Tx, old *model.Question, q *QuestionDraft) error {
	matched := map[int64]bool{}
	match := func(o *OptionDraft) *model.Option {
		for i := range old.Options {
			if stored := &old.Options[i]; o.ID != 0 && stored.ID == o.ID && !matched[stored.ID] {
				return stored
			}
		}
		for i := range old.Options {
			if stored := &old.Options[i]; stored.Text == o.Text && !matched[stored.ID] {
				return stored
			}
		}
		return nil
	}

	for i := range q.Options {
		o := &q.Options[i]
		stored := match(o)
		if stored == nil {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO option (question_id, text, image, position) VALUES (?, ?, ?, ?)",
				old.ID,
				o.Text,
				o.image,
				i+1,
			)
			if err != nil {
				return fmt.Errorf("insert option: %w", err)
			}
			continue
		}

		matched[stored.ID] = true
		image := stored.Image
		if o.image != nil {
			image = o.image
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE option SET text = ?, image = ?, position = ? WHERE id = ?",
			o.Text,
			image,
			i+1,
			stored.ID,
		)
		if err != nil {
			return fmt.Errorf("update option: %w", err)
		}
	}

	for _, stored := range old.Options {
		if matched[stored.ID] {
			continue
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM option WHERE id = ?", stored.ID)
		if err != nil {
			return fmt.Errorf("delete option: %w", err)
		}
	}
	return nil
}

// Reorder moves the given questions to the front of the form, in the given
// order; questions left out keep their relative order after them. Every id
// must belong to the form.
func (repo *Repository) Reorder(ctx context.Context, formID int64, order []int64, expectedVersion *int) (version int, err error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	version, err = bumpVersion(ctx, tx, formID, expectedVersion)
	if err != nil {
		return
	}

	stored, err := loadQuestions(ctx, tx, formID)
	if err != nil {
		return
	}
	belongs := make(map[int64]bool, len(stored))
	for _, q := range stored {
		belongs[q.ID] = true
	}

	placed := map[int64]bool{}
	ids := make([]int64, 0, len(stored))
	for _, id := range order {
		if !belongs[id] {
			return 0, model.Invalid("question %d does not belong to this form", id)
		}
		if placed[id] {
			return 0, model.Invalid("question %d is listed twice", id)
		}
		placed[id] = true
		ids = append(ids, id)
	}
	for _, q := range stored {
		if !placed[q.ID] {
			ids = append(ids, q.ID)
		}
	}

	stmt, err := tx.PrepareContext(ctx, "UPDATE question SET position = ? WHERE id = ?")
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		_, err = stmt.ExecContext(ctx, i+1, id)
		if err != nil {
			return 0, fmt.Errorf("update question position: %w", err)
		}
	}

	return version, tx.Commit()
}
