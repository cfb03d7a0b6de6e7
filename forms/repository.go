// Package forms persists forms, their questions and options, and their collaborators.
package forms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mbolis/quick-forms/model"
)

// querier is implemented by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db}
}

// Summary is a form as listed to its owner or collaborators.
type Summary struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AllowGuests bool      `json:"allow_anonymous"`
	IsLocked    bool      `json:"is_locked"`
	Role        string    `json:"role,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (repo *Repository) Create(ctx context.Context, ownerID int64, d *Draft) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var formID int64
	err = tx.
		QueryRowContext(ctx, `
			INSERT INTO form (owner_id, title, description, allow_guests, share_token)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`,
			ownerID,
			d.Title,
			d.Description,
			d.AllowGuests,
			uuid.NewString(),
		).
		Scan(&formID)
	if err != nil {
		return 0, fmt.Errorf("insert form: %w", err)
	}

	for i := range d.Questions {
		_, err = insertQuestion(ctx, tx, formID, i+1, &d.Questions[i])
		if err != nil {
			return 0, err
		}
	}

	return formID, tx.Commit()
}

func insertQuestion(ctx context.Context, tx *sql.Tx, formID int64, position int, q *QuestionDraft) (int64, error) {
	numeric, err := encodeNumeric(q.Numeric)
	if err != nil {
		return 0, err
	}

	var questionID int64
	err = tx.
		QueryRowContext(ctx, `
			INSERT INTO question (form_id, text, type, required, position, image, min_selections, max_selections, numeric_config)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			formID,
			q.Text,
			q.Type,
			q.Required,
			position,
			q.image,
			q.MinSelections,
			q.MaxSelections,
			numeric,
		).
		Scan(&questionID)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}

	for i, o := range q.Options {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO option (question_id, text, image, position) VALUES (?, ?, ?, ?)",
			questionID,
			o.Text,
			o.image,
			i+1,
		)
		if err != nil {
			return 0, fmt.Errorf("insert option: %w", err)
		}
	}
	return questionID, nil
}

func encodeNumeric(c *model.NumericConfig) (sql.NullString, error) {
	if c == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode numeric config: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

const selectForm = `
	SELECT id, owner_id, title, description, allow_guests, is_locked, version, share_token, created_at, updated_at
	FROM form`

// Get loads a form with its questions in position order, each with its options.
func (repo *Repository) Get(ctx context.Context, formID int64) (*model.Form, error) {
	return getForm(ctx, repo.db, selectForm+" WHERE id = ?", formID)
}

func (repo *Repository) GetByShareToken(ctx context.Context, token string) (*model.Form, error) {
	return getForm(ctx, repo.db, selectForm+" WHERE share_token = ?", token)
}

func getForm(ctx context.Context, q querier, query string, arg any) (*model.Form, error) {
	var f model.Form
	err := q.
		QueryRowContext(ctx, query, arg).
		Scan(&f.ID, &f.OwnerID, &f.Title, &f.Description, &f.AllowGuests, &f.IsLocked, &f.Version, &f.ShareToken, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("form not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select form: %w", err)
	}

	f.Questions, err = loadQuestions(ctx, q, f.ID)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func loadQuestions(ctx context.Context, q querier, formID int64) ([]model.Question, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, form_id, text, type, required, position, image, min_selections, max_selections, numeric_config
		FROM question
		WHERE form_id = ?
		ORDER BY position, id`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	questions := []model.Question{}
	index := map[int64]int{}
	for rows.Next() {
		var qn model.Question
		var minSel, maxSel sql.NullInt64
		var numeric sql.NullString
		err = rows.Scan(&qn.ID, &qn.FormID, &qn.Text, &qn.Type, &qn.Required, &qn.Position, &qn.Image, &minSel, &maxSel, &numeric)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		qn.MinSelections = intPtr(minSel)
		qn.MaxSelections = intPtr(maxSel)
		if numeric.Valid {
			qn.Numeric = &model.NumericConfig{}
			if err = json.Unmarshal([]byte(numeric.String), qn.Numeric); err != nil {
				return nil, fmt.Errorf("decode numeric config of question %d: %w", qn.ID, err)
			}
		}
		qn.Options = []model.Option{}
		index[qn.ID] = len(questions)
		questions = append(questions, qn)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT o.id, o.question_id, o.text, o.image, o.position
		FROM option o
		JOIN question q ON q.id = o.question_id
		WHERE q.form_id = ?
		ORDER BY o.position, o.id`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("select options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o model.Option
		err = rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Image, &o.Position)
		if err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("select options: %w", err)
	}
	return questions, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// ListAccessible lists the forms a user owns or collaborates on, most
// recently updated first. A non-empty query keeps only forms whose title or
// description contains it, ignoring case.
func (repo *Repository) ListAccessible(ctx context.Context, userID int64, query string) ([]Summary, error) {
	query = strings.TrimSpace(query)
	pattern := "%" + escapeLike(query) + "%"

	rows, err := repo.db.QueryContext(ctx, `
		SELECT f.id, f.title, f.description, f.allow_guests, f.is_locked, COALESCE(c.role, 'owner'), f.updated_at
		FROM form f
		LEFT JOIN collaborator c ON c.form_id = f.id AND c.user_id = ?
		WHERE (f.owner_id = ? OR c.user_id IS NOT NULL)
			AND (? = '' OR f.title LIKE ? ESCAPE '\' OR f.description LIKE ? ESCAPE '\')
		ORDER BY f.updated_at DESC, f.id DESC`,
		userID,
		userID,
		query,
		pattern,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("select forms: %w", err)
	}
	return scanSummaries(rows)
}

// ListPublic lists the forms open to guests.
func (repo *Repository) ListPublic(ctx context.Context) ([]Summary, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT id, title, description, allow_guests, is_locked, '', updated_at
		FROM form
		WHERE allow_guests = 1
		ORDER BY updated_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select forms: %w", err)
	}
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	defer rows.Close()

	forms := []Summary{}
	for rows.Next() {
		var s Summary
		err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.AllowGuests, &s.IsLocked, &s.Role, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan form: %w", err)
		}
		forms = append(forms, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select forms: %w", err)
	}
	return forms, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (repo *Repository) SetLocked(ctx context.Context, formID int64, locked bool) error {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE form SET is_locked = ?, updated_at = ? WHERE id = ?",
		locked,
		time.Now().UTC(),
		formID,
	)
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	return requireRow(res)
}

// Delete removes a form; questions, options, responses and answers go with it.
func (repo *Repository) Delete(ctx context.Context, formID int64) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM form WHERE id = ?", formID)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("form not found")
	}
	return nil
}
