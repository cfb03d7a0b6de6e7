// Package results reads the responses collected by forms.
package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mbolis/quick-forms/access"
	"github.com/mbolis/quick-forms/forms"
	"github.com/mbolis/quick-forms/model"
)

type Reader struct {
	db     *sql.DB
	access *access.Resolver
	forms  *forms.Repository
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{db, access.NewResolver(db), forms.NewRepository(db)}
}

type ResponseSummary struct {
	ResponseID  int64     `json:"response_id"`
	FormID      int64     `json:"form_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	UserName    *string   `json:"user_name"`
	UserEmail   *string   `json:"user_email"`
	FormTitle   string    `json:"form_title"`
}

type FormResults struct {
	FormID      int64             `json:"form_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Role        string            `json:"role"`
	Responses   []ResponseSummary `json:"responses"`
}

// ListResults lists every form the user owns or collaborates on, each with
// its responses, newest first.
func (rd *Reader) ListResults(ctx context.Context, userID int64) ([]FormResults, error) {
	accessible, err := rd.forms.ListAccessible(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	results := make([]FormResults, len(accessible))
	index := map[int64]int{}
	for i, f := range accessible {
		results[i] = FormResults{
			FormID:      f.ID,
			Title:       f.Title,
			Description: f.Description,
			Role:        f.Role,
			Responses:   []ResponseSummary{},
		}
		index[f.ID] = i
	}

	rows, err := rd.db.QueryContext(ctx, `
		SELECT r.id, r.form_id, r.submitted_at, u.name, u.email, f.title
		FROM response r
		JOIN form f ON f.id = r.form_id
		LEFT JOIN user u ON u.id = r.user_id
		LEFT JOIN collaborator c ON c.form_id = f.id AND c.user_id = ?
		WHERE f.owner_id = ? OR c.user_id IS NOT NULL
		ORDER BY r.submitted_at DESC, r.id DESC`,
		userID,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s ResponseSummary
		err = rows.Scan(&s.ResponseID, &s.FormID, &s.SubmittedAt, &s.UserName, &s.UserEmail, &s.FormTitle)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if i, ok := index[s.FormID]; ok {
			results[i].Responses = append(results[i].Responses, s)
		}
	}
	return results, rows.Err()
}

type ResponseHeader struct {
	ResponseID  int64     `json:"response_id"`
	FormID      int64     `json:"form_id"`
	UserID      *int64    `json:"user_id"`
	UserName    *string   `json:"user_name"`
	UserEmail   *string   `json:"user_email"`
	SubmittedAt time.Time `json:"submitted_at"`
	FormTitle   string    `json:"form_title"`
}

type AnsweredQuestion struct {
	ID       int64              `json:"id"`
	Text     string             `json:"text"`
	Type     model.QuestionType `json:"type"`
	Required bool               `json:"is_required"`
	Options  []model.Option     `json:"options"`
	// Answer is the stored answer: its text, the option id of a single
	// choice, or the option ids of a multiple choice.
	Answer      any    `json:"answer"`
	Display     string `json:"display"`
	ImageBase64 []byte `json:"imageBase64,omitempty"`
}

type ResponseDetail struct {
	Response  ResponseHeader     `json:"response"`
	Questions []AnsweredQuestion `json:"questions"`
}

// ResponseDetail rebuilds one response against the questions of its form.
// Only the form owner may read it.
func (rd *Reader) ResponseDetail(ctx context.Context, responseID, userID int64) (*ResponseDetail, error) {
	header, err := rd.header(ctx, responseID)
	if model.IsKind(err, model.KindNotFound) {
		// a missing response reads like one the user may not see
		return nil, model.Forbidden("you do not have permission to %s", access.ViewResponse)
	}
	if err != nil {
		return nil, err
	}
	if _, err = access.Require(ctx, rd.access, header.FormID, userID, access.ViewResponse); err != nil {
		return nil, err
	}

	form, err := rd.forms.Get(ctx, header.FormID)
	if err != nil {
		return nil, err
	}
	answers, err := rd.answers(ctx, "a.response_id = ?", responseID)
	if err != nil {
		return nil, err
	}
	byQuestion := map[int64]*storedAnswer{}
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	detail := &ResponseDetail{Response: *header, Questions: make([]AnsweredQuestion, len(form.Questions))}
	for i := range form.Questions {
		q := &form.Questions[i]
		aq := AnsweredQuestion{ID: q.ID, Text: q.Text, Type: q.Type, Required: q.Required, Options: q.Options}
		if a, ok := byQuestion[q.ID]; ok {
			aq.Answer = a.raw(q)
			aq.Display = strings.Join(a.display(q), ", ")
			aq.ImageBase64 = a.Image
		}
		detail.Questions[i] = aq
	}
	return detail, nil
}

const selectResponse = `
	SELECT r.id, r.form_id, r.user_id, u.name, u.email, r.submitted_at, f.title
	FROM response r
	JOIN form f ON f.id = r.form_id
	LEFT JOIN user u ON u.id = r.user_id`

func scanResponse(row interface{ Scan(...any) error }) (h ResponseHeader, err error) {
	err = row.Scan(&h.ResponseID, &h.FormID, &h.UserID, &h.UserName, &h.UserEmail, &h.SubmittedAt, &h.FormTitle)
	return
}

func (rd *Reader) header(ctx context.Context, responseID int64) (*ResponseHeader, error) {
	h, err := scanResponse(rd.db.QueryRowContext(ctx, selectResponse+" WHERE r.id = ?", responseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("response not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select response: %w", err)
	}
	return &h, nil
}

// responses lists the responses of a form in submission order, answered or not.
func (rd *Reader) responses(ctx context.Context, formID int64) ([]ResponseHeader, error) {
	rows, err := rd.db.QueryContext(ctx, selectResponse+" WHERE r.form_id = ? ORDER BY r.submitted_at, r.id", formID)
	if err != nil {
		return nil, fmt.Errorf("select responses: %w", err)
	}
	defer rows.Close()

	headers := []ResponseHeader{}
	for rows.Next() {
		h, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

type GroupedAnswer struct {
	ID                  int64              `json:"id"`
	ResponseID          int64              `json:"response_id"`
	AnswerText          *string            `json:"answer_text"`
	ImageBase64         []byte             `json:"imageBase64,omitempty"`
	UserID              *int64             `json:"user_id"`
	UserName            *string            `json:"user_name"`
	UserEmail           *string            `json:"user_email"`
	Type                model.QuestionType `json:"type"`
	SelectedOptionTexts []string           `json:"selectedOptionTexts,omitempty"`
	SubmittedAt         time.Time          `json:"submitted_at"`
}

type GroupedQuestion struct {
	ID          int64              `json:"id"`
	Text        string             `json:"text"`
	Type        model.QuestionType `json:"type"`
	ImageBase64 []byte             `json:"imageBase64,omitempty"`
	Answers     []GroupedAnswer    `json:"answers"`
}

type Grouped struct {
	FormID    int64             `json:"form_id"`
	Title     string            `json:"title"`
	Questions []GroupedQuestion `json:"questions"`
}

// GroupedAnswers lists, for every question of a form, all the answers ever
// given to it in submission order.
func (rd *Reader) GroupedAnswers(ctx context.Context, formID, userID int64) (*Grouped, error) {
	if _, err := access.Require(ctx, rd.access, formID, userID, access.ViewResults); err != nil {
		return nil, err
	}
	form, err := rd.forms.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	answers, err := rd.answers(ctx, "r.form_id = ?", formID)
	if err != nil {
		return nil, err
	}

	grouped := &Grouped{FormID: form.ID, Title: form.Title, Questions: make([]GroupedQuestion, len(form.Questions))}
	index := map[int64]int{}
	for i, q := range form.Questions {
		grouped.Questions[i] = GroupedQuestion{ID: q.ID, Text: q.Text, Type: q.Type, ImageBase64: q.Image, Answers: []GroupedAnswer{}}
		index[q.ID] = i
	}
	for _, a := range answers {
		i, ok := index[a.QuestionID]
		if !ok {
			continue
		}
		q := &form.Questions[i]
		ga := GroupedAnswer{
			ID:          a.ID,
			ResponseID:  a.ResponseID,
			AnswerText:  a.Text,
			ImageBase64: a.Image,
			UserID:      a.UserID,
			UserName:    a.UserName,
			UserEmail:   a.UserEmail,
			Type:        q.Type,
			SubmittedAt: a.SubmittedAt,
		}
		if q.Type.IsChoice() {
			ga.SelectedOptionTexts = a.display(q)
		}
		grouped.Questions[i].Answers = append(grouped.Questions[i].Answers, ga)
	}
	return grouped, nil
}

// storedAnswer is an answer row joined with its response and its options.
type storedAnswer struct {
	ID          int64
	ResponseID  int64
	QuestionID  int64
	Text        *string
	Image       []byte
	OptionIDs   []int64
	UserID      *int64
	UserName    *string
	UserEmail   *string
	SubmittedAt time.Time
}

func (rd *Reader) answers(ctx context.Context, where string, arg any) ([]storedAnswer, error) {
	rows, err := rd.db.QueryContext(ctx, `
		SELECT a.id, a.response_id, a.question_id, a.answer_text, a.image, r.user_id, u.name, u.email, r.submitted_at
		FROM answer a
		JOIN response r ON r.id = a.response_id
		LEFT JOIN user u ON u.id = r.user_id
		WHERE `+where+`
		ORDER BY r.submitted_at, r.id, a.id`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	defer rows.Close()

	var answers []storedAnswer
	index := map[int64]int{}
	for rows.Next() {
		var a storedAnswer
		err = rows.Scan(&a.ID, &a.ResponseID, &a.QuestionID, &a.Text, &a.Image, &a.UserID, &a.UserName, &a.UserEmail, &a.SubmittedAt)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		index[a.ID] = len(answers)
		answers = append(answers, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	rows.Close()

	rows, err = rd.db.QueryContext(ctx, `
		SELECT ao.answer_id, ao.option_id
		FROM answer_option ao
		JOIN answer a ON a.id = ao.answer_id
		JOIN response r ON r.id = a.response_id
		JOIN option o ON o.id = ao.option_id
		WHERE `+where+`
		ORDER BY o.position, o.id`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("select answer options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var answerID, optionID int64
		if err = rows.Scan(&answerID, &optionID); err != nil {
			return nil, fmt.Errorf("scan answer option: %w", err)
		}
		if i, ok := index[answerID]; ok {
			answers[i].OptionIDs = append(answers[i].OptionIDs, optionID)
		}
	}
	return answers, rows.Err()
}

func (a *storedAnswer) raw(q *model.Question) any {
	if q.Type == model.MultipleChoice {
		if a.OptionIDs == nil {
			return []int64{}
		}
		return a.OptionIDs
	}
	if a.Text == nil {
		return nil
	}
	return *a.Text
}

// display resolves an answer to readable text: option texts for choices,
// the stored text otherwise. An option deleted since is shown by its id.
func (a *storedAnswer) display(q *model.Question) []string {
	optionText := func(id int64) string {
		for _, o := range q.Options {
			if o.ID == id {
				return o.Text
			}
		}
		return strconv.FormatInt(id, 10)
	}

	switch q.Type {
	case model.MultipleChoice:
		texts := make([]string, len(a.OptionIDs))
		for i, id := range a.OptionIDs {
			texts[i] = optionText(id)
		}
		return texts
	case model.SingleChoice:
		if a.Text == nil {
			return nil
		}
		id, err := strconv.ParseInt(*a.Text, 10, 64)
		if err != nil {
			return []string{*a.Text}
		}
		return []string{optionText(id)}
	}
	if a.Text == nil {
		return nil
	}
	return []string{*a.Text}
}
