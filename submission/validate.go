package submission

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mbolis/quick-forms/model"
)

const (
	ShortTextLimit = 512
	LongTextLimit  = 4096

	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern   = regexp.MustCompile(`^\d{2}:\d{2}$`)
	choosePattern = regexp.MustCompile(`(?i)choose\s+(\d+)`)
)

// Validate checks a whole submission against its form and decodes every
// non-blank answer. The first problem found is returned; nothing is
// returned for a partly valid submission.
func Validate(form *model.Form, raws []RawAnswer) ([]Answer, error) {
	answers := make([]Answer, 0, len(raws))
	seen := map[int64]bool{}
	answered := map[int64]bool{}

	for i := range raws {
		raw := &raws[i]
		q, ok := form.Question(raw.QuestionID)
		if !ok {
			return nil, model.NotFound("question %d does not belong to this form", raw.QuestionID)
		}
		if seen[q.ID] {
			return nil, model.Invalid("question %q is answered more than once", q.Text)
		}
		seen[q.ID] = true

		v, err := decode(raw.raw(q.Type))
		if err != nil {
			return nil, model.Invalid("malformed answer to %q", q.Text)
		}
		if isBlank(v) {
			continue
		}

		value, err := parse(q, v)
		if err != nil {
			return nil, err
		}
		image, err := raw.image()
		if err != nil {
			return nil, err
		}

		answers = append(answers, Answer{Question: q, Value: value, Image: image})
		answered[q.ID] = true
	}

	for i := range form.Questions {
		q := &form.Questions[i]
		if q.Required && !answered[q.ID] {
			return nil, model.Invalid("question %q is required", q.Text)
		}
	}
	return answers, nil
}

func decode(raw json.RawMessage) (any, error) {
	if raw == nil {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	err := dec.Decode(&v)
	return v, err
}

// isBlank reports an answer left empty: null, a blank string or an empty list.
func isBlank(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		for _, item := range v {
			if !isBlank(item) {
				return false
			}
		}
		return true
	}
	return false
}

func parse(q *model.Question, v any) (Value, error) {
	switch q.Type {
	case model.ShortText:
		return parseText(q, v, ShortTextLimit)
	case model.LongText:
		return parseText(q, v, LongTextLimit)
	case model.SingleChoice:
		return parseChoice(q, v)
	case model.MultipleChoice:
		return parseChoices(q, v)
	case model.Numeric:
		return parseNumber(q, v)
	case model.Date:
		return parseDate(q, v)
	case model.Time:
		return parseTime(q, v)
	}
	return nil, model.Invalid("question %q has unsupported type %s", q.Text, q.Type)
}

func scalarString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	}
	return "", false
}

func parseText(q *model.Question, v any, limit int) (Value, error) {
	s, ok := scalarString(v)
	if !ok {
		return nil, model.Invalid("answer to %q must be text", q.Text)
	}
	if n := utf8.RuneCountInString(s); n > limit {
		return nil, model.Invalid("answer to %q exceeds the %d character limit (%d characters)", q.Text, limit, n)
	}
	return TextValue{s}, nil
}

func values(v any) []any {
	var out []any
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	for _, item := range list {
		if !isBlank(item) {
			out = append(out, item)
		}
	}
	return out
}

func parseChoice(q *model.Question, v any) (Value, error) {
	selected := values(v)
	if len(selected) != 1 {
		return nil, model.Invalid("question %q accepts exactly one choice, got %d", q.Text, len(selected))
	}
	id, err := resolve(q, selected[0])
	if err != nil {
		return nil, err
	}
	return ChoiceValue{id}, nil
}

func parseChoices(q *model.Question, v any) (Value, error) {
	var ids []int64
	picked := map[int64]bool{}
	for _, item := range values(v) {
		id, err := resolve(q, item)
		if err != nil {
			return nil, err
		}
		if !picked[id] {
			picked[id] = true
			ids = append(ids, id)
		}
	}

	if least := minSelections(q); len(ids) < least {
		return nil, model.Invalid("question %q requires at least %d choices, got %d", q.Text, least, len(ids))
	}
	if q.MaxSelections != nil && len(ids) > *q.MaxSelections {
		return nil, model.Invalid("question %q allows at most %d choices, got %d", q.Text, *q.MaxSelections, len(ids))
	}
	return ChoicesValue{ids}, nil
}

// minSelections is the larger of the configured minimum and a "choose N"
// found in the question text; at least one choice is always needed.
func minSelections(q *model.Question) int {
	least := 1
	if q.MinSelections != nil && *q.MinSelections > least {
		least = *q.MinSelections
	}
	if m := choosePattern.FindStringSubmatch(q.Text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > least {
			least = n
		}
	}
	return least
}

// resolve finds the option a value designates: by id first, then by its
// text, exactly and then ignoring case.
func resolve(q *model.Question, v any) (int64, error) {
	s, ok := scalarString(v)
	if !ok {
		return 0, model.Invalid("invalid choice for %q", q.Text)
	}
	s = strings.TrimSpace(s)

	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		for _, o := range q.Options {
			if o.ID == id {
				return id, nil
			}
		}
	}
	for _, o := range q.Options {
		if o.Text == s {
			return o.ID, nil
		}
	}
	for _, o := range q.Options {
		if strings.EqualFold(strings.TrimSpace(o.Text), s) {
			return o.ID, nil
		}
	}
	return 0, model.Invalid("%q is not an option of %q", s, q.Text)
}

func parseNumber(q *model.Question, v any) (Value, error) {
	s, ok := scalarString(v)
	if !ok {
		return nil, model.Invalid("answer to %q must be a number", q.Text)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, model.Invalid("answer to %q must be a number", q.Text)
	}
	if q.Numeric != nil && !q.Numeric.Allows(n) {
		return nil, model.Invalid("%s is not an accepted value for %q", strconv.FormatFloat(n, 'f', -1, 64), q.Text)
	}
	return NumberValue{n}, nil
}

func parseDate(q *model.Question, v any) (Value, error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return nil, model.Invalid("answer to %q: invalid date format, expected YYYY-MM-DD", q.Text)
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, model.Invalid("answer to %q: invalid date format, expected YYYY-MM-DD", q.Text)
	}
	return DateValue{d}, nil
}

func parseTime(q *model.Question, v any) (Value, error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if !timePattern.MatchString(s) {
		return nil, model.Invalid("answer to %q: invalid time format, expected HH:MM", q.Text)
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil, model.Invalid("answer to %q: invalid time format, expected HH:MM", q.Text)
	}
	return TimeValue{t}, nil
}
