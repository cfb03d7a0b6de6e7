package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/forms"
	"github.com/mbolis/quick-forms/model"
)

type fixture struct {
	db   *sql.DB
	svc  *Service
	form *model.Form
	user *model.Identity
}

// question finds a question of the fixture form by its text.
func (fx *fixture) question(t *testing.T, text string) *model.Question {
	t.Helper()
	for i := range fx.form.Questions {
		if fx.form.Questions[i].Text == text {
			return &fx.form.Questions[i]
		}
	}
	t.Fatalf("no question %q", text)
	return nil
}

func setup(t *testing.T, formJSON string) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	user := &model.Identity{Name: "filler", Email: "filler@example.com"}
	err = db.
		QueryRow("INSERT INTO user (name, email, password_hash) VALUES (?, ?, x'') RETURNING id", user.Name, user.Email).
		Scan(&user.ID)
	if err != nil {
		t.Fatal(err)
	}

	var d forms.Draft
	if err = json.Unmarshal([]byte(formJSON), &d); err != nil {
		t.Fatal(err)
	}
	repo := forms.NewRepository(db)
	id, err := repo.Create(ctx, user.ID, &d)
	if err != nil {
		t.Fatal(err)
	}
	form, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{db, NewService(db), form, user}
}

func answer(q *model.Question, value string) RawAnswer {
	return RawAnswer{QuestionID: q.ID, Answer: json.RawMessage(value)}
}

func str(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

const everyType = `{
	"title": "Everything",
	"allowGuests": true,
	"questions": [
		{"text": "short", "type": "short_text"},
		{"text": "long", "type": "long_text"},
		{"text": "color", "type": "single_choice", "options": ["Red", "Blue", "Green"]},
		{"text": "Pick toppings, choose 2", "type": "multiple_choice", "options": ["Cheese", "Ham", "Olives", "Basil"], "maxSelections": 3},
		{"text": "count", "type": "numeric"},
		{"text": "rating", "type": "numeric", "numericConfig": {"mode": "range", "start": 1, "end": 5, "step": 1}},
		{"text": "day", "type": "date"},
		{"text": "hour", "type": "time"}
	]
}`

func TestValidateAnswers(t *testing.T) {
	fx := setup(t, everyType)
	short := fx.question(t, "short")
	long := fx.question(t, "long")
	color := fx.question(t, "color")
	toppings := fx.question(t, "Pick toppings, choose 2")
	count := fx.question(t, "count")
	rating := fx.question(t, "rating")
	day := fx.question(t, "day")
	hour := fx.question(t, "hour")

	for _, tc := range []struct {
		name  string
		raw   RawAnswer
		fails string
	}{
		{"short at limit", answer(short, str(strings.Repeat("a", 512))), ""},
		{"short multibyte at limit", answer(short, str(strings.Repeat("é", 512))), ""},
		{"short over limit", answer(short, str(strings.Repeat("a", 513))), "512 character limit"},
		{"long at limit", answer(long, str(strings.Repeat("a", 4096))), ""},
		{"long over limit", answer(long, str(strings.Repeat("a", 4097))), "4096 character limit"},
		{"single by text", answer(color, `"Blue"`), ""},
		{"single by text ignoring case", answer(color, `"green"`), ""},
		{"single by id", answer(color, fmt.Sprint(color.Options[0].ID)), ""},
		{"single in a list", answer(color, `["Red"]`), ""},
		{"single with two values", answer(color, `["Red","Blue"]`), "exactly one"},
		{"single unknown", answer(color, `"Purple"`), "not an option"},
		{"multiple below choose N", answer(toppings, `["Cheese"]`), "at least 2"},
		{"multiple duplicates collapse", answer(toppings, `["Cheese","cheese"]`), "at least 2"},
		{"multiple enough", answer(toppings, `["Cheese","Ham"]`), ""},
		{"multiple over max", answer(toppings, `["Cheese","Ham","Olives","Basil"]`), "at most 3"},
		{"multiple unknown", answer(toppings, `["Cheese","Pineapple"]`), "not an option"},
		{"numeric number", answer(count, `42.5`), ""},
		{"numeric string", answer(count, `"-7"`), ""},
		{"numeric garbage", answer(count, `"seven"`), "must be a number"},
		{"numeric not finite", answer(count, `"NaN"`), "must be a number"},
		{"numeric in range", answer(rating, `4`), ""},
		{"numeric off step", answer(rating, `4.5`), "not an accepted value"},
		{"numeric out of range", answer(rating, `6`), "not an accepted value"},
		{"date", answer(day, `"2024-10-26"`), ""},
		{"date impossible", answer(day, `"2024-13-40"`), "invalid date format"},
		{"date pattern", answer(day, `"26/10/2024"`), "invalid date format"},
		{"time", answer(hour, `"09:30"`), ""},
		{"time impossible", answer(hour, `"25:61"`), "invalid time format"},
		{"time pattern", answer(hour, `"9:30"`), "invalid time format"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(fx.form, []RawAnswer{tc.raw})
			if tc.fails == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !model.IsKind(err, model.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.fails) {
				t.Errorf("%q does not mention %q", err, tc.fails)
			}
		})
	}
}

func TestValidateSubmission(t *testing.T) {
	fx := setup(t, `{"title": "T", "allowGuests": true, "questions": [
		{"text": "Name", "type": "short_text", "required": true},
		{"text": "Notes", "type": "long_text"}
	]}`)
	name := fx.question(t, "Name")
	notes := fx.question(t, "Notes")

	_, err := Validate(fx.form, []RawAnswer{{QuestionID: 9999, Answer: json.RawMessage(`"x"`)}})
	if !model.IsKind(err, model.KindNotFound) {
		t.Errorf("unknown question: %v", err)
	}

	_, err = Validate(fx.form, []RawAnswer{answer(name, `"a"`), answer(name, `"b"`)})
	if !model.IsKind(err, model.KindValidation) {
		t.Errorf("duplicate answer: %v", err)
	}

	for _, blank := range []string{`null`, `""`, `"   "`, `[]`} {
		_, err = Validate(fx.form, []RawAnswer{answer(name, blank), answer(notes, `"n"`)})
		if !model.IsKind(err, model.KindValidation) || !strings.Contains(err.Error(), `"Name"`) {
			t.Errorf("blank %s for a required question: %v", blank, err)
		}
	}

	answers, err := Validate(fx.form, []RawAnswer{answer(name, `"Ada"`), answer(notes, `""`)})
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 1 {
		t.Errorf("blank optional answer must not be kept: %+v", answers)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	ctx := context.Background()
	fx := setup(t, `{"title": "Members only", "questions": [{"text": "Q", "type": "short_text"}]}`)
	q := fx.question(t, "Q")
	raws := []RawAnswer{answer(q, `"hi"`)}

	_, err := fx.svc.Submit(ctx, fx.form.ID+1, fx.user, raws)
	if !model.IsKind(err, model.KindNotFound) {
		t.Errorf("missing form: %v", err)
	}

	_, err = fx.svc.Submit(ctx, fx.form.ID, nil, raws)
	if !model.IsKind(err, model.KindUnauthenticated) {
		t.Errorf("guest on members-only form: %v", err)
	}

	if _, err = fx.svc.Submit(ctx, fx.form.ID, fx.user, raws); err != nil {
		t.Errorf("member: %v", err)
	}

	if _, err = fx.db.Exec("UPDATE form SET is_locked = 1, allow_guests = 1"); err != nil {
		t.Fatal(err)
	}
	for _, identity := range []*model.Identity{nil, fx.user} {
		_, err = fx.svc.Submit(ctx, fx.form.ID, identity, raws)
		if !model.IsKind(err, model.KindForbidden) || !regexp.MustCompile(`locked`).MatchString(err.Error()) {
			t.Errorf("locked form, identity %v: %v", identity, err)
		}
	}
}

func TestSubmitPersists(t *testing.T) {
	ctx := context.Background()
	fx := setup(t, everyType)
	color := fx.question(t, "color")
	toppings := fx.question(t, "Pick toppings, choose 2")
	count := fx.question(t, "count")
	day := fx.question(t, "day")

	receipt, err := fx.svc.Submit(ctx, fx.form.ID, nil, []RawAnswer{
		answer(color, `"Blue"`),
		answer(toppings, `["Ham", "Cheese"]`),
		answer(count, `"1e3"`),
		{QuestionID: day.ID, Answer: json.RawMessage(`"2024-10-26"`), Image: json.RawMessage(`"data:image/png;base64,aGVsbG8="`)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !receipt.Success || receipt.ID == 0 || len(receipt.Responses) != 4 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	var userID sql.NullInt64
	fx.db.QueryRow("SELECT user_id FROM response WHERE id = ?", receipt.ID).Scan(&userID)
	if userID.Valid {
		t.Error("guest response has a user")
	}

	texts := map[int64]sql.NullString{}
	rows, err := fx.db.Query("SELECT question_id, answer_text FROM answer WHERE response_id = ?", receipt.ID)
	if err != nil {
		t.Fatal(err)
	}
	for rows.Next() {
		var qid int64
		var text sql.NullString
		rows.Scan(&qid, &text)
		texts[qid] = text
	}
	rows.Close()

	blue := color.Options[1]
	if texts[color.ID].String != fmt.Sprint(blue.ID) {
		t.Errorf("single choice stored %q, want option id %d", texts[color.ID].String, blue.ID)
	}
	if texts[toppings.ID].Valid {
		t.Errorf("multiple choice stored text %q", texts[toppings.ID].String)
	}
	if texts[count.ID].String != "1000" {
		t.Errorf("numeric stored %q", texts[count.ID].String)
	}
	if texts[day.ID].String != "2024-10-26" {
		t.Errorf("date stored %q", texts[day.ID].String)
	}

	var picked []string
	rows, err = fx.db.Query(`
		SELECT o.text FROM answer_option ao
		JOIN answer a ON a.id = ao.answer_id
		JOIN option o ON o.id = ao.option_id
		WHERE a.response_id = ? ORDER BY o.position`, receipt.ID)
	if err != nil {
		t.Fatal(err)
	}
	for rows.Next() {
		var text string
		rows.Scan(&text)
		picked = append(picked, text)
	}
	rows.Close()
	if strings.Join(picked, ",") != "Cheese,Ham" {
		t.Errorf("answer options %v", picked)
	}

	var image []byte
	fx.db.QueryRow("SELECT image FROM answer WHERE response_id = ? AND question_id = ?", receipt.ID, day.ID).Scan(&image)
	if string(image) != "hello" {
		t.Errorf("image %q", image)
	}
}

func TestSubmitRejectsWholeSubmission(t *testing.T) {
	ctx := context.Background()
	fx := setup(t, everyType)

	_, err := fx.svc.Submit(ctx, fx.form.ID, fx.user, []RawAnswer{
		answer(fx.question(t, "short"), `"fine"`),
		answer(fx.question(t, "day"), `"2024-13-40"`),
	})
	if !model.IsKind(err, model.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	var n int
	fx.db.QueryRow("SELECT COUNT(*) FROM response").Scan(&n)
	if n != 0 {
		t.Errorf("%d responses stored for a rejected submission", n)
	}
	fx.db.QueryRow("SELECT COUNT(*) FROM answer").Scan(&n)
	if n != 0 {
		t.Errorf("%d answers stored for a rejected submission", n)
	}
}

func TestFillingPageFields(t *testing.T) {
	fx := setup(t, everyType)
	color := fx.question(t, "color")
	toppings := fx.question(t, "Pick toppings, choose 2")
	count := fx.question(t, "count")

	var sub Submission
	err := json.Unmarshal([]byte(fmt.Sprintf(`{"answers": [
		{"questionId": %d, "type": "single_choice", "selectedOptionId": %d},
		{"questionId": %d, "type": "multiple_choice", "selectedOptionIds": [%d, %d], "image": {}},
		{"questionId": %d, "type": "numeric", "value": 3}
	]}`, color.ID, color.Options[2].ID, toppings.ID, toppings.Options[0].ID, toppings.Options[3].ID, count.ID)), &sub)
	if err != nil {
		t.Fatal(err)
	}
	if err = sub.AttachUploads([][]byte{[]byte("upload")}); err != nil {
		t.Fatal(err)
	}

	answers, err := Validate(fx.form, sub.All())
	if err != nil {
		t.Fatal(err)
	}
	if v := answers[0].Value.(ChoiceValue); v.OptionID != color.Options[2].ID {
		t.Errorf("single choice %+v", v)
	}
	if v := answers[1].Value.(ChoicesValue); len(v.OptionIDs) != 2 {
		t.Errorf("multiple choice %+v", v)
	}
	if string(answers[1].Image) != "upload" {
		t.Errorf("upload not attached: %q", answers[1].Image)
	}
	if v := answers[2].Value.(NumberValue); v.Number != 3 {
		t.Errorf("numeric %+v", v)
	}

	if err = sub.AttachUploads(nil); !model.IsKind(err, model.KindValidation) {
		t.Errorf("missing upload: %v", err)
	}
}

func TestFillingPageDefaults(t *testing.T) {
	fx := setup(t, `{
		"title": "Signup",
		"questions": [
			{"text": "Name", "type": "short_text", "required": true},
			{"text": "Color", "type": "single_choice", "required": true, "options": ["Red", "Blue"]},
			{"text": "Day", "type": "date", "required": true},
			{"text": "Extras", "type": "multiple_choice", "options": ["Tea", "Cake"]}
		]
	}`)
	name := fx.question(t, "Name")
	color := fx.question(t, "Color")
	day := fx.question(t, "Day")
	extras := fx.question(t, "Extras")

	// every answer starts as {value: "", selectedOptionIds: []} and only one field is filled in
	var sub Submission
	err := json.Unmarshal([]byte(fmt.Sprintf(`{"answers": [
		{"questionId": %d, "value": "Ada", "selectedOptionIds": []},
		{"questionId": %d, "selectedOptionId": %d, "value": "", "selectedOptionIds": []},
		{"questionId": %d, "value": "2024-10-26", "selectedOptionIds": []},
		{"questionId": %d, "value": "", "selectedOptionIds": [%d]}
	]}`, name.ID, color.ID, color.Options[1].ID, day.ID, extras.ID, extras.Options[1].ID)), &sub)
	if err != nil {
		t.Fatal(err)
	}

	answers, err := Validate(fx.form, sub.All())
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 4 {
		t.Fatalf("%d answers", len(answers))
	}
	if v := answers[0].Value.(TextValue); v.Text != "Ada" {
		t.Errorf("short text %+v", v)
	}
	if v := answers[1].Value.(ChoiceValue); v.OptionID != color.Options[1].ID {
		t.Errorf("single choice %+v", v)
	}
	if v := answers[2].Value.(DateValue); v.Date.Format(dateLayout) != "2024-10-26" {
		t.Errorf("date %+v", v)
	}
	if v := answers[3].Value.(ChoicesValue); len(v.OptionIDs) != 1 || v.OptionIDs[0] != extras.Options[1].ID {
		t.Errorf("multiple choice %+v", v)
	}

	// an untouched optional question is skipped
	_, err = Validate(fx.form, []RawAnswer{
		{QuestionID: name.ID, Value: json.RawMessage(`"Ada"`), SelectedOptionIDs: json.RawMessage(`[]`)},
		{QuestionID: color.ID, SelectedOptionID: json.RawMessage(fmt.Sprint(color.Options[0].ID)), Value: json.RawMessage(`""`)},
		{QuestionID: day.ID, Value: json.RawMessage(`"2024-10-26"`)},
		{QuestionID: extras.ID, Value: json.RawMessage(`""`), SelectedOptionIDs: json.RawMessage(`[]`)},
	})
	if err != nil {
		t.Errorf("untouched optional question: %v", err)
	}
}

func TestConcurrentSubmits(t *testing.T) {
	ctx := context.Background()
	fx := setup(t, everyType)
	short := fx.question(t, "short")

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fx.svc.Submit(ctx, fx.form.ID, nil, []RawAnswer{
				answer(short, str(fmt.Sprintf("filler %d", i))),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	var count int
	fx.db.QueryRow("SELECT COUNT(*) FROM response").Scan(&count)
	if count != n {
		t.Errorf("%d responses stored, want %d", count, n)
	}
}

func TestWriteRollsBack(t *testing.T) {
	ctx := context.Background()

	countRows := func(t *testing.T, fx *fixture) {
		t.Helper()
		for _, table := range []string{"response", "answer", "answer_option"} {
			var n int
			fx.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
			if n != 0 {
				t.Errorf("%d %s rows left behind", n, table)
			}
		}
	}

	t.Run("question deleted after validation", func(t *testing.T) {
		fx := setup(t, everyType)
		toppings := fx.question(t, "Pick toppings, choose 2")
		answers, err := Validate(fx.form, []RawAnswer{
			answer(fx.question(t, "short"), `"fine"`),
			answer(toppings, fmt.Sprintf("[%d, %d]", toppings.Options[0].ID, toppings.Options[1].ID)),
			answer(fx.question(t, "count"), `7`),
		})
		if err != nil {
			t.Fatal(err)
		}

		_, err = fx.db.Exec("DELETE FROM question WHERE id = ?", fx.question(t, "count").ID)
		if err != nil {
			t.Fatal(err)
		}

		_, err = fx.svc.write(ctx, fx.form.ID, &fx.user.ID, answers)
		if err == nil {
			t.Fatal("answer to a deleted question was stored")
		}
		countRows(t, fx)
	})

	t.Run("form locked after validation", func(t *testing.T) {
		fx := setup(t, everyType)
		answers, err := Validate(fx.form, []RawAnswer{answer(fx.question(t, "short"), `"fine"`)})
		if err != nil {
			t.Fatal(err)
		}

		_, err = fx.db.Exec("UPDATE form SET is_locked = 1 WHERE id = ?", fx.form.ID)
		if err != nil {
			t.Fatal(err)
		}

		_, err = fx.svc.write(ctx, fx.form.ID, nil, answers)
		if !model.IsKind(err, model.KindForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
		countRows(t, fx)
	})
}
