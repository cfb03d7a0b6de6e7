package results

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/forms"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/submission"
	"github.com/xuri/excelize/v2"
)

type fixture struct {
	reader *Reader
	form   *model.Form
	owner  int64
	viewer int64
	other  int64
	first  int64
	second int64
}

func addUser(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	var id int64
	err := db.
		QueryRow("INSERT INTO user (name, email, password_hash) VALUES (?, ?, x'') RETURNING id", name, name+"@example.com").
		Scan(&id)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	fx := &fixture{reader: NewReader(db)}
	fx.owner = addUser(t, db, "owner")
	fx.viewer = addUser(t, db, "viewer")
	fx.other = addUser(t, db, "other")

	var d forms.Draft
	json.Unmarshal([]byte(`{"title": "Lunch", "allowGuests": true, "questions": [
		{"text": "Name", "type": "short_text"},
		{"text": "Main", "type": "single_choice", "options": ["Pasta", "Soup"]},
		{"text": "Sides", "type": "multiple_choice", "options": ["Bread", "Salad", "Fries"]}
	]}`), &d)
	repo := forms.NewRepository(db)
	formID, err := repo.Create(ctx, fx.owner, &d)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = repo.AddCollaborator(ctx, formID, "viewer@example.com", "viewer"); err != nil {
		t.Fatal(err)
	}
	fx.form, _ = repo.Get(ctx, formID)

	svc := submission.NewService(db)
	name, main, sides := fx.form.Questions[0].ID, fx.form.Questions[1].ID, fx.form.Questions[2].ID
	submit := func(identity *model.Identity, answers string) int64 {
		var sub submission.Submission
		if err := json.Unmarshal([]byte(answers), &sub); err != nil {
			t.Fatal(err)
		}
		receipt, err := svc.Submit(ctx, formID, identity, sub.All())
		if err != nil {
			t.Fatal(err)
		}
		return receipt.ID
	}
	fx.first = submit(&model.Identity{ID: fx.viewer}, fmt.Sprintf(`{"responses": [
		{"questionId": %d, "answer": "Vera"},
		{"questionId": %d, "answer": "Soup"},
		{"questionId": %d, "answer": ["Fries", "Bread"], "image": "aGVsbG8="}
	]}`, name, main, sides))
	fx.second = submit(nil, fmt.Sprintf(`{"responses": [
		{"questionId": %d, "answer": "Pasta"}
	]}`, main))
	return fx
}

func TestListResults(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	for _, userID := range []int64{fx.owner, fx.viewer} {
		list, err := fx.reader.ListResults(ctx, userID)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || len(list[0].Responses) != 2 {
			t.Fatalf("user %d: %+v", userID, list)
		}
		if list[0].Responses[0].ResponseID != fx.second {
			t.Errorf("newest response must come first: %+v", list[0].Responses)
		}
		if guest := list[0].Responses[0]; guest.UserName != nil || guest.FormTitle != "Lunch" {
			t.Errorf("guest response %+v", guest)
		}
	}

	list, err := fx.reader.ListResults(ctx, fx.other)
	if err != nil || len(list) != 0 {
		t.Errorf("stranger sees %+v, %v", list, err)
	}
}

func TestResponseDetail(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	detail, err := fx.reader.ResponseDetail(ctx, fx.first, fx.owner)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Response.FormTitle != "Lunch" || *detail.Response.UserName != "viewer" {
		t.Errorf("header %+v", detail.Response)
	}
	if len(detail.Questions) != 3 {
		t.Fatalf("questions %+v", detail.Questions)
	}

	name, main, sides := detail.Questions[0], detail.Questions[1], detail.Questions[2]
	if name.Answer != "Vera" || name.Display != "Vera" {
		t.Errorf("text answer %+v", name)
	}
	soup := fx.form.Questions[1].Options[1]
	if main.Answer != fmt.Sprint(soup.ID) || main.Display != "Soup" {
		t.Errorf("single choice answer %+v", main)
	}
	opts := fx.form.Questions[2].Options
	if !reflect.DeepEqual(sides.Answer, []int64{opts[0].ID, opts[2].ID}) || sides.Display != "Bread, Fries" {
		t.Errorf("multiple choice answer %+v", sides)
	}
	if string(sides.ImageBase64) != "hello" {
		t.Errorf("image %q", sides.ImageBase64)
	}

	again, err := fx.reader.ResponseDetail(ctx, fx.first, fx.owner)
	if err != nil || !reflect.DeepEqual(detail, again) {
		t.Errorf("reading twice gave different results: %v", err)
	}

	if _, err = fx.reader.ResponseDetail(ctx, fx.first, fx.viewer); !model.IsKind(err, model.KindForbidden) {
		t.Errorf("viewer reading a response: %v", err)
	}
	// a missing response is indistinguishable from one the user may not read
	_, forbidden := fx.reader.ResponseDetail(ctx, fx.first, fx.other)
	_, missing := fx.reader.ResponseDetail(ctx, fx.second+100, fx.other)
	if !model.IsKind(missing, model.KindForbidden) || missing.Error() != forbidden.Error() {
		t.Errorf("missing response: %v, existing response: %v", missing, forbidden)
	}
}

func TestGroupedAnswers(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	grouped, err := fx.reader.GroupedAnswers(ctx, fx.form.ID, fx.viewer)
	if err != nil {
		t.Fatal(err)
	}
	if len(grouped.Questions) != 3 {
		t.Fatalf("questions %+v", grouped.Questions)
	}
	if n := len(grouped.Questions[0].Answers); n != 1 {
		t.Errorf("Name has %d answers", n)
	}

	main := grouped.Questions[1].Answers
	if len(main) != 2 || main[0].ResponseID != fx.first {
		t.Fatalf("Main answers %+v", main)
	}
	if !reflect.DeepEqual(main[0].SelectedOptionTexts, []string{"Soup"}) || !reflect.DeepEqual(main[1].SelectedOptionTexts, []string{"Pasta"}) {
		t.Errorf("Main texts %v %v", main[0].SelectedOptionTexts, main[1].SelectedOptionTexts)
	}
	sides := grouped.Questions[2].Answers
	if len(sides) != 1 || !reflect.DeepEqual(sides[0].SelectedOptionTexts, []string{"Bread", "Fries"}) {
		t.Errorf("Sides answers %+v", sides)
	}

	if _, err = fx.reader.GroupedAnswers(ctx, fx.form.ID, fx.other); !model.IsKind(err, model.KindForbidden) {
		t.Errorf("stranger: %v", err)
	}
}

func readSheet(t *testing.T, wb *Workbook, sheet string) [][]string {
	t.Helper()
	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		t.Fatal(err)
	}
	wb.Close()

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestExportResponse(t *testing.T) {
	fx := setup(t)

	wb, err := fx.reader.ExportResponse(context.Background(), fx.first, fx.owner)
	if err != nil {
		t.Fatal(err)
	}
	if wb.Filename != fmt.Sprintf("response_%d.xlsx", fx.first) {
		t.Errorf("filename %q", wb.Filename)
	}

	rows := readSheet(t, wb, answersSheet)
	want := [][]string{
		{"Question", "Answer"},
		{"Name", "Vera"},
		{"Main", "Soup"},
		{"Sides", "Bread, Fries"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows %q", rows)
	}
}

func TestExportForm(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	// later responses: one answering only the first question, one left blank
	svc := submission.NewService(fx.reader.db)
	late, err := svc.Submit(ctx, fx.form.ID, nil, []submission.RawAnswer{
		{QuestionID: fx.form.Questions[0].ID, Answer: json.RawMessage(`"Late"`)},
	})
	if err != nil {
		t.Fatal(err)
	}
	blank, err := svc.Submit(ctx, fx.form.ID, nil, []submission.RawAnswer{
		{QuestionID: fx.form.Questions[0].ID, Answer: json.RawMessage(`""`)},
	})
	if err != nil {
		t.Fatal(err)
	}

	wb, err := fx.reader.ExportForm(ctx, fx.form.ID, fx.viewer)
	if err != nil {
		t.Fatal(err)
	}

	rows := readSheet(t, wb, responsesSheet)
	if len(rows) != 5 {
		t.Fatalf("rows %q", rows)
	}
	if !reflect.DeepEqual(rows[0], []string{"Response", "Submitted at", "Name", "Email", "Name", "Main", "Sides"}) {
		t.Errorf("header %q", rows[0])
	}
	first := rows[1]
	if first[0] != fmt.Sprint(fx.first) || first[2] != "viewer" || first[4] != "Vera" || first[5] != "Soup" || first[6] != "Bread, Fries" {
		t.Errorf("first response %q", first)
	}
	second := rows[2]
	if second[0] != fmt.Sprint(fx.second) || second[2] != "" || second[5] != "Pasta" {
		t.Errorf("guest response %q", second)
	}
	if rows[3][0] != fmt.Sprint(late.ID) || rows[3][4] != "Late" {
		t.Errorf("third response %q", rows[3])
	}
	if rows[4][0] != fmt.Sprint(blank.ID) {
		t.Errorf("blank response %q", rows[4])
	}

	if _, err = fx.reader.ExportForm(ctx, fx.form.ID, fx.other); !model.IsKind(err, model.KindForbidden) {
		t.Errorf("stranger: %v", err)
	}
}
