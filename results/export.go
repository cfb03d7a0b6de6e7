package results

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	answersSheet   = "Answers"
	responsesSheet = "Responses"
)

// Workbook is an export ready to be written out.
type Workbook struct {
	*excelize.File
	Filename string
}

// ExportResponse lays out one response as a two-column sheet, one question
// per row. Only the form owner may export it.
func (rd *Reader) ExportResponse(ctx context.Context, responseID, userID int64) (*Workbook, error) {
	detail, err := rd.ResponseDetail(ctx, responseID, userID)
	if err != nil {
		return nil, err
	}

	f, err := newWorkbook(answersSheet)
	if err != nil {
		return nil, err
	}
	err = writeRows(f, answersSheet, []any{"Question", "Answer"}, len(detail.Questions), func(i int) []any {
		q := detail.Questions[i]
		return []any{q.Text, q.Display}
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetColWidth(answersSheet, "A", "B", 50)

	return &Workbook{f, fmt.Sprintf("response_%d.xlsx", responseID)}, nil
}

// ExportForm lays out every response of a form, one per row, with a column
// per question.
func (rd *Reader) ExportForm(ctx context.Context, formID, userID int64) (*Workbook, error) {
	grouped, err := rd.GroupedAnswers(ctx, formID, userID)
	if err != nil {
		return nil, err
	}

	responses, err := rd.responses(ctx, formID)
	if err != nil {
		return nil, err
	}
	cells := make(map[int64]map[int]string, len(responses))
	for _, r := range responses {
		cells[r.ResponseID] = map[int]string{}
	}
	for col, q := range grouped.Questions {
		for _, a := range q.Answers {
			if row, ok := cells[a.ResponseID]; ok {
				row[col] = cellText(a)
			}
		}
	}

	header := []any{"Response", "Submitted at", "Name", "Email"}
	for _, q := range grouped.Questions {
		header = append(header, q.Text)
	}

	f, err := newWorkbook(responsesSheet)
	if err != nil {
		return nil, err
	}
	err = writeRows(f, responsesSheet, header, len(responses), func(i int) []any {
		r := responses[i]
		values := []any{r.ResponseID, r.SubmittedAt.Format("2006-01-02 15:04:05"), deref(r.UserName), deref(r.UserEmail)}
		for col := range grouped.Questions {
			values = append(values, cells[r.ResponseID][col])
		}
		return values
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Workbook{f, fmt.Sprintf("form_%d_responses.xlsx", formID)}, nil
}

func newWorkbook(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, header []any, n int, row func(i int) []any) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err = f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err = f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}

	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		values := row(i)
		if err = f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
	}
	return nil
}

func cellText(a GroupedAnswer) string {
	if a.SelectedOptionTexts != nil {
		return strings.Join(a.SelectedOptionTexts, ", ")
	}
	return deref(a.AnswerText)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
