package forms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/mbolis/quick-forms/model"
)

var validate = validator.New()

// Draft is a form as sent by the builder, for both creation and edit.
type Draft struct {
	Title        string          `json:"title" validate:"required,max=255"`
	Description  string          `json:"description" validate:"max=4096"`
	AllowGuests  bool            `json:"allowGuests"`
	Version      *int            `json:"version,omitempty"`
	Questions    []QuestionDraft `json:"questions" validate:"dive"`
	ImageIndices []int           `json:"imageIndices,omitempty"`
}

type QuestionDraft struct {
	ID               int64                `json:"id,omitempty"`
	Text             string               `json:"text" validate:"required,max=1024"`
	Type             model.QuestionType   `json:"type" validate:"required,oneof=short_text long_text single_choice multiple_choice numeric date time"`
	Required         bool                 `json:"required"`
	Image            string               `json:"image,omitempty"`
	RemoveImage      bool                 `json:"removeImage,omitempty"`
	HasExistingImage *bool                `json:"hasExistingImage,omitempty"`
	MinSelections    *int                 `json:"minSelections,omitempty" validate:"omitempty,min=0"`
	MaxSelections    *int                 `json:"maxSelections,omitempty" validate:"omitempty,min=1"`
	Numeric          *model.NumericConfig `json:"numericConfig,omitempty"`
	Options          []OptionDraft        `json:"options"`

	image []byte
}

// OptionDraft is a choice option, given either as a bare string or as
// {"id", "text", "image"}.
type OptionDraft struct {
	ID    int64  `json:"id,omitempty"`
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`

	image []byte
}

func (o *OptionDraft) UnmarshalJSON(data []byte) error {
	var text string
	if json.Unmarshal(data, &text) == nil {
		*o = OptionDraft{Text: text}
		return nil
	}
	type plain OptionDraft
	return json.Unmarshal(data, (*plain)(o))
}

// dropsImage reports whether an edit clears the stored image when no new
// one is uploaded.
func (q *QuestionDraft) dropsImage() bool {
	return q.RemoveImage || (q.HasExistingImage != nil && !*q.HasExistingImage)
}

func (d *Draft) normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)

	questions := d.Questions[:0]
	for _, q := range d.Questions {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			continue
		}

		options := q.Options[:0]
		for _, o := range q.Options {
			o.Text = strings.TrimSpace(o.Text)
			if o.Text != "" {
				options = append(options, o)
			}
		}
		q.Options = options

		if !q.Type.IsChoice() {
			q.Options = nil
		}
		if q.Type != model.MultipleChoice {
			q.MinSelections, q.MaxSelections = nil, nil
		}
		if q.Type != model.Numeric {
			q.Numeric = nil
		}
		questions = append(questions, q)
	}
	d.Questions = questions
}

// Validate normalizes the draft (trimming text, skipping blank questions and
// options) and reports every problem found at once.
func (d *Draft) Validate() error {
	d.normalize()

	var result *multierror.Error
	if err := validate.Struct(d); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				result = multierror.Append(result, fmt.Errorf("%s: failed on '%s'", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	for i, q := range d.Questions {
		for _, err := range q.check() {
			result = multierror.Append(result, fmt.Errorf("question %d (%q): %w", i+1, q.Text, err))
		}
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return "invalid form: " + strings.Join(msgs, "; ")
	}
	return model.Invalid("%s", result)
}

func (q *QuestionDraft) check() (errs []error) {
	if q.Type.IsChoice() && len(q.Options) == 0 {
		errs = append(errs, fmt.Errorf("needs at least one option"))
	}
	if q.MinSelections != nil && q.MaxSelections != nil && *q.MinSelections > *q.MaxSelections {
		errs = append(errs, fmt.Errorf("minSelections is greater than maxSelections"))
	}
	if q.MinSelections != nil && *q.MinSelections > len(q.Options) {
		errs = append(errs, fmt.Errorf("minSelections exceeds the number of options"))
	}
	if c := q.Numeric; c != nil {
		switch c.Mode {
		case "list":
			if len(c.Values) == 0 {
				errs = append(errs, fmt.Errorf("numeric list needs at least one value"))
			}
		case "range":
			if c.Start != nil && c.End != nil && *c.Start > *c.End {
				errs = append(errs, fmt.Errorf("numeric range start is greater than its end"))
			}
			if c.Step != nil && *c.Step < 0 {
				errs = append(errs, fmt.Errorf("numeric range step is negative"))
			}
		}
	}
	return
}

// attachImages decodes inline base64 images and assigns uploaded files to
// the questions listed in ImageIndices, in order. Indices refer to the
// questions as sent, before blank ones are skipped, so it must run before
// Validate.
func (d *Draft) attachImages(files [][]byte) error {
	if len(d.ImageIndices) > len(files) {
		return model.Invalid("%d images announced but %d uploaded", len(d.ImageIndices), len(files))
	}
	for i, index := range d.ImageIndices {
		if index < 0 || index >= len(d.Questions) {
			return model.Invalid("image index %d out of range", index)
		}
		d.Questions[index].image = files[i]
	}

	for i := range d.Questions {
		q := &d.Questions[i]
		if q.image == nil && q.Image != "" {
			img, err := model.DecodeImage(q.Image)
			if err != nil {
				return err
			}
			q.image = img
		}
		for j := range q.Options {
			o := &q.Options[j]
			if o.Image != "" {
				img, err := model.DecodeImage(o.Image)
				if err != nil {
					return err
				}
				o.image = img
			}
		}
	}
	return nil
}

// Prepare attaches the uploaded images and validates the draft.
func (d *Draft) Prepare(files [][]byte) error {
	if err := d.attachImages(files); err != nil {
		return err
	}
	return d.Validate()
}
