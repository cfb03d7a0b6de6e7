package model

import "testing"

func float(v float64) *float64 { return &v }

func TestNumericConfigAllows(t *testing.T) {
	list := &NumericConfig{Mode: "list", Values: []float64{1, 2.5, 10}}
	rng := &NumericConfig{Mode: "range", Start: float(0), End: float(1), Step: float(0.1)}
	open := &NumericConfig{Mode: "range", Start: float(-5), End: float(5)}

	for _, tc := range []struct {
		cfg  *NumericConfig
		v    float64
		want bool
	}{
		{list, 2.5, true},
		{list, 3, false},
		{rng, 0.3, true},
		{rng, 0.35, false},
		{rng, 1.1, false},
		{open, -4.2, true},
		{open, 6, false},
	} {
		if got := tc.cfg.Allows(tc.v); got != tc.want {
			t.Errorf("%+v.Allows(%v) = %v", *tc.cfg, tc.v, got)
		}
	}
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage("data:image/png;base64,aGVsbG8=")
	if err != nil || string(img) != "hello" {
		t.Errorf("data URL: %q, %v", img, err)
	}
	img, err = DecodeImage("aGVsbG8=")
	if err != nil || string(img) != "hello" {
		t.Errorf("plain: %q, %v", img, err)
	}
	if _, err = DecodeImage("%%%"); !IsKind(err, KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestQuestionTypes(t *testing.T) {
	if !SingleChoice.IsChoice() || !MultipleChoice.IsChoice() || Numeric.IsChoice() {
		t.Error("IsChoice")
	}
	if QuestionType("rating").Valid() || !Time.Valid() {
		t.Error("Valid")
	}
}
