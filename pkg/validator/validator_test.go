package validator

import (
	"context"
	"testing"
)

type applyForm struct {
	StudentName string `validate:"required"`
	StudentID   string `validate:"required,studentid"`
	Pin         string `validate:"required,pin"`
}

func TestValidateApplyForm(t *testing.T) {
	cases := []struct {
		name    string
		form    applyForm
		wantTag string
	}{
		{
			name: "valid",
			form: applyForm{StudentName: "Hong Gildong", StudentID: "2023-00001", Pin: "1234"},
		},
		{
			name:    "missing name",
			form:    applyForm{StudentID: "2023-00001", Pin: "1234"},
			wantTag: "required",
		},
		{
			name:    "missing pin",
			form:    applyForm{StudentName: "Hong Gildong", StudentID: "2023-00001"},
			wantTag: "required",
		},
		{
			name:    "short student id",
			form:    applyForm{StudentName: "Hong Gildong", StudentID: "2023-001", Pin: "1234"},
			wantTag: "studentid",
		},
		{
			name:    "long student id",
			form:    applyForm{StudentName: "Hong Gildong", StudentID: "2023-000011", Pin: "1234"},
			wantTag: "studentid",
		},
		{
			name:    "short pin",
			form:    applyForm{StudentName: "Hong Gildong", StudentID: "2023-00001", Pin: "123"},
			wantTag: "pin",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(context.Background(), tc.form)
			if tc.wantTag == "" {
				if err != nil {
					t.Fatalf("unexpected validation error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if err.Tag != tc.wantTag {
				t.Errorf("failed tag = %q, want %q", err.Tag, tc.wantTag)
			}
		})
	}
}
