package services

import (
	"errors"
	"testing"
)

func newTestValidator(t *testing.T) *PayloadValidator {
	t.Helper()
	v, err := NewPayloadValidator()
	if err != nil {
		t.Fatalf("NewPayloadValidator: %v", err)
	}
	return v
}

func TestValidateWebhookResponse(t *testing.T) {
	v := newTestValidator(t)

	valid := []string{
		`{"status":"completed","result":"done"}`,
		`{"content":"from content"}`,
		`{"status":"failed","result":"could not finish"}`,
	}
	for _, body := range valid {
		if err := v.ValidateWebhookResponse([]byte(body)); err != nil {
			t.Errorf("expected %s to be valid, got: %v", body, err)
		}
	}

	cases := []struct {
		name string
		body string
	}{
		{name: "no result or content", body: `{"status":"completed"}`},
		{name: "unknown status", body: `{"status":"done","result":"x"}`},
		{name: "result not a string", body: `{"result":42}`},
		{name: "not an object", body: `"hello"`},
		{name: "invalid json", body: `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateWebhookResponse([]byte(tc.body))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
		})
	}
}

func TestValidateCallback(t *testing.T) {
	v := newTestValidator(t)

	if err := v.ValidateCallback([]byte(`{"task_id":"abc","status":"completed","result":"ok"}`)); err != nil {
		t.Fatalf("expected valid callback, got: %v", err)
	}
	if err := v.ValidateCallback([]byte(`{"task_id":"abc","result":""}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("empty result: expected ErrValidation, got: %v", err)
	}
	if err := v.ValidateCallback([]byte(`{"result":"ok"}`)); !errors.Is(err, ErrValidation) {
		t.Errorf("missing task_id: expected ErrValidation, got: %v", err)
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := newTestValidator(t)
	err := v.Validate("nope", []byte(`{}`))
	if err == nil || errors.Is(err, ErrValidation) {
		t.Fatalf("expected non-validation error for unknown schema, got: %v", err)
	}
}
