package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWrite_MapsCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{New(InvalidArgument, "title is required"), http.StatusBadRequest, "title is required"},
		{New(Conflict, "task is not in progress"), http.StatusConflict, "task is not in progress"},
		{fmt.Errorf("apply: %w", New(AlreadyExists, "already applied")), http.StatusConflict, "already applied"},
		{New(PermissionDenied, "not your gig"), http.StatusForbidden, "not your gig"},
		{errors.New("db exploded"), http.StatusInternalServerError, "internal error"},
		{Wrap(Internal, "secret detail", errors.New("x")), http.StatusInternalServerError, "internal error"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		Write(rec, nil, c.err)
		if rec.Code != c.status {
			t.Errorf("%v: expected %d, got %d", c.err, c.status, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != c.msg {
			t.Errorf("%v: expected message %q, got %q", c.err, c.msg, body["error"])
		}
	}
}

func TestIsCode_Unwraps(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(NotFound, "gig not found", errors.New("no rows")))
	if !IsCode(err, NotFound) {
		t.Fatal("expected NotFound through wrapping")
	}
	if IsCode(errors.New("plain"), NotFound) {
		t.Fatal("plain error must not match")
	}
}
