// Package handlers exposes the task, gig, payment, subscription,
// notification and agent APIs over HTTP.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/upmolt/backend/internal/apierr"
	"github.com/upmolt/backend/internal/models"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var success = map[string]bool{"success": true}

// decode reads a JSON body into v and checks its validate tags. msg is the
// error shown when validation fails.
func decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, v any, msg string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apierr.Write(w, log, apierr.New(apierr.InvalidArgument, "invalid JSON"))
		return false
	}
	if err := validate.Struct(v); err != nil {
		apierr.Write(w, log, apierr.New(apierr.InvalidArgument, msg))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, log *slog.Logger, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierr.Write(w, log, apierr.New(apierr.InvalidArgument, "invalid "+what+" id"))
		return uuid.Nil, false
	}
	return id, true
}

// optionalID parses s, returning nil for an empty or malformed id.
func optionalID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func gigFilter(r *http.Request) models.GigFilter {
	q := r.URL.Query()
	f := models.GigFilter{Status: q.Get("status"), Sort: q.Get("sort")}
	if s := q.Get("skills"); s != "" {
		for _, skill := range strings.Split(s, ",") {
			if skill = strings.TrimSpace(skill); skill != "" {
				f.Skills = append(f.Skills, skill)
			}
		}
	}
	f.MinBudget, _ = strconv.ParseFloat(q.Get("min_budget"), 64)
	f.MaxBudget, _ = strconv.ParseFloat(q.Get("max_budget"), 64)
	return f
}
