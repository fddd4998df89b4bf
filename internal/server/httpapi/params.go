package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sparkleops/dbdistrib/internal/common"
)

// pathID returns the {id} route variable after checking it parses as a UUID.
// The id columns are uuid-typed, so a malformed id must be rejected here:
// letting it reach the driver turns a client mistake into a query error.
func pathID(r *http.Request) (string, error) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		return "", common.NewValidationError("id", "must be a UUID")
	}
	return id, nil
}

// uuidField validates a UUID-typed body field.
func uuidField(name, value string) error {
	if value == "" {
		return common.NewValidationError(name, "required")
	}
	if _, err := uuid.Parse(value); err != nil {
		return common.NewValidationError(name, "must be a UUID")
	}
	return nil
}

// positiveQueryInt parses an optional positive integer query parameter.
// A max of 0 means unbounded.
func positiveQueryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, common.NewValidationError(name, "must be a positive integer")
	}
	if max > 0 && n > max {
		return 0, common.NewValidationError(name, "must be at most "+strconv.Itoa(max))
	}
	return n, nil
}
