package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	svcerrors "github.com/northbeacon/quotectl/infrastructure/errors"
	"github.com/northbeacon/quotectl/internal/canonjson"
	"github.com/northbeacon/quotectl/internal/snapshot"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := canonjson.Marshal(v)
	if err != nil {
		writeServiceError(w, svcerrors.Internal("encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
}

// writeServiceError renders a *errors.ServiceError as spec.md §7's flat
// {"error": "<code>"} envelope.
func writeServiceError(w http.ResponseWriter, svcErr *svcerrors.ServiceError) {
	writeError(w, svcErr.HTTPStatus, string(svcErr.Code))
}

func decodeJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		return svcerrors.InvalidJSON(err)
	}
	return nil
}

// snapshotErrorCode maps a snapshot load failure to one of C1's closed
// error-code set, falling back to a generic code for non-integrity errors
// (e.g. the path does not exist).
func snapshotErrorCode(err error) string {
	var integrity *snapshot.IntegrityError
	if errors.As(err, &integrity) {
		return string(integrity.Kind)
	}
	return "snapshot_unreadable"
}
