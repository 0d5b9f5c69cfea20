package api

import (
	"encoding/json"
	"net/http"
	"reflect"

	"gigflow/internal/common/errors"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code      errors.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Details   string           `json:"details,omitempty"`
	Retryable bool             `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeData wraps data in the success envelope. Slices also carry their length.
func writeData(w http.ResponseWriter, status int, data interface{}) {
	env := envelope{Success: true, Data: data}
	if v := reflect.ValueOf(data); v.Kind() == reflect.Slice {
		n := v.Len()
		env.Count = &n
	}
	writeJSON(w, status, env)
}

// writeError renders err in the failure envelope. Infrastructure details of
// 5xx errors stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	stdErr := errors.Normalize(err)
	status := errors.HTTPStatus(stdErr.Code)

	body := &errorBody{
		Code:      stdErr.Code,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
	}
	if status >= http.StatusInternalServerError {
		body.Details = ""
	}
	writeJSON(w, status, envelope{Success: false, Error: body})
}
