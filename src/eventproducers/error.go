package eventproducers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}

func NewErrorResponse(errType string, message string) *ErrorResponse {
	return &ErrorResponse{
		Type: errType,
		Msg:  message,
	}
}

func SetResponse[T any](obj *T, w http.ResponseWriter) error {
	return SetResponseWithStatus(obj, http.StatusOK, w)
}

func SetResponseWithStatus[T any](obj *T, statusCode int, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(obj); err != nil {
		return fmt.Errorf("SetResponse: encode: %w", err)
	}

	return nil
}

func SetErrorResponse(errType string, statusCode int, err error, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := NewErrorResponse(errType, err.Error())
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		return encodeErr
	}

	return nil
}
