package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// StatusClientClosedRequest is the Nginx non standard code for cancelled requests.
const StatusClientClosedRequest = 499

// EmptyData renders as {} in error envelopes without details.
var EmptyData = struct{}{}

// CustomResponseWriter records the status code and the body size of a response.
type CustomResponseWriter struct {
	http.ResponseWriter
	code        int
	bytes       int
	wroteHeader bool
}

// NewCustomResponseWriter wraps rw. The status defaults to 200 like net/http does.
func NewCustomResponseWriter(rw http.ResponseWriter) *CustomResponseWriter {
	return &CustomResponseWriter{ResponseWriter: rw, code: http.StatusOK}
}

// WriteHeader only forwards the first call.
func (cw *CustomResponseWriter) WriteHeader(code int) {
	if cw.wroteHeader {
		return
	}
	cw.code, cw.wroteHeader = code, true
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *CustomResponseWriter) Write(b []byte) (int, error) {
	cw.WriteHeader(cw.code)
	n, err := cw.ResponseWriter.Write(b)
	cw.bytes += n
	return n, err
}

func (cw *CustomResponseWriter) Status() int { return cw.code }

func (cw *CustomResponseWriter) Bytes() int { return cw.bytes }

// Unwrap exposes the wrapped writer to http.ResponseController.
func (cw *CustomResponseWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// APIError is the body of every error response except 404 and 204.
type APIError struct {
	RequestID string      `json:"requestid"`
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

func NewAPIError(requestid string, status int, message string, data interface{}) *APIError {
	return &APIError{RequestID: requestid, Status: status, Message: message, Data: data}
}

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	RequestID string `json:"requestid"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// abortIfDone records 499 when the client went away and 504 when the request
// processing timed out. In both cases nothing is sent to the client.
func abortIfDone(ctx context.Context, w http.ResponseWriter) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		w.WriteHeader(http.StatusGatewayTimeout)
	default:
		w.WriteHeader(StatusClientClosedRequest)
	}
	return err
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) error {
	if err := abortIfDone(ctx, w); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse sends the error envelope with its own status.
func WriteErrorResponse(ctx context.Context, w http.ResponseWriter, errResp *APIError) error {
	return writeJSON(ctx, w, errResp.Status, errResp)
}

// WriteResponse sends data as a json document.
func WriteResponse(ctx context.Context, w http.ResponseWriter, status int, data interface{}) error {
	return writeJSON(ctx, w, status, data)
}

// WriteEmptyResponse sends only the status code, used for 204 and 404.
func WriteEmptyResponse(ctx context.Context, w http.ResponseWriter, status int) error {
	if err := abortIfDone(ctx, w); err != nil {
		return err
	}
	w.WriteHeader(status)
	return nil
}
