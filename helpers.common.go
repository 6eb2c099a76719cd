package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
)

type (
	ContextKey        string
	missingFieldError string
	invalidParamError string
)

const (
	RequestIDPrefix      string     = "r"
	ContextRequestID     ContextKey = "request.id"
	ContextRequestNumber ContextKey = "request.number"
	ContextRequestUser   ContextKey = "request.user"
)

var ErrMissingBody = errors.New("missing request body")

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

func (p invalidParamError) Error() string {
	return string(p) + " must be a valid integer"
}

// GetValueFromContext returns the value of a given key in the context
// if this key is not available, it returns an empty string.
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	if val, ok := ctx.Value(contextKey).(string); ok {
		return val
	}
	return ""
}

// GetRequestNumberFromContext returns the request number set in
// the context. if not previously set then it returns 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	if val, ok := ctx.Value(ContextRequestNumber).(uint64); ok {
		return val
	}
	return 0
}

// BookRequest is the payload accepted by the create endpoint. Available is
// a pointer so that an omitted field defaults to true.
type BookRequest struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Available   *bool  `json:"available"`
}

// ToBook converts the payload into a Book.
func (br *BookRequest) ToBook() Book {
	available := true
	if br.Available != nil {
		available = *br.Available
	}
	return Book{
		ID:          br.ID,
		Title:       br.Title,
		Author:      br.Author,
		ISBN:        br.ISBN,
		Description: br.Description,
		Quantity:    br.Quantity,
		Available:   available,
	}
}

// DecodeCreateBookRequestBody is a helper function to read the content of a book creation request.
func DecodeCreateBookRequestBody(r *http.Request, br *BookRequest) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrMissingBody
	}
	return json.NewDecoder(r.Body).Decode(br)
}

// ValidateCreateBookRequestBody checks the columns the books table declares as not null.
func ValidateCreateBookRequestBody(br *BookRequest) error {
	if len(strings.TrimSpace(br.Title)) == 0 {
		return missingFieldError("title")
	}

	if len(strings.TrimSpace(br.Author)) == 0 {
		return missingFieldError("author")
	}

	if len(strings.TrimSpace(br.ISBN)) == 0 {
		return missingFieldError("isbn")
	}

	return nil
}

// ParseBookID converts a path value into a book id.
func ParseBookID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalidParamError("id")
	}
	return id, nil
}

// ParseIntQueryParam reads a required integer query parameter.
func ParseIntQueryParam(r *http.Request, name string) (int, error) {
	q := r.URL.Query()
	if !q.Has(name) {
		return 0, missingFieldError(name)
	}
	v, err := strconv.Atoi(q.Get(name))
	if err != nil {
		return 0, invalidParamError(name)
	}
	return v, nil
}

// GetRequestSourceIP helps find the source IP of the caller.
func GetRequestSourceIP(r *http.Request) string {
	// Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip
	}

	// Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	splitIps := strings.Split(ips, ",")
	for _, ip := range splitIps {
		ip = strings.TrimSpace(ip)
		netIP = net.ParseIP(ip)
		if netIP != nil {
			return ip
		}
	}

	return GetRequestPeerIP(r)
}

// GetRequestPeerIP returns the IP of the connected peer. Unlike
// GetRequestSourceIP it ignores the forwarding headers set by clients.
func GetRequestPeerIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}

// RedactDSN masks the credentials part of a connection string.
func RedactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}

// IsAppRunningInDocker checks the existence of the .dockerenv
// file at the root directory and returns a boolean result.
func IsAppRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
