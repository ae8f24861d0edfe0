package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"unicode/utf8"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
)

// Response is the decoded gateway envelope. Successful is the envelope flag;
// Result.Successful is the card transaction flag. They are independent.
type Response struct {
	Successful *bool              `json:"successful"`
	Result     *TransactionResult `json:"response"`
	Errors     []string           `json:"errors"`
	HTTPStatus int                `json:"-"`
}

type TransactionResult struct {
	Successful bool   `json:"successful"`
	ID         string `json:"id"`
	Message    string `json:"message"`
	CardNumber string `json:"card_number"`
	Reference  string `json:"reference"`
}

// EnvelopeSuccessful treats an absent flag as false.
func (r *Response) EnvelopeSuccessful() bool {
	return r != nil && r.Successful != nil && *r.Successful
}

// TransportError is a failure below the JSON layer: connection, TLS,
// timeout, redirect, or a non-2xx status with an unreadable body.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	// Sent is false only when the request provably never left the process.
	Sent bool
	Err  error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s %s: HTTP %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{domainErrors.ErrTransportFailure, e.Err}
}

// NotSent reports whether err is a transport failure that happened before
// the request reached the gateway.
func NotSent(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && !te.Sent
}

// MalformedKind classifies why a body could not be decoded.
type MalformedKind string

const (
	MalformedSyntax   MalformedKind = "syntax"
	MalformedEncoding MalformedKind = "encoding"
	MalformedUnknown  MalformedKind = "unknown"
)

const sampleLimit = 256

var panPattern = regexp.MustCompile(`\d{13,19}`)

// MalformedResponseError carries a redacted, truncated sample of the body.
type MalformedResponseError struct {
	Kind   MalformedKind
	Sample string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed gateway response (%s): %v; body: %q", e.Kind, e.Err, e.Sample)
}

func (e *MalformedResponseError) Unwrap() []error {
	return []error{domainErrors.ErrMalformedResponse, e.Err}
}

func newMalformed(kind MalformedKind, body []byte, err error) *MalformedResponseError {
	return &MalformedResponseError{Kind: kind, Sample: sample(body), Err: err}
}

func sample(body []byte) string {
	if len(body) > sampleLimit {
		body = body[:sampleLimit]
	}
	s := string(bytes.ToValidUTF8(body, []byte("?")))
	return panPattern.ReplaceAllString(s, "[REDACTED]")
}

// decodeResponse never returns a nil response without an error.
func decodeResponse(status int, body []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, newMalformed(MalformedSyntax, body, errors.New("empty body"))
	}
	if !utf8.Valid(trimmed) {
		return nil, newMalformed(MalformedEncoding, body, errors.New("invalid UTF-8"))
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, newMalformed(MalformedUnknown, body, errors.New("null document"))
	}

	var res Response
	if err := json.Unmarshal(trimmed, &res); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, newMalformed(MalformedSyntax, body, err)
		}
		return nil, newMalformed(MalformedUnknown, body, err)
	}
	res.HTTPStatus = status
	return &res, nil
}

func isSuccessStatus(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
