package qtestprotocol

import (
	"strings"
)

// ResponseKind represents the kind of response from QEMU.
type ResponseKind int

const (
	// ResponseOK indicates a successful response without data.
	ResponseOK ResponseKind = iota
	// ResponseOKVal indicates a successful response carrying a payload.
	ResponseOKVal
	// ResponseErr indicates that QEMU rejected the request.
	ResponseErr
)

// String returns the kind name used in logs.
func (k ResponseKind) String() string {
	switch k {
	case ResponseOK:
		return "ok"
	case ResponseOKVal:
		return "ok-val"
	case ResponseErr:
		return "err"
	default:
		return "unknown"
	}
}

// Response represents a response to a qtest command.
type Response struct {
	Kind    ResponseKind
	Payload string // The OK payload, or the full error text
}

// NewOKResponse creates a successful response without data.
func NewOKResponse() Response {
	return Response{Kind: ResponseOK}
}

// NewOKValResponse creates a successful response with the given payload.
func NewOKValResponse(payload string) Response {
	return Response{Kind: ResponseOKVal, Payload: payload}
}

// NewErrResponse creates an error response with the given text.
func NewErrResponse(text string) Response {
	return Response{Kind: ResponseErr, Payload: text}
}

// ParseResponse converts response text into a Response.
//
// If the first whitespace-separated token is not OK, the whole text is the
// error payload. A lone OK is ResponseOK. Otherwise the remaining tokens,
// re-joined with single spaces, form the ResponseOKVal payload.
func ParseResponse(text string) Response {
	fields := strings.Fields(text)
	if len(fields) == 0 || fields[0] != OKToken {
		return NewErrResponse(text)
	}
	if len(fields) == 1 {
		return NewOKResponse()
	}
	return NewOKValResponse(strings.Join(fields[1:], " "))
}

// IsOK returns true for both successful kinds.
func (r Response) IsOK() bool {
	return r.Kind == ResponseOK || r.Kind == ResponseOKVal
}

// IsError returns true if QEMU rejected the request.
func (r Response) IsError() bool {
	return r.Kind == ResponseErr
}

// Value returns the OK payload and whether the response carried one.
func (r Response) Value() (string, bool) {
	if r.Kind != ResponseOKVal {
		return "", false
	}
	return r.Payload, true
}

// Format returns the response as it appears on the wire, without newline.
func (r Response) Format() string {
	switch r.Kind {
	case ResponseOK:
		return OKToken
	case ResponseOKVal:
		return OKToken + " " + r.Payload
	default:
		return r.Payload
	}
}

// String implements fmt.Stringer.
func (r Response) String() string {
	return r.Format()
}
