package backend

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Operations recorded in StatusError.Op.
const (
	OpTranslateImage = "translate image"
	OpTranslateJSON  = "translate json"
	OpFetchImage     = "fetch image"
)

// StatusError is a non-2xx reply from the backend or an image host.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

// fromBackend reports whether e is a reply from a translate endpoint
// rather than from the host serving the source image.
func (e *StatusError) fromBackend() bool {
	return e.Op == OpTranslateImage || e.Op == OpTranslateJSON
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d - %s", e.Op, e.StatusCode, e.Body)
}

// Kind classifies a failure for retry decisions.
type Kind int

const (
	// KindGeneric is surfaced to the user and not retried.
	KindGeneric Kind = iota
	// KindConnection means the backend is unreachable. Never retried.
	KindConnection
	// KindResourceExhausted means the backend ran out of (GPU) memory.
	KindResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "generic"
	}
}

// Transport messages for failures that lost their typed error on the way,
// e.g. behind a proxy.
var connectionVocabulary = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
}

var oomVocabulary = []string{
	"out of memory",
	"CUDA",
	"OOM",
	"allocate",
	"memory",
}

// Classify sorts err into the retry taxonomy. Connection problems are
// checked first: a 404 from the backend means a wrong backend URL, not a
// memory problem. Any status from the image host is a failed fetch and
// counts as a connection problem; only translate replies can exhaust
// backend memory.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}

	var se *StatusError
	isStatus := errors.As(err, &se)

	if isStatus && se.Op == OpFetchImage {
		return KindConnection
	}
	backendReply := isStatus && se.fromBackend()

	if backendReply && se.StatusCode == http.StatusNotFound {
		return KindConnection
	}
	if !isStatus && isConnectionError(err) {
		return KindConnection
	}

	if backendReply && se.StatusCode == http.StatusInternalServerError {
		return KindResourceExhausted
	}
	if containsAny(err.Error(), oomVocabulary) {
		return KindResourceExhausted
	}
	return KindGeneric
}

func isConnectionError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	return containsAny(err.Error(), connectionVocabulary)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
