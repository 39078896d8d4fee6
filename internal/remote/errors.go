package remote

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorKind buckets remote failures into the fixed taxonomy the probe and
// fetch/upload paths surface. Callers branch on the kind, not on status
// codes or transport details.
type ErrorKind int

const (
	// KindAuthenticationFailed: remote answered 401/403. Not retried.
	KindAuthenticationFailed ErrorKind = iota
	// KindEndpointNotFound: 404 on the metadata path, endpoint misconfigured.
	KindEndpointNotFound
	// KindRemoteServerError: 5xx; caller may retry.
	KindRemoteServerError
	// KindMalformedResponse: body is not the expected JSON shape; the
	// endpoint speaks, but not our protocol.
	KindMalformedResponse
	// KindUnreachable: DNS failure, refused connection or timeout.
	KindUnreachable
	// KindTlsUntrusted: certificate verification failed.
	KindTlsUntrusted
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthenticationFailed:
		return "AuthenticationFailed"
	case KindEndpointNotFound:
		return "EndpointNotFound"
	case KindRemoteServerError:
		return "RemoteServerError"
	case KindMalformedResponse:
		return "MalformedResponse"
	case KindUnreachable:
		return "Unreachable"
	case KindTlsUntrusted:
		return "TlsUntrusted"
	}
	return "Unknown"
}

// Error is the typed result every remote failure is returned as. It is
// never thrown across the sync-cycle boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the taxonomy kind from err, or -1 for non-remote errors.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return -1
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// classifyStatus maps a non-2xx HTTP status from the metadata or file
// endpoints into the taxonomy.
func classifyStatus(status int, path string) *Error {
	switch {
	case status == 401 || status == 403:
		return newError(KindAuthenticationFailed, "remote rejected the configured credentials")
	case status == 404:
		return newError(KindEndpointNotFound, fmt.Sprintf("remote has no %s, check endpoint_url", path))
	case status >= 500:
		return newError(KindRemoteServerError, fmt.Sprintf("remote server error (HTTP %d)", status))
	default:
		return newError(KindMalformedResponse, fmt.Sprintf("unexpected HTTP %d from %s", status, path))
	}
}

// classifyTransport maps an http.Client.Do failure into the taxonomy,
// keeping each unreachable cause a distinct, user-actionable message.
func classifyTransport(err error) *Error {
	var certErr x509.UnknownAuthorityError
	var invalidErr x509.CertificateInvalidError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &invalidErr) || errors.As(err, &hostErr) {
		return &Error{
			Kind:    KindTlsUntrusted,
			Message: "remote certificate is not trusted; set trust_invalid_certs if the endpoint uses a self-signed certificate",
			Err:     err,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:    KindUnreachable,
			Message: fmt.Sprintf("DNS lookup failed for %s, check endpoint_url", dnsErr.Name),
			Err:     err,
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{
			Kind:    KindUnreachable,
			Message: "connection refused, is the remote store running?",
			Err:     err,
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{
			Kind:    KindUnreachable,
			Message: "request timed out, check network connectivity or raise timeout_ms",
			Err:     err,
		}
	}

	return &Error{Kind: KindUnreachable, Message: "remote store unreachable", Err: err}
}
