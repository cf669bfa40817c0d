// Package network provides the endpoint half of the ioguard validation
// gate: deciding whether a network I/O event may proceed, based on its
// target endpoint and payload size.
//
// Only http and https endpoints are admitted. Scheme matching is
// case-insensitive but otherwise strict: no protocol nesting, no
// credentials in the URL, no missing host, no non-numeric port. Endpoints
// aimed at well-known sensitive ports or cloud metadata addresses are
// rejected even when well-formed.
//
// Rejections carry one of two failure classes (see errors.go) so callers
// can tell "never retry" from "fix the input and retry".
package network

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dshills/ioguard/pkg/event"
)

// DefaultMaxPayloadSize is the largest network payload admitted, in bytes.
const DefaultMaxPayloadSize = 10 * 1024 * 1024

// DefaultBlockedPorts are destination ports never admitted: SSH and RDP.
var DefaultBlockedPorts = []int{22, 3389}

// DefaultBlockedHosts are destination hosts never admitted. The link-local
// metadata address covers the common cloud credential-theft target.
var DefaultBlockedHosts = []string{"169.254.169.254", "metadata.google.internal"}

// schemeRegexp extracts a leading URI scheme, if any, ahead of full URL
// parsing so unsupported protocols get their own failure class even when
// the rest of the endpoint is garbage.
var schemeRegexp = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.\-]*)://`)

// bareSchemeRegexp matches colon-only scheme forms such as javascript: and
// data: that never carry an authority component.
var bareSchemeRegexp = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.\-]*):`)

// hostileEndpointPatterns are substrings that mark an endpoint string as
// attacker-controlled regardless of URL structure.
var hostileEndpointPatterns = []string{
	"<script", "javascript:", "vbscript:", "../", "..\\", "..%2f", "..%5c", "%2e%2e",
}

// EndpointValidator gates network I/O events by endpoint and payload size.
//
// Thread-safe for concurrent use; the only mutable state is a pair of
// atomic counters.
type EndpointValidator struct {
	maxPayloadSize int64
	blockedPorts   map[int]bool
	blockedHosts   map[string]bool
	validations    uint64
	rejections     uint64
}

// NewEndpointValidator creates a validator with the default payload cap,
// blocked ports, and blocked hosts.
func NewEndpointValidator() *EndpointValidator {
	v, _ := NewEndpointValidatorWithLimits(DefaultMaxPayloadSize, DefaultBlockedPorts, DefaultBlockedHosts)
	return v
}

// NewEndpointValidatorWithLimits creates a validator with explicit limits.
//
// Returns an error only for caller misuse (non-positive payload cap).
func NewEndpointValidatorWithLimits(maxPayloadSize int64, blockedPorts []int, blockedHosts []string) (*EndpointValidator, error) {
	if maxPayloadSize <= 0 {
		return nil, fmt.Errorf("max payload size must be positive, got %d", maxPayloadSize)
	}

	ports := make(map[int]bool, len(blockedPorts))
	for _, p := range blockedPorts {
		ports[p] = true
	}
	hosts := make(map[string]bool, len(blockedHosts))
	for _, h := range blockedHosts {
		hosts[strings.ToLower(h)] = true
	}

	return &EndpointValidator{
		maxPayloadSize: maxPayloadSize,
		blockedPorts:   ports,
		blockedHosts:   hosts,
	}, nil
}

// MaxPayloadSize returns the configured payload cap in bytes.
func (v *EndpointValidator) MaxPayloadSize() int64 {
	return v.maxPayloadSize
}

// ValidateEndpoint checks a target endpoint string.
//
// Returns nil if the endpoint may be contacted, an error wrapping
// ErrProtocolNotSupported for non-http(s) schemes, or an error wrapping
// ErrInvalidOperation for everything malformed or denied.
func (v *EndpointValidator) ValidateEndpoint(endpoint string) error {
	atomic.AddUint64(&v.validations, 1)
	if err := v.checkEndpoint(endpoint); err != nil {
		atomic.AddUint64(&v.rejections, 1)
		return err
	}
	return nil
}

func (v *EndpointValidator) checkEndpoint(endpoint string) error {
	if endpoint == "" {
		return invalidOp(endpoint, "endpoint cannot be empty")
	}
	if strings.ContainsRune(endpoint, 0) {
		return invalidOp(endpoint, "null byte in endpoint")
	}

	lower := strings.ToLower(endpoint)

	// Scheme first: unsupported protocols get their own failure class even
	// when the rest of the endpoint would not parse. Colon-only forms like
	// javascript:alert(1) carry a scheme too.
	m := schemeRegexp.FindStringSubmatch(endpoint)
	if m == nil {
		if bare := bareSchemeRegexp.FindStringSubmatch(endpoint); bare != nil {
			scheme := strings.ToLower(bare[1])
			if scheme != "http" && scheme != "https" {
				return notSupported(endpoint, fmt.Sprintf("scheme %q is not supported", scheme))
			}
		}
		return invalidOp(endpoint, "missing or malformed scheme")
	}
	scheme := strings.ToLower(m[1])
	if scheme != "http" && scheme != "https" {
		return notSupported(endpoint, fmt.Sprintf("scheme %q is not supported", scheme))
	}

	// No protocol nesting: a second "://" anywhere after the scheme.
	rest := endpoint[len(m[0]):]
	if strings.Contains(rest, "://") {
		return invalidOp(endpoint, "nested protocol in endpoint")
	}

	// Embedded scripts or traversal sequences are malformed input, not
	// something to forward.
	for _, pattern := range hostileEndpointPatterns {
		if strings.Contains(lower, pattern) {
			return invalidOp(endpoint, fmt.Sprintf("hostile sequence %q in endpoint", pattern))
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return invalidOp(endpoint, fmt.Sprintf("malformed endpoint: %v", err))
	}
	if u.User != nil {
		return invalidOp(endpoint, "credentials in endpoint are not allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return invalidOp(endpoint, "missing host")
	}
	if v.blockedHosts[host] {
		return invalidOp(endpoint, fmt.Sprintf("host %q is blocked", host))
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return invalidOp(endpoint, fmt.Sprintf("invalid port %q", portStr))
		}
		if v.blockedPorts[port] {
			return invalidOp(endpoint, fmt.Sprintf("sensitive port %d is blocked", port))
		}
	}

	return nil
}

// ValidatePayload checks a payload against the size cap before any network
// call is attempted.
func (v *EndpointValidator) ValidatePayload(data []byte) error {
	atomic.AddUint64(&v.validations, 1)
	if int64(len(data)) > v.maxPayloadSize {
		atomic.AddUint64(&v.rejections, 1)
		return invalidOp("", fmt.Sprintf("payload size %d exceeds maximum allowed size %d", len(data), v.maxPayloadSize))
	}
	return nil
}

// ProcessEvent validates a network IOEvent end to end: event type, endpoint
// metadata, then payload size. Nothing is sent; the gate only decides.
func (v *EndpointValidator) ProcessEvent(ev *event.IOEvent) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	if ev.Type != event.TypeNetworkIO {
		return fmt.Errorf("event %s is %s, not %s", ev.ID, ev.Type, event.TypeNetworkIO)
	}

	endpoint := ev.Endpoint()
	if endpoint == "" {
		atomic.AddUint64(&v.validations, 1)
		atomic.AddUint64(&v.rejections, 1)
		return invalidOp("", "network event carries no Endpoint metadata")
	}
	if err := v.ValidateEndpoint(endpoint); err != nil {
		return err
	}
	return v.ValidatePayload(ev.Data)
}

// Stats returns validation statistics for monitoring.
func (v *EndpointValidator) Stats() (validations, rejections uint64) {
	return atomic.LoadUint64(&v.validations), atomic.LoadUint64(&v.rejections)
}
