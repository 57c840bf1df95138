// Package urlguard keeps captures away from addresses they must not reach:
// non-HTTP schemes, loopback, link-local and private networks.
//
// Check validates a URL before a page is opened. Client returns an HTTP
// client that re-checks every address at dial time, which also covers
// redirects and DNS answers that change between the check and the request.
package urlguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// ErrUnsafeScheme is returned for schemes other than http and https.
var ErrUnsafeScheme = errors.New("urlguard: only http and https are allowed")

// ErrPrivateAddress is returned when a URL targets a loopback, link-local or
// private address.
var ErrPrivateAddress = errors.New("urlguard: address is loopback, link-local or private")

// ErrInvalidIdentifier is returned by CheckIdentifier.
var ErrInvalidIdentifier = errors.New("urlguard: invalid id")

var privateNets = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
)

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// IsPrivate reports whether ip must not be captured.
func IsPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Check validates rawURL: http or https, a host, and no private address
// among the host's literal IP or resolved addresses. A host that does not
// resolve passes; the request fails later with a network error.
func Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("urlguard: invalid url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("urlguard: url has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivate(ip) {
			return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if IsPrivate(a.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, host, a.IP)
		}
	}
	return nil
}

// CheckIdentifier validates a caller-supplied id: 1 to 128 characters from
// [A-Za-z0-9_.-].
func CheckIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidIdentifier)
	}
	if len(s) > 128 {
		return fmt.Errorf("%w: longer than 128 characters", ErrInvalidIdentifier)
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '-' || r == '.'
		if !ok {
			return fmt.Errorf("%w: character %q", ErrInvalidIdentifier, r)
		}
	}
	return nil
}

// control rejects connections to private addresses once DNS has resolved.
func control(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivate(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
	}
	return nil
}

// Client returns an HTTP client that refuses to connect to private
// addresses.
func Client(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: control}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	tr.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: tr}
}
