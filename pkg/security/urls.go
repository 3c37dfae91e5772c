package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrMissingHost       = errors.New("URL host is required")
	ErrLocalNetwork      = errors.New("local network target is not allowed")
)

// URLPolicy says which absolute URLs the client may follow or hand to the
// document viewer.
type URLPolicy struct {
	// AllowHTTP permits plain HTTP URLs. HTTPS is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits loopback, private and link-local targets and
	// localhost hostnames.
	AllowLocalNetworks bool
}

// DocumentPolicy accepts any http(s) document link, intranet hosts included.
var DocumentPolicy = URLPolicy{AllowHTTP: true, AllowLocalNetworks: true}

// ValidateURL checks rawURL against p. Only http and https are ever accepted,
// which keeps javascript:, data: and file: links out of the viewer.
func ValidateURL(rawURL string, p URLPolicy) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "invalid URL")
	}

	switch strings.ToLower(parsed.Scheme) {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return errors.Wrap(ErrUnsupportedScheme, "http")
		}
	default:
		return errors.Wrapf(ErrUnsupportedScheme, "%q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return ErrMissingHost
	}
	if p.AllowLocalNetworks {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return errors.Wrapf(ErrLocalNetwork, "host %q", host)
	}
	// IP literals are checked without DNS lookups
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" {
			return errors.Wrapf(ErrLocalNetwork, "zoned address %q", host)
		}
		addr = addr.Unmap()
		if addr.IsUnspecified() || addr.IsMulticast() ||
			addr.IsLoopback() || addr.IsPrivate() ||
			addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
			return errors.Wrapf(ErrLocalNetwork, "address %q", host)
		}
	}

	return nil
}
