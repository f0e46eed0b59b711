package acquire

import (
	"net/url"
	"strings"
)

// uriScheme returns the access scheme of a URI, e.g. "http" for
// "http://a/x" or "tor+https" for "tor+https://a/x".
func uriScheme(uri string) string {
	scheme, _, ok := strings.Cut(uri, ":")
	if !ok {
		return ""
	}
	return scheme
}

// uriSiteOnly reduces a URI to scheme://host[:port], dropping credentials,
// path and query.
func uriSiteOnly(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	site := *u
	site.User = nil
	site.Path = ""
	site.RawPath = ""
	site.RawQuery = ""
	site.Fragment = ""
	return site.String()
}

// uriHost returns the host[:port] part of a URI.
func uriHost(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Host
}

// archiveLabel renders a site for humans: host plus any path, without the
// scheme or a trailing slash. Used as the first token of item descriptions.
func archiveLabel(site string) string {
	u, err := url.Parse(site)
	if err != nil {
		return strings.TrimSuffix(site, "/")
	}
	label := u.Host + u.Path
	return strings.TrimSuffix(label, "/")
}

// encodeURIPath percent-encodes the path component of a URI, leaving the
// rest untouched. Methods that did not advertise Send-URI-Encoded hand us
// decoded paths on redirects; this restores canonical form.
func encodeURIPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	// with RawPath cleared, rendering re-encodes Path canonically
	u.RawPath = ""
	return u.String()
}

// decodeURIPath replaces the path component with its decoded form, for
// methods that want URIs unencoded on the wire.
func decodeURIPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	decoded, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		return uri
	}
	prefix := uriSiteOnly(uri)
	rest := strings.TrimPrefix(uri, prefix)
	if idx := strings.IndexAny(rest, "?#"); idx >= 0 {
		return prefix + decoded + rest[idx:]
	}
	return prefix + decoded
}

// replaceSiteLabel swaps the first space-separated token of a description.
func replaceSiteLabel(description, label string) string {
	if idx := strings.Index(description, " "); idx >= 0 {
		return label + description[idx:]
	}
	return description
}
