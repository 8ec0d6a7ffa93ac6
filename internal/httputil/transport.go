package httputil

import (
	"crypto/tls"
	"net/http"
)

// DefaultTransportWithMinTLS12 clones http.DefaultTransport (when possible)
// and enforces a TLS 1.2 floor for outbound calls, so every external
// integration shares one hardened transport instead of cloning its own.
func DefaultTransportWithMinTLS12() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}

	cloned := base.Clone()
	if cloned.TLSClientConfig != nil {
		cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
		if cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
			cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
		}
	} else {
		cloned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return cloned
}
