package main

import (
	"context"
	"crypto/x509"
	"net/http"
)

type clientKey struct{}

// withAuth rejects requests that do not present a client certificate
// chaining to the configured CA.  The handshake only requests the
// certificate; verification happens here so the client gets a 401 body.
// The certificate's common name is stored in the request context.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := verifyClient(r, s.clientCAs)
		if !ok {
			s.events.Log("access denied for %s", r.RemoteAddr)
			s.writeError(w, r, ErrUnauthenticated)
			return
		}
		setAccessClient(r.Context(), name)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, name)))
	})
}

// verifyClient checks the peer certificate of r against roots and returns the
// subject common name.
func verifyClient(r *http.Request, roots *x509.CertPool) (string, bool) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 || roots == nil {
		return "", false
	}
	leaf := r.TLS.PeerCertificates[0]
	intermediates := x509.NewCertPool()
	for _, c := range r.TLS.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	if err != nil {
		return "", false
	}
	return leaf.Subject.CommonName, true
}

// clientName returns the authenticated client's common name, or "" outside
// an authenticated request.
func clientName(ctx context.Context) string {
	name, _ := ctx.Value(clientKey{}).(string)
	return name
}
