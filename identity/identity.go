// Package identity derives the client name of a provisioning request.
package identity

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrUnidentified is returned when a request carries no usable identity.
var ErrUnidentified = errors.New("client could not be identified")

// Resolver extracts the client name from a request.
type Resolver interface {
	ClientName(r *http.Request) (string, error)
}

// HeaderResolver takes the name verbatim from a request header, typically set
// by a trusted reverse proxy.
type HeaderResolver struct {
	Header string
}

func (h HeaderResolver) ClientName(r *http.Request) (string, error) {
	name := strings.TrimSpace(r.Header.Get(h.Header))
	if name == "" {
		return "", fmt.Errorf("%w: header %s not set", ErrUnidentified, h.Header)
	}
	return name, nil
}

// CertificateResolver uses the common name of the client certificate. The
// certificate is taken from the verified TLS connection or, if Header is
// set, from a URL-escaped PEM certificate forwarded by a TLS terminating
// proxy.
type CertificateResolver struct {
	Header string
}

func (c CertificateResolver) ClientName(r *http.Request) (string, error) {
	if r.TLS != nil && len(r.TLS.VerifiedChains) > 0 && len(r.TLS.VerifiedChains[0]) > 0 {
		return commonName(r.TLS.VerifiedChains[0][0])
	}

	if c.Header == "" {
		return "", fmt.Errorf("%w: no verified client certificate", ErrUnidentified)
	}
	raw := r.Header.Get(c.Header)
	if raw == "" {
		return "", fmt.Errorf("%w: header %s not set", ErrUnidentified, c.Header)
	}

	cert, err := ParseForwardedCertificate(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnidentified, err)
	}
	return commonName(cert)
}

// ParseForwardedCertificate decodes a URL-escaped PEM certificate as sent
// by nginx's $ssl_client_escaped_cert.
func ParseForwardedCertificate(raw string) (*x509.Certificate, error) {
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unescape certificate: %w", err)
	}
	block, _ := pem.Decode([]byte(unescaped))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no PEM certificate found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func commonName(cert *x509.Certificate) (string, error) {
	if cert.Subject.CommonName == "" {
		return "", fmt.Errorf("%w: certificate has no common name", ErrUnidentified)
	}
	return cert.Subject.CommonName, nil
}

// Chain tries each resolver in turn and returns the first name found.
type Chain []Resolver

func (c Chain) ClientName(r *http.Request) (string, error) {
	var errs []error
	for _, res := range c {
		name, err := res.ClientName(r)
		if err == nil {
			return name, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrUnidentified
	}
	return "", errors.Join(errs...)
}

// New builds the resolver for the server configuration: certificates first,
// then the name header if one is configured.
func New(nameHeader, certHeader string) Resolver {
	chain := Chain{CertificateResolver{Header: certHeader}}
	if nameHeader != "" {
		chain = append(chain, HeaderResolver{Header: nameHeader})
	}
	return chain
}
