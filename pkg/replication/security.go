package replication

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc/credentials"
)

// PeerCA issues the leaf certificates peers present to each other over
// StreamSync (spec.md §6's mTLS transport guarantee, layered under the
// auth_token tenant-scoping check in Subscribe). Adapted from the cluster
// join-token CA the teacher uses for node/CLI certs: rem has no cluster
// join process, so this drops disk persistence and role-based SAN
// handling and keeps only root generation + leaf issuance + verification.
type PeerCA struct {
	mu       sync.RWMutex
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey
}

const (
	rootCAValidity = 10 * 365 * 24 * time.Hour
	peerCertValidity = 90 * 24 * time.Hour
	rootKeyBits      = 4096
	peerKeyBits      = 2048
)

// NewPeerCA generates a fresh, in-memory root CA. A process that needs the
// same CA across restarts persists RootCertDER() itself (e.g. in the
// embedding host's own secret store) and re-derives peer certs from it.
func NewPeerCA() (*PeerCA, error) {
	rootKey, err := rsa.GenerateKey(rand.Reader, rootKeyBits)
	if err != nil {
		return nil, fmt.Errorf("replication: generate root key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("replication: generate serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"rem"}, CommonName: "rem replication CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("replication: create root cert: %w", err)
	}
	rootCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("replication: parse root cert: %w", err)
	}
	return &PeerCA{rootCert: rootCert, rootKey: rootKey}, nil
}

// RootCertDER returns the root CA certificate, shared out-of-band with
// peers so they can verify certificates this CA issues.
func (ca *PeerCA) RootCertDER() []byte {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert.Raw
}

// IssuePeerCert issues a leaf certificate identifying peerID, valid for
// both client and server auth since every node runs both halves of
// StreamSync (spec.md §4.8: "every node runs both a server... and a
// client").
func (ca *PeerCA) IssuePeerCert(peerID string, dnsNames []string, ips []net.IP) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	key, err := rsa.GenerateKey(rand.Reader, peerKeyBits)
	if err != nil {
		return nil, fmt.Errorf("replication: generate peer key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("replication: generate serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"rem"}, CommonName: peerID},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(peerCertValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &key.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("replication: issue peer cert: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("replication: parse peer cert: %w", err)
	}
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}

// ServerCredentials builds mTLS transport credentials for a StreamSync
// server: it requires and verifies every client certificate against this
// CA before the Subscribe-level auth_token check ever runs.
func (ca *PeerCA) ServerCredentials(cert *tls.Certificate) credentials.TransportCredentials {
	pool := x509.NewCertPool()
	pool.AddCert(ca.rootCert)
	return credentials.NewTLS(&tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	})
}

// ClientCredentials builds mTLS transport credentials for a StreamSync
// client dialing a peer whose certificate is signed by this CA.
func (ca *PeerCA) ClientCredentials(cert *tls.Certificate) credentials.TransportCredentials {
	pool := x509.NewCertPool()
	pool.AddCert(ca.rootCert)
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	})
}

// tokenVerifier is the default AuthVerifier: a static map of tenant to the
// single shared auth_token that tenant's peers must present (spec.md §6
// Subscribe{..., auth_token}).
type tokenVerifier struct {
	tokens map[string]string
}

// NewTokenVerifier builds an AuthVerifier from a tenant->token map. Every
// device syncing a tenant shares that tenant's token; device_id is carried
// separately for checkpointing and conflict-resolution tie-breaks, not as
// a second credential.
func NewTokenVerifier(tokens map[string]string) AuthVerifier {
	return &tokenVerifier{tokens: tokens}
}

func (v *tokenVerifier) Verify(tenant, _ string, token string) bool {
	want, ok := v.tokens[tenant]
	return ok && token == want
}
