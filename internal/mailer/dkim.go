package mailer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/emersion/go-msgauth/dkim"
)

// DKIMSigner signs outgoing messages with DKIM
type DKIMSigner struct {
	privateKey *rsa.PrivateKey
	domain     string
	selector   string
}

// NewDKIMSigner creates a signer from an in-memory key
func NewDKIMSigner(privateKey *rsa.PrivateKey, domain, selector string) *DKIMSigner {
	return &DKIMSigner{
		privateKey: privateKey,
		domain:     domain,
		selector:   selector,
	}
}

// NewDKIMSignerFromFile creates a signer from a PEM key file
func NewDKIMSignerFromFile(keyFile, domain, selector string) (*DKIMSigner, error) {
	privateKey, err := loadPrivateKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load DKIM key: %w", err)
	}
	return NewDKIMSigner(privateKey, domain, selector), nil
}

// Sign signs the message and returns the signed message
func (s *DKIMSigner) Sign(message []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.selector,
		Signer:                 s.privateKey,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
	}

	var signedMsg bytes.Buffer
	if err := dkim.Sign(&signedMsg, bytes.NewReader(message), options); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	return signedMsg.Bytes(), nil
}

// Domain returns the DKIM domain
func (s *DKIMSigner) Domain() string {
	return s.domain
}

// Selector returns the DKIM selector
func (s *DKIMSigner) Selector() string {
	return s.selector
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not RSA")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}
