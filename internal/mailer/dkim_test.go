package mailer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestDKIMSignerSign(t *testing.T) {
	signer := NewDKIMSigner(generateTestKey(t), "fern.example", "mail")

	msg := BuildMessage(Envelope{
		From:    "news@fern.example",
		To:      "jane@example.com",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
	}, time.Now())

	signed, err := signer.Sign(msg)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	signedStr := string(signed)
	if !strings.Contains(signedStr, "DKIM-Signature:") {
		t.Error("signed message missing DKIM-Signature header")
	}
	if !strings.Contains(signedStr, "d=fern.example") {
		t.Error("signature missing domain tag")
	}
	if !strings.Contains(signedStr, "s=mail") {
		t.Error("signature missing selector tag")
	}
	if !strings.Contains(signedStr, "<p>Hi</p>") {
		t.Error("signing altered message body")
	}
}

func TestNewDKIMSignerFromFile(t *testing.T) {
	key := generateTestKey(t)

	keyPath := filepath.Join(t.TempDir(), "dkim.key")
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(keyPath, pemData, 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	signer, err := NewDKIMSignerFromFile(keyPath, "fern.example", "mail")
	if err != nil {
		t.Fatalf("NewDKIMSignerFromFile() error = %v", err)
	}
	if signer.Domain() != "fern.example" || signer.Selector() != "mail" {
		t.Errorf("signer = %s/%s", signer.Domain(), signer.Selector())
	}
}

func TestNewDKIMSignerFromFileMissing(t *testing.T) {
	if _, err := NewDKIMSignerFromFile("/nonexistent/dkim.key", "d", "s"); err == nil {
		t.Error("expected error for missing key file")
	}
}
