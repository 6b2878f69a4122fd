package wise

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the base64 RSA-SHA256 signature of the raw body.
const SignatureHeader = "X-Signature-SHA256"

var (
	// ErrMissingSignature is returned when the request carries no signature.
	ErrMissingSignature = errors.New("wise: missing signature")

	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("wise: invalid signature")

	// ErrNoPublicKey is returned when no webhook public key is configured.
	ErrNoPublicKey = errors.New("wise: public key not configured")
)

// ParsePublicKey decodes a PEM encoded RSA public key in PKIX or PKCS#1 form.
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, ErrNoPublicKey
	}

	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("ParsePublicKey: no PEM block found")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("ParsePublicKey: %w", err)
		}
		return key, nil
	default:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("ParsePublicKey: %w", err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("ParsePublicKey: key is %T, not RSA", parsed)
		}
		return key, nil
	}
}

// VerifySignature checks an RSA-SHA256 (PKCS#1 v1.5) signature over body.
func VerifySignature(key *rsa.PublicKey, body []byte, signature string) error {
	if key == nil {
		return ErrNoPublicKey
	}
	if strings.TrimSpace(signature) == "" {
		return ErrMissingSignature
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	digest := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
