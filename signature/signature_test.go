package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/h4mn/skybridge/signature"
	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyOK(t *testing.T) {
	v := signature.New(map[string]string{"github": "topsecret"})
	body := []byte(`{"action":"opened"}`)
	result, err := v.Verify("github", body, sign("topsecret", body))
	assert.NoError(t, err)
	assert.Equal(t, signature.OK, result)
}

func TestVerifyInvalidSignature(t *testing.T) {
	v := signature.New(map[string]string{"github": "topsecret"})
	body := []byte(`{"action":"opened"}`)
	result, err := v.Verify("github", body, sign("wrongsecret", body))
	assert.NoError(t, err)
	assert.Equal(t, signature.InvalidSignature, result)
}

func TestVerifyUnconfiguredSource(t *testing.T) {
	v := signature.New(map[string]string{})
	result, err := v.Verify("discord", []byte("x"), "sha256=abc")
	assert.Error(t, err)
	assert.Equal(t, signature.UnconfiguredSource, result)
}

func TestVerifyTamperedBodyFails(t *testing.T) {
	v := signature.New(map[string]string{"github": "topsecret"})
	body := []byte(`{"action":"opened"}`)
	header := sign("topsecret", body)

	tampered := []byte(`{"action":"closed"}`)
	result, err := v.Verify("github", tampered, header)
	assert.NoError(t, err)
	assert.Equal(t, signature.InvalidSignature, result)
}
