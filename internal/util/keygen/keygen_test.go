package keygen

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestGenerateRSAKeyPair(t *testing.T) {
	t.Parallel()
	keyPair, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	block, rest := pem.Decode(keyPair.PrivateKey)
	require.NotNil(t, block)
	assert.Empty(t, rest)
	assert.Equal(t, "RSA PRIVATE KEY", block.Type)

	_, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(keyPair.PublicKey), "ssh-rsa "))
	_, _, _, _, err = ssh.ParseAuthorizedKey(keyPair.PublicKey)
	require.NoError(t, err)
}

func TestGenerateRSAKeyPair_InvalidBits(t *testing.T) {
	t.Parallel()
	for _, bits := range []int{0, -1} {
		_, err := GenerateRSAKeyPair(bits)
		assert.Error(t, err, "bits=%d", bits)
	}
}

func TestGenerateRSAKeyPair_Unique(t *testing.T) {
	t.Parallel()
	a, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	b, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	assert.NotEqual(t, a.PrivateKey, b.PrivateKey)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	keyPair, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	fp, err := Fingerprint(keyPair.PrivateKey)
	require.NoError(t, err)

	pub, _, _, _, err := ssh.ParseAuthorizedKey(keyPair.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, ssh.FingerprintSHA256(pub), fp)
	assert.True(t, strings.HasPrefix(fp, "SHA256:"))
}

func TestFingerprint_Invalid(t *testing.T) {
	t.Parallel()
	_, err := Fingerprint([]byte("not a key"))
	assert.Error(t, err)
}
