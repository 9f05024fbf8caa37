package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/housefun/internal/domain"
)

func TestHMACHeadersAt(t *testing.T) {
	auth := &HMACAuth{Key: "key-1", Secret: "Y2x1c3Rlci1zZWNyZXQ="}
	h := auth.HeadersAt("POST", "/v1/decks", `{"a":1}`, 1700000000)

	require.Equal(t, "key-1", h[HeaderAPIKey])
	require.Equal(t, "1700000000", h[HeaderTimestamp])
	require.Equal(t, "tU+hy7AiV3ley8xn4W7kM1P7rYaJWO5+DTDdJ5avbFw=", h[HeaderSignature])

	now := time.Unix(1700000010, 0)
	require.True(t, auth.VerifyHeaders("POST", "/v1/decks", `{"a":1}`, h[HeaderTimestamp], h[HeaderSignature], now, time.Minute))
	require.False(t, auth.VerifyHeaders("POST", "/v1/decks", `{"a":2}`, h[HeaderTimestamp], h[HeaderSignature], now, time.Minute))
	require.False(t, auth.VerifyHeaders("POST", "/v1/decks", `{"a":1}`, h[HeaderTimestamp], h[HeaderSignature], now.Add(time.Hour), time.Minute))
	require.NotContains(t, auth.String(), "Y2x1c3Rlci1zZWNyZXQ=")
}

func testProof() *domain.Proof {
	return &domain.Proof{
		ComputationID: "comp-1",
		Outcome:       1,
		Proof:         []byte{1, 2, 3},
		PublicInputs:  []byte{4, 5},
		Timestamp:     time.UnixMilli(1700000000123),
	}
}

func TestClusterSignatureRoundTrip(t *testing.T) {
	signer, err := GenerateClusterSigner()
	require.NoError(t, err)
	verifier, err := NewClusterVerifier(signer.PublicKeyHex())
	require.NoError(t, err)

	p := testProof()
	p.ClusterSignature, err = signer.SignProof(p)
	require.NoError(t, err)
	require.Len(t, p.ClusterSignature, 65)
	require.NoError(t, verifier.VerifyProof(p))

	p.Proof = []byte{1, 2, 4}
	require.ErrorIs(t, verifier.VerifyProof(p), domain.ErrBadClusterSignature)

	p = testProof()
	p.ClusterSignature = []byte{1}
	require.ErrorIs(t, verifier.VerifyProof(p), domain.ErrBadClusterSignature)
	require.ErrorIs(t, verifier.VerifyProof(nil), domain.ErrMissingProof)
}

func TestClusterVerifierRejectsOtherKeys(t *testing.T) {
	a, err := GenerateClusterSigner()
	require.NoError(t, err)
	b, err := GenerateClusterSigner()
	require.NoError(t, err)
	verifier, err := NewClusterVerifier("0x" + b.PublicKeyHex())
	require.NoError(t, err)

	p := testProof()
	p.ClusterSignature, err = a.SignProof(p)
	require.NoError(t, err)
	require.ErrorIs(t, verifier.VerifyProof(p), domain.ErrBadClusterSignature)

	_, err = NewClusterVerifier("abcd")
	require.Error(t, err)
	_, err = NewClusterSigner("zz")
	require.Error(t, err)
}

func TestProofDigestBindsFields(t *testing.T) {
	base := ProofDigest(testProof())
	require.Len(t, base, 32)

	p := testProof()
	p.Timestamp = p.Timestamp.Add(time.Millisecond)
	require.NotEqual(t, base, ProofDigest(p))

	// Moving a byte between adjacent fields must change the digest.
	p = testProof()
	p.Proof = []byte{1, 2, 3, 4}
	p.PublicInputs = []byte{5}
	require.NotEqual(t, base, ProofDigest(p))
}

func TestSeedVault(t *testing.T) {
	v, err := NewSeedVault("correct horse", "deploy-salt")
	require.NoError(t, err)

	sealed, err := v.Seal("abc123")
	require.NoError(t, err)
	require.NotContains(t, sealed, "abc123")

	again, err := v.Seal("abc123")
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := v.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "abc123", plain)

	_, err = v.Open("plaintext")
	require.Error(t, err)
	_, err = v.Open(sealed[:len(sealed)-4])
	require.Error(t, err)
	_, err = NewSeedVault("", "salt")
	require.Error(t, err)

	other, err := NewSeedVault("correct horse", "other-salt")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err, "salt is part of the vault key")
}

func TestEncryptedKeyFile(t *testing.T) {
	keyHex := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	blob, err := EncryptKey("0x"+keyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dealer.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	require.Equal(t, keyHex, got)
	_, err = NewClusterSigner(got)
	require.NoError(t, err)

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	require.Error(t, err)

	got, err = LoadKey(KeyConfig{})
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = LoadKey(KeyConfig{RawPrivateKey: "0x" + strings.ToUpper(keyHex)})
	require.NoError(t, err)
	require.Equal(t, keyHex, got)

	_, err = EncryptKey(strings.Repeat("00", 32), "pw")
	require.ErrorContains(t, err, "signing key", "zero is not a valid scalar")
	_, err = DecryptKey([]byte(`{"version":1}`), "pw")
	require.ErrorContains(t, err, "unsupported key file")
}
