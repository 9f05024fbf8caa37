package crypto

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// proofDomainTag separates proof digests from any other keccak256 use.
var proofDomainTag = []byte("housefun/mpc-proof/v1")

// ProofDigest returns the keccak256 digest a cluster signs for a proof. Each
// variable-length field is prefixed with its u32 little-endian length.
func ProofDigest(p *domain.Proof) []byte {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(p.Timestamp.UnixMilli()))

	return ethcrypto.Keccak256(
		proofDomainTag,
		lengthPrefixed([]byte(p.ComputationID)),
		[]byte{p.Outcome},
		lengthPrefixed(p.Proof),
		lengthPrefixed(p.PublicInputs),
		ts[:],
	)
}

func lengthPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

// ClusterSigner signs proofs with a secp256k1 key. The local dealing backend
// uses it so its proofs verify the same way cluster proofs do.
type ClusterSigner struct {
	key *ecdsa.PrivateKey
}

// NewClusterSigner parses a hex-encoded secp256k1 private key (with or
// without 0x prefix).
func NewClusterSigner(privateKeyHex string) (*ClusterSigner, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/cluster: invalid private key: %w", err)
	}
	return &ClusterSigner{key: pk}, nil
}

// GenerateClusterSigner creates a signer with a fresh random key.
func GenerateClusterSigner() (*ClusterSigner, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/cluster: generate key: %w", err)
	}
	return &ClusterSigner{key: pk}, nil
}

// PublicKeyHex returns the compressed public key as hex, the form expected
// by NewClusterVerifier.
func (s *ClusterSigner) PublicKeyHex() string {
	return hex.EncodeToString(ethcrypto.CompressPubkey(&s.key.PublicKey))
}

// SignProof returns the 65-byte [R || S || V] signature over ProofDigest.
func (s *ClusterSigner) SignProof(p *domain.Proof) ([]byte, error) {
	sig, err := ethcrypto.Sign(ProofDigest(p), s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto/cluster: sign proof: %w", err)
	}
	return sig, nil
}

// ClusterVerifier checks proof signatures against the cluster public key.
type ClusterVerifier struct {
	pub []byte // compressed, 33 bytes
}

// NewClusterVerifier parses a hex secp256k1 public key in compressed (33
// byte) or uncompressed (65 byte) form.
func NewClusterVerifier(publicKeyHex string) (*ClusterVerifier, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/cluster: public key is not valid hex: %w", err)
	}
	var pub *ecdsa.PublicKey
	switch len(raw) {
	case 33:
		pub, err = ethcrypto.DecompressPubkey(raw)
	case 65:
		pub, err = ethcrypto.UnmarshalPubkey(raw)
	default:
		return nil, fmt.Errorf("crypto/cluster: public key must be 33 or 65 bytes, got %d", len(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("crypto/cluster: invalid public key: %w", err)
	}
	return &ClusterVerifier{pub: ethcrypto.CompressPubkey(pub)}, nil
}

// VerifyProof returns ErrBadClusterSignature unless the proof carries a
// valid signature by the cluster key.
func (v *ClusterVerifier) VerifyProof(p *domain.Proof) error {
	if p == nil {
		return domain.ErrMissingProof
	}
	sig := p.ClusterSignature
	if len(sig) == 65 {
		sig = sig[:64] // drop the recovery id
	}
	if len(sig) != 64 {
		return fmt.Errorf("%w: %d-byte signature", domain.ErrBadClusterSignature, len(p.ClusterSignature))
	}
	if !ethcrypto.VerifySignature(v.pub, ProofDigest(p), sig) {
		return domain.ErrBadClusterSignature
	}
	return nil
}
