// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// signatureLength is the size of a [R|S] signature without the recovery id.
const signatureLength = crypto.RecoveryIDOffset

// =============================================================================

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// PublicKeyHex returns the compressed public key as a hex string.
func PublicKeyHex(pk ecdsa.PublicKey) string {
	return hex.EncodeToString(crypto.CompressPubkey(&pk))
}

// ParsePublicKey converts a compressed hex public key into its ecdsa form.
func ParsePublicKey(publicKey string) (*ecdsa.PublicKey, error) {
	data, err := hex.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}

	pk, err := crypto.DecompressPubkey(data)
	if err != nil {
		return nil, fmt.Errorf("decompressing public key: %w", err)
	}

	return pk, nil
}

// AddressFromPublicKey derives the wallet address for a compressed hex
// public key.
func AddressFromPublicKey(publicKey string) (string, error) {
	pk, err := ParsePublicKey(publicKey)
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*pk).Hex(), nil
}

// Sign uses the specified private key to sign the data. The signature is
// returned as the hex encoded [R|S] values.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sig[:signatureLength]), nil
}

// Verify checks the hex signature was produced over the value by the owner
// of the compressed hex public key.
func Verify(value any, sig string, publicKey string) (bool, error) {
	data, err := stamp(value)
	if err != nil {
		return false, err
	}

	rs, err := hex.DecodeString(sig)
	if err != nil {
		return false, fmt.Errorf("decoding signature: %w", err)
	}
	if len(rs) != signatureLength {
		return false, errors.New("invalid signature length")
	}

	pk, err := hex.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("decoding public key: %w", err)
	}

	return crypto.VerifySignature(pk, data, rs), nil
}

// =============================================================================

// MultiSignatureAsset defines the participants of a multisignature wallet.
type MultiSignatureAsset struct {
	Min        int      `json:"min"`
	PublicKeys []string `json:"publicKeys"`
}

// CloneAttribute returns a deep copy so wallets never share the asset.
func (msa MultiSignatureAsset) CloneAttribute() any {
	return MultiSignatureAsset{
		Min:        msa.Min,
		PublicKeys: append([]string(nil), msa.PublicKeys...),
	}
}

// MultiSign signs the value as the participant at the specified index of the
// multisignature asset. The index is encoded in the first byte.
func MultiSign(value any, privateKey *ecdsa.PrivateKey, index int) (string, error) {
	if index < 0 || index > 255 {
		return "", fmt.Errorf("invalid participant index %d", index)
	}

	sig, err := Sign(value, privateKey)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%02x%s", index, sig), nil
}

// VerifyMultiSignatures checks that at least Min distinct participants of
// the asset signed the value. Participant indexes must be strictly
// increasing.
func VerifyMultiSignatures(value any, signatures []string, asset MultiSignatureAsset) (bool, error) {
	if asset.Min < 1 || asset.Min > len(asset.PublicKeys) {
		return false, errors.New("invalid multisignature asset")
	}

	valid := 0
	last := -1
	for _, s := range signatures {
		if len(s) < 2 {
			return false, errors.New("invalid multisignature")
		}

		idx, err := strconv.ParseUint(s[:2], 16, 8)
		if err != nil {
			return false, fmt.Errorf("parsing participant index: %w", err)
		}

		index := int(idx)
		if index <= last {
			return false, fmt.Errorf("duplicate participant %d in multisignature", index)
		}
		if index >= len(asset.PublicKeys) {
			return false, fmt.Errorf("participant %d does not exist", index)
		}
		last = index

		ok, err := Verify(value, s[2:], asset.PublicKeys[index])
		if err != nil {
			return false, err
		}
		if ok {
			valid++
		}

		if valid == asset.Min {
			return true, nil
		}
	}

	return false, nil
}

// MultiSignaturePublicKey derives the public key that identifies the wallet
// of a multisignature asset. Participant order is not significant.
func MultiSignaturePublicKey(asset MultiSignatureAsset) (string, error) {
	if asset.Min < 1 || asset.Min > len(asset.PublicKeys) {
		return "", errors.New("invalid multisignature asset")
	}

	keys := append([]string(nil), asset.PublicKeys...)
	sort.Strings(keys)

	parts := [][]byte{{byte(asset.Min)}}
	for _, k := range keys {
		b, err := hex.DecodeString(k)
		if err != nil {
			return "", fmt.Errorf("decoding public key: %w", err)
		}
		parts = append(parts, b)
	}

	seed := crypto.Keccak256(parts...)
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		return "", fmt.Errorf("deriving key: %w", err)
	}

	return PublicKeyHex(key.PublicKey), nil
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the ledger stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {

	// Marshal the data.
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Hash the data into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := crypto.Keccak256(v)

	// The stamp keeps signatures produced here unique to this ledger.
	stamp := []byte("\x19DPoS Signed Message:\n32")

	// Hash the stamp and txHash together in a final 32 byte array
	// that represents the data.
	data := crypto.Keccak256(stamp, txHash)

	return data, nil
}
