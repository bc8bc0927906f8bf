package database

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Transaction type groups.
const (
	TypeGroupCore       uint32 = 1
	TypeGroupMagistrate uint32 = 2
)

// HTLC expiration types.
const (
	ExpirationEpochTimestamp = 1
	ExpirationBlockHeight    = 2
)

// =============================================================================

// Transaction is the typed record of a ledger transaction. Type specific
// data lives in the Asset.
type Transaction struct {
	ID              string       `json:"id"`
	Version         uint8        `json:"version"`
	TypeGroup       uint32       `json:"typeGroup"`
	Type            uint16       `json:"type"`
	Nonce           *uint256.Int `json:"nonce,omitempty"`
	SenderPublicKey string       `json:"senderPublicKey"`
	Fee             *big.Int     `json:"fee"`
	Amount          *big.Int     `json:"amount"`
	RecipientID     string       `json:"recipientId,omitempty"`
	VendorField     string       `json:"vendorField,omitempty"`
	Timestamp       int64        `json:"timestamp"`
	Asset           *Asset       `json:"asset,omitempty"`
	Signature       string       `json:"signature,omitempty"`
	SecondSignature string       `json:"secondSignature,omitempty"`
	Signatures      []string     `json:"signatures,omitempty"`
}

// Asset carries the type specific data of a transaction. Only the field
// matching the transaction type is set.
type Asset struct {
	Signature               *SecondSignatureAsset          `json:"signature,omitempty"`
	Delegate                *DelegateAsset                 `json:"delegate,omitempty"`
	Votes                   []string                       `json:"votes,omitempty"`
	MultiSignature          *signature.MultiSignatureAsset `json:"multiSignature,omitempty"`
	MultiSignatureLegacy    *MultiSignatureLegacyAsset     `json:"multiSignatureLegacy,omitempty"`
	Ipfs                    string                         `json:"ipfs,omitempty"`
	Payments                []Payment                      `json:"payments,omitempty"`
	Lock                    *HtlcLockAsset                 `json:"lock,omitempty"`
	Claim                   *HtlcClaimAsset                `json:"claim,omitempty"`
	Refund                  *HtlcRefundAsset               `json:"refund,omitempty"`
	BusinessRegistration    *BusinessAsset                 `json:"businessRegistration,omitempty"`
	BusinessUpdate          *BusinessAsset                 `json:"businessUpdate,omitempty"`
	BridgechainRegistration *BridgechainAsset              `json:"bridgechainRegistration,omitempty"`
	BridgechainResignation  *BridgechainResignationAsset   `json:"bridgechainResignation,omitempty"`
	BridgechainUpdate       *BridgechainUpdateAsset        `json:"bridgechainUpdate,omitempty"`
	Entity                  *EntityAsset                   `json:"entity,omitempty"`
}

// SecondSignatureAsset registers a second public key on a wallet.
type SecondSignatureAsset struct {
	PublicKey string `json:"publicKey"`
}

// DelegateAsset registers a delegate username.
type DelegateAsset struct {
	Username string `json:"username"`
}

// MultiSignatureLegacyAsset is the retired multisignature format.
type MultiSignatureLegacyAsset struct {
	Min       int      `json:"min"`
	Lifetime  int      `json:"lifetime"`
	Keysgroup []string `json:"keysgroup"`
}

// Payment is a single output of a multipayment.
type Payment struct {
	Amount      *big.Int `json:"amount"`
	RecipientID string   `json:"recipientId"`
}

// HtlcExpiration describes when a lock expires.
type HtlcExpiration struct {
	Type  int   `json:"type"`
	Value int64 `json:"value"`
}

// HtlcLockAsset locks funds behind a secret hash.
type HtlcLockAsset struct {
	SecretHash string         `json:"secretHash"`
	Expiration HtlcExpiration `json:"expiration"`
}

// HtlcClaimAsset claims a lock with its secret.
type HtlcClaimAsset struct {
	LockTransactionID string `json:"lockTransactionId"`
	UnlockSecret      string `json:"unlockSecret"`
}

// HtlcRefundAsset returns an expired lock to its sender.
type HtlcRefundAsset struct {
	LockTransactionID string `json:"lockTransactionId"`
}

// BusinessAsset describes a business. On an update only the set fields
// replace the registered values.
type BusinessAsset struct {
	Name       string `json:"name,omitempty"`
	Website    string `json:"website,omitempty"`
	Vat        string `json:"vat,omitempty"`
	Repository string `json:"repository,omitempty"`
}

// BridgechainAsset describes a bridgechain owned by a business.
type BridgechainAsset struct {
	Name                       string         `json:"name"`
	SeedNodes                  []string       `json:"seedNodes"`
	GenesisHash                string         `json:"genesisHash"`
	BridgechainRepository      string         `json:"bridgechainRepository"`
	BridgechainAssetRepository string         `json:"bridgechainAssetRepository,omitempty"`
	Ports                      map[string]int `json:"ports"`
}

// CloneAttribute returns a deep copy so wallets never share the asset.
func (ba BridgechainAsset) CloneAttribute() any {
	ba.SeedNodes = slices.Clone(ba.SeedNodes)
	ba.Ports = maps.Clone(ba.Ports)
	return ba
}

// BridgechainResignationAsset resigns a bridgechain.
type BridgechainResignationAsset struct {
	BridgechainID string `json:"bridgechainId"`
}

// BridgechainUpdateAsset replaces the set fields of a bridgechain.
type BridgechainUpdateAsset struct {
	BridgechainID              string         `json:"bridgechainId"`
	SeedNodes                  []string       `json:"seedNodes,omitempty"`
	Ports                      map[string]int `json:"ports,omitempty"`
	BridgechainRepository      string         `json:"bridgechainRepository,omitempty"`
	BridgechainAssetRepository string         `json:"bridgechainAssetRepository,omitempty"`
}

// EntityAsset registers, updates or resigns an entity. Updates and
// resignations name the registration they apply to.
type EntityAsset struct {
	Type           uint8      `json:"type"`
	SubType        uint8      `json:"subType"`
	Action         uint8      `json:"action"`
	RegistrationID string     `json:"registrationId,omitempty"`
	Data           EntityData `json:"data"`
}

// EntityData describes an entity. On an update only the set fields replace
// the registered values.
type EntityData struct {
	Name     string `json:"name,omitempty"`
	IpfsData string `json:"ipfsData,omitempty"`
}

// =============================================================================

// ComputeID returns the hash that identifies the transaction. The id
// commits to every field including the signatures.
func (tx Transaction) ComputeID() (string, error) {
	tx.ID = ""

	data, err := json.Marshal(tx)
	if err != nil {
		return "", err
	}

	return hexutil.Encode(crypto.Keccak256(data)), nil
}

// SigningPayload returns the part of the transaction covered by the
// sender signature and the multisignatures.
func (tx Transaction) SigningPayload() Transaction {
	tx.ID = ""
	tx.Signature = ""
	tx.SecondSignature = ""
	tx.Signatures = nil
	return tx
}

// SecondSigningPayload returns the part of the transaction covered by the
// second signature, which includes the sender signature.
func (tx Transaction) SecondSigningPayload() Transaction {
	tx.ID = ""
	tx.SecondSignature = ""
	tx.Signatures = nil
	return tx
}

// Sign signs the transaction with the sender key and sets the id.
func (tx Transaction) Sign(privateKey *ecdsa.PrivateKey) (Transaction, error) {
	sig, err := signature.Sign(tx.SigningPayload(), privateKey)
	if err != nil {
		return Transaction{}, err
	}
	tx.Signature = sig

	return tx.withID()
}

// SecondSign adds the second signature and refreshes the id.
func (tx Transaction) SecondSign(privateKey *ecdsa.PrivateKey) (Transaction, error) {
	sig, err := signature.Sign(tx.SecondSigningPayload(), privateKey)
	if err != nil {
		return Transaction{}, err
	}
	tx.SecondSignature = sig

	return tx.withID()
}

// MultiSign adds a participant signature and refreshes the id.
func (tx Transaction) MultiSign(privateKey *ecdsa.PrivateKey, index int) (Transaction, error) {
	sig, err := signature.MultiSign(tx.SigningPayload(), privateKey, index)
	if err != nil {
		return Transaction{}, err
	}
	tx.Signatures = append(append([]string(nil), tx.Signatures...), sig)

	return tx.withID()
}

// VerifySignature checks the sender signature against the sender key.
func (tx Transaction) VerifySignature() error {
	if tx.Signature == "" {
		return errors.New("transaction is not signed")
	}

	ok, err := signature.Verify(tx.SigningPayload(), tx.Signature, tx.SenderPublicKey)
	if err != nil {
		return fmt.Errorf("verifying signature: %w", err)
	}
	if !ok {
		return errors.New("invalid transaction signature")
	}

	return nil
}

// VerifySecondSignature checks the second signature against the key.
func (tx Transaction) VerifySecondSignature(publicKey string) (bool, error) {
	if tx.SecondSignature == "" {
		return false, nil
	}
	return signature.Verify(tx.SecondSigningPayload(), tx.SecondSignature, publicKey)
}

// VerifyMultiSignatures checks the participant signatures against the asset.
func (tx Transaction) VerifyMultiSignatures(asset signature.MultiSignatureAsset) (bool, error) {
	return signature.VerifyMultiSignatures(tx.SigningPayload(), tx.Signatures, asset)
}

// Validate checks the id matches the content.
func (tx Transaction) Validate() error {
	id, err := tx.ComputeID()
	if err != nil {
		return err
	}
	if id != tx.ID {
		return fmt.Errorf("transaction id mismatch, got %s, exp %s", tx.ID, id)
	}
	if tx.Fee == nil || tx.Amount == nil {
		return errors.New("transaction fee and amount are required")
	}
	if tx.Fee.Sign() < 0 || tx.Amount.Sign() < 0 {
		return errors.New("transaction fee and amount must not be negative")
	}
	return nil
}

// Hash implements the merkle Hashable interface.
func (tx Transaction) Hash() ([]byte, error) {
	return hexutil.Decode(tx.ID)
}

// Equals implements the merkle Hashable interface.
func (tx Transaction) Equals(otherTx Transaction) bool {
	return tx.ID == otherTx.ID
}

// TotalAmount returns the amount moved by the transaction, which for a
// multipayment is the sum of every payment.
func (tx Transaction) TotalAmount() *big.Int {
	if tx.Asset != nil && len(tx.Asset.Payments) > 0 {
		sum := new(big.Int)
		for _, p := range tx.Asset.Payments {
			sum.Add(sum, p.Amount)
		}
		return sum
	}

	if tx.Amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(tx.Amount)
}

// NonceOrZero returns a copy of the nonce, zero when unset.
func (tx Transaction) NonceOrZero() *uint256.Int {
	if tx.Nonce == nil {
		return new(uint256.Int)
	}
	return tx.Nonce.Clone()
}

// Size returns the length of the JSON encoding of the transaction.
func (tx Transaction) Size() int {
	data, err := json.Marshal(tx)
	if err != nil {
		return 0
	}
	return len(data)
}

func (tx Transaction) withID() (Transaction, error) {
	id, err := tx.ComputeID()
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id
	return tx, nil
}
