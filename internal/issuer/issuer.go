// Package issuer holds the issuer's secp256k1 key and signs personal-message
// digests that on-chain ecrecover can verify.
package issuer

import (
	"crypto/ecdsa"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"racepass/internal/hashing"
	dErrors "racepass/pkg/domain-errors"
)

// SignatureLength is the size of a compact r||s||v signature.
const SignatureLength = crypto.SignatureLength

// recoveryOffset is added to the recovery id so v is 27 or 28.
const recoveryOffset = 27

const demoSeed = "racepass demo issuer key"

// KeyService owns the process-wide issuer key. It is initialized once at
// startup and wiped by Teardown.
type KeyService struct {
	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	address common.Address
	demo    bool
}

// NewKeyService returns an uninitialized service.
func NewKeyService() *KeyService {
	return &KeyService{}
}

// Initialize loads a hex-encoded 32-byte scalar, with or without 0x prefix.
func (k *KeyService) Initialize(hexKey string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid issuer private key")
	}
	return k.InitializeKey(key)
}

// InitializeDemo loads the deterministic demo key.
func (k *KeyService) InitializeDemo() error {
	if err := k.InitializeKey(DemoKey()); err != nil {
		return err
	}
	k.mu.Lock()
	k.demo = true
	k.mu.Unlock()
	return nil
}

// InitializeKey installs key. A second call without Teardown fails.
func (k *KeyService) InitializeKey(key *ecdsa.PrivateKey) error {
	if key == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "issuer private key is required")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key != nil {
		return dErrors.New(dErrors.CodeConflict, "issuer key already initialized")
	}
	k.key = key
	k.address = crypto.PubkeyToAddress(key.PublicKey)
	k.demo = false
	return nil
}

// Teardown zeroes the private scalar and forgets the key.
func (k *KeyService) Teardown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key != nil && k.key.D != nil {
		k.key.D.SetInt64(0)
	}
	k.key = nil
	k.address = common.Address{}
	k.demo = false
}

// Initialized reports whether a key is loaded.
func (k *KeyService) Initialized() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key != nil
}

// IsDemo reports whether the loaded key is the deterministic demo key.
func (k *KeyService) IsDemo() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.demo
}

// Address returns the issuer's account address.
func (k *KeyService) Address() (common.Address, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return common.Address{}, errNotInitialized()
	}
	return k.address, nil
}

// PersonalSign signs the "\x19Ethereum Signed Message:\n32" digest of digest.
// The returned signature is r||s||v with v in {27, 28}.
func (k *KeyService) PersonalSign(digest common.Hash) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.key == nil {
		return nil, errNotInitialized()
	}
	sig, err := crypto.Sign(PersonalDigest(digest).Bytes(), k.key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign digest")
	}
	sig[crypto.RecoveryIDOffset] += recoveryOffset
	return sig, nil
}

// PersonalDigest applies the Ethereum personal-message prefix to a 32-byte payload.
func PersonalDigest(digest common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(digest.Bytes()))
}

// RecoverPersonal returns the address that produced sig over the personal
// digest of digest. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverPersonal(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, dErrors.New(dErrors.CodeSignatureMismatch, "signature must be 65 bytes")
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= recoveryOffset {
		normalized[crypto.RecoveryIDOffset] -= recoveryOffset
	}
	pub, err := crypto.SigToPub(PersonalDigest(digest).Bytes(), normalized)
	if err != nil {
		return common.Address{}, dErrors.Wrap(err, dErrors.CodeSignatureMismatch, "signature recovery failed")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SplitSignature returns the v, r and s components of a compact signature.
func SplitSignature(sig []byte) (v uint8, r, s common.Hash, err error) {
	if len(sig) != SignatureLength {
		return 0, common.Hash{}, common.Hash{}, dErrors.New(dErrors.CodeSignatureMismatch, "signature must be 65 bytes")
	}
	return sig[crypto.RecoveryIDOffset], common.BytesToHash(sig[:32]), common.BytesToHash(sig[32:64]), nil
}

// DemoKey derives the deterministic key used in tests and demo deployments.
func DemoKey() *ecdsa.PrivateKey {
	key, err := crypto.ToECDSA(hashing.Keccak256([]byte(demoSeed)).Bytes())
	if err != nil {
		panic(err)
	}
	return key
}

func errNotInitialized() error {
	return dErrors.New(dErrors.CodeNotInitialized, "issuer key not initialized")
}
