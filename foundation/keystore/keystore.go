// Package keystore reads the accounts folder of <name>.ecdsa key files and
// maintains the keys the node holds on behalf of local accounts. It backs
// the accounts RPC surface, name lookups for logging, and the sealer key.
package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyStore maintains the set of loaded keys with lookups in both
// directions between names and accounts.
type KeyStore struct {
	mu    sync.RWMutex
	root  string
	keys  map[string]*ecdsa.PrivateKey
	names map[database.AccountID]string
}

// New constructs a keystore with every key found under the root folder.
func New(root string) (*KeyStore, error) {
	ks := KeyStore{
		root:  root,
		keys:  make(map[string]*ecdsa.PrivateKey),
		names: make(map[database.AccountID]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(path.Base(fileName), ".ecdsa")
		accountID := database.PublicKeyToAccountID(privateKey.PublicKey)

		ks.keys[name] = privateKey
		ks.names[accountID] = name

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ks, nil
}

// Create generates a new key under the specified name, stores it in the
// keystore folder, and returns the account it controls.
func (ks *KeyStore) Create(name string) (database.AccountID, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, exists := ks.keys[name]; exists {
		return "", fmt.Errorf("key %q already exists", name)
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(ks.root, 0755); err != nil {
		return "", err
	}

	fileName := filepath.Join(ks.root, name+".ecdsa")
	if err := crypto.SaveECDSA(fileName, privateKey); err != nil {
		return "", err
	}

	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)
	ks.keys[name] = privateKey
	ks.names[accountID] = name

	return accountID, nil
}

// PrivateKey returns the private key stored under the specified name.
func (ks *KeyStore) PrivateKey(name string) (*ecdsa.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	privateKey, exists := ks.keys[name]
	if !exists {
		return nil, fmt.Errorf("key %q does not exist", name)
	}

	return privateKey, nil
}

// Accounts returns the accounts the keystore holds keys for, sorted so
// callers see a stable order.
func (ks *KeyStore) Accounts() []database.AccountID {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	accounts := make([]database.AccountID, 0, len(ks.names))
	for accountID := range ks.names {
		accounts = append(accounts, accountID)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	return accounts
}

// Lookup returns the name for the specified account. Unknown accounts
// come back as their own id so logging stays readable.
func (ks *KeyStore) Lookup(accountID database.AccountID) string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	name, exists := ks.names[accountID]
	if !exists {
		return string(accountID)
	}

	return name
}

// Identities returns the hex encoded public key for every account in the
// keystore. The archive records these so operators can audit which keys
// a node held over time.
func (ks *KeyStore) Identities() map[database.AccountID]string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	identities := make(map[database.AccountID]string, len(ks.keys))
	for accountID, name := range ks.names {
		privateKey := ks.keys[name]
		identities[accountID] = hexutil.Encode(crypto.FromECDSAPub(&privateKey.PublicKey))
	}

	return identities
}
