package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// signAndSubmit builds a transaction of the specified kind, signs it with
// the wallet's key and submits it to the node. The chain id and the next
// usable nonce are queried from the node so the caller never guesses.
func signAndSubmit(kind database.Kind, toID database.AccountID, value uint64, tip uint64, data []byte) error {
	accountID, privateKey, err := loadAccountID()
	if err != nil {
		return err
	}

	chainID, err := queryChainID()
	if err != nil {
		return err
	}

	nonce, err := queryNextNonce(accountID)
	if err != nil {
		return err
	}

	tx, err := database.NewTx(chainID, nonce, toID, value, tip, kind, data)
	if err != nil {
		return fmt.Errorf("building transaction: %w", err)
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		return fmt.Errorf("signing transaction: %w", err)
	}

	return submit(signedTx)
}

func submit(signedTx database.SignedTx) error {
	body, err := json.Marshal(signedTx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submitting transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("node rejected transaction: %s", bytes.TrimSpace(msg))
	}

	fmt.Printf("submitted %s transaction with nonce %d\n", signedTx.Kind, signedTx.Nonce)

	return nil
}

// queryChainID asks the node which chain it is running so signatures bind
// to the right network.
func queryChainID() (uint16, error) {
	id, err := rpcQuantity("eth_chainId", nil)
	if err != nil {
		return 0, fmt.Errorf("querying chain id: %w", err)
	}

	return uint16(id), nil
}

// queryNextNonce returns the next usable nonce for the account, taking the
// node's mempool into consideration.
func queryNextNonce(accountID database.AccountID) (uint64, error) {
	nonce, err := rpcQuantity("eth_getTransactionCount", []any{string(accountID), "pending"})
	if err != nil {
		return 0, fmt.Errorf("querying nonce: %w", err)
	}

	return nonce, nil
}

// rpcQuantity performs a JSON-RPC call that returns a hex encoded quantity.
func rpcQuantity(method string, params []any) (uint64, error) {
	req := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  []any  `json:"params,omitempty"`
		ID      int    `json:"id"`
	}{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result struct {
		Result hexutil.Uint64 `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}

	if result.Error != nil {
		return 0, fmt.Errorf("rpc error %d: %s", result.Error.Code, result.Error.Message)
	}

	return uint64(result.Result), nil
}

// loadAccountID resolves the wallet's account id from its private key.
func loadAccountID() (database.AccountID, *ecdsa.PrivateKey, error) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return "", nil, fmt.Errorf("loading private key: %w", err)
	}

	return database.PublicKeyToAccountID(privateKey.PublicKey), privateKey, nil
}
