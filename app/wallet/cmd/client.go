package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/holiman/uint256"
)

var errNotFound = errors.New("not found")

var client = http.Client{Timeout: 10 * time.Second}

type walletInfo struct {
	Name   string `json:"name"`
	Wallet struct {
		Address    string         `json:"address"`
		PublicKey  string         `json:"publicKey"`
		Balance    *big.Int       `json:"balance"`
		Nonce      *uint256.Int   `json:"nonce"`
		Attributes map[string]any `json:"attributes"`
	} `json:"wallet"`
}

// fetchWallet reads the wallet of an address, public key or username.
func fetchWallet(id string) (walletInfo, error) {
	var w walletInfo
	if err := do(http.MethodGet, "/v1/wallets/"+id, nil, &w); err != nil {
		return walletInfo{}, err
	}
	return w, nil
}

// nextNonce returns the nonce the next transaction of the wallet needs.
func nextNonce(address string) (*uint256.Int, error) {
	w, err := fetchWallet(address)
	switch {
	case errors.Is(err, errNotFound):
		return uint256.NewInt(1), nil
	case err != nil:
		return nil, err
	}

	nonce := new(uint256.Int)
	if w.Wallet.Nonce != nil {
		nonce.Set(w.Wallet.Nonce)
	}
	return nonce.AddUint64(nonce, 1), nil
}

func do(method string, path string, body any, result any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var er struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&er)

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", er.Error, errNotFound)
		}
		return fmt.Errorf("node answered %d: %s", resp.StatusCode, er.Error)
	}

	if result == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
