package auth

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/sha3"
)

// RPCWhitelist asks a contract's isWhitelisted(address) view function over
// Ethereum JSON-RPC.
type RPCWhitelist struct {
	endpoint string
	contract string
	client   *http.Client
	nextID   atomic.Int64
}

// NewRPCWhitelist creates an RPCWhitelist. A nil client uses one with a 10s
// timeout.
func NewRPCWhitelist(endpoint, contract string, client *http.Client) *RPCWhitelist {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RPCWhitelist{endpoint: endpoint, contract: contract, client: client}
}

var isWhitelistedSelector = selector("isWhitelisted(address)")

// selector returns the 4-byte function selector for an ABI signature.
func selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// encodeCall ABI-encodes isWhitelisted(address).
func encodeCall(address string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(address)), "0x"))
	if err != nil || len(raw) != 20 {
		return "", fmt.Errorf("invalid address %q", address)
	}
	data := make([]byte, 4+32)
	copy(data, isWhitelistedSelector)
	copy(data[4+12:], raw)
	return "0x" + hex.EncodeToString(data), nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (w *RPCWhitelist) IsWhitelisted(ctx context.Context, address string) (bool, error) {
	data, err := encodeCall(address)
	if err != nil {
		return false, nil
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      w.nextID.Add(1),
		Method:  "eth_call",
		Params:  []any{map[string]string{"to": w.contract, "data": data}, "latest"},
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("whitelist rpc: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("whitelist rpc: status %d", resp.StatusCode)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("whitelist rpc: decode response: %w", err)
	}
	if out.Error != nil {
		return false, fmt.Errorf("whitelist rpc: %s (code %d)", out.Error.Message, out.Error.Code)
	}
	return decodeBool(out.Result)
}

// decodeBool reads an ABI-encoded bool return value.
func decodeBool(result string) (bool, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(result, "0x"))
	if err != nil {
		return false, fmt.Errorf("whitelist rpc: bad result %q", result)
	}
	if len(raw) == 0 {
		// No code at the contract address.
		return false, fmt.Errorf("whitelist rpc: empty result")
	}
	for _, b := range raw {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
}
