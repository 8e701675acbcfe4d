package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/secrepo/secrepo/types"
)

// VaultConfig configures a Vault KV (version 1) backend.
type VaultConfig struct {
	// Address is the Vault server base URL, e.g. https://vault:8200.
	Address string
	// Token authenticates every request via the X-Vault-Token header.
	Token string
	// Namespace, when set, is sent as X-Vault-Namespace (Vault Enterprise).
	Namespace string
	// Mount is the KV mount the store operates under. Defaults to "secret".
	Mount string
	// Timeout bounds each HTTP exchange. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Vault is a Store backed by HashiCorp Vault's KV version 1 engine.
// Paths map directly: entry "credentials/heisenberg" lives at
// <mount>/credentials/heisenberg, listed with the LIST verb.
type Vault struct {
	config VaultConfig
	client *http.Client
}

// NewVault creates a Vault-backed store.
func NewVault(config VaultConfig) (*Vault, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("vault token is required")
	}
	if config.Mount == "" {
		config.Mount = "secret"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &Vault{config: config, client: client}, nil
}

// List implements Store using Vault's LIST verb.
func (v *Vault) List(ctx context.Context, path string) ([]string, error) {
	resp, err := v.do(ctx, "LIST", path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, types.ErrPathNotFound
	default:
		return nil, v.statusError("list", path, resp)
	}

	var body struct {
		Data struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding list response: %w", err)
	}
	return body.Data.Keys, nil
}

// Read implements Store.
func (v *Vault) Read(ctx context.Context, path string) (types.Document, error) {
	resp, err := v.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, types.ErrNotFound
	default:
		return nil, v.statusError("read", path, resp)
	}

	var body struct {
		Data types.Document `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding read response: %w", err)
	}
	return body.Data, nil
}

// Write implements Store. KV v1 writes are full replacements, which is
// exactly the contract Store requires.
func (v *Vault) Write(ctx context.Context, path string, doc types.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	resp, err := v.do(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return v.statusError("write", path, resp)
	}
	return nil
}

// Delete implements Store. Vault's delete is idempotent already.
func (v *Vault) Delete(ctx context.Context, path string) error {
	resp, err := v.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return v.statusError("delete", path, resp)
	}
}

func (v *Vault) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := strings.TrimSuffix(v.config.Address, "/") + "/v1/" + v.config.Mount + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Vault-Token", v.config.Token)
	if v.config.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.config.Namespace)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := v.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return resp, nil
}

func (v *Vault) statusError(op, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s %s: %w: vault returned status %d: %s", op, path, types.ErrStoreUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
}
