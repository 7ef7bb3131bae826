package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"foundry/internal/config"
	"foundry/internal/logging"
	"foundry/internal/services"
)

// Service is the narrow interface the pipeline consumes. The production
// implementation is Client; tests substitute a fake.
type Service interface {
	// PayerAddress returns the signing account's address.
	PayerAddress() string
	// Balance reports the payer's funds in the chain's smallest unit.
	Balance(ctx context.Context) (uint64, error)
	// CollectionID returns the collection account address, empty until
	// initialized.
	CollectionID() string
	// InitializeCollection creates the collection account sized for
	// capacity items and returns its address and the transaction signature.
	InitializeCollection(ctx context.Context, capacity int) (string, string, error)
	// WriteItems registers items starting at startIndex and returns the
	// transaction signature.
	WriteItems(ctx context.Context, startIndex int, items []Item) (string, error)
	// Confirm reports whether a submitted transaction has reached the
	// configured commitment.
	Confirm(ctx context.Context, signature string) (bool, error)
	// ReadState fetches the collection account's current item list.
	ReadState(ctx context.Context) (State, error)
	// Withdraw drains the collection account's balance back to the payer.
	Withdraw(ctx context.Context, collectionID string) (string, uint64, error)
	// ListCollections enumerates collection accounts owned by the payer
	// with their balances.
	ListCollections(ctx context.Context) ([]CollectionFunds, error)
}

// CollectionFunds pairs a collection account with its current balance.
type CollectionFunds struct {
	Address  string
	Lamports uint64
}

// Client implements Service against a JSON-RPC ledger node.
type Client struct {
	rpc          *rpcClient
	keypair      *Keypair
	programID    string
	collectionID string
	commitment   string
	logger       *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (used in tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.rpc = newRPCClient(c.rpc.endpoint, httpClient)
	}
}

// NewClient constructs a ledger client from configuration, loading the
// payer keypair from disk.
func NewClient(cfg config.Ledger, logger *slog.Logger, opts ...Option) (*Client, error) {
	keypair, err := LoadKeypair(cfg.KeypairPath)
	if err != nil {
		return nil, err
	}
	client := &Client{
		rpc:          newRPCClient(cfg.RPCURL, nil),
		keypair:      keypair,
		programID:    strings.TrimSpace(cfg.ProgramID),
		collectionID: strings.TrimSpace(cfg.CollectionID),
		commitment:   cfg.Commitment,
		logger:       logging.NewComponentLogger(logger, "ledger"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// PayerAddress returns the signing account's address.
func (c *Client) PayerAddress() string { return c.keypair.Address() }

// CollectionID returns the collection account address, empty until
// initialized.
func (c *Client) CollectionID() string { return c.collectionID }

// SetCollectionID points the client at an existing collection account
// (restored from the cache header).
func (c *Client) SetCollectionID(id string) { c.collectionID = id }

// Balance reports the payer's funds.
func (c *Client) Balance(ctx context.Context) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	err := c.rpc.call(ctx, "getBalance", []any{c.PayerAddress(), map[string]any{"commitment": c.commitment}}, &result)
	if err != nil {
		return 0, classifyRPC("balance", err)
	}
	return result.Value, nil
}

// InitializeCollection creates the collection account.
func (c *Client) InitializeCollection(ctx context.Context, capacity int) (string, string, error) {
	account, err := GenerateKeypair()
	if err != nil {
		return "", "", services.Wrap(services.ErrConfiguration, "ledger", "initialize", "generate collection keypair", err)
	}

	signature, err := c.submit(ctx, account.Address(), encodeInitialize(capacity), account)
	if err != nil {
		return "", "", err
	}

	c.collectionID = account.Address()
	c.logger.Info("initialized collection account",
		logging.String("collection", c.collectionID),
		logging.String("signature", signature))
	return c.collectionID, signature, nil
}

// WriteItems registers a contiguous batch of items.
func (c *Client) WriteItems(ctx context.Context, startIndex int, items []Item) (string, error) {
	if c.collectionID == "" {
		return "", services.Wrap(services.ErrConfiguration, "ledger", "write", "collection account not initialized", nil)
	}
	return c.submit(ctx, c.collectionID, encodeWriteItems(startIndex, items), nil)
}

// Confirm reports whether the transaction reached the configured
// commitment. A missing status means the transaction has not landed (yet).
func (c *Client) Confirm(ctx context.Context, signature string) (bool, error) {
	var result struct {
		Value []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                any    `json:"err"`
		} `json:"value"`
	}
	err := c.rpc.call(ctx, "getSignatureStatuses", []any{[]string{signature}}, &result)
	if err != nil {
		return false, classifyRPC("confirm", err)
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return false, services.Wrap(services.ErrPermanent, "ledger", "confirm",
			fmt.Sprintf("transaction %s failed on-chain: %v", signature, status.Err), nil)
	}
	return commitmentReached(status.ConfirmationStatus, c.commitment), nil
}

// ReadState fetches and decodes the collection account.
func (c *Client) ReadState(ctx context.Context) (State, error) {
	if c.collectionID == "" {
		return State{}, nil
	}
	var result struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	err := c.rpc.call(ctx, "getAccountInfo", []any{
		c.collectionID,
		map[string]any{"encoding": "base64", "commitment": c.commitment},
	}, &result)
	if err != nil {
		return State{}, classifyRPC("read-state", err)
	}
	if result.Value == nil || len(result.Value.Data) == 0 {
		return State{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return State{}, services.Wrap(services.ErrConsistency, "ledger", "read-state", "decode account data", err)
	}
	return decodeState(raw)
}

// Withdraw drains the collection account's balance back to the payer.
func (c *Client) Withdraw(ctx context.Context, collectionID string) (string, uint64, error) {
	var balance struct {
		Value uint64 `json:"value"`
	}
	if err := c.rpc.call(ctx, "getBalance", []any{collectionID, map[string]any{"commitment": c.commitment}}, &balance); err != nil {
		return "", 0, classifyRPC("withdraw", err)
	}

	signature, err := c.submit(ctx, collectionID, encodeWithdraw(), nil)
	if err != nil {
		return "", 0, err
	}
	return signature, balance.Value, nil
}

// ListCollections enumerates program accounts whose authority is the payer.
func (c *Client) ListCollections(ctx context.Context) ([]CollectionFunds, error) {
	var result []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Lamports uint64 `json:"lamports"`
		} `json:"account"`
	}
	err := c.rpc.call(ctx, "getProgramAccounts", []any{
		c.programID,
		map[string]any{
			"commitment": c.commitment,
			"filters": []any{
				map[string]any{"memcmp": map[string]any{"offset": 8, "bytes": c.PayerAddress()}},
			},
		},
	}, &result)
	if err != nil {
		return nil, classifyRPC("list-collections", err)
	}

	collections := make([]CollectionFunds, 0, len(result))
	for _, entry := range result {
		collections = append(collections, CollectionFunds{
			Address:  entry.Pubkey,
			Lamports: entry.Account.Lamports,
		})
	}
	return collections, nil
}

// submit builds, signs, and sends one transaction against the program.
// extraSigner co-signs account-creation transactions.
func (c *Client) submit(ctx context.Context, target string, instruction []byte, extraSigner *Keypair) (string, error) {
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	message := encodeMessage(c.programID, c.PayerAddress(), target, blockhash, instruction)
	signatures := [][]byte{c.keypair.Sign(message)}
	if extraSigner != nil {
		signatures = append(signatures, extraSigner.Sign(message))
	}

	tx := encodeTransaction(signatures, message)
	var signature string
	err = c.rpc.call(ctx, "sendTransaction", []any{
		base64.StdEncoding.EncodeToString(tx),
		map[string]any{"encoding": "base64", "preflightCommitment": c.commitment},
	}, &signature)
	if err != nil {
		return "", classifyRPC("submit", err)
	}
	return signature, nil
}

func (c *Client) latestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	err := c.rpc.call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": c.commitment}}, &result)
	if err != nil {
		return "", classifyRPC("blockhash", err)
	}
	return result.Value.Blockhash, nil
}

func encodeMessage(programID, payer, target, blockhash string, instruction []byte) []byte {
	var buf bytes.Buffer
	for _, field := range []string{programID, payer, target, blockhash} {
		binary.Write(&buf, binary.LittleEndian, uint32(len(field)))
		buf.WriteString(field)
	}
	binary.Write(&buf, binary.LittleEndian, uint32(len(instruction)))
	buf.Write(instruction)
	return buf.Bytes()
}

func encodeTransaction(signatures [][]byte, message []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(len(signatures)))
	for _, signature := range signatures {
		buf.Write(signature)
	}
	buf.Write(message)
	return buf.Bytes()
}

func commitmentReached(status, required string) bool {
	rank := func(value string) int {
		switch value {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		default:
			return 0
		}
	}
	return rank(status) >= rank(required)
}

// classifyRPC tags node-reported errors: anything the node actively
// rejected is permanent for this transaction; transport problems were
// already tagged transient by the rpc layer.
func classifyRPC(operation string, err error) error {
	var nodeErr *rpcError
	if errors.As(err, &nodeErr) {
		return services.Wrap(services.ErrPermanent, "ledger", operation, "", err)
	}
	if errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrConfiguration) {
		return err
	}
	return services.Wrap(services.ErrTransient, "ledger", operation, "", err)
}

// ConfirmWithTimeout polls Confirm until the deadline, returning true when
// the transaction reaches commitment, false when the deadline passes
// without it landing.
func ConfirmWithTimeout(ctx context.Context, svc Service, signature string, timeout, pollInterval time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		confirmed, err := svc.Confirm(ctx, signature)
		if err != nil && !errors.Is(err, services.ErrTransient) {
			return false, err
		}
		if confirmed {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}
