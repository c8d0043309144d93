package ipfs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"

	"xdao.co/nftcard/cidutil"
	"xdao.co/nftcard/storage"
)

// DefaultEndpoint is the RPC address of a local Kubo daemon.
const DefaultEndpoint = "http://127.0.0.1:5001"

// Kubo command error codes (cmds.ErrorType).
const (
	codeClient      = 1
	codeRateLimited = 3
)

// CAS is a content-addressable store backed by the Kubo RPC API
// (/api/v0/block/*), as exposed by a local daemon or a hosted pinning
// service.
//
// CID contract: CIDv1 raw + sha2-256, matching cidutil.CIDv1RawSHA256CID.
// Blocks are written with explicit parameters so a gateway serves the exact
// bytes that were put, and a reader can verify them against the CID.
type CAS struct {
	sh  *shell.Shell
	pin bool
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Endpoint is the RPC base URL. If empty, DefaultEndpoint is used.
	Endpoint string
	// AuthToken is sent on every request. A "user:secret" pair is sent as
	// HTTP Basic credentials; anything else as a Bearer token.
	AuthToken string
	// Pin pins written blocks so the node does not garbage-collect them.
	Pin bool
	// Timeout bounds each RPC when the caller's context carries no deadline.
	Timeout time.Duration
	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

func New(opts Options) *CAS {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := &http.Client{Timeout: opts.Timeout}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		client = &c
	}
	if auth := authHeader(opts.AuthToken); auth != "" {
		client.Transport = &authTransport{auth: auth, next: client.Transport}
	}
	return &CAS{sh: shell.NewShellWithClient(endpoint, client), pin: opts.Pin}
}

type blockPutResponse struct {
	Key  string
	Size int
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("data", "data")
	if err != nil {
		return cid.Undef, err
	}
	if _, err := part.Write(data); err != nil {
		return cid.Undef, err
	}
	if err := mw.Close(); err != nil {
		return cid.Undef, err
	}

	var reply blockPutResponse
	err = c.sh.Request("block/put").
		Option("cid-codec", "raw").
		Option("mhtype", "sha2-256").
		Option("mhlen", 32).
		Option("pin", c.pin).
		Header("Content-Type", mw.FormDataContentType()).
		Body(&body).
		Exec(ctx, &reply)
	if err != nil {
		return cid.Undef, mapErr(err)
	}
	got, err := cid.Decode(strings.TrimSpace(reply.Key))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	resp, err := c.sh.Request("block/get", id.String()).Send(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	defer resp.Close()
	if resp.Error != nil {
		return nil, mapErr(resp.Error)
	}
	out, err := io.ReadAll(resp.Output)
	if err != nil {
		return nil, storage.Unavailable("ipfs", err)
	}
	if !cidutil.Matches(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	var stat blockPutResponse
	err := c.sh.Request("block/stat", id.String()).
		Option("offline", true).
		Exec(ctx, &stat)
	return err == nil
}

// mapErr classifies shell errors. Kubo answers 500 for most command
// failures, so the error code and message decide, not the HTTP status.
func mapErr(err error) error {
	var e *shell.Error
	if !errors.As(err, &e) {
		return storage.Unavailable("ipfs", err)
	}
	if isLikelyNotFound(e.Message) {
		return storage.ErrNotFound
	}
	if e.Code == codeClient {
		return fmt.Errorf("ipfs: %s", e.Message)
	}
	if e.Code == codeRateLimited {
		return storage.Unavailable("ipfs", fmt.Errorf("rate limited: %s", e.Message))
	}
	return storage.Unavailable("ipfs", e)
}

func isLikelyNotFound(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found locally") ||
		strings.Contains(msg, "could not find") ||
		strings.Contains(msg, "block not found")
}

type authTransport struct {
	auth string
	next http.RoundTripper
}

func (t *authTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", t.auth)
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(r)
}

func authHeader(token string) string {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return ""
	case strings.HasPrefix(token, "Basic "), strings.HasPrefix(token, "Bearer "):
		return token
	case strings.Contains(token, ":"):
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
	default:
		return "Bearer " + token
	}
}

var errMissingEndpoint = errors.New("missing --ipfs-endpoint")
