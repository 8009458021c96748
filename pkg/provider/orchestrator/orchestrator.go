// Package orchestrator implements the proxy asset backend. The bridge
// delegates the whole storage decision to a remote orchestrator service;
// it is used both as the "local" default mode and as an explicit remote
// mode. Uploads run a strict three-step handshake (register, upload,
// complete) and downloads resolve a signed ephemeral URL first.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/jaskirat05/graviton-bridge/pkg/assetref"
	"github.com/jaskirat05/graviton-bridge/pkg/provider"
)

const cacheDirName = "graviton_bridge_asset_cache"

// Config holds the orchestrator connection settings. BaseURL is required;
// Token, when set, is sent as a bearer credential on every call.
type Config struct {
	BaseURL string
	Token   string
}

// Provider implements provider.AssetProvider by proxying to the
// orchestrator's HTTP API.
type Provider struct {
	baseURL  string
	token    string
	metaHTTP *http.Client
	blobHTTP *http.Client
	cacheDir string
}

var _ provider.AssetProvider = (*Provider)(nil)

// New validates the configuration and builds a provider.
func New(cfg Config) (*Provider, error) {
	return newWithClient(cfg, nil)
}

func newWithClient(cfg Config, client *http.Client) (*Provider, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("missing orchestrator base_url in bridge config (orchestrator.base_url)")
	}
	cacheDir, err := provider.CacheDir(cacheDirName)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		baseURL:  strings.TrimRight(base, "/"),
		token:    strings.TrimSpace(cfg.Token),
		metaHTTP: &http.Client{Timeout: provider.MetaTimeout},
		blobHTTP: &http.Client{Timeout: provider.PayloadTimeout},
		cacheDir: cacheDir,
	}
	if client != nil {
		p.metaHTTP = client
		p.blobHTTP = client
	}
	return p, nil
}

// url resolves a path against the base URL. Absolute URLs pass through so
// the orchestrator may hand back fully qualified upload/download targets.
func (p *Provider) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return p.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (p *Provider) authorize(req *http.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
}

// doJSON performs a request and decodes a JSON object response. Non-2xx
// responses surface as transport errors with the orchestrator's body text.
func (p *Provider) doJSON(client *http.Client, req *http.Request) (map[string]any, int, error) {
	p.authorize(req)
	res, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("orchestrator request: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("read orchestrator response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, res.StatusCode, fmt.Errorf("orchestrator responded %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, res.StatusCode, fmt.Errorf("invalid JSON response from orchestrator: %w", err)
	}
	return payload, res.StatusCode, nil
}

func (p *Provider) postJSON(ctx context.Context, client *http.Client, path string, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(path), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	payload, _, err := p.doJSON(client, req)
	return payload, err
}

func refFromPayload(payload map[string]any) (*assetref.AssetRef, error) {
	doc, ok := payload["asset_ref"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("orchestrator response missing asset_ref")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("reshape asset_ref: %w", err)
	}
	return assetref.Decode(raw)
}

// PutBytes runs the three-step upload protocol. Any step's failure aborts
// the whole operation; there is no automatic retry, and the completed
// response's asset_ref is authoritative over the provisional one.
func (p *Provider) PutBytes(ctx context.Context, in provider.PutInput) (*assetref.AssetRef, error) {
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	// Step 1: announce the upload, receive a descriptor and provisional ref.
	registered, err := p.postJSON(ctx, p.blobHTTP, "/assets/register-upload", map[string]any{
		"filename":   in.Filename,
		"kind":       in.Kind,
		"mime_type":  mimeType,
		"size_bytes": len(in.Payload),
		"metadata":   metadata,
	})
	if err != nil {
		return nil, err
	}
	upload, _ := registered["upload"].(map[string]any)
	uploadURL, _ := upload["url"].(string)
	if uploadURL == "" {
		return nil, fmt.Errorf("orchestrator register-upload missing upload.url")
	}
	provisional, err := refFromPayload(registered)
	if err != nil {
		return nil, fmt.Errorf("register-upload response missing asset_ref: %w", err)
	}
	if provisional.AssetID == "" {
		return nil, fmt.Errorf("register-upload response missing asset_id")
	}

	// Step 2: deliver the raw payload to the returned upload target.
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("file", in.Filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(in.Payload); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	uploadReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(uploadURL), &form)
	if err != nil {
		return nil, err
	}
	uploadReq.Header.Set("Content-Type", writer.FormDataContentType())
	if _, _, err := p.doJSON(p.blobHTTP, uploadReq); err != nil {
		return nil, err
	}

	// Step 3: finalize; the completed ref replaces the provisional one.
	completed, err := p.postJSON(ctx, p.blobHTTP, fmt.Sprintf("/assets/%s:complete-upload", provisional.AssetID), map[string]any{})
	if err != nil {
		return nil, err
	}
	ref, err := refFromPayload(completed)
	if err != nil {
		return nil, fmt.Errorf("complete-upload response missing asset_ref: %w", err)
	}
	return ref, nil
}

// PutFile reads the source fully into memory and delegates to PutBytes.
func (p *Provider) PutFile(ctx context.Context, sourcePath, kind string, metadata map[string]any) (*assetref.AssetRef, error) {
	payload, filename, err := provider.ReadSourceFile(sourcePath)
	if err != nil {
		return nil, err
	}
	return p.PutBytes(ctx, provider.PutInput{
		Payload:  payload,
		Filename: filename,
		Kind:     kind,
		Metadata: metadata,
	})
}

// GetMeta fetches the ref from the orchestrator. A 404 yields (nil, nil).
func (p *Provider) GetMeta(ctx context.Context, assetID string) (*assetref.AssetRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(fmt.Sprintf("/assets/%s/meta", assetID)), nil)
	if err != nil {
		return nil, err
	}
	p.authorize(req)
	res, err := p.metaHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read orchestrator response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("orchestrator responded %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON response from orchestrator: %w", err)
	}
	ref, err := refFromPayload(payload)
	if err != nil {
		return nil, nil
	}
	return ref, nil
}

// GetBytes resolves a signed download URL, then fetches it. Both steps are
// required; the orchestrator never serves payload bytes inline.
func (p *Provider) GetBytes(ctx context.Context, assetID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(fmt.Sprintf("/assets/%s/resolve", assetID)), nil)
	if err != nil {
		return nil, err
	}
	resolved, _, err := p.doJSON(p.blobHTTP, req)
	if err != nil {
		return nil, err
	}
	download, _ := resolved["download"].(map[string]any)
	downloadURL, _ := download["url"].(string)
	if downloadURL == "" {
		return nil, fmt.Errorf("resolve response missing download.url")
	}

	fileReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(downloadURL), nil)
	if err != nil {
		return nil, err
	}
	p.authorize(fileReq)
	res, err := p.blobHTTP.Do(fileReq)
	if err != nil {
		return nil, fmt.Errorf("orchestrator download: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("orchestrator download responded %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// ResolveLocalPath downloads the asset into the provider's cache directory.
func (p *Provider) ResolveLocalPath(ctx context.Context, assetID string) (string, error) {
	ref, err := p.GetMeta(ctx, assetID)
	if err != nil {
		return "", err
	}
	if ref == nil {
		return "", nil
	}
	payload, err := p.GetBytes(ctx, assetID)
	if err != nil {
		return "", err
	}
	return provider.MaterializeTo(p.cacheDir, assetID, ref.Filename, payload)
}

// ListAssets is intentionally empty: the orchestrator is the system of
// record and re-listing through the proxy is not required for pipeline
// chaining. The bridge's ledger offers local history instead.
func (p *Provider) ListAssets(ctx context.Context) ([]*assetref.AssetRef, error) {
	return []*assetref.AssetRef{}, nil
}
