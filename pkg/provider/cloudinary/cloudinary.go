// Package cloudinary implements the media-CDN asset backend. Storage is
// delegated to Cloudinary's upload API; metadata is derived from the CDN's
// resource model rather than owned by the bridge. Because the CDN has no
// unified fetch-by-id endpoint, reads probe the image, video and raw
// resource namespaces in order.
package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jaskirat05/graviton-bridge/pkg/assetref"
	"github.com/jaskirat05/graviton-bridge/pkg/provider"
)

const cacheDirName = "graviton_bridge_cloudinary_cache"

// resourceTypes are probed in order for fetch-by-id; the first non-404 wins.
var resourceTypes = []string{"image", "video", "raw"}

// Config holds the CDN credentials. Cloud name, API key and API secret are
// required; Folder namespaces uploads and scopes listing when set.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Provider implements provider.AssetProvider against the Cloudinary API.
type Provider struct {
	cfg        Config
	uploadBase string
	metaHTTP   *http.Client
	blobHTTP   *http.Client
	cacheDir   string
	now        func() time.Time
}

var _ provider.AssetProvider = (*Provider)(nil)

// New validates the configuration and builds a provider speaking to the
// public Cloudinary endpoint.
func New(cfg Config) (*Provider, error) {
	return newWithBase(cfg, "https://api.cloudinary.com/v1_1/"+cfg.CloudName, nil)
}

func newWithBase(cfg Config, uploadBase string, client *http.Client) (*Provider, error) {
	cfg.CloudName = strings.TrimSpace(cfg.CloudName)
	cfg.Folder = strings.Trim(strings.TrimSpace(cfg.Folder), "/")
	if cfg.CloudName == "" {
		return nil, fmt.Errorf("missing cloudinary cloud name in bridge config (cloudinary.cloud_name)")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("missing cloudinary credentials in bridge config (cloudinary.api_key, cloudinary.api_secret)")
	}
	cacheDir, err := provider.CacheDir(cacheDirName)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		cfg:        cfg,
		uploadBase: strings.TrimRight(uploadBase, "/"),
		metaHTTP:   &http.Client{Timeout: provider.MetaTimeout},
		blobHTTP:   &http.Client{Timeout: provider.PayloadTimeout},
		cacheDir:   cacheDir,
		now:        time.Now,
	}
	if client != nil {
		p.metaHTTP = client
		p.blobHTTP = client
	}
	return p, nil
}

func (p *Provider) publicID(assetID string) string {
	if p.cfg.Folder != "" {
		return p.cfg.Folder + "/" + assetID
	}
	return assetID
}

func (p *Provider) locator(resourceType, publicID string) string {
	return fmt.Sprintf("cloudinary://%s/%s/upload/%s", p.cfg.CloudName, resourceType, publicID)
}

// signature builds Cloudinary's documented query signature: all non-empty
// parameters except file/api_key/signature, sorted by key, joined as
// key=value with '&', the API secret appended, hashed with SHA-1.
func (p *Provider) signature(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" || key == "file" || key == "api_key" || key == "signature" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}
	digest := sha1.Sum([]byte(strings.Join(pairs, "&") + p.cfg.APISecret))
	return hex.EncodeToString(digest[:])
}

type resource map[string]any

func (r resource) str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r resource) num(key string) int64 {
	if v, ok := r[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func mimeFromResource(resourceType, format, fallback string) string {
	switch {
	case resourceType == "image" && format != "":
		return "image/" + format
	case resourceType == "video" && format != "":
		return "video/" + format
	case format != "":
		if guessed := mime.TypeByExtension("." + format); guessed != "" {
			if idx := strings.Index(guessed, ";"); idx > 0 {
				return strings.TrimSpace(guessed[:idx])
			}
			return guessed
		}
	}
	return fallback
}

func kindFromResource(resourceType string) string {
	switch resourceType {
	case "image":
		return assetref.KindImage
	case "video":
		return assetref.KindVideo
	}
	return assetref.KindFile
}

// toAssetRef maps a CDN resource document onto the bridge's ref model. The
// checksum is only known at upload time; fetched resources carry none.
func (p *Provider) toAssetRef(res resource, checksum string) *assetref.AssetRef {
	publicID := res.str("public_id")
	resourceType := res.str("resource_type")
	if resourceType == "" {
		resourceType = "raw"
	}
	format := res.str("format")

	filename := res.str("original_filename")
	if filename != "" && format != "" {
		filename = filename + "." + format
	} else if filename == "" {
		filename = publicID
	}

	segments := strings.Split(publicID, "/")
	ref := &assetref.AssetRef{
		AssetID:   segments[len(segments)-1],
		Provider:  assetref.ProviderCloudinary,
		Kind:      kindFromResource(resourceType),
		MimeType:  mimeFromResource(resourceType, format, "application/octet-stream"),
		SizeBytes: res.num("bytes"),
		Checksum:  checksum,
		Locator:   p.locator(resourceType, publicID),
		Filename:  filename,
		CreatedAt: res.str("created_at"),
		Metadata: map[string]any{
			"secure_url":    res.str("secure_url"),
			"public_id":     publicID,
			"resource_type": resourceType,
		},
	}
	ref.Normalize()
	return ref
}

func (p *Provider) resourceURL(resourceType, publicID string) string {
	return fmt.Sprintf("%s/resources/%s/upload/%s", p.uploadBase, resourceType, url.PathEscape(publicID))
}

func (p *Provider) getJSON(ctx context.Context, rawURL string, query url.Values) (map[string]any, int, error) {
	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(p.cfg.APIKey, p.cfg.APISecret)
	res, err := p.metaHTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("cloudinary request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, res.StatusCode, nil
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("read cloudinary response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, res.StatusCode, fmt.Errorf("cloudinary responded %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, res.StatusCode, fmt.Errorf("decode cloudinary response: %w", err)
	}
	return payload, res.StatusCode, nil
}

// fetchResource probes the resource-type namespaces in order.
func (p *Provider) fetchResource(ctx context.Context, publicID string) (resource, error) {
	for _, resourceType := range resourceTypes {
		payload, status, err := p.getJSON(ctx, p.resourceURL(resourceType, publicID), nil)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			continue
		}
		return resource(payload), nil
	}
	return nil, nil
}

// PutBytes precomputes the checksum locally (the CDN does not expose one),
// signs the upload parameters, and posts a multipart form to the "auto"
// resource-type endpoint.
func (p *Provider) PutBytes(ctx context.Context, in provider.PutInput) (*assetref.AssetRef, error) {
	assetID := uuid.NewString()
	publicID := p.publicID(assetID)
	digest := sha256.Sum256(in.Payload)
	checksum := "sha256:" + hex.EncodeToString(digest[:])

	params := map[string]string{
		"timestamp":       strconv.FormatInt(p.now().Unix(), 10),
		"public_id":       publicID,
		"overwrite":       "true",
		"unique_filename": "false",
	}
	signature := p.signature(params)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for key, value := range params {
		if err := form.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := form.WriteField("api_key", p.cfg.APIKey); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := form.WriteField("signature", signature); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if in.MimeType != "" {
		if err := form.WriteField("resource_type", "auto"); err != nil {
			return nil, fmt.Errorf("build upload form: %w", err)
		}
	}
	if len(in.Metadata) > 0 {
		pairs := make([]string, 0, len(in.Metadata))
		keys := make([]string, 0, len(in.Metadata))
		for key := range in.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if in.Metadata[key] == nil {
				continue
			}
			pairs = append(pairs, fmt.Sprintf("%s=%v", key, in.Metadata[key]))
		}
		if err := form.WriteField("context", strings.Join(pairs, "|")); err != nil {
			return nil, fmt.Errorf("build upload form: %w", err)
		}
	}

	part, err := form.CreateFormFile("file", in.Filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(in.Payload); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadBase+"/auto/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	res, err := p.blobHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("cloudinary upload responded %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	var uploaded map[string]any
	if err := json.Unmarshal(raw, &uploaded); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return p.toAssetRef(resource(uploaded), checksum), nil
}

// PutFile reads the source fully into memory and delegates to PutBytes,
// inferring a mime type from the filename.
func (p *Provider) PutFile(ctx context.Context, sourcePath, kind string, metadata map[string]any) (*assetref.AssetRef, error) {
	payload, filename, err := provider.ReadSourceFile(sourcePath)
	if err != nil {
		return nil, err
	}
	return p.PutBytes(ctx, provider.PutInput{
		Payload:  payload,
		Filename: filename,
		Kind:     kind,
		MimeType: provider.MimeForFilename(filename),
		Metadata: metadata,
	})
}

// GetMeta probes the image, video and raw namespaces; the first non-404
// response wins. Unknown ids yield (nil, nil).
func (p *Provider) GetMeta(ctx context.Context, assetID string) (*assetref.AssetRef, error) {
	res, err := p.fetchResource(ctx, p.publicID(assetID))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return p.toAssetRef(res, ""), nil
}

// GetBytes re-fetches via the public secure URL recorded in metadata. A
// missing secure URL is a hard failure: the asset is not retrievable.
func (p *Provider) GetBytes(ctx context.Context, assetID string) ([]byte, error) {
	ref, err := p.GetMeta(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, assetID)
	}
	secureURL, _ := ref.Metadata["secure_url"].(string)
	if secureURL == "" {
		return nil, fmt.Errorf("%w: cloudinary secure_url missing for %s", provider.ErrPayloadMissing, assetID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, secureURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := p.blobHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary download: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("cloudinary download responded %d", res.StatusCode)
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

// ListAssets pages through each resource-type namespace independently via
// the CDN's cursor token, concatenates, and sorts newest-first. A folder
// prefix, when configured, scopes the listing.
func (p *Provider) ListAssets(ctx context.Context) ([]*assetref.AssetRef, error) {
	refs := []*assetref.AssetRef{}
	for _, resourceType := range resourceTypes {
		cursor := ""
		for {
			query := url.Values{"max_results": []string{"100"}}
			if p.cfg.Folder != "" {
				query.Set("prefix", p.cfg.Folder+"/")
			}
			if cursor != "" {
				query.Set("next_cursor", cursor)
			}
			payload, status, err := p.getJSON(ctx, fmt.Sprintf("%s/resources/%s/upload", p.uploadBase, resourceType), query)
			if err != nil {
				return nil, err
			}
			if status == http.StatusNotFound || payload == nil {
				break
			}
			items, _ := payload["resources"].([]any)
			for _, item := range items {
				doc, ok := item.(map[string]any)
				if !ok {
					continue
				}
				refs = append(refs, p.toAssetRef(resource(doc), ""))
			}
			cursor, _ = payload["next_cursor"].(string)
			if cursor == "" {
				break
			}
		}
	}
	assetref.SortNewestFirst(refs)
	return refs, nil
}
