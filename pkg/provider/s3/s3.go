// Package s3 implements the object-store asset backend. Each artifact is
// stored as two objects under the configured prefix: the blob at
// blobs/<asset_id><ext> and a JSON sidecar at meta/<asset_id>.json. The
// sidecar is the single source of truth for every field except the bytes.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/jaskirat05/graviton-bridge/pkg/assetref"
	"github.com/jaskirat05/graviton-bridge/pkg/provider"
)

const cacheDirName = "graviton_bridge_s3_cache"

// Config holds the object-store settings. Bucket, region and both
// credential halves are required; Endpoint switches to an S3-compatible
// service such as MinIO.
type Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// objectAPI is the slice of the S3 client the provider uses. Tests inject
// a fake; production wires *awss3.Client.
type objectAPI interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, opts ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Provider implements provider.AssetProvider against an S3 bucket.
type Provider struct {
	client   objectAPI
	bucket   string
	prefix   string
	cacheDir string
}

var _ provider.AssetProvider = (*Provider)(nil)

// New validates the configuration and builds a provider with a real S3
// client. Missing credentials fail fast here, not at first use.
func New(cfg Config) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing s3 bucket in bridge config (s3.bucket)")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("missing s3 region in bridge config (s3.region)")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("missing s3 credentials in bridge config (s3.access_key, s3.secret_key)")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var clientOpts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Compatible services (MinIO, OSS) generally need path style.
			o.UsePathStyle = true
		})
	}

	return newWithClient(awss3.NewFromConfig(awsCfg, clientOpts...), cfg)
}

func newWithClient(client objectAPI, cfg Config) (*Provider, error) {
	cacheDir, err := provider.CacheDir(cacheDirName)
	if err != nil {
		return nil, err
	}
	return &Provider{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		cacheDir: cacheDir,
	}, nil
}

func (p *Provider) joinKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts)+1)
	if p.prefix != "" {
		cleaned = append(cleaned, p.prefix)
	}
	for _, part := range parts {
		if trimmed := strings.Trim(part, "/"); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "/")
}

func (p *Provider) blobKey(assetID, filename string) string {
	return p.joinKey("blobs", assetID+provider.ExtensionFor(filename))
}

func (p *Provider) metaKey(assetID string) string {
	return p.joinKey("meta", assetID+".json")
}

func (p *Provider) locator(key string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, key)
}

func (p *Provider) keyFromLocator(locator string) (string, error) {
	want := "s3://" + p.bucket + "/"
	if !strings.HasPrefix(locator, want) {
		return "", fmt.Errorf("locator %q does not belong to bucket %s", locator, p.bucket)
	}
	return strings.TrimPrefix(locator, want), nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404")
}

// PutBytes uploads the blob first and the sidecar second, so a sidecar is
// never visible without its blob. A mid-failure leaves at most an orphan
// blob, never a dangling sidecar.
func (p *Provider) PutBytes(ctx context.Context, in provider.PutInput) (*assetref.AssetRef, error) {
	assetID := uuid.NewString()
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = provider.MimeForFilename(in.Filename)
	}
	digest := sha256.Sum256(in.Payload)

	blobKey := p.blobKey(assetID, in.Filename)
	_, err := p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(blobKey),
		Body:        bytes.NewReader(in.Payload),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return nil, fmt.Errorf("put blob object: %w", err)
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	ref := &assetref.AssetRef{
		AssetID:   assetID,
		Provider:  assetref.ProviderS3,
		Kind:      in.Kind,
		MimeType:  mimeType,
		SizeBytes: int64(len(in.Payload)),
		Checksum:  "sha256:" + hex.EncodeToString(digest[:]),
		Locator:   p.locator(blobKey),
		Filename:  in.Filename,
		CreatedAt: provider.NowUTC(),
		Metadata:  metadata,
	}

	sidecar, err := ref.Encode()
	if err != nil {
		return nil, err
	}
	_, err = p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.metaKey(assetID)),
		Body:        bytes.NewReader(sidecar),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("put meta object: %w", err)
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

// GetMeta reads the sidecar. Unknown ids yield (nil, nil).
func (p *Provider) GetMeta(ctx context.Context, assetID string) (*assetref.AssetRef, error) {
	out, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.metaKey(assetID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get meta object: %w", err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read meta object: %w", err)
	}
	return assetref.Decode(raw)
}

// GetBytes recovers the blob key from the sidecar's locator and fetches it.
func (p *Provider) GetBytes(ctx context.Context, assetID string) ([]byte, error) {
	ref, err := p.GetMeta(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, assetID)
	}
	blobKey, err := p.keyFromLocator(ref.Locator)
	if err != nil {
		return nil, err
	}
	out, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(blobKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", provider.ErrPayloadMissing, assetID)
		}
		return nil, fmt.Errorf("get blob object: %w", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob object: %w", err)
	}
	return payload, nil
}

// ResolveLocalPath downloads the blob into the provider's cache directory.
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

// ListAssets paginates the meta prefix, parsing every sidecar. Individual
// malformed sidecars are skipped rather than failing the listing.
func (p *Provider) ListAssets(ctx context.Context) ([]*assetref.AssetRef, error) {
	refs := []*assetref.AssetRef{}
	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.joinKey("meta")),
	}
	for {
		page, err := p.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list meta objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			out, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
				Bucket: aws.String(p.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				continue
			}
			raw, err := io.ReadAll(out.Body)
			out.Body.Close()
			if err != nil {
				continue
			}
			ref, err := assetref.Decode(raw)
			if err != nil {
				continue
			}
			refs = append(refs, ref)
		}
		if !aws.ToBool(page.IsTruncated) || aws.ToString(page.NextContinuationToken) == "" {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
	}
	assetref.SortNewestFirst(refs)
	return refs, nil
}
