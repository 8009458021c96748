package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jaskirat05/graviton-bridge/pkg/provider"
)

// fakeBucket is an in-memory objectAPI with single-page and paged listing.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	// order of puts, used to verify blob-before-sidecar ordering
	putOrder []string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, pageSize: 1000}
}

func (f *fakeBucket) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.putOrder = append(f.putOrder, key)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		for i, key := range keys {
			if key > token {
				start = i
				break
			}
		}
	}
	end := start + f.pageSize
	truncated := end < len(keys)
	if !truncated {
		end = len(keys)
	}

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
	for _, key := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
	}
	if truncated {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func newTestProvider(t *testing.T, bucket *fakeBucket) *Provider {
	t.Helper()
	p, err := newWithClient(bucket, Config{Bucket: "b", Prefix: "p", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("newWithClient: %v", err)
	}
	return p
}

func TestNewRequiresCredentials(t *testing.T) {
	cases := []Config{
		{Region: "us-east-1", AccessKey: "a", SecretKey: "s"},            // no bucket
		{Bucket: "b", AccessKey: "a", SecretKey: "s"},                    // no region
		{Bucket: "b", Region: "us-east-1", SecretKey: "s"},               // no access key
		{Bucket: "b", Region: "us-east-1", AccessKey: "a"},               // no secret key
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected construction error", i)
		}
	}
}

func TestPutBytesWritesBlobThenSidecar(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	p := newTestProvider(t, bucket)

	payload := []byte("hello")
	ref, err := p.PutBytes(ctx, provider.PutInput{
		Payload:  payload,
		Filename: "a.txt",
		Kind:     "text",
	})
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}

	wantLocator := fmt.Sprintf("s3://b/p/blobs/%s.txt", ref.AssetID)
	if ref.Locator != wantLocator {
		t.Fatalf("locator = %q, want %q", ref.Locator, wantLocator)
	}
	digest := sha256.Sum256(payload)
	if ref.Checksum != "sha256:"+hex.EncodeToString(digest[:]) {
		t.Fatalf("unexpected checksum %q", ref.Checksum)
	}
	if ref.SizeBytes != int64(len(payload)) {
		t.Fatalf("size = %d", ref.SizeBytes)
	}

	if len(bucket.putOrder) != 2 {
		t.Fatalf("expected 2 object writes, got %d", len(bucket.putOrder))
	}
	if !strings.Contains(bucket.putOrder[0], "/blobs/") || !strings.Contains(bucket.putOrder[1], "/meta/") {
		t.Fatalf("blob must be written before sidecar: %v", bucket.putOrder)
	}
	if _, ok := bucket.objects["p/meta/"+ref.AssetID+".json"]; !ok {
		t.Fatalf("sidecar not written at expected key")
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, newFakeBucket())

	payload := []byte{0x00, 0x01, 0xfe, 0xff}
	ref, err := p.PutBytes(ctx, provider.PutInput{Payload: payload, Filename: "blob.bin", Kind: "file"})
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}

	got, err := p.GetBytes(ctx, ref.AssetID)
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: %v vs %v", got, payload)
	}
}

func TestGetMetaImmutable(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, newFakeBucket())

	ref, err := p.PutBytes(ctx, provider.PutInput{Payload: []byte("x"), Filename: "x.txt", Kind: "text"})
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	first, err := p.GetMeta(ctx, ref.AssetID)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	second, err := p.GetMeta(ctx, ref.AssetID)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if first == nil || second == nil {
		t.Fatalf("meta missing")
	}
	if first.CreatedAt != second.CreatedAt || first.Checksum != second.Checksum || first.Locator != second.Locator {
		t.Fatalf("meta not stable across reads: %+v vs %+v", first, second)
	}
}

func TestGetMetaAbsent(t *testing.T) {
	p := newTestProvider(t, newFakeBucket())
	ref, err := p.GetMeta(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if ref != nil {
		t.Fatalf("expected nil ref for unknown id")
	}
}

func TestGetBytesUnknownAsset(t *testing.T) {
	p := newTestProvider(t, newFakeBucket())
	_, err := p.GetBytes(context.Background(), "nope")
	if !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetBytesOrphanedSidecar(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	p := newTestProvider(t, bucket)

	ref, err := p.PutBytes(ctx, provider.PutInput{Payload: []byte("x"), Filename: "x.bin", Kind: "file"})
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	delete(bucket.objects, "p/blobs/"+ref.AssetID+".bin")

	if _, err := p.GetBytes(ctx, ref.AssetID); !errors.Is(err, provider.ErrPayloadMissing) {
		t.Fatalf("expected ErrPayloadMissing, got %v", err)
	}
}

func TestResolveLocalPath(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, newFakeBucket())

	payload := []byte("cached content")
	ref, err := p.PutBytes(ctx, provider.PutInput{Payload: payload, Filename: "doc.txt", Kind: "text"})
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	path, err := p.ResolveLocalPath(ctx, ref.AssetID)
	if err != nil {
		t.Fatalf("ResolveLocalPath: %v", err)
	}
	if filepath.Ext(path) != ".txt" {
		t.Fatalf("expected .txt cache file, got %s", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("cache content mismatch")
	}

	missing, err := p.ResolveLocalPath(ctx, "nope")
	if err != nil {
		t.Fatalf("ResolveLocalPath absent: %v", err)
	}
	if missing != "" {
		t.Fatalf("expected empty path for unknown asset")
	}
}

func TestPutFileMissingSource(t *testing.T) {
	p := newTestProvider(t, newFakeBucket())
	_, err := p.PutFile(context.Background(), filepath.Join(t.TempDir(), "absent.bin"), "file", nil)
	if err == nil {
		t.Fatalf("expected error for missing source file")
	}
}

func TestListAssetsPaginatedNewestFirst(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	bucket.pageSize = 2
	p := newTestProvider(t, bucket)

	for i := 0; i < 5; i++ {
		if _, err := p.PutBytes(ctx, provider.PutInput{
			Payload:  []byte{byte(i)},
			Filename: fmt.Sprintf("f%d.bin", i),
			Kind:     "file",
		}); err != nil {
			t.Fatalf("PutBytes %d: %v", i, err)
		}
	}
	// One malformed sidecar must be skipped, not fail the listing.
	bucket.objects["p/meta/broken.json"] = []byte("{not json")

	refs, err := p.ListAssets(ctx)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(refs) != 5 {
		t.Fatalf("expected 5 assets, got %d", len(refs))
	}
	for i := 1; i < len(refs); i++ {
		if refs[i-1].CreatedAt < refs[i].CreatedAt {
			t.Fatalf("listing not newest-first at %d", i)
		}
	}
}
