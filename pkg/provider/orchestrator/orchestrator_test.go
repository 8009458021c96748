package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaskirat05/graviton-bridge/pkg/provider"
)

type storedAsset struct {
	ref      map[string]any
	payload  []byte
	complete bool
}

// fakeOrchestrator emulates the remote service's asset API.
type fakeOrchestrator struct {
	mu     sync.Mutex
	assets map[string]*storedAsset
	nextID int
	token  string
	server *httptest.Server
	steps  []string
	failOn string // step name to force a 500 on
}

func newFakeOrchestrator(t *testing.T, token string) *fakeOrchestrator {
	t.Helper()
	f := &fakeOrchestrator{assets: map[string]*storedAsset{}, token: token}
	mux := http.NewServeMux()
	mux.HandleFunc("/assets/register-upload", f.handleRegister)
	mux.HandleFunc("/upload/", f.handleUpload)
	mux.HandleFunc("/assets/", f.handleAsset)
	mux.HandleFunc("/download/", f.handleDownload)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOrchestrator) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if f.token == "" {
		return true
	}
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *fakeOrchestrator) fail(step string, w http.ResponseWriter) bool {
	if f.failOn == step {
		http.Error(w, "forced failure", http.StatusInternalServerError)
		return true
	}
	return false
}

func (f *fakeOrchestrator) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !f.checkAuth(w, r) || f.fail("register", w) {
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("orc-%d", f.nextID)
	ref := map[string]any{
		"asset_id":   id,
		"provider":   "orchestrator",
		"kind":       body["kind"],
		"mime_type":  body["mime_type"],
		"size_bytes": body["size_bytes"],
		"checksum":   "",
		"locator":    "orchestrator://" + id,
		"filename":   body["filename"],
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"metadata":   body["metadata"],
	}
	f.assets[id] = &storedAsset{ref: ref}
	f.steps = append(f.steps, "register")
	f.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{
		"upload":    map[string]any{"url": "/upload/" + id},
		"asset_ref": ref,
	})
}

func (f *fakeOrchestrator) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !f.checkAuth(w, r) || f.fail("upload", w) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/upload/")
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing multipart file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	var buf bytes.Buffer
	buf.ReadFrom(file)

	f.mu.Lock()
	asset, ok := f.assets[id]
	if ok {
		asset.payload = buf.Bytes()
	}
	f.steps = append(f.steps, "upload")
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (f *fakeOrchestrator) handleAsset(w http.ResponseWriter, r *http.Request) {
	if !f.checkAuth(w, r) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/assets/")
	switch {
	case strings.HasSuffix(rest, ":complete-upload"):
		if f.fail("complete", w) {
			return
		}
		id := strings.TrimSuffix(rest, ":complete-upload")
		f.mu.Lock()
		asset, ok := f.assets[id]
		if ok {
			asset.complete = true
			asset.ref["checksum"] = "sha256:final"
		}
		f.steps = append(f.steps, "complete")
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"asset_ref": asset.ref})

	case strings.HasSuffix(rest, "/meta"):
		id := strings.TrimSuffix(rest, "/meta")
		f.mu.Lock()
		asset, ok := f.assets[id]
		f.mu.Unlock()
		if !ok || !asset.complete {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"asset_ref": asset.ref})

	case strings.HasSuffix(rest, "/resolve"):
		id := strings.TrimSuffix(rest, "/resolve")
		f.mu.Lock()
		_, ok := f.assets[id]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"download": map[string]any{"url": "/download/" + id},
		})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOrchestrator) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !f.checkAuth(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/download/")
	f.mu.Lock()
	asset, ok := f.assets[id]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(asset.payload)
}

func newTestProvider(t *testing.T, f *fakeOrchestrator) *Provider {
	t.Helper()
	p, err := newWithClient(Config{BaseURL: f.server.URL, Token: f.token}, f.server.Client())
	if err != nil {
		t.Fatalf("newWithClient: %v", err)
	}
	return p
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without base_url")
	}
}

func TestPutBytesThreeStepProtocol(t *testing.T) {
	ctx := context.Background()
	f := newFakeOrchestrator(t, "tok-123")
	p := newTestProvider(t, f)

	ref, err := p.PutBytes(ctx, provider.PutInput{
		Payload:  []byte("payload"),
		Filename: "art.png",
		Kind:     "image",
		MimeType: "image/png",
	})
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}

	f.mu.Lock()
	steps := append([]string(nil), f.steps...)
	f.mu.Unlock()
	want := []string{"register", "upload", "complete"}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v", steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("step %d = %s, want %s", i, steps[i], want[i])
		}
	}

	// The completed ref is authoritative: it carries the final checksum
	// the provisional ref lacked.
	if ref.Checksum != "sha256:final" {
		t.Fatalf("expected completed ref, got checksum %q", ref.Checksum)
	}
	if ref.Provider != "orchestrator" || ref.Filename != "art.png" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
}

func TestPutBytesAbortsOnStepFailure(t *testing.T) {
	ctx := context.Background()
	for _, step := range []string{"register", "upload", "complete"} {
		f := newFakeOrchestrator(t, "")
		f.failOn = step
		p := newTestProvider(t, f)
		if _, err := p.PutBytes(ctx, provider.PutInput{Payload: []byte("x"), Filename: "x.bin", Kind: "file"}); err == nil {
			t.Fatalf("failure at %s step must abort the operation", step)
		}
	}
}

func TestGetBytesTwoStepIndirection(t *testing.T) {
	ctx := context.Background()
	f := newFakeOrchestrator(t, "tok-123")
	p := newTestProvider(t, f)

	payload := []byte("stored remotely")
	ref, err := p.PutBytes(ctx, provider.PutInput{Payload: payload, Filename: "d.bin", Kind: "file"})
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	got, err := p.GetBytes(ctx, ref.AssetID)
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch")
	}
}

func TestGetMetaAbsent(t *testing.T) {
	f := newFakeOrchestrator(t, "")
	p := newTestProvider(t, f)
	ref, err := p.GetMeta(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if ref != nil {
		t.Fatalf("expected nil ref for unknown id")
	}
}

func TestResolveLocalPath(t *testing.T) {
	ctx := context.Background()
	f := newFakeOrchestrator(t, "")
	p := newTestProvider(t, f)

	payload := []byte("cache me")
	ref, err := p.PutBytes(ctx, provider.PutInput{Payload: payload, Filename: "c.txt", Kind: "text"})
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	path, err := p.ResolveLocalPath(ctx, ref.AssetID)
	if err != nil {
		t.Fatalf("ResolveLocalPath: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("cache mismatch")
	}

	absent, err := p.ResolveLocalPath(ctx, "ghost")
	if err != nil {
		t.Fatalf("ResolveLocalPath absent: %v", err)
	}
	if absent != "" {
		t.Fatalf("expected empty path for unknown asset")
	}
}

func TestListAssetsIsEmpty(t *testing.T) {
	f := newFakeOrchestrator(t, "")
	p := newTestProvider(t, f)
	refs, err := p.ListAssets(context.Background())
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("orchestrator listing must be empty, got %d", len(refs))
	}
}

func TestBearerTokenEnforced(t *testing.T) {
	ctx := context.Background()
	f := newFakeOrchestrator(t, "required-token")
	p, err := newWithClient(Config{BaseURL: f.server.URL, Token: "wrong"}, f.server.Client())
	if err != nil {
		t.Fatalf("newWithClient: %v", err)
	}
	if _, err := p.PutBytes(ctx, provider.PutInput{Payload: []byte("x"), Filename: "x", Kind: "file"}); err == nil {
		t.Fatalf("expected auth failure with wrong token")
	}
}
