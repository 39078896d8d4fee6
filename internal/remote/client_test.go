package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"clipsync/internal/config"
	"clipsync/internal/fingerprint"
	"clipsync/internal/history"
)

// fakeStore implements the remote wire protocol in-memory: one metadata
// document plus a named file bucket.
type fakeStore struct {
	mu       sync.Mutex
	metadata []byte
	files    map[string][]byte
	fileGets int
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string][]byte{}}
}

func (f *fakeStore) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/SyncClipboard.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			w.Write(f.metadata)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.metadata = body
			// The real store answers accepted writes with an empty body.
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/file/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.URL.Path[len("/file/"):]
		switch r.Method {
		case http.MethodHead:
			if _, ok := f.files[name]; !ok {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodGet:
			data, ok := f.files[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			f.fileGets++
			w.Write(data)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.files[name] = body
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	t.Setenv(config.HomeEnvVar, t.TempDir())
	cfg := config.DefaultConfig()
	cfg.EndpointURL = serverURL
	cfg.TimeoutMs = 5000
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestFetchEmptyStoreIsNoChange(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !res.NoChange || res.Item != nil {
		t.Fatalf("expected NoChange on empty store, got %+v", res)
	}
}

func TestFetchTextThenLoopSuppression(t *testing.T) {
	store := newFakeStore()
	store.metadata = []byte(`{"Type":"Text","Clipboard":"hello from afar","File":""}`)
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.NoChange || res.Item == nil {
		t.Fatal("expected a fresh remote item")
	}
	if res.Item.Kind != history.KindText || res.Item.Content != "hello from afar" {
		t.Fatalf("unexpected item: %+v", res.Item)
	}
	if res.Item.Provenance != history.ProvenanceRemote || !res.Item.Synced {
		t.Fatalf("remote item must be Remote+synced: %+v", res.Item)
	}

	// The same document fetched again is the client's own acceptance.
	res2, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res2.NoChange {
		t.Fatal("expected NoChange on refetch of an accepted item")
	}
}

func TestUploadTextThenFetchIsNoChange(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	item := history.NewTextItem("copied locally", "box")
	if err := c.Upload(context.Background(), item); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if !item.Synced {
		t.Fatal("upload success must mark the item synced")
	}

	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.NoChange {
		t.Fatal("fetch right after own upload must be NoChange, not a fresh Remote item")
	}
}

func TestUploadImagePushesFileAndMetadata(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	payload := []byte{0x89, 0x50, 0x4e, 0x47, 9, 8, 7}
	cachePath := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(cachePath, payload, 0644); err != nil {
		t.Fatal(err)
	}
	digest := fingerprint.BytesDigest(payload)

	item := &history.HistoryItem{
		ID:            "img-1",
		Content:       digest,
		Kind:          history.KindImage,
		AuxFileName:   "shot.png",
		CacheFilePath: cachePath,
		Provenance:    history.ProvenanceLocal,
		Fingerprint:   fingerprint.Compute(string(history.KindImage), "shot.png", []byte(digest)),
	}
	if err := c.Upload(context.Background(), item); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if got := store.files["shot.png"]; string(got) != string(payload) {
		t.Fatalf("file bytes not uploaded: %v", got)
	}
	want := `{"Type":"Image","Clipboard":"` + digest + `","File":"shot.png"}`
	if string(store.metadata) != want {
		t.Fatalf("metadata mismatch:\n got %s\nwant %s", store.metadata, want)
	}
}

func TestRoundTripSecondDevice(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	// Device one uploads an image.
	c1 := newTestClient(t, srv.URL)
	payload := []byte("pretend these are image bytes")
	cachePath := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(cachePath, payload, 0644); err != nil {
		t.Fatal(err)
	}
	digest := fingerprint.BytesDigest(payload)
	item := &history.HistoryItem{
		ID:            "img-2",
		Content:       digest,
		Kind:          history.KindImage,
		AuxFileName:   "pic.png",
		CacheFilePath: cachePath,
		Provenance:    history.ProvenanceLocal,
		Fingerprint:   fingerprint.Compute(string(history.KindImage), "pic.png", []byte(digest)),
	}
	if err := c1.Upload(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	// Device two, with a fresh cache, fetches it back.
	c2 := newTestClient(t, srv.URL)
	res, err := c2.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch on second device failed: %v", err)
	}
	if res.NoChange || res.Item == nil {
		t.Fatal("second device expected a fresh item")
	}
	got := res.Item
	if got.Kind != history.KindImage || got.AuxFileName != "pic.png" {
		t.Fatalf("unexpected item: %+v", got)
	}
	fileDigest, err := fingerprint.FileDigest(got.CacheFilePath)
	if err != nil {
		t.Fatal(err)
	}
	if fileDigest != digest {
		t.Fatalf("round-trip bytes hash %s, original %s", fileDigest, digest)
	}
	if got.Fingerprint != item.Fingerprint {
		t.Fatalf("devices did not converge on one fingerprint: %s vs %s", got.Fingerprint, item.Fingerprint)
	}
	if got.AuxFileSize != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), got.AuxFileSize)
	}
}

func TestFetchSkipsDownloadWhenCached(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	payload := []byte("cached already")
	digest := fingerprint.BytesDigest(payload)
	store.files["doc.txt"] = payload
	store.metadata = []byte(`{"Type":"File","Clipboard":"` + digest + `","File":"doc.txt"}`)

	c := newTestClient(t, srv.URL)
	// Pre-seed the cache with matching bytes.
	if err := os.WriteFile(filepath.Join(c.cacheDir, "doc.txt"), payload, 0644); err != nil {
		t.Fatal(err)
	}

	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.NoChange || res.Item == nil {
		t.Fatal("expected an item")
	}
	if store.fileGets != 0 {
		t.Fatalf("expected no file download, server saw %d GETs", store.fileGets)
	}
}

func TestFetchAutoSavesToDownloadLocation(t *testing.T) {
	store := newFakeStore()
	payload := []byte("save me")
	digest := fingerprint.BytesDigest(payload)
	store.files["notes.txt"] = payload
	store.metadata = []byte(`{"Type":"File","Clipboard":"` + digest + `","File":"notes.txt"}`)
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	t.Setenv(config.HomeEnvVar, t.TempDir())
	downloads := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.EndpointURL = srv.URL
	cfg.AutoSaveFiles = true
	cfg.DownloadLocation = downloads
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.NoChange || res.Item == nil {
		t.Fatal("expected an item")
	}
	saved, err := os.ReadFile(filepath.Join(downloads, "notes.txt"))
	if err != nil {
		t.Fatalf("expected an auto-saved copy: %v", err)
	}
	if string(saved) != string(payload) {
		t.Fatalf("auto-saved copy differs: %q", saved)
	}
}

func TestPingReachabilityProbe(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())

	c := newTestClient(t, srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("expected the root probe to pass against a live server: %v", err)
	}

	srv.Close()
	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected the root probe to fail against a closed server")
	}
	if kind := KindOf(err); kind != KindUnreachable {
		t.Fatalf("expected Unreachable, got %v (%v)", kind, err)
	}
}

func TestSelfSignedCertificateIsTlsUntrusted(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewTLSServer(store.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected certificate verification to fail against a self-signed server")
	}
	if kind := KindOf(err); kind != KindTlsUntrusted {
		t.Fatalf("expected TlsUntrusted, got %v (%v)", kind, err)
	}
}

func TestTrustInvalidCertsBypassesVerification(t *testing.T) {
	store := newFakeStore()
	store.metadata = []byte(`{"Type":"Text","Clipboard":"over tls","File":""}`)
	srv := httptest.NewTLSServer(store.handler())
	defer srv.Close()

	t.Setenv(config.HomeEnvVar, t.TempDir())
	cfg := config.DefaultConfig()
	cfg.EndpointURL = srv.URL
	cfg.TrustInvalidCert = true
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected the trust override to accept the self-signed cert: %v", err)
	}
	if res.Item == nil || res.Item.Content != "over tls" {
		t.Fatalf("unexpected fetch result: %+v", res)
	}
}

func TestGroupTypeMapsToFileKind(t *testing.T) {
	store := newFakeStore()
	payload := []byte("zipped bundle")
	digest := fingerprint.BytesDigest(payload)
	store.files["bundle.zip"] = payload
	store.metadata = []byte(`{"Type":"Group","Clipboard":"` + digest + `","File":"bundle.zip"}`)
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Item == nil || res.Item.Kind != history.KindFile {
		t.Fatalf("Group payload should map to File kind, got %+v", res.Item)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		desc    string
		handler http.HandlerFunc
		want    ErrorKind
	}{
		{
			"auth failure",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			KindAuthenticationFailed,
		},
		{
			"forbidden",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			KindAuthenticationFailed,
		},
		{
			"missing endpoint",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			KindEndpointNotFound,
		},
		{
			"server error",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			KindRemoteServerError,
		},
		{
			"wrong server type",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>not a store</html>")) },
			KindMalformedResponse,
		},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := newTestClient(t, srv.URL)
			err := c.TestConnection(context.Background())
			if err == nil {
				t.Fatal("expected a typed error")
			}
			if KindOf(err) != tc.want {
				t.Fatalf("expected kind %s, got %s (%v)", tc.want, KindOf(err), err)
			}
		})
	}
}

func TestConnectionRefusedIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // now nothing listens there

	c := newTestClient(t, url)
	err := c.TestConnection(context.Background())
	if err == nil {
		t.Fatal("expected an error against a closed port")
	}
	if KindOf(err) != KindUnreachable {
		t.Fatalf("expected Unreachable, got %s (%v)", KindOf(err), err)
	}
}

func TestTestConnectionAcceptsEmptyStore(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.TestConnection(context.Background()); err != nil {
		t.Fatalf("empty store must pass the probe: %v", err)
	}
}

func TestBasicAuthHeaderSent(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		gotAuth <- user + ":" + pass
	}))
	defer srv.Close()

	t.Setenv(config.HomeEnvVar, t.TempDir())
	cfg := config.DefaultConfig()
	cfg.EndpointURL = srv.URL
	cfg.Username = "alice"
	cfg.Password = "s3cret"
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.TestConnection(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := <-gotAuth; got != "alice:s3cret" {
		t.Fatalf("expected basic auth alice:s3cret, got %s", got)
	}
}
