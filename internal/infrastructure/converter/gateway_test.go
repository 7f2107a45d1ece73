package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	readers map[string]io.ReadCloser
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects: make(map[string][]byte),
		readers: make(map[string]io.ReadCloser),
	}
}

func (s *memStorage) Save(ctx context.Context, key string, data io.Reader, _ string) (int64, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, context.Cause(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return int64(len(raw)), nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.readers[key]; ok {
		return r, nil
	}
	raw, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrItemNotFound, "open object", io.ErrUnexpectedEOF)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memStorage) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

// dripReader emits chunk bytes per read with a pause between reads and
// never reaches EOF, simulating a hung or crawling upstream.
type dripReader struct {
	chunk int
	pause time.Duration
}

func (r *dripReader) Read(p []byte) (int, error) {
	time.Sleep(r.pause)
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		p[i] = 'x'
	}
	return n, nil
}

func (r *dripReader) Close() error { return nil }

func TestGatewayTransfersNonConvertibleDirectly(t *testing.T) {
	storage := newMemStorage()
	storage.objects["raw/f1.jpg"] = []byte("jpegbytes")
	gateway := NewGateway(storage, NewClient("http://unused", ClientOptions{}), GatewayOptions{})

	var percents []int
	url, err := gateway.Convert(context.Background(), domain.RawFile{
		ID:               "f1",
		OriginalFilename: "SKU1-front.jpg",
		StoragePath:      "raw/f1.jpg",
		Size:             9,
	}, func(p int) { percents = append(percents, p) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn.example.com/converted/f1.jpg" {
		t.Errorf("url = %q", url)
	}
	if _, ok := storage.objects["converted/f1.jpg"]; !ok {
		t.Error("converted object not stored")
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Errorf("progress = %v, want trailing 100", percents)
	}
}

func TestGatewayStagesRawFormatAndCallsService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["source_ref"] != "staging/f2.cr2" {
			t.Errorf("source_ref = %q", req["source_ref"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"output_url": "https://cdn/converted-f2.jpg"})
	}))
	defer server.Close()

	storage := newMemStorage()
	storage.objects["raw/f2.cr2"] = []byte("rawsensor")
	gateway := NewGateway(storage, NewClient(server.URL, ClientOptions{}), GatewayOptions{})

	url, err := gateway.Convert(context.Background(), domain.RawFile{
		ID:               "f2",
		OriginalFilename: "SKU1-back.cr2",
		StoragePath:      "raw/f2.cr2",
		Size:             9,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://cdn/converted-f2.jpg" {
		t.Errorf("url = %q", url)
	}
	if _, ok := storage.objects["staging/f2.cr2"]; !ok {
		t.Error("staged object not stored")
	}
}

func TestGatewayDetectsStalledTransfer(t *testing.T) {
	storage := newMemStorage()
	storage.readers["raw/f3.cr2"] = &dripReader{chunk: 0, pause: 10 * time.Millisecond}
	gateway := NewGateway(storage, NewClient("http://unused", ClientOptions{}), GatewayOptions{
		QuietWindow: 60 * time.Millisecond,
		HardCeiling: 10 * time.Second,
	})

	_, err := gateway.Convert(context.Background(), domain.RawFile{
		ID:               "f3",
		OriginalFilename: "SKU1-left.cr2",
		StoragePath:      "raw/f3.cr2",
		Size:             1000,
	}, nil)
	if !domain.IsKind(err, domain.ErrStalled) {
		t.Fatalf("error = %v, want stalled", err)
	}
}

func TestGatewayEnforcesHardCeiling(t *testing.T) {
	storage := newMemStorage()
	// Progress keeps advancing, so only the ceiling can stop it.
	storage.readers["raw/f4.cr2"] = &dripReader{chunk: 1, pause: 5 * time.Millisecond}
	gateway := NewGateway(storage, NewClient("http://unused", ClientOptions{}), GatewayOptions{
		QuietWindow: 40 * time.Millisecond,
		HardCeiling: 100 * time.Millisecond,
	})

	_, err := gateway.Convert(context.Background(), domain.RawFile{
		ID:               "f4",
		OriginalFilename: "SKU1-right.cr2",
		StoragePath:      "raw/f4.cr2",
		Size:             100,
	}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("error = %v, want temporary", err)
	}
}

func TestProgressTrackerReportsMonotonicPercents(t *testing.T) {
	var got []int
	tracker := newProgressTracker(100, func(p int) { got = append(got, p) })

	tracker.add(25)
	tracker.add(25)
	tracker.add(0)
	tracker.add(100)

	want := []int{25, 50, 100}
	if len(got) != len(want) {
		t.Fatalf("reports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reports = %v, want %v", got, want)
		}
	}
}

func TestProgressTrackerUnknownTotalJumpsToFull(t *testing.T) {
	var got []int
	tracker := newProgressTracker(0, func(p int) { got = append(got, p) })
	tracker.add(1)
	if len(got) != 1 || got[0] != 100 {
		t.Errorf("reports = %v, want [100]", got)
	}
}
