package emoji

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func pngFixture(t *testing.T, w, h int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newImageServer(t *testing.T, body []byte, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write(body)
	}))
}

func TestLoadEmojiDownloadsDecodesAndCaches(t *testing.T) {
	body := pngFixture(t, 200, 50, color.RGBA{R: 255, A: 255})
	ts := newImageServer(t, body, http.StatusOK)
	defer ts.Close()

	svc := NewService(NewCache(time.Minute, 10), NewLimiter(10, 3), nil)
	key, err := svc.LoadEmoji(context.Background(), ts.URL, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if key == "" {
		t.Fatal("want non-empty key")
	}

	entry, ok := svc.Get(key)
	if !ok {
		t.Fatal("want cache hit for returned key")
	}
	if entry.ContentType != "image/webp" {
		t.Fatalf("want image/webp content type, got %q", entry.ContentType)
	}
	if len(entry.Data) == 0 {
		t.Fatal("want non-empty encoded bytes")
	}
}

func TestLoadEmojiIdenticalPayloadsCollideOnKey(t *testing.T) {
	body := pngFixture(t, 200, 50, color.RGBA{G: 255, A: 255})
	ts1 := newImageServer(t, body, http.StatusOK)
	defer ts1.Close()
	ts2 := newImageServer(t, body, http.StatusOK)
	defer ts2.Close()

	cache := NewCache(time.Minute, 10)
	svc := NewService(cache, NewLimiter(10, 3), nil)

	key1, err := svc.LoadEmoji(context.Background(), ts1.URL, "alice")
	if err != nil {
		t.Fatal(err)
	}
	key2, err := svc.LoadEmoji(context.Background(), ts2.URL, "bob")
	if err != nil {
		t.Fatal(err)
	}

	if key1 != key2 {
		t.Fatalf("want byte-identical output to collide on key, got %q vs %q", key1, key2)
	}
	if cache.Len() != 1 {
		t.Fatalf("want exactly 1 cache entry for the collided key, got %d", cache.Len())
	}
}

func TestLoadEmojiNon200ReturnsError(t *testing.T) {
	ts := newImageServer(t, []byte("nope"), http.StatusNotFound)
	defer ts.Close()

	svc := NewService(NewCache(time.Minute, 10), NewLimiter(10, 3), nil)
	if _, err := svc.LoadEmoji(context.Background(), ts.URL, "alice"); err == nil {
		t.Fatal("want error on non-200 response")
	}
}

func TestLoadEmojiUndecodableBodyReturnsError(t *testing.T) {
	ts := newImageServer(t, []byte("not an image"), http.StatusOK)
	defer ts.Close()

	svc := NewService(NewCache(time.Minute, 10), NewLimiter(10, 3), nil)
	if _, err := svc.LoadEmoji(context.Background(), ts.URL, "alice"); err == nil {
		t.Fatal("want error on undecodable body")
	}
}

func TestStartMaintenanceSweepsExpiredCacheEntries(t *testing.T) {
	cache := NewCache(time.Millisecond, 10)
	limiter := NewLimiter(10, 3)
	svc := NewService(cache, limiter, nil)

	cache.Set(time.Now(), "k", []byte("x"), "image/webp")
	release, err := limiter.Acquire(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	release()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		svc.StartMaintenance(10*time.Millisecond, stop)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	<-done

	if cache.Len() != 0 {
		t.Fatalf("want expired entry swept, got %d entries", cache.Len())
	}
}

func TestLoadEmojiDownscalesLargeImage(t *testing.T) {
	body := pngFixture(t, 400, 300, color.RGBA{B: 255, A: 255})
	ts := newImageServer(t, body, http.StatusOK)
	defer ts.Close()

	svc := NewService(NewCache(time.Minute, 10), NewLimiter(10, 3), nil)
	key, err := svc.LoadEmoji(context.Background(), ts.URL, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Get(key); !ok {
		t.Fatal("want cached entry")
	}
}
