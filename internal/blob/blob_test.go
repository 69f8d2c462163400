package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	m.types[*input.Key] = *input.ContentType
	return &s3.PutObjectOutput{}, nil
}

func TestKeyKeepsExtension(t *testing.T) {
	k := Key("memories/photos", "../../etc/beach.JPG", "image/jpeg")
	if !strings.HasPrefix(k, "memories/photos/") || !strings.HasSuffix(k, ".jpg") {
		t.Errorf("key = %q", k)
	}
	if strings.Contains(k, "..") {
		t.Errorf("key escapes prefix: %q", k)
	}
	if Key("a", "x.png", "") == Key("a", "x.png", "") {
		t.Error("keys must be unique")
	}
}

func TestS3StoreUploads(t *testing.T) {
	mock := newMockS3()
	s := &S3Store{client: mock, bucket: "family", publicURL: "https://cdn.example.com/family"}

	url, err := s.Store(context.Background(), strings.NewReader("jpegdata"), 8, "image/jpeg", "memories/photos/a.jpg")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if url != "https://cdn.example.com/family/memories/photos/a.jpg" {
		t.Errorf("url = %q", url)
	}
	if string(mock.objects["memories/photos/a.jpg"]) != "jpegdata" {
		t.Error("object not uploaded")
	}
	if mock.types["memories/photos/a.jpg"] != "image/jpeg" {
		t.Error("content type not set")
	}
}

func TestNewS3StoreDefaultPublicURL(t *testing.T) {
	s := NewS3Store(S3Config{Endpoint: "https://s3.example.com/", Bucket: "family", Region: "us-east-1", AccessKey: "k", SecretKey: "s"})
	if s.publicURL != "https://s3.example.com/family" {
		t.Errorf("publicURL = %q", s.publicURL)
	}
}

func TestDiskStoreWrites(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, "http://localhost:8000/")
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}

	url, err := s.Store(context.Background(), strings.NewReader("audio"), -1, "audio/mpeg", "memories/audio/x.mp3")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if url != "http://localhost:8000/media/memories/audio/x.mp3" {
		t.Errorf("url = %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "memories", "audio", "x.mp3"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "audio" {
		t.Errorf("data = %q", data)
	}

	if _, err := s.Store(context.Background(), strings.NewReader("x"), 1, "", "../escape"); err == nil {
		t.Error("expected error for escaping key")
	}
}
