package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// --- Mock implementations shared by the service tests ---

// mockProvider implements driven.DriveProvider for testing.
type mockProvider struct {
	mu sync.Mutex

	files    []domain.RemoteFile
	changed  []domain.RemoteFile
	content  map[string]string
	pageSize int

	listErr     error
	changedErr  error
	getErr      error
	downloadErr  error
	downloadHang bool
	watchErr     error
	pingErr      error

	downloads []string
	watched   []domain.WebhookChannel
	stopped   []domain.WebhookChannel
}

func (m *mockProvider) ListFolder(_ context.Context, folderID, pageToken string) (*driven.FilePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	start := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &start)
	}
	size := m.pageSize
	if size <= 0 {
		size = len(m.files)
	}
	end := start + size
	next := ""
	if end < len(m.files) {
		next = fmt.Sprintf("page-%d", end)
	} else {
		end = len(m.files)
	}
	page := &driven.FilePage{NextPageToken: next}
	page.Files = append(page.Files, m.files[start:end]...)
	return page, nil
}

func (m *mockProvider) ListChangedSince(_ context.Context, _ string, _ time.Time) ([]domain.RemoteFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.changedErr != nil {
		return nil, m.changedErr
	}
	out := make([]domain.RemoteFile, len(m.changed))
	copy(out, m.changed)
	return out, nil
}

func (m *mockProvider) GetFile(_ context.Context, fileID string) (*domain.RemoteFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, f := range m.files {
		if f.ID == fileID {
			out := f
			return &out, nil
		}
	}
	return nil, fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
}

func (m *mockProvider) Download(ctx context.Context, file domain.RemoteFile) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.downloadHang {
		m.mu.Unlock()
		<-ctx.Done()
		m.mu.Lock()
		return nil, "", ctx.Err()
	}
	if m.downloadErr != nil {
		return nil, "", m.downloadErr
	}
	m.downloads = append(m.downloads, file.ID)
	contentType := file.MimeType
	if domain.IsWorkspaceFile(file.MimeType) {
		contentType = domain.ExportMimeType(file.MimeType)
	}
	return io.NopCloser(bytes.NewBufferString(m.content[file.ID])), contentType, nil
}

func (m *mockProvider) Watch(_ context.Context, folderID, _, _ string, ttl time.Duration) (*domain.WebhookChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	channel := domain.WebhookChannel{
		ChannelID:  fmt.Sprintf("channel-%d", len(m.watched)+1),
		ResourceID: "resource-1",
		FolderID:   folderID,
		ExpiresAt:  time.Now().Add(ttl),
	}
	m.watched = append(m.watched, channel)
	return &channel, nil
}

func (m *mockProvider) StopChannel(_ context.Context, channel domain.WebhookChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, channel)
	return nil
}

func (m *mockProvider) Ping(_ context.Context) error {
	return m.pingErr
}

// mockObjectStore implements driven.ObjectStore for testing.
type mockObjectStore struct {
	mu sync.Mutex

	objects  map[string][]byte
	metadata map[string]map[string]string
	removed  []string

	putErr    error
	removeErr error
	pingErr   error
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (m *mockObjectStore) Put(_ context.Context, req driven.PutRequest, content io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.objects[req.Key] = data
	m.metadata[req.Key] = req.Metadata
	return nil
}

func (m *mockObjectStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.objects, key)
	m.removed = append(m.removed, key)
	return nil
}

func (m *mockObjectStore) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockObjectStore) object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// failingQueue implements driven.IntentQueue with injectable failures,
// for paths the in-memory queue cannot produce.
type failingQueue struct {
	publishErr error
	published  []domain.ChangeIntent
}

func (q *failingQueue) Publish(_ context.Context, intent domain.ChangeIntent) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, intent)
	return nil
}

func (q *failingQueue) Consume(_ context.Context) (<-chan driven.Delivery, error) {
	return nil, domain.ErrQueueClosed
}

func (q *failingQueue) DeadLetter(_ context.Context, _ domain.ChangeIntent, _ string) error {
	return nil
}

func (q *failingQueue) DeadLetters(_ context.Context) ([]domain.DeadLetter, error) {
	return nil, nil
}

func (q *failingQueue) Ping(_ context.Context) error { return nil }

func (q *failingQueue) Close() error { return nil }
