package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore_CreatesSchema(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Ping(context.Background()))

	records, err := store.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewStore_EmptyPath(t *testing.T) {
	_, err := NewStore("")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_RecordRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := domain.FileRecord{
		FileID:             "file-1",
		Path:               "report.pdf",
		ContentFingerprint: "md5:aaa",
		DestinationKey:     "drive/file-1/report.pdf",
		Status:             domain.StatusSynced,
		LastSyncedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:          time.Date(2026, 8, 1, 12, 0, 1, 0, time.UTC),
	}
	require.NoError(t, store.SaveRecord(ctx, rec, ""))

	got, err := store.GetRecord(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, rec.FileID, got.FileID)
	assert.Equal(t, rec.Path, got.Path)
	assert.Equal(t, rec.ContentFingerprint, got.ContentFingerprint)
	assert.Equal(t, rec.DestinationKey, got.DestinationKey)
	assert.Equal(t, rec.Status, got.Status)
	assert.True(t, rec.LastSyncedAt.Equal(got.LastSyncedAt))
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
}

func TestStore_GetRecord_NotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRecord(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_SaveRecord_ConflictOnStaleFingerprint(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := domain.FileRecord{
		FileID: "file-1", Status: domain.StatusSynced, UpdatedAt: time.Now(),
	}

	first := base
	first.ContentFingerprint = "md5:aaa"
	require.NoError(t, store.SaveRecord(ctx, first, ""))

	second := base
	second.ContentFingerprint = "md5:bbb"
	require.NoError(t, store.SaveRecord(ctx, second, "md5:aaa"))

	stale := base
	stale.ContentFingerprint = "md5:ccc"
	err := store.SaveRecord(ctx, stale, "md5:aaa")
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	got, err := store.GetRecord(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "md5:bbb", got.ContentFingerprint)
}

func TestStore_SaveRecord_EmptyExpectedRequiresAbsence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := domain.FileRecord{
		FileID: "file-1", ContentFingerprint: "md5:aaa",
		Status: domain.StatusSynced, UpdatedAt: time.Now(),
	}
	require.NoError(t, store.SaveRecord(ctx, rec, ""))

	rec.ContentFingerprint = "md5:bbb"
	err := store.SaveRecord(ctx, rec, "")
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestStore_SaveRecord_ConcurrentInsertsOneWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.SaveRecord(ctx, domain.FileRecord{
				FileID:             "file-1",
				ContentFingerprint: "md5:aaa",
				Status:             domain.StatusPending,
				UpdatedAt:          time.Now(),
			}, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrStateConflict,
			"losers must surface the conflict, not a raw driver error")
	}
	assert.Equal(t, 1, wins, "exactly one conditional insert may succeed")
}

func TestStore_CursorRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.GetCursor(ctx, "folder-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cursor := domain.SyncCursor{
		FolderID:         "folder-1",
		LastCheckedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		LastFullListHash: "abc",
	}
	require.NoError(t, store.SaveCursor(ctx, cursor))

	got, err := store.GetCursor(ctx, "folder-1")
	require.NoError(t, err)
	assert.Equal(t, cursor.FolderID, got.FolderID)
	assert.Equal(t, cursor.LastFullListHash, got.LastFullListHash)
	assert.True(t, cursor.LastCheckedAt.Equal(got.LastCheckedAt))

	// Replacing advances in place.
	cursor.LastFullListHash = "def"
	require.NoError(t, store.SaveCursor(ctx, cursor))

	got, err = store.GetCursor(ctx, "folder-1")
	require.NoError(t, err)
	assert.Equal(t, "def", got.LastFullListHash)
}

func TestStore_ChannelRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	channel := domain.WebhookChannel{
		ChannelID:  "channel-1",
		ResourceID: "resource-1",
		FolderID:   "folder-1",
		ExpiresAt:  time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveChannel(ctx, channel))

	got, err := store.GetChannel(ctx, "folder-1")
	require.NoError(t, err)
	assert.Equal(t, channel.ChannelID, got.ChannelID)
	assert.Equal(t, channel.ResourceID, got.ResourceID)
	assert.True(t, channel.ExpiresAt.Equal(got.ExpiresAt))
}

func TestStore_Reset(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, domain.FileRecord{
		FileID: "file-1", Status: domain.StatusSynced, UpdatedAt: time.Now(),
	}, ""))
	require.NoError(t, store.SaveCursor(ctx, domain.SyncCursor{
		FolderID: "folder-1", LastCheckedAt: time.Now(),
	}))
	require.NoError(t, store.Reset(ctx))

	records, err := store.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = store.GetCursor(ctx, "folder-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_StateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveRecord(ctx, domain.FileRecord{
		FileID: "file-1", ContentFingerprint: "md5:aaa",
		Status: domain.StatusSynced, UpdatedAt: time.Now(),
	}, ""))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRecord(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "md5:aaa", got.ContentFingerprint)
}
