package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	queuemem "github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/queue/memory"
	statemem "github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/state/memory"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

func TestAdmin_HealthCheck(t *testing.T) {
	provider := &mockProvider{}
	queue := queuemem.NewQueue()
	store := statemem.NewStore()
	objects := newMockObjectStore()
	admin := NewAdmin(provider, queue, store, objects, "folder-1")

	report := admin.HealthCheck(context.Background())
	assert.True(t, report.Healthy())

	// One sick dependency makes the whole report unhealthy, with the
	// other legs still individually reported.
	provider.pingErr = errors.New("credentials expired")
	report = admin.HealthCheck(context.Background())
	assert.False(t, report.Healthy())
	assert.Error(t, report.Provider)
	assert.NoError(t, report.Queue)
	assert.NoError(t, report.State)
	assert.NoError(t, report.Objects)
}

func TestMigrateState_CopiesEverything(t *testing.T) {
	ctx := context.Background()
	from := statemem.NewStore()
	to := statemem.NewStore()

	require.NoError(t, from.SaveRecord(ctx, domain.FileRecord{
		FileID: "file-1", ContentFingerprint: "md5:aaa", Status: domain.StatusSynced,
	}, ""))
	require.NoError(t, from.SaveRecord(ctx, domain.FileRecord{
		FileID: "file-2", ContentFingerprint: "md5:bbb", Status: domain.StatusDeleted,
	}, ""))
	require.NoError(t, from.SaveCursor(ctx, domain.SyncCursor{
		FolderID: "folder-1", LastCheckedAt: time.Now(), LastFullListHash: "abc",
	}))
	require.NoError(t, from.SaveChannel(ctx, domain.WebhookChannel{
		ChannelID: "channel-1", FolderID: "folder-1", ExpiresAt: time.Now().Add(time.Hour),
	}))

	summary, err := MigrateState(ctx, from, to, "folder-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.Cursors)
	assert.Equal(t, 1, summary.Channels)
	assert.Zero(t, summary.Skipped)

	rec, err := to.GetRecord(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, "md5:aaa", rec.ContentFingerprint)

	cursor, err := to.GetCursor(ctx, "folder-1")
	require.NoError(t, err)
	assert.Equal(t, "abc", cursor.LastFullListHash)

	channel, err := to.GetChannel(ctx, "folder-1")
	require.NoError(t, err)
	assert.Equal(t, "channel-1", channel.ChannelID)
}

func TestMigrateState_Idempotent(t *testing.T) {
	ctx := context.Background()
	from := statemem.NewStore()
	to := statemem.NewStore()

	require.NoError(t, from.SaveRecord(ctx, domain.FileRecord{
		FileID: "file-1", ContentFingerprint: "md5:aaa", Status: domain.StatusSynced,
	}, ""))

	first, err := MigrateState(ctx, from, to, "folder-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Records)

	second, err := MigrateState(ctx, from, to, "folder-1")
	require.NoError(t, err)
	assert.Zero(t, second.Records)
	assert.Equal(t, 1, second.Skipped)
}

func TestMigrateState_EmptySource(t *testing.T) {
	summary, err := MigrateState(context.Background(), statemem.NewStore(), statemem.NewStore(), "folder-1")
	require.NoError(t, err)
	assert.Zero(t, summary.Records)
	assert.Zero(t, summary.Cursors)
	assert.Zero(t, summary.Channels)
}

func TestAdmin_ResetState(t *testing.T) {
	ctx := context.Background()
	store := statemem.NewStore()
	admin := NewAdmin(&mockProvider{}, queuemem.NewQueue(), store, newMockObjectStore(), "folder-1")

	require.NoError(t, store.SaveRecord(ctx, domain.FileRecord{
		FileID: "file-1", ContentFingerprint: "md5:aaa", Status: domain.StatusSynced,
	}, ""))

	require.NoError(t, admin.ResetState(ctx))

	records, err := store.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
