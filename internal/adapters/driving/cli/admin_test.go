package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boltqueue "github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/queue/bolt"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

// setRequiredEnv satisfies config validation so admin commands can run
// without a config file.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GDRIVE_FOLDER_ID", "folder-test")
	t.Setenv("S3_ENDPOINT", "localhost:9000")
	t.Setenv("SYNC_BUCKET", "test-bucket")
	t.Setenv("WEBHOOK_VERIFICATION_TOKEN", "shh")
}

func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestResetStateCmd_RequiresConfirm(t *testing.T) {
	setRequiredEnv(t)
	defer func() { resetConfirm = false }()

	_, err := execute("reset-state")

	assert.ErrorContains(t, err, "--confirm")
}

func TestResetStateCmd_WipesState(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STATE_DSN", "bolt:"+filepath.Join(t.TempDir(), "state.db"))
	defer func() { resetConfirm = false }()

	out, err := execute("reset-state", "--confirm")

	require.NoError(t, err)
	assert.Contains(t, out, "full re-sync")
}

func TestMigrateStateCmd_RequiresTarget(t *testing.T) {
	setRequiredEnv(t)

	_, err := execute("migrate-state")

	assert.Error(t, err)
}

func TestMigrateStateCmd_RejectsSameDSN(t *testing.T) {
	setRequiredEnv(t)
	dsn := "bolt:" + filepath.Join(t.TempDir(), "state.db")
	t.Setenv("STATE_DSN", dsn)
	defer func() { migrateFrom, migrateTo = "", "" }()

	_, err := execute("migrate-state", "--to", dsn)

	assert.ErrorContains(t, err, "matches the source state backend")
}

func TestMigrateStateCmd_CopiesBetweenBackends(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	t.Setenv("STATE_DSN", "bolt:"+filepath.Join(dir, "from.db"))
	defer func() { migrateFrom, migrateTo = "", "" }()

	out, err := execute("migrate-state", "--to", "sqlite:"+filepath.Join(dir, "to.db"))

	require.NoError(t, err)
	assert.Contains(t, out, "migrated 0 records")
}

func TestMigrateStateCmd_ExplicitSource(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	defer func() { migrateFrom, migrateTo = "", "" }()

	out, err := execute("migrate-state",
		"--from", "bolt:"+filepath.Join(dir, "from.db"),
		"--to", "bolt:"+filepath.Join(dir, "to.db"))

	require.NoError(t, err)
	assert.Contains(t, out, "migrated 0 records")
}

func TestDeadLettersCmd_EmptyQueue(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("QUEUE_PATH", filepath.Join(t.TempDir(), "queue.db"))

	out, err := execute("dead-letters")

	require.NoError(t, err)
	assert.Contains(t, out, "no dead letters")
}

func TestDeadLettersCmd_ListsParkedIntents(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "queue.db")
	t.Setenv("QUEUE_PATH", path)

	queue, err := boltqueue.Open(path)
	require.NoError(t, err)
	intent := domain.ChangeIntent{
		ID:         "intent-1",
		FileID:     "file-1",
		ChangeType: domain.ChangeCreated,
		Attempt:    3,
	}
	require.NoError(t, queue.DeadLetter(context.Background(), intent, "permission denied"))
	require.NoError(t, queue.Close())

	out, err := execute("dead-letters")

	require.NoError(t, err)
	assert.Contains(t, out, "1 dead letter(s)")
	assert.Contains(t, out, "file-1")
	assert.Contains(t, out, "attempts=3")
	assert.Contains(t, out, "permission denied")
}

func TestHealthCmd_Use(t *testing.T) {
	assert.Equal(t, "health-check", healthCmd.Use)
}
