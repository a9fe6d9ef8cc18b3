package driven

import (
	"context"
	"io"
	"time"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

// FilePage is one page of a folder listing.
type FilePage struct {
	Files []domain.RemoteFile

	// NextPageToken is empty on the final page.
	NextPageToken string
}

// DriveProvider talks to the cloud-storage provider. Implementations
// classify their failures: retryable ones wrap
// domain.ErrTransientProvider, missing files wrap domain.ErrNotFound,
// everything else is treated as permanent.
type DriveProvider interface {
	// ListFolder returns one page of the folder's current listing.
	// Callers must keep following NextPageToken until it is empty;
	// conclusions drawn from a partial listing are invalid.
	ListFolder(ctx context.Context, folderID, pageToken string) (*FilePage, error)

	// ListChangedSince returns files in the folder modified after the
	// given time. Used to expand folder-scope sweep intents without a
	// full listing.
	ListChangedSince(ctx context.Context, folderID string, since time.Time) ([]domain.RemoteFile, error)

	// GetFile fetches current metadata for a single file.
	GetFile(ctx context.Context, fileID string) (*domain.RemoteFile, error)

	// Download streams the file's content. Provider-native documents
	// are exported to their Office representation. The returned MIME
	// type is the content type of the stream actually delivered.
	Download(ctx context.Context, file domain.RemoteFile) (io.ReadCloser, string, error)

	// Watch opens a push-notification channel for the folder, delivering
	// to address with the given verification token, valid for ttl.
	Watch(ctx context.Context, folderID, address, token string, ttl time.Duration) (*domain.WebhookChannel, error)

	// StopChannel tears down a push channel.
	StopChannel(ctx context.Context, channel domain.WebhookChannel) error

	// Ping verifies credentials and connectivity.
	Ping(ctx context.Context) error
}
