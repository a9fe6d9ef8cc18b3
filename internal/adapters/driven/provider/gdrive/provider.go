// Package gdrive implements the DriveProvider port on the Google Drive
// v3 API.
package gdrive

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.DriveProvider = (*Provider)(nil)

// fileFields is the metadata requested for every file. Version and
// modifiedTime feed the content fingerprint when md5Checksum is absent.
const fileFields = "id, name, mimeType, size, md5Checksum, version, modifiedTime, trashed"

const defaultPageSize = 100

// Config holds Drive provider configuration.
type Config struct {
	// CredentialsFile is a service-account JSON key. Empty means
	// application default credentials.
	CredentialsFile string

	// TokenSource, when set, takes precedence over CredentialsFile.
	// Lets callers authenticate with a short-lived access token or a
	// workload identity source.
	TokenSource oauth2.TokenSource

	// PageSize is the listing page size.
	PageSize int64

	// RequestsPerSecond throttles API calls. Drive allows roughly ten
	// per second per user; stay under it.
	RequestsPerSecond float64

	// Burst is the throttle's burst size.
	Burst int
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 8.0
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
}

// Provider talks to Google Drive.
type Provider struct {
	svc      *drive.Service
	limiter  *rate.Limiter
	pageSize int64
}

// NewProvider creates a Drive provider with its own API client.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	cfg.applyDefaults()

	var opts []option.ClientOption
	switch {
	case cfg.TokenSource != nil:
		opts = append(opts, option.WithTokenSource(cfg.TokenSource))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(drive.DriveReadonlyScope))

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return NewProviderWithService(svc, cfg), nil
}

// NewProviderWithService wraps an existing Drive service. Used by tests
// that point the service at a stub HTTP server.
func NewProviderWithService(svc *drive.Service, cfg Config) *Provider {
	cfg.applyDefaults()
	return &Provider{
		svc:      svc,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		pageSize: cfg.PageSize,
	}
}

// ListFolder returns one page of the folder's live (non-trashed) files.
func (p *Provider) ListFolder(ctx context.Context, folderID, pageToken string) (*driven.FilePage, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)
	call := p.svc.Files.List().
		Q(query).
		PageSize(p.pageSize).
		Fields("nextPageToken", "files("+fileFields+")").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	list, err := call.Do()
	if err != nil {
		return nil, wrapError("list folder", err)
	}

	page := &driven.FilePage{NextPageToken: list.NextPageToken}
	for _, f := range list.Files {
		page.Files = append(page.Files, toRemoteFile(f))
	}
	return page, nil
}

// ListChangedSince returns files in the folder modified after the given
// time, trashed ones included so deletions are visible.
func (p *Provider) ListChangedSince(ctx context.Context, folderID string, since time.Time) ([]domain.RemoteFile, error) {
	query := fmt.Sprintf("'%s' in parents", folderID)
	if !since.IsZero() {
		query += fmt.Sprintf(" and modifiedTime > '%s'", since.UTC().Format(time.RFC3339))
	}

	var files []domain.RemoteFile
	pageToken := ""
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := p.svc.Files.List().
			Q(query).
			PageSize(p.pageSize).
			Fields("nextPageToken", "files("+fileFields+")").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return nil, wrapError("list changed files", err)
		}
		for _, f := range list.Files {
			files = append(files, toRemoteFile(f))
		}
		if list.NextPageToken == "" {
			return files, nil
		}
		pageToken = list.NextPageToken
	}
}

// GetFile fetches current metadata for a single file.
func (p *Provider) GetFile(ctx context.Context, fileID string) (*domain.RemoteFile, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	f, err := p.svc.Files.Get(fileID).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("get file", err)
	}

	file := toRemoteFile(f)
	return &file, nil
}

// Download streams the file's content. Workspace documents are exported
// to their Office representation; everything else is fetched as stored.
func (p *Provider) Download(ctx context.Context, file domain.RemoteFile) (io.ReadCloser, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	if domain.IsWorkspaceFile(file.MimeType) {
		exportMime := domain.ExportMimeType(file.MimeType)
		resp, err := p.svc.Files.Export(file.ID, exportMime).Context(ctx).Download()
		if err != nil {
			return nil, "", wrapError("export file", err)
		}
		return resp.Body, exportMime, nil
	}

	resp, err := p.svc.Files.Get(file.ID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", wrapError("download file", err)
	}

	contentType := file.MimeType
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		contentType = ct
	}
	return resp.Body, contentType, nil
}

// Watch opens a push-notification channel for the folder.
func (p *Provider) Watch(ctx context.Context, folderID, address, token string, ttl time.Duration) (*domain.WebhookChannel, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	request := &drive.Channel{
		Id:         uuid.NewString(),
		Type:       "web_hook",
		Address:    address,
		Token:      token,
		Expiration: time.Now().Add(ttl).UnixMilli(),
	}
	ch, err := p.svc.Files.Watch(folderID, request).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("watch folder", err)
	}

	return &domain.WebhookChannel{
		ChannelID:  ch.Id,
		ResourceID: ch.ResourceId,
		FolderID:   folderID,
		ExpiresAt:  time.UnixMilli(ch.Expiration).UTC(),
	}, nil
}

// StopChannel tears down a push channel.
func (p *Provider) StopChannel(ctx context.Context, channel domain.WebhookChannel) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	err := p.svc.Channels.Stop(&drive.Channel{
		Id:         channel.ChannelID,
		ResourceId: channel.ResourceID,
	}).Context(ctx).Do()
	if err != nil {
		return wrapError("stop channel", err)
	}
	return nil
}

// Ping verifies credentials and connectivity.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := p.svc.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return wrapError("ping", err)
	}
	return nil
}

func toRemoteFile(f *drive.File) domain.RemoteFile {
	modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return domain.RemoteFile{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Size:         f.Size,
		MD5Checksum:  f.Md5Checksum,
		Version:      f.Version,
		ModifiedTime: modified,
		Trashed:      f.Trashed,
	}
}
