package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/celalgokce/gdrive-sync-clean/internal/config"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

func TestServeCmd_Use(t *testing.T) {
	assert.Equal(t, "serve", serveCmd.Use)
}

func TestRetryPolicy_DefaultSchedule(t *testing.T) {
	cfg := &config.Config{}

	p := retryPolicy(cfg)

	assert.Equal(t, domain.DefaultRetryPolicy(), p)
}

func TestDriveConfig_PrefersAccessToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Drive.CredentialsFile = "key.json"
	cfg.Drive.AccessToken = "ya29.token"

	dc := driveConfig(cfg)

	assert.NotNil(t, dc.TokenSource)
	tok, err := dc.TokenSource.Token()
	assert.NoError(t, err)
	assert.Equal(t, "ya29.token", tok.AccessToken)
}

func TestDriveConfig_KeyFileOnly(t *testing.T) {
	cfg := &config.Config{}
	cfg.Drive.CredentialsFile = "key.json"

	dc := driveConfig(cfg)

	assert.Nil(t, dc.TokenSource)
	assert.Equal(t, "key.json", dc.CredentialsFile)
}

func TestRetryPolicy_OverridesAttempts(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sync.MaxAttempts = 9

	p := retryPolicy(cfg)

	assert.Equal(t, 9, p.MaxAttempts)
	assert.Equal(t, domain.DefaultRetryPolicy().BaseDelay, p.BaseDelay)
}
