package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, StoreMongo, cfg.Store.Driver)
	assert.Equal(t, SequenceRedis, cfg.Store.SequenceDriver)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, []string{"png", "jpg", "jpeg", "pdf", "doc", "docx"}, cfg.Uploads.AllowedExtensions)
	assert.Equal(t, int64(16*1024*1024), cfg.Uploads.MaxFileSizeBytes)
	assert.Equal(t, 3, cfg.Records.AuditWriteRetries)
	assert.Equal(t, 1, cfg.Records.AuditQueueWorkers)
	assert.Equal(t, 30*time.Second, cfg.Records.AuditQueueRetryDelay)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.VerificationTTL)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", "Postgres")
	v.Set("JWT_EXPIRATION", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg := fromViper(v)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestValidateSequenceDriver(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SEQUENCE_DRIVER", "memory")

	cfg := fromViper(v)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER=memory")

	v.Set("STORE_DRIVER", "memory")
	assert.NoError(t, fromViper(v).Validate())

	v.Set("SEQUENCE_DRIVER", "redis")
	v.Set("STORE_DRIVER", "postgres")
	assert.NoError(t, fromViper(v).Validate())
}
