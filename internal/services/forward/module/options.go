package module

import (
	"time"

	"amplisend/internal/adapters/amplitude"
	"amplisend/internal/adapters/blob/s3store"
	"amplisend/internal/core/decompress"
	"amplisend/internal/platform/config"
	perr "amplisend/internal/platform/errors"
	"amplisend/internal/services/forward/domain"
	"amplisend/internal/services/forward/service"
)

// Options holds the forwarding configuration
type Options struct {
	APIKey              string
	HMACKey             string
	Endpoint            string
	BatchSize           int
	MaxBatchesPerSecond int
	HTTPTimeout         time.Duration
	OnInvalid           domain.OnInvalid
	Mozlog              bool
	Identify            bool
	CoerceSessionID     bool
	ChunkBytes          int
	S3                  s3store.Options
}

// FromConfig reads the FXA_AMPLITUDE_* secrets and the AMPLISEND_ tuning keys.
// A missing secret or an unknown AMPLISEND_ON_INVALID is a configuration error.
func FromConfig(cfg config.Conf) (Options, error) {
	apiKey, err := cfg.Secret("FXA_AMPLITUDE_API_KEY")
	if err != nil {
		return Options{}, err
	}
	hmacKey, err := cfg.Secret("FXA_AMPLITUDE_HMAC_KEY")
	if err != nil {
		return Options{}, err
	}

	c := cfg.Prefix("AMPLISEND_")
	policy, err := service.ParseOnInvalid(c.MayString("ON_INVALID", string(domain.OnInvalidSkip)))
	if err != nil {
		return Options{}, perr.WithField(perr.Wrap(err, perr.ErrorCodeConfiguration, err.Error()), "AMPLISEND_ON_INVALID")
	}

	return Options{
		APIKey:              apiKey,
		HMACKey:             hmacKey,
		Endpoint:            c.MayURL("ENDPOINT", amplitude.DefaultEndpoint),
		BatchSize:           c.MayInt("BATCH_SIZE", 10),
		MaxBatchesPerSecond: c.MayInt("MAX_BATCHES_PER_SECOND", 100),
		HTTPTimeout:         c.MayDuration("HTTP_TIMEOUT", 5*time.Second),
		OnInvalid:           policy,
		Mozlog:              c.MayBool("MOZLOG", false),
		Identify:            c.MayBool("IDENTIFY", false),
		CoerceSessionID:     c.MayBool("COERCE_SESSION_ID", false),
		ChunkBytes:          c.MayInt("CHUNK_BYTES", decompress.DefaultChunkSize),
		S3: s3store.Options{
			DefaultRegion: c.MayString("S3_DEFAULT_REGION", "us-east-1"),
			Endpoint:      c.MayString("S3_ENDPOINT", ""),
			UsePathStyle:  c.MayBool("S3_PATH_STYLE", false),
		},
	}, nil
}
