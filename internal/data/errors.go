package data

import "errors"

// Shared sentinel errors for the data layer. Job lookups use model.ErrJobNotFound.
var (
	ErrJobIDRequired      = errors.New("job id is required")
	ErrRetentionRequired  = errors.New("retention policy provider is required")
	ErrRedisClientMissing = errors.New("redis client is required")
	ErrDBMissing          = errors.New("database handle is required")
)
