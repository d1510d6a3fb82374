// Package errors turns errors into short, low-cardinality class names for metric tags and alerts.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/rohittupe/prediction-service/internal/domain/model"
	apperrors "github.com/rohittupe/prediction-service/internal/errors"
)

const classUnknown = "unknown"

// sentinels are checked in order; the first match wins.
var sentinels = []struct {
	target error
	class  string
}{
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
	{model.ErrJobNotFound, "job_not_found"},
	{model.ErrJobAlreadyTerminal, "job_terminal"},
	{model.ErrInvalidJobState, "job_corrupt"},
	{redis.Nil, "redis_nil"},
}

// Classify names the kind of err. Application errors report their code.
// Postgres errors report their SQLSTATE class and network failures report "network".
// Anything else falls back to the innermost concrete type, e.g. "errors_errorstring".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	for _, s := range sentinels {
		if goerrors.Is(err, s.target) {
			return s.class
		}
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		return "postgres_" + strings.ToLower(pgErr.Code[:2])
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		return "network"
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return classUnknown
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
