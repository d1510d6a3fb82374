package errors

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const msgStoreUnavailable = "Job store unavailable."

// keyColumn pulls the column out of "Key (id)=(...) already exists.".
var keyColumn = regexp.MustCompile(`Key \(([^)]+)\)=`)

type pgMapping struct {
	code    ErrorCode
	message string
}

var pgMappings = map[string]pgMapping{
	pgerrcode.UniqueViolation:      {ErrCodeConflict, "This value already exists."},
	pgerrcode.CheckViolation:       {ErrCodeValidation, "Invalid data. Please check your input."},
	pgerrcode.NotNullViolation:     {ErrCodeValidation, "This field is required."},
	pgerrcode.AdminShutdown:        {ErrCodeUnavailable, msgStoreUnavailable},
	pgerrcode.CannotConnectNow:     {ErrCodeUnavailable, msgStoreUnavailable},
	pgerrcode.TooManyConnections:   {ErrCodeUnavailable, msgStoreUnavailable},
	pgerrcode.QueryCanceled:        {ErrCodeTimeout, "Job store query timed out."},
	pgerrcode.SerializationFailure: {ErrCodeConflict, "Concurrent update, please retry."},
}

// MapDBError converts errors from the Postgres job store into AppErrors.
// Context errors become timeout or canceled, missing rows become not_found
// and connection failures become unavailable. Postgres errors map by
// SQLSTATE with unknown states reported as internal. Anything else is
// returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Job ID not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromPgError(pgErr)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return Wrap(err, ErrCodeUnavailable, msgStoreUnavailable)
	}
	return err
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func fromPgError(pgErr *pgconn.PgError) *AppError {
	m, ok := pgMappings[pgErr.Code]
	if !ok {
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
	appErr := Wrap(pgErr, m.code, m.message)
	appErr.Field = pgErr.ColumnName
	if appErr.Field == "" && pgErr.Code == pgerrcode.UniqueViolation {
		if sub := keyColumn.FindStringSubmatch(pgErr.Detail); len(sub) == 2 {
			appErr.Field = sub[1]
		}
	}
	return appErr
}
