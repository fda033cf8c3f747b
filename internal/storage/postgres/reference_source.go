package postgres

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// ReferenceSource loads candidate reference URLs from the facilities table.
// The result is a read-only snapshot taken at the start of a sweep.
type ReferenceSource struct {
	pool   querier
	table  string
	logger *zap.Logger
}

// NewReferenceSource constructs a ReferenceSource over an existing pool.
func NewReferenceSource(pool querier, table string, logger *zap.Logger) (*ReferenceSource, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "toll_facilities"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceSource{pool: pool, table: table, logger: logger}, nil
}

// References returns the distinct reference values that are well-formed
// absolute URLs (non-empty scheme and host). Malformed values are skipped,
// not errors.
func (s *ReferenceSource) References(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT reference FROM %s", s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query references: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref *string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		if ref == nil {
			continue
		}
		if !isAbsoluteURL(*ref) {
			s.logger.Debug("skipping malformed reference", zap.String("reference", *ref))
			continue
		}
		refs = append(refs, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return refs, nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
