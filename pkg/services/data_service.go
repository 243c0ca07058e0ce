package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/audit"
	"github.com/tabledeck/tabledeck-engine/pkg/crypto"
	"github.com/tabledeck/tabledeck-engine/pkg/metrics"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
)

// DataService executes the data operations against a user's connected
// backend. Every call runs the same pipeline: admission through the access
// guard, credential decryption, a transient adapter bounded by the operation
// timeout, and an audit entry whatever the outcome.
type DataService interface {
	ListTables(ctx context.Context, userID string, p models.Provider) ([]provider.TableInfo, error)
	GetSchema(ctx context.Context, userID string, p models.Provider, table string) ([]provider.Column, error)
	QueryRows(ctx context.Context, userID string, p models.Provider, table string, query provider.RowQuery) (*provider.RowPage, error)
	InsertRow(ctx context.Context, userID string, p models.Provider, table string, values map[string]any) (map[string]any, error)
	UpdateRow(ctx context.Context, userID string, p models.Provider, table string, id any, values map[string]any) error
	DeleteRow(ctx context.Context, userID string, p models.Provider, table string, id any) error
	RunRawQuery(ctx context.Context, userID string, p models.Provider, query string) (*provider.RawResult, error)
	CreateTable(ctx context.Context, userID string, p models.Provider, table string, columns []provider.ColumnSpec) (string, error)
}

type dataService struct {
	guard   *AccessGuard
	cipher  *crypto.CredentialCipher
	factory provider.Factory
	trail   *audit.Trail
	timeout time.Duration
	logger  *zap.Logger
}

// NewDataService wires the service. timeout bounds each remote operation.
func NewDataService(
	guard *AccessGuard,
	cipher *crypto.CredentialCipher,
	factory provider.Factory,
	trail *audit.Trail,
	timeout time.Duration,
	logger *zap.Logger,
) DataService {
	return &dataService{
		guard:   guard,
		cipher:  cipher,
		factory: factory,
		trail:   trail,
		timeout: timeout,
		logger:  logger.Named("data"),
	}
}

// run is the shared operation pipeline. fn receives a live adapter and
// returns the row count for the audit metadata.
func (s *dataService) run(ctx context.Context, userID string, p models.Provider, action, table string, fn func(ctx context.Context, a provider.Adapter) (int, error)) error {
	start := time.Now()
	rows, err := s.execute(ctx, userID, p, fn)
	s.observe(userID, p, action, table, rows, time.Since(start), err)
	return err
}

func (s *dataService) execute(ctx context.Context, userID string, p models.Provider, fn func(ctx context.Context, a provider.Adapter) (int, error)) (int, error) {
	integration, err := s.guard.Admit(ctx, userID, p)
	if err != nil {
		return 0, err
	}
	config, err := s.decryptConfig(integration.Config)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	adapter, err := s.factory.NewAdapter(ctx, p, config)
	if err != nil {
		return 0, err
	}
	defer adapter.Close()

	return fn(ctx, adapter)
}

func (s *dataService) decryptConfig(encrypted map[string]string) (map[string]string, error) {
	config := make(map[string]string, len(encrypted))
	for key, value := range encrypted {
		pt, err := s.cipher.Decrypt(value)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential field %q: %w", key, err)
		}
		config[key] = pt
	}
	return config, nil
}

func (s *dataService) observe(userID string, p models.Provider, action, table string, rows int, elapsed time.Duration, opErr error) {
	status := models.AuditStatusSuccess
	if opErr != nil {
		status = models.AuditStatusError
	}
	metrics.ObserveOperation(string(p), action, status, elapsed)

	entry := &models.AuditLogEntry{
		UserID:    userID,
		Provider:  p,
		Action:    action,
		TableName: table,
		Status:    status,
		Metadata: map[string]any{
			"duration_ms": elapsed.Milliseconds(),
			"rows":        rows,
		},
	}
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}
	s.trail.Record(entry)
}

func (s *dataService) ListTables(ctx context.Context, userID string, p models.Provider) ([]provider.TableInfo, error) {
	var tables []provider.TableInfo
	err := s.run(ctx, userID, p, models.AuditActionQuery, "", func(ctx context.Context, a provider.Adapter) (int, error) {
		var err error
		tables, err = a.ListTables(ctx)
		return len(tables), err
	})
	return tables, err
}

func (s *dataService) GetSchema(ctx context.Context, userID string, p models.Provider, table string) ([]provider.Column, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: table name is required", apperrors.ErrInvalidRequest)
	}
	var columns []provider.Column
	err := s.run(ctx, userID, p, models.AuditActionQuery, table, func(ctx context.Context, a provider.Adapter) (int, error) {
		var err error
		columns, err = a.GetSchema(ctx, table)
		return len(columns), err
	})
	return columns, err
}

func (s *dataService) QueryRows(ctx context.Context, userID string, p models.Provider, table string, query provider.RowQuery) (*provider.RowPage, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: table name is required", apperrors.ErrInvalidRequest)
	}
	var page *provider.RowPage
	err := s.run(ctx, userID, p, models.AuditActionQuery, table, func(ctx context.Context, a provider.Adapter) (int, error) {
		var err error
		page, err = a.QueryRows(ctx, table, query)
		if page != nil {
			return len(page.Rows), err
		}
		return 0, err
	})
	return page, err
}

func (s *dataService) InsertRow(ctx context.Context, userID string, p models.Provider, table string, values map[string]any) (map[string]any, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: table name is required", apperrors.ErrInvalidRequest)
	}
	var row map[string]any
	err := s.run(ctx, userID, p, models.AuditActionInsert, table, func(ctx context.Context, a provider.Adapter) (int, error) {
		var err error
		row, err = a.InsertRow(ctx, table, values)
		if err != nil {
			return 0, err
		}
		return 1, nil
	})
	return row, err
}

func (s *dataService) UpdateRow(ctx context.Context, userID string, p models.Provider, table string, id any, values map[string]any) error {
	if table == "" {
		return fmt.Errorf("%w: table name is required", apperrors.ErrInvalidRequest)
	}
	if isMissingID(id) {
		return fmt.Errorf("%w: row id is required", apperrors.ErrInvalidRequest)
	}
	return s.run(ctx, userID, p, models.AuditActionUpdate, table, func(ctx context.Context, a provider.Adapter) (int, error) {
		if err := a.UpdateRow(ctx, table, id, values); err != nil {
			return 0, err
		}
		return 1, nil
	})
}

func (s *dataService) DeleteRow(ctx context.Context, userID string, p models.Provider, table string, id any) error {
	if table == "" {
		return fmt.Errorf("%w: table name is required", apperrors.ErrInvalidRequest)
	}
	if isMissingID(id) {
		return fmt.Errorf("%w: row id is required", apperrors.ErrInvalidRequest)
	}
	return s.run(ctx, userID, p, models.AuditActionDelete, table, func(ctx context.Context, a provider.Adapter) (int, error) {
		if err := a.DeleteRow(ctx, table, id); err != nil {
			return 0, err
		}
		return 1, nil
	})
}

func (s *dataService) RunRawQuery(ctx context.Context, userID string, p models.Provider, query string) (*provider.RawResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", apperrors.ErrInvalidRequest)
	}
	var result *provider.RawResult
	err := s.run(ctx, userID, p, models.AuditActionQuery, "", func(ctx context.Context, a provider.Adapter) (int, error) {
		var err error
		result, err = a.RunRawQuery(ctx, query)
		if result != nil {
			return result.RowCount, err
		}
		return 0, err
	})
	return result, err
}

func (s *dataService) CreateTable(ctx context.Context, userID string, p models.Provider, table string, columns []provider.ColumnSpec) (string, error) {
	if table == "" {
		return "", fmt.Errorf("%w: table name is required", apperrors.ErrInvalidRequest)
	}
	var ddl string
	err := s.run(ctx, userID, p, models.AuditActionCreateTable, table, func(ctx context.Context, a provider.Adapter) (int, error) {
		var err error
		ddl, err = a.CreateTable(ctx, table, columns)
		return 0, err
	})
	return ddl, err
}

// isMissingID treats nil and empty string as absent. Numeric zero stays
// valid: it is a legal key in auto-increment tables.
func isMissingID(id any) bool {
	if id == nil {
		return true
	}
	if s, ok := id.(string); ok && s == "" {
		return true
	}
	return false
}
