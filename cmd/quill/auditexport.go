package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.

	goutils "github.com/jkaninda/go-utils"

	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/storage"
)

var (
	exportConfigPath string
	exportEntityType string
	exportSince      string
)

// auditExportCmd streams the audit trail as JSON lines on stdout. It reads
// through database/sql directly rather than the ORM so an export of millions
// of records runs at cursor speed with constant memory.
var auditExportCmd = &cobra.Command{
	Use:   "audit-export",
	Short: "Stream the audit trail as JSON lines (PostgreSQL only)",
	RunE:  runAuditExport,
}

func init() {
	auditExportCmd.Flags().StringVar(&exportConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	auditExportCmd.Flags().StringVar(&exportEntityType, "entity-type", "", "filter by entity type (organization, role, entry, ...)")
	auditExportCmd.Flags().StringVar(&exportSince, "since", "", "only records at or after this RFC 3339 timestamp")
}

type exportRecord struct {
	ID            string     `json:"id"`
	EntityID      string     `json:"entity_id"`
	EntityType    string     `json:"entity_type"`
	Action        string     `json:"action"`
	PrincipalID   *string    `json:"principal_id,omitempty"`
	PrincipalType string     `json:"principal_type,omitempty"`
	Anonymous     bool       `json:"anonymous,omitempty"`
	System        bool       `json:"system,omitempty"`
	Source        string     `json:"source,omitempty"`
	Message       string     `json:"message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func runAuditExport(_ *cobra.Command, _ []string) error {
	logger := buildLogger(config.LoggingConfig{Level: "warn"})

	cfg, err := loadConfig(goutils.Env("QUILL_CONFIG", exportConfigPath), logger)
	if err != nil {
		return err
	}
	settings := cfg.StorageSettings()
	if settings.ResolvedDriver() != storage.DriverPostgres {
		return fmt.Errorf("audit export requires the postgres storage driver")
	}

	var since time.Time
	if exportSince != "" {
		since, err = time.Parse(time.RFC3339, exportSince)
		if err != nil {
			return fmt.Errorf("--since must be RFC 3339: %w", err)
		}
	}

	db, err := sql.Open("pgx", settings.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	query := `SELECT id, entity_id, entity_type, action,
		ctx_principal_id, ctx_principal_type, ctx_anonymous, ctx_system,
		ctx_source, ctx_message, created_at
		FROM audit_records WHERE 1=1`
	args := []any{}
	if exportEntityType != "" {
		args = append(args, exportEntityType)
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if !since.IsZero() {
		args = append(args, since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	enc := json.NewEncoder(os.Stdout)
	count := 0
	for rows.Next() {
		var rec exportRecord
		var principalType, source, message sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.EntityID, &rec.EntityType, &rec.Action,
			&rec.PrincipalID, &principalType, &rec.Anonymous, &rec.System,
			&source, &message, &rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("scanning audit record: %w", err)
		}
		rec.PrincipalType = principalType.String
		rec.Source = source.String
		rec.Message = message.String
		if err := enc.Encode(rec); err != nil {
			return err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading audit records: %w", err)
	}

	fmt.Fprintf(os.Stderr, "exported %d audit records\n", count)
	return nil
}
