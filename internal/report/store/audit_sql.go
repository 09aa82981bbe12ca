package store

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/aussiebroadwan/printq/internal/report/domain"
)

// DefaultAuditTable is created by the bundled migrations. Other table names
// must already exist with the same columns.
const DefaultAuditTable = "PdfLog"

// AuditInsert builds the INSERT for rec. SQL drivers differ only in
// placeholder style.
func AuditInsert(table string, placeholders sq.PlaceholderFormat, rec domain.AuditRecord) (string, []any, error) {
	var errMsg any
	if rec.ErrorMsg != nil {
		errMsg = *rec.ErrorMsg
	}

	return sq.StatementBuilder.
		PlaceholderFormat(placeholders).
		Insert(table).
		Columns("id", "template", "payload_id", "duration_ms", "success", "error_msg", "created_at").
		Values(
			rec.RunID,
			rec.Template,
			rec.PayloadID,
			rec.Duration.Milliseconds(),
			rec.Success,
			errMsg,
			rec.CreatedAt.UTC(),
		).
		ToSql()
}
