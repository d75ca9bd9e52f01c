// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package athena

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/table"
)

// ExportJSON writes t as JSON lines to
// s3://ExportBucket/ExportPrefix/<name>.json and returns the URI.
func (r *Runner) ExportJSON(ctx context.Context, t *table.Table, name string) (string, error) {
	var buf bytes.Buffer
	if err := t.WriteJSONLines(&buf); err != nil {
		return "", fmt.Errorf("encoding %s: %w", name, err)
	}
	key := path.Join(r.cfg.ExportPrefix, name+".json")
	uri := s3URI(r.cfg.ExportBucket, key)
	_, err := r.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.cfg.ExportBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		r.logger.Error("export failed", zap.String("uri", uri), zap.Error(err))
		return "", fmt.Errorf("uploading %s: %w", uri, err)
	}
	r.logger.Info("table exported", zap.String("uri", uri), zap.Int("rows", t.Len()))
	return uri, nil
}

// ExternalTable describes a table over existing S3 data.
type ExternalTable struct {
	Name     string            `json:"name" yaml:"name"`
	Location string            `json:"location" yaml:"location"`
	Columns  []table.ColumnDef `json:"columns" yaml:"columns"`
	// Database defaults to the runner's database.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	// Format is JSON, CSV or PARQUET (default JSON).
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// storage clauses per format.
var storageClauses = map[string]string{
	"JSON":    "ROW FORMAT SERDE 'org.openx.data.jsonserde.JsonSerDe'\nSTORED AS TEXTFILE",
	"CSV":     "ROW FORMAT SERDE 'org.apache.hadoop.hive.serde2.OpenCSVSerde'\nWITH SERDEPROPERTIES ('separatorChar' = ',')\nSTORED AS TEXTFILE",
	"PARQUET": "STORED AS PARQUET",
}

// DDL renders the CREATE EXTERNAL TABLE statement.
func (e ExternalTable) DDL(defaultDB string) (string, error) {
	format := strings.ToUpper(strings.TrimSpace(e.Format))
	if format == "" {
		format = "JSON"
	}
	storage, ok := storageClauses[format]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, e.Format)
	}
	if e.Name == "" || e.Location == "" {
		return "", fmt.Errorf("external table needs a name and a location")
	}
	if len(e.Columns) == 0 {
		return "", fmt.Errorf("external table %s has no columns", e.Name)
	}
	db := e.Database
	if db == "" {
		db = defaultDB
	}

	cols := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		cols[i] = "  " + quoteIdent(c.Name) + " " + c.Type
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE EXTERNAL TABLE IF NOT EXISTS %s.%s (\n", db, e.Name)
	b.WriteString(strings.Join(cols, ",\n"))
	b.WriteString("\n)\n")
	b.WriteString(storage)
	fmt.Fprintf(&b, "\nLOCATION '%s'\nTBLPROPERTIES ('has_encrypted_data'='false')", e.Location)
	return b.String(), nil
}

// CreateExternalTable creates an external table over S3 data. Unsupported
// formats fail with ErrUnsupportedFormat before any call is made.
func (r *Runner) CreateExternalTable(ctx context.Context, e ExternalTable) error {
	ddl, err := r.DDL(e)
	if err != nil {
		return err
	}
	if _, _, err := r.execute(ctx, "ddl", ddl, r.databaseFor(e), s3URI(r.cfg.ResultsBucket, ""), r.cfg.CTASPollInterval); err != nil {
		return fmt.Errorf("creating table %s: %w", e.Name, err)
	}
	r.logger.Info("external table created", zap.String("table", r.databaseFor(e)+"."+e.Name), zap.String("location", e.Location))
	return nil
}

// DDL renders the statement CreateExternalTable would run.
func (r *Runner) DDL(e ExternalTable) (string, error) {
	return e.DDL(r.cfg.Database)
}

func (r *Runner) databaseFor(e ExternalTable) string {
	if e.Database != "" {
		return e.Database
	}
	return r.cfg.Database
}
