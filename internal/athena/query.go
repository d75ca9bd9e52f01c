// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package athena

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/table"
)

// deleteBatchSize is the DeleteObjects key limit.
const deleteBatchSize = 1000

// Run executes query through a temporary CTAS table stored as parquet and
// returns its rows. The temporary table and its objects are removed before
// Run returns, whatever the outcome. A query that yields no rows returns an
// empty table.
func (r *Runner) Run(ctx context.Context, query, name string) (*table.Table, error) {
	stamp := r.now().Unix()
	suffix := tableSuffix(name)
	tmpTable := fmt.Sprintf("tmp_table_%s_%d", suffix, stamp)
	prefix := fmt.Sprintf("%s%s_%d/", r.cfg.TempPrefix, suffix, stamp)

	ctas := fmt.Sprintf(
		"CREATE TABLE %s WITH (format='PARQUET', external_location='%s', write_compression='SNAPPY') AS %s",
		tmpTable, s3URI(r.cfg.ResultsBucket, prefix), query)

	log := r.logger.With(zap.String("table", tmpTable), zap.String("prefix", prefix))
	defer r.cleanup(ctx, log, tmpTable, prefix)

	log.Info("running CTAS query")
	qe, _, err := r.execute(ctx, "ctas", ctas, r.cfg.Database, s3URI(r.cfg.ResultsBucket, ""), r.cfg.CTASPollInterval)
	if err != nil {
		return nil, err
	}

	t, err := r.readParquetPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	log.Info("CTAS query complete",
		zap.Int("rows", t.Len()),
		zap.Int64("scanned_bytes", scannedBytes(qe)))
	return t, nil
}

// cleanup removes the objects under prefix and drops the temporary table.
// Failures are logged and never returned. It uses a context detached from
// cancellation so an aborted query still cleans up.
func (r *Runner) cleanup(ctx context.Context, log *zap.Logger, tmpTable, prefix string) {
	ctx = context.WithoutCancel(ctx)

	n, err := r.deletePrefix(ctx, prefix)
	if err != nil {
		log.Warn("deleting temporary objects", zap.Error(err))
	} else {
		log.Debug("temporary objects deleted", zap.Int("objects", n))
	}

	drop := "DROP TABLE IF EXISTS " + tmpTable
	if _, _, err := r.execute(ctx, "ddl", drop, r.cfg.Database, s3URI(r.cfg.ResultsBucket, ""), r.cfg.DirectPollInterval); err != nil {
		log.Warn("dropping temporary table", zap.Error(err))
	}
}

// deletePrefix deletes every object under prefix and returns the count.
func (r *Runner) deletePrefix(ctx context.Context, prefix string) (int, error) {
	listed, err := r.listObjects(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for start := 0; start < len(listed); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(listed))
		objs := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, o := range listed[start:end] {
			objs = append(objs, s3types.ObjectIdentifier{Key: o.Key})
		}
		out, err := r.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(r.cfg.ResultsBucket),
			Delete: &s3types.Delete{Objects: objs, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("deleting objects under %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return deleted, fmt.Errorf("deleting %s: %s %s (%d failures)",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message), len(out.Errors))
		}
		deleted += len(objs)
	}
	return deleted, nil
}

// listObjects returns every object under prefix.
func (r *Runner) listObjects(ctx context.Context, prefix string) ([]s3types.Object, error) {
	var objs []s3types.Object
	p := s3.NewListObjectsV2Paginator(r.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.cfg.ResultsBucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		objs = append(objs, page.Contents...)
	}
	return objs, nil
}

// RunDirect executes query and pages through its results. The first result
// row holds the column names; column kinds come from the result metadata.
func (r *Runner) RunDirect(ctx context.Context, query string) (*table.Table, error) {
	_, id, err := r.execute(ctx, "direct", query, r.cfg.Database,
		s3URI(r.cfg.ResultsBucket, r.cfg.DirectPrefix), r.cfg.DirectPollInterval)
	if err != nil {
		return nil, err
	}
	return r.results(ctx, id)
}

// RunAuto executes query directly and checks how much data it scanned. Below
// AutoThresholdBytes the direct results are returned; otherwise the query is
// rerun through the CTAS path, which reads large results faster.
func (r *Runner) RunAuto(ctx context.Context, query, name string) (*table.Table, error) {
	qe, id, err := r.execute(ctx, "auto", query, r.cfg.Database,
		s3URI(r.cfg.ResultsBucket, r.cfg.DirectPrefix), r.cfg.DirectPollInterval)
	if err != nil {
		return nil, err
	}
	scanned := scannedBytes(qe)
	if scanned < r.cfg.AutoThresholdBytes {
		r.logger.Info("auto mode chose direct results",
			zap.Int64("scanned_bytes", scanned), zap.Int64("threshold_bytes", r.cfg.AutoThresholdBytes))
		return r.results(ctx, id)
	}
	r.logger.Info("auto mode chose CTAS",
		zap.Int64("scanned_bytes", scanned), zap.Int64("threshold_bytes", r.cfg.AutoThresholdBytes))
	return r.Run(ctx, query, name)
}

// results reads all result pages of a finished query.
func (r *Runner) results(ctx context.Context, id string) (*table.Table, error) {
	p := athena.NewGetQueryResultsPaginator(r.athena, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(id),
	})

	var (
		t      *table.Table
		kinds  []table.Kind
		header = true
	)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading results of %s: %w", id, err)
		}
		rs := page.ResultSet
		if rs == nil {
			continue
		}
		if t == nil && rs.ResultSetMetadata != nil {
			cols := make([]table.Column, len(rs.ResultSetMetadata.ColumnInfo))
			kinds = make([]table.Kind, len(cols))
			for i, ci := range rs.ResultSetMetadata.ColumnInfo {
				kinds[i] = table.KindFromAthena(aws.ToString(ci.Type))
				cols[i] = table.Column{Name: aws.ToString(ci.Name), Type: kinds[i]}
			}
			t = table.New(cols...)
		}
		for _, row := range rs.Rows {
			if header {
				header = false
				continue
			}
			if t == nil {
				return nil, errors.New("result rows without metadata")
			}
			vals := make([]any, len(kinds))
			for i := range vals {
				if i < len(row.Data) {
					vals[i] = table.ParseAthenaValue(kinds[i], row.Data[i].VarCharValue)
				}
			}
			if err := t.AddRow(vals...); err != nil {
				return nil, err
			}
		}
	}
	if t == nil {
		t = table.New()
	}
	return t, nil
}

// quoteIdent backquotes an identifier for Athena DDL.
func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
