// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package athena runs SQL against Amazon Athena and loads the results into
// tables. Large results go through a temporary CTAS table written as parquet
// to S3; small results are paged through the query results API. Temporary
// tables and objects are always removed.
package athena

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/pkg/types"
)

// API is the subset of the Athena client used by Runner.
type API interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, in *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

// S3API is the subset of the S3 client used by Runner.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// QueryError reports a query that ended in a state other than SUCCEEDED.
type QueryError struct {
	ID     string
	State  athenatypes.QueryExecutionState
	Reason string
}

func (e *QueryError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("query %s %s", e.ID, e.State)
	}
	return fmt.Sprintf("query %s %s: %s", e.ID, e.State, e.Reason)
}

// ErrUnsupportedFormat is returned by CreateExternalTable for formats other
// than JSON, CSV and PARQUET.
var ErrUnsupportedFormat = errors.New("unsupported format, use JSON, CSV or PARQUET")

// Runner executes queries. It is safe for concurrent use.
type Runner struct {
	athena API
	s3     S3API
	cfg    types.AthenaConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRunner wraps existing clients. Zero config fields take defaults.
func NewRunner(a API, s S3API, cfg types.AthenaConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{athena: a, s3: s, cfg: cfg.Defaults(), logger: logger, now: time.Now}
}

// New builds a Runner with clients from the default AWS credential chain.
func New(ctx context.Context, cfg types.AthenaConfig, logger *zap.Logger) (*Runner, error) {
	cfg = cfg.Defaults()
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewRunner(athena.NewFromConfig(awsCfg), s3.NewFromConfig(awsCfg), cfg, logger), nil
}

// Config returns the effective configuration.
func (r *Runner) Config() types.AthenaConfig { return r.cfg }

// start submits a query and returns its execution id.
func (r *Runner) start(ctx context.Context, query, database, outputLocation string) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString:           aws.String(query),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{Database: aws.String(database)},
		ResultConfiguration:   &athenatypes.ResultConfiguration{OutputLocation: aws.String(outputLocation)},
	}
	if r.cfg.WorkGroup != "" {
		in.WorkGroup = aws.String(r.cfg.WorkGroup)
	}
	out, err := r.athena.StartQueryExecution(ctx, in)
	if err != nil {
		return "", fmt.Errorf("starting query: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

// WaitForQuery polls the execution every interval until it reaches a
// terminal state and returns the final execution. A non-success state is
// returned as a *QueryError together with the execution.
func (r *Runner) WaitForQuery(ctx context.Context, id string, interval time.Duration) (*athenatypes.QueryExecution, error) {
	if interval <= 0 {
		interval = r.cfg.DirectPollInterval
	}
	for {
		out, err := r.athena.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
		if err != nil {
			return nil, fmt.Errorf("getting query %s: %w", id, err)
		}
		qe := out.QueryExecution
		if qe != nil && qe.Status != nil {
			switch qe.Status.State {
			case athenatypes.QueryExecutionStateSucceeded:
				return qe, nil
			case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
				return qe, &QueryError{ID: id, State: qe.Status.State, Reason: aws.ToString(qe.Status.StateChangeReason)}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// execute submits a query, waits for it, and records metrics.
func (r *Runner) execute(ctx context.Context, mode, query, database, outputLocation string, interval time.Duration) (*athenatypes.QueryExecution, string, error) {
	start := time.Now()
	id, err := r.start(ctx, query, database, outputLocation)
	if err != nil {
		metrics.IncQuery(mode, "error")
		return nil, "", err
	}
	r.logger.Debug("query submitted", zap.String("mode", mode), zap.String("query_id", id))

	qe, err := r.WaitForQuery(ctx, id, interval)
	if err != nil && ctx.Err() != nil {
		r.stop(ctx, id, interval)
	}
	metrics.ObserveDuration(metrics.QueryDuration, start, mode)
	if qe != nil && qe.Statistics != nil {
		metrics.AddScanned(aws.ToInt64(qe.Statistics.DataScannedInBytes))
	}
	if err != nil {
		var qerr *QueryError
		if errors.As(err, &qerr) {
			metrics.IncQuery(mode, strings.ToLower(string(qerr.State)))
		} else {
			metrics.IncQuery(mode, "error")
		}
		return qe, id, err
	}
	metrics.IncQuery(mode, "succeeded")
	return qe, id, nil
}

// stopTimeout bounds the wait for a stopped query to settle.
const stopTimeout = 2 * time.Minute

// stop cancels a query its caller abandoned and waits until Athena reports a
// terminal state, so no write is still running when cleanup starts.
func (r *Runner) stop(ctx context.Context, id string, interval time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	log := r.logger.With(zap.String("query_id", id))

	if _, err := r.athena.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{QueryExecutionId: aws.String(id)}); err != nil {
		log.Warn("stopping query", zap.Error(err))
		return
	}
	qe, err := r.WaitForQuery(ctx, id, interval)
	var qerr *QueryError
	if err != nil && !errors.As(err, &qerr) {
		log.Warn("waiting for stopped query", zap.Error(err))
		return
	}
	log.Info("query stopped", zap.String("state", string(qe.Status.State)))
}

// scannedBytes returns the execution's DataScannedInBytes, or zero.
func scannedBytes(qe *athenatypes.QueryExecution) int64 {
	if qe == nil || qe.Statistics == nil {
		return 0
	}
	return aws.ToInt64(qe.Statistics.DataScannedInBytes)
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_]+`)

// tableSuffix turns a caller-supplied name into a safe identifier fragment.
func tableSuffix(name string) string {
	s := unsafeName.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}

func s3URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
