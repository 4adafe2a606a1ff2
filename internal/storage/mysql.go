package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"match-engine-go/internal/config"
	"match-engine-go/internal/storage/models"
	"match-engine-go/internal/tracing"
)

var mysqlTracer = otel.Tracer("match-engine-go/storage/mysql")

type spanContextKey struct{}

// GormTracingPlugin adds OpenTelemetry spans around GORM operations.
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	disableErrSkip bool
}

// NewGormTracingPlugin builds the plugin for a named database.
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		disableErrSkip: true,
	}
}

func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize registers before/after callbacks for every GORM operation type.
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after())
}

func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}
		if sql := db.Statement.SQL.String(); sql != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", tracing.TruncateString(sql, tracing.MaxSQLLength))))
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName), opts...)
		db.Statement.Context = context.WithValue(newCtx, spanContextKey{}, span)
	}
}

func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanContextKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				// Not-found is a normal business outcome, not a failure.
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

// MySQL provides the relational store for jobs, candidates, CV documents and
// evaluation results.
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL opens the database, configures the pool, registers tracing and
// migrates the schema.
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config must not be nil")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	default:
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("register tracing plugin: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg}
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}
	return m, nil
}

func (m *MySQL) autoMigrateSchema() error {
	// Migration is chatty at Info level; run it against a silent session.
	silentLogger := gormlogger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	return silentDB.AutoMigrate(
		&models.Candidate{},
		&models.Job{},
		&models.CVDocument{},
		&models.EvaluationRecord{},
		&models.EvaluationBatch{},
	)
}

// DB exposes the GORM handle for callers that need transactions.
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQL) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// GetJobByID fetches one job or gorm.ErrRecordNotFound.
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// SaveJob inserts or updates a job by primary key.
func (m *MySQL) SaveJob(ctx context.Context, job *models.Job) error {
	return m.db.WithContext(ctx).Save(job).Error
}

// CreateCVDocument inserts a new CV document row.
func (m *MySQL) CreateCVDocument(ctx context.Context, doc *models.CVDocument) error {
	return m.db.WithContext(ctx).Create(doc).Error
}

// GetCVDocumentByID fetches one CV document or gorm.ErrRecordNotFound.
func (m *MySQL) GetCVDocumentByID(ctx context.Context, cvID string) (*models.CVDocument, error) {
	var doc models.CVDocument
	if err := m.db.WithContext(ctx).Where("cv_id = ?", cvID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateCVProcessingStatus moves a CV document through its parse lifecycle.
func (m *MySQL) UpdateCVProcessingStatus(ctx context.Context, cvID string, status string) error {
	return m.db.WithContext(ctx).Model(&models.CVDocument{}).
		Where("cv_id = ?", cvID).Update("processing_status", status).Error
}

// UpdateCVDocumentFields applies a partial update to a CV document.
func (m *MySQL) UpdateCVDocumentFields(ctx context.Context, cvID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Model(&models.CVDocument{}).
		Where("cv_id = ?", cvID).Updates(updates).Error
}

// ListLatestParsedCVsForCandidates returns, per candidate ID, that
// candidate's most recently uploaded CV in PARSED state.
func (m *MySQL) ListLatestParsedCVsForCandidates(ctx context.Context, candidateIDs []string, parsedStatus string) ([]models.CVDocument, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	var docs []models.CVDocument
	sub := m.db.Model(&models.CVDocument{}).
		Select("candidate_id, MAX(uploaded_at) AS max_uploaded_at").
		Where("candidate_id IN ? AND processing_status = ?", candidateIDs, parsedStatus).
		Group("candidate_id")
	err := m.db.WithContext(ctx).
		Joins("JOIN (?) latest ON cv_documents.candidate_id = latest.candidate_id AND cv_documents.uploaded_at = latest.max_uploaded_at", sub).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// ListAllParsedCVs returns every CV document in PARSED state, one row per
// document. Used when an evaluation request names no explicit candidates.
func (m *MySQL) ListAllParsedCVs(ctx context.Context, parsedStatus string) ([]models.CVDocument, error) {
	var docs []models.CVDocument
	err := m.db.WithContext(ctx).
		Where("processing_status = ? AND candidate_id IS NOT NULL", parsedStatus).
		Order("uploaded_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// GetEvaluationRecord fetches the cached record for a (job, cv) pair, or
// gorm.ErrRecordNotFound.
func (m *MySQL) GetEvaluationRecord(ctx context.Context, jobID, cvID string) (*models.EvaluationRecord, error) {
	var rec models.EvaluationRecord
	if err := m.db.WithContext(ctx).
		Where("job_id = ? AND cv_id = ?", jobID, cvID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertEvaluationRecord writes the scoring outcome for a (job, cv) pair.
// On conflict with an existing pair the row is overwritten, which is how a
// forced re-evaluation replaces a stale or failed result.
func (m *MySQL) UpsertEvaluationRecord(ctx context.Context, rec *models.EvaluationRecord) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpsertEvaluationRecord",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.sql.table", "evaluation_records"),
		attribute.String("evaluation.job_id", rec.JobID),
		attribute.String("evaluation.cv_id", rec.CVID),
		attribute.String("evaluation.status", rec.Status),
	)

	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}, {Name: "cv_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"candidate_id", "features_json", "score", "confidence",
			"model_version", "status", "failure_kind", "evaluated_at",
		}),
	}).Create(rec).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// CreateEvaluationBatch persists one completed evaluation run.
func (m *MySQL) CreateEvaluationBatch(ctx context.Context, batch *models.EvaluationBatch) error {
	return m.db.WithContext(ctx).Create(batch).Error
}

// GetLatestEvaluationBatch returns the most recent run for a job, or
// gorm.ErrRecordNotFound when the job has never been evaluated.
func (m *MySQL) GetLatestEvaluationBatch(ctx context.Context, jobID string) (*models.EvaluationBatch, error) {
	var batch models.EvaluationBatch
	if err := m.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("evaluated_at DESC").
		First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListEvaluationBatches returns a job's runs newest first, capped at limit.
func (m *MySQL) ListEvaluationBatches(ctx context.Context, jobID string, limit int) ([]models.EvaluationBatch, error) {
	if limit <= 0 {
		limit = 20
	}
	var batches []models.EvaluationBatch
	err := m.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("evaluated_at DESC").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// FindOrCreateCandidate looks a candidate up by email or phone and creates a
// new record when neither matches. At least one identifier is required.
func (m *MySQL) FindOrCreateCandidate(ctx context.Context, name, email, phone string) (*models.Candidate, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.FindOrCreateCandidate", trace.WithAttributes(
		attribute.String("candidate.email", tracing.SafeAttributeValue("email", email, tracing.MaxValueLength)),
		attribute.String("candidate.phone", tracing.SafeAttributeValue("phone", phone, tracing.MaxValueLength)),
	))
	defer span.End()

	if email == "" && phone == "" {
		err := fmt.Errorf("candidate needs at least an email or a phone number")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	query := m.db.WithContext(ctx).Model(&models.Candidate{})
	switch {
	case email != "" && phone != "":
		query = query.Where("primary_email = ?", email).Or("primary_phone = ?", phone)
	case email != "":
		query = query.Where("primary_email = ?", email)
	default:
		query = query.Where("primary_phone = ?", phone)
	}

	var candidate models.Candidate
	err := query.First(&candidate).Error
	if err == nil {
		span.SetAttributes(attribute.Bool("candidate.found", true),
			attribute.String("candidate.id", candidate.CandidateID))
		return &candidate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query candidate")
		return nil, fmt.Errorf("query candidate: %w", err)
	}

	span.SetAttributes(attribute.Bool("candidate.found", false))

	newUUID, err := uuid.NewV7()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate UUIDv7")
		return nil, fmt.Errorf("generate candidate id: %w", err)
	}

	newCandidate := &models.Candidate{
		CandidateID:  newUUID.String(),
		PrimaryName:  name,
		PrimaryEmail: email,
		PrimaryPhone: phone,
	}
	if err := m.db.WithContext(ctx).Create(newCandidate).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create candidate")
		return nil, fmt.Errorf("create candidate: %w", err)
	}

	span.SetAttributes(attribute.String("candidate.id", newCandidate.CandidateID))
	return newCandidate, nil
}
