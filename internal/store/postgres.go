package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/labexam-cli/internal/db"
	"github.com/sells-group/labexam-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgInsertLog = `INSERT INTO extraction_logs (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	pgInsertCorrection = `INSERT INTO exam_corrections (` + correctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	pgGetCorrection = `SELECT ` + correctionColumns + ` FROM exam_corrections WHERE id = $1`
	pgGetTemplate   = `SELECT ` + templateColumns + ` FROM laboratory_templates WHERE name = $1`
)

// preparedStatements lists queries to prepare on each new connection. Batch
// runs write one extraction log per document, so that insert dominates.
var preparedStatements = map[string]string{
	"insert_extraction_log": pgInsertLog,
	"insert_correction":     pgInsertCorrection,
	"get_correction":        pgGetCorrection,
	"get_template":          pgGetTemplate,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying pool for bulk loaders.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS laboratory_templates (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                    TEXT NOT NULL UNIQUE,
	full_name               TEXT NOT NULL DEFAULT '',
	city                    TEXT NOT NULL DEFAULT '',
	state                   TEXT NOT NULL DEFAULT '',
	identification_patterns JSONB NOT NULL,
	anchor_sufficient       BOOLEAN NOT NULL DEFAULT false,
	field_mappings          JSONB NOT NULL DEFAULT '[]',
	date_format             TEXT NOT NULL DEFAULT 'DD/MM/YYYY',
	decimal_separator       TEXT NOT NULL DEFAULT ',',
	has_evolutive_report    BOOLEAN NOT NULL DEFAULT false,
	priority                INTEGER NOT NULL DEFAULT 0,
	is_active               BOOLEAN NOT NULL DEFAULT true,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS exam_synonyms (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	standard_name TEXT NOT NULL,
	synonym       TEXT NOT NULL,
	synonym_key   TEXT NOT NULL,
	laboratory    TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT 'SYSTEM',
	is_active     BOOLEAN NOT NULL DEFAULT true,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (synonym_key, laboratory)
);

CREATE TABLE IF NOT EXISTS custom_reference_values (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	exam_name  TEXT NOT NULL,
	laboratory TEXT NOT NULL DEFAULT '',
	min_value  DOUBLE PRECISION,
	max_value  DOUBLE PRECISION,
	unit       TEXT NOT NULL DEFAULT '',
	gender     TEXT NOT NULL DEFAULT 'BOTH',
	age_min    INTEGER,
	age_max    INTEGER,
	priority   INTEGER NOT NULL DEFAULT 0,
	is_active  BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS standard_exams (
	name       TEXT PRIMARY KEY,
	category   TEXT NOT NULL DEFAULT '',
	unit       TEXT NOT NULL DEFAULT '',
	ranges     JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_logs (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	batch_id           TEXT NOT NULL DEFAULT '',
	pdf_hash           TEXT NOT NULL,
	pdf_file_name      TEXT NOT NULL,
	success            BOOLEAN NOT NULL,
	document_type      TEXT NOT NULL,
	laboratory         TEXT NOT NULL DEFAULT '',
	exams_extracted    INTEGER NOT NULL DEFAULT 0,
	exams_altered      INTEGER NOT NULL DEFAULT 0,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	extraction_method  TEXT NOT NULL DEFAULT '',
	error_message      TEXT NOT NULL DEFAULT '',
	error_stack        TEXT NOT NULL DEFAULT '',
	patient_name       TEXT NOT NULL DEFAULT '',
	exam_date          TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS exam_corrections (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	pdf_hash        TEXT NOT NULL,
	pdf_file_name   TEXT NOT NULL DEFAULT '',
	laboratory      TEXT NOT NULL DEFAULT '',
	field_name      TEXT NOT NULL,
	original_value  TEXT NOT NULL DEFAULT '',
	corrected_value TEXT NOT NULL,
	correction_type TEXT NOT NULL,
	context         TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	applied_to_code BOOLEAN NOT NULL DEFAULT false,
	applied_at      TIMESTAMPTZ,
	applied_by      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ml_few_shot_examples (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input_text       TEXT NOT NULL,
	expected_output  JSONB NOT NULL,
	laboratory       TEXT NOT NULL DEFAULT '',
	exam_type        TEXT NOT NULL DEFAULT '',
	quality          TEXT NOT NULL,
	used_in_training BOOLEAN NOT NULL DEFAULT false,
	correction_id    TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extraction_logs_created_at ON extraction_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_extraction_logs_laboratory ON extraction_logs(laboratory);
CREATE INDEX IF NOT EXISTS idx_exam_corrections_pending ON exam_corrections(applied_to_code, created_at);
CREATE INDEX IF NOT EXISTS idx_ml_few_shot_examples_lab ON ml_few_shot_examples(laboratory, quality);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- laboratory templates ---

func (s *PostgresStore) ListTemplates(ctx context.Context, activeOnly bool) ([]model.LaboratoryTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM laboratory_templates`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY priority DESC, name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var out []model.LaboratoryTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list templates iterate")
}

func (s *PostgresStore) GetTemplate(ctx context.Context, name string) (*model.LaboratoryTemplate, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx, pgGetTemplate, name))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get template %s", name)
	}
	return t, nil
}

func (s *PostgresStore) UpsertTemplate(ctx context.Context, t *model.LaboratoryTemplate) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	patterns, err := marshalJSON(t.IdentificationPatterns)
	if err != nil {
		return err
	}
	mappings, err := marshalJSON(nonNilMappings(t.FieldMappings))
	if err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	err = s.pool.QueryRow(ctx,
		`INSERT INTO laboratory_templates (`+templateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (name) DO UPDATE SET
			full_name = EXCLUDED.full_name, city = EXCLUDED.city, state = EXCLUDED.state,
			identification_patterns = EXCLUDED.identification_patterns,
			anchor_sufficient = EXCLUDED.anchor_sufficient, field_mappings = EXCLUDED.field_mappings,
			date_format = EXCLUDED.date_format, decimal_separator = EXCLUDED.decimal_separator,
			has_evolutive_report = EXCLUDED.has_evolutive_report, priority = EXCLUDED.priority,
			is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		t.ID, t.Name, t.FullName, t.City, t.State, patterns, t.AnchorSufficient, mappings,
		t.DateFormat, t.DecimalSeparator, t.HasEvolutiveReport, t.Priority, t.IsActive, now, now,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert template %s", t.Name)
	}
	t.UpdatedAt = now
	return nil
}

func (s *PostgresStore) SetTemplateActive(ctx context.Context, name string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE laboratory_templates SET is_active = $1, updated_at = $2 WHERE name = $3`,
		active, time.Now().UTC(), name,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set template active %s", name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "template %s", name)
	}
	return nil
}

// --- synonyms ---

func (s *PostgresStore) ListSynonyms(ctx context.Context, activeOnly bool) ([]model.ExamSynonym, error) {
	query := `SELECT ` + synonymColumns + ` FROM exam_synonyms`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY standard_name, synonym`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list synonyms")
	}
	defer rows.Close()

	var out []model.ExamSynonym
	for rows.Next() {
		syn, err := scanSynonym(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *syn)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list synonyms iterate")
}

// UpsertSynonym inserts or replaces the mapping for (synonym, laboratory).
// System rows never replace a mapping from a correction or a manual edit.
func (s *PostgresStore) UpsertSynonym(ctx context.Context, syn *model.ExamSynonym) error {
	if err := prepareSynonym(syn); err != nil {
		return err
	}
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO exam_synonyms
			(id, standard_name, synonym, synonym_key, laboratory, source, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (synonym_key, laboratory) DO UPDATE SET
			standard_name = EXCLUDED.standard_name, synonym = EXCLUDED.synonym, source = EXCLUDED.source,
			is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at
		 WHERE `+synonymGuard+`
		 RETURNING id, created_at`,
		syn.ID, syn.StandardName, syn.Synonym, synonymKey(syn.Synonym), syn.Laboratory,
		string(syn.Source), syn.IsActive, now, now,
	).Scan(&syn.ID, &syn.CreatedAt)
	if isNoRows(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert synonym %s", syn.Synonym)
	}
	syn.UpdatedAt = now
	return nil
}

// UpsertSynonyms bulk loads synonyms through a staged COPY. Rows sharing a
// key keep the last occurrence.
func (s *PostgresStore) UpsertSynonyms(ctx context.Context, syns []model.ExamSynonym) (int64, error) {
	now := time.Now().UTC()
	index := make(map[string]int, len(syns))
	var rows [][]any
	for i := range syns {
		syn := syns[i]
		if err := prepareSynonym(&syn); err != nil {
			return 0, err
		}
		key := synonymKey(syn.Synonym)
		row := []any{syn.ID, syn.StandardName, syn.Synonym, key, syn.Laboratory, string(syn.Source), syn.IsActive, now, now}
		if at, ok := index[key+"\x00"+syn.Laboratory]; ok {
			rows[at] = row
			continue
		}
		index[key+"\x00"+syn.Laboratory] = len(rows)
		rows = append(rows, row)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "exam_synonyms",
		Columns:      []string{"id", "standard_name", "synonym", "synonym_key", "laboratory", "source", "is_active", "created_at", "updated_at"},
		ConflictKeys: []string{"synonym_key", "laboratory"},
		UpdateCols:   []string{"standard_name", "synonym", "source", "is_active", "updated_at"},
		UpdateWhere:  synonymGuard,
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert synonyms")
}

// --- reference values ---

func (s *PostgresStore) ListReferenceValues(ctx context.Context, activeOnly bool) ([]model.CustomReferenceValue, error) {
	query := `SELECT ` + referenceColumns + ` FROM custom_reference_values`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY exam_name, priority DESC, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reference values")
	}
	defer rows.Close()

	var out []model.CustomReferenceValue
	for rows.Next() {
		v, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reference values iterate")
}

func (s *PostgresStore) InsertReferenceValue(ctx context.Context, v *model.CustomReferenceValue) error {
	if err := prepareReference(v); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO custom_reference_values (`+referenceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.ExamName, v.Laboratory, v.MinValue, v.MaxValue, v.Unit, string(v.Gender),
		v.AgeMin, v.AgeMax, v.Priority, v.IsActive, v.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert reference value for %s", v.ExamName)
}

func (s *PostgresStore) ListStandardExams(ctx context.Context) ([]model.StandardExam, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+standardColumns+` FROM standard_exams ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list standard exams")
	}
	defer rows.Close()

	var out []model.StandardExam
	for rows.Next() {
		e, err := scanStandard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list standard exams iterate")
}

func (s *PostgresStore) UpsertStandardExams(ctx context.Context, exams []model.StandardExam) (int64, error) {
	now := time.Now().UTC()
	index := make(map[string]int, len(exams))
	var rows [][]any
	for _, e := range exams {
		ranges, err := marshalJSON(nonNilRanges(e.Ranges))
		if err != nil {
			return 0, err
		}
		row := []any{e.Name, e.Category, e.Unit, ranges, now}
		if at, ok := index[e.Name]; ok {
			rows[at] = row
			continue
		}
		index[e.Name] = len(rows)
		rows = append(rows, row)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "standard_exams",
		Columns:      []string{"name", "category", "unit", "ranges", "updated_at"},
		ConflictKeys: []string{"name"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert standard exams")
}

// --- audit ---

func (s *PostgresStore) InsertExtractionLog(ctx context.Context, l *model.ExtractionLog) error {
	prepareLog(l)
	_, err := s.pool.Exec(ctx, pgInsertLog,
		l.ID, l.BatchID, l.PdfHash, l.PdfFileName, l.Success, string(l.DocumentType), l.Laboratory,
		l.ExamsExtracted, l.ExamsAltered, l.ProcessingTimeMs, string(l.ExtractionMethod),
		l.ErrorMessage, l.ErrorStack, l.PatientName, l.ExamDate, l.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert extraction log for %s", l.PdfFileName)
}

func (s *PostgresStore) ListExtractionLogs(ctx context.Context, filter LogFilter) ([]model.ExtractionLog, error) {
	query := `SELECT ` + logColumns + ` FROM extraction_logs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	if filter.Laboratory != "" {
		query += fmt.Sprintf(` AND laboratory = $%d`, argIdx)
		args = append(args, filter.Laboratory)
		argIdx++
	}
	if filter.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, argIdx)
		args = append(args, filter.BatchID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extraction logs")
	}
	defer rows.Close()

	var out []model.ExtractionLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list extraction logs iterate")
}

func (s *PostgresStore) InsertCorrection(ctx context.Context, c *model.ExamCorrection) error {
	prepareCorrection(c)
	_, err := s.pool.Exec(ctx, pgInsertCorrection,
		c.ID, c.PdfHash, c.PdfFileName, c.Laboratory, c.FieldName, c.OriginalValue, c.CorrectedValue,
		string(c.CorrectionType), c.Context, c.Notes, c.AppliedToCode, c.AppliedAt, c.AppliedBy, c.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert correction for %s", c.PdfHash)
}

func (s *PostgresStore) GetCorrection(ctx context.Context, id string) (*model.ExamCorrection, error) {
	c, err := scanCorrection(s.pool.QueryRow(ctx, pgGetCorrection, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get correction %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCorrections(ctx context.Context, filter CorrectionFilter) ([]model.ExamCorrection, error) {
	query := `SELECT ` + correctionColumns + ` FROM exam_corrections WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Pending {
		query += ` AND NOT applied_to_code`
	}
	if filter.Laboratory != "" {
		query += fmt.Sprintf(` AND laboratory = $%d`, argIdx)
		args = append(args, filter.Laboratory)
		argIdx++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(` AND correction_type = $%d`, argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var out []model.ExamCorrection
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list corrections iterate")
}

func (s *PostgresStore) MarkCorrectionApplied(ctx context.Context, id, appliedBy string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE exam_corrections SET applied_to_code = true, applied_at = $1, applied_by = $2
		 WHERE id = $3 AND NOT applied_to_code`,
		at.UTC(), appliedBy, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark correction applied %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "pending correction %s", id)
	}
	return nil
}

// ReleaseCorrection returns an applied correction to pending.
func (s *PostgresStore) ReleaseCorrection(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE exam_corrections SET applied_to_code = false, applied_at = NULL, applied_by = ''
		 WHERE id = $1 AND applied_to_code`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: release correction %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "applied correction %s", id)
	}
	return nil
}

func (s *PostgresStore) InsertFewShotExample(ctx context.Context, e *model.MLFewShotExample) error {
	prepareFewShot(e)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ml_few_shot_examples (`+fewShotColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.InputText, string(e.ExpectedOutput), e.Laboratory, e.ExamType, string(e.Quality),
		e.UsedInTraining, e.CorrectionID, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert few-shot example")
}

func (s *PostgresStore) ListFewShotExamples(ctx context.Context, filter FewShotFilter) ([]model.MLFewShotExample, error) {
	query := `SELECT ` + fewShotColumns + ` FROM ml_few_shot_examples WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Laboratory != "" {
		query += fmt.Sprintf(` AND (laboratory = $%d OR laboratory = '')`, argIdx)
		args = append(args, filter.Laboratory)
		argIdx++
	}
	if len(filter.Qualities) > 0 {
		qs := make([]string, len(filter.Qualities))
		for i, q := range filter.Qualities {
			qs[i] = string(q)
		}
		query += fmt.Sprintf(` AND quality = ANY($%d)`, argIdx)
		args = append(args, qs)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list few-shot examples")
	}
	defer rows.Close()

	var out []model.MLFewShotExample
	for rows.Next() {
		e, err := scanFewShot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list few-shot examples iterate")
}
