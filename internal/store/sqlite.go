package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/labexam-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS laboratory_templates (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL UNIQUE,
	full_name               TEXT NOT NULL DEFAULT '',
	city                    TEXT NOT NULL DEFAULT '',
	state                   TEXT NOT NULL DEFAULT '',
	identification_patterns TEXT NOT NULL,
	anchor_sufficient       INTEGER NOT NULL DEFAULT 0,
	field_mappings          TEXT NOT NULL DEFAULT '[]',
	date_format             TEXT NOT NULL DEFAULT 'DD/MM/YYYY',
	decimal_separator       TEXT NOT NULL DEFAULT ',',
	has_evolutive_report    INTEGER NOT NULL DEFAULT 0,
	priority                INTEGER NOT NULL DEFAULT 0,
	is_active               INTEGER NOT NULL DEFAULT 1,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS exam_synonyms (
	id            TEXT PRIMARY KEY,
	standard_name TEXT NOT NULL,
	synonym       TEXT NOT NULL,
	synonym_key   TEXT NOT NULL,
	laboratory    TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT 'SYSTEM',
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (synonym_key, laboratory)
);

CREATE TABLE IF NOT EXISTS custom_reference_values (
	id         TEXT PRIMARY KEY,
	exam_name  TEXT NOT NULL,
	laboratory TEXT NOT NULL DEFAULT '',
	min_value  REAL,
	max_value  REAL,
	unit       TEXT NOT NULL DEFAULT '',
	gender     TEXT NOT NULL DEFAULT 'BOTH',
	age_min    INTEGER,
	age_max    INTEGER,
	priority   INTEGER NOT NULL DEFAULT 0,
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS standard_exams (
	name       TEXT PRIMARY KEY,
	category   TEXT NOT NULL DEFAULT '',
	unit       TEXT NOT NULL DEFAULT '',
	ranges     TEXT NOT NULL DEFAULT '[]',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extraction_logs (
	id                 TEXT PRIMARY KEY,
	batch_id           TEXT NOT NULL DEFAULT '',
	pdf_hash           TEXT NOT NULL,
	pdf_file_name      TEXT NOT NULL,
	success            INTEGER NOT NULL,
	document_type      TEXT NOT NULL,
	laboratory         TEXT NOT NULL DEFAULT '',
	exams_extracted    INTEGER NOT NULL DEFAULT 0,
	exams_altered      INTEGER NOT NULL DEFAULT 0,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	extraction_method  TEXT NOT NULL DEFAULT '',
	error_message      TEXT NOT NULL DEFAULT '',
	error_stack        TEXT NOT NULL DEFAULT '',
	patient_name       TEXT NOT NULL DEFAULT '',
	exam_date          TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS exam_corrections (
	id              TEXT PRIMARY KEY,
	pdf_hash        TEXT NOT NULL,
	pdf_file_name   TEXT NOT NULL DEFAULT '',
	laboratory      TEXT NOT NULL DEFAULT '',
	field_name      TEXT NOT NULL,
	original_value  TEXT NOT NULL DEFAULT '',
	corrected_value TEXT NOT NULL,
	correction_type TEXT NOT NULL,
	context         TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	applied_to_code INTEGER NOT NULL DEFAULT 0,
	applied_at      DATETIME,
	applied_by      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ml_few_shot_examples (
	id               TEXT PRIMARY KEY,
	input_text       TEXT NOT NULL,
	expected_output  TEXT NOT NULL,
	laboratory       TEXT NOT NULL DEFAULT '',
	exam_type        TEXT NOT NULL DEFAULT '',
	quality          TEXT NOT NULL,
	used_in_training INTEGER NOT NULL DEFAULT 0,
	correction_id    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_extraction_logs_created_at ON extraction_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_extraction_logs_laboratory ON extraction_logs(laboratory);
CREATE INDEX IF NOT EXISTS idx_exam_corrections_pending ON exam_corrections(applied_to_code, created_at);
CREATE INDEX IF NOT EXISTS idx_ml_few_shot_examples_lab ON ml_few_shot_examples(laboratory, quality);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- laboratory templates ---

func (s *SQLiteStore) ListTemplates(ctx context.Context, activeOnly bool) ([]model.LaboratoryTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM laboratory_templates`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY priority DESC, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LaboratoryTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list templates iterate")
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, name string) (*model.LaboratoryTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM laboratory_templates WHERE name = ?`, name)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get template %s", name)
	}
	return t, nil
}

func (s *SQLiteStore) UpsertTemplate(ctx context.Context, t *model.LaboratoryTemplate) error {
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

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO laboratory_templates (`+templateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			full_name = excluded.full_name, city = excluded.city, state = excluded.state,
			identification_patterns = excluded.identification_patterns,
			anchor_sufficient = excluded.anchor_sufficient, field_mappings = excluded.field_mappings,
			date_format = excluded.date_format, decimal_separator = excluded.decimal_separator,
			has_evolutive_report = excluded.has_evolutive_report, priority = excluded.priority,
			is_active = excluded.is_active, updated_at = excluded.updated_at
		 RETURNING id`,
		t.ID, t.Name, t.FullName, t.City, t.State, patterns, t.AnchorSufficient, mappings,
		t.DateFormat, t.DecimalSeparator, t.HasEvolutiveReport, t.Priority, t.IsActive, now, now,
	).Scan(&t.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert template %s", t.Name)
	}
	stamp(&t.CreatedAt, &t.UpdatedAt, now)
	return nil
}

func (s *SQLiteStore) SetTemplateActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE laboratory_templates SET is_active = ?, updated_at = ? WHERE name = ?`,
		active, time.Now().UTC(), name,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set template active %s", name)
	}
	return checkRowsAffected(res, "template", name)
}

// --- synonyms ---

func (s *SQLiteStore) ListSynonyms(ctx context.Context, activeOnly bool) ([]model.ExamSynonym, error) {
	query := `SELECT ` + synonymColumns + ` FROM exam_synonyms`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY standard_name, synonym`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list synonyms")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ExamSynonym
	for rows.Next() {
		syn, err := scanSynonym(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *syn)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list synonyms iterate")
}

const sqliteUpsertSynonym = `INSERT INTO exam_synonyms
	(id, standard_name, synonym, synonym_key, laboratory, source, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(synonym_key, laboratory) DO UPDATE SET
		standard_name = excluded.standard_name, synonym = excluded.synonym, source = excluded.source,
		is_active = excluded.is_active, updated_at = excluded.updated_at
	WHERE ` + synonymGuard

// UpsertSynonym inserts or replaces the mapping for (synonym, laboratory).
// System rows never replace a mapping that came from a correction or a
// manual edit; in that case the call is a no-op.
func (s *SQLiteStore) UpsertSynonym(ctx context.Context, syn *model.ExamSynonym) error {
	if err := prepareSynonym(syn); err != nil {
		return err
	}
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, sqliteUpsertSynonym+` RETURNING id`,
		syn.ID, syn.StandardName, syn.Synonym, synonymKey(syn.Synonym), syn.Laboratory,
		string(syn.Source), syn.IsActive, now, now,
	).Scan(&syn.ID)
	if isNoRows(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert synonym %s", syn.Synonym)
	}
	stamp(&syn.CreatedAt, &syn.UpdatedAt, now)
	return nil
}

func (s *SQLiteStore) UpsertSynonyms(ctx context.Context, syns []model.ExamSynonym) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert synonyms: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSynonym)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert synonyms: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for i := range syns {
		syn := syns[i]
		if err := prepareSynonym(&syn); err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, syn.ID, syn.StandardName, syn.Synonym, synonymKey(syn.Synonym),
			syn.Laboratory, string(syn.Source), syn.IsActive, now, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert synonym %s", syn.Synonym)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert synonyms: commit")
	}
	return n, nil
}

// --- reference values ---

func (s *SQLiteStore) ListReferenceValues(ctx context.Context, activeOnly bool) ([]model.CustomReferenceValue, error) {
	query := `SELECT ` + referenceColumns + ` FROM custom_reference_values`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY exam_name, priority DESC, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reference values")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CustomReferenceValue
	for rows.Next() {
		v, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reference values iterate")
}

func (s *SQLiteStore) InsertReferenceValue(ctx context.Context, v *model.CustomReferenceValue) error {
	if err := prepareReference(v); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_reference_values (`+referenceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ExamName, v.Laboratory, v.MinValue, v.MaxValue, v.Unit, string(v.Gender),
		v.AgeMin, v.AgeMax, v.Priority, v.IsActive, v.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert reference value for %s", v.ExamName)
}

func (s *SQLiteStore) ListStandardExams(ctx context.Context) ([]model.StandardExam, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+standardColumns+` FROM standard_exams ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list standard exams")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StandardExam
	for rows.Next() {
		e, err := scanStandard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list standard exams iterate")
}

func (s *SQLiteStore) UpsertStandardExams(ctx context.Context, exams []model.StandardExam) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert standard exams: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO standard_exams (name, category, unit, ranges, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET category = excluded.category, unit = excluded.unit,
			ranges = excluded.ranges, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert standard exams: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, e := range exams {
		ranges, err := marshalJSON(nonNilRanges(e.Ranges))
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, e.Name, e.Category, e.Unit, ranges, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert standard exam %s", e.Name)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert standard exams: commit")
	}
	return n, nil
}

// --- audit ---

func (s *SQLiteStore) InsertExtractionLog(ctx context.Context, l *model.ExtractionLog) error {
	prepareLog(l)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_logs (`+logColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.BatchID, l.PdfHash, l.PdfFileName, l.Success, string(l.DocumentType), l.Laboratory,
		l.ExamsExtracted, l.ExamsAltered, l.ProcessingTimeMs, string(l.ExtractionMethod),
		l.ErrorMessage, l.ErrorStack, l.PatientName, l.ExamDate, l.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert extraction log for %s", l.PdfFileName)
}

func (s *SQLiteStore) ListExtractionLogs(ctx context.Context, filter LogFilter) ([]model.ExtractionLog, error) {
	query := `SELECT ` + logColumns + ` FROM extraction_logs WHERE 1=1`
	var args []any
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	if filter.Laboratory != "" {
		query += ` AND laboratory = ?`
		args = append(args, filter.Laboratory)
	}
	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extraction logs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ExtractionLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list extraction logs iterate")
}

func (s *SQLiteStore) InsertCorrection(ctx context.Context, c *model.ExamCorrection) error {
	prepareCorrection(c)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exam_corrections (`+correctionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PdfHash, c.PdfFileName, c.Laboratory, c.FieldName, c.OriginalValue, c.CorrectedValue,
		string(c.CorrectionType), c.Context, c.Notes, c.AppliedToCode, c.AppliedAt, c.AppliedBy, c.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert correction for %s", c.PdfHash)
}

func (s *SQLiteStore) GetCorrection(ctx context.Context, id string) (*model.ExamCorrection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+correctionColumns+` FROM exam_corrections WHERE id = ?`, id)
	c, err := scanCorrection(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get correction %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, filter CorrectionFilter) ([]model.ExamCorrection, error) {
	query := `SELECT ` + correctionColumns + ` FROM exam_corrections WHERE 1=1`
	var args []any
	if filter.Pending {
		query += ` AND applied_to_code = 0`
	}
	if filter.Laboratory != "" {
		query += ` AND laboratory = ?`
		args = append(args, filter.Laboratory)
	}
	if filter.Type != "" {
		query += ` AND correction_type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corrections")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ExamCorrection
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list corrections iterate")
}

func (s *SQLiteStore) MarkCorrectionApplied(ctx context.Context, id, appliedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_corrections SET applied_to_code = 1, applied_at = ?, applied_by = ?
		 WHERE id = ? AND applied_to_code = 0`,
		at.UTC(), appliedBy, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark correction applied %s", id)
	}
	return checkRowsAffected(res, "pending correction", id)
}

// ReleaseCorrection returns an applied correction to pending.
func (s *SQLiteStore) ReleaseCorrection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_corrections SET applied_to_code = 0, applied_at = NULL, applied_by = ''
		 WHERE id = ? AND applied_to_code = 1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: release correction %s", id)
	}
	return checkRowsAffected(res, "applied correction", id)
}

func (s *SQLiteStore) InsertFewShotExample(ctx context.Context, e *model.MLFewShotExample) error {
	prepareFewShot(e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ml_few_shot_examples (`+fewShotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.InputText, string(e.ExpectedOutput), e.Laboratory, e.ExamType, string(e.Quality),
		e.UsedInTraining, e.CorrectionID, e.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert few-shot example")
}

func (s *SQLiteStore) ListFewShotExamples(ctx context.Context, filter FewShotFilter) ([]model.MLFewShotExample, error) {
	query := `SELECT ` + fewShotColumns + ` FROM ml_few_shot_examples WHERE 1=1`
	var args []any
	if filter.Laboratory != "" {
		query += ` AND (laboratory = ? OR laboratory = '')`
		args = append(args, filter.Laboratory)
	}
	if len(filter.Qualities) > 0 {
		query += ` AND quality IN (?` + strings.Repeat(", ?", len(filter.Qualities)-1) + `)`
		for _, q := range filter.Qualities {
			args = append(args, string(q))
		}
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list few-shot examples")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MLFewShotExample
	for rows.Next() {
		e, err := scanFewShot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list few-shot examples iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
