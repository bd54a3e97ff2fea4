package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "extraction_logs", []string{"id", "pdf_hash"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"exam_synonyms"}, []string{"synonym", "standard_name"}).WillReturnResult(3)

	rows := [][]any{{"HB", "Hemoglobina"}, {"HGB", "Hemoglobina"}, {"GLICEMIA", "Glicose"}}
	n, err := CopyFrom(context.Background(), mock, "exam_synonyms", []string{"synonym", "standard_name"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"exam_synonyms"}, []string{"synonym"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "exam_synonyms", []string{"synonym"}, [][]any{{"HB"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO exam_synonyms")
	assert.NoError(t, mock.ExpectationsWereMet())
}
