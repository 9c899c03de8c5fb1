package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

func newMockSQLite(t *testing.T) (*SQLite, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLite(conn), mock
}

func TestStorageFailuresPropagate(t *testing.T) {
	st, mock := newMockSQLite(t)
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(regexp.QuoteMeta("FROM generated_documents WHERE token=?")).
		WithArgs("tok_1").
		WillReturnError(boom)
	_, err := st.GetDocumentByToken(ctx, "tok_1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, domain.ErrDocumentNotFound))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generated_documents SET")).
		WillReturnError(boom)
	ok, err := st.CompleteSigning(ctx, "doc_1", domain.SigningEvidence{SignedAt: time.Now()})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE signing_codes SET consumed_at=?")).
		WillReturnResult(sqlmock.NewErrorResult(boom))
	ok, err = st.ConsumeCode(ctx, "otp_1", time.Now())
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoRowsTranslatesToDomainErrors(t *testing.T) {
	st, mock := newMockSQLite(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM document_templates WHERE template_id=?")).
		WithArgs("tpl_x").
		WillReturnRows(sqlmock.NewRows([]string{"template_id"}))
	_, err := st.GetTemplate(ctx, "tpl_x")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM company_settings WHERE company_id=1")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	c, err := st.GetCompany(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Company{}, c)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusBindsEverySourceStatus(t *testing.T) {
	st, mock := newMockSQLite(t)
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	ts := at.UnixMicro()

	mock.ExpectExec(regexp.QuoteMeta("status IN (?,?,?) AND expires_at >= ?")).
		WithArgs("cancelled", ts, "cancelled", ts, "cancelled", ts, "doc_1", "draft", "pending_signature", "sent", ts).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := st.UpdateStatus(context.Background(), "doc_1", domain.NonTerminalStatuses(), domain.StatusCancelled, at)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
