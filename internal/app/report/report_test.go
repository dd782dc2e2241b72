package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/minipay/minipay/internal/app/core/domain"
	"github.com/minipay/minipay/internal/app/core/usecase"
)

type fakeLister struct {
	got   usecase.TimeRange
	trans []*domain.Transaction
}

func (f *fakeLister) List(ctx context.Context, rng usecase.TimeRange) ([]*domain.Transaction, error) {
	f.got = rng
	return f.trans, nil
}

type fakeAccounts map[int64]string

func (f fakeAccounts) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	name, ok := f[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &domain.Account{ID: accountID, Name: name}, nil
}

type fakeSender struct {
	subject  string
	filename string
	content  []byte
	err      error
}

func (f *fakeSender) Send(subject, filename string, content []byte) error {
	f.subject = subject
	f.filename = filename
	f.content = content
	return f.err
}

func TestWindow(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	rng := Window(day)

	require.NotNil(t, rng.Start)
	require.NotNil(t, rng.End)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), *rng.Start)
	// End 為次日 00:00 的前一奈秒，保持閉區間語意
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), *rng.End)
}

func TestBuildWorkbookContent(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	tranID := uuid.New()
	lister := &fakeLister{trans: []*domain.Transaction{
		{
			ID:            tranID,
			FromAccountID: 1,
			ToAccountID:   2,
			Amount:        2550,
			State:         domain.StateCompleted,
			CreatedAt:     day.Add(10 * time.Hour),
		},
	}}
	gen := NewGenerator(lister, fakeAccounts{1: "alice", 2: "bob"}, &fakeSender{}, zap.NewNop())

	content, count, err := gen.Build(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, Window(day), lister.got)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t,
		[]string{"Transaction ID", "From User", "To User", "Amount", "Status", "Created At"},
		rows[0])
	assert.Equal(t, tranID.String(), rows[1][0])
	assert.Equal(t, "alice", rows[1][1])
	assert.Equal(t, "bob", rows[1][2])
	assert.Equal(t, "25.5", rows[1][3])
	assert.Equal(t, "completed", rows[1][4])
}

func TestBuildUnknownAccountName(t *testing.T) {
	lister := &fakeLister{trans: []*domain.Transaction{
		{ID: uuid.New(), FromAccountID: 1, ToAccountID: 99, Amount: 100, State: domain.StatePending},
	}}
	gen := NewGenerator(lister, fakeAccounts{1: "alice"}, &fakeSender{}, zap.NewNop())

	content, _, err := gen.Build(context.Background(), time.Now())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[1][1])
	// 查不到帳戶時名稱留白，報表照常出
	assert.Len(t, rows[1], 6)
	assert.Equal(t, "", rows[1][2])
}

func TestRunSendsYesterdayReport(t *testing.T) {
	lister := &fakeLister{}
	sender := &fakeSender{}
	gen := NewGenerator(lister, fakeAccounts{}, sender, zap.NewNop())

	now := time.Date(2026, 3, 11, 0, 0, 30, 0, time.UTC)
	require.NoError(t, gen.Run(context.Background(), now))

	assert.Equal(t, "Daily Transaction Report - 2026-03-10", sender.subject)
	assert.Equal(t, "transactions-2026-03-10.xlsx", sender.filename)
	assert.NotEmpty(t, sender.content)

	require.NotNil(t, lister.got.Start)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), *lister.got.Start)
}
