package observability

import (
	"bytes"
	"context"
	"time"

	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	delay time.Duration
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	time.Sleep(f.delay)
	return nil, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	time.Sleep(f.delay)
	return nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	time.Sleep(f.delay)
	return pgconn.CommandTag{}, nil
}

func TestSlowQueryLoggerWarnsAboveThreshold(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.WarnLevel)

	wrapped := NewSlowQueryLogger(&fakeDB{delay: 5 * time.Millisecond}, time.Millisecond, base)
	_, err := wrapped.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "slow query")
}

func TestSlowQueryLoggerSilentBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.WarnLevel)

	wrapped := NewSlowQueryLogger(&fakeDB{delay: 0}, time.Second, base)
	_, err := wrapped.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.Empty(t, buf.String())
}

func TestNewSlowQueryLoggerDefaultsThreshold(t *testing.T) {
	wrapped := NewSlowQueryLogger(&fakeDB{}, 0, logrus.New())
	assert.Equal(t, 100*time.Millisecond, wrapped.threshold)
}
