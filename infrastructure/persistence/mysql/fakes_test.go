package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"entityservice/pkg/logger"
)

type noteModel struct {
	NoteID string `gorm:"column:id;primaryKey;size:36"`
	Title  string `gorm:"size:255"`
	Rank   int
}

func (noteModel) TableName() string { return "notes" }

func (n *noteModel) ID() string         { return n.NoteID }
func (n *noteModel) AssignID(id string) { n.NoteID = id }

type tagModel struct {
	Code string `gorm:"primaryKey"`
}

func (t *tagModel) ID() string { return t.Code }

var errUnsupported = errors.New("fake pool: queries are not supported")

type execRecord struct {
	sql  string
	inTx bool
}

// fakePool records statements instead of talking to a server.
type fakePool struct {
	mu        sync.Mutex
	execs     []execRecord
	begins    int
	commits   int
	rollbacks int
	failBegin error
	failExec  func(sql string) error
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

func (p *fakePool) exec(query string, inTx bool) (sql.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failExec != nil {
		if err := p.failExec(query); err != nil {
			return nil, err
		}
	}
	p.execs = append(p.execs, execRecord{sql: query, inTx: inTx})
	return fakeResult{}, nil
}

func (p *fakePool) PrepareContext(context.Context, string) (*sql.Stmt, error) {
	return nil, errUnsupported
}

func (p *fakePool) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	return p.exec(query, false)
}

func (p *fakePool) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errUnsupported
}

func (p *fakePool) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return &sql.Row{}
}

func (p *fakePool) BeginTx(context.Context, *sql.TxOptions) (gorm.ConnPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failBegin != nil {
		return nil, p.failBegin
	}
	p.begins++
	return &fakeTx{pool: p}, nil
}

// statements executed so far, by leading keyword
func (p *fakePool) verbs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.execs))
	for i, e := range p.execs {
		out[i], _, _ = strings.Cut(e.sql, " ")
	}
	return out
}

func (p *fakePool) counts() (begins, commits, rollbacks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.begins, p.commits, p.rollbacks
}

type fakeTx struct{ pool *fakePool }

func (t *fakeTx) PrepareContext(context.Context, string) (*sql.Stmt, error) {
	return nil, errUnsupported
}

func (t *fakeTx) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	return t.pool.exec(query, true)
}

func (t *fakeTx) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errUnsupported
}

func (t *fakeTx) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return &sql.Row{}
}

func (t *fakeTx) Commit() error {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	t.pool.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	t.pool.mu.Lock()
	defer t.pool.mu.Unlock()
	t.pool.rollbacks++
	return nil
}

func openFake(t *testing.T) (*gorm.DB, *fakePool) {
	t.Helper()
	pool := &fakePool{}
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: pool, SkipInitializeWithVersion: true}), &gorm.Config{
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	return db, pool
}

// openDryRun builds SQL without executing it; every statement is logged
// through the gorm adapter into the returned observer.
func openDryRun(t *testing.T) (*gorm.DB, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/entities?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.NewGormLoggerAdapterFor(zap.New(core), gormlogger.Info, nil),
	})
	require.NoError(t, err)
	return db, logs
}

func loggedSQL(logs *observer.ObservedLogs) []string {
	var out []string
	for _, e := range logs.FilterMessage("SQL query executed").All() {
		out = append(out, e.ContextMap()["sql"].(string))
	}
	return out
}
