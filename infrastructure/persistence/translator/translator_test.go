package translator

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"entityservice/domain/criteria"
	"entityservice/domain/shared"
)

type noteRow struct {
	ID        string
	Title     string
	OwnerName string
	Rank      int
	CreatedAt time.Time
}

func (noteRow) TableName() string { return "notes" }

func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/entities?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func render(t *testing.T, expr clause.Expression) (string, []any) {
	t.Helper()
	tx := dryRun(t).Model(&noteRow{})
	if expr != nil {
		tx = tx.Where(expr)
	}
	stmt := tx.Find(&[]noteRow{}).Statement
	return stmt.SQL.String(), stmt.Vars
}

func TestTranslate_Comparisons(t *testing.T) {
	tests := []struct {
		name string
		expr criteria.Expression
		sql  string
		vars []any
	}{
		{"eq", criteria.Eq("title", "x"), "`title` = ?", []any{"x"}},
		{"neq", criteria.Neq("rank", 2), "`rank` <> ?", []any{2}},
		{"gt", criteria.Gt("rank", 2), "`rank` > ?", []any{2}},
		{"gte", criteria.Gte("rank", 2), "`rank` >= ?", []any{2}},
		{"lt", criteria.Lt("rank", 2), "`rank` < ?", []any{2}},
		{"lte", criteria.Lte("rank", 2), "`rank` <= ?", []any{2}},
		{"is null", criteria.IsNull("owner_name"), "`owner_name` IS NULL", nil},
		{"eq nil", criteria.Eq("owner_name", nil), "`owner_name` IS NULL", nil},
		{"is not null", criteria.IsNotNull("owner_name"), "`owner_name` IS NOT NULL", nil},
		{"in", criteria.In("id", "a", "b"), "`id` IN (?,?)", []any{"a", "b"}},
		{"not in", criteria.NotIn("id", "a"), "`id` NOT IN (?)", []any{"a"}},
		{"empty in", criteria.In("id"), "1 = 0", nil},
		{"contains", criteria.Contains("title", "ReP"), "LOWER(`title`) LIKE ?", []any{"%rep%"}},
		{"not contains", criteria.NotContains("title", "ReP"), "LOWER(`title`) NOT LIKE ?", []any{"%rep%"}},
		{"starts with", criteria.StartsWith("title", "ReP"), "LOWER(`title`) LIKE ?", []any{"rep%"}},
		{"ends with", criteria.EndsWith("title", "ReP"), "LOWER(`title`) LIKE ?", []any{"%rep"}},
		{"between", criteria.Between("rank", 1, 5), "`rank` BETWEEN ? AND ?", []any{1, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := New("", nil).Translate(tt.expr)
			require.NoError(t, err)

			sqlText, vars := render(t, expr)
			assert.Equal(t, "SELECT * FROM `notes` WHERE "+tt.sql, sqlText)
			if tt.vars == nil {
				assert.Empty(t, vars)
			} else {
				assert.Equal(t, tt.vars, vars)
			}
		})
	}
}

func TestTranslate_EmptyExpressions(t *testing.T) {
	tr := New("", nil)

	for _, expr := range []criteria.Expression{nil, criteria.And(), criteria.NotIn("id")} {
		got, err := tr.Translate(expr)
		require.NoError(t, err)
		assert.Nil(t, got)
	}

	sqlText, _ := render(t, nil)
	assert.Equal(t, "SELECT * FROM `notes`", sqlText)
}

func TestTranslate_Composite(t *testing.T) {
	tr := New("", nil)
	expr, err := tr.Translate(criteria.Or(
		criteria.Eq("title", "a"),
		criteria.And(criteria.Gt("rank", 1), criteria.IsNull("owner_name")),
	))
	require.NoError(t, err)

	sqlText, vars := render(t, expr)
	assert.Contains(t, sqlText, "`title` = ? OR")
	assert.Contains(t, sqlText, "`rank` > ? AND `owner_name` IS NULL")
	assert.Equal(t, []any{"a", 1}, vars)
}

func TestTranslate_ParameterNamesAreUnique(t *testing.T) {
	tr := New("", nil)
	_, err := tr.Translate(criteria.And(
		criteria.Eq("title_1", "x"),
		criteria.Eq("title", "a"),
		criteria.Eq("title", "b"),
		criteria.Eq("n.title", "c"),
	))
	require.NoError(t, err)

	params := tr.Parameters()
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"title_1", "title", "title_2", "n_title"}, names)
	assert.Equal(t, []any{"x", "a", "b", "c"}, []any{params[0].Value, params[1].Value, params[2].Value, params[3].Value})

	// a second tree keeps avoiding names bound by the first
	_, err = tr.Translate(criteria.Eq("title", "d"))
	require.NoError(t, err)
	assert.Equal(t, sql.Named("title_4", "d"), tr.Parameters()[4])

	tr.ClearParameters()
	assert.Empty(t, tr.Parameters())
	_, err = tr.Translate(criteria.Eq("title", "e"))
	require.NoError(t, err)
	assert.Equal(t, "title", tr.Parameters()[0].Name)
}

func TestTranslate_DateRanges(t *testing.T) {
	now := time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)
	tr := New("", nil)

	expr, err := tr.Translate(criteria.PreviousMonth("created_at", now))
	require.NoError(t, err)

	sqlText, vars := render(t, expr)
	assert.Equal(t, "SELECT * FROM `notes` WHERE `created_at` BETWEEN ? AND ?", sqlText)
	require.Len(t, vars, 2)
	assert.Equal(t, time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC), vars[0])
	assert.Equal(t, time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC), vars[1])

	names := []string{tr.Parameters()[0].Name, tr.Parameters()[1].Name}
	assert.Equal(t, []string{"created_at", "created_at_1"}, names)
}

func TestTranslate_Aliases(t *testing.T) {
	tr := New("n", nil)

	expr, err := tr.Translate(criteria.And(criteria.Eq("title", "x"), criteria.Eq("owner.name", "ann")))
	require.NoError(t, err)

	sqlText, _ := render(t, expr)
	assert.Contains(t, sqlText, "`n`.`title` = ?")
	assert.Contains(t, sqlText, "`owner`.`name` = ?")
	assert.Equal(t, "owner_name", tr.Parameters()[1].Name)
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr criteria.Expression
	}{
		{"unknown operator", criteria.Comparison{Field: "title", Operator: "SOUNDS_LIKE", Value: "x"}},
		{"single value operator as multi value", criteria.MultiValue{Field: "rank", Operator: criteria.OpEq, Values: []any{1, 2}}},
		{"wrong arity", criteria.MultiValue{Field: "rank", Operator: criteria.OpBetween, Values: []any{1}}},
		{"unknown composite", criteria.Composite{Type: "XOR", Children: []criteria.Expression{criteria.Eq("a", 1)}}},
		{"error in nested child", criteria.Or(criteria.Eq("a", 1), criteria.Comparison{Field: "b", Operator: "~"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("", nil).Translate(tt.expr)
			assert.ErrorIs(t, err, shared.ErrTranslation)
		})
	}
}

func TestSchemaResolver(t *testing.T) {
	s, err := schema.Parse(&noteRow{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	resolve := SchemaResolver(s)

	for field, want := range map[string]string{
		"OwnerName":  "owner_name",
		"owner_name": "owner_name",
		"ownerName":  "owner_name",
	} {
		got, err := resolve(field)
		require.NoError(t, err, field)
		assert.Equal(t, want, got)
	}

	_, err = resolve("password")
	assert.ErrorIs(t, err, shared.ErrTranslation)

	_, err = New("", resolve).Translate(criteria.Eq("password", "x"))
	assert.ErrorIs(t, err, shared.ErrTranslation)
}

func TestApply(t *testing.T) {
	db := dryRun(t)
	s, err := schema.Parse(&noteRow{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	c := criteria.New().
		Where(criteria.Contains("Title", "go")).
		OrderBy("CreatedAt", criteria.Desc).
		WithFirstResult(10).
		WithMaxResults(5)

	tx, err := New("", SchemaResolver(s)).Apply(db.Model(&noteRow{}), c)
	require.NoError(t, err)

	stmt := tx.Find(&[]noteRow{}).Statement
	sqlText := stmt.SQL.String()
	assert.Contains(t, sqlText, "WHERE LOWER(`title`) LIKE ?")
	assert.Contains(t, sqlText, "ORDER BY `created_at` DESC")
	assert.Contains(t, sqlText, "LIMIT")
	assert.Contains(t, sqlText, "OFFSET")
	assert.Equal(t, "%go%", stmt.Vars[0])

	_, err = New("", SchemaResolver(s)).Apply(db, criteria.New().OrderBy("nope", criteria.Asc))
	assert.ErrorIs(t, err, shared.ErrTranslation)
}
