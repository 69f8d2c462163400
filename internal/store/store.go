package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dukerupert/nonna/internal/access"
	"github.com/dukerupert/nonna/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface{ Scan(...any) error }

func newID() string {
	return uuid.NewString()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// checkVault returns ErrNotFound unless vaultID is visible to userID.
func checkVault(ctx context.Context, q querier, userID int64, vaultID string) error {
	p := access.And(access.Eq("id", vaultID), access.VaultVisible(userID, "id"))
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM vaults`+p.Where(), p.Args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// referencedVault is checkVault for a vault named in a request body.
func referencedVault(ctx context.Context, q querier, userID int64, vaultID string) error {
	err := checkVault(ctx, q, userID, vaultID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Invalid("vault", "vault not found")
	}
	return err
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeList(s string) []string {
	items := []string{}
	if s == "" {
		return items
	}
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return []string{}
	}
	return items
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// orderBy maps an ordering query value such as "-created_at" onto an allowed
// column list, falling back to def.
func orderBy(ordering string, allowed map[string]string, def string) string {
	if ordering == "" {
		return def
	}
	desc := strings.HasPrefix(ordering, "-")
	col, ok := allowed[strings.TrimPrefix(ordering, "-")]
	if !ok {
		return def
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
