// Package access builds the SQL predicates that restrict vault-scoped reads
// and writes to the vaults a user owns or belongs to.
//
// Predicates never consult ambient state: every constructor takes the acting
// user explicitly and the result is a parameterized fragment to be placed in a
// WHERE clause.
package access

import "strings"

// Predicate is a boolean SQL fragment and its positional arguments.
type Predicate struct {
	SQL  string
	Args []any
}

// visibleVaults selects the IDs of vaults a user owns or is a member of.
// UNION keeps it a set, so a user who is both owner and member matches once.
const visibleVaults = `SELECT id FROM vaults WHERE owner_id = ? UNION SELECT vault_id FROM vault_members WHERE user_id = ?`

// VisibleVaultIDs returns the subquery of vault IDs visible to userID,
// for use on the right-hand side of IN.
func VisibleVaultIDs(userID int64) Predicate {
	return Predicate{SQL: visibleVaults, Args: []any{userID, userID}}
}

// VaultVisible restricts vaultColumn to vaults visible to userID.
func VaultVisible(userID int64, vaultColumn string) Predicate {
	return Predicate{
		SQL:  vaultColumn + ` IN (` + visibleVaults + `)`,
		Args: []any{userID, userID},
	}
}

// PersonVisible restricts personColumn to persons in vaults visible to userID.
func PersonVisible(userID int64, personColumn string) Predicate {
	v := VaultVisible(userID, "vault_id")
	return Predicate{
		SQL:  personColumn + ` IN (SELECT id FROM persons WHERE ` + v.SQL + `)`,
		Args: v.Args,
	}
}

// RelationVisible matches relations where either endpoint person is visible
// to userID. alias is the relations table alias, empty for none.
func RelationVisible(userID int64, alias string) Predicate {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	return Or(
		PersonVisible(userID, prefix+"person1_id"),
		PersonVisible(userID, prefix+"person2_id"),
	)
}

// Eq is column = value.
func Eq(column string, value any) Predicate {
	return Predicate{SQL: column + ` = ?`, Args: []any{value}}
}

// And joins predicates with AND. Empty predicates are skipped.
func And(preds ...Predicate) Predicate {
	return join(" AND ", preds)
}

// Or joins predicates with OR. Empty predicates are skipped.
func Or(preds ...Predicate) Predicate {
	return join(" OR ", preds)
}

func join(op string, preds []Predicate) Predicate {
	var parts []string
	var args []any
	for _, p := range preds {
		if p.SQL == "" {
			continue
		}
		parts = append(parts, p.SQL)
		args = append(args, p.Args...)
	}
	if len(parts) <= 1 {
		return Predicate{SQL: strings.Join(parts, ""), Args: args}
	}
	return Predicate{SQL: "(" + strings.Join(parts, ")"+op+"(") + ")", Args: args}
}

// Where renders p as a WHERE clause, or the empty string for an empty predicate.
func (p Predicate) Where() string {
	if p.SQL == "" {
		return ""
	}
	return " WHERE " + p.SQL
}
