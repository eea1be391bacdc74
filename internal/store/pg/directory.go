package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"elevate.org/internal/identity"
)

// Directory reads staff, roles and branches. It never writes them.
type Directory struct {
	db *sql.DB
}

var _ identity.Directory = (*Directory)(nil)

const staffColumns = `staff_id, user_id, name, role_id, branch_id, status`

func scanStaff(row scanner) (identity.StaffIdentity, error) {
	var s identity.StaffIdentity
	err := row.Scan(&s.StaffID, &s.UserID, &s.Name, &s.PermanentRoleID, &s.PermanentBranchID, &s.Status)
	return s, err
}

func (d *Directory) GetStaffIdentity(ctx context.Context, userID string) (identity.StaffIdentity, error) {
	if d.db == nil {
		return identity.StaffIdentity{}, errNoDB
	}
	s, err := scanStaff(d.db.QueryRowContext(ctx, `
		select `+staffColumns+`
		from staff
		where user_id = $1
	`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return identity.StaffIdentity{}, identity.ErrNotFound
	}
	return s, err
}

func (d *Directory) ListStaff(ctx context.Context, f identity.DelegateFilter) ([]identity.StaffIdentity, error) {
	if d.db == nil {
		return nil, errNoDB
	}
	where := []string{"status = 'active'"}
	var args []any
	if f.BranchID != "" {
		args = append(args, f.BranchID)
		where = append(where, fmt.Sprintf("branch_id = $%d", len(args)))
	}
	if strings.TrimSpace(f.Search) != "" {
		args = append(args, likePattern(f.Search))
		n := len(args)
		where = append(where, fmt.Sprintf("(name ilike $%d or staff_id ilike $%d)", n, n))
	}
	rows, err := d.db.QueryContext(ctx, `
		select `+staffColumns+`
		from staff
		where `+strings.Join(where, " and ")+`
		order by name
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []identity.StaffIdentity
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *Directory) GetRole(ctx context.Context, roleID string) (identity.Role, error) {
	if d.db == nil {
		return identity.Role{}, errNoDB
	}
	var r identity.Role
	err := d.db.QueryRowContext(ctx, `select id, name from roles where id = $1`, roleID).Scan(&r.ID, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Role{}, identity.ErrNotFound
	}
	return r, err
}

func (d *Directory) ListRoles(ctx context.Context) ([]identity.Role, error) {
	if d.db == nil {
		return nil, errNoDB
	}
	rows, err := d.db.QueryContext(ctx, `select id, name from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []identity.Role
	for rows.Next() {
		var r identity.Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *Directory) GetBranch(ctx context.Context, branchID string) (identity.Branch, error) {
	if d.db == nil {
		return identity.Branch{}, errNoDB
	}
	var b identity.Branch
	err := d.db.QueryRowContext(ctx, `select id, name from branches where id = $1`, branchID).Scan(&b.ID, &b.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Branch{}, identity.ErrNotFound
	}
	return b, err
}

func (d *Directory) ListBranches(ctx context.Context) ([]identity.Branch, error) {
	if d.db == nil {
		return nil, errNoDB
	}
	rows, err := d.db.QueryContext(ctx, `select id, name from branches order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []identity.Branch
	for rows.Next() {
		var b identity.Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *Directory) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	if d.db == nil {
		return nil, errNoDB
	}
	rows, err := d.db.QueryContext(ctx, `
		select rp.permission_key
		from roles r
		left join role_permissions rp on rp.role_id = r.id
		where r.id = $1
		order by rp.permission_key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := false
	var perms []string
	for rows.Next() {
		var key sql.NullString
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		found = true
		if key.Valid {
			perms = append(perms, key.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, identity.ErrNotFound
	}
	return perms, nil
}
