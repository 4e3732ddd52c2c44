package repo

import (
	"context"
	"database/sql"

	"helpline/internal/domain"
)

func scanContact(row rowScanner) (domain.Contact, error) {
	var c domain.Contact
	var name, picture sql.NullString
	var blocked int
	err := row.Scan(&c.ID, &c.PlatformID, &name, &picture, &blocked, &c.FollowedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if name.Valid {
		c.DisplayName = name.String
	}
	if picture.Valid {
		c.PictureURL = &picture.String
	}
	c.IsBlocked = blocked != 0
	return c, nil
}

const contactColumns = `id,platform_id,display_name,picture_url,is_blocked,followed_at,created_at`

func (r Repo) GetContact(ctx context.Context, id string) (domain.Contact, error) {
	return scanContact(r.DB.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=?`, id))
}

func (r Repo) GetContactByPlatformID(ctx context.Context, platformID string) (domain.Contact, error) {
	return scanContact(r.DB.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE platform_id=?`, platformID))
}

func (r Repo) InsertContact(ctx context.Context, tx *sql.Tx, c domain.Contact) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO contacts(id,platform_id,display_name,picture_url,is_blocked,followed_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.PlatformID, nullable(c.DisplayName), nullableStringPtr(c.PictureURL),
		boolInt(c.IsBlocked), c.FollowedAt, c.CreatedAt)
	return err
}

func (r Repo) UpdateContactProfile(ctx context.Context, platformID, displayName string, pictureURL *string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE contacts SET display_name=?, picture_url=? WHERE platform_id=?`,
		nullable(displayName), nullableStringPtr(pictureURL), platformID)
	return err
}

func (r Repo) SetContactBlocked(ctx context.Context, tx *sql.Tx, platformID string, blocked bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE contacts SET is_blocked=? WHERE platform_id=?`, boolInt(blocked), platformID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY followed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
