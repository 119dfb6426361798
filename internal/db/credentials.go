package db

import (
	"database/sql"
	"time"

	"github.com/tgienger/tareas/internal/models"
)

// SaveCredential stores c, replacing any previous credential
func (db *DB) SaveCredential(c models.Credential) error {
	_, err := db.Exec(`
		INSERT INTO credentials (id, token, host, secure, same_site, expires_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			host = excluded.host,
			secure = excluded.secure,
			same_site = excluded.same_site,
			expires_at = excluded.expires_at,
			created_at = CURRENT_TIMESTAMP
	`, c.Token, c.Host, c.Secure, c.SameSite, c.ExpiresAt.UnixMilli())
	return err
}

// LoadCredential returns the stored credential if it has not expired at now.
// An expired or missing credential yields (nil, nil).
func (db *DB) LoadCredential(now time.Time) (*models.Credential, error) {
	c := &models.Credential{}
	var expiresAt int64
	err := db.QueryRow(`
		SELECT token, host, secure, same_site, expires_at
		FROM credentials WHERE id = 1 AND expires_at > ?
	`, now.UnixMilli()).Scan(&c.Token, &c.Host, &c.Secure, &c.SameSite, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ExpiresAt = time.UnixMilli(expiresAt)
	return c, nil
}

// DeleteCredential removes the stored credential
func (db *DB) DeleteCredential() error {
	_, err := db.Exec("DELETE FROM credentials WHERE id = 1")
	return err
}
