package store

import (
	"database/sql"
	"time"

	"github.com/streamforge/tuner-gateway/internal/errs"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateAccount inserts a new account and returns it with its assigned ID.
func (s *Store) CreateAccount(a Account) (Account, error) {
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO accounts
			(display_name, base_url, username, password_handle,
			 advertised_max_conns, observed_max_conns, last_check, liveness, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.DisplayName, a.BaseURL, a.Username, a.PasswordHandle,
			a.AdvertisedMaxConns, a.ObservedMaxConns, formatTime(a.LastCheck), a.Liveness, a.Active)
		if err != nil {
			return errs.CatalogConstraint(err.Error())
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		a.ID = id
		return nil
	})
	return a, err
}

func scanAccount(row interface {
	Scan(dest ...any) error
}) (Account, error) {
	var a Account
	var lastCheck string
	if err := row.Scan(&a.ID, &a.DisplayName, &a.BaseURL, &a.Username, &a.PasswordHandle,
		&a.AdvertisedMaxConns, &a.ObservedMaxConns, &lastCheck, &a.Liveness, &a.Active); err != nil {
		return Account{}, err
	}
	a.LastCheck = parseTime(lastCheck)
	return a, nil
}

const accountColumns = `id, display_name, base_url, username, password_handle,
	advertised_max_conns, observed_max_conns, last_check, liveness, active`

// GetAccount fetches a single account by ID.
func (s *Store) GetAccount(id int64) (Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return Account{}, errs.Validation("account not found")
	}
	return a, err
}

// ListAccounts returns every account, active or not, ordered by ID.
func (s *Store) ListAccounts() ([]Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActiveAccounts returns only accounts with active = true.
func (s *Store) ActiveAccounts() ([]Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountColumns + ` FROM accounts WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAccount overwrites the mutable fields of an existing account.
func (s *Store) UpdateAccount(a Account) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE accounts SET
			display_name = ?, base_url = ?, username = ?, password_handle = ?,
			advertised_max_conns = ?, observed_max_conns = ?, last_check = ?,
			liveness = ?, active = ?
			WHERE id = ?`,
			a.DisplayName, a.BaseURL, a.Username, a.PasswordHandle,
			a.AdvertisedMaxConns, a.ObservedMaxConns, formatTime(a.LastCheck),
			a.Liveness, a.Active, a.ID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.Validation("account not found")
		}
		return nil
	})
}

// DeleteAccount removes an account and, via ON DELETE CASCADE, every
// provider stream and mapping that hangs off it.
func (s *Store) DeleteAccount(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM accounts WHERE id = ?`, id)
		return err
	})
}
