package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type User struct {
	WalletAddress        string
	Name                 string
	Email                string
	ZipCode              string
	IsGovernmentEmployee bool
}

// Resident is a registered user who receives proposal notices for a ZIP code.
type Resident struct {
	WalletAddress string
	Name          string
	Email         string
}

// UserByWallet returns nil, nil when no profile exists for the wallet.
func (db *DB) UserByWallet(ctx context.Context, wallet string) (*User, error) {
	var u User
	err := db.pool.QueryRow(ctx,
		`SELECT wallet_address, name, email, zip_code, is_government_employee
		 FROM hedera_users WHERE wallet_address = $1`,
		wallet,
	).Scan(&u.WalletAddress, &u.Name, &u.Email, &u.ZipCode, &u.IsGovernmentEmployee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ResidentsByZip lists users with an email address registered under zip.
func (db *DB) ResidentsByZip(ctx context.Context, zip string) ([]Resident, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT wallet_address, name, email FROM hedera_users
		 WHERE zip_code = $1 AND email <> ''
		 ORDER BY wallet_address`,
		zip,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var residents []Resident
	for rows.Next() {
		var r Resident
		if err := rows.Scan(&r.WalletAddress, &r.Name, &r.Email); err != nil {
			return nil, err
		}
		residents = append(residents, r)
	}
	return residents, rows.Err()
}
