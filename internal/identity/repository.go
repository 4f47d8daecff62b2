package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrExists   = errors.New("user exists")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	// UpdatePIN stores a new hash and bumps the token version, returning the new version.
	UpdatePIN(ctx context.Context, id string, hash []byte) (int, error)
	UpdateTokenVersion(ctx context.Context, id string) (int, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectUser = `SELECT id, phone, pin_hash, token_version, created_at, last_login FROM users`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone, pin_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5)`, userID, user.Phone, user.PINHash, user.TokenVersion, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// FindByPhone fetches a user by E.164 phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.scan(r.db.QueryRow(ctx, selectUser+` WHERE phone = $1`, phone))
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return r.scan(r.db.QueryRow(ctx, selectUser+` WHERE id = $1`, userID))
}

func (r *PostgresRepository) UpdatePIN(ctx context.Context, id string, hash []byte) (int, error) {
	return r.returningVersion(ctx, `UPDATE users SET pin_hash = $1, token_version = token_version + 1
        WHERE id = $2 RETURNING token_version`, hash, id)
}

func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string) (int, error) {
	return r.returningVersion(ctx, `UPDATE users SET token_version = token_version + 1
        WHERE id = $1 RETURNING token_version`, id)
}

func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) returningVersion(ctx context.Context, query string, args ...any) (int, error) {
	id, ok := args[len(args)-1].(string)
	if !ok {
		return 0, ErrNotFound
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return 0, ErrNotFound
	}
	args[len(args)-1] = userID
	var version int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

func (r *PostgresRepository) scan(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		lastLogin *time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Phone, &user.PINHash, &user.TokenVersion, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	if lastLogin != nil {
		t := lastLogin.UTC()
		user.LastLogin = &t
	}
	return user, nil
}
