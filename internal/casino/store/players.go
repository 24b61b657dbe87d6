package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

type PlayerStore struct {
	db *pgxpool.Pool
}

func NewPlayerStore(db *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{db: db}
}

func (s *PlayerStore) FindPlayer(ctx context.Context, username string) (*models.Account, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, username, password_hash, initial_balance, status, created_at, updated_at
        FROM players
        WHERE username = $1
    `, username)

	a := &models.Account{}
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.InitialBalance,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find player %s: %w", username, err)
	}

	return a, nil
}

func (s *PlayerStore) CreatePlayer(ctx context.Context, username, password string, initial decimal.Decimal) (*models.Account, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	a := &models.Account{
		ID:             uuid.New().String(),
		Username:       username,
		PasswordHash:   hash,
		InitialBalance: initial,
		Status:         "ACTIVE",
	}

	query := `
        INSERT INTO players (id, username, password_hash, initial_balance, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at;
    `
	err = s.db.QueryRow(ctx, query, a.ID, a.Username, a.PasswordHash, a.InitialBalance, a.Status).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ledger.ErrPlayerExists
		}
		return nil, fmt.Errorf("could not create player: %w", err)
	}

	return a, nil
}

// MemoryAccounts is an AccountStore for processes running without postgres.
// Its accounts are saved with the engine snapshot.
type MemoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	now      func() time.Time
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]models.Account), now: time.Now}
}

func (m *MemoryAccounts) FindPlayer(_ context.Context, username string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryAccounts) CreatePlayer(_ context.Context, username, password string, initial decimal.Decimal) (*models.Account, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[username]; ok {
		return nil, ledger.ErrPlayerExists
	}
	now := m.now()
	a := models.Account{
		ID:             uuid.New().String(),
		Username:       username,
		PasswordHash:   hash,
		InitialBalance: initial,
		Status:         "ACTIVE",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.accounts[username] = a
	return &a, nil
}

// Accounts lists every account, password hash included, by username.
func (m *MemoryAccounts) Accounts() []models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// RestoreAccounts installs saved accounts over any with the same username.
func (m *MemoryAccounts) RestoreAccounts(accounts []models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range accounts {
		m.accounts[a.Username] = a
	}
}
