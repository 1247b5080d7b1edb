// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kelevkef/kelevkef-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ не найден.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrPetNotFound возвращается, если питомец не найден.
	ErrPetNotFound = errors.New("pet not found")
	// ErrProfileNotFound возвращается, если профиль не найден.
	ErrProfileNotFound = errors.New("profile not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const orderColumns = `id, client_id, executor_id, pet_id, service_type, date, address, details, status, price, rating, inserted_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(&o.ID, &o.ClientID, &o.ExecutorID, &o.PetID, &o.ServiceType,
		&o.Date, &o.Address, &o.Details, &status, &o.PriceCents, &o.Rating, &o.InsertedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// CreateOrder сохраняет новый заказ со статусом pending и возвращает созданную запись.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o model.Order) (*model.Order, error) {
	var created *model.Order

	err := r.withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO orders (id, client_id, executor_id, pet_id, service_type, date, address, details, status, price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING `+orderColumns,
			uuid.NewString(), o.ClientID, o.ExecutorID, o.PetID, o.ServiceType,
			o.Date, o.Address, o.Details, string(model.OrderStatusPending), o.PriceCents,
		)
		var scanErr error
		created, scanErr = scanOrder(row)
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	return created, nil
}

// GetOrderByID возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// UpdateOrderStatus обновляет статус заказа и возвращает обновлённую запись.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 RETURNING `+orderColumns,
		id, string(status),
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return o, nil
}

// UpdateOrderRating сохраняет оценку заказа и возвращает обновлённую запись.
func (r *PostgresRepository) UpdateOrderRating(ctx context.Context, id string, rating int) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders SET rating = $2 WHERE id = $1 RETURNING `+orderColumns,
		id, rating,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order rating: %w", err)
	}

	return o, nil
}

func (r *PostgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// ListOrdersByClient возвращает заказы клиента, отсортированные по дате услуги.
func (r *PostgresRepository) ListOrdersByClient(ctx context.Context, clientID string) ([]model.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE client_id = $1 ORDER BY date ASC`,
		clientID,
	)
}

// ListOrdersByExecutor возвращает заказы исполнителя, отсортированные по дате услуги.
func (r *PostgresRepository) ListOrdersByExecutor(ctx context.Context, executorID string) ([]model.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE executor_id = $1 ORDER BY date ASC`,
		executorID,
	)
}

// ListConfirmedOrdersByClient возвращает подтверждённые заказы клиента
// для расчёта потраченной суммы.
func (r *PostgresRepository) ListConfirmedOrdersByClient(ctx context.Context, clientID string) ([]model.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE client_id = $1 AND status = $2 ORDER BY date ASC`,
		clientID, string(model.OrderStatusConfirmed),
	)
}

// ListConfirmedOrdersByExecutor возвращает подтверждённые заказы исполнителя
// для расчёта заработанной суммы.
func (r *PostgresRepository) ListConfirmedOrdersByExecutor(ctx context.Context, executorID string) ([]model.Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE executor_id = $1 AND status = $2 ORDER BY date ASC`,
		executorID, string(model.OrderStatusConfirmed),
	)
}

// CreateOrderMessage добавляет сообщение в чат заказа.
func (r *PostgresRepository) CreateOrderMessage(ctx context.Context, orderID, senderID, message string) (*model.OrderMessage, error) {
	var m model.OrderMessage

	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO order_messages (id, order_id, sender_id, message)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, order_id, sender_id, message, inserted_at`,
			uuid.NewString(), orderID, senderID, message,
		).Scan(&m.ID, &m.OrderID, &m.SenderID, &m.Message, &m.InsertedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &m, nil
}

// ListOrderMessages возвращает сообщения чата заказа в порядке отправки.
func (r *PostgresRepository) ListOrderMessages(ctx context.Context, orderID string) ([]model.OrderMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, sender_id, message, inserted_at
		 FROM order_messages
		 WHERE order_id = $1
		 ORDER BY inserted_at ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var messages []model.OrderMessage
	for rows.Next() {
		var m model.OrderMessage
		if err := rows.Scan(&m.ID, &m.OrderID, &m.SenderID, &m.Message, &m.InsertedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

const profileColumns = `user_id, full_name, city, about, price_per_walk, latitude, longitude, avatar_url, rating, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(&p.UserID, &p.FullName, &p.City, &p.About, &p.PricePerWalkCents,
		&p.Latitude, &p.Longitude, &p.AvatarURL, &p.Rating, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile создаёт или обновляет профиль пользователя. Одна запись на
// пользователя, ключ — user_id.
func (r *PostgresRepository) UpsertProfile(ctx context.Context, p model.Profile) (*model.Profile, error) {
	var saved *model.Profile

	err := r.withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO profiles (user_id, full_name, city, about, price_per_walk, latitude, longitude, avatar_url, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			 ON CONFLICT (user_id) DO UPDATE SET
			     full_name = EXCLUDED.full_name,
			     city = EXCLUDED.city,
			     about = EXCLUDED.about,
			     price_per_walk = EXCLUDED.price_per_walk,
			     latitude = EXCLUDED.latitude,
			     longitude = EXCLUDED.longitude,
			     avatar_url = COALESCE(EXCLUDED.avatar_url, profiles.avatar_url),
			     updated_at = now()
			 RETURNING `+profileColumns,
			p.UserID, p.FullName, p.City, p.About, p.PricePerWalkCents,
			p.Latitude, p.Longitude, p.AvatarURL,
		)
		var scanErr error
		saved, scanErr = scanProfile(row)
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	return saved, nil
}

// GetProfileByUser возвращает профиль пользователя.
func (r *PostgresRepository) GetProfileByUser(ctx context.Context, userID string) (*model.Profile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return p, nil
}

// ListProfiles возвращает все профили для страницы поиска исполнителей.
func (r *PostgresRepository) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY full_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return profiles, nil
}

const petColumns = `id, owner_id, pet_type, name, age, description, avatar_url, inserted_at`

func scanPet(row pgx.Row) (*model.Pet, error) {
	var p model.Pet
	err := row.Scan(&p.ID, &p.OwnerID, &p.PetType, &p.Name, &p.Age,
		&p.Description, &p.AvatarURL, &p.InsertedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePet сохраняет нового питомца и возвращает созданную запись.
func (r *PostgresRepository) CreatePet(ctx context.Context, p model.Pet) (*model.Pet, error) {
	var created *model.Pet

	err := r.withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO pets (id, owner_id, pet_type, name, age, description)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+petColumns,
			uuid.NewString(), p.OwnerID, p.PetType, p.Name, p.Age, p.Description,
		)
		var scanErr error
		created, scanErr = scanPet(row)
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert pet: %w", err)
	}

	return created, nil
}

// GetPetByID возвращает питомца по идентификатору.
func (r *PostgresRepository) GetPetByID(ctx context.Context, id string) (*model.Pet, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+petColumns+` FROM pets WHERE id = $1`, id)

	p, err := scanPet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("get pet: %w", err)
	}

	return p, nil
}

// ListPetsByOwner возвращает питомцев владельца.
func (r *PostgresRepository) ListPetsByOwner(ctx context.Context, ownerID string) ([]model.Pet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+petColumns+` FROM pets WHERE owner_id = $1 ORDER BY inserted_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select pets: %w", err)
	}
	defer rows.Close()

	var pets []model.Pet
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pet: %w", err)
		}
		pets = append(pets, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return pets, nil
}

// UpdatePet обновляет данные питомца и возвращает обновлённую запись.
func (r *PostgresRepository) UpdatePet(ctx context.Context, p model.Pet) (*model.Pet, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE pets SET pet_type = $2, name = $3, age = $4, description = $5
		 WHERE id = $1
		 RETURNING `+petColumns,
		p.ID, p.PetType, p.Name, p.Age, p.Description,
	)

	updated, err := scanPet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPetNotFound
		}
		return nil, fmt.Errorf("update pet: %w", err)
	}

	return updated, nil
}

// UpdatePetAvatar сохраняет URL аватара питомца.
func (r *PostgresRepository) UpdatePetAvatar(ctx context.Context, id, avatarURL string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE pets SET avatar_url = $2 WHERE id = $1`, id, avatarURL)
	if err != nil {
		return fmt.Errorf("update pet avatar: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPetNotFound
	}
	return nil
}

// DeletePet удаляет питомца.
func (r *PostgresRepository) DeletePet(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM pets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pet: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPetNotFound
	}
	return nil
}
