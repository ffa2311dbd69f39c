package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cigarmanager/backend/internal/domain"
	"cigarmanager/backend/internal/store"
	"cigarmanager/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, brand, name, country, vitole, cape, sous_cape, tripe, force, stock, price, supplier`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Brand, &p.Name, &p.Country, &p.Vitole, &p.Cape, &p.SousCape, &p.Tripe, &p.Force, &p.Stock, &p.Price, &p.Supplier)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR brand = $1)
			AND ($2 = '' OR country = $2)
			AND ($3 = '' OR supplier = $3)
		ORDER BY id
	`, filter.Brand, filter.Country, filter.Supplier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Brand) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (brand, name, country, vitole, cape, sous_cape, tripe, force, stock, price, supplier, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		RETURNING id
	`, product.Brand, product.Name, product.Country, product.Vitole, product.Cape, product.SousCape, product.Tripe, product.Force, product.Stock, product.Price, product.Supplier).Scan(&product.ID)
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Brand) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET brand = $2, name = $3, country = $4, vitole = $5, cape = $6, sous_cape = $7,
			tripe = $8, force = $9, stock = $10, price = $11, supplier = $12, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Brand, product.Name, product.Country, product.Vitole, product.Cape, product.SousCape, product.Tripe, product.Force, product.Stock, product.Price, product.Supplier)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) UpdateProductStock(ctx context.Context, id int64, stock int) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns+`
	`, id, stock))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllProducts(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products`)
	return err
}

func (s *Store) ResetAllStock(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE products SET stock = 0, updated_at = now()`)
	return err
}

func (s *Store) PutProduct(ctx context.Context, product domain.Product) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if product.ID == 0 {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO products (brand, name, country, vitole, cape, sous_cape, tripe, force, stock, price, supplier, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
			RETURNING id
		`, product.Brand, product.Name, product.Country, product.Vitole, product.Cape, product.SousCape, product.Tripe, product.Force, product.Stock, product.Price, product.Supplier).Scan(&product.ID)
		if err != nil {
			return err
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (id, brand, name, country, vitole, cape, sous_cape, tripe, force, stock, price, supplier, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (id) DO UPDATE SET
				brand = EXCLUDED.brand, name = EXCLUDED.name, country = EXCLUDED.country,
				vitole = EXCLUDED.vitole, cape = EXCLUDED.cape, sous_cape = EXCLUDED.sous_cape,
				tripe = EXCLUDED.tripe, force = EXCLUDED.force, stock = EXCLUDED.stock,
				price = EXCLUDED.price, supplier = EXCLUDED.supplier, updated_at = now()
		`, product.ID, product.Brand, product.Name, product.Country, product.Vitole, product.Cape, product.SousCape, product.Tripe, product.Force, product.Stock, product.Price, product.Supplier)
		if err != nil {
			return err
		}
		// Keep the id sequence ahead of imported ids.
		_, err = tx.ExecContext(ctx, `
			SELECT setval(pg_get_serial_sequence('products', 'id'), GREATEST((SELECT MAX(id) FROM products), 1))
		`)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) AppendSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	sale.Timestamp = time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (date, ts_millis, total, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id
	`, sale.Date, sale.Timestamp, sale.Total).Scan(&sale.ID)
	if err != nil {
		return nil, err
	}

	if err := insertSaleItems(ctx, tx, sale.ID, sale.Items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func insertSaleItems(ctx context.Context, tx *sql.Tx, saleID int64, items []domain.SaleLineItem) error {
	for position, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, position, product_id, product_name, product_brand, quantity, price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, saleID, position, item.ProductID, item.ProductName, item.ProductBrand, item.Quantity, item.Price, item.Subtotal)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	sales, err := s.querySales(ctx, `WHERE s.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, ``)
}

func (s *Store) ListSalesByRange(ctx context.Context, startMillis int64, endMillis int64) ([]domain.Sale, error) {
	return s.querySales(ctx, `WHERE s.ts_millis >= $1 AND s.ts_millis <= $2`, startMillis, endMillis)
}

func (s *Store) GetLastSale(ctx context.Context) (*domain.Sale, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sales ORDER BY ts_millis DESC, id DESC LIMIT 1
	`).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.GetSaleByID(ctx, id)
}

// querySales loads sales with their line items in one join, grouped in
// order of (ts_millis, id, item position).
func (s *Store) querySales(ctx context.Context, where string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.date, s.ts_millis, s.total,
			i.product_id, i.product_name, i.product_brand, i.quantity, i.price, i.subtotal
		FROM sales s
		LEFT JOIN sale_items i ON i.sale_id = s.id
		`+where+`
		ORDER BY s.ts_millis, s.id, i.position
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	index := make(map[int64]int)
	for rows.Next() {
		var sale domain.Sale
		var productID sql.NullInt64
		var productName, productBrand sql.NullString
		var quantity sql.NullInt64
		var price, subtotal sql.NullFloat64
		if err := rows.Scan(&sale.ID, &sale.Date, &sale.Timestamp, &sale.Total,
			&productID, &productName, &productBrand, &quantity, &price, &subtotal); err != nil {
			return nil, err
		}

		pos, seen := index[sale.ID]
		if !seen {
			sale.Date = sale.Date.UTC()
			sale.Items = []domain.SaleLineItem{}
			index[sale.ID] = len(sales)
			sales = append(sales, sale)
			pos = index[sale.ID]
		}
		if productID.Valid {
			sales[pos].Items = append(sales[pos].Items, domain.SaleLineItem{
				ProductID:    productID.Int64,
				ProductName:  productName.String,
				ProductBrand: productBrand.String,
				Quantity:     int(quantity.Int64),
				Price:        price.Float64,
				Subtotal:     subtotal.Float64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) DeleteAllSales(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) PutSale(ctx context.Context, sale domain.Sale) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if sale.ID == 0 {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO sales (date, ts_millis, total, created_at)
			VALUES ($1,$2,$3,now())
			RETURNING id
		`, sale.Date, sale.Timestamp, sale.Total).Scan(&sale.ID)
		if err != nil {
			return err
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales (id, date, ts_millis, total, created_at)
			VALUES ($1,$2,$3,$4,now())
			ON CONFLICT (id) DO UPDATE SET
				date = EXCLUDED.date, ts_millis = EXCLUDED.ts_millis, total = EXCLUDED.total
		`, sale.ID, sale.Date, sale.Timestamp, sale.Total)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			SELECT setval(pg_get_serial_sequence('sales', 'id'), GREATEST((SELECT MAX(id) FROM sales), 1))
		`)
		if err != nil {
			return err
		}
	}

	if err := insertSaleItems(ctx, tx, sale.ID, sale.Items); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
