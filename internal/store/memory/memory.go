package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cigarmanager/backend/internal/domain"
	"cigarmanager/backend/internal/store"
	"cigarmanager/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	sales           map[int64]domain.Sale
	nextProductID   int64
	nextSaleID      int64
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"seller", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:        make(map[int64]domain.Product),
		sales:           make(map[int64]domain.Sale),
		nextProductID:   1,
		nextSaleID:      1,
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()

	catalog := []domain.Product{
		{Brand: "Cohiba", Name: "Robustos", Country: "Cuba", Vitole: "Robusto", Cape: "Habano", SousCape: "Cuba", Tripe: "Cuba", Force: 4, Stock: 25, Price: 28.50, Supplier: "Coprova"},
		{Brand: "Montecristo", Name: "No. 2", Country: "Cuba", Vitole: "Torpedo", Cape: "Habano", SousCape: "Cuba", Tripe: "Cuba", Force: 4, Stock: 30, Price: 19.90, Supplier: "Coprova"},
		{Brand: "Partagás", Name: "Serie D No. 4", Country: "Cuba", Vitole: "Robusto", Cape: "Habano", SousCape: "Cuba", Tripe: "Cuba", Force: 5, Stock: 40, Price: 16.80, Supplier: "Coprova"},
		{Brand: "Romeo y Julieta", Name: "Churchill", Country: "Cuba", Vitole: "Churchill", Cape: "Colorado", SousCape: "Cuba", Tripe: "Cuba", Force: 3, Stock: 18, Price: 22.40, Supplier: "Coprova"},
		{Brand: "Hoyo de Monterrey", Name: "Epicure No. 2", Country: "Cuba", Vitole: "Robusto", Cape: "Colorado Claro", SousCape: "Cuba", Tripe: "Cuba", Force: 2, Stock: 22, Price: 17.60, Supplier: "Coprova"},
		{Brand: "Arturo Fuente", Name: "Opus X Reserva", Country: "République Dominicaine", Vitole: "Toro", Cape: "Rosado", SousCape: "République Dominicaine", Tripe: "République Dominicaine", Force: 5, Stock: 8, Price: 42.00, Supplier: "La Couronne"},
		{Brand: "Davidoff", Name: "Grand Cru No. 3", Country: "République Dominicaine", Vitole: "Corona", Cape: "Connecticut", SousCape: "République Dominicaine", Tripe: "République Dominicaine", Force: 2, Stock: 35, Price: 18.20, Supplier: "Oettinger"},
		{Brand: "Padrón", Name: "1964 Anniversary", Country: "Nicaragua", Vitole: "Toro", Cape: "Maduro", SousCape: "Nicaragua", Tripe: "Nicaragua", Force: 4, Stock: 12, Price: 24.90, Supplier: "La Couronne"},
		{Brand: "Oliva", Name: "Serie V Melanio", Country: "Nicaragua", Vitole: "Figurado", Cape: "Sumatra", SousCape: "Nicaragua", Tripe: "Nicaragua", Force: 4, Stock: 20, Price: 14.50, Supplier: "La Couronne"},
		{Brand: "Flor de Selva", Name: "Maduro Robusto", Country: "Honduras", Vitole: "Robusto", Cape: "Maduro", SousCape: "Honduras", Tripe: "Honduras", Force: 3, Stock: 28, Price: 9.80, Supplier: "Maya Selva"},
		{Brand: "Villiger", Name: "Export Pressé", Country: "Suisse", Vitole: "Cigarillo", Cape: "Sumatra", SousCape: "Indonésie", Tripe: "Mélange", Force: 1, Stock: 60, Price: 6.40, Supplier: "Villiger France"},
	}

	for _, p := range catalog {
		p.ID = s.nextProductID
		s.nextProductID++
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Brand != "" && p.Brand != filter.Brand {
			continue
		}
		if filter.Country != "" && p.Country != filter.Country {
			continue
		}
		if filter.Supplier != "" && p.Supplier != filter.Supplier {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpInt64(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Brand) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrValidation
	}

	product.ID = s.nextProductID
	s.nextProductID++
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Brand) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) UpdateProductStock(_ context.Context, id int64, stock int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Stock = stock
	s.products[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) DeleteAllProducts(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = make(map[int64]domain.Product)
	return nil
}

func (s *Store) ResetAllStock(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.products {
		p.Stock = 0
		s.products[id] = p
	}
	return nil
}

// PutProduct inserts a record keeping its caller-assigned ID. Used by the
// import path, which replays previously exported data verbatim.
func (s *Store) PutProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == 0 {
		product.ID = s.nextProductID
	}
	if product.ID >= s.nextProductID {
		s.nextProductID = product.ID + 1
	}
	s.products[product.ID] = product
	return nil
}

func (s *Store) AppendSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale.ID = s.nextSaleID
	s.nextSaleID++
	sale.Timestamp = time.Now().UnixMilli()
	s.sales[sale.ID] = sale
	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := sale
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return cmpInt64(a.ID, b.ID)
	})
	return sales, nil
}

func (s *Store) ListSalesByRange(_ context.Context, startMillis int64, endMillis int64) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.Timestamp < startMillis || sale.Timestamp > endMillis {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.Timestamp == b.Timestamp {
			return cmpInt64(a.ID, b.ID)
		}
		return cmpInt64(a.Timestamp, b.Timestamp)
	})
	return sales, nil
}

func (s *Store) GetLastSale(_ context.Context) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.Sale
	for id := range s.sales {
		sale := s.sales[id]
		if last == nil || sale.Timestamp > last.Timestamp ||
			(sale.Timestamp == last.Timestamp && sale.ID > last.ID) {
			copySale := sale
			last = &copySale
		}
	}
	if last == nil {
		return nil, store.ErrNotFound
	}
	return last, nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) DeleteAllSales(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sales = make(map[int64]domain.Sale)
	return nil
}

// PutSale inserts a record keeping its caller-assigned ID and timestamp.
func (s *Store) PutSale(_ context.Context, sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == 0 {
		sale.ID = s.nextSaleID
	}
	if sale.ID >= s.nextSaleID {
		s.nextSaleID = sale.ID + 1
	}
	s.sales[sale.ID] = sale
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || entry.CreatedAt.After(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	return strings.Compare(a, b)
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
