package mockbackend

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Wire shapes mirror the production backend: documents carry "_id".

type Category struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

type Subcategory struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type Product struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Images      []string `json:"images,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Stock       int      `json:"stock"`
	Unit        string   `json:"unit,omitempty"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
}

type Banner struct {
	ID       string `json:"_id"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
	Link     string `json:"link,omitempty"`
}

type CartEntry struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Address struct {
	ID          string `json:"_id"`
	Label       string `json:"label"`
	FullAddress string `json:"fullAddress"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
	IsDefault   bool   `json:"isDefault"`
}

type OrderItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Order struct {
	ID             string      `json:"_id"`
	UserID         string      `json:"user"`
	AddressID      string      `json:"addressId"`
	Items          []OrderItem `json:"items"`
	TotalAmount    float64     `json:"totalAmount"`
	PaymentMethod  string      `json:"paymentMethod"`
	PaymentID      string      `json:"paymentId,omitempty"`
	Status         string      `json:"status"`
	IdempotencyKey string      `json:"-"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type Profile struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Gender      string `json:"gender,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Account is a registered user
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
}

var (
	errUserExists         = errors.New("user already exists")
	errInvalidCredentials = errors.New("invalid credentials")
	errNotFound           = errors.New("not found")
)

// Store holds the in-memory backend data.
type Store struct {
	mu            sync.RWMutex
	categories    []Category
	subcategories []Subcategory
	products      []Product
	banners       []Banner
	users         map[string]*Account // by email
	tokens        map[string]string
	carts         map[string][]CartEntry
	cartSaves     map[string][][]CartEntry
	addresses     map[string][]Address
	orders        map[string][]Order
	idempotency   map[string]Order
	profiles      map[string]Profile
	payments      map[string]float64
}

// NewStore initializes an empty Store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]*Account),
		tokens:      make(map[string]string),
		carts:       make(map[string][]CartEntry),
		cartSaves:   make(map[string][][]CartEntry),
		addresses:   make(map[string][]Address),
		orders:      make(map[string][]Order),
		idempotency: make(map[string]Order),
		profiles:    make(map[string]Profile),
		payments:    make(map[string]float64),
	}
}

// NewObjectID returns a 24 hex character id like the production backend's.
func NewObjectID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Seed populates the catalog with a fixed data set. Image references mix
// relative paths, absolute URLs and the imageUrl fallback.
func (s *Store) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.categories = []Category{
		{ID: "cat-fruits", Name: "Fruits & Vegetables", Image: "/uploads/categories/fruits.png"},
		{ID: "cat-dairy", Name: "Dairy & Bakery", Image: "/uploads/categories/dairy.png"},
		{ID: "cat-staples", Name: "Staples", Image: "uploads/categories/staples.png"},
	}
	s.subcategories = []Subcategory{
		{ID: "sub-fresh-fruits", Name: "Fresh Fruits", Category: "cat-fruits"},
		{ID: "sub-vegetables", Name: "Vegetables", Category: "cat-fruits"},
		{ID: "sub-milk", Name: "Milk", Category: "cat-dairy"},
		{ID: "sub-rice", Name: "Rice", Category: "cat-staples"},
	}
	s.products = []Product{
		{ID: "p-apple", Name: "Shimla Apple", Price: 10, Images: []string{"/uploads/products/apple.png"}, Stock: 40, Unit: "1 kg", Category: "cat-fruits", Subcategory: "sub-fresh-fruits"},
		{ID: "p-banana", Name: "Robusta Banana", Price: 5.5, Images: []string{"uploads/products/banana.png"}, Stock: 120, Unit: "6 pcs", Category: "cat-fruits", Subcategory: "sub-fresh-fruits"},
		{ID: "p-tomato", Name: "Tomato", Price: 3.25, ImageURL: "/uploads/products/tomato.png", Stock: 80, Unit: "500 g", Category: "cat-fruits", Subcategory: "sub-vegetables"},
		{ID: "p-milk", Name: "Toned Milk", Price: 2.8, Images: []string{"https://cdn.example.com/milk.png"}, Stock: 30, Unit: "1 L", Category: "cat-dairy", Subcategory: "sub-milk"},
		{ID: "p-bread", Name: "Whole Wheat Bread", Price: 4, Images: []string{"/uploads/products/bread.png", "/uploads/products/bread-2.png"}, Stock: 15, Unit: "400 g", Category: "cat-dairy"},
		{ID: "p-rice", Name: "Basmati Rice", Price: 12.99, Images: []string{"/uploads/products/rice.png"}, Stock: 25, Unit: "5 kg", Category: "cat-staples", Subcategory: "sub-rice"},
	}
	s.banners = []Banner{
		{ID: "b-monsoon", Title: "Monsoon Sale", ImageURL: "/uploads/banners/monsoon.png", Link: "/category/cat-fruits"},
		{ID: "b-dairy", Title: "Fresh Dairy", ImageURL: "https://cdn.example.com/banners/dairy.png"},
	}
}

// AddProduct appends a product to the catalog
func (s *Store) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
}

// RemoveProduct deletes a product from the catalog
func (s *Store) RemoveProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.products[:0]
	for _, p := range s.products {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.products = kept
}

func (s *Store) Categories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Category{}, s.categories...)
}

// SetCategories replaces the category list
func (s *Store) SetCategories(categories []Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]Category(nil), categories...)
}

func (s *Store) Subcategories(categoryID string) []Subcategory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []Subcategory{}
	for _, sub := range s.subcategories {
		if sub.Category == categoryID {
			result = append(result, sub)
		}
	}
	return result
}

// Products returns the catalog, optionally filtered
func (s *Store) Products(filter func(Product) bool) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []Product{}
	for _, p := range s.products {
		if filter == nil || filter(p) {
			result = append(result, p)
		}
	}
	return result
}

func (s *Store) product(id string) (Product, bool) {
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

func (s *Store) Banners() []Banner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Banner{}, s.banners...)
}

// CreateUser registers an account with a bcrypt password hash
func (s *Store) CreateUser(username, email, password string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := s.users[key]; exists {
		return nil, errUserExists
	}
	u := &Account{ID: NewObjectID(), Username: username, Email: email, PasswordHash: hash}
	s.users[key] = u
	return u, nil
}

// Authenticate checks credentials and issues a new token
func (s *Store) Authenticate(email, password string) (string, *Account, error) {
	s.mu.RLock()
	u, ok := s.users[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return "", nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", nil, errInvalidCredentials
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = u.ID
	s.mu.Unlock()
	return token, u, nil
}

// UserForToken resolves a bearer token
func (s *Store) UserForToken(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	return id, ok
}

// RevokeToken invalidates a bearer token
func (s *Store) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Cart returns the saved cart of a user
func (s *Store) Cart(userID string) ([]CartEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[userID]
	return append([]CartEntry{}, cart...), ok
}

// SaveCart replaces the saved cart and records the write
func (s *Store) SaveCart(userID string, cart []CartEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := append([]CartEntry{}, cart...)
	s.carts[userID] = saved
	s.cartSaves[userID] = append(s.cartSaves[userID], saved)
}

// CartSaves returns every cart write received for a user, oldest first
func (s *Store) CartSaves(userID string) [][]CartEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([][]CartEntry(nil), s.cartSaves[userID]...)
}

func (s *Store) Addresses(userID string) []Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Address{}, s.addresses[userID]...)
}

// AddAddress stores an address; a default address clears the flag on others
func (s *Store) AddAddress(userID string, a Address) Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = NewObjectID()
	if a.IsDefault {
		for i := range s.addresses[userID] {
			s.addresses[userID][i].IsDefault = false
		}
	}
	s.addresses[userID] = append(s.addresses[userID], a)
	return a
}

func (s *Store) DeleteAddress(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.addresses[userID]
	for i, a := range list {
		if a.ID == id {
			s.addresses[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

func (s *Store) hasAddress(userID, id string) bool {
	for _, a := range s.addresses[userID] {
		if a.ID == id {
			return true
		}
	}
	return false
}

// PlaceOrder stores an order. A repeated idempotency key returns the order
// created by the first request and created=false.
func (s *Store) PlaceOrder(o Order) (placed Order, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.IdempotencyKey != "" {
		if existing, ok := s.idempotency[o.IdempotencyKey]; ok {
			return existing, false, nil
		}
	}
	if !s.hasAddress(o.UserID, o.AddressID) {
		return Order{}, false, errNotFound
	}

	o.ID = NewObjectID()
	o.Status = "pending"
	o.CreatedAt = time.Now().UTC()
	s.orders[o.UserID] = append([]Order{o}, s.orders[o.UserID]...)
	if o.IdempotencyKey != "" {
		s.idempotency[o.IdempotencyKey] = o
	}
	return o, true, nil
}

func (s *Store) Orders(userID string) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Order{}, s.orders[userID]...)
}

// CreatePayment records a provider payment order of amount
func (s *Store) CreatePayment(amount float64) string {
	id := "order_" + NewObjectID()[:14]
	s.mu.Lock()
	s.payments[id] = amount
	s.mu.Unlock()
	return id
}

func (s *Store) Profile(userID string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok
}

func (s *Store) SaveProfile(userID string, p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = p
}
