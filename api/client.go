// Package api is the typed client for the storefront backend. Every request
// goes through a resilient fetcher; responses are decoded once here so the
// rest of the module only ever sees canonical ids and absolute image URLs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/resilience"
)

// Fetcher issues one logical request with retries. *resilience.FetchClient
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts resilience.FetchOptions) (*resilience.Response, error)
}

// IdempotencyHeader carries the per-attempt checkout key
const IdempotencyHeader = "Idempotency-Key"

// Client talks to the storefront backend. It holds no session state; calls
// that need auth take the bearer token explicitly.
type Client struct {
	fetcher   Fetcher
	baseURL   string
	imageBase string
	logger    core.Logger
}

// Option configures a Client
type Option func(*Client)

// WithImageBaseURL sets the base used to resolve relative image paths.
// Defaults to the API base URL.
func WithImageBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.imageBase = strings.TrimRight(base, "/")
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		c.logger = core.LoggerOrNoOp(logger)
	}
}

// NewClient creates a client for the backend at baseURL
func NewClient(fetcher Fetcher, baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	c := &Client{
		fetcher:   fetcher,
		baseURL:   base,
		imageBase: base,
		logger:    &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string { return c.baseURL }

// ImageBaseURL returns the base used for relative image paths
func (c *Client) ImageBaseURL() string { return c.imageBase }

// CallOption adjusts a single call
type CallOption func(*callOptions)

type callOptions struct {
	onRetry        func(attempt int, err error)
	idempotencyKey string
	timeout        time.Duration
	retries        int
}

// OnRetry registers a callback invoked before every retry of the call
func OnRetry(fn func(attempt int, err error)) CallOption {
	return func(o *callOptions) { o.onRetry = fn }
}

// WithTimeout overrides the per-attempt deadline
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithRetries overrides the total number of attempts
func WithRetries(n int) CallOption {
	return func(o *callOptions) { o.retries = n }
}

// WithIdempotencyKey sends key in the Idempotency-Key header
func WithIdempotencyKey(key string) CallOption {
	return func(o *callOptions) { o.idempotencyKey = key }
}

type request struct {
	op     string
	method string
	path   string
	token  string
	body   interface{}
}

// do performs the request and returns the body of a 2xx response. 4xx
// answers become *APIError; transport failures keep the fetcher's error.
func (c *Client) do(ctx context.Context, r request, opts []CallOption) ([]byte, error) {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if r.token != "" {
		header.Set("Authorization", "Bearer "+r.token)
	}
	if co.idempotencyKey != "" {
		header.Set(IdempotencyHeader, co.idempotencyKey)
	}

	var payload []byte
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, core.NewStoreError(r.op, "encode", fmt.Errorf("failed to marshal request body: %w", err))
		}
		payload = data
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.fetcher.Fetch(ctx, c.baseURL+r.path, resilience.FetchOptions{
		Method:  r.method,
		Header:  header,
		Body:    payload,
		Timeout: co.timeout,
		Retries: co.retries,
		OnRetry: co.onRetry,
	})
	if err != nil {
		return nil, core.NewStoreError(r.op, "network", err)
	}

	if !resp.OK() {
		apiErr := newAPIError(r.op, resp.StatusCode, resp.Body)
		c.logger.Warn("Backend rejected request", map[string]interface{}{
			"operation": r.op,
			"url":       r.path,
			"status":    resp.StatusCode,
			"error":     apiErr.Message,
		})
		return nil, apiErr
	}
	return resp.Body, nil
}

func decodeError(op string, err error) error {
	return core.NewStoreError(op, "decode", fmt.Errorf("%w: %v", core.ErrDecode, err))
}

// decodeList accepts either a bare JSON array or an object holding the array
// under the first present key. A missing array decodes to an empty slice.
func decodeList[T any](body []byte, keys ...string) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	items := []T{}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	for _, key := range keys {
		raw, ok := envelope[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return items, nil
}

// Categories lists product categories
func (c *Client) Categories(ctx context.Context, opts ...CallOption) ([]Category, error) {
	const op = "api.Categories"
	body, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/api/categories"}, opts)
	if err != nil {
		return nil, err
	}
	categories, err := decodeList[Category](body, "categories", "data")
	if err != nil {
		return nil, decodeError(op, err)
	}
	for i := range categories {
		categories[i].Image = ResolveImageURL(c.imageBase, categories[i].Image)
	}
	return categories, nil
}

// Products fetches the full catalog
func (c *Client) Products(ctx context.Context, opts ...CallOption) ([]Product, error) {
	return c.products(ctx, "api.Products", "/api/products", opts)
}

// ProductsByCategory fetches the catalog filtered by category
func (c *Client) ProductsByCategory(ctx context.Context, categoryID string, opts ...CallOption) ([]Product, error) {
	return c.products(ctx, "api.ProductsByCategory", "/api/products/category/"+url.PathEscape(categoryID), opts)
}

// ProductsBySubcategory fetches the catalog filtered by subcategory
func (c *Client) ProductsBySubcategory(ctx context.Context, subcategoryID string, opts ...CallOption) ([]Product, error) {
	return c.products(ctx, "api.ProductsBySubcategory", "/api/products/subcategory/"+url.PathEscape(subcategoryID), opts)
}

func (c *Client) products(ctx context.Context, op, path string, opts []CallOption) ([]Product, error) {
	body, err := c.do(ctx, request{op: op, method: http.MethodGet, path: path}, opts)
	if err != nil {
		return nil, err
	}
	products, err := decodeList[Product](body, "products", "data")
	if err != nil {
		return nil, decodeError(op, err)
	}
	for i := range products {
		products[i].ResolveImage(c.imageBase)
	}
	return products, nil
}

// Subcategories lists the subcategories of a category
func (c *Client) Subcategories(ctx context.Context, categoryID string, opts ...CallOption) ([]Subcategory, error) {
	const op = "api.Subcategories"
	body, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/api/subcategories/category/" + url.PathEscape(categoryID)}, opts)
	if err != nil {
		return nil, err
	}
	subs, err := decodeList[Subcategory](body, "subcategories", "data")
	if err != nil {
		return nil, decodeError(op, err)
	}
	for i := range subs {
		subs[i].Image = ResolveImageURL(c.imageBase, subs[i].Image)
	}
	return subs, nil
}

// Banners lists promotional banners with absolute image URLs
func (c *Client) Banners(ctx context.Context, opts ...CallOption) ([]Banner, error) {
	const op = "api.Banners"
	body, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/api/banners"}, opts)
	if err != nil {
		return nil, err
	}
	banners, err := decodeList[Banner](body, "banners", "data")
	if err != nil {
		return nil, decodeError(op, err)
	}
	for i := range banners {
		banners[i].ImageURL = ResolveImageURL(c.imageBase, banners[i].ImageURL)
	}
	return banners, nil
}

// LoginResult is the token and account returned by a successful login
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login exchanges credentials for a bearer token
func (c *Client) Login(ctx context.Context, email, password string, opts ...CallOption) (*LoginResult, error) {
	const op = "api.Login"
	body, err := c.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, opts)
	if err != nil {
		return nil, err
	}
	var result LoginResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError(op, err)
	}
	if result.Token == "" || result.User.ID == "" {
		return nil, decodeError(op, fmt.Errorf("login response without token or user id"))
	}
	return &result, nil
}

// Signup registers an account. It does not log in.
func (c *Client) Signup(ctx context.Context, username, email, password string, opts ...CallOption) (*User, error) {
	const op = "api.Signup"
	body, err := c.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/api/auth/signup",
		body:   map[string]string{"username": username, "email": email, "password": password},
	}, opts)
	if err != nil {
		return nil, err
	}
	var result struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError(op, err)
	}
	return &result.User, nil
}

// Logout invalidates the token on the server
func (c *Client) Logout(ctx context.Context, token string, opts ...CallOption) error {
	_, err := c.do(ctx, request{op: "api.Logout", method: http.MethodPost, path: "/api/auth/logout", token: token}, opts)
	return err
}

// Cart fetches the persisted cart of userID. A user without a saved cart
// (404) has an empty cart.
func (c *Client) Cart(ctx context.Context, token, userID string, opts ...CallOption) ([]CartEntry, error) {
	const op = "api.Cart"
	body, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/api/cart/" + url.PathEscape(userID), token: token}, opts)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return []CartEntry{}, nil
		}
		return nil, err
	}
	entries, err := decodeList[CartEntry](body, "cart", "items")
	if err != nil {
		return nil, decodeError(op, err)
	}
	return entries, nil
}

// SaveCart replaces the persisted cart of userID with entries
func (c *Client) SaveCart(ctx context.Context, token, userID string, entries []CartEntry, opts ...CallOption) error {
	if entries == nil {
		entries = []CartEntry{}
	}
	_, err := c.do(ctx, request{
		op:     "api.SaveCart",
		method: http.MethodPost,
		path:   "/api/cart/save",
		token:  token,
		body: struct {
			UserID string      `json:"userId"`
			Cart   []CartEntry `json:"cart"`
		}{UserID: userID, Cart: entries},
	}, opts)
	return err
}

// Addresses lists the saved delivery addresses
func (c *Client) Addresses(ctx context.Context, token string, opts ...CallOption) ([]Address, error) {
	const op = "api.Addresses"
	body, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/api/address", token: token}, opts)
	if err != nil {
		return nil, err
	}
	addresses, err := decodeList[Address](body, "addresses", "data")
	if err != nil {
		return nil, decodeError(op, err)
	}
	return addresses, nil
}

// Validate checks the fields the backend requires. Label defaults to Home.
func (in *AddressInput) Validate() error {
	var missing []string
	for name, value := range map[string]string{
		"fullAddress": in.FullAddress,
		"city":        in.City,
		"state":       in.State,
		"pincode":     in.Pincode,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &core.StoreError{
			Op:      "api.AddAddress",
			Kind:    "validation",
			Message: "missing required fields: " + strings.Join(missing, ", "),
			Err:     core.ErrInvalidInput,
		}
	}
	if strings.TrimSpace(in.Label) == "" {
		in.Label = "Home"
	}
	return nil
}

// AddAddress saves a delivery address after validating required fields
func (c *Client) AddAddress(ctx context.Context, token string, in AddressInput, opts ...CallOption) (*Address, error) {
	const op = "api.AddAddress"
	if err := in.Validate(); err != nil {
		return nil, err
	}
	body, err := c.do(ctx, request{op: op, method: http.MethodPost, path: "/api/address", token: token, body: in}, opts)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Address *Address `json:"address"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, decodeError(op, err)
	}
	if envelope.Address != nil {
		return envelope.Address, nil
	}
	var addr Address
	if err := json.Unmarshal(body, &addr); err != nil {
		return nil, decodeError(op, err)
	}
	return &addr, nil
}

// DeleteAddress removes a saved address
func (c *Client) DeleteAddress(ctx context.Context, token, id string, opts ...CallOption) error {
	_, err := c.do(ctx, request{op: "api.DeleteAddress", method: http.MethodDelete, path: "/api/address/" + url.PathEscape(id), token: token}, opts)
	return err
}

// PlaceOrder creates an order. It is attempted exactly once; the idempotency
// key, when set, is sent both as a header and in the body.
func (c *Client) PlaceOrder(ctx context.Context, token string, order OrderRequest, opts ...CallOption) (*PlacedOrder, error) {
	const op = "api.PlaceOrder"
	opts = append(opts, WithRetries(1))
	if order.IdempotencyKey != "" {
		opts = append(opts, WithIdempotencyKey(order.IdempotencyKey))
	}
	body, err := c.do(ctx, request{op: op, method: http.MethodPost, path: "/api/order", token: token, body: order}, opts)
	if err != nil {
		return nil, err
	}
	var result struct {
		Order *struct {
			MongoID Ref `json:"_id"`
			ID      Ref `json:"id"`
		} `json:"order"`
		MongoID Ref `json:"_id"`
		OrderID Ref `json:"orderId"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError(op, err)
	}
	placed := &PlacedOrder{}
	switch {
	case result.Order != nil && pickID(result.Order.MongoID, result.Order.ID) != "":
		placed.ID = string(pickID(result.Order.MongoID, result.Order.ID))
	case result.MongoID != "":
		placed.ID = string(result.MongoID)
	default:
		placed.ID = string(result.OrderID)
	}
	return placed, nil
}

// Orders lists the user's orders, newest first as the backend returns them
func (c *Client) Orders(ctx context.Context, token string, opts ...CallOption) ([]Order, error) {
	const op = "api.Orders"
	body, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/api/order/my", token: token}, opts)
	if err != nil {
		return nil, err
	}
	orders, err := decodeList[Order](body, "orders", "data")
	if err != nil {
		return nil, decodeError(op, err)
	}
	for i := range orders {
		for j := range orders[i].Items {
			orders[i].Items[j].Image = ResolveImageURL(c.imageBase, orders[i].Items[j].Image)
		}
	}
	return orders, nil
}

// CreatePayment asks the backend for a provider payment order of amount.
// Like order creation it is never retried.
func (c *Client) CreatePayment(ctx context.Context, token string, amount float64, opts ...CallOption) (*PaymentIntent, error) {
	const op = "api.CreatePayment"
	opts = append(opts, WithRetries(1))
	body, err := c.do(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/api/payment/order",
		token:  token,
		body:   map[string]float64{"amount": amount},
	}, opts)
	if err != nil {
		return nil, err
	}
	var result struct {
		PaymentIntent
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, decodeError(op, err)
	}
	if result.Error != "" || result.ID == "" {
		msg := result.Error
		if msg == "" {
			msg = "payment order without id"
		}
		return nil, &APIError{Op: op, Status: http.StatusBadGateway, Message: msg}
	}
	return &result.PaymentIntent, nil
}

// Profile reads the user's profile. found is false when none exists yet.
func (c *Client) Profile(ctx context.Context, token string, opts ...CallOption) (profile *Profile, found bool, err error) {
	const op = "api.Profile"
	body, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/api/profile/my", token: token}, opts)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return &Profile{}, false, nil
		}
		return nil, false, err
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, false, decodeError(op, err)
	}
	p.Avatar = ResolveImageURL(c.imageBase, p.Avatar)
	return &p, true, nil
}

// SaveProfile writes the profile; full name and email are required
func (c *Client) SaveProfile(ctx context.Context, token string, p Profile, opts ...CallOption) error {
	const op = "api.SaveProfile"
	if strings.TrimSpace(p.FullName) == "" || strings.TrimSpace(p.Email) == "" {
		return &core.StoreError{Op: op, Kind: "validation", Message: "name and email are required", Err: core.ErrInvalidInput}
	}
	_, err := c.do(ctx, request{op: op, method: http.MethodPost, path: "/api/profile", token: token, body: p}, opts)
	return err
}
