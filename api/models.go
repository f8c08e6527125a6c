package api

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Ref is an identifier that the backend sends either as a plain string or as
// a populated document carrying "_id" or "id". It always decodes to the id.
type Ref string

// UnmarshalJSON accepts "abc", 123, {"_id":"abc"} and {"id":"abc"}.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(s)
	case '{':
		var doc struct {
			MongoID Ref `json:"_id"`
			ID      Ref `json:"id"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		*r = pickID(doc.MongoID, doc.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*r = Ref(n.String())
	}
	return nil
}

func pickID(mongoID, id Ref) Ref {
	if mongoID != "" {
		return mongoID
	}
	return id
}

// Product is a catalog entry. Image is the absolute URL of the first image
// reference, filled in by the client after decoding.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Images      []string `json:"images,omitempty"`
	Image       string   `json:"image,omitempty"`
	Stock       *int     `json:"stock,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	CategoryID  string   `json:"categoryId,omitempty"`

	rawImage string
}

// UnmarshalJSON normalizes the backend's product shapes: "_id" or "id", a
// populated or bare category, and the images/imageUrl/image fallbacks.
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID     Ref       `json:"_id"`
		ID          Ref       `json:"id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Price       flexFloat `json:"price"`
		Images      []string  `json:"images"`
		ImageURL    string    `json:"imageUrl"`
		Image       string    `json:"image"`
		Stock       *int      `json:"stock"`
		Unit        string    `json:"unit"`
		Weight      string    `json:"weight"`
		Rating      *float64  `json:"rating"`
		Category    Ref       `json:"category"`
		CategoryID  Ref       `json:"categoryId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Product{
		ID:          string(pickID(raw.MongoID, raw.ID)),
		Name:        raw.Name,
		Description: raw.Description,
		Price:       float64(raw.Price),
		Images:      raw.Images,
		Stock:       raw.Stock,
		Unit:        raw.Unit,
		Rating:      raw.Rating,
		CategoryID:  string(pickID(raw.CategoryID, raw.Category)),
	}
	if p.Unit == "" {
		p.Unit = raw.Weight
	}
	switch {
	case len(raw.Images) > 0 && raw.Images[0] != "":
		p.rawImage = raw.Images[0]
	case raw.ImageURL != "":
		p.rawImage = raw.ImageURL
	default:
		p.rawImage = raw.Image
	}
	return nil
}

// ResolveImage sets Image from the first raw image reference
func (p *Product) ResolveImage(base string) {
	if p.rawImage == "" {
		p.rawImage = p.Image
	}
	p.Image = ResolveImageURL(base, p.rawImage)
}

// flexFloat accepts numbers and numeric strings
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// Category groups products on the home screen
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID Ref    `json:"_id"`
		ID      Ref    `json:"id"`
		Name    string `json:"name"`
		Image   string `json:"image"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Category{ID: string(pickID(raw.MongoID, raw.ID)), Name: raw.Name, Image: raw.Image}
	return nil
}

// Subcategory belongs to one category
type Subcategory struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"categoryId,omitempty"`
	Image      string `json:"image,omitempty"`
}

func (s *Subcategory) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID  Ref    `json:"_id"`
		ID       Ref    `json:"id"`
		Name     string `json:"name"`
		Category Ref    `json:"category"`
		Image    string `json:"image"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Subcategory{
		ID:         string(pickID(raw.MongoID, raw.ID)),
		Name:       raw.Name,
		CategoryID: string(raw.Category),
		Image:      raw.Image,
	}
	return nil
}

// Banner is a promotional poster; ImageURL is absolute after decoding
type Banner struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	ImageURL string `json:"imageUrl"`
	Link     string `json:"link,omitempty"`
}

func (b *Banner) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID  Ref    `json:"_id"`
		ID       Ref    `json:"id"`
		Title    string `json:"title"`
		ImageURL string `json:"imageUrl"`
		Image    string `json:"image"`
		Link     string `json:"link"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Banner{ID: string(pickID(raw.MongoID, raw.ID)), Title: raw.Title, ImageURL: raw.ImageURL, Link: raw.Link}
	if b.ImageURL == "" {
		b.ImageURL = raw.Image
	}
	return nil
}

// User is the authenticated account as returned by login and persisted
// under the userData key.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID  Ref    `json:"_id"`
		ID       Ref    `json:"id"`
		Username string `json:"username"`
		Name     string `json:"name"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User{ID: string(pickID(raw.MongoID, raw.ID)), Username: raw.Username, Email: raw.Email}
	if u.Username == "" {
		u.Username = raw.Name
	}
	return nil
}

// CartEntry is the wire form of a cart line: the id and quantity only
type CartEntry struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (e *CartEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProductID Ref `json:"productId"`
		Quantity  int `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = CartEntry{ProductID: string(raw.ProductID), Quantity: raw.Quantity}
	return nil
}

// Address is a saved delivery address
type Address struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	FullAddress string `json:"fullAddress"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
	IsDefault   bool   `json:"isDefault"`
}

func (a *Address) UnmarshalJSON(data []byte) error {
	type plain Address
	var raw struct {
		plain
		MongoID Ref `json:"_id"`
		ID      Ref `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Address(raw.plain)
	a.ID = string(pickID(raw.MongoID, raw.ID))
	return nil
}

// AddressInput is the body of an address create request
type AddressInput struct {
	Label       string `json:"label"`
	FullAddress string `json:"fullAddress"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
	IsDefault   bool   `json:"isDefault"`
}

// Payment methods accepted by the order endpoint
const (
	PaymentCashOnDelivery = "cash_on_delivery"
	PaymentOnline         = "online"
)

// OrderItem is one line of an order request or of a listed order
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Image     string  `json:"image,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// UnmarshalJSON handles listed orders where productId is a populated product
func (i *OrderItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProductID json.RawMessage `json:"productId"`
		Name      string          `json:"name"`
		Quantity  int             `json:"quantity"`
		Price     flexFloat       `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = OrderItem{Name: raw.Name, Quantity: raw.Quantity, Price: float64(raw.Price)}

	trimmed := bytes.TrimSpace(raw.ProductID)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p Product
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return err
		}
		i.ProductID = p.ID
		if i.Name == "" {
			i.Name = p.Name
		}
		i.Image = p.rawImage
		return nil
	}
	var ref Ref
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return err
		}
	}
	i.ProductID = string(ref)
	return nil
}

// OrderRequest is the body of POST /api/order
type OrderRequest struct {
	AddressID      string      `json:"addressId"`
	Items          []OrderItem `json:"items"`
	TotalAmount    float64     `json:"totalAmount"`
	PaymentMethod  string      `json:"paymentMethod"`
	PaymentID      string      `json:"paymentId,omitempty"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
}

// Order is a placed order as listed by GET /api/order/my
type Order struct {
	ID            string      `json:"id"`
	Items         []OrderItem `json:"items"`
	TotalAmount   float64     `json:"totalAmount"`
	Status        string      `json:"status,omitempty"`
	PaymentMethod string      `json:"paymentMethod,omitempty"`
	CreatedAt     string      `json:"createdAt,omitempty"`
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var raw struct {
		MongoID       Ref         `json:"_id"`
		ID            Ref         `json:"id"`
		OrderID       Ref         `json:"orderId"`
		Items         []OrderItem `json:"items"`
		TotalAmount   flexFloat   `json:"totalAmount"`
		Status        string      `json:"status"`
		PaymentMethod string      `json:"paymentMethod"`
		CreatedAt     string      `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Order{
		ID:            string(pickID(pickID(raw.MongoID, raw.ID), raw.OrderID)),
		Items:         raw.Items,
		TotalAmount:   float64(raw.TotalAmount),
		Status:        raw.Status,
		PaymentMethod: raw.PaymentMethod,
		CreatedAt:     raw.CreatedAt,
	}
	return nil
}

// PlacedOrder is the result of a successful order creation
type PlacedOrder struct {
	ID string `json:"id"`
}

// ShortID is the last six characters of the order id, or "placed" when the
// backend did not return one.
func (p PlacedOrder) ShortID() string {
	if p.ID == "" {
		return "placed"
	}
	if len(p.ID) <= 6 {
		return p.ID
	}
	return p.ID[len(p.ID)-6:]
}

// PaymentIntent is a provider-side payment order
type PaymentIntent struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Profile is the user's personal info. Avatar is absolute after decoding.
type Profile struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Gender      string `json:"gender,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}
