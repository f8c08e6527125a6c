package mockbackend

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// Handler contains the HTTP handlers for the backend API.
type Handler struct {
	store *Store
}

// NewHandler creates a new Handler.
func NewHandler(s *Store) *Handler {
	return &Handler{store: s}
}

// AuthMiddleware resolves the bearer token to a user id
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No token, authorization denied"})
			return
		}
		userID, ok := h.store.UserForToken(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is not valid"})
			return
		}
		c.Set(userIDKey, userID)
		c.Set("token", token)
		c.Next()
	}
}

// ListCategories answers with a bare array
func (h *Handler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Categories())
}

// ListProducts answers with {products:[...]}
func (h *Handler) ListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": h.store.Products(nil)})
}

// ProductsByCategory answers with {data:[...]}
func (h *Handler) ProductsByCategory(c *gin.Context) {
	id := c.Param("id")
	products := h.store.Products(func(p Product) bool { return p.Category == id })
	c.JSON(http.StatusOK, gin.H{"data": products})
}

// ProductsBySubcategory answers with a bare array
func (h *Handler) ProductsBySubcategory(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, h.store.Products(func(p Product) bool { return p.Subcategory == id }))
}

func (h *Handler) ListSubcategories(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Subcategories(c.Param("id")))
}

func (h *Handler) ListBanners(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"banners": h.store.Banners()})
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username, email and password are required"})
		return
	}
	u, err := h.store.CreateUser(req.Username, req.Email, req.Password)
	if errors.Is(err, errUserExists) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not create user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    gin.H{"_id": u.ID, "username": u.Username, "email": u.Email},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
		return
	}
	token, u, err := h.store.Authenticate(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  gin.H{"id": u.ID, "username": u.Username, "email": u.Email},
	})
}

func (h *Handler) Logout(c *gin.Context) {
	h.store.RevokeToken(c.GetString("token"))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) GetCart(c *gin.Context) {
	userID := c.GetString(userIDKey)
	if c.Param("userId") != userID {
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
		return
	}
	cart, _ := h.store.Cart(userID)
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

type saveCartRequest struct {
	UserID string      `json:"userId"`
	Cart   []CartEntry `json:"cart"`
}

func (h *Handler) SaveCart(c *gin.Context) {
	var req saveCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid cart payload"})
		return
	}
	userID := c.GetString(userIDKey)
	if req.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
		return
	}
	for _, e := range req.Cart {
		if e.ProductID == "" || e.Quantity < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Each cart item needs a productId and a positive quantity"})
			return
		}
	}
	h.store.SaveCart(userID, req.Cart)
	c.JSON(http.StatusOK, gin.H{"message": "Cart saved", "cart": req.Cart})
}

func (h *Handler) ListAddresses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"addresses": h.store.Addresses(c.GetString(userIDKey))})
}

func (h *Handler) AddAddress(c *gin.Context) {
	var a Address
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid address payload"})
		return
	}
	if a.FullAddress == "" || a.City == "" || a.State == "" || a.Pincode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "fullAddress, city, state and pincode are required"})
		return
	}
	if a.Label == "" {
		a.Label = "Home"
	}
	saved := h.store.AddAddress(c.GetString(userIDKey), a)
	c.JSON(http.StatusCreated, gin.H{"message": "Address added", "address": saved})
}

func (h *Handler) DeleteAddress(c *gin.Context) {
	if err := h.store.DeleteAddress(c.GetString(userIDKey), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Address not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Address deleted"})
}

type orderRequest struct {
	AddressID      string      `json:"addressId"`
	Items          []OrderItem `json:"items"`
	TotalAmount    float64     `json:"totalAmount"`
	PaymentMethod  string      `json:"paymentMethod"`
	PaymentID      string      `json:"paymentId"`
	IdempotencyKey string      `json:"idempotencyKey"`
}

// CreateOrder stores an order. A repeated idempotency key (header or body)
// answers with the original order instead of creating a second one.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid order payload"})
		return
	}
	if len(req.Items) == 0 || req.AddressID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Order needs items and an address"})
		return
	}
	switch req.PaymentMethod {
	case "cash_on_delivery":
	case "online":
		if req.PaymentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Online orders need a paymentId"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown payment method"})
		return
	}

	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}
	order, created, err := h.store.PlaceOrder(Order{
		UserID:         c.GetString(userIDKey),
		AddressID:      req.AddressID,
		Items:          req.Items,
		TotalAmount:    req.TotalAmount,
		PaymentMethod:  req.PaymentMethod,
		PaymentID:      req.PaymentID,
		IdempotencyKey: key,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Address not found"})
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"message": "Order placed successfully", "order": order})
}

// populatedItem is an order line whose productId is the full product
type populatedItem struct {
	ProductID interface{} `json:"productId"`
	Quantity  int         `json:"quantity"`
	Price     float64     `json:"price"`
}

func (h *Handler) MyOrders(c *gin.Context) {
	orders := h.store.Orders(c.GetString(userIDKey))
	out := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		items := make([]populatedItem, 0, len(o.Items))
		for _, it := range o.Items {
			var ref interface{} = it.ProductID
			h.store.mu.RLock()
			if p, ok := h.store.product(it.ProductID); ok {
				ref = p
			}
			h.store.mu.RUnlock()
			items = append(items, populatedItem{ProductID: ref, Quantity: it.Quantity, Price: it.Price})
		}
		out = append(out, gin.H{
			"_id":           o.ID,
			"items":         items,
			"totalAmount":   o.TotalAmount,
			"paymentMethod": o.PaymentMethod,
			"status":        o.Status,
			"createdAt":     o.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

// CreatePaymentOrder mimics the payment provider: amount is returned in
// the smallest currency unit.
func (h *Handler) CreatePaymentOrder(c *gin.Context) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A positive amount is required"})
		return
	}
	id := h.store.CreatePayment(req.Amount)
	c.JSON(http.StatusOK, gin.H{
		"id":       id,
		"amount":   math.Round(req.Amount * 100),
		"currency": "INR",
	})
}

func (h *Handler) MyProfile(c *gin.Context) {
	p, ok := h.store.Profile(c.GetString(userIDKey))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Profile not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) SaveProfile(c *gin.Context) {
	var p Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid profile payload"})
		return
	}
	if p.FullName == "" || p.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Name and email are required"})
		return
	}
	h.store.SaveProfile(c.GetString(userIDKey), p)
	c.JSON(http.StatusOK, gin.H{"message": "Profile saved", "profile": p})
}
