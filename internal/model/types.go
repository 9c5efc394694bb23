package model

import "time"

// Resource type names as stored in the document table.
const (
	TypeProperty = "property"
	TypeFinance  = "finance"
	TypeLoan     = "loan"
)

// Property is a rental unit owned by exactly one subject.
// OwnerID is stamped at creation and never changes afterwards.
type Property struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"ownerId"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Address      string   `json:"address,omitempty"`
	Price        float64  `json:"price,omitempty"`
	PropertyType string   `json:"propertyType,omitempty"` // residential, commercial, land
	Status       string   `json:"status,omitempty"`       // active, vacant, archived
	Images       []string `json:"images"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
	CreatedBy    string   `json:"createdBy,omitempty"`
}

type PropertyInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Address      string   `json:"address,omitempty"`
	Price        float64  `json:"price,omitempty"`
	PropertyType string   `json:"propertyType,omitempty"`
	Status       string   `json:"status,omitempty"`
	Images       []string `json:"images,omitempty"`
}

// FinanceRecord tracks a money movement attached to a property.
type FinanceRecord struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"ownerId"`
	PropertyID string  `json:"propertyId,omitempty"`
	Kind       string  `json:"kind,omitempty"` // rent, expense, deposit
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency,omitempty"`
	Note       string  `json:"note,omitempty"`
	OccurredAt string  `json:"occurredAt,omitempty"`
	CreatedAt  string  `json:"createdAt,omitempty"`
	UpdatedAt  string  `json:"updatedAt,omitempty"`
}

type FinanceInput struct {
	PropertyID string  `json:"propertyId,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency,omitempty"`
	Note       string  `json:"note,omitempty"`
	OccurredAt string  `json:"occurredAt,omitempty"`
}

// Loan is a financing record against a property.
type Loan struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"ownerId"`
	PropertyID string  `json:"propertyId,omitempty"`
	Lender     string  `json:"lender,omitempty"`
	Principal  float64 `json:"principal"`
	RatePct    float64 `json:"ratePct,omitempty"`
	TermMonths int     `json:"termMonths,omitempty"`
	StartDate  string  `json:"startDate,omitempty"`
	CreatedAt  string  `json:"createdAt,omitempty"`
	UpdatedAt  string  `json:"updatedAt,omitempty"`
}

type LoanInput struct {
	PropertyID string  `json:"propertyId,omitempty"`
	Lender     string  `json:"lender,omitempty"`
	Principal  float64 `json:"principal"`
	RatePct    float64 `json:"ratePct,omitempty"`
	TermMonths int     `json:"termMonths,omitempty"`
	StartDate  string  `json:"startDate,omitempty"`
}

// Profile is the application-level user record resolved from a token subject.
// PasswordHash never leaves the server.
type Profile struct {
	Subject      string  `json:"subject"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	Role         string  `json:"role"`
	FirstName    string  `json:"firstName,omitempty"`
	LastName     string  `json:"lastName,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Company      string  `json:"company,omitempty"`
	Address      Address `json:"address,omitempty"`
	Status       string  `json:"status,omitempty"` // active, disabled
	CreatedAt    string  `json:"createdAt,omitempty"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
}

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
}

type ProfileUpdate struct {
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Company   string   `json:"company,omitempty"`
	Address   *Address `json:"address,omitempty"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

// Subscription registers a webhook endpoint for a subject's resource events.
type Subscription struct {
	ID      string   `json:"id"`
	OwnerID string   `json:"ownerId"`
	URL     string   `json:"url"`
	Events  []string `json:"events"`
	Secret  string   `json:"secret,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// DashboardStats is the owner-scoped summary for GET /api/dashboard.
type DashboardStats struct {
	TotalProperties  int            `json:"totalProperties"`
	ActiveProperties int            `json:"activeProperties"`
	VacantProperties int            `json:"vacantProperties"`
	TotalFinance     float64        `json:"totalFinance"`
	TotalLoans       int            `json:"totalLoans"`
	UserRole         string         `json:"userRole"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// Timestamp is the canonical wire format for times.
func Timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
