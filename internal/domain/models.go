package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleOwner    = "owner"
)

type Actor struct {
	Username string
	Role     string
}

type Nozzle struct {
	ID             string          `json:"id"`
	StationID      string          `json:"station_id"`
	FuelType       string          `json:"fuel_type"`
	InitialReading decimal.Decimal `json:"initial_reading"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

type NozzleCreateRequest struct {
	StationID      string          `json:"station_id"`
	NozzleID       string          `json:"nozzle_id"`
	FuelType       string          `json:"fuel_type"`
	InitialReading decimal.Decimal `json:"initial_reading"`
}

type FuelPrice struct {
	StationID     string          `json:"station_id"`
	FuelType      string          `json:"fuel_type"`
	Price         decimal.Decimal `json:"price"`
	EffectiveFrom time.Time       `json:"effective_from"`
	SetBy         string          `json:"set_by"`
}

type FuelPriceRequest struct {
	StationID     string          `json:"station_id"`
	FuelType      string          `json:"fuel_type"`
	Price         decimal.Decimal `json:"price"`
	EffectiveFrom string          `json:"effective_from"`
}

// NozzleReading is an immutable meter fact. TransactionID is filled in from the
// transaction link when the reading has been settled.
type NozzleReading struct {
	ID              string          `json:"id"`
	NozzleID        string          `json:"nozzle_id"`
	StationID       string          `json:"station_id"`
	FuelType        string          `json:"fuel_type"`
	EnteredValue    decimal.Decimal `json:"entered_value"`
	ComparisonValue decimal.Decimal `json:"comparison_value"`
	LitresSold      decimal.Decimal `json:"litres_sold"`
	PriceAtEntry    decimal.Decimal `json:"price_at_entry"`
	SaleValue       decimal.Decimal `json:"sale_value"`
	ReadingDate     string          `json:"reading_date"`
	ReadingAt       time.Time       `json:"reading_at"`
	EnteredBy       string          `json:"entered_by"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ReadingRequest struct {
	StationID    string          `json:"station_id"`
	NozzleID     string          `json:"nozzle_id"`
	ReadingValue decimal.Decimal `json:"reading_value"`
	ReadingDate  string          `json:"reading_date"`
	ReadingTime  string          `json:"reading_time"`
}

type PaymentBreakdown struct {
	Cash   decimal.Decimal `json:"cash"`
	Online decimal.Decimal `json:"online"`
	Credit decimal.Decimal `json:"credit"`
}

func (p PaymentBreakdown) Total() decimal.Decimal {
	return p.Cash.Add(p.Online).Add(p.Credit)
}

type CreditAllocation struct {
	CreditorID string          `json:"creditor_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type Transaction struct {
	ID                string             `json:"id"`
	StationID         string             `json:"station_id"`
	EmployeeID        string             `json:"employee_id"`
	ShiftID           string             `json:"shift_id,omitempty"`
	TransactionDate   string             `json:"transaction_date"`
	ReadingIDs        []string           `json:"reading_ids"`
	LitresSold        decimal.Decimal    `json:"litres_sold"`
	SaleValue         decimal.Decimal    `json:"sale_value"`
	PaymentBreakdown  PaymentBreakdown   `json:"payment_breakdown"`
	CreditAllocations []CreditAllocation `json:"credit_allocations"`
	IdempotencyKey    string             `json:"idempotency_key"`
	Notes             string             `json:"notes,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

type TransactionRequest struct {
	StationID         string             `json:"station_id"`
	TransactionDate   string             `json:"transaction_date"`
	ReadingIDs        []string           `json:"reading_ids"`
	PaymentBreakdown  PaymentBreakdown   `json:"payment_breakdown"`
	CreditAllocations []CreditAllocation `json:"credit_allocations"`
	IdempotencyKey    string             `json:"idempotency_key"`
	Notes             string             `json:"notes"`
}

type TransactionResponse struct {
	Transaction Transaction          `json:"transaction"`
	Warnings    []CreditLimitWarning `json:"warnings"`
	Duplicate   bool                 `json:"duplicate"`
}

// CreditLimitWarning reports a creditor whose outstanding balance went past its
// limit. It never blocks a transaction unless the hard stop is configured.
type CreditLimitWarning struct {
	CreditorID  string          `json:"creditor_id"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Excess      decimal.Decimal `json:"excess"`
}

type Creditor struct {
	ID                 string          `json:"id"`
	StationID          string          `json:"station_id"`
	Name               string          `json:"name"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	CurrentOutstanding decimal.Decimal `json:"current_outstanding"`
	CreatedAt          time.Time       `json:"created_at"`
}

type CreditorCreateRequest struct {
	StationID   string          `json:"station_id"`
	Name        string          `json:"name"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

const (
	CreditEntryAllocation = "allocation"
	CreditEntrySettlement = "settlement"
)

// CreditEntry is one append-only movement on a creditor's balance. Allocations
// carry positive deltas, settlements negative ones.
type CreditEntry struct {
	ID         string          `json:"id"`
	CreditorID string          `json:"creditor_id"`
	Delta      decimal.Decimal `json:"delta"`
	Kind       string          `json:"kind"`
	CauseID    string          `json:"cause_id"`
	Reference  string          `json:"reference,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type CreditSettlementRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes"`
}

type CreditSettlementResponse struct {
	Entry    CreditEntry `json:"entry"`
	Creditor Creditor    `json:"creditor"`
}

const (
	ShiftStatusActive = "active"
	ShiftStatusClosed = "closed"
)

const (
	ShiftTypeMorning = "morning"
	ShiftTypeEvening = "evening"
	ShiftTypeNight   = "night"
	ShiftTypeFullDay = "full_day"
)

type Shift struct {
	ID                    string           `json:"id"`
	EmployeeID            string           `json:"employee_id"`
	StationID             string           `json:"station_id"`
	ShiftType             string           `json:"shift_type"`
	Status                string           `json:"status"`
	StartTime             time.Time        `json:"start_time"`
	EndTime               *time.Time       `json:"end_time,omitempty"`
	ReadingsCount         int              `json:"readings_count"`
	TotalLitresSold       decimal.Decimal  `json:"total_litres_sold"`
	TotalSalesAmount      decimal.Decimal  `json:"total_sales_amount"`
	TotalOnline           decimal.Decimal  `json:"total_online"`
	TotalCredit           decimal.Decimal  `json:"total_credit"`
	ExpectedCash          decimal.Decimal  `json:"expected_cash"`
	ActualCashCollected   decimal.Decimal  `json:"actual_cash_collected"`
	ActualOnlineCollected *decimal.Decimal `json:"actual_online_collected,omitempty"`
	CashDifference        decimal.Decimal  `json:"cash_difference"`
	OnlineDifference      *decimal.Decimal `json:"online_difference,omitempty"`
	Notes                 string           `json:"notes,omitempty"`
	CloseNotes            string           `json:"close_notes,omitempty"`
}

type ShiftStartRequest struct {
	StationID string `json:"station_id"`
	ShiftType string `json:"shift_type"`
	Notes     string `json:"notes"`
}

type ShiftEndRequest struct {
	CashCollected   decimal.Decimal  `json:"cash_collected"`
	OnlineCollected *decimal.Decimal `json:"online_collected"`
	Notes           string           `json:"notes"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

const (
	HandoverStatusPending   = "pending"
	HandoverStatusConfirmed = "confirmed"
	HandoverStatusDisputed  = "disputed"
	HandoverStatusResolved  = "resolved"
)

const (
	HandoverShiftCollection = "shift_collection"
	HandoverManagerToOwner  = "manager_to_owner"
	HandoverBankDeposit     = "bank_deposit"
)

type CashHandover struct {
	ID               string          `json:"id"`
	StationID        string          `json:"station_id"`
	HandoverType     string          `json:"handover_type"`
	FromUser         string          `json:"from_user"`
	ToUser           string          `json:"to_user"`
	SourceShiftID    string          `json:"source_shift_id,omitempty"`
	SourceHandoverID string          `json:"source_handover_id,omitempty"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	ActualAmount     decimal.Decimal `json:"actual_amount"`
	Difference       decimal.Decimal `json:"difference"`
	Status           string          `json:"status"`
	DisputeNotes     string          `json:"dispute_notes,omitempty"`
	ConfirmNotes     string          `json:"confirm_notes,omitempty"`
	ResolutionNotes  string          `json:"resolution_notes,omitempty"`
	ConfirmedBy      string          `json:"confirmed_by,omitempty"`
	ResolvedBy       string          `json:"resolved_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}

type HandoverCreateRequest struct {
	StationID        string           `json:"station_id"`
	FromUserID       string           `json:"from_user_id"`
	ToUserID         string           `json:"to_user_id"`
	HandoverType     string           `json:"handover_type"`
	ExpectedAmount   *decimal.Decimal `json:"expected_amount"`
	SourceShiftID    string           `json:"source_shift_id"`
	SourceHandoverID string           `json:"source_handover_id"`
}

type HandoverConfirmRequest struct {
	AcceptAsIs   bool             `json:"accept_as_is"`
	ActualAmount *decimal.Decimal `json:"actual_amount"`
	Notes        string           `json:"notes"`
}

type HandoverResolveRequest struct {
	Notes string `json:"notes"`
}

type HandoverResponse struct {
	Handover CashHandover `json:"handover"`
}

const (
	VarianceOK          = "OK"
	VarianceReview      = "REVIEW"
	VarianceInvestigate = "INVESTIGATE"
)

const (
	AgingCurrent    = "current"
	AgingOverdue    = "overdue"
	AgingOver60Days = "over_60_days"
)

type HandoverDayCounts struct {
	Pending       int             `json:"pending"`
	Confirmed     int             `json:"confirmed"`
	Disputed      int             `json:"disputed"`
	Resolved      int             `json:"resolved"`
	NetDifference decimal.Decimal `json:"net_difference"`
}

type DailySettlement struct {
	Date            string            `json:"date"`
	ShiftsClosed    int               `json:"shifts_closed"`
	ExpectedCash    decimal.Decimal   `json:"expected_cash"`
	ActualCash      decimal.Decimal   `json:"actual_cash"`
	Variance        decimal.Decimal   `json:"variance"`
	VariancePercent decimal.Decimal   `json:"variance_percent"`
	VarianceStatus  string            `json:"variance_status"`
	Handovers       HandoverDayCounts `json:"handovers"`
}

type SalesVerification struct {
	CalculatedSaleValue decimal.Decimal `json:"calculated_sale_value"`
	CashReceived        decimal.Decimal `json:"cash_received"`
	OnlineReceived      decimal.Decimal `json:"online_received"`
	CreditPending       decimal.Decimal `json:"credit_pending"`
	TotalAccounted      decimal.Decimal `json:"total_accounted"`
	Difference          decimal.Decimal `json:"difference"`
	Match               bool            `json:"match"`
}

type IncomeStatement struct {
	TotalSalesGenerated       decimal.Decimal `json:"total_sales_generated"`
	CreditPending             decimal.Decimal `json:"credit_pending"`
	CashVariance              decimal.Decimal `json:"cash_variance"`
	NetCashIncome             decimal.Decimal `json:"net_cash_income"`
	CreditSettlementsReceived decimal.Decimal `json:"credit_settlements_received"`
}

type CreditorAging struct {
	CreditorID          string          `json:"creditor_id"`
	Name                string          `json:"name"`
	CreditLimit         decimal.Decimal `json:"credit_limit"`
	Outstanding         decimal.Decimal `json:"outstanding"`
	OldestUnsettledDays int             `json:"oldest_unsettled_days"`
	Bucket              string          `json:"bucket"`
	OverLimit           bool            `json:"over_limit"`
}

type ReceivablesAging struct {
	Current          decimal.Decimal `json:"current"`
	Overdue          decimal.Decimal `json:"overdue"`
	Over30Days       decimal.Decimal `json:"over_30_days"`
	Over60Days       decimal.Decimal `json:"over_60_days"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	Creditors        []CreditorAging `json:"creditors"`
}

// SettlementSummary is derived on demand and never persisted.
type SettlementSummary struct {
	StationID    string            `json:"station_id"`
	From         string            `json:"from"`
	To           string            `json:"to"`
	Days         []DailySettlement `json:"days"`
	Verification SalesVerification `json:"verification"`
	Income       IncomeStatement   `json:"income"`
	Receivables  ReceivablesAging  `json:"receivables"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserProfile struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StationID     string    `json:"station_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
