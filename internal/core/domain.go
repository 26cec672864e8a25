package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	DateLayout     = "2006-01-02"
	MaxDescription = 200
	MaxName        = 80
)

type (
	TransactionType string

	Frequency string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID          uuid.UUID       `json:"id"`
		UserID      uuid.UUID       `json:"userId"`
		Amount      decimal.Decimal `json:"amount"`
		Type        TransactionType `json:"type"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Date        Date            `json:"date"`
		CreatedAt   time.Time       `json:"createdAt"`
	}

	Wallet struct {
		ID        uuid.UUID       `json:"id"`
		UserID    uuid.UUID       `json:"userId"`
		Name      string          `json:"name"`
		Balance   decimal.Decimal `json:"balance"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	// FixedExpense is a planned recurring outflow (rent, subscriptions).
	// Paid is resolved per month by the store.
	FixedExpense struct {
		ID        uuid.UUID       `json:"id"`
		UserID    uuid.UUID       `json:"userId"`
		Name      string          `json:"name"`
		Amount    decimal.Decimal `json:"amount"`
		Category  string          `json:"category"`
		Frequency Frequency       `json:"frequency"`
		StartDate Date            `json:"startDate"`
		Paid      bool            `json:"paid"`
	}

	MonthlyReport struct {
		UserID       uuid.UUID `json:"userId"`
		Month        string    `json:"month"`
		IncomeTotal  float64   `json:"incomeTotal"`
		ExpenseTotal float64   `json:"expenseTotal"`
		NetTotal     float64   `json:"netTotal"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = fmt.Errorf("name too long (max %d characters)", MaxName)
	ErrInvalidStartDate   = errors.New("invalid start date")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescription)
	ErrNotFound           = errors.New("not found")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in YYYY-MM-DD form as a UTC midnight.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (f Frequency) Valid() bool {
	switch f {
	case Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len([]rune(t.Description)) > MaxDescription {
		return ErrDescriptionTooLong
	}
	return nil
}

func (w Wallet) Validate() error {
	name := strings.TrimSpace(w.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > MaxName {
		return ErrNameTooLong
	}
	return nil
}

func (fe FixedExpense) Validate() error {
	name := strings.TrimSpace(fe.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > MaxName {
		return ErrNameTooLong
	}
	if !fe.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !fe.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if err := fe.StartDate.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStartDate, err)
	}
	return nil
}
