// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating HTTP request data.
// Bodies may be JSON or form-encoded; both are read into the same request
// structs and checked with go-playground/validator.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"butce/internal/core"
	"butce/internal/services"
)

const maxBodyBytes = 64 << 10

var errBodyTooLarge = errors.New("request body too large")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := core.ParseAmount(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		_, err := parseSignedDecimal(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
		_, err := core.ParseMonth(fl.Field().String())
		return err == nil
	})
	return v
}

// TransactionRequest is the body of POST /api/transactions.
type TransactionRequest struct {
	Amount      string `json:"amount" validate:"required,amount"`
	Type        string `json:"type" validate:"required,oneof=income expense"`
	Category    string `json:"category" validate:"required,notblank,max=80"`
	Description string `json:"description" validate:"max=200"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// WalletRequest is the body of POST /api/wallets.
type WalletRequest struct {
	Name    string `json:"name" validate:"required,notblank,max=80"`
	Balance string `json:"balance" validate:"required,decimal"`
}

// FixedExpenseRequest is the body of POST /api/fixed-expenses.
type FixedExpenseRequest struct {
	Name      string `json:"name" validate:"required,notblank,max=80"`
	Amount    string `json:"amount" validate:"required,amount"`
	Category  string `json:"category" validate:"required,notblank,max=80"`
	Frequency string `json:"frequency" validate:"required,oneof=weekly monthly yearly"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
}

// Validate checks a request struct and turns failures into envelope issues.
// It returns nil when v is valid.
func Validate(v any) Issues {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	issues := Issues{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		issues.Add("input", err.Error())
		return issues
	}
	for _, e := range verrs {
		issues.Add(e.Field(), issueMessage(e))
	}
	return issues
}

func issueMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(e.Param(), " ", ", ")
	case "amount":
		return "must be a positive amount"
	case "decimal":
		return "must be a number"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "yearmonth":
		return "must be a month in YYYY-MM format"
	default:
		return "is invalid"
	}
}

func parseSignedDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, core.ErrInvalidAmount
	}
	return d.Round(2), nil
}

// MonthRequest carries a strict month label from a path or query.
type MonthRequest struct {
	Month string `json:"month" validate:"required,yearmonth"`
}

// ToInput converts a validated request into service input. Date defaults to
// today in UTC.
func (req TransactionRequest) ToInput(now time.Time) (services.TransactionInput, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return services.TransactionInput{}, err
	}
	date := core.NewDate(now.UTC().Year(), int(now.UTC().Month()), now.UTC().Day())
	if req.Date != "" {
		if date, err = core.ParseDate(req.Date); err != nil {
			return services.TransactionInput{}, err
		}
	}
	return services.TransactionInput{
		Amount:      amount,
		Type:        core.TransactionType(req.Type),
		Category:    req.Category,
		Description: req.Description,
		Date:        date,
	}, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads at most maxBodyBytes once and stores them for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func (p *RequestBodyParser) TransactionRequest() TransactionRequest {
	return TransactionRequest{
		Amount:      p.Get("amount"),
		Type:        strings.ToLower(p.Get("type")),
		Category:    p.Get("category"),
		Description: p.Get("description"),
		Date:        p.Get("date"),
	}
}

func (p *RequestBodyParser) WalletRequest() WalletRequest {
	return WalletRequest{
		Name:    p.Get("name"),
		Balance: p.Get("balance"),
	}
}

func (p *RequestBodyParser) FixedExpenseRequest() FixedExpenseRequest {
	return FixedExpenseRequest{
		Name:      p.Get("name"),
		Amount:    p.Get("amount"),
		Category:  p.Get("category"),
		Frequency: strings.ToLower(p.Get("frequency")),
		StartDate: p.Get("startDate"),
	}
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseLimit reads ?limit=; anything unparsable becomes 0, the default page.
func parseLimit(q url.Values) int {
	n, err := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
	if err != nil {
		return 0
	}
	return n
}
