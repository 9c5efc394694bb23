package api

import (
	"fmt"
	"regexp"
	"strings"

	"rentdesk/internal/model"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var propertyTypes = map[string]bool{"residential": true, "commercial": true, "land": true}
var propertyStatuses = map[string]bool{"active": true, "vacant": true, "archived": true}
var financeKinds = map[string]bool{"rent": true, "expense": true, "deposit": true}

func validateRegistration(req model.RegisterRequest) string {
	if req.Email == "" || !emailPattern.MatchString(req.Email) {
		return "a valid email is required"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	return ""
}

func validateProperty(in model.PropertyInput) string {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "title is required"
	}
	if len(title) > 200 {
		return "title must be at most 200 characters"
	}
	if len(in.Description) > 5000 {
		return "description must be at most 5000 characters"
	}
	if in.Price < 0 {
		return "price must not be negative"
	}
	if in.PropertyType != "" && !propertyTypes[in.PropertyType] {
		return fmt.Sprintf("unknown propertyType %q", in.PropertyType)
	}
	if in.Status != "" && !propertyStatuses[in.Status] {
		return fmt.Sprintf("unknown status %q", in.Status)
	}
	if len(in.Images) > 20 {
		return "at most 20 images allowed"
	}
	return ""
}

func validateFinance(in model.FinanceInput) string {
	if in.Amount == 0 {
		return "amount is required"
	}
	if in.Kind != "" && !financeKinds[in.Kind] {
		return fmt.Sprintf("unknown kind %q", in.Kind)
	}
	if len(in.Note) > 2000 {
		return "note must be at most 2000 characters"
	}
	return ""
}

func validateLoan(in model.LoanInput) string {
	if in.Principal <= 0 {
		return "principal must be positive"
	}
	if in.RatePct < 0 || in.RatePct > 100 {
		return "ratePct must be between 0 and 100"
	}
	if in.TermMonths < 0 {
		return "termMonths must not be negative"
	}
	return ""
}
