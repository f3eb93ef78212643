package types

import "strings"

// Address is the delivery destination snapshot stored on each order.
type Address struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// Validate reports whether the mandatory address fields are present.
func (a Address) Validate() error {
	for field, value := range map[string]string{
		"line1":       a.Line1,
		"city":        a.City,
		"postal_code": a.PostalCode,
		"country":     a.Country,
	} {
		if strings.TrimSpace(value) == "" {
			return &MissingFieldError{Field: "address." + field}
		}
	}
	return nil
}

// MissingFieldError identifies a required field left empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field " + e.Field
}
