package middleware

import (
	"fmt"
	"html"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ValidationError represents a single field validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Tag     string      `json:"tag"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrorResponse represents the response for validation errors
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Errors []ValidationError `json:"errors"`
}

var (
	validate *validator.Validate

	// currencyCodeRegex matches an ISO-4217-shaped 3-letter uppercase code.
	// Whether the code is actually supported is checked downstream by the
	// currency validator, not here.
	currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

// InitValidator initializes the validator with custom validations
func InitValidator() {
	validate = validator.New()

	validate.RegisterValidation("currency_code", validateCurrencyCode)
	validate.RegisterValidation("no_html", validateNoHTML)
	validate.RegisterValidation("decimal_positive", validateDecimalPositive)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// GetValidator returns the validator instance
func GetValidator() *validator.Validate {
	if validate == nil {
		InitValidator()
	}
	return validate
}

// ValidateRequest is a middleware that ensures the validator is initialized
// before handlers run.
func ValidateRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if validate == nil {
			InitValidator()
		}
		c.Next()
	}
}

// ValidateStruct validates a struct and writes a structured error response
// if validation fails. Returns false if the request should be aborted.
func ValidateStruct(c *gin.Context, s interface{}) bool {
	if validate == nil {
		InitValidator()
	}

	err := validate.Struct(s)
	if err != nil {
		validationErrors := []ValidationError{}

		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range errs {
				validationErrors = append(validationErrors, ValidationError{
					Field:   e.Field(),
					Message: getErrorMessage(e),
					Tag:     e.Tag(),
					Value:   e.Value(),
				})
			}
		}

		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Errors: validationErrors,
		})
		return false
	}

	return true
}

func getErrorMessage(e validator.FieldError) string {
	field := e.Field()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "currency_code":
		return fmt.Sprintf("%s must be a 3-letter currency code", field)
	case "no_html":
		return fmt.Sprintf("%s must not contain HTML tags", field)
	case "decimal_positive":
		return fmt.Sprintf("%s must be a positive number", field)
	default:
		return fmt.Sprintf("%s failed validation for %s", field, tag)
	}
}

// validateCurrencyCode checks the shape of a currency code (3 uppercase
// letters). Support for the specific code is a separate, downstream check.
func validateCurrencyCode(fl validator.FieldLevel) bool {
	return currencyCodeRegex.MatchString(fl.Field().String())
}

// validateNoHTML validates that string doesn't contain HTML tags
func validateNoHTML(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return !strings.Contains(value, "<") && !strings.Contains(value, ">")
}

// validateDecimalPositive validates that a decimal.Decimal field is positive
func validateDecimalPositive(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case decimal.Decimal:
		return v.GreaterThan(decimal.Zero)
	case *decimal.Decimal:
		if v == nil {
			return false
		}
		return v.GreaterThan(decimal.Zero)
	default:
		return false
	}
}

// SanitizeString removes HTML entities and trims whitespace
func SanitizeString(s string) string {
	s = html.EscapeString(s)
	s = strings.TrimSpace(s)
	return s
}

// SanitizeInput is a middleware that sanitizes query parameters to
// mitigate reflected XSS.
func SanitizeInput() gin.HandlerFunc {
	return func(c *gin.Context) {
		queryParams := c.Request.URL.Query()
		for key, values := range queryParams {
			for i, value := range values {
				queryParams[key][i] = SanitizeString(value)
			}
		}
		c.Request.URL.RawQuery = queryParams.Encode()

		c.Next()
	}
}

// ValidateCurrencyCodeFormat checks a code is shaped like ISO-4217.
func ValidateCurrencyCodeFormat(code string) error {
	if !currencyCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid currency code format: %q", code)
	}
	return nil
}
