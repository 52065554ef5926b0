// Package dto holds the HTTP request/response shapes for the rate API,
// validated at the boundary with go-playground/validator tags. This is
// the thin schema layer around the aggregation pipeline, not part of it.
package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hxuan190/ratefusion/internal/domain"
)

// ConvertRequest is the body of POST /convert.
type ConvertRequest struct {
	From   string          `json:"from" validate:"required,currency_code"`
	To     string          `json:"to" validate:"required,currency_code"`
	Amount decimal.Decimal `json:"amount" validate:"required,decimal_positive"`
}

// ConvertResponse is the response of POST /convert.
type ConvertResponse struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Amount     decimal.Decimal `json:"amount"`
	Converted  decimal.Decimal `json:"converted"`
	Rate       decimal.Decimal `json:"rate"`
	Confidence string          `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
}

// RateResponse is the response of GET/POST /rate/:from/:to.
type RateResponse struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Rate       string    `json:"rate"`
	Confidence string    `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// FromAggregatedRate builds a RateResponse from the aggregator's result.
func FromAggregatedRate(rate domain.AggregatedRate) RateResponse {
	return RateResponse{
		From:       rate.Base,
		To:         rate.Target,
		Rate:       rate.Rate.String(),
		Confidence: string(rate.Confidence),
		Timestamp:  rate.Timestamp,
	}
}

// ToConvertResponse builds a ConvertResponse from a request and the
// aggregator's resolved rate.
func ToConvertResponse(req ConvertRequest, rate domain.AggregatedRate) ConvertResponse {
	return ConvertResponse{
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		Converted:  req.Amount.Mul(rate.Rate),
		Rate:       rate.Rate,
		Confidence: string(rate.Confidence),
		Timestamp:  rate.Timestamp,
	}
}

// ErrorResponse is the uniform error body for 4xx/5xx responses.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewErrorResponse builds an ErrorResponse from a code and message.
func NewErrorResponse(code, message string) ErrorResponse {
	var r ErrorResponse
	r.Error.Code = code
	r.Error.Message = message
	return r
}
