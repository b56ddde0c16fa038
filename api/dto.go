/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract. Money crosses the wire as float64; the domain
  keeps decimals internally and only converts at this boundary.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  All dates are YYYY-MM-DD strings. Range targets are sent as a single
  string containing both dates ("2025-11-03 – 2025-11-09"); any separator
  the UI uses is accepted.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/expense"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/party"
	"github.com/warp/ledger-engine/weekclock"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// BULK UPSERT
// =============================================================================

// NetPayableDTO mirrors the weekly net-payable side figure.
type NetPayableDTO struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// PaymentSubmissionDTO is one row of a bulk upsert batch. PaymentDate tags
// the day shape, PaymentRange (two dates) the range shape; a row may carry
// only a WeeklyNP update instead.
type PaymentSubmissionDTO struct {
	PartyID       string         `json:"partyId"`
	PaymentDate   string         `json:"paymentDate,omitempty"`
	PaymentRange  []string       `json:"paymentRange,omitempty"`
	PaymentAmount float64        `json:"paymentAmount"`
	PWT           float64        `json:"pwt"`
	Cash          float64        `json:"cash"`
	Bank          float64        `json:"bank"`
	Due           float64        `json:"due"`
	TDA           float64        `json:"tda"`
	WeeklyNP      *NetPayableDTO `json:"weeklyNP,omitempty"`
}

// BulkUpsertRequest is the request body of both bulk endpoints.
type BulkUpsertRequest struct {
	WeekStartDate string                 `json:"weekStartDate"`
	WeekEndDate   string                 `json:"weekEndDate"`
	WeekNumber    int                    `json:"weekNumber,omitempty"`
	WeekYear      int                    `json:"weekYear,omitempty"`
	Payments      []PaymentSubmissionDTO `json:"payments"`
}

// =============================================================================
// BUCKETS
// =============================================================================

// FinancialFieldsDTO carries the six payment measures.
type FinancialFieldsDTO struct {
	PaymentAmount float64 `json:"paymentAmount"`
	PWT           float64 `json:"pwt"`
	Cash          float64 `json:"cash"`
	Bank          float64 `json:"bank"`
	Due           float64 `json:"due"`
	TDA           float64 `json:"tda"`
}

// DayEntryDTO is one day's figures in a day bucket.
type DayEntryDTO struct {
	Date string `json:"date"`
	FinancialFieldsDTO
	ColorStatus string `json:"colorStatus"`
}

// RangeEntryDTO is one span in a range bucket.
type RangeEntryDTO struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	FinancialFieldsDTO
	ColorStatus string `json:"colorStatus"`
}

// DayBucketDTO is one party/week day bucket.
type DayBucketDTO struct {
	PartyID         string                 `json:"partyId"`
	WeekNumber      int                    `json:"weekNumber"`
	WeekYear        int                    `json:"weekYear"`
	WeekStartDate   string                 `json:"weekStartDate"`
	WeekEndDate     string                 `json:"weekEndDate"`
	Payments        map[string]DayEntryDTO `json:"payments"`
	WeeklyNP        NetPayableDTO          `json:"weeklyNP"`
	PartyTotalColor string                 `json:"partyTotalColor"`
	IsApproved      bool                   `json:"isApproved"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt"`
}

// RangeBucketDTO is one party/week range bucket.
type RangeBucketDTO struct {
	PartyID         string          `json:"partyId"`
	WeekNumber      int             `json:"weekNumber"`
	WeekYear        int             `json:"weekYear"`
	WeekStartDate   string          `json:"weekStartDate"`
	WeekEndDate     string          `json:"weekEndDate"`
	PaymentRanges   []RangeEntryDTO `json:"paymentRanges"`
	WeeklyNP        NetPayableDTO   `json:"weeklyNP"`
	PartyTotalColor string          `json:"partyTotalColor"`
	IsApproved      bool            `json:"isApproved"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
}

// =============================================================================
// ANNOTATION
// =============================================================================

// SetColorRequest targets one settlement marker.
type SetColorRequest struct {
	PartyID     string `json:"partyId"`
	Color       string `json:"color"`
	IsPartyTotal bool  `json:"isPartyTotal"`
	// PaymentType selects the bucket shape: "day" or "range".
	PaymentType string `json:"paymentType"`
	// Target is a YYYY-MM-DD date (day shape) or a two-date range string
	// (range shape). Ignored when IsPartyTotal is set.
	Target string `json:"target"`
}

// SetColorResponse confirms the saved color.
type SetColorResponse struct {
	SavedColor string `json:"savedColor"`
}

// =============================================================================
// RANGE SUMMARY
// =============================================================================

// LineItemDTO is one summary entry from either shape.
type LineItemDTO struct {
	Type      string `json:"type"`
	Date      string `json:"date"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	FinancialFieldsDTO
	ColorStatus string `json:"colorStatus"`
}

// PartySummaryDTO is one party's slice of the summary.
type PartySummaryDTO struct {
	PartyID         string             `json:"partyId"`
	PartyName       string             `json:"partyName"`
	PartyCode       string             `json:"partyCode"`
	PartyTotalColor string             `json:"partyTotalColor,omitempty"`
	WeeklyNP        *NetPayableDTO     `json:"weeklyNP,omitempty"`
	Payments        []LineItemDTO      `json:"payments"`
	Subtotal        FinancialFieldsDTO `json:"subtotal"`
}

// RangeSummaryDTO is the full window report.
type RangeSummaryDTO struct {
	StartDate  string             `json:"startDate"`
	EndDate    string             `json:"endDate"`
	Parties    []PartySummaryDTO  `json:"parties"`
	GrandTotal FinancialFieldsDTO `json:"grandTotal"`
}

// =============================================================================
// PARTIES AND EXPENSES
// =============================================================================

// PartyDTO represents a party in API responses.
type PartyDTO struct {
	ID        string `json:"id"`
	Name      string `json:"partyName"`
	Code      string `json:"partyCode"`
	Type      string `json:"partyType"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// CreatePartyRequest is the request to create or update a party.
type CreatePartyRequest struct {
	Name     string `json:"partyName"`
	Code     string `json:"partyCode"`
	Type     string `json:"partyType"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// ExpenseDTO represents an expense record.
type ExpenseDTO struct {
	ID         string  `json:"id"`
	Name       string  `json:"expenseName"`
	Amount     float64 `json:"expenseAmount"`
	Date       string  `json:"expenseDate"`
	Category   string  `json:"expenseCategory"`
	Remarks    string  `json:"remarks,omitempty"`
	WeekNumber int     `json:"weekNumber"`
	WeekYear   int     `json:"weekYear"`
	CreatedAt  string  `json:"createdAt,omitempty"`
}

// CreateExpenseRequest is the request to record an expense.
type CreateExpenseRequest struct {
	Name     string  `json:"expenseName"`
	Amount   float64 `json:"expenseAmount"`
	Date     string  `json:"expenseDate"`
	Category string  `json:"expenseCategory"`
	Remarks  string  `json:"remarks"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toFieldsDTO(f ledger.FinancialFields) FinancialFieldsDTO {
	return FinancialFieldsDTO{
		PaymentAmount: f.PaymentAmount.InexactFloat64(),
		PWT:           f.PWT.InexactFloat64(),
		Cash:          f.Cash.InexactFloat64(),
		Bank:          f.Bank.InexactFloat64(),
		Due:           f.Due.InexactFloat64(),
		TDA:           f.TDA.InexactFloat64(),
	}
}

func (d PaymentSubmissionDTO) fields() ledger.FinancialFields {
	return ledger.FinancialFields{
		PaymentAmount: decimal.NewFromFloat(d.PaymentAmount),
		PWT:           decimal.NewFromFloat(d.PWT),
		Cash:          decimal.NewFromFloat(d.Cash),
		Bank:          decimal.NewFromFloat(d.Bank),
		Due:           decimal.NewFromFloat(d.Due),
		TDA:           decimal.NewFromFloat(d.TDA),
	}
}

func toNetPayableDTO(np ledger.NetPayable) NetPayableDTO {
	return NetPayableDTO{Name: np.Name, Amount: np.Amount.InexactFloat64()}
}

func toDayBucketDTO(b *ledger.DayBucket, window *dateWindow) DayBucketDTO {
	days := make(map[string]DayEntryDTO, len(b.Days))
	for k, e := range b.Days {
		if window != nil && !weekclock.WithinDays(e.Date, window.start, window.end) {
			continue
		}
		days[k] = DayEntryDTO{
			Date:               weekclock.DayKey(e.Date),
			FinancialFieldsDTO: toFieldsDTO(e.Fields),
			ColorStatus:        string(e.Annotation),
		}
	}
	return DayBucketDTO{
		PartyID:         b.Key.PartyID,
		WeekNumber:      b.Key.WeekNumber,
		WeekYear:        b.Key.WeekYear,
		WeekStartDate:   weekclock.DayKey(b.WeekStart),
		WeekEndDate:     weekclock.DayKey(b.WeekEnd),
		Payments:        days,
		WeeklyNP:        toNetPayableDTO(b.NetPayable),
		PartyTotalColor: string(b.TotalAnnotation),
		IsApproved:      b.IsApproved,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.Format(time.RFC3339),
	}
}

func toRangeBucketDTO(b *ledger.RangeBucket, window *dateWindow) RangeBucketDTO {
	ranges := make([]RangeEntryDTO, 0, len(b.Ranges))
	for _, e := range b.Ranges {
		if window != nil && !weekclock.RangesOverlap(e.Start, e.End, window.start, window.end) {
			continue
		}
		ranges = append(ranges, RangeEntryDTO{
			StartDate:          weekclock.DayKey(e.Start),
			EndDate:            weekclock.DayKey(e.End),
			FinancialFieldsDTO: toFieldsDTO(e.Fields),
			ColorStatus:        string(e.Annotation),
		})
	}
	return RangeBucketDTO{
		PartyID:         b.Key.PartyID,
		WeekNumber:      b.Key.WeekNumber,
		WeekYear:        b.Key.WeekYear,
		WeekStartDate:   weekclock.DayKey(b.WeekStart),
		WeekEndDate:     weekclock.DayKey(b.WeekEnd),
		PaymentRanges:   ranges,
		WeeklyNP:        toNetPayableDTO(b.NetPayable),
		PartyTotalColor: string(b.TotalAnnotation),
		IsApproved:      b.IsApproved,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.Format(time.RFC3339),
	}
}

func toSummaryDTO(s *ledger.RangeSummary) RangeSummaryDTO {
	out := RangeSummaryDTO{
		StartDate:  weekclock.DayKey(s.Start),
		EndDate:    weekclock.DayKey(s.End),
		Parties:    make([]PartySummaryDTO, 0, len(s.Parties)),
		GrandTotal: toFieldsDTO(s.GrandTotal),
	}
	for _, p := range s.Parties {
		dto := PartySummaryDTO{
			PartyID:         p.PartyID,
			PartyName:       p.PartyName,
			PartyCode:       p.PartyCode,
			PartyTotalColor: string(p.TotalAnnotation),
			Payments:        make([]LineItemDTO, 0, len(p.LineItems)),
			Subtotal:        toFieldsDTO(p.Subtotal),
		}
		if p.NetPayable != nil {
			np := toNetPayableDTO(*p.NetPayable)
			dto.WeeklyNP = &np
		}
		for _, item := range p.LineItems {
			li := LineItemDTO{
				Type:               string(item.Type),
				Date:               weekclock.DayKey(item.Date),
				FinancialFieldsDTO: toFieldsDTO(item.Fields),
				ColorStatus:        string(item.Annotation),
			}
			if item.Type == ledger.ShapeRange {
				li.StartDate = weekclock.DayKey(item.Start)
				li.EndDate = weekclock.DayKey(item.End)
			}
			dto.Payments = append(dto.Payments, li)
		}
		out.Parties = append(out.Parties, dto)
	}
	return out
}

func toPartyDTO(p *party.Party) PartyDTO {
	return PartyDTO{
		ID:        p.ID,
		Name:      p.Name,
		Code:      p.Code,
		Type:      string(p.Type),
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

func toExpenseDTO(e expense.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:         e.ID,
		Name:       e.Name,
		Amount:     e.Amount.InexactFloat64(),
		Date:       weekclock.DayKey(e.Date),
		Category:   string(e.Category),
		Remarks:    e.Remarks,
		WeekNumber: e.WeekNumber,
		WeekYear:   e.WeekYear,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
	}
}
