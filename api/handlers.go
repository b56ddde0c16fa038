/*
handlers.go - HTTP API handlers for the weekly ledger engine

PURPOSE:
  Exposes the ledger engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the domain services.

ENDPOINTS:
  Payments:
    POST /api/payments/bulk        Bulk day-shape merge upsert
    GET  /api/payments             Query day buckets
    POST /api/multipayments/bulk   Bulk range-shape merge upsert
    GET  /api/multipayments        Query range buckets

  Annotations:
    PUT  /api/bank-color           Set a settlement color

  Reports:
    GET  /api/dashboard/range-summary   Window summary across both shapes

  Directory:
    GET/POST /api/parties, GET/PUT/DELETE /api/parties/{id}
    GET/POST /api/expenses, DELETE /api/expenses/{id}

ERROR HANDLING:
  Domain errors map onto HTTP status by taxonomy:
  - invalid input -> 400
  - not found     -> 404 (details carry the candidate keys considered)
  - write conflict-> 409 (caller may retry the whole request)
  - store failure -> 500

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/expense"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/party"
	"github.com/warp/ledger-engine/weekclock"
)

// dateWindow is an optional [start, end] filter parsed from query params.
type dateWindow struct {
	start, end time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Merge       *ledger.MergeUpsertService
	Annotations *ledger.AnnotationService
	Summary     *ledger.RangeSummaryAggregator
	Ledger      ledger.Store
	Parties     party.Store
	Expenses    expense.Store
	Log         zerolog.Logger
}

// NewHandler wires the handler to its services and stores.
func NewHandler(store ledger.Store, parties party.Store, expenses expense.Store, resolver ledger.PartyResolver, log zerolog.Logger) *Handler {
	return &Handler{
		Merge:       ledger.NewMergeUpsertService(store, log),
		Annotations: ledger.NewAnnotationService(store, log),
		Summary:     ledger.NewRangeSummaryAggregator(store, resolver),
		Ledger:      store,
		Parties:     parties,
		Expenses:    expenses,
		Log:         log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// BULK UPSERT HANDLERS
// =============================================================================

func (h *Handler) parseMergeRequest(r *http.Request, shape ledger.BucketShape) (ledger.MergeRequest, error) {
	var body BulkUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ledger.MergeRequest{}, err
	}

	weekStart, err := weekclock.ParseDay(body.WeekStartDate)
	if err != nil {
		return ledger.MergeRequest{}, err
	}
	weekEnd, err := weekclock.ParseDay(body.WeekEndDate)
	if err != nil {
		return ledger.MergeRequest{}, err
	}

	req := ledger.MergeRequest{
		WeekStart:  weekStart,
		WeekEnd:    weekEnd,
		WeekNumber: body.WeekNumber,
		WeekYear:   body.WeekYear,
	}

	for _, p := range body.Payments {
		sub := ledger.Submission{PartyID: p.PartyID, Fields: p.fields()}
		if p.WeeklyNP != nil {
			sub.NetPayable = &ledger.NetPayable{
				Name:   p.WeeklyNP.Name,
				Amount: decimal.NewFromFloat(p.WeeklyNP.Amount),
			}
		}
		switch shape {
		case ledger.ShapeDay:
			if p.PaymentDate != "" {
				d, err := weekclock.ParseDay(p.PaymentDate)
				if err != nil {
					continue // malformed rows are skipped, not fatal
				}
				sub.Date = &d
			}
		case ledger.ShapeRange:
			if len(p.PaymentRange) == 2 {
				start, err := weekclock.ParseDay(p.PaymentRange[0])
				if err != nil {
					continue
				}
				end, err := weekclock.ParseDay(p.PaymentRange[1])
				if err != nil {
					continue
				}
				sub.Start, sub.End = &start, &end
			}
		}
		req.Submissions = append(req.Submissions, sub)
	}
	return req, nil
}

// BulkUpsertDayPayments merges a batch of per-day submissions.
func (h *Handler) BulkUpsertDayPayments(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseMergeRequest(r, ledger.ShapeDay)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	buckets, err := h.Merge.MergeDays(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "Failed to save weekly payments", err)
		return
	}

	dtos := make([]DayBucketDTO, len(buckets))
	for i, b := range buckets {
		dtos[i] = toDayBucketDTO(b, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// BulkUpsertRangePayments merges a batch of multi-day submissions.
func (h *Handler) BulkUpsertRangePayments(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseMergeRequest(r, ledger.ShapeRange)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	buckets, err := h.Merge.MergeRanges(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "Failed to save weekly multi-day payments", err)
		return
	}

	dtos := make([]RangeBucketDTO, len(buckets))
	for i, b := range buckets {
		dtos[i] = toRangeBucketDTO(b, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BUCKET QUERIES
// =============================================================================

// queryFilter is the common filter of both bucket listing endpoints.
type queryFilter struct {
	partyID    string
	weekNumber int
	weekYear   int
	window     *dateWindow
}

func parseQueryFilter(r *http.Request) (queryFilter, error) {
	q := r.URL.Query()
	f := queryFilter{partyID: q.Get("partyId")}
	f.weekNumber = atoiOrZero(q.Get("weekNumber"))
	f.weekYear = atoiOrZero(q.Get("weekYear"))

	startStr, endStr := q.Get("startDate"), q.Get("endDate")
	if startStr != "" || endStr != "" {
		if startStr == "" || endStr == "" {
			return f, errors.New("startDate and endDate must be given together")
		}
		start, err := weekclock.ParseDay(startStr)
		if err != nil {
			return f, err
		}
		end, err := weekclock.ParseDay(endStr)
		if err != nil {
			return f, err
		}
		if start.After(end) {
			return f, errors.New("startDate is after endDate")
		}
		f.window = &dateWindow{start: start, end: end}
	}

	if f.partyID == "" && f.window == nil {
		return f, errors.New("partyId or startDate/endDate filter is required")
	}
	return f, nil
}

// ListDayPayments queries day buckets by party, week, or overlap window.
// When a window is given, bucket entries are trimmed to the window.
func (h *Handler) ListDayPayments(w http.ResponseWriter, r *http.Request) {
	f, err := parseQueryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	var buckets []*ledger.DayBucket
	if f.window != nil {
		buckets, err = h.Ledger.FindDaysOverlapping(r.Context(), f.window.start, f.window.end)
	} else {
		buckets, err = h.Ledger.FindDaysByParty(r.Context(), f.partyID)
	}
	if err != nil {
		h.writeServiceError(w, "Failed to list weekly payments", err)
		return
	}

	dtos := make([]DayBucketDTO, 0, len(buckets))
	for _, b := range buckets {
		if !matchesFilter(b.Key, f) {
			continue
		}
		dtos = append(dtos, toDayBucketDTO(b, f.window))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListRangePayments queries range buckets by party, week, or overlap window.
func (h *Handler) ListRangePayments(w http.ResponseWriter, r *http.Request) {
	f, err := parseQueryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	var buckets []*ledger.RangeBucket
	if f.window != nil {
		buckets, err = h.Ledger.FindRangesOverlapping(r.Context(), f.window.start, f.window.end)
	} else {
		buckets, err = h.Ledger.FindRangesByParty(r.Context(), f.partyID)
	}
	if err != nil {
		h.writeServiceError(w, "Failed to list multi-day payments", err)
		return
	}

	dtos := make([]RangeBucketDTO, 0, len(buckets))
	for _, b := range buckets {
		if !matchesFilter(b.Key, f) {
			continue
		}
		dtos = append(dtos, toRangeBucketDTO(b, f.window))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func matchesFilter(key ledger.WeekKey, f queryFilter) bool {
	if f.partyID != "" && key.PartyID != f.partyID {
		return false
	}
	if f.weekNumber > 0 && key.WeekNumber != f.weekNumber {
		return false
	}
	if f.weekYear > 0 && key.WeekYear != f.weekYear {
		return false
	}
	return true
}

// =============================================================================
// ANNOTATION HANDLER
// =============================================================================

// SetColor sets the settlement color on one entry or party total.
func (h *Handler) SetColor(w http.ResponseWriter, r *http.Request) {
	var body SetColorRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req := ledger.AnnotationRequest{
		PartyID:    body.PartyID,
		Color:      ledger.Annotation(body.Color),
		PartyTotal: body.IsPartyTotal,
	}

	switch body.PaymentType {
	case "range":
		req.Shape = ledger.ShapeRange
		if !body.IsPartyTotal {
			start, end, err := weekclock.ParseDayRange(body.Target)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid target range", err)
				return
			}
			req.Start, req.End = &start, &end
		}
	case "day", "daily", "weekly": // the UI historically sent all three
		req.Shape = ledger.ShapeDay
		if !body.IsPartyTotal {
			date, err := weekclock.ParseDay(body.Target)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid target date", err)
				return
			}
			req.Date = &date
		}
	default:
		writeError(w, http.StatusBadRequest, "Invalid paymentType (use day or range)", nil)
		return
	}

	saved, err := h.Annotations.Set(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "Failed to update color", err)
		return
	}
	writeJSON(w, http.StatusOK, SetColorResponse{SavedColor: string(saved)})
}

// =============================================================================
// RANGE SUMMARY HANDLER
// =============================================================================

// GetRangeSummary reports ledger activity inside a date window.
func (h *Handler) GetRangeSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := weekclock.ParseDay(q.Get("startDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "startDate and endDate (YYYY-MM-DD) are required", err)
		return
	}
	end, err := weekclock.ParseDay(q.Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "startDate and endDate (YYYY-MM-DD) are required", err)
		return
	}

	summary, err := h.Summary.Summarize(r.Context(), start, end)
	if err != nil {
		h.writeServiceError(w, "Failed to build range summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// PARTY HANDLERS
// =============================================================================

// ListParties returns parties, filterable by type and active flag.
func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := party.Filter{
		Type:       party.Type(q.Get("type")),
		ActiveOnly: q.Get("active") == "true",
	}
	if f.Type != "" && !f.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid party type", nil)
		return
	}

	parties, err := h.Parties.ListParties(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, "Failed to list parties", err)
		return
	}

	dtos := make([]PartyDTO, len(parties))
	for i := range parties {
		dtos[i] = toPartyDTO(&parties[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateParty registers a new party.
func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var body CreatePartyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "partyName is required", nil)
		return
	}
	pType := party.Type(body.Type)
	if !pType.Valid() {
		writeError(w, http.StatusBadRequest, "partyType must be daily or multiday", nil)
		return
	}

	now := time.Now().UTC()
	p := party.Party{
		ID:        uuid.NewString(),
		Name:      body.Name,
		Code:      body.Code,
		Type:      pType,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if body.IsActive != nil {
		p.IsActive = *body.IsActive
	}

	if err := h.Parties.CreateParty(r.Context(), p); err != nil {
		h.writeServiceError(w, "Failed to create party", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartyDTO(&p))
}

// GetParty returns a single party.
func (h *Handler) GetParty(w http.ResponseWriter, r *http.Request) {
	p, err := h.Parties.GetParty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Party not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toPartyDTO(p))
}

// UpdateParty rewrites a party's fields.
func (h *Handler) UpdateParty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body CreatePartyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	current, err := h.Parties.GetParty(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "Party not found", err)
		return
	}

	if body.Name != "" {
		current.Name = body.Name
	}
	if body.Code != "" {
		current.Code = body.Code
	}
	if body.Type != "" {
		pType := party.Type(body.Type)
		if !pType.Valid() {
			writeError(w, http.StatusBadRequest, "partyType must be daily or multiday", nil)
			return
		}
		current.Type = pType
	}
	if body.IsActive != nil {
		current.IsActive = *body.IsActive
	}

	if err := h.Parties.UpdateParty(r.Context(), *current); err != nil {
		h.writeServiceError(w, "Failed to update party", err)
		return
	}
	writeJSON(w, http.StatusOK, toPartyDTO(current))
}

// DeactivateParty flags a party inactive. Ledger history is kept.
func (h *Handler) DeactivateParty(w http.ResponseWriter, r *http.Request) {
	if err := h.Parties.DeactivateParty(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, "Failed to deactivate party", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// ListExpenses returns expenses filtered by window and category.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f expense.Filter
	var err error
	if s := q.Get("startDate"); s != "" {
		if f.Start, err = weekclock.ParseDay(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid startDate", err)
			return
		}
	}
	if s := q.Get("endDate"); s != "" {
		if f.End, err = weekclock.ParseDay(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid endDate", err)
			return
		}
	}
	if c := q.Get("category"); c != "" {
		f.Category = expense.Category(c)
		if !f.Category.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid category", nil)
			return
		}
	}

	expenses, err := h.Expenses.ListExpenses(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, "Failed to list expenses", err)
		return
	}

	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateExpense records an expense, stamping its ISO week key.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var body CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "expenseName is required", nil)
		return
	}
	if body.Amount < 0 {
		writeError(w, http.StatusBadRequest, "expenseAmount must not be negative", nil)
		return
	}
	cat := expense.Category(body.Category)
	if !cat.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid expenseCategory", nil)
		return
	}
	date, err := weekclock.ParseDay(body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expenseDate (use YYYY-MM-DD)", err)
		return
	}

	week, year := weekclock.WeekOf(date)
	now := time.Now().UTC()
	e := expense.Expense{
		ID:         uuid.NewString(),
		Name:       body.Name,
		Amount:     decimal.NewFromFloat(body.Amount),
		Date:       date,
		Category:   cat,
		Remarks:    body.Remarks,
		WeekNumber: week,
		WeekYear:   year,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.Expenses.CreateExpense(r.Context(), e); err != nil {
		h.writeServiceError(w, "Failed to create expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

// DeleteExpense removes an expense record.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.Expenses.DeleteExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, "Failed to delete expense", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
