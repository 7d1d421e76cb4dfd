package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bookkeeper/internal/expense"
	"bookkeeper/internal/models"
)

// FilterForm echoes the list filter back into its inputs.
type FilterForm struct {
	Start    string
	End      string
	Category string
	Search   string
}

// ListViewModel is the data passed to the list view template.
type ListViewModel struct {
	Page
	Expenses   []models.Expense
	Total      decimal.Decimal
	Categories []string
	Filter     FilterForm
	ExportURL  string
}

// ListExpenses renders the filtered list with its total.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := expense.ParseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, "Dates must use the YYYY-MM-DD format", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	expenses, err := expense.Collect(h.Store.Find(ctx, f))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	total, err := h.Aggregator.Total(ctx, f)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	categories, err := h.Service.Categories(ctx)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	q := r.URL.Query()
	exportURL := "/export.csv"
	if v := f.Values(); len(v) > 0 {
		exportURL += "?" + v.Encode()
	}
	h.render(w, r, "list.html", ListViewModel{
		Page:       h.page(w, r, "Expenses"),
		Expenses:   expenses,
		Total:      total,
		Categories: categories,
		Filter: FilterForm{
			Start:    q.Get("start"),
			End:      q.Get("end"),
			Category: q.Get("category"),
			Search:   q.Get("search"),
		},
		ExportURL: exportURL,
	})
}

// FormViewModel is the data passed to the add/edit form template.
type FormViewModel struct {
	Page
	IsEdit     bool
	Action     string
	Expense    models.Expense
	Date       string
	Amount     string
	Categories []string
	Accept     string
}

const acceptReceipts = ".png,.jpg,.jpeg,.pdf"

// AddExpenseForm renders the form to create a new expense.
func (h *Handlers) AddExpenseForm(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Service.Categories(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "form.html", FormViewModel{
		Page:       h.page(w, r, "Add expense"),
		Action:     "/add",
		Date:       models.DateOf(h.Now()).Format(models.DateLayout),
		Categories: categories,
		Accept:     acceptReceipts,
	})
}

// AddExpense handles the creation of a new expense.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseInput(w, r)
	if err != nil {
		h.inputError(w, r, err, "/add")
		return
	}
	id, err := h.Service.Add(r.Context(), in)
	if err != nil {
		h.mutationError(w, r, err, "/add")
		return
	}
	h.Logger.InfoContext(r.Context(), "expense added", "id", id)
	h.setFlash(w, "Expense added.")
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

// EditExpenseForm renders the form to edit an existing expense.
func (h *Handlers) EditExpenseForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.mutationError(w, r, err, "/expenses")
		return
	}
	categories, err := h.Service.Categories(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "form.html", FormViewModel{
		Page:       h.page(w, r, "Edit expense"),
		IsEdit:     true,
		Action:     "/edit/" + id,
		Expense:    e,
		Date:       e.DateText(),
		Amount:     expense.FormatAmount(e.Amount),
		Categories: categories,
		Accept:     acceptReceipts,
	})
}

// UpdateExpense handles the update of an existing expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	formPath := "/edit/" + id
	in, err := h.parseInput(w, r)
	if err != nil {
		h.inputError(w, r, err, formPath)
		return
	}
	cleanup, err := h.Service.Edit(r.Context(), id, in)
	if err != nil {
		h.mutationError(w, r, err, formPath)
		return
	}
	h.logCleanup(r, cleanup)
	h.setFlash(w, "Expense updated.")
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

// DeleteExpense removes an expense and its receipt.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	cleanup, err := h.Service.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		h.mutationError(w, r, err, "/expenses")
		return
	}
	h.logCleanup(r, cleanup)
	h.setFlash(w, "Expense deleted.")
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

// Receipt streams a stored receipt file.
func (h *Handlers) Receipt(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Receipt(r.Context(), r.PathValue("ref"))
	if errors.Is(err, expense.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", rec.Filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(rec.Data)
}

// Export streams the filtered expenses as a CSV download.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	f, err := expense.ParseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, "Dates must use the YYYY-MM-DD format", http.StatusBadRequest)
		return
	}

	// The header row is held back until the store has answered so a failing
	// store still yields a proper error status.
	var header string
	started, rows := false, 0
	start := func() {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", expense.ExportFilename))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, header+"\n")
		started = true
	}

	first := true
	for row, err := range h.Exporter.Rows(r.Context(), f) {
		if err != nil {
			if !started {
				h.serverError(w, r, err)
				return
			}
			h.Logger.ErrorContext(r.Context(), "export aborted", "rows", rows, "error", err)
			panic(http.ErrAbortHandler)
		}
		if first {
			header, first = row, false
			continue
		}
		if !started {
			start()
		}
		if _, err := io.WriteString(w, row+"\n"); err != nil {
			// Client went away.
			return
		}
		rows++
	}
	if !started {
		start()
	}
	h.Logger.InfoContext(r.Context(), "expenses exported", "rows", rows)
}

// parseInput reads the add/edit form, including an optional receipt upload.
func (h *Handlers) parseInput(w http.ResponseWriter, r *http.Request) (expense.Input, error) {
	if h.MaxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	}
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(8 << 20)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return expense.Input{}, err
	}

	in := expense.Input{
		Date:     r.FormValue("date"),
		Vendor:   r.FormValue("vendor"),
		Category: r.FormValue("category"),
		Amount:   r.FormValue("amount"),
		Notes:    r.FormValue("notes"),
	}

	file, header, err := r.FormFile("receipt")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return in, nil
	}
	if err != nil {
		return expense.Input{}, err
	}
	defer file.Close()
	if header.Filename == "" {
		return in, nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return expense.Input{}, err
	}
	in.Receipt = &expense.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return in, nil
}

func (h *Handlers) inputError(w http.ResponseWriter, r *http.Request, err error, formPath string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	}
	h.Logger.WarnContext(r.Context(), "invalid form submission", "error", err)
	h.setFlash(w, "Invalid form submission.")
	http.Redirect(w, r, formPath, http.StatusSeeOther)
}

// mutationError maps service errors to a flash and redirect, or an error status.
func (h *Handlers) mutationError(w http.ResponseWriter, r *http.Request, err error, formPath string) {
	switch {
	case errors.Is(err, expense.ErrInvalidAmount):
		h.setFlash(w, "Amount must be a number.")
	case errors.Is(err, expense.ErrInvalidDate):
		h.setFlash(w, "Date must use the YYYY-MM-DD format.")
	case errors.Is(err, expense.ErrInvalidFileType):
		h.setFlash(w, "Receipt must be a PNG, JPG, JPEG or PDF file.")
	case errors.Is(err, expense.ErrNotFound):
		h.setFlash(w, "Not found.")
		formPath = "/expenses"
	default:
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, formPath, http.StatusSeeOther)
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, expense.ErrStorageUnavailable) {
		h.Logger.ErrorContext(r.Context(), "storage unavailable", "error", err)
		http.Error(w, "Storage is temporarily unavailable. Please try again.", http.StatusServiceUnavailable)
		return
	}
	h.Logger.ErrorContext(r.Context(), "request failed", "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handlers) logCleanup(r *http.Request, c expense.Cleanup) {
	if c.Failed() {
		h.Logger.WarnContext(r.Context(), "receipt cleanup failed", "ref", c.Ref, "error", c.Err)
	}
}
