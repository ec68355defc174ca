package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/core/service"
	"github.com/rl1809/easy-inventory/internal/port"
)

const (
	maxFormMemory   = 32 << 20
	formOverhead    = 1 << 20
	streamKeepAlive = 25 * time.Second
)

type reportDTO struct {
	Items       []recordDTO `json:"items"`
	TotalItems  int         `json:"total_items"`
	TotalPrice  string      `json:"total_price"`
	GeneratedBy string      `json:"generated_by"`
	GeneratedAt time.Time   `json:"generated_at"`
}

func toReportDTO(r domain.Report) reportDTO {
	items := make([]recordDTO, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, toRecordDTO(it))
	}
	return reportDTO{
		Items:       items,
		TotalItems:  r.TotalItems,
		TotalPrice:  r.TotalPrice.StringFixed(2),
		GeneratedBy: r.GeneratedBy,
		GeneratedAt: r.GeneratedAt,
	}
}

func (h *HTTPHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.inventory.List(r.Context(), accountFrom(r.Context()).ID, domain.ListQuery{
		Search: q.Get("search"),
		SortBy: domain.ParseSortKey(q.Get("sort")),
		Order:  domain.ParseSortOrder(q.Get("order")),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]recordDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: out})
}

func (h *HTTPHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.inventory.Get(r.Context(), accountFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toRecordDTO(record)})
}

func (h *HTTPHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	form, photo, err := h.parseRecordForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.inventory.Create(r.Context(), accountFrom(r.Context()).ID, form, photo, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "item added", Data: toRecordDTO(record)})
}

func (h *HTTPHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	form, photo, err := h.parseRecordForm(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	version := 0
	if v := strings.TrimSpace(r.FormValue("version")); v != "" {
		version, err = strconv.Atoi(v)
		if err != nil || version < 0 {
			writeJSON(w, http.StatusBadRequest, Response{Message: "invalid version"})
			return
		}
	}

	record, err := h.inventory.Update(r.Context(), accountFrom(r.Context()).ID, chi.URLParam(r, "id"), form, photo, version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "item updated", Data: toRecordDTO(record)})
}

func (h *HTTPHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Delete(r.Context(), accountFrom(r.Context()).ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "item deleted"})
}

// parseRecordForm reads name, quantity and price from a multipart or
// urlencoded body, plus the optional "photo" file part.
func (h *HTTPHandler) parseRecordForm(w http.ResponseWriter, r *http.Request) (domain.RecordForm, *domain.PhotoUpload, error) {
	if h.cfg.MaxPhotoBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPhotoBytes+formOverhead)
	}

	err := r.ParseMultipartForm(maxFormMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.RecordForm{}, nil, service.ErrPhotoTooLarge
		}
		return domain.RecordForm{}, nil, &domain.ValidationError{Message: "invalid form"}
	}

	form := domain.RecordForm{
		Name:     r.FormValue("name"),
		Quantity: r.FormValue("quantity"),
		Price:    r.FormValue("price"),
	}

	if r.MultipartForm == nil {
		return form, nil, nil
	}
	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil, nil
	}
	if err != nil {
		return domain.RecordForm{}, nil, fmt.Errorf("read photo: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.RecordForm{}, nil, fmt.Errorf("read photo: %w", err)
	}
	return form, &domain.PhotoUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Stream sends the owner's change feed as server-sent events.
func (h *HTTPHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, closeFeed, err := h.inventory.Subscribe(ctx, accountFrom(ctx).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFeed()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Printf("http: stream flush: %v", err)
		return
	}

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				log.Printf("http: encode event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// Photo serves a stored photo by its bucket key.
func (h *HTTPHandler) Photo(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" || strings.Contains(key, "..") {
		http.NotFound(w, r)
		return
	}

	body, contentType, err := h.blobs.OpenBlob(r.Context(), key)
	if errors.Is(err, port.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("http: open photo %s: %v", key, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("http: copy photo %s: %v", key, err)
	}
}

func (h *HTTPHandler) ReportSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Summarize(r.Context(), accountFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: toReportDTO(report)})
}

// ReportPDF writes the report to the server's report directory and returns it.
func (h *HTTPHandler) ReportPDF(w http.ResponseWriter, r *http.Request) {
	generated, err := h.reports.Generate(r.Context(), accountFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", generated.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(generated.Content)))
	w.WriteHeader(http.StatusOK)
	w.Write(generated.Content)
}
