package handler

import (
	"context"
	"errors"
	"log"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/core/service"
)

type GRPCHandler struct {
	auth      *service.AuthService
	inventory *service.InventoryService
	reports   *service.ReportService
}

func NewGRPCHandler(auth *service.AuthService, inventory *service.InventoryService, reports *service.ReportService) *GRPCHandler {
	return &GRPCHandler{auth: auth, inventory: inventory, reports: reports}
}

// AuthInterceptor authenticates calls to the inventory service with the
// "authorization: Bearer <token>" metadata entry. Other services pass through.
func (h *GRPCHandler) AuthInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+InventoryServiceName+"/") {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	var token string
	for _, v := range md.Get("authorization") {
		if t, ok := strings.CutPrefix(v, "Bearer "); ok {
			token = strings.TrimSpace(t)
			break
		}
	}
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "please sign in")
	}

	account, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}
	return handler(context.WithValue(ctx, accountKey, account), req)
}

func (h *GRPCHandler) ListRecords(ctx context.Context, req *ListRecordsRequest) (*ListRecordsResponse, error) {
	records, err := h.inventory.List(ctx, accountFrom(ctx).ID, domain.ListQuery{
		Search: req.Search,
		SortBy: domain.ParseSortKey(req.Sort),
		Order:  domain.ParseSortOrder(req.Order),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListRecordsResponse{Records: toRecords(records)}, nil
}

func (h *GRPCHandler) GetRecord(ctx context.Context, req *GetRecordRequest) (*Record, error) {
	record, err := h.inventory.Get(ctx, accountFrom(ctx).ID, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := toRecord(record)
	return &out, nil
}

func (h *GRPCHandler) GetReportSummary(ctx context.Context, req *GetReportSummaryRequest) (*ReportSummary, error) {
	report, err := h.reports.Summarize(ctx, accountFrom(ctx).ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ReportSummary{
		Records:     toRecords(report.Items),
		TotalItems:  report.TotalItems,
		TotalPrice:  report.TotalPrice.StringFixed(2),
		GeneratedBy: report.GeneratedBy,
		GeneratedAt: report.GeneratedAt,
	}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrSessionRevoked):
		return status.Error(codes.Unauthenticated, "please sign in again")
	case domain.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	log.Printf("grpc: %v", err)
	return status.Error(codes.Internal, "internal error")
}

func toRecord(r domain.InventoryRecord) Record {
	return Record{
		ID:        r.ID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		Price:     r.Price.StringFixed(2),
		Photo:     r.Photo,
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	}
}

func toRecords(records []domain.InventoryRecord) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, toRecord(r))
	}
	return out
}
