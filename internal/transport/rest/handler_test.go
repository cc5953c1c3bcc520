package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pawedaran/internal/domain"
	"pawedaran/internal/repository"
	"pawedaran/internal/service"
	"pawedaran/internal/transport/auth"

	"github.com/shopspring/decimal"
)

type fakePromos struct {
	evaluateFn func(ctx context.Context, code string, subtotal decimal.Decimal) (service.EvaluationResult, error)
	createFn   func(ctx context.Context, in service.PromoInput, requester domain.Requester) (*domain.Promo, error)
	redeemFn   func(ctx context.Context, code string, requester domain.Requester) (*domain.Promo, error)
}

func (f *fakePromos) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (service.EvaluationResult, error) {
	if f.evaluateFn != nil {
		return f.evaluateFn(ctx, code, subtotal)
	}
	return service.EvaluationResult{}, nil
}

func (f *fakePromos) Create(ctx context.Context, in service.PromoInput, requester domain.Requester) (*domain.Promo, error) {
	if f.createFn != nil {
		return f.createFn(ctx, in, requester)
	}
	return &domain.Promo{Code: in.Code}, nil
}

func (f *fakePromos) Update(ctx context.Context, id string, in service.PromoInput, requester domain.Requester) (*domain.Promo, error) {
	return &domain.Promo{ID: id, Code: in.Code}, nil
}

func (f *fakePromos) Delete(ctx context.Context, id string, requester domain.Requester) error {
	return nil
}

func (f *fakePromos) Get(ctx context.Context, id string, requester domain.Requester) (*domain.Promo, error) {
	return nil, domain.ErrPromoNotFound
}

func (f *fakePromos) List(ctx context.Context, filter repository.PromosFilter, requester domain.Requester) ([]domain.Promo, error) {
	return []domain.Promo{}, nil
}

func (f *fakePromos) Redeem(ctx context.Context, code string, requester domain.Requester) (*domain.Promo, error) {
	if f.redeemFn != nil {
		return f.redeemFn(ctx, code, requester)
	}
	return &domain.Promo{Code: code}, nil
}

type fakeDebts struct {
	applyFn func(ctx context.Context, in service.PaymentInput, requester domain.Requester) (*service.PaymentResult, error)
	getFn   func(ctx context.Context, id string, requester domain.Requester) (*domain.Debt, error)
}

func (f *fakeDebts) ApplyPayment(ctx context.Context, in service.PaymentInput, requester domain.Requester) (*service.PaymentResult, error) {
	if f.applyFn != nil {
		return f.applyFn(ctx, in, requester)
	}
	return &service.PaymentResult{}, nil
}

func (f *fakeDebts) GetDebt(ctx context.Context, id string, requester domain.Requester) (*domain.Debt, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id, requester)
	}
	return &domain.Debt{ID: id}, nil
}

func (f *fakeDebts) ListDebts(ctx context.Context, requester domain.Requester) ([]domain.Debt, error) {
	return []domain.Debt{}, nil
}

func (f *fakeDebts) ListPayments(ctx context.Context, debtID string, requester domain.Requester) ([]domain.DebtPayment, error) {
	return []domain.DebtPayment{}, nil
}

func (f *fakeDebts) StartLedgerExport(ctx context.Context, debtID string, requester domain.Requester) (string, error) {
	return "exports:abc", nil
}

type fakeExports struct{}

func (fakeExports) List(ctx context.Context, requester domain.Requester) ([]service.ExportStatus, error) {
	return []service.ExportStatus{}, nil
}

func (fakeExports) Get(ctx context.Context, exportID string, requester domain.Requester) (*service.ExportStatus, error) {
	return nil, domain.ErrExportNotFound
}

type fakeFiles struct {
	saved []string
}

func (f *fakeFiles) Save(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	f.saved = append(f.saved, contentType)
	return "proofs/" + fileName, nil
}

func (f *fakeFiles) URL(ctx context.Context, key string) (string, error) {
	return "http://files.test/" + key, nil
}

func asUser(requester domain.Requester) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithRequester(r.Context(), requester)))
		})
	}
}

var testUser = domain.Requester{ID: 7, Role: domain.RoleUser}

func newTestServer(t *testing.T, promos PromoAPI, debts DebtAPI, files service.FileStorage) *httptest.Server {
	t.Helper()
	h := NewHandler(promos, debts, fakeExports{}, files, nil)
	srv := httptest.NewServer(h.InitRouterWithAuth(asUser(testUser)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (int, APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestEvaluatePromo_AlwaysOKForBusinessOutcomes(t *testing.T) {
	promos := &fakePromos{
		evaluateFn: func(ctx context.Context, code string, subtotal decimal.Decimal) (service.EvaluationResult, error) {
			if code == "SAVE10" {
				d := subtotal.Div(decimal.NewFromInt(10))
				return service.EvaluationResult{Valid: true, Discount: &d}, nil
			}
			return service.EvaluationResult{Valid: false, Message: service.MsgPromoNotFound}, nil
		},
	}
	srv := newTestServer(t, promos, &fakeDebts{}, nil)

	status, resp := doJSON(t, http.MethodPost, srv.URL+"/promos/evaluate", `{"code":"SAVE10","subtotal":100000}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	data := resp.Data.(map[string]interface{})
	if data["valid"] != true || data["discount"] != "10000" {
		t.Fatalf("unexpected data: %+v", data)
	}

	status, resp = doJSON(t, http.MethodPost, srv.URL+"/promos/evaluate", `{"code":"NOPE","subtotal":"100"}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for unknown code, got %d", status)
	}
	data = resp.Data.(map[string]interface{})
	if data["valid"] != false || data["message"] != service.MsgPromoNotFound {
		t.Fatalf("unexpected data: %+v", data)
	}
}

func TestEvaluatePromo_InfrastructureFailure(t *testing.T) {
	promos := &fakePromos{
		evaluateFn: func(ctx context.Context, code string, subtotal decimal.Decimal) (service.EvaluationResult, error) {
			return service.EvaluationResult{}, errors.New("db down")
		},
	}
	srv := newTestServer(t, promos, &fakeDebts{}, nil)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/promos/evaluate", `{"code":"SAVE10","subtotal":1}`)
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
}

func TestEvaluatePromo_BadSubtotal(t *testing.T) {
	srv := newTestServer(t, &fakePromos{}, &fakeDebts{}, nil)

	status, resp := doJSON(t, http.MethodPost, srv.URL+"/promos/evaluate", `{"code":"SAVE10"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if data, ok := resp.Data.(map[string]interface{}); !ok || data["field"] != "subtotal" {
		t.Fatalf("expected subtotal field error, got %+v", resp.Data)
	}
}

func TestApplyPayment_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"created", `{"amount":"50000"}`, nil, http.StatusCreated},
		{"invalid amount", `{"amount":0}`, domain.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{"not found", `{"amount":10}`, domain.ErrDebtNotFound, http.StatusNotFound},
		{"forbidden", `{"amount":10}`, domain.ErrForbidden, http.StatusForbidden},
		{"exceeds", `{"amount":10}`, domain.ErrExceedsRemaining, http.StatusConflict},
		{"persistence", `{"amount":10}`, fmt.Errorf("%w: insert payment: boom", domain.ErrPersistence), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			debts := &fakeDebts{
				applyFn: func(ctx context.Context, in service.PaymentInput, requester domain.Requester) (*service.PaymentResult, error) {
					if in.DebtID != "d1" || requester.ID != testUser.ID {
						t.Errorf("unexpected input %+v by %+v", in, requester)
					}
					if tc.err != nil {
						return nil, tc.err
					}
					return &service.PaymentResult{Payment: domain.DebtPayment{ID: "p1", Amount: in.Amount}}, nil
				},
			}
			srv := newTestServer(t, &fakePromos{}, debts, nil)

			status, _ := doJSON(t, http.MethodPost, srv.URL+"/debts/d1/payments", tc.body)
			if status != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, status)
			}
		})
	}
}

func TestApplyPayment_UnparseableAmountIsInvalidAmount(t *testing.T) {
	called := false
	debts := &fakeDebts{
		applyFn: func(ctx context.Context, in service.PaymentInput, requester domain.Requester) (*service.PaymentResult, error) {
			called = true
			return nil, nil
		},
	}
	srv := newTestServer(t, &fakePromos{}, debts, nil)

	for _, body := range []string{`{"amount":"NaN"}`, `{"amount":"abc"}`, `{}`, `{"amount":true}`} {
		status, _ := doJSON(t, http.MethodPost, srv.URL+"/debts/d1/payments", body)
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", body, status)
		}
	}
	if called {
		t.Fatalf("service must not be called for an unparseable amount")
	}
}

func TestApplyPayment_SubCentAmountIsInvalidAmount(t *testing.T) {
	var amounts []string
	debts := &fakeDebts{
		applyFn: func(ctx context.Context, in service.PaymentInput, requester domain.Requester) (*service.PaymentResult, error) {
			amounts = append(amounts, in.Amount.String())
			return &service.PaymentResult{Payment: domain.DebtPayment{ID: "p1", Amount: in.Amount}}, nil
		},
	}
	srv := newTestServer(t, &fakePromos{}, debts, nil)

	for _, body := range []string{`{"amount":0.004}`, `{"amount":"10.005"}`, `{"amount":10.004}`} {
		status, _ := doJSON(t, http.MethodPost, srv.URL+"/debts/d1/payments", body)
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", body, status)
		}
	}
	if len(amounts) != 0 {
		t.Fatalf("service must not be called for sub-cent amounts, got %v", amounts)
	}

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/debts/d1/payments", `{"amount":"10.50"}`)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 for a whole-cent amount, got %d", status)
	}
}

func TestApplyPayment_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, &fakePromos{}, &fakeDebts{}, nil)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/debts/d1/payments", `{"amount":`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestCreatePromo(t *testing.T) {
	var got service.PromoInput
	promos := &fakePromos{
		createFn: func(ctx context.Context, in service.PromoInput, requester domain.Requester) (*domain.Promo, error) {
			got = in
			if requester.Role != domain.RoleSuperAdmin {
				return nil, domain.ErrForbidden
			}
			return &domain.Promo{Code: in.Code}, nil
		},
	}
	srv := newTestServer(t, promos, &fakeDebts{}, nil)

	body := `{"code":"SAVE10","discount_type":"percentage","discount_value":"10","max_usage":100,"valid_until":"2025-12-31"}`
	status, _ := doJSON(t, http.MethodPost, srv.URL+"/promos", body)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", status)
	}
	if got.DiscountType != domain.DiscountPercentage || got.MaxUsage == nil || *got.MaxUsage != 100 || got.ValidUntil == nil {
		t.Fatalf("unexpected parsed input: %+v", got)
	}
	if !got.DiscountValue.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected discount value %s", got.DiscountValue)
	}
}

func TestCreatePromo_ShapeErrors(t *testing.T) {
	srv := newTestServer(t, &fakePromos{}, &fakeDebts{}, nil)

	cases := map[string]string{
		"code":           `{"discount_type":"FIXED","discount_value":1}`,
		"discount_value": `{"code":"SAVE10","discount_type":"FIXED"}`,
		"is_active":      `{"code":"SAVE10","discount_type":"FIXED","discount_value":1,"is_active":"yes"}`,
		"valid_from":     `{"code":"SAVE10","discount_type":"FIXED","discount_value":1,"valid_from":"tomorrow"}`,
	}
	for field, body := range cases {
		status, resp := doJSON(t, http.MethodPost, srv.URL+"/promos", body)
		if status != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", field, status)
		}
		data, _ := resp.Data.(map[string]interface{})
		if data["field"] != field {
			t.Fatalf("expected field %q, got %+v", field, resp.Data)
		}
	}
}

func TestRedeemPromo_LimitIsConflict(t *testing.T) {
	promos := &fakePromos{
		redeemFn: func(ctx context.Context, code string, requester domain.Requester) (*domain.Promo, error) {
			if code != "SAVE10" {
				t.Errorf("unexpected code %q", code)
			}
			return nil, domain.ErrPromoUsageLimit
		},
	}
	srv := newTestServer(t, promos, &fakeDebts{}, nil)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/promos/SAVE10/redeem", ``)
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
}

func TestGetPromoAndExportNotFound(t *testing.T) {
	srv := newTestServer(t, &fakePromos{}, &fakeDebts{}, nil)

	if status, _ := doJSON(t, http.MethodGet, srv.URL+"/promos/unknown", ``); status != http.StatusNotFound {
		t.Fatalf("expected 404 for promo, got %d", status)
	}
	if status, _ := doJSON(t, http.MethodGet, srv.URL+"/exports/unknown", ``); status != http.StatusNotFound {
		t.Fatalf("expected 404 for export, got %d", status)
	}
}

func TestExportPayments_Accepted(t *testing.T) {
	srv := newTestServer(t, &fakePromos{}, &fakeDebts{}, nil)

	status, resp := doJSON(t, http.MethodPost, srv.URL+"/debts/d1/payments/export", ``)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	if data := resp.Data.(map[string]interface{}); data["export_id"] != "exports:abc" {
		t.Fatalf("unexpected data: %+v", data)
	}
}

func TestUnauthenticatedRequest(t *testing.T) {
	h := NewHandler(&fakePromos{}, &fakeDebts{}, fakeExports{}, nil, nil)
	srv := httptest.NewServer(h.InitRouter())
	defer srv.Close()

	status, _ := doJSON(t, http.MethodGet, srv.URL+"/debts", ``)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without requester, got %d", status)
	}
	status, _ = doJSON(t, http.MethodGet, srv.URL+"/health", ``)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for health, got %d", status)
	}
}

func uploadRequest(t *testing.T, url string, name string, content []byte) (int, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestUploadProof(t *testing.T) {
	files := &fakeFiles{}
	srv := newTestServer(t, &fakePromos{}, &fakeDebts{}, files)

	pdf := []byte("%PDF-1.4\n%fake\n")
	status, resp := uploadRequest(t, srv.URL+"/uploads/payment-proof", "receipt.pdf", pdf)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	data := resp.Data.(map[string]interface{})
	if data["key"] != "proofs/receipt.pdf" || data["url"] != "http://files.test/proofs/receipt.pdf" {
		t.Fatalf("unexpected data: %+v", data)
	}
	if len(files.saved) != 1 || files.saved[0] != "application/pdf" {
		t.Fatalf("expected sniffed pdf content type, got %v", files.saved)
	}

	status, _ = uploadRequest(t, srv.URL+"/uploads/payment-proof", "script.pdf", []byte("#!/bin/sh\necho hi\n"))
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for text upload, got %d", status)
	}

	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), maxProofSize)...)
	status, _ = uploadRequest(t, srv.URL+"/uploads/payment-proof", "big.pdf", big)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized upload, got %d", status)
	}
}
