package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"pawedaran/internal/clients"
	"pawedaran/internal/domain"
	"pawedaran/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type DebtStore interface {
	ExecTx(ctx context.Context, fn func(repository.LedgerQuerier) error) error
	GetByID(ctx context.Context, id string) (*domain.Debt, error)
	List(ctx context.Context, f repository.DebtsFilter) ([]domain.Debt, error)
	ListPayments(ctx context.Context, f repository.PaymentsFilter) ([]domain.DebtPayment, error)
}

type Notifier interface {
	NotifyPaymentApplied(ctx context.Context, debt domain.Debt, payment domain.DebtPayment) error
	NotifyExportProgress(ctx context.Context, userID int64, exportID string, progress float64, stage string) error
	NotifyExportComplete(ctx context.Context, userID int64, exportID string, url string, filename string) error
	NotifyExportFailed(ctx context.Context, userID int64, exportID string, errMsg string) error
}

type EventPublisher interface {
	PublishPaymentApplied(ctx context.Context, ev clients.PaymentEvent) error
}

type PaymentInput struct {
	DebtID string
	Amount decimal.Decimal
	Proof  *string
	Notes  *string
}

type PaymentResult struct {
	Payment domain.DebtPayment `json:"payment"`
	Debt    domain.Debt        `json:"debt"`
}

const (
	exportKeyPrefix       = "exports:"
	maxPaymentsForExport  = 100_000
	exportProgressEvery   = 500
	exportUploadProgress  = 95
	exportGenerateTimeout = 10 * time.Minute
)

type DebtService struct {
	store   DebtStore
	ws      Notifier
	events  EventPublisher
	files   FileStorage
	exports exportStore
	now     Clock
	newID   IDGenerator
}

// NewDebtService builds the ledger service. ws, events and files may be nil; without files
// ledger exports are rejected.
func NewDebtService(
	store DebtStore,
	cache Cache,
	files FileStorage,
	ws Notifier,
	events EventPublisher,
	exportTTL time.Duration,
	now Clock,
	newID IDGenerator,
) *DebtService {
	return &DebtService{
		store:   store,
		ws:      ws,
		events:  events,
		files:   files,
		exports: exportStore{cache: cache, ttl: exportTTL},
		now:     now,
		newID:   newID,
	}
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

func isLedgerRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrDebtNotFound) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrExceedsRemaining)
}

// ApplyPayment records a payment of in.Amount against in.DebtID. The payment row and the new
// debt balance are written in one transaction under a row lock on the debt.
func (s *DebtService) ApplyPayment(ctx context.Context, in PaymentInput, requester domain.Requester) (*PaymentResult, error) {
	// amounts the NUMERIC(14, 2) columns would round are invalid
	if !in.Amount.IsPositive() || !domain.IsWholeCents(in.Amount) {
		return nil, domain.ErrInvalidAmount
	}
	if _, err := uuid.Parse(in.DebtID); err != nil {
		return nil, domain.ErrDebtNotFound
	}

	var result PaymentResult
	err := s.store.ExecTx(ctx, func(q repository.LedgerQuerier) error {
		debt, err := q.GetDebtForUpdate(ctx, in.DebtID)
		if err != nil && !errors.Is(err, domain.ErrDebtNotFound) {
			return persistenceErr("load debt", err)
		}

		updated, err := ComputePayment(debt, in.Amount, requester)
		if err != nil {
			return err
		}

		now := s.now()
		updated.UpdatedAt = &now

		payment := domain.DebtPayment{
			ID:        s.newID(),
			DebtID:    updated.ID,
			UserID:    updated.UserID,
			Amount:    in.Amount,
			Proof:     in.Proof,
			Notes:     in.Notes,
			CreatedAt: now,
		}

		if err := q.InsertPayment(ctx, payment); err != nil {
			return persistenceErr("insert payment", err)
		}
		if err := q.UpdateDebtBalance(ctx, updated); err != nil {
			return persistenceErr("update debt", err)
		}

		result = PaymentResult{Payment: payment, Debt: updated}
		return nil
	})
	if err != nil {
		if isLedgerRejection(err) || errors.Is(err, domain.ErrPersistence) || errors.Is(err, domain.ErrLedgerInconsistent) {
			log.Printf("[LEDGER] payment on debt %s by user=%d rejected: %v", in.DebtID, requester.ID, err)
			return nil, err
		}
		return nil, persistenceErr("ledger tx", err)
	}

	log.Printf("[LEDGER] debt %s paid %s by user=%d, remaining %s",
		result.Debt.ID, result.Payment.Amount, requester.ID, result.Debt.RemainingDebt)

	s.publish(ctx, result)
	return &result, nil
}

// publish runs after commit, so failures here never undo the payment.
func (s *DebtService) publish(ctx context.Context, r PaymentResult) {
	if s.ws != nil {
		if err := s.ws.NotifyPaymentApplied(ctx, r.Debt, r.Payment); err != nil {
			log.Printf("[LEDGER] websocket notify for payment %s: %v", r.Payment.ID, err)
		}
	}
	if s.events != nil {
		if err := s.events.PublishPaymentApplied(ctx, clients.NewPaymentEvent(r.Debt, r.Payment)); err != nil {
			log.Printf("[KAFKA] publish payment %s: %v", r.Payment.ID, err)
		}
	}
}

func (s *DebtService) GetDebt(ctx context.Context, id string, requester domain.Requester) (*domain.Debt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrDebtNotFound
	}

	debt, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrDebtNotFound) {
			return nil, err
		}
		return nil, persistenceErr("get debt", err)
	}
	if !requester.CanAccess(debt.UserID) {
		return nil, domain.ErrForbidden
	}
	return debt, nil
}

// ListDebts returns the requester's own debts, or every debt for a SUPERADMIN.
func (s *DebtService) ListDebts(ctx context.Context, requester domain.Requester) ([]domain.Debt, error) {
	var f repository.DebtsFilter
	if !requester.IsSuperAdmin() {
		uid := requester.ID
		f.UserID = &uid
	}

	debts, err := s.store.List(ctx, f)
	if err != nil {
		return nil, persistenceErr("list debts", err)
	}
	if debts == nil {
		debts = []domain.Debt{}
	}
	return debts, nil
}

func (s *DebtService) ListPayments(ctx context.Context, debtID string, requester domain.Requester) ([]domain.DebtPayment, error) {
	if _, err := s.GetDebt(ctx, debtID, requester); err != nil {
		return nil, err
	}

	payments, err := s.store.ListPayments(ctx, repository.PaymentsFilter{DebtID: debtID})
	if err != nil {
		return nil, persistenceErr("list payments", err)
	}
	if payments == nil {
		payments = []domain.DebtPayment{}
	}
	return payments, nil
}

// StartLedgerExport checks access synchronously and then builds the XLSX in the background.
// The returned id is the redis key of the export status.
func (s *DebtService) StartLedgerExport(ctx context.Context, debtID string, requester domain.Requester) (string, error) {
	if s.files == nil {
		return "", errors.New("file storage not configured")
	}

	debt, err := s.GetDebt(ctx, debtID, requester)
	if err != nil {
		return "", err
	}

	exportID := exportKeyPrefix + s.newID()
	status := &ExportStatus{
		Key:      exportID,
		Type:     "debt_payments",
		UserID:   requester.ID,
		Filters:  map[string]any{"debt_id": debt.ID},
		Progress: 0,
		Created:  s.now(),
	}
	if err := s.exports.save(ctx, status); err != nil {
		log.Printf("[EXPORT] save status %s: %v", exportID, err)
	}

	go func() {
		bg, cancel := context.WithTimeout(context.Background(), exportGenerateTimeout)
		defer cancel()
		s.runLedgerExport(bg, status, *debt)
	}()

	return exportID, nil
}

func (s *DebtService) setProgress(ctx context.Context, st *ExportStatus, progress float64, stage string) {
	st.Progress = progress
	st.Stage = stage
	if err := s.exports.save(ctx, st); err != nil {
		log.Printf("[EXPORT] save status %s: %v", st.Key, err)
	}
	if s.ws != nil {
		_ = s.ws.NotifyExportProgress(ctx, st.UserID, st.Key, progress, stage)
	}
}

func (s *DebtService) failExport(ctx context.Context, st *ExportStatus, err error) {
	log.Printf("[EXPORT] %s failed: %v", st.Key, err)
	msg := "export failed"
	st.Error = &msg
	st.Stage = "failed"
	if saveErr := s.exports.save(ctx, st); saveErr != nil {
		log.Printf("[EXPORT] save status %s: %v", st.Key, saveErr)
	}
	if s.ws != nil {
		_ = s.ws.NotifyExportFailed(ctx, st.UserID, st.Key, msg)
	}
}

func (s *DebtService) runLedgerExport(ctx context.Context, st *ExportStatus, debt domain.Debt) {
	payments, err := s.store.ListPayments(ctx, repository.PaymentsFilter{DebtID: debt.ID, Limit: maxPaymentsForExport})
	if err != nil {
		s.failExport(ctx, st, err)
		return
	}

	data, err := s.buildLedgerWorkbook(ctx, st, debt, payments)
	if err != nil {
		s.failExport(ctx, st, err)
		return
	}

	s.setProgress(ctx, st, exportUploadProgress, "uploading")

	fileName := fmt.Sprintf("debt_%s_payments_%s.xlsx", debt.ID, s.now().Format("20060102_150405"))
	key, err := s.files.Save(ctx, fileName, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	if err != nil {
		s.failExport(ctx, st, err)
		return
	}
	url, err := s.files.URL(ctx, key)
	if err != nil {
		s.failExport(ctx, st, err)
		return
	}

	st.FileURL = &url
	s.setProgress(ctx, st, 100, "ready")
	if s.ws != nil {
		_ = s.ws.NotifyExportComplete(ctx, st.UserID, st.Key, url, fileName)
	}
	log.Printf("[EXPORT] %s ready, %d payments", st.Key, len(payments))
}

type paymentColumn struct {
	Header string
	Value  func(p domain.DebtPayment) any
}

var paymentColumns = []paymentColumn{
	{Header: "Payment ID", Value: func(p domain.DebtPayment) any { return p.ID }},
	{Header: "Paid at", Value: func(p domain.DebtPayment) any { return timePtr(&p.CreatedAt) }},
	{Header: "Amount", Value: func(p domain.DebtPayment) any { return p.Amount.InexactFloat64() }},
	{Header: "Proof", Value: func(p domain.DebtPayment) any { return strPtr(p.Proof) }},
	{Header: "Notes", Value: func(p domain.DebtPayment) any { return strPtr(p.Notes) }},
}

// buildLedgerWorkbook writes a summary sheet for the debt and one row per payment.
// Progress is capped below 100 until the file URL exists.
func (s *DebtService) buildLedgerWorkbook(ctx context.Context, st *ExportStatus, debt domain.Debt, payments []domain.DebtPayment) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("[EXPORT] close workbook: %v", err)
		}
	}()

	_ = f.SetDocProps(&excelize.DocProperties{
		Creator: fmt.Sprintf("user_%d", st.UserID),
		Title:   "Debt " + debt.ID,
	})

	summary := "Debt"
	if err := f.SetSheetName(f.GetSheetName(0), summary); err != nil {
		return nil, err
	}
	rows := [][2]any{
		{"Debt ID", debt.ID},
		{"Description", strPtr(debt.Description)},
		{"Total debt", debt.TotalDebt.InexactFloat64()},
		{"Paid amount", debt.PaidAmount.InexactFloat64()},
		{"Remaining debt", debt.RemainingDebt.InexactFloat64()},
		{"Payments", len(payments)},
	}
	for i, r := range rows {
		if err := f.SetSheetRow(summary, fmt.Sprintf("A%d", i+1), &[]any{r[0], r[1]}); err != nil {
			return nil, err
		}
	}

	sheet := "Payments"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}

	for i, col := range paymentColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(payments)
	for i, p := range payments {
		for colIdx, col := range paymentColumns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(p))
		}

		if (i+1)%exportProgressEvery == 0 || i == total-1 {
			progress := math.Round(float64(i+1) / float64(total) * 100.0)
			if progress >= exportUploadProgress {
				progress = exportUploadProgress - 1
			}
			s.setProgress(ctx, st, progress, "generating")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
