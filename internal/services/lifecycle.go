package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/facturio/facturio/internal/document"
	"github.com/facturio/facturio/internal/facturx"
	"github.com/facturio/facturio/internal/logger"
	"github.com/facturio/facturio/internal/models"
	"github.com/facturio/facturio/internal/money"
	"github.com/facturio/facturio/internal/numbering"
	"github.com/facturio/facturio/internal/storage"
)

// LifecycleService owns the invoice state machine. It is the only writer of
// invoice status and content; everything else goes through it.
type LifecycleService struct {
	db       *gorm.DB
	uploader storage.Uploader
	log      zerolog.Logger
	now      func() time.Time
}

func NewLifecycleService(db *gorm.DB, uploader storage.Uploader) *LifecycleService {
	return &LifecycleService{
		db:       db,
		uploader: uploader,
		log:      logger.WithComponent("lifecycle"),
		now:      time.Now,
	}
}

// ItemInput is one requested invoice line; totals are derived here, never
// supplied by the caller.
type ItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     decimal.Decimal `json:"vat_rate"`
}

// DraftInput carries everything a draft can hold.
type DraftInput struct {
	CompanyID uint      `json:"company_id"`
	ClientID  uint      `json:"client_id"`
	IssueDate time.Time `json:"issue_date"`
	DueDate   time.Time `json:"due_date"`
	Currency  string    `json:"currency"`

	PaymentTermsDays  int             `json:"payment_terms_days"`
	PaymentTermsText  string          `json:"payment_terms_text"`
	LatePenaltyRate   decimal.Decimal `json:"late_penalty_rate"`
	EarlyDiscountText string          `json:"early_discount_text"`
	Notes             string          `json:"notes"`

	Items []ItemInput `json:"items"`
}

func buildItems(inputs []ItemInput) []models.InvoiceItem {
	items := make([]models.InvoiceItem, 0, len(inputs))
	for _, in := range inputs {
		lt := money.ComputeLine(in.Quantity, in.UnitPrice, in.VATRate)
		items = append(items, models.InvoiceItem{
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			VATRate:     in.VATRate,
			TotalHT:     lt.HT,
			TotalVAT:    lt.VAT,
			TotalTTC:    lt.TTC,
		})
	}
	return items
}

func applyTotals(inv *models.Invoice, items []models.InvoiceItem) {
	t := money.Sum(items)
	inv.TotalHT = t.HT
	inv.TotalVAT = t.VAT
	inv.TotalTTC = t.TTC
}

// CreateDraft creates a new DRAFT invoice with totals computed from its
// items.
func (s *LifecycleService) CreateDraft(ctx context.Context, in DraftInput, actorID uint) (*models.Invoice, error) {
	inv := &models.Invoice{
		DocumentType:      models.DocumentTypeInvoice,
		Status:            models.StatusDraft,
		CompanyID:         in.CompanyID,
		ClientID:          in.ClientID,
		IssueDate:         orNow(in.IssueDate, s.now),
		DueDate:           in.DueDate,
		Currency:          orDefault(in.Currency, "EUR"),
		PaymentTermsDays:  in.PaymentTermsDays,
		PaymentTermsText:  in.PaymentTermsText,
		LatePenaltyRate:   in.LatePenaltyRate,
		EarlyDiscountText: in.EarlyDiscountText,
		Notes:             in.Notes,
	}
	if inv.DueDate.IsZero() {
		days := in.PaymentTermsDays
		if days == 0 {
			days = 30
			inv.PaymentTermsDays = 30
		}
		inv.DueDate = inv.IssueDate.AddDate(0, 0, days)
	}
	items := buildItems(in.Items)
	applyTotals(inv, items)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inv).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			for i := range items {
				items[i].InvoiceID = inv.ID
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return s.audit(tx, inv.ID, models.AuditActionCreated, actorID, map[string]any{
			"document_type": inv.DocumentType,
		})
	})
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

// UpdateDraft replaces the item set and editable fields. Only DRAFT
// invoices accept edits; items are deleted and recreated wholesale.
func (s *LifecycleService) UpdateDraft(ctx context.Context, id uint, in DraftInput, actorID uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInvoice(tx, id, &inv); err != nil {
			return err
		}
		if !inv.Status.Editable() {
			return &InvalidStateTransitionError{Op: "update", Status: inv.Status}
		}
		items := buildItems(in.Items)
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			for i := range items {
				items[i].InvoiceID = id
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		if !in.IssueDate.IsZero() {
			inv.IssueDate = in.IssueDate
		}
		if !in.DueDate.IsZero() {
			inv.DueDate = in.DueDate
		}
		if in.Currency != "" {
			inv.Currency = in.Currency
		}
		if in.ClientID != 0 {
			inv.ClientID = in.ClientID
		}
		if in.PaymentTermsDays != 0 {
			inv.PaymentTermsDays = in.PaymentTermsDays
		}
		inv.PaymentTermsText = in.PaymentTermsText
		inv.LatePenaltyRate = in.LatePenaltyRate
		inv.EarlyDiscountText = in.EarlyDiscountText
		inv.Notes = in.Notes
		applyTotals(&inv, items)
		inv.Items = items
		if err := tx.Save(&inv).Error; err != nil {
			return err
		}
		return s.audit(tx, inv.ID, models.AuditActionUpdated, actorID, map[string]any{
			"items": len(items),
		})
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Get loads one invoice with items and parties.
func (s *LifecycleService) Get(ctx context.Context, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Items").Preload("Client").Preload("Company").
		First(&inv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// List returns invoices, optionally filtered by status, newest first.
func (s *LifecycleService) List(ctx context.Context, status models.InvoiceStatus, limit, offset int) ([]models.Invoice, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Invoice{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var invs []models.Invoice
	if err := q.Preload("Items").Order("id desc").Limit(limit).Offset(offset).Find(&invs).Error; err != nil {
		return nil, 0, err
	}
	return invs, total, nil
}

// Validate turns a draft into an immutable legal document: it assigns the
// next number, compiles the Factur-X artifact, uploads it, snapshots the
// parties and stamps VALIDATED — all in one transaction, so either the
// number, artifact URL and status commit together or none do.
//
// A failed compliance embedding does not fail validation: the plain visual
// PDF is stored instead and the defect is logged.
func (s *LifecycleService) Validate(ctx context.Context, id uint, actorID uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInvoice(tx, id, &inv); err != nil {
			return err
		}
		if inv.Status != models.StatusDraft {
			return &InvalidStateTransitionError{Op: "validate", Status: inv.Status}
		}
		if err := tx.Where("invoice_id = ?", id).Order("id").Find(&inv.Items).Error; err != nil {
			return err
		}
		if len(inv.Items) == 0 {
			return ErrEmptyDocument
		}

		var company models.CompanySettings
		if err := tx.First(&company, inv.CompanyID).Error; err != nil {
			return fmt.Errorf("load issuer: %w", err)
		}
		var client models.Client
		if err := tx.First(&client, inv.ClientID).Error; err != nil {
			return fmt.Errorf("load client: %w", err)
		}

		number, err := numbering.Next(tx, inv.DocumentType, s.now().Year())
		if err != nil {
			return fmt.Errorf("allocate number: %w", err)
		}

		snapshot := models.PartySnapshot{
			Seller: company.SellerRecord(),
			Buyer:  client.BuyerRecord(),
		}
		snapJSON, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}

		relatedNumber := ""
		if inv.RelatedInvoiceID != nil {
			var related models.Invoice
			if err := tx.First(&related, *inv.RelatedInvoiceID).Error; err == nil && related.InvoiceNumber != nil {
				relatedNumber = *related.InvoiceNumber
			}
		}

		in := document.Input{
			Number:               number,
			DocumentType:         inv.DocumentType,
			IssueDate:            inv.IssueDate,
			DueDate:              inv.DueDate,
			Currency:             inv.Currency,
			Seller:               snapshot.Seller,
			Buyer:                snapshot.Buyer,
			Items:                inv.Items,
			Totals:               money.Totals{HT: inv.TotalHT, VAT: inv.TotalVAT, TTC: inv.TotalTTC},
			VAT:                  money.VATBreakdown(inv.Items),
			PaymentTermsDays:     inv.PaymentTermsDays,
			PaymentTermsText:     inv.PaymentTermsText,
			LatePenaltyRate:      inv.LatePenaltyRate,
			EarlyDiscountText:    inv.EarlyDiscountText,
			Notes:                inv.Notes,
			RelatedInvoiceNumber: relatedNumber,
			MentionsLegales:      company.MentionsLegales,
		}

		pdf, err := document.RenderPDF(in)
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		xmlData, err := document.BuildCII(in)
		if err != nil {
			return fmt.Errorf("build cii: %w", err)
		}

		artifact, embedErr := facturx.Embed(pdf, xmlData, facturx.Meta{
			Title:        in.Title() + " " + number,
			Author:       snapshot.Seller.Name,
			Creator:      "facturio",
			Producer:     "facturio",
			DocumentType: string(inv.DocumentType),
		})
		degraded := embedErr != nil
		if degraded {
			// Intentional degrade: the user still gets a valid visual
			// invoice, the compliance defect is surfaced here.
			s.log.Error().Err(embedErr).Uint("invoice_id", id).Str("number", number).
				Msg("factur-x embedding failed, storing plain pdf")
			artifact = pdf
		}

		obj, err := s.uploader.Upload(ctx, artifact, storage.UploadMeta{
			Filename: number + ".pdf",
			MimeType: "application/pdf",
			Size:     len(artifact),
			Folder:   "invoices",
		}, actorID)
		if err != nil {
			return &ExternalServiceError{Service: "document storage", Err: err}
		}

		now := s.now()
		inv.InvoiceNumber = &number
		inv.Status = models.StatusValidated
		inv.ValidatedAt = &now
		inv.PDFURL = obj.URL
		inv.PartySnapshot = datatypes.JSON(snapJSON)
		if err := tx.Save(&inv).Error; err != nil {
			return err
		}
		return s.audit(tx, inv.ID, models.AuditActionValidated, actorID, map[string]any{
			"number":         number,
			"pdf_url":        obj.URL,
			"embed_degraded": degraded,
		})
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Send marks a validated invoice as sent to the client.
func (s *LifecycleService) Send(ctx context.Context, id uint, actorID uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInvoice(tx, id, &inv); err != nil {
			return err
		}
		if inv.Status != models.StatusValidated {
			return &InvalidStateTransitionError{Op: "send", Status: inv.Status}
		}
		now := s.now()
		inv.Status = models.StatusSent
		inv.SentAt = &now
		if err := tx.Save(&inv).Error; err != nil {
			return err
		}
		return s.audit(tx, inv.ID, models.AuditActionSent, actorID, nil)
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Cancel voids a VALIDATED or SENT invoice. A PAID invoice can never be
// cancelled; the correction path is a credit note.
func (s *LifecycleService) Cancel(ctx context.Context, id uint, reason string, actorID uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockInvoice(tx, id, &inv); err != nil {
			return err
		}
		if !inv.Status.CanTransition(models.StatusCancelled) {
			hint := ""
			if inv.Status == models.StatusPaid || inv.Status == models.StatusPartiallyPaid {
				hint = "issue a credit note instead"
			}
			return &InvalidStateTransitionError{Op: "cancel", Status: inv.Status, Hint: hint}
		}
		now := s.now()
		inv.Status = models.StatusCancelled
		inv.CancelledAt = &now
		inv.CancelReason = reason
		if err := tx.Save(&inv).Error; err != nil {
			return err
		}
		return s.audit(tx, inv.ID, models.AuditActionCancelled, actorID, map[string]any{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// IssueCreditNote opens a new DRAFT credit note against an issued invoice.
// Items default to a by-value copy of the source's; totals are recomputed
// from scratch either way. The credit note numbers from its own AV
// sequence, only at its own validation.
func (s *LifecycleService) IssueCreditNote(ctx context.Context, sourceID uint, override []ItemInput, actorID uint) (*models.Invoice, error) {
	var note *models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src models.Invoice
		if err := lockInvoice(tx, sourceID, &src); err != nil {
			return err
		}
		if src.Status == models.StatusDraft || src.Status == models.StatusCancelled {
			return &InvalidStateTransitionError{Op: "issue a credit note against", Status: src.Status}
		}

		var inputs []ItemInput
		if len(override) > 0 {
			inputs = override
		} else {
			var srcItems []models.InvoiceItem
			if err := tx.Where("invoice_id = ?", sourceID).Order("id").Find(&srcItems).Error; err != nil {
				return err
			}
			for _, it := range srcItems {
				inputs = append(inputs, ItemInput{
					Description: it.Description,
					Quantity:    it.Quantity,
					UnitPrice:   it.UnitPrice,
					VATRate:     it.VATRate,
				})
			}
		}

		items := buildItems(inputs)
		sid := src.ID
		now := s.now()
		note = &models.Invoice{
			DocumentType:     models.DocumentTypeCreditNote,
			Status:           models.StatusDraft,
			CompanyID:        src.CompanyID,
			ClientID:         src.ClientID,
			IssueDate:        now,
			DueDate:          now.AddDate(0, 0, src.PaymentTermsDays),
			Currency:         src.Currency,
			PaymentTermsDays: src.PaymentTermsDays,
			PaymentTermsText: src.PaymentTermsText,
			LatePenaltyRate:  src.LatePenaltyRate,
			RelatedInvoiceID: &sid,
		}
		applyTotals(note, items)
		if err := tx.Create(note).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			for i := range items {
				items[i].InvoiceID = note.ID
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		note.Items = items
		return s.audit(tx, src.ID, models.AuditActionCreditNote, actorID, map[string]any{
			"credit_note_id": note.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// AuditTrail returns the append-only event log for one invoice, oldest
// first.
func (s *LifecycleService) AuditTrail(ctx context.Context, invoiceID uint) ([]models.InvoiceAuditLog, error) {
	var entries []models.InvoiceAuditLog
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id").
		Find(&entries).Error
	return entries, err
}

func (s *LifecycleService) audit(tx *gorm.DB, invoiceID uint, action string, actorID uint, details map[string]any) error {
	return writeAudit(tx, invoiceID, action, actorID, details)
}

// writeAudit appends one immutable audit entry.
func writeAudit(tx *gorm.DB, invoiceID uint, action string, actorID uint, details map[string]any) error {
	entry := models.InvoiceAuditLog{
		InvoiceID: invoiceID,
		Action:    action,
		ActorID:   actorID,
	}
	if details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			return err
		}
		entry.Details = datatypes.JSON(payload)
	}
	return tx.Create(&entry).Error
}

// lockInvoice loads the invoice row, FOR UPDATE on postgres, so two
// in-flight operations on the same invoice cannot interleave.
func lockInvoice(tx *gorm.DB, id uint, dst *models.Invoice) error {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.First(dst, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func orNow(t time.Time, now func() time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
