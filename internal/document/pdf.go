package document

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// RenderPDF builds the visual side of the document: issuer header, title
// block, bill-to, item table, VAT breakdown, totals, payment terms and the
// mandatory French legal mentions. Maroto paginates the item table when it
// overflows; the header repeats on every page.
func RenderPDF(in Input) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber().
		WithLeftMargin(12).
		WithTopMargin(12).
		WithRightMargin(12).
		Build()

	m := maroto.New(cfg)

	if err := m.RegisterHeader(headerRows(in)...); err != nil {
		return nil, fmt.Errorf("register header: %w", err)
	}

	m.AddRows(titleRows(in)...)
	m.AddRows(billToRows(in)...)
	m.AddRows(itemTableRows(in)...)
	m.AddRows(vatAndTotalRows(in)...)
	m.AddRows(termsRows(in)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func headerRows(in Input) []core.Row {
	s := in.Seller
	identity := s.Name
	legal := fmt.Sprintf("%s — %s %s, %s", s.Address, s.PostalCode, s.City, s.Country)
	ids := ""
	if s.SIRET != "" {
		ids = "SIRET " + s.SIRET
	}
	if s.VATNumber != "" {
		if ids != "" {
			ids += " — "
		}
		ids += "TVA " + s.VATNumber
	}
	return []core.Row{
		row.New(7).Add(
			text.NewCol(8, identity, props.Text{Size: 13, Style: fontstyle.Bold}),
			text.NewCol(4, in.Title(), props.Text{Size: 13, Style: fontstyle.Bold, Align: align.Right}),
		),
		row.New(4).Add(
			text.NewCol(12, legal, props.Text{Size: 8}),
		),
		row.New(4).Add(
			text.NewCol(12, ids, props.Text{Size: 8}),
		),
		row.New(3).Add(line.NewCol(12)),
	}
}

func titleRows(in Input) []core.Row {
	rows := []core.Row{
		row.New(6).Add(
			text.NewCol(6, fmt.Sprintf("N° %s", in.Number), props.Text{Size: 11, Style: fontstyle.Bold}),
			text.NewCol(6, "Date d'émission : "+in.IssueDate.Format("02/01/2006"), props.Text{Size: 9, Align: align.Right}),
		),
		row.New(5).Add(
			col.New(6),
			text.NewCol(6, "Date d'échéance : "+in.DueDate.Format("02/01/2006"), props.Text{Size: 9, Align: align.Right}),
		),
	}
	if in.RelatedInvoiceNumber != "" {
		rows = append(rows, row.New(5).Add(
			text.NewCol(12, "Avoir sur facture "+in.RelatedInvoiceNumber, props.Text{Size: 9, Style: fontstyle.Italic}),
		))
	}
	return rows
}

func billToRows(in Input) []core.Row {
	b := in.Buyer
	rows := []core.Row{
		row.New(6),
		row.New(5).Add(text.NewCol(12, "Facturé à :", props.Text{Size: 9, Style: fontstyle.Bold})),
		row.New(5).Add(text.NewCol(12, b.Name, props.Text{Size: 10})),
		row.New(4).Add(text.NewCol(12, fmt.Sprintf("%s, %s %s, %s", b.Address, b.PostalCode, b.City, b.Country), props.Text{Size: 9})),
	}
	if b.VATNumber != "" {
		rows = append(rows, row.New(4).Add(text.NewCol(12, "TVA : "+b.VATNumber, props.Text{Size: 9})))
	}
	rows = append(rows, row.New(4))
	return rows
}

func itemTableRows(in Input) []core.Row {
	head := props.Text{Size: 9, Style: fontstyle.Bold}
	cell := props.Text{Size: 9}
	num := props.Text{Size: 9, Align: align.Right}
	rows := []core.Row{
		row.New(6).Add(
			text.NewCol(5, "Désignation", head),
			text.NewCol(1, "Qté", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
			text.NewCol(2, "PU HT", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
			text.NewCol(1, "TVA", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
			text.NewCol(3, "Total HT", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		),
		row.New(2).Add(line.NewCol(12)),
	}
	for _, it := range in.Items {
		rows = append(rows, row.New(5).Add(
			text.NewCol(5, it.Description, cell),
			text.NewCol(1, it.Quantity.String(), num),
			text.NewCol(2, it.UnitPrice.StringFixed(2), num),
			text.NewCol(1, it.VATRate.StringFixed(1)+"%", num),
			text.NewCol(3, it.TotalHT.StringFixed(2)+" "+in.Currency, num),
		))
	}
	rows = append(rows, row.New(2).Add(line.NewCol(12)))
	return rows
}

func vatAndTotalRows(in Input) []core.Row {
	num := props.Text{Size: 9, Align: align.Right}
	rows := []core.Row{
		row.New(5).Add(text.NewCol(12, "Détail TVA :", props.Text{Size: 9, Style: fontstyle.Bold})),
	}
	for _, l := range in.VAT {
		rows = append(rows, row.New(4).Add(
			col.New(5),
			text.NewCol(3, "Taux "+l.Rate.StringFixed(1)+"%", num),
			text.NewCol(2, "Base "+l.Basis.StringFixed(2), num),
			text.NewCol(2, "TVA "+l.Amount.StringFixed(2), num),
		))
	}
	bold := props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}
	rows = append(rows,
		row.New(3),
		row.New(5).Add(
			col.New(7),
			text.NewCol(3, "Total HT", num),
			text.NewCol(2, in.Totals.HT.StringFixed(2)+" "+in.Currency, num),
		),
		row.New(5).Add(
			col.New(7),
			text.NewCol(3, "Total TVA", num),
			text.NewCol(2, in.Totals.VAT.StringFixed(2)+" "+in.Currency, num),
		),
		row.New(6).Add(
			col.New(7),
			text.NewCol(3, "Total TTC", bold),
			text.NewCol(2, in.Totals.TTC.StringFixed(2)+" "+in.Currency, bold),
		),
	)
	return rows
}

func termsRows(in Input) []core.Row {
	small := props.Text{Size: 7}
	rows := []core.Row{
		row.New(6),
	}
	terms := in.PaymentTermsText
	if terms == "" {
		terms = fmt.Sprintf("Paiement à %d jours.", in.PaymentTermsDays)
	}
	rows = append(rows, row.New(4).Add(text.NewCol(12, "Conditions de règlement : "+terms, props.Text{Size: 8})))
	if in.Seller.IBAN != "" {
		bank := "IBAN : " + in.Seller.IBAN
		if in.Seller.BIC != "" {
			bank += " — BIC : " + in.Seller.BIC
		}
		rows = append(rows, row.New(4).Add(text.NewCol(12, bank, props.Text{Size: 8})))
	}
	// Mentions imposées par le code de commerce (L441-10).
	penalty := fmt.Sprintf("En cas de retard de paiement, pénalités au taux de %s%% ainsi qu'une indemnité forfaitaire pour frais de recouvrement de 40 €.",
		in.LatePenaltyRate.StringFixed(2))
	rows = append(rows, row.New(4).Add(text.NewCol(12, penalty, small)))
	early := in.EarlyDiscountText
	if early == "" {
		early = "Pas d'escompte pour règlement anticipé."
	}
	rows = append(rows, row.New(4).Add(text.NewCol(12, "Escompte : "+early, small)))
	if in.Notes != "" {
		rows = append(rows, row.New(4).Add(text.NewCol(12, in.Notes, small)))
	}
	if in.MentionsLegales != "" {
		rows = append(rows, row.New(4).Add(text.NewCol(12, in.MentionsLegales, small)))
	}
	return rows
}
