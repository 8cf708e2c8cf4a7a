// EN16931 CrossIndustryInvoice builder for the Factur-X 1.0 profile.
//
// The tree is modelled with encoding/xml structs carrying literal rsm:/ram:/
// udt: prefixes, which keeps element order under our control (CII is order
// sensitive) and gives escaping of free text for free.
package document

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturio/facturio/internal/models"
)

// GuidelineID identifies the EN16931 conformance profile inside the
// document context.
const GuidelineID = "urn:factur-x.eu:1p0:en16931"

// AttachmentName is the filename the XML must carry inside the PDF
// container.
const AttachmentName = "factur-x.xml"

const (
	nsRSM = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
	nsRAM = "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
	nsUDT = "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100"
)

type crossIndustryInvoice struct {
	XMLName  xml.Name `xml:"rsm:CrossIndustryInvoice"`
	XmlnsRSM string   `xml:"xmlns:rsm,attr"`
	XmlnsRAM string   `xml:"xmlns:ram,attr"`
	XmlnsUDT string   `xml:"xmlns:udt,attr"`

	Context     exchangedDocumentContext `xml:"rsm:ExchangedDocumentContext"`
	Document    exchangedDocument        `xml:"rsm:ExchangedDocument"`
	Transaction tradeTransaction         `xml:"rsm:SupplyChainTradeTransaction"`
}

type exchangedDocumentContext struct {
	Guideline idWrapper `xml:"ram:GuidelineSpecifiedDocumentContextParameter"`
}

type idWrapper struct {
	ID string `xml:"ram:ID"`
}

type exchangedDocument struct {
	ID            string       `xml:"ram:ID"`
	TypeCode      string       `xml:"ram:TypeCode"`
	IssueDateTime dateTimeNode `xml:"ram:IssueDateTime"`
}

type dateTimeNode struct {
	DateTimeString dateString `xml:"udt:DateTimeString"`
}

type dateString struct {
	Format string `xml:"format,attr"`
	Value  string `xml:",chardata"`
}

// format102 renders a date as YYYYMMDD, UN/CEFACT "format 102".
func format102(t time.Time) dateTimeNode {
	return dateTimeNode{DateTimeString: dateString{Format: "102", Value: t.Format("20060102")}}
}

type tradeTransaction struct {
	LineItems  []tradeLineItem `xml:"ram:IncludedSupplyChainTradeLineItem"`
	Agreement  tradeAgreement  `xml:"ram:ApplicableHeaderTradeAgreement"`
	Delivery   tradeDelivery   `xml:"ram:ApplicableHeaderTradeDelivery"`
	Settlement tradeSettlement `xml:"ram:ApplicableHeaderTradeSettlement"`
}

type tradeLineItem struct {
	LineDocument lineDocument   `xml:"ram:AssociatedDocumentLineDocument"`
	Product      tradeProduct   `xml:"ram:SpecifiedTradeProduct"`
	Agreement    lineAgreement  `xml:"ram:SpecifiedLineTradeAgreement"`
	Delivery     lineDelivery   `xml:"ram:SpecifiedLineTradeDelivery"`
	Settlement   lineSettlement `xml:"ram:SpecifiedLineTradeSettlement"`
}

type lineDocument struct {
	LineID string `xml:"ram:LineID"`
}

type tradeProduct struct {
	Name string `xml:"ram:Name"`
}

type lineAgreement struct {
	NetPrice priceNode `xml:"ram:NetPriceProductTradePrice"`
}

type priceNode struct {
	ChargeAmount string `xml:"ram:ChargeAmount"`
}

type lineDelivery struct {
	BilledQuantity quantityNode `xml:"ram:BilledQuantity"`
}

type quantityNode struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

type lineSettlement struct {
	TradeTax  lineTradeTax  `xml:"ram:ApplicableTradeTax"`
	Summation lineSummation `xml:"ram:SpecifiedTradeSettlementLineMonetarySummation"`
}

type lineTradeTax struct {
	TypeCode       string `xml:"ram:TypeCode"`
	CategoryCode   string `xml:"ram:CategoryCode"`
	RatePercent    string `xml:"ram:RateApplicablePercent"`
}

type lineSummation struct {
	LineTotalAmount string `xml:"ram:LineTotalAmount"`
}

type tradeAgreement struct {
	Seller tradeParty `xml:"ram:SellerTradeParty"`
	Buyer  tradeParty `xml:"ram:BuyerTradeParty"`
}

type tradeParty struct {
	Name              string             `xml:"ram:Name"`
	LegalOrganization *legalOrganization `xml:"ram:SpecifiedLegalOrganization,omitempty"`
	PostalAddress     postalAddress      `xml:"ram:PostalTradeAddress"`
	TaxRegistrations  []taxRegistration  `xml:"ram:SpecifiedTaxRegistration,omitempty"`
}

type legalOrganization struct {
	ID schemedID `xml:"ram:ID"`
}

type schemedID struct {
	SchemeID string `xml:"schemeID,attr"`
	Value    string `xml:",chardata"`
}

type postalAddress struct {
	PostcodeCode string `xml:"ram:PostcodeCode,omitempty"`
	LineOne      string `xml:"ram:LineOne,omitempty"`
	CityName     string `xml:"ram:CityName,omitempty"`
	CountryID    string `xml:"ram:CountryID"`
}

type taxRegistration struct {
	ID schemedID `xml:"ram:ID"`
}

type tradeDelivery struct{}

type tradeSettlement struct {
	CurrencyCode  string             `xml:"ram:InvoiceCurrencyCode"`
	PaymentMeans  *paymentMeans      `xml:"ram:SpecifiedTradeSettlementPaymentMeans,omitempty"`
	TradeTaxes    []settlementTax    `xml:"ram:ApplicableTradeTax"`
	PaymentTerms  paymentTerms       `xml:"ram:SpecifiedTradePaymentTerms"`
	Summation     monetarySummation  `xml:"ram:SpecifiedTradeSettlementHeaderMonetarySummation"`
	InvoiceRef    *invoiceReference  `xml:"ram:InvoiceReferencedDocument,omitempty"`
}

type paymentMeans struct {
	TypeCode string        `xml:"ram:TypeCode"`
	Account  *payeeAccount `xml:"ram:PayeePartyCreditorFinancialAccount,omitempty"`
	Bank     *payeeBank    `xml:"ram:PayeeSpecifiedCreditorFinancialInstitution,omitempty"`
}

type payeeAccount struct {
	IBANID string `xml:"ram:IBANID"`
}

type payeeBank struct {
	BICID string `xml:"ram:BICID"`
}

type settlementTax struct {
	CalculatedAmount string `xml:"ram:CalculatedAmount"`
	TypeCode         string `xml:"ram:TypeCode"`
	BasisAmount      string `xml:"ram:BasisAmount"`
	CategoryCode     string `xml:"ram:CategoryCode"`
	RatePercent      string `xml:"ram:RateApplicablePercent"`
}

type paymentTerms struct {
	Description string        `xml:"ram:Description,omitempty"`
	DueDate     *dateTimeNode `xml:"ram:DueDateDateTime,omitempty"`
}

type invoiceReference struct {
	IssuerAssignedID string `xml:"ram:IssuerAssignedID"`
}

type monetarySummation struct {
	LineTotalAmount     string         `xml:"ram:LineTotalAmount"`
	TaxBasisTotalAmount string         `xml:"ram:TaxBasisTotalAmount"`
	TaxTotalAmount      currencyAmount `xml:"ram:TaxTotalAmount"`
	GrandTotalAmount    string         `xml:"ram:GrandTotalAmount"`
	DuePayableAmount    string         `xml:"ram:DuePayableAmount"`
}

type currencyAmount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

func amt(d decimal.Decimal) string { return d.StringFixed(2) }

// BuildCII renders the EN16931 XML for one document snapshot.
func BuildCII(in Input) ([]byte, error) {
	inv := crossIndustryInvoice{
		XmlnsRSM: nsRSM,
		XmlnsRAM: nsRAM,
		XmlnsUDT: nsUDT,
		Context: exchangedDocumentContext{
			Guideline: idWrapper{ID: GuidelineID},
		},
		Document: exchangedDocument{
			ID:            in.Number,
			TypeCode:      in.TypeCode(),
			IssueDateTime: format102(in.IssueDate),
		},
	}

	for i, it := range in.Items {
		inv.Transaction.LineItems = append(inv.Transaction.LineItems, tradeLineItem{
			LineDocument: lineDocument{LineID: fmt.Sprintf("%d", i+1)},
			Product:      tradeProduct{Name: it.Description},
			Agreement:    lineAgreement{NetPrice: priceNode{ChargeAmount: amt(it.UnitPrice)}},
			Delivery: lineDelivery{BilledQuantity: quantityNode{
				// C62 is the UN/ECE rec 20 "unit" code.
				UnitCode: "C62",
				Value:    it.Quantity.String(),
			}},
			Settlement: lineSettlement{
				TradeTax: lineTradeTax{
					TypeCode:     "VAT",
					CategoryCode: "S",
					RatePercent:  it.VATRate.StringFixed(2),
				},
				Summation: lineSummation{LineTotalAmount: amt(it.TotalHT)},
			},
		})
	}

	inv.Transaction.Agreement = tradeAgreement{
		Seller: buildParty(in.Seller),
		Buyer:  buildParty(in.Buyer),
	}

	settlement := tradeSettlement{
		CurrencyCode: in.Currency,
		PaymentTerms: paymentTerms{
			Description: in.PaymentTermsText,
			DueDate:     dueDate(in.DueDate),
		},
		Summation: monetarySummation{
			LineTotalAmount:     amt(in.Totals.HT),
			TaxBasisTotalAmount: amt(in.Totals.HT),
			TaxTotalAmount:      currencyAmount{CurrencyID: in.Currency, Value: amt(in.Totals.VAT)},
			GrandTotalAmount:    amt(in.Totals.TTC),
			DuePayableAmount:    amt(in.Totals.TTC),
		},
	}
	if in.Seller.IBAN != "" {
		// 30: credit transfer.
		means := &paymentMeans{TypeCode: "30", Account: &payeeAccount{IBANID: in.Seller.IBAN}}
		if in.Seller.BIC != "" {
			means.Bank = &payeeBank{BICID: in.Seller.BIC}
		}
		settlement.PaymentMeans = means
	}
	for _, l := range in.VAT {
		settlement.TradeTaxes = append(settlement.TradeTaxes, settlementTax{
			CalculatedAmount: amt(l.Amount),
			TypeCode:         "VAT",
			BasisAmount:      amt(l.Basis),
			CategoryCode:     "S",
			RatePercent:      l.Rate.StringFixed(2),
		})
	}
	if in.RelatedInvoiceNumber != "" {
		settlement.InvoiceRef = &invoiceReference{IssuerAssignedID: in.RelatedInvoiceNumber}
	}
	inv.Transaction.Settlement = settlement

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(inv); err != nil {
		return nil, fmt.Errorf("encode cii: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func buildParty(p models.PartyRecord) tradeParty {
	tp := tradeParty{
		Name: p.Name,
		PostalAddress: postalAddress{
			PostcodeCode: p.PostalCode,
			LineOne:      p.Address,
			CityName:     p.City,
			CountryID:    CountryCode(p.Country),
		},
	}
	if p.SIRET != "" {
		tp.LegalOrganization = &legalOrganization{ID: schemedID{SchemeID: "0002", Value: p.SIRET}}
	}
	if p.VATNumber != "" {
		tp.TaxRegistrations = append(tp.TaxRegistrations, taxRegistration{
			ID: schemedID{SchemeID: "VA", Value: p.VATNumber},
		})
	}
	return tp
}

func dueDate(t time.Time) *dateTimeNode {
	if t.IsZero() {
		return nil
	}
	n := format102(t)
	return &n
}
