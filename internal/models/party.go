package models

import "time"

// CompanySettings holds the issuer's legal identity. Invoices reference it
// by ID; validation snapshots the fields it needs (see Invoice.PartySnapshot)
// so later edits never rewrite issued documents.
type CompanySettings struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RaisonSociale string `gorm:"size:255;not null;index" json:"raison_sociale"`
	SIREN         string `gorm:"size:9;index" json:"siren,omitempty"`
	SIRET         string `gorm:"size:14;index" json:"siret,omitempty"`
	TVAIntra      string `gorm:"size:20" json:"tva_intra,omitempty"` // numéro TVA intracommunautaire
	CodeAPE       string `gorm:"size:10" json:"code_ape,omitempty"`

	Address    string `gorm:"size:500" json:"address,omitempty"`
	PostalCode string `gorm:"size:20" json:"postal_code,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	Country    string `gorm:"size:100;default:'France'" json:"country,omitempty"`

	Email     string `gorm:"size:255" json:"email,omitempty"`
	Telephone string `gorm:"size:50" json:"telephone,omitempty"`

	// Bank details printed on invoices and carried as payment means in the
	// structured document.
	IBAN string `gorm:"size:34" json:"iban,omitempty"`
	BIC  string `gorm:"size:11" json:"bic,omitempty"`

	MentionsLegales string `gorm:"size:2000" json:"mentions_legales,omitempty"`
}

// Client is the billed party.
type Client struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Nom is the legal name used for weak payment matching.
	Nom           string `gorm:"size:255;not null;index" json:"nom"`
	NomCommercial string `gorm:"size:255" json:"nom_commercial,omitempty"`

	SIRET    string `gorm:"size:14;index" json:"siret,omitempty"`
	TVAIntra string `gorm:"size:20;index" json:"tva_intra,omitempty"`

	Address    string `gorm:"size:500" json:"address,omitempty"`
	PostalCode string `gorm:"size:20" json:"postal_code,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	Country    string `gorm:"size:100;default:'France'" json:"country,omitempty"`

	Email     string `gorm:"size:255" json:"email,omitempty"`
	Telephone string `gorm:"size:50" json:"telephone,omitempty"`
}

// SellerRecord flattens the issuer into the snapshot shape.
func (c CompanySettings) SellerRecord() PartyRecord {
	return PartyRecord{
		Name:       c.RaisonSociale,
		Address:    c.Address,
		PostalCode: c.PostalCode,
		City:       c.City,
		Country:    c.Country,
		SIRET:      c.SIRET,
		VATNumber:  c.TVAIntra,
		IBAN:       c.IBAN,
		BIC:        c.BIC,
	}
}

// BuyerRecord flattens the client into the snapshot shape.
func (c Client) BuyerRecord() PartyRecord {
	return PartyRecord{
		Name:       c.Nom,
		Address:    c.Address,
		PostalCode: c.PostalCode,
		City:       c.City,
		Country:    c.Country,
		SIRET:      c.SIRET,
		VATNumber:  c.TVAIntra,
	}
}
