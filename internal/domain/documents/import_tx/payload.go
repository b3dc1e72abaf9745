package import_tx

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"

	"dentalstock/internal/core/types"
)

// Payload is the body of POST import-transactions.
type Payload struct {
	TransactionDate types.Date    `json:"transactionDate"`
	SupplierID      *int64        `json:"supplierId,omitempty"`
	InvoiceNumber   string        `json:"invoiceNumber,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	Items           []PayloadLine `json:"items"`
}

// PayloadLine is one item of an import payload. Quantity is in base units.
type PayloadLine struct {
	ItemMasterID  int64       `json:"itemMasterId"`
	LotNumber     string      `json:"lotNumber"`
	ExpiryDate    *types.Date `json:"expiryDate,omitempty"`
	Quantity      int64       `json:"quantity"`
	UnitID        int64       `json:"unitId"`
	PurchasePrice types.Money `json:"purchasePrice"`
	BinLocation   string      `json:"binLocation,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// ToPayload maps the document to its wire shape.
func (d *Document) ToPayload() Payload {
	p := Payload{
		TransactionDate: d.TransactionDate,
		InvoiceNumber:   d.InvoiceNumber,
		Notes:           d.Notes,
		Items:           make([]PayloadLine, 0, len(d.Lines)),
	}
	if d.SupplierID > 0 {
		supplierID := d.SupplierID
		p.SupplierID = &supplierID
	}
	for _, l := range d.Lines {
		var expiry *types.Date
		if l.ExpiryDate != nil && !l.ExpiryDate.IsZero() {
			e := *l.ExpiryDate
			expiry = &e
		}
		p.Items = append(p.Items, PayloadLine{
			ItemMasterID:  l.ItemID,
			LotNumber:     l.LotNumber,
			ExpiryDate:    expiry,
			Quantity:      l.Quantity,
			UnitID:        l.ResolvedUnitID,
			PurchasePrice: l.PurchasePrice,
			BinLocation:   l.BinLocation,
			Notes:         l.Notes,
		})
	}
	return p
}

// Validate is the structural check run before the payload leaves the client.
func (p Payload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TransactionDate, validation.By(requireDate)),
		validation.Field(&p.InvoiceNumber, validation.Length(0, 64)),
		validation.Field(&p.Notes, validation.Length(0, 500)),
		validation.Field(&p.Items, validation.Required),
	)
}

// Validate implements validation.Validatable for each payload item.
func (l PayloadLine) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.ItemMasterID, validation.Required, validation.Min(1)),
		validation.Field(&l.LotNumber, validation.Required, validation.Length(1, 64)),
		validation.Field(&l.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&l.UnitID, validation.Required, validation.Min(1)),
		validation.Field(&l.PurchasePrice, validation.By(requirePositiveMoney)),
	)
}

func requireDate(value interface{}) error {
	d, _ := value.(types.Date)
	if d.IsZero() {
		return errors.New("cannot be blank")
	}
	return nil
}

func requirePositiveMoney(value interface{}) error {
	m, _ := value.(types.Money)
	if !m.IsPositive() {
		return errors.New("must be positive")
	}
	return nil
}
