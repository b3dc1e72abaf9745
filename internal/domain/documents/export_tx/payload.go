package export_tx

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"

	"dentalstock/internal/core/types"
)

// Payload is the body of POST export-transactions.
type Payload struct {
	TransactionDate types.Date    `json:"transactionDate"`
	Notes           string        `json:"notes,omitempty"`
	Items           []PayloadLine `json:"items"`
}

// PayloadLine is one item of an export payload.
type PayloadLine struct {
	BatchID  int64 `json:"batchId"`
	Quantity int64 `json:"quantity"`
}

// ToPayload maps the document to its wire shape.
func (d *Document) ToPayload() Payload {
	p := Payload{
		TransactionDate: d.TransactionDate,
		Notes:           d.Notes,
		Items:           make([]PayloadLine, 0, len(d.Lines)),
	}
	for _, l := range d.Lines {
		p.Items = append(p.Items, PayloadLine{BatchID: l.BatchID, Quantity: l.Quantity})
	}
	return p
}

func (p Payload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TransactionDate, validation.By(func(value interface{}) error {
			if d, _ := value.(types.Date); d.IsZero() {
				return errors.New("cannot be blank")
			}
			return nil
		})),
		validation.Field(&p.Notes, validation.Length(0, 500)),
		validation.Field(&p.Items, validation.Required),
	)
}

func (l PayloadLine) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.BatchID, validation.Required, validation.Min(1)),
		validation.Field(&l.Quantity, validation.Required, validation.Min(1)),
	)
}
