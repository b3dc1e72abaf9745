package main

import (
	"encoding/json"
	"fmt"
	"os"

	"dentalstock/internal/core/types"
)

// importDraft is the JSON input of `stockdoc import`.
type importDraft struct {
	TransactionDate types.Date        `json:"transactionDate"`
	SupplierID      int64             `json:"supplierId"`
	InvoiceNumber   string            `json:"invoiceNumber"`
	Notes           string            `json:"notes"`
	Lines           []importDraftLine `json:"lines"`
}

type importDraftLine struct {
	ItemCode   string      `json:"itemCode"`
	LotNumber  string      `json:"lotNumber"`
	ExpiryDate *types.Date `json:"expiryDate"`
	Quantity   int64       `json:"quantity"`
	// Unit names a non-base unit of the item the quantity is counted in,
	// e.g. "hộp". Empty means base units.
	Unit          string      `json:"unit"`
	PurchasePrice types.Money `json:"purchasePrice"`
	BinLocation   string      `json:"binLocation"`
	Notes         string      `json:"notes"`
}

// exportDraft is the JSON input of `stockdoc export`. A line without a lot
// number takes the service's first (earliest expiring) batch.
type exportDraft struct {
	TransactionDate types.Date        `json:"transactionDate"`
	Notes           string            `json:"notes"`
	Lines           []exportDraftLine `json:"lines"`
}

type exportDraftLine struct {
	ItemCode  string `json:"itemCode"`
	LotNumber string `json:"lotNumber"`
	Quantity  int64  `json:"quantity"`
}

func readDraft(path string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read draft: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode draft %s: %w", path, err)
	}
	return nil
}
