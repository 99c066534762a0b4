package main

import (
	"flag"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/escpos"
	"github.com/shopspring/decimal"
)

func sampleSale() *escpos.Sale {
	return &escpos.Sale{
		Id:   12345,
		Date: time.Now(),
		Items: []escpos.Item{
			{Name: "iPhone 15 Pro Max 256GB", Quantity: decimal.NewFromInt(1), UnitPrice: 760000, LineTotal: 760000},
			{Name: "Capinha Silicone", Quantity: decimal.NewFromInt(2), UnitPrice: 3500, LineTotal: 7000},
		},
		Subtotal:        767000,
		Discount:        7000,
		GrandTotal:      760000,
		PaymentMethod:   "credito",
		CustomerName:    "João da Silva",
		SellerName:      "Maria Vendedora",
		MerchantTaxId:   "12345678000190",
		MerchantAddress: "Rua das Flores, 123 - Centro",
	}
}

func main() {
	out := flag.String("out", "receipt.bin", "Output file")
	paper := flag.Int("paper", config.ReceiptPaperWidth(), "Paper width in mm (58 or 80)")
	noQR := flag.Bool("no-qrcode", !config.ReceiptIncludeQRCode(), "Omit the QR code")
	base64Out := flag.Bool("base64", false, "Write the base64 transport encoding instead of raw bytes")
	flag.Parse()

	if *paper != 58 && *paper != 80 {
		fmt.Fprintln(os.Stderr, "--paper must be 58 or 80")
		os.Exit(1)
	}

	loc, err := time.LoadLocation(config.ReceiptTimezone())
	if err != nil {
		fmt.Fprintf(os.Stderr, "timezone: %v\n", err)
		os.Exit(1)
	}

	sale := sampleSale()
	if err := escpos.Validate(sale); err != nil {
		fmt.Fprintf(os.Stderr, "sample sale: %v\n", err)
		os.Exit(1)
	}
	data := escpos.Encode(sale, escpos.Options{
		Columns:       escpos.ColumnsForPaper(*paper),
		IncludeQRCode: !*noQR,
		Location:      loc,
	})

	payload := data
	if *base64Out {
		payload = []byte(escpos.ToTransportEncoding(data))
	}
	if err := os.WriteFile(*out, payload, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d bytes (%d raw) to %s\n", len(payload), len(data), *out)
}
