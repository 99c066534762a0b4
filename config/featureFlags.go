package config

import (
	"os"
	"strconv"
	"strings"
)

// ImportDefaults are the reconcile options used when a request does not set them.
//
// Set via env:
// - NFE_DEFAULT_CREATE_PRODUCTS (default true)
// - NFE_DEFAULT_UPDATE_PRICES (default false)
func ImportDefaults() (createProducts bool, updatePrices bool) {
	return boolFromEnv("NFE_DEFAULT_CREATE_PRODUCTS", true), boolFromEnv("NFE_DEFAULT_UPDATE_PRICES", false)
}

// ReceiptPaperWidth is 58 or 80 (mm); anything else reads as 80.
func ReceiptPaperWidth() int {
	if intFromEnv("RECEIPT_PAPER_WIDTH", 80) == 58 {
		return 58
	}
	return 80
}

func ReceiptIncludeQRCode() bool {
	return boolFromEnv("RECEIPT_INCLUDE_QRCODE", true)
}

// ReceiptTimezone names the IANA zone receipt dates are printed in.
func ReceiptTimezone() string {
	if v := strings.TrimSpace(os.Getenv("RECEIPT_TIMEZONE")); v != "" {
		return v
	}
	return "America/Sao_Paulo"
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}
