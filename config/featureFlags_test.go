package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportDefaults(t *testing.T) {
	t.Setenv("NFE_DEFAULT_CREATE_PRODUCTS", "")
	t.Setenv("NFE_DEFAULT_UPDATE_PRICES", "")
	create, update := ImportDefaults()
	assert.True(t, create)
	assert.False(t, update)

	t.Setenv("NFE_DEFAULT_CREATE_PRODUCTS", "no")
	t.Setenv("NFE_DEFAULT_UPDATE_PRICES", "TRUE")
	create, update = ImportDefaults()
	assert.False(t, create)
	assert.True(t, update)

	t.Setenv("NFE_DEFAULT_CREATE_PRODUCTS", "garbage")
	create, _ = ImportDefaults()
	assert.True(t, create)
}

func TestReceiptSettings(t *testing.T) {
	for in, want := range map[string]int{"": 80, "58": 58, "80": 80, "76": 80, "abc": 80} {
		t.Setenv("RECEIPT_PAPER_WIDTH", in)
		assert.Equal(t, want, ReceiptPaperWidth(), "RECEIPT_PAPER_WIDTH=%q", in)
	}

	t.Setenv("RECEIPT_INCLUDE_QRCODE", "")
	assert.True(t, ReceiptIncludeQRCode())
	t.Setenv("RECEIPT_INCLUDE_QRCODE", "0")
	assert.False(t, ReceiptIncludeQRCode())

	t.Setenv("RECEIPT_TIMEZONE", "")
	assert.Equal(t, "America/Sao_Paulo", ReceiptTimezone())
	t.Setenv("RECEIPT_TIMEZONE", " UTC ")
	assert.Equal(t, "UTC", ReceiptTimezone())
}

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db.local")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "fiscal")
	assert.Equal(t, "app:secret@tcp(db.local:3307)/fiscal?parseTime=true&charset=utf8mb4&loc=UTC", DatabaseDSN())

	t.Setenv("DB_HOST", "/cloudsql/proj:region:inst")
	assert.Equal(t, "app:secret@unix(/cloudsql/proj:region:inst)/fiscal?parseTime=true&charset=utf8mb4&loc=UTC", DatabaseDSN())
}
