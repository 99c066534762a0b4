package escpos

import "fmt"

// GS ( k function codes for the QR symbol (cn = 49).
const (
	qrFnModel    byte = 65
	qrFnSize     byte = 67
	qrFnECLevel  byte = 69
	qrFnStore    byte = 80
	qrFnPrint    byte = 81
	qrModule     byte = 8
	qrECLevelM   byte = 48
	qrModel2     byte = 50
	qrSymbolCn   byte = 49
	qrStoreParam byte = 48
)

// qrCommand builds GS ( k pL pH cn fn params, where pL/pH is the little-endian
// length of cn, fn and params.
func qrCommand(fn byte, params ...byte) []byte {
	n := len(params) + 2
	out := make([]byte, 0, 5+n)
	out = append(out, gs, '(', 'k', byte(n&0xFF), byte(n>>8), qrSymbolCn, fn)
	return append(out, params...)
}

// QRCode returns one barcode segment holding, in order: select model 2, module size,
// error correction level M, and store-and-print of payload.
func QRCode(payload string) Segment {
	data := []byte(payload)
	var out []byte
	out = append(out, qrCommand(qrFnModel, qrModel2, 0)...)
	out = append(out, qrCommand(qrFnSize, qrModule)...)
	out = append(out, qrCommand(qrFnECLevel, qrECLevelM)...)
	out = append(out, storeAndPrint(data)...)
	return Segment{Kind: KindBarcode, Data: out}
}

func storeAndPrint(data []byte) []byte {
	out := qrCommand(qrFnStore, append([]byte{qrStoreParam}, data...)...)
	return append(out, qrCommand(qrFnPrint, qrStoreParam)...)
}

// QRPayload is the pipe-delimited content printed under each receipt.
func QRPayload(sale *Sale) string {
	return fmt.Sprintf("CUPOM:%d|DATA:%s|VALOR:%d",
		sale.Id,
		sale.Date.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		sale.GrandTotal)
}
