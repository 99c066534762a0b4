package escpos

import "encoding/base64"

// ToTransportEncoding makes a raw stream safe for text-only channels (JSON, web sockets).
func ToTransportEncoding(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func FromTransportEncoding(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
