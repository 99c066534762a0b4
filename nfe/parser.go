package nfe

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

const (
	keyPrefix = "NFe"
	keyLength = 44

	rootProc = "nfeProc"
	rootNFe  = "NFe"
	nodeInf  = "infNFe"

	// cEAN value issuers send for products without a GTIN
	noBarcode = "SEM GTIN"
)

var issueDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Intermediate tree. Every node is optional so that a missing node surfaces as a
// named error from the walk below instead of a zero value.
type xmlDocument struct {
	XMLName xml.Name
	NFe     *xmlNFe    `xml:"NFe"`
	InfNFe  *xmlInfNFe `xml:"infNFe"`
}

type xmlNFe struct {
	InfNFe *xmlInfNFe `xml:"infNFe"`
}

type xmlInfNFe struct {
	Id     string    `xml:"Id,attr"`
	Versao string    `xml:"versao,attr"`
	Ide    *xmlIde   `xml:"ide"`
	Emit   *xmlEmit  `xml:"emit"`
	Det    []xmlDet  `xml:"det"`
	Total  *xmlTotal `xml:"total"`
}

type xmlIde struct {
	NNF   string `xml:"nNF"`
	Serie string `xml:"serie"`
	DhEmi string `xml:"dhEmi"`
	DEmi  string `xml:"dEmi"`
}

type xmlEmit struct {
	CNPJ      string        `xml:"CNPJ"`
	CPF       string        `xml:"CPF"`
	XNome     string        `xml:"xNome"`
	XFant     string        `xml:"xFant"`
	EnderEmit *xmlEnderEmit `xml:"enderEmit"`
}

type xmlEnderEmit struct {
	XLgr string `xml:"xLgr"`
	XMun string `xml:"xMun"`
	UF   string `xml:"UF"`
}

type xmlDet struct {
	NItem string   `xml:"nItem,attr"`
	Prod  *xmlProd `xml:"prod"`
}

type xmlProd struct {
	CProd  string `xml:"cProd"`
	CEAN   string `xml:"cEAN"`
	XProd  string `xml:"xProd"`
	NCM    string `xml:"NCM"`
	UCom   string `xml:"uCom"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
	VProd  string `xml:"vProd"`
}

type xmlTotal struct {
	ICMSTot *xmlICMSTot `xml:"ICMSTot"`
}

type xmlICMSTot struct {
	VNF   string `xml:"vNF"`
	VICMS string `xml:"vICMS"`
	VIPI  string `xml:"vIPI"`
}

// Parse decodes one NF-e document (with or without the nfeProc wrapper).
func Parse(raw []byte) (*Invoice, error) {
	var doc xmlDocument
	if err := newDecoder(raw).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	inf, err := doc.infNFe()
	if err != nil {
		return nil, err
	}
	key, ok := keyFromId(inf.Id)
	if !ok {
		return nil, missing(nodeInf + "@Id")
	}
	if err := checkVersion(inf.Versao); err != nil {
		return nil, err
	}
	if inf.Ide == nil {
		return nil, missing(nodeInf + "/ide")
	}
	if inf.Emit == nil {
		return nil, missing(nodeInf + "/emit")
	}
	if len(inf.Det) == 0 {
		return nil, fmt.Errorf("%w: no det nodes", ErrUnsupportedSchemaVersion)
	}
	if inf.Total == nil || inf.Total.ICMSTot == nil {
		return nil, fmt.Errorf("%w: missing total/ICMSTot", ErrUnsupportedSchemaVersion)
	}

	issueDate, err := parseIssueDate(inf.Ide)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(inf.Det))
	for i, det := range inf.Det {
		item, err := parseItem(i, det)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	totals, err := parseTotals(inf.Total.ICMSTot)
	if err != nil {
		return nil, err
	}

	return &Invoice{
		Key:       key,
		Number:    strings.TrimSpace(inf.Ide.NNF),
		Series:    strings.TrimSpace(inf.Ide.Serie),
		Version:   inf.Versao,
		IssueDate: issueDate,
		Supplier:  parseSupplier(inf.Emit),
		Items:     items,
		Totals:    totals,
	}, nil
}

// IsValidDocument is a cheap pre-filter: it only checks that the root envelope is an NF-e.
func IsValidDocument(raw []byte) bool {
	dec := newDecoder(raw)
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if t.Name.Local == rootNFe {
					return true
				}
				if t.Name.Local != rootProc {
					return false
				}
			} else if depth == 2 && t.Name.Local == rootNFe {
				return true
			}
		case xml.EndElement:
			depth--
			if depth == 0 {
				return false
			}
		}
	}
}

// ExtractKey pulls the invoice key out of the infNFe Id attribute without decoding
// the rest of the document.
func ExtractKey(raw []byte) (string, bool) {
	dec := newDecoder(raw)
	first := true
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if first {
			first = false
			if start.Name.Local != rootProc && start.Name.Local != rootNFe {
				return "", false
			}
		}
		if start.Name.Local != nodeInf {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "Id" {
				return keyFromId(attr.Value)
			}
		}
		return "", false
	}
}

// newDecoder accepts the legacy Latin-1 declarations some issuer software still emits.
func newDecoder(raw []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(label) {
		case "iso-8859-1", "latin1", "latin-1":
			return charmap.ISO8859_1.NewDecoder().Reader(input), nil
		case "windows-1252", "cp1252":
			return charmap.Windows1252.NewDecoder().Reader(input), nil
		}
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return dec
}

func (d *xmlDocument) infNFe() (*xmlInfNFe, error) {
	switch d.XMLName.Local {
	case rootProc:
		if d.NFe == nil {
			return nil, missing(rootProc + "/NFe")
		}
		if d.NFe.InfNFe == nil {
			return nil, missing(rootProc + "/NFe/infNFe")
		}
		return d.NFe.InfNFe, nil
	case rootNFe:
		if d.InfNFe == nil {
			return nil, missing("NFe/infNFe")
		}
		return d.InfNFe, nil
	default:
		return nil, fmt.Errorf("%w: unexpected root <%s>", ErrMalformedDocument, d.XMLName.Local)
	}
}

// keyFromId strips the "NFe" prefix and reports whether what is left is a
// 44-digit access key.
func keyFromId(id string) (string, bool) {
	key := strings.TrimPrefix(strings.TrimSpace(id), keyPrefix)
	if len(key) != keyLength {
		return "", false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return "", false
		}
	}
	return key, true
}

func missing(path string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformedDocument, path)
}

// Layouts 1.x predate the det/prod + ICMSTot structure.
func checkVersion(versao string) error {
	versao = strings.TrimSpace(versao)
	if versao == "" {
		return nil
	}
	majorStr, _, _ := strings.Cut(versao, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 2 {
		return fmt.Errorf("%w: versao %q", ErrUnsupportedSchemaVersion, versao)
	}
	return nil
}

func parseIssueDate(ide *xmlIde) (time.Time, error) {
	raw := strings.TrimSpace(ide.DhEmi)
	if raw == "" {
		raw = strings.TrimSpace(ide.DEmi)
	}
	if raw == "" {
		return time.Time{}, missing("ide/dhEmi")
	}
	for _, layout := range issueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid issue date %q", ErrMalformedDocument, raw)
}

func parseSupplier(emit *xmlEmit) Supplier {
	taxId := strings.TrimSpace(emit.CNPJ)
	if taxId == "" {
		taxId = strings.TrimSpace(emit.CPF)
	}
	s := Supplier{
		TaxId:     taxId,
		Name:      strings.TrimSpace(emit.XNome),
		TradeName: strings.TrimSpace(emit.XFant),
	}
	if emit.EnderEmit != nil {
		s.Address = strings.TrimSpace(emit.EnderEmit.XLgr)
		s.City = strings.TrimSpace(emit.EnderEmit.XMun)
		s.State = strings.TrimSpace(emit.EnderEmit.UF)
	}
	return s
}

func parseItem(i int, det xmlDet) (Item, error) {
	if det.Prod == nil {
		return Item{}, fmt.Errorf("%w: det[%d] without prod", ErrUnsupportedSchemaVersion, i)
	}
	p := det.Prod
	path := fmt.Sprintf("det[%d]/prod", i)

	qty, err := requiredDecimal(path+"/qCom", p.QCom)
	if err != nil {
		return Item{}, err
	}
	unitPrice, err := requiredDecimal(path+"/vUnCom", p.VUnCom)
	if err != nil {
		return Item{}, err
	}
	lineTotal, err := requiredDecimal(path+"/vProd", p.VProd)
	if err != nil {
		return Item{}, err
	}

	barcode := strings.TrimSpace(p.CEAN)
	if strings.EqualFold(barcode, noBarcode) {
		barcode = ""
	}

	return Item{
		Code:      strings.TrimSpace(p.CProd),
		Name:      strings.TrimSpace(p.XProd),
		Ncm:       strings.TrimSpace(p.NCM),
		Quantity:  qty,
		UnitPrice: unitPrice,
		LineTotal: lineTotal,
		Barcode:   barcode,
		Unit:      strings.TrimSpace(p.UCom),
	}, nil
}

func parseTotals(tot *xmlICMSTot) (Totals, error) {
	grand, err := requiredDecimal("total/ICMSTot/vNF", tot.VNF)
	if err != nil {
		return Totals{}, err
	}
	icms, err := optionalDecimal("total/ICMSTot/vICMS", tot.VICMS)
	if err != nil {
		return Totals{}, err
	}
	ipi, err := optionalDecimal("total/ICMSTot/vIPI", tot.VIPI)
	if err != nil {
		return Totals{}, err
	}
	return Totals{GrandTotal: grand, TaxAmountA: icms, TaxAmountB: ipi}, nil
}

func requiredDecimal(path, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, missing(path)
	}
	d, err := ParseDecimal(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
	}
	return d, nil
}

func optionalDecimal(path, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return requiredDecimal(path, raw)
}
