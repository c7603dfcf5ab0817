package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/keel/internal/ir"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// catalog always produces identical bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields so older agents can read newer rows.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshalCatalog(c ir.Catalog) ([]byte, error) {
	data, err := encMode.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}
	return data, nil
}

func unmarshalCatalog(data []byte) (ir.Catalog, error) {
	var c ir.Catalog
	if err := decMode.Unmarshal(data, &c); err != nil {
		return ir.Catalog{}, fmt.Errorf("unmarshal catalog: %w", err)
	}
	return c, nil
}

func marshalReport(r ir.RunReport) ([]byte, error) {
	data, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

func unmarshalReport(data []byte) (ir.RunReport, error) {
	var r ir.RunReport
	if err := decMode.Unmarshal(data, &r); err != nil {
		return ir.RunReport{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return r, nil
}

// cloneCatalog deep-copies c through its stored encoding.
func cloneCatalog(c ir.Catalog) (ir.Catalog, error) {
	data, err := marshalCatalog(c)
	if err != nil {
		return ir.Catalog{}, err
	}
	return unmarshalCatalog(data)
}
