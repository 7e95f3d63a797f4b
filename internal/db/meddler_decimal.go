package db

import (
	"database/sql"
	"fmt"

	"github.com/russross/meddler"
	"github.com/shopspring/decimal"
)

func init() {
	meddler.Register("decimal", DecimalMeddler{})
}

// DecimalMeddler stores decimal.Decimal values as exact TEXT.
// Use it with the `meddler:"column,decimal"` tag.
type DecimalMeddler struct{}

func (d DecimalMeddler) PreRead(fieldAddr any) (scanTarget any, err error) {
	return new(sql.NullString), nil
}

func (d DecimalMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	var value decimal.Decimal
	if ns.Valid {
		var err error
		if value, err = decimal.NewFromString(ns.String); err != nil {
			return fmt.Errorf("invalid decimal %q: %w", ns.String, err)
		}
	}

	switch ptr := fieldAddr.(type) {
	case *decimal.Decimal:
		*ptr = value
	case **decimal.Decimal:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		*ptr = &value
	default:
		return fmt.Errorf("expected *decimal.Decimal or **decimal.Decimal, got %T", fieldAddr)
	}

	return nil
}

func (d DecimalMeddler) PreWrite(field any) (saveValue any, err error) {
	switch v := field.(type) {
	case decimal.Decimal:
		return v.String(), nil
	case *decimal.Decimal:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	}

	return nil, fmt.Errorf("expected decimal.Decimal or *decimal.Decimal, got %T", field)
}
