package pgtype

import (
	"encoding/binary"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/pgflow/pgerr"
)

// PostgreSQL numeric wire format: variable-length base-10000 digits.
const (
	numericPos    uint16 = 0x0000
	numericNeg    uint16 = 0x4000
	numericNaN    uint16 = 0xC000
	numericPInf   uint16 = 0xD000
	numericNInf   uint16 = 0xF000
	numericDigits        = 10000
)

func encodeNumeric(d decimal.Decimal) ([]byte, error) {
	if d.Exponent() < -0x7fff || d.Exponent() > 0x7fff {
		return nil, pgerr.Newf(pgerr.Unsupported, "pgtype.encodeNumeric", "scale out of range: %d", d.Exponent())
	}

	sign := numericPos
	coeff := new(big.Int).Set(d.Coefficient())
	if coeff.Sign() < 0 {
		sign = numericNeg
		coeff.Neg(coeff)
	}

	scale := uint16(0)
	if d.Exponent() < 0 {
		scale = uint16(-d.Exponent())
	}

	if coeff.Sign() == 0 {
		// Zero has no digits; weight/scale still carried.
		buf := make([]byte, 8)
		binary.BigEndian.PutUint16(buf[0:], 0)
		binary.BigEndian.PutUint16(buf[2:], 0)
		binary.BigEndian.PutUint16(buf[4:], sign)
		binary.BigEndian.PutUint16(buf[6:], scale)
		return buf, nil
	}

	// Shift the coefficient so the decimal point falls on a base-10000
	// digit boundary, then split into base-10000 digits, most significant
	// first.
	extraDigits := 0
	if scale%4 != 0 {
		extraDigits = 4 - int(scale%4)
	}
	pad := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(extraDigits)), nil)
	coeff.Mul(coeff, pad)

	tenThousand := big.NewInt(numericDigits)
	var digits []uint16
	tmp := new(big.Int).Set(coeff)
	mod := new(big.Int)
	for tmp.Sign() > 0 {
		tmp.DivMod(tmp, tenThousand, mod)
		digits = append([]uint16{uint16(mod.Int64())}, digits...)
	}

	totalFracDigits := (int(scale) + extraDigits) / 4
	weight := len(digits) - totalFracDigits - 1

	buf := make([]byte, 8+2*len(digits))
	binary.BigEndian.PutUint16(buf[0:], uint16(len(digits)))
	binary.BigEndian.PutUint16(buf[2:], uint16(int16(weight)))
	binary.BigEndian.PutUint16(buf[4:], sign)
	binary.BigEndian.PutUint16(buf[6:], scale)
	for i, dgt := range digits {
		binary.BigEndian.PutUint16(buf[8+2*i:], dgt)
	}
	return buf, nil
}

func decodeNumeric(b []byte) (decimal.Decimal, error) {
	if len(b) < 8 {
		return decimal.Decimal{}, pgerr.New(pgerr.Fault, "pgtype.decodeNumeric", "short numeric payload")
	}
	ndigits := int(binary.BigEndian.Uint16(b[0:]))
	weight := int16(binary.BigEndian.Uint16(b[2:]))
	sign := binary.BigEndian.Uint16(b[4:])
	scale := binary.BigEndian.Uint16(b[6:])

	switch sign {
	case numericNaN:
		return decimal.Decimal{}, pgerr.New(pgerr.Unsupported, "pgtype.decodeNumeric", "NaN numeric")
	case numericPInf, numericNInf:
		return decimal.Decimal{}, pgerr.New(pgerr.Unsupported, "pgtype.decodeNumeric", "infinite numeric")
	}

	if len(b) < 8+2*ndigits {
		return decimal.Decimal{}, pgerr.New(pgerr.Fault, "pgtype.decodeNumeric", "truncated numeric digits")
	}

	coeff := new(big.Int)
	tenThousand := big.NewInt(numericDigits)
	for i := 0; i < ndigits; i++ {
		digit := binary.BigEndian.Uint16(b[8+2*i:])
		coeff.Mul(coeff, tenThousand)
		coeff.Add(coeff, big.NewInt(int64(digit)))
	}

	// coeff currently represents the digits as an integer scaled by
	// 10000^(ndigits-weight-1); convert to the requested decimal scale.
	fracDigitsPresent := (ndigits - int(weight) - 1) * 4
	shift := fracDigitsPresent - int(scale)
	if shift > 0 {
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shift)), nil)
		coeff.Div(coeff, div)
	} else if shift < 0 {
		mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-shift)), nil)
		coeff.Mul(coeff, mul)
	}

	if sign == numericNeg {
		coeff.Neg(coeff)
	}

	return decimal.NewFromBigInt(coeff, -int32(scale)), nil
}
