package sched

// Fixed is a signed 17.14 fixed-point number: 17 bits before the binary
// point, 14 after, one sign bit. Conversion to int truncates toward zero.
type Fixed int32

// fixedPointShift is q in the p.q fixed-point format; fixedPointScale is
// 1<<q, named f in the reference arithmetic table.
const (
	fixedPointShift = 14
	fixedPointScale = 1 << fixedPointShift
)

// FixedFromInt converts an integer to fixed-point: n*f.
func FixedFromInt(n int) Fixed {
	return Fixed(n * fixedPointScale)
}

// ToIntTrunc converts to an integer, rounding toward zero: x/f.
func (x Fixed) ToIntTrunc() int {
	return int(x) / fixedPointScale
}

// ToIntRound converts to an integer, rounding to nearest.
func (x Fixed) ToIntRound() int {
	if x >= 0 {
		return (int(x) + fixedPointScale/2) / fixedPointScale
	}
	return (int(x) - fixedPointScale/2) / fixedPointScale
}

// Add returns x+y.
func (x Fixed) Add(y Fixed) Fixed { return x + y }

// Sub returns x-y.
func (x Fixed) Sub(y Fixed) Fixed { return x - y }

// AddInt returns x+n*f.
func (x Fixed) AddInt(n int) Fixed { return x + Fixed(n*fixedPointScale) }

// SubInt returns x-n*f.
func (x Fixed) SubInt(n int) Fixed { return x - Fixed(n*fixedPointScale) }

// Mul returns x*y, computed in 64 bits to avoid overflow on the
// intermediate product before shifting back down by f.
func (x Fixed) Mul(y Fixed) Fixed {
	return Fixed(int64(x) * int64(y) / fixedPointScale)
}

// MulInt returns x*n.
func (x Fixed) MulInt(n int) Fixed { return x * Fixed(n) }

// Div returns x/y, computed in 64 bits: the dividend is shifted left by q
// bits before dividing so the result lands back in 17.14 format.
func (x Fixed) Div(y Fixed) Fixed {
	return Fixed(int64(x) * fixedPointScale / int64(y))
}

// DivInt returns x/n.
func (x Fixed) DivInt(n int) Fixed { return x / Fixed(n) }
