// Package odds converts accumulated option values into display percentages.
package odds

import (
	"math/big"
	"sort"

	"wagerSync/internal/model"
)

// DefaultPrecision is the number of extra decimal digits kept before rounding.
const DefaultPrecision = 2

// Percentages returns each value's share of the total as whole percents that
// always sum to 100. Every share but the last is rounded to nearest; the last
// takes the residual. A zero total splits equally.
func Percentages(values []*big.Int, precision int) []int64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	if precision < 0 {
		precision = 0
	}

	weights := make([]*big.Int, n)
	total := new(big.Int)
	for i, v := range values {
		if v == nil || v.Sign() < 0 {
			weights[i] = new(big.Int)
		} else {
			weights[i] = v
		}
		total.Add(total, weights[i])
	}
	if total.Sign() == 0 {
		one := big.NewInt(1)
		for i := range weights {
			weights[i] = one
		}
		total.SetInt64(int64(n))
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	scale := new(big.Int).Mul(unit, big.NewInt(100))
	half := new(big.Int).Quo(unit, big.NewInt(2))

	out := make([]int64, n)
	// excess is how far each rounded share sits above its exact share, in
	// units of 10^-precision percent.
	excess := make([]int64, n)
	var sum int64
	for i := 0; i < n-1; i++ {
		scaled := new(big.Int).Mul(weights[i], scale)
		scaled.Quo(scaled, total)

		pct, rem := new(big.Int).QuoRem(scaled, unit, new(big.Int))
		if precision > 0 && rem.Cmp(half) >= 0 {
			pct.Add(pct, big.NewInt(1))
			excess[i] = new(big.Int).Sub(unit, rem).Int64()
		} else {
			excess[i] = -1
		}
		out[i] = pct.Int64()
		sum += out[i]
	}

	residual := 100 - sum
	if residual < 0 {
		up := make([]int, 0, n)
		for i := 0; i < n-1; i++ {
			if excess[i] >= 0 {
				up = append(up, i)
			}
		}
		sort.SliceStable(up, func(a, b int) bool { return excess[up[a]] > excess[up[b]] })
		for _, i := range up {
			if residual >= 0 {
				break
			}
			out[i]--
			residual++
		}
	}
	out[n-1] = residual
	return out
}

// OptionOdds is one option with its share of the pool.
type OptionOdds struct {
	Option  model.PoolOption
	Percent int64
}

// PoolOdds returns the percentage of each option, in the order given. The
// rounding residual goes to the last option, so callers control who absorbs
// it through the order.
func PoolOdds(options []model.PoolOption, precision int) []OptionOdds {
	values := make([]*big.Int, len(options))
	for i, o := range options {
		values[i] = o.Value
	}
	pcts := Percentages(values, precision)
	out := make([]OptionOdds, len(options))
	for i, o := range options {
		out[i] = OptionOdds{Option: o, Percent: pcts[i]}
	}
	return out
}
