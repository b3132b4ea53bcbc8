package odds

import (
	"math/big"
	"reflect"
	"testing"
	"testing/quick"

	"wagerSync/internal/model"
)

func ints(vs ...int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestPercentages(t *testing.T) {
	cases := []struct {
		name      string
		values    []*big.Int
		precision int
		want      []int64
	}{
		{"even split", ints(50, 50), 2, []int64{50, 50}},
		{"thirds", ints(1, 1, 1), 2, []int64{33, 33, 34}},
		{"skewed", ints(1, 2, 997), 2, []int64{0, 0, 100}},
		{"nearest rounding", ints(125, 875), 2, []int64{13, 87}},
		{"all zero", ints(0, 0, 0, 0), 2, []int64{25, 25, 25, 25}},
		{"single", ints(42), 2, []int64{100}},
		{"no precision", ints(1, 1, 1), 0, []int64{33, 33, 34}},
		{"many small shares", repeat(1, 150), 2, nil},
		{"seventy", repeat(1, 70), 2, nil},
	}
	for _, tc := range cases {
		got := Percentages(tc.values, tc.precision)
		if tc.want != nil && !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
		checkShares(t, got)
	}
}

func repeat(v int64, n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestPercentagesNegativeResidual(t *testing.T) {
	// every share but the last rounds 0.66 up to 1
	got := Percentages(repeat(1, 150), 2)
	checkShares(t, got)
	ones := 0
	for _, p := range got[:149] {
		if p == 1 {
			ones++
		}
	}
	if ones != 100 || got[149] != 0 {
		t.Fatalf("expected 100 ones and a zero residual, got %d ones, last %d", ones, got[149])
	}
}

func TestPercentagesEmpty(t *testing.T) {
	if got := Percentages(nil, 2); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func checkShares(t *testing.T, got []int64) {
	t.Helper()
	var sum int64
	for _, p := range got {
		if p < 0 || p > 100 {
			t.Fatalf("share out of range: %v", got)
		}
		sum += p
	}
	if sum != 100 {
		t.Fatalf("shares sum to %d: %v", sum, got)
	}
}

func TestPercentagesProperty(t *testing.T) {
	prop := func(raw []uint32, precision uint8) bool {
		if len(raw) == 0 {
			return true
		}
		if len(raw) > 300 {
			raw = raw[:300]
		}
		values := make([]*big.Int, len(raw))
		for i, v := range raw {
			// keep some all-zero and mostly-zero inputs in the mix
			if v%5 == 0 {
				v = 0
			}
			values[i] = new(big.Int).SetUint64(uint64(v))
		}
		got := Percentages(values, int(precision%6))
		var sum int64
		for _, p := range got {
			if p < 0 || p > 100 {
				return false
			}
			sum += p
		}
		return sum == 100 && len(got) == len(raw)
	}
	if err := quick.Check(prop, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatal(err)
	}
}

func TestPoolOdds(t *testing.T) {
	options := []model.PoolOption{
		{Address: "yes", Value: big.NewInt(300)},
		{Address: "no", Value: big.NewInt(100)},
	}
	got := PoolOdds(options, DefaultPrecision)
	want := []OptionOdds{{Option: options[0], Percent: 75}, {Option: options[1], Percent: 25}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected odds: %+v", got)
	}
}

func TestPoolOddsKeepsOrder(t *testing.T) {
	options := []model.PoolOption{
		{Address: "c", Value: big.NewInt(1)},
		{Address: "a", Value: big.NewInt(1)},
		{Address: "b", Value: big.NewInt(1)},
	}
	got := PoolOdds(options, DefaultPrecision)

	var order []string
	var sum int64
	for _, o := range got {
		order = append(order, o.Option.Address)
		sum += o.Percent
	}
	if !reflect.DeepEqual(order, []string{"c", "a", "b"}) {
		t.Fatalf("order changed: %v", order)
	}
	if sum != 100 {
		t.Fatalf("percentages sum to %d", sum)
	}
	if got[0].Percent != got[1].Percent {
		t.Fatalf("equal options differ before the last: %+v", got)
	}
}
