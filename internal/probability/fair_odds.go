package probability

// fairOddsBands maps decimal odds upper bounds to display prices
var fairOddsBands = []struct {
	below float64
	price string
}{
	{1.5, "1/2"},
	{1.8, "4/5"},
	{2.2, "1/1"},
	{2.75, "6/4"},
	{3.5, "2/1"},
	{4.5, "3/1"},
	{5.5, "4/1"},
	{6.5, "5/1"},
	{7.5, "6/1"},
	{8.5, "7/1"},
	{9.5, "8/1"},
	{10.5, "9/1"},
	{12, "10/1"},
	{15, "12/1"},
	{20, "16/1"},
	{30, "25/1"},
	{40, "33/1"},
	{60, "50/1"},
}

// FairOdds formats a probability as the nearest conventional fractional price
func FairOdds(probability float64) string {
	if probability <= 0 {
		return "99/1"
	}
	decimalOdds := 1 / probability
	for _, band := range fairOddsBands {
		if decimalOdds < band.below {
			return band.price
		}
	}
	return "99/1"
}
