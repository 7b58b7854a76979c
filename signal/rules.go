package signal

// Crossover enters long when Fast crosses above Slow and short on the
// inverse cross.
type Crossover struct {
	Fast, Slow string
}

func (r Crossover) Needs() []string { return []string{r.Fast, r.Slow} }

func (r Crossover) Conditions(cur, prev Snapshot, hasPrev bool) Conditions {
	f, s := cur.Readings[r.Fast].Value(), cur.Readings[r.Slow].Value()
	c := Conditions{Bullish: f > s}
	if !hasPrev {
		return c
	}
	pf, ps := prev.Readings[r.Fast].Value(), prev.Readings[r.Slow].Value()
	c.LongEntry = CrossUp(pf, ps, f, s)
	c.ShortEntry = CrossDown(pf, ps, f, s)
	return c
}

// Threshold trades an oscillator against oversold/overbought levels.
// A positive ExitLevel closes longs at or above it and shorts at or
// below it.
type Threshold struct {
	Name       string
	Oversold   float64
	Overbought float64
	ExitLevel  float64
}

func (r Threshold) Needs() []string { return []string{r.Name} }

func (r Threshold) Conditions(cur, _ Snapshot, _ bool) Conditions {
	v := cur.Readings[r.Name].Value()
	c := Conditions{
		LongEntry:  v < r.Oversold,
		ShortEntry: v > r.Overbought,
		Bullish:    v < r.Oversold,
	}
	if r.ExitLevel > 0 {
		c.LongExit = v >= r.ExitLevel
		c.ShortExit = v <= r.ExitLevel
	}
	return c
}

// Band fades closes outside {upper, middle, lower} bands and exits at
// the middle line.
type Band struct {
	Name string
}

func (r Band) Needs() []string { return []string{r.Name} }

func (r Band) Conditions(cur, _ Snapshot, _ bool) Conditions {
	b := cur.Readings[r.Name]
	upper, middle, lower := b.At(0), b.At(1), b.At(2)
	return Conditions{
		LongEntry:  cur.Close < lower,
		ShortEntry: cur.Close > upper,
		LongExit:   cur.Close >= middle,
		ShortExit:  cur.Close <= middle,
		Bullish:    cur.Close > middle,
	}
}

// Breakout enters when the close leaves the {high, low} channel of the
// previous bars. A non-empty Momentum reading must agree in sign.
type Breakout struct {
	Channel  string
	Momentum string
}

func (r Breakout) Needs() []string {
	if r.Momentum == "" {
		return []string{r.Channel}
	}
	return []string{r.Channel, r.Momentum}
}

func (r Breakout) Conditions(cur, _ Snapshot, _ bool) Conditions {
	ch := cur.Readings[r.Channel]
	upper, lower := ch.At(0), ch.At(1)
	up, down := true, true
	if r.Momentum != "" {
		m := cur.Readings[r.Momentum].Value()
		up, down = m > 0, m < 0
	}
	return Conditions{
		LongEntry:  cur.Close > upper && up,
		ShortEntry: cur.Close < lower && down,
		Bullish:    cur.Close > (upper+lower)/2,
	}
}
