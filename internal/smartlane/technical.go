package smartlane

import (
	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// Direction is one indicator's or one timeframe's directional read.
type Direction string

const (
	DirectionBuy Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// TimeframeSignal is the aggregated indicator-set verdict for one timeframe,
// phase 2.
type TimeframeSignal struct {
	Timeframe string
	Direction Direction
	Strength decimal.Decimal // [0,1], fraction of indicators agreeing with Direction
}

// TechnicalAnalysis is the output of phase 2: one signal per requested
// timeframe plus the multi-timeframe convergence used by the decision matrix.
type TechnicalAnalysis struct {
	PerTimeframe []TimeframeSignal
	Convergence TimeframeSignal
}

// PriceSeries is one timeframe's OHLC history, oldest first. go-talib and the
// indicator formulas below operate on float64 ("floats only
// in bounded statistical analyzers").
type PriceSeries struct {
	Timeframe string
	Close []float64
	High []float64
	Low []float64
}

// minCandles is the shortest history any indicator below can produce a
// meaningful read from (the CCI and Bollinger period). MACD (26/9) and the
// 21-period MA need a longer series than this.
const minCandles = 20

// AnalyzeTechnical runs the eight-indicator set {RSI, MACD, MA cross,
// Bollinger, Stochastic, Williams %R, CCI, ROC} against each series and
// aggregates per-timeframe, then across timeframes.
func AnalyzeTechnical(series []PriceSeries) TechnicalAnalysis {
	out := TechnicalAnalysis{}
	for _, s := range series {
		out.PerTimeframe = append(out.PerTimeframe, analyzeOne(s))
	}
	out.Convergence = converge(out.PerTimeframe)
	return out
}

func analyzeOne(s PriceSeries) TimeframeSignal {
	if len(s.Close) < minCandles {
		return TimeframeSignal{Timeframe: s.Timeframe, Direction: DirectionNeutral, Strength: decimal.Zero}
	}

	var votes []Direction

	rsi := talib.Rsi(s.Close, 14)
	votes = append(votes, voteThreshold(last(rsi), 70, 30))

	macd, signal, _ := talib.Macd(s.Close, 12, 26, 9)
	votes = append(votes, voteCross(last(macd), last(signal)))

	shortMA := talib.Sma(s.Close, 9)
	longMA := talib.Sma(s.Close, 21)
	votes = append(votes, voteCross(last(shortMA), last(longMA)))

	upper, _, lower := talib.Bbands(s.Close, 20, 2, 2, talib.SMA)
	votes = append(votes, voteBands(last(s.Close), last(upper), last(lower)))

	slowK, slowD := talib.Stoch(s.High, s.Low, s.Close, 14, 3, talib.SMA, 3, talib.SMA)
	_ = slowD
	votes = append(votes, voteThreshold(last(slowK), 80, 20))

	willR := talib.WillR(s.High, s.Low, s.Close, 14)
	votes = append(votes, voteThreshold(-last(willR), 80, 20)) // WillR is [-100,0]; invert to [0,100]

	cci := talib.Cci(s.High, s.Low, s.Close, 20)
	votes = append(votes, voteThreshold(last(cci), 100, -100))

	roc := talib.Roc(s.Close, 10)
	votes = append(votes, voteSign(last(roc)))

	return tally(s.Timeframe, votes)
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}

// voteThreshold reads an oscillator bounded roughly in [0,100]: above
// overbought votes SELL, below oversold votes BUY, between is NEUTRAL.
func voteThreshold(value, overbought, oversold float64) Direction {
	switch {
	case value >= overbought:
		return DirectionSell
	case value <= oversold:
		return DirectionBuy
	default:
		return DirectionNeutral
	}
}

// voteCross reads any fast/slow pair (MACD/signal, short/long MA): fast
// above slow votes BUY, below votes SELL.
func voteCross(fast, slow float64) Direction {
	switch {
	case fast > slow:
		return DirectionBuy
	case fast < slow:
		return DirectionSell
	default:
		return DirectionNeutral
	}
}

// voteBands reads price against a Bollinger envelope: pressed against the
// lower band votes BUY (mean reversion), against the upper votes SELL.
func voteBands(price, upper, lower float64) Direction {
	switch {
	case price <= lower:
		return DirectionBuy
	case price >= upper:
		return DirectionSell
	default:
		return DirectionNeutral
	}
}

func voteSign(value float64) Direction {
	switch {
	case value > 0:
		return DirectionBuy
	case value < 0:
		return DirectionSell
	default:
		return DirectionNeutral
	}
}

// tally reduces a timeframe's per-indicator votes to one Direction and a
// strength equal to that direction's share of all votes, neutral included.
func tally(timeframe string, votes []Direction) TimeframeSignal {
	var buy, sell, neutral int
	for _, v := range votes {
		switch v {
		case DirectionBuy:
			buy++
		case DirectionSell:
			sell++
		default:
			neutral++
		}
	}

	total := len(votes)
	if total == 0 || buy == sell {
		return TimeframeSignal{Timeframe: timeframe, Direction: DirectionNeutral, Strength: decimal.Zero}
	}

	direction := DirectionBuy
	winning := buy
	if sell > buy {
		direction = DirectionSell
		winning = sell
	}
	strength := decimal.NewFromInt(int64(winning)).Div(decimal.NewFromInt(int64(total)))
	return TimeframeSignal{Timeframe: timeframe, Direction: direction, Strength: strength}
}

// converge aggregates per-timeframe signals into one multi-timeframe read:
// the majority direction, weighted by each timeframe's own strength.
func converge(signals []TimeframeSignal) TimeframeSignal {
	if len(signals) == 0 {
		return TimeframeSignal{Direction: DirectionNeutral, Strength: decimal.Zero}
	}

	buyWeight, sellWeight := decimal.Zero, decimal.Zero
	for _, s := range signals {
		switch s.Direction {
		case DirectionBuy:
			buyWeight = buyWeight.Add(s.Strength)
		case DirectionSell:
			sellWeight = sellWeight.Add(s.Strength)
		}
	}

	n := decimal.NewFromInt(int64(len(signals)))
	if buyWeight.Equal(sellWeight) {
		return TimeframeSignal{Direction: DirectionNeutral, Strength: decimal.Zero}
	}
	if buyWeight.GreaterThan(sellWeight) {
		return TimeframeSignal{Direction: DirectionBuy, Strength: buyWeight.Div(n)}
	}
	return TimeframeSignal{Direction: DirectionSell, Strength: sellWeight.Div(n)}
}
