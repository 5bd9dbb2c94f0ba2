// Package domain holds the shared value types passed between components.
// They are plain, value-typed structs passed between components on the
// event bus or as function arguments — no component owns another's
// mutable state.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PairID uniquely identifies a pool: (chain_id, token0, token1, fee_tier).
type PairID struct {
	ChainID int64
	Token0 string
	Token1 string
	FeeTier uint32
}

// String renders a stable, comparable key suitable for map/cache keys and
// the discovery dedup LRU.
func (p PairID) String() string {
	return fmt.Sprintf("%d:%s:%s:%d", p.ChainID, p.Token0, p.Token1, p.FeeTier)
}

// TokenInfo describes one side of a pair.
type TokenInfo struct {
	Address string
	Symbol string
	Decimals uint8
}

// NewPairEvent is produced once per pool by the Discovery Service (C3).
type NewPairEvent struct {
	ChainID int64
	PairID PairID
	PoolAddress string
	Token0 TokenInfo
	Token1 TokenInfo
	BlockNumber uint64
	TxHash string
	IsWETHPair bool
	IsStablecoinPair bool
	DiscoveryLatencyMs int64
	DiscoveredAt time.Time
}

// RiskCategory enumerates the 8 analyzer categories in
type RiskCategory string

const (
	CategoryHoneypot RiskCategory = "HONEYPOT"
	CategoryLiquidity RiskCategory = "LIQUIDITY"
	CategoryContractSecurity RiskCategory = "CONTRACT_SECURITY"
	CategoryTax RiskCategory = "TAX"
	CategoryHolder RiskCategory = "HOLDER"
	CategoryMarket RiskCategory = "MARKET"
	CategorySocial RiskCategory = "SOCIAL"
	CategoryTechnical RiskCategory = "TECHNICAL"
)

// DataQuality grades how trustworthy a category score's inputs were.
type DataQuality string

const (
	DataQualityPoor DataQuality = "POOR"
	DataQualityFair DataQuality = "FAIR"
	DataQualityGood DataQuality = "GOOD"
	DataQualityExcellent DataQuality = "EXCELLENT"
)

// CategoryWeight pairs a category with its overall-score weight and whether
// it is blocking, per the table.
type CategoryWeight struct {
	Category RiskCategory
	Weight decimal.Decimal
	Blocking bool
}

// CategoryWeights is the authoritative weight table.
var CategoryWeights = []CategoryWeight{
	{CategoryHoneypot, decimal.NewFromFloat(0.25), true},
	{CategoryLiquidity, decimal.NewFromFloat(0.20), true},
	{CategoryContractSecurity, decimal.NewFromFloat(0.15), true},
	{CategoryTax, decimal.NewFromFloat(0.15), false},
	{CategoryHolder, decimal.NewFromFloat(0.10), false},
	{CategoryMarket, decimal.NewFromFloat(0.10), false},
	{CategorySocial, decimal.NewFromFloat(0.03), false},
	{CategoryTechnical, decimal.NewFromFloat(0.02), false},
}

// RiskCategoryScore is one analyzer's verdict for one category.
type RiskCategoryScore struct {
	Category RiskCategory
	Score decimal.Decimal // [0,1], 1 = worst
	Confidence decimal.Decimal // [0,1]
	DataQuality DataQuality
	Warnings []string
	Details map[string]any
	AnalysisTimeMs int64
}

// Clamp enforces the [0,1] bound on Score and Confidence in place, as
// required by the analyzer contract.
func (s *RiskCategoryScore) Clamp() {
	s.Score = clamp01(s.Score)
	s.Confidence = clamp01(s.Confidence)
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}

// RiskAssessment is the Risk Assessment Engine's (C5) aggregate verdict.
type RiskAssessment struct {
	PairID PairID
	OverallScore decimal.Decimal
	Confidence decimal.Decimal
	IsTradeable bool
	BlockingIssues []string
	Categories map[RiskCategory]RiskCategoryScore
	AssessedAt time.Time
}

// SmartLaneRecommendation enumerates the Smart-Lane Pipeline's output
// actions.
type SmartLaneRecommendation string

const (
	RecommendationBuy SmartLaneRecommendation = "BUY"
	RecommendationPartialBuy SmartLaneRecommendation = "PARTIAL_BUY"
	RecommendationScaleIn SmartLaneRecommendation = "SCALE_IN"
	RecommendationHold SmartLaneRecommendation = "HOLD"
	RecommendationWait SmartLaneRecommendation = "WAIT"
	RecommendationSell SmartLaneRecommendation = "SELL"
	RecommendationAvoid SmartLaneRecommendation = "AVOID"
)

// ConfidenceLevel buckets a numeric confidence into the LOW/MEDIUM/HIGH.
type ConfidenceLevel string

const (
	ConfidenceLow ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh ConfidenceLevel = "HIGH"
)

// TakeProfitTarget is one tier of an exit strategy's take-profit ladder.
type TakeProfitTarget struct {
	PercentGain decimal.Decimal // e.g. 0.25 = +25%
	PositionPercent decimal.Decimal // fraction of the position closed at this tier
}

// SmartLaneAnalysis is the Smart-Lane Pipeline's (C6) final output.
type SmartLaneAnalysis struct {
	PairID PairID
	Recommendation SmartLaneRecommendation
	ConfidenceLevel ConfidenceLevel
	PositionSizePercent decimal.Decimal
	StopLossPercent *decimal.Decimal
	TakeProfitTargets []TakeProfitTarget
	MaxHoldTimeHours *decimal.Decimal
	TotalAnalysisTimeMs int64
	Warnings []string
}

// TradePriority mirrors the priority enum for TradeDecision.
type TradePriority string

const (
	PriorityStandard TradePriority = "standard"
	PriorityHigh TradePriority = "high"
	PriorityUrgent TradePriority = "urgent"
)

// TradeAction is BUY/SELL/SKIP for a TradeDecision.
type TradeAction string

const (
	ActionBuy TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionSkip TradeAction = "SKIP"
)

// TradeDecision is the output of position sizing + routing logic, ready for
// execution by a lane.
type TradeDecision struct {
	PairID PairID
	TokenAddress string
	Action TradeAction
	ConfidenceScore decimal.Decimal
	PositionSizeUSD decimal.Decimal
	MaxSlippagePercent decimal.Decimal
	Priority TradePriority
}

// ExecutionStatus is a TradeExecution's lifecycle state.
type ExecutionStatus string

const (
	ExecPending ExecutionStatus = "PENDING"
	ExecExecuting ExecutionStatus = "EXECUTING"
	ExecCompleted ExecutionStatus = "COMPLETED"
	ExecFailed ExecutionStatus = "FAILED"
	ExecCancelled ExecutionStatus = "CANCELLED"
	ExecTimeout ExecutionStatus = "TIMEOUT"
	ExecRejected ExecutionStatus = "REJECTED"
	ExecSlippageExceeded ExecutionStatus = "SLIPPAGE_EXCEEDED"
	ExecInsufficientFunds ExecutionStatus = "INSUFFICIENT_FUNDS"
)

// TradeExecution tracks a submitted trade through the fast or smart lane.
type TradeExecution struct {
	TradeID string
	Decision TradeDecision
	Status ExecutionStatus
	TxHash string
	AmountOut decimal.Decimal
	ActualSlippage decimal.Decimal
	GasUsed uint64
	ExecutionTimeMs int64
	SimulationNotes string
	CorrelationID string
}

// Position is an open (or closed) holding tracked by the Portfolio Manager.
type Position struct {
	PositionID string
	TokenAddress string
	ChainID int64
	Quantity decimal.Decimal
	EntryPriceUSD decimal.Decimal
	CurrentPriceUSD decimal.Decimal
	InitialValueUSD decimal.Decimal
	StopLossPrice *decimal.Decimal
	TakeProfitPrice *decimal.Decimal
	HighWaterMark decimal.Decimal
	OpenedAt time.Time
	ClosedAt *time.Time
}

// UnrealizedPnL is CurrentPriceUSD vs EntryPriceUSD scaled by Quantity.
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPriceUSD.Sub(p.EntryPriceUSD).Mul(p.Quantity)
}

// CurrentValueUSD is the position's mark-to-market value.
func (p Position) CurrentValueUSD() decimal.Decimal {
	return p.CurrentPriceUSD.Mul(p.Quantity)
}

// BreakerType enumerates the 5 circuit breaker trigger kinds.
type BreakerType string

const (
	BreakerDailyLoss BreakerType = "DAILY_LOSS"
	BreakerPortfolioLoss BreakerType = "PORTFOLIO_LOSS"
	BreakerConsecutiveLosses BreakerType = "CONSECUTIVE_LOSSES"
	BreakerVolatility BreakerType = "VOLATILITY"
	BreakerExternal BreakerType = "EXTERNAL"
)

// AlertSeverity grades how loudly an AlertEvent should be surfaced.
type AlertSeverity string

const (
	AlertInfo AlertSeverity = "INFO"
	AlertWarning AlertSeverity = "WARNING"
	AlertCritical AlertSeverity = "CRITICAL"
)

// AlertEvent is published on the alerts.triggered topic whenever a
// component needs to surface something to an operator:
// honeypot detections, circuit breaker trips, stuck nonces, relay failover.
type AlertEvent struct {
	Severity AlertSeverity
	Source string
	Message string
	PairID *PairID
	TriggeredAt time.Time
}

// CircuitBreakerEvent records one trip of the global Circuit Breaker (C10).
type CircuitBreakerEvent struct {
	Type BreakerType
	TriggerValue decimal.Decimal
	ThresholdValue decimal.Decimal
	TriggeredAt time.Time
	AutoRecoveryAt *time.Time
	Reason string
}
