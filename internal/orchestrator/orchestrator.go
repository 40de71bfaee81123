package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/magpie-trading/magpie/internal/config"
	"github.com/magpie-trading/magpie/internal/executor"
	"github.com/magpie-trading/magpie/internal/feeds"
	"github.com/magpie-trading/magpie/internal/gateway"
	"github.com/magpie-trading/magpie/internal/position"
	"github.com/magpie-trading/magpie/internal/risk"
	"github.com/magpie-trading/magpie/internal/scoring"
	"github.com/magpie-trading/magpie/internal/store"
	"github.com/magpie-trading/magpie/internal/strategy"
	"github.com/magpie-trading/magpie/internal/telemetry"
)

// Metrics is the slice of the metrics recorder the orchestrator touches.
// Tests pass NopMetrics so Prometheus collectors are not registered twice.
type Metrics interface {
	Candidate(source string)
	Rejection(strategy string)
	Trade(strategy, side string)
	Exit(reason string)
	SetOpenPositions(n int)
	SetExposure(sol float64)
	SetRealizedPL(sol float64)
	SetBreaker(service string, open bool)
	MarkCycle(seconds float64)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) Candidate(string) {}

func (NopMetrics) Rejection(string) {}

func (NopMetrics) Trade(string, string) {}

func (NopMetrics) Exit(string) {}

func (NopMetrics) SetOpenPositions(int) {}

func (NopMetrics) SetExposure(float64) {}

func (NopMetrics) SetRealizedPL(float64) {}

func (NopMetrics) SetBreaker(string, bool) {}

func (NopMetrics) MarkCycle(float64) {}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Gateway   *gateway.Gateway
	Scorer    *scoring.Scorer
	Governor  *risk.Governor
	Adapter   executor.Adapter
	Positions store.PositionStore
	Trades    store.TradeStore
	Ledger    *store.Ledger // optional
	Journal   *telemetry.Journal
	Metrics   Metrics // optional, defaults to NopMetrics
}

// Orchestrator owns the pipeline: feed intake, admission, the mark-to-market
// loop, the watchlist, and the standing risk loop.
// SAFETY > PROFIT > SPEED
type Orchestrator struct {
	cfg config.Config

	gw        *gateway.Gateway
	scorer    *scoring.Scorer
	governor  *risk.Governor
	adapter   executor.Adapter
	positions store.PositionStore
	trades    store.TradeStore
	ledger    *store.Ledger
	journal   *telemetry.Journal
	metrics   Metrics

	book      *position.Book
	watchlist *Watchlist
	intake    chan feeds.Candidate
	policies  map[strategy.Strategy]*position.ExitPolicy
	caps      *dailyCaps

	// admitMu closes the check-then-act window between reading exposure
	// and committing a new position.
	admitMu sync.Mutex

	// exitMu serializes sell dispatch: the mark loop and the risk loop's
	// emergency flatten run concurrently, and without this lock both could
	// send a live sell for the same position.
	exitMu sync.Mutex

	started time.Time
}

func New(cfg config.Config, deps Deps) *Orchestrator {
	policies := make(map[strategy.Strategy]*position.ExitPolicy, 3)
	for _, s := range strategy.All() {
		policies[s] = position.NewExitPolicy(s.Params(cfg.Strategies).Exits)
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}

	return &Orchestrator{
		cfg:       cfg,
		gw:        deps.Gateway,
		scorer:    deps.Scorer,
		governor:  deps.Governor,
		adapter:   deps.Adapter,
		positions: deps.Positions,
		trades:    deps.Trades,
		ledger:    deps.Ledger,
		journal:   deps.Journal,
		metrics:   metrics,
		book:      position.NewBook(),
		watchlist: NewWatchlist(cfg.Orchestrator.WatchlistTTL, cfg.Orchestrator.PromoteMultiple),
		intake:    make(chan feeds.Candidate, cfg.Orchestrator.IntakeBuffer),
		policies:  policies,
		caps:      newDailyCaps(),
		started:   time.Now(),
	}
}

// Intake is the bounded candidate channel the feeds write into.
func (o *Orchestrator) Intake() chan<- feeds.Candidate {
	return o.intake
}

// Book exposes the live positions for the ops endpoints.
func (o *Orchestrator) Book() *position.Book {
	return o.book
}

// Watchlist exposes the parked tokens for the ops endpoints.
func (o *Orchestrator) Watchlist() *Watchlist {
	return o.watchlist
}

// Recover reloads persisted positions after a restart.
func (o *Orchestrator) Recover(ctx context.Context) error {
	saved, err := o.positions.LoadPositions(ctx)
	if err != nil {
		return err
	}
	for i := range saved {
		pos := saved[i]
		if err := o.book.Add(&pos); err != nil {
			log.Warn().Err(err).Str("token", pos.Token).Msg("recovered position skipped")
			continue
		}
		log.Info().
			Str("token", pos.Token).
			Str("strategy", string(pos.Strategy)).
			Str("size", pos.Size.String()).
			Msg("position recovered")
	}
	if n := len(saved); n > 0 {
		o.journal.Record(telemetry.EventSystem, "", "", "recovered %d positions from store", n)
	}
	return nil
}

// Run starts every loop and blocks until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(4)
	go func() { defer wg.Done(); o.consumeIntake(ctx) }()
	go func() { defer wg.Done(); o.markLoop(ctx) }()
	go func() { defer wg.Done(); o.riskLoop(ctx) }()
	go func() { defer wg.Done(); o.watchLoop(ctx) }()

	log.Info().
		Int("intake_buffer", o.cfg.Orchestrator.IntakeBuffer).
		Dur("mark_interval", o.cfg.Orchestrator.MarkInterval).
		Msg("orchestrator started")

	wg.Wait()
}

// --- intake ----------------------------------------------------------------

func (o *Orchestrator) consumeIntake(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-o.intake:
			o.processCandidate(ctx, c)
		}
	}
}

// processCandidate runs one token through the admission pipeline: dedupe,
// market data, scoring, gating, risk sizing, execution. Re-delivering the
// same candidate is always a no-op once a position or watch entry exists.
func (o *Orchestrator) processCandidate(ctx context.Context, c feeds.Candidate) {
	o.metrics.Candidate(string(c.Source))

	if o.book.Has(c.Token) || o.watchlist.Has(c.Token) {
		return
	}

	strat := c.Source
	if !strat.Valid() {
		log.Warn().Str("source", string(c.Source)).Msg("candidate with unknown strategy dropped")
		return
	}
	params := strat.Params(o.cfg.Strategies)

	stats, ok := o.gw.Stats(ctx, c.Token)
	if !ok {
		o.journal.Record(telemetry.EventRejected, c.Token, string(strat), "market data unavailable")
		return
	}
	report := o.gw.Risk(ctx, c.Token)
	score := o.scorer.Score(stats, report)

	if verdict := scoring.Gate(params, stats, report, score); !verdict.Passed {
		o.metrics.Rejection(string(strat))
		o.journal.Record(telemetry.EventRejected, c.Token, string(strat), "%s", verdict.Reason)

		// Near-misses from the launchpad go on the watchlist: the pool may
		// still be warming up.
		if strat == strategy.UltraEarly && !report.Danger && stats.MarketCapUSD > 0 {
			o.watchlist.Add(WatchEntry{
				Token:            c.Token,
				Start:            time.Now(),
				InitialMarketCap: stats.MarketCapUSD,
				RiskScore:        report.Score,
			})
		}
		return
	}

	if !o.governor.AdmitTrade() {
		o.journal.Record(telemetry.EventRisk, c.Token, string(strat), "trading disabled, candidate skipped")
		return
	}
	if !o.caps.Allow(strat, params.MaxDailyTrades) {
		o.journal.Record(telemetry.EventRejected, c.Token, string(strat), "daily trade cap reached")
		return
	}
	if params.MaxPositions > 0 && o.book.CountByStrategy(strat) >= params.MaxPositions {
		o.journal.Record(telemetry.EventRejected, c.Token, string(strat), "max open positions reached")
		return
	}
	if !stats.PriceSOL.IsPositive() {
		o.journal.Record(telemetry.EventRejected, c.Token, string(strat), "no usable price")
		return
	}

	o.admit(ctx, c.Token, strat, params, score, stats.PriceSOL)
}

// admit holds the admission lock across exposure read, sizing, execution and
// position commit, so two candidates cannot both size against the same free
// budget.
func (o *Orchestrator) admit(ctx context.Context, token string, strat strategy.Strategy, params config.StrategyConfig, score float64, price decimal.Decimal) {
	o.admitMu.Lock()
	defer o.admitMu.Unlock()

	if o.book.Has(token) {
		return
	}

	exposure := o.book.Exposure()
	size := o.governor.SizeFor(params, score, exposure)
	if !size.IsPositive() {
		o.journal.Record(telemetry.EventRisk, token, string(strat), "sizing returned zero, skipped")
		return
	}

	switch result := o.adapter.Buy(ctx, token, size); result {
	case executor.Confirmed:
	case executor.Rejected:
		o.journal.Record(telemetry.EventRejected, token, string(strat), "buy rejected by agent")
		return
	default:
		// Unknown after reconciliation: do not open a phantom position.
		o.journal.Record(telemetry.EventRejected, token, string(strat), "buy outcome unknown, not opening position")
		log.Warn().Str("token", token).Msg("unreconciled buy, manual check advised")
		return
	}

	pos := position.Open(token, strat, size, price, time.Now())
	if err := o.book.Add(pos); err != nil {
		log.Error().Err(err).Str("token", token).Msg("confirmed buy could not be booked")
		return
	}
	o.caps.Inc(strat)

	if err := o.positions.SavePosition(ctx, *pos); err != nil {
		log.Error().Err(err).Str("token", token).Msg("position persist failed")
	}
	o.recordFill(ctx, store.Trade{
		ID:          uuid.NewString(),
		Token:       token,
		Strategy:    string(strat),
		Side:        "buy",
		Price:       price,
		TokenAmount: pos.Size,
		SOLAmount:   size,
		ExecutedAt:  time.Now(),
	})
	o.metrics.Trade(string(strat), "buy")
	o.journal.Record(telemetry.EventBuy, token, string(strat),
		"bought %s SOL at %s (score %.1f)", size.String(), price.String(), score)
	log.Info().
		Str("token", token).
		Str("strategy", string(strat)).
		Str("size_sol", size.String()).
		Float64("score", score).
		Msg("position opened")
}

// --- mark-to-market --------------------------------------------------------

func (o *Orchestrator) markLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Orchestrator.MarkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.markTick(ctx)
		}
	}
}

// markTick refreshes every position's price, evaluates exits and executes
// them. Per-position failures are logged and the tick moves on.
func (o *Orchestrator) markTick(ctx context.Context) {
	start := time.Now()

	for _, token := range o.book.Tokens() {
		price, ok := o.gw.Price(ctx, token)
		if !ok {
			// No price this tick; the position keeps its last mark.
			continue
		}
		o.book.UpdateMark(token, price)

		pos, ok := o.book.Get(token)
		if !ok {
			continue
		}
		policy := o.policies[pos.Strategy]
		if policy == nil {
			log.Error().Str("token", token).Str("strategy", string(pos.Strategy)).Msg("no exit policy, position held")
			continue
		}

		decision := policy.Evaluate(&pos, time.Now())
		if !decision.ShouldSell {
			continue
		}
		o.executeExit(ctx, token, pos.Strategy, decision, price)
	}

	stats := o.book.Stats()
	o.metrics.SetOpenPositions(stats.Open)
	o.metrics.SetExposure(stats.ExposureSOL.InexactFloat64())
	o.metrics.SetRealizedPL(stats.RealizedTotal.InexactFloat64())
	for service, state := range o.gw.BreakerStates() {
		o.metrics.SetBreaker(service, state == gateway.BreakerOpen)
	}
	o.metrics.MarkCycle(time.Since(start).Seconds())
}

// executeExit sends the sell and, only on confirmation, applies it to the
// book and the stores. Unknown outcomes change nothing: the policy's
// cumulative caps make the retried sell idempotent next tick.
func (o *Orchestrator) executeExit(ctx context.Context, token string, strat strategy.Strategy, decision position.ExitDecision, price decimal.Decimal) {
	o.exitMu.Lock()
	defer o.exitMu.Unlock()

	// The decision was made before the lock was held; a concurrent exit may
	// have closed the position while this one waited.
	if !o.book.Has(token) {
		return
	}

	switch result := o.adapter.Sell(ctx, token, decision.SellPct); result {
	case executor.Confirmed:
	case executor.Rejected:
		log.Warn().Str("token", token).Str("reason", decision.Reason).Msg("sell rejected by agent")
		return
	default:
		log.Warn().Str("token", token).Str("reason", decision.Reason).Msg("sell outcome unknown, position unchanged")
		return
	}

	sold, pl, ok := o.book.ApplySell(token, decision.SellPct, price)
	if !ok {
		return
	}
	o.metrics.Exit(decision.Reason)
	o.metrics.Trade(string(strat), "sell")
	o.recordFill(ctx, store.Trade{
		ID:          uuid.NewString(),
		Token:       token,
		Strategy:    string(strat),
		Side:        "sell",
		Price:       price,
		TokenAmount: sold,
		SOLAmount:   sold.Mul(price),
		Percent:     decision.SellPct,
		Reason:      decision.Reason,
		RealizedPL:  pl,
		ExecutedAt:  time.Now(),
	})
	o.journal.Record(telemetry.EventSell, token, string(strat),
		"sold %.0f%% (%s): P/L %s SOL", decision.SellPct, decision.Reason, pl.String())

	pos, found := o.book.Get(token)
	if !found {
		return
	}
	if pos.Closed() {
		// Delete from the store before dropping from the book so a crash
		// between the two cannot resurrect a closed position on recovery.
		if err := o.positions.DeletePosition(ctx, token); err != nil {
			log.Error().Err(err).Str("token", token).Msg("position delete failed")
		}
		o.book.Remove(token)
		log.Info().
			Str("token", token).
			Str("reason", decision.Reason).
			Str("realized_pl", pos.RealizedPL.String()).
			Msg("position closed")
		return
	}
	if err := o.positions.SavePosition(ctx, pos); err != nil {
		log.Error().Err(err).Str("token", token).Msg("position persist failed")
	}
}

// recordFill writes the fill to the authoritative trade store and, when the
// ledger is enabled, buffers the analytic copy. A duplicate trade ID means a
// retry already landed; that is success.
func (o *Orchestrator) recordFill(ctx context.Context, trade store.Trade) {
	if err := o.trades.RecordTrade(ctx, trade); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		log.Error().Err(err).Str("trade_id", trade.ID).Msg("trade record failed")
	}
	if o.ledger != nil {
		if err := o.ledger.Append(trade); err != nil {
			log.Warn().Err(err).Str("trade_id", trade.ID).Msg("ledger append failed")
		}
	}
}

// --- risk loop -------------------------------------------------------------

func (o *Orchestrator) riskLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Risk.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.governor.Refresh(ctx) {
				o.journal.Record(telemetry.EventRisk, "", "", "daily loss limit breached, flattening all positions")
				o.flattenAll(ctx)
			}
		}
	}
}

// flattenAll force-closes every open position. The sell still goes through
// executeExit so confirmation, accounting and persistence stay in one path.
func (o *Orchestrator) flattenAll(ctx context.Context) {
	for _, token := range o.book.Tokens() {
		pos, ok := o.book.Get(token)
		if !ok {
			continue
		}
		price := pos.LastPrice
		if live, ok := o.gw.Price(ctx, token); ok {
			price = live
		}
		o.executeExit(ctx, token, pos.Strategy, position.ExitDecision{
			ShouldSell: true,
			SellPct:    100,
			Reason:     "EMERGENCY_FLATTEN",
			FullClose:  true,
		}, price)
	}
}

// --- watchlist loop --------------------------------------------------------

func (o *Orchestrator) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Orchestrator.WatchlistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepWatchlist(ctx)
		}
	}
}

// sweepWatchlist re-checks parked tokens and pushes the promoted ones back
// through the full admission pipeline.
func (o *Orchestrator) sweepWatchlist(ctx context.Context) {
	promoted := o.watchlist.Sweep(time.Now(), func(token string) (float64, bool) {
		stats, ok := o.gw.Stats(ctx, token)
		if !ok {
			return 0, false
		}
		return stats.MarketCapUSD, true
	})
	for _, entry := range promoted {
		o.journal.Record(telemetry.EventCandidate, entry.Token, string(strategy.UltraEarly),
			"watchlist promotion: market cap cleared %.1fx", o.cfg.Orchestrator.PromoteMultiple)
		o.processCandidate(ctx, feeds.Candidate{
			Token:  entry.Token,
			Source: strategy.UltraEarly,
			SeenAt: time.Now(),
		})
	}
}

// --- telemetry -------------------------------------------------------------

// Stats is the orchestrator's full state snapshot for the ops endpoint and
// the dashboard broadcast.
type Stats struct {
	Instance  string                          `json:"instance"`
	UptimeSec float64                         `json:"uptime_sec"`
	Book      position.BookStats              `json:"book"`
	Positions []position.Position             `json:"positions"`
	Governor  risk.Snapshot                   `json:"governor"`
	Gateway   gateway.GatewayStats            `json:"gateway"`
	Breakers  map[string]gateway.BreakerState `json:"breakers"`
	Watching  int                             `json:"watching"`
	Activity  []telemetry.Entry               `json:"activity"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Instance:  o.cfg.General.InstanceID,
		UptimeSec: time.Since(o.started).Seconds(),
		Book:      o.book.Stats(),
		Positions: o.book.Snapshot(),
		Governor:  o.governor.Stats(),
		Gateway:   o.gw.Counters(),
		Breakers:  o.gw.BreakerStates(),
		Watching:  o.watchlist.Len(),
		Activity:  o.journal.Recent(50),
	}
}
