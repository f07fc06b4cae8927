package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cuppalabs/cuppa/internal/agent"
	"github.com/cuppalabs/cuppa/internal/catalog"
	"github.com/cuppalabs/cuppa/internal/embedding"
	"github.com/cuppalabs/cuppa/internal/intent"
	"github.com/cuppalabs/cuppa/internal/metrics"
	"github.com/cuppalabs/cuppa/internal/provider"
	"github.com/cuppalabs/cuppa/internal/respcache"
	"github.com/cuppalabs/cuppa/internal/search"
	"github.com/cuppalabs/cuppa/internal/session"
)

var errEmptyAnswer = errors.New("orchestrator: agent returned an empty answer")

// pipeline is the per-request state threaded through the stages.
type pipeline struct {
	req     Request
	queryID string
	persona string
	start   time.Time

	sess session.Session
	key  string

	qvec     []float32
	embedHit bool
	embedDur time.Duration

	// result is the reported classification; effective is the intent
	// the pipeline acts on. They differ when the winner missed its
	// per-exemplar bar: metadata keeps the reported intent while the
	// pipeline proceeds as general conversation.
	result    intent.Result
	effective intent.Intent

	preSearched bool
	preMatches  []search.Match
	searchDur   time.Duration

	agentDur time.Duration

	answer      string
	matches     []search.Match
	locations   []catalog.StoreLocation
	resultCount int
	topSim      float64

	cachedIntent string

	recovered bool
	method    string
	errFlag   bool
}

func (p *pipeline) emit(ev StreamEvent) {
	if p.req.Sink != nil {
		p.req.Sink.Send(ev)
	}
}

func (p *pipeline) emitStage(stage string) { p.emit(StreamEvent{Type: "stage", Stage: stage}) }
func (p *pipeline) emitText(text string)   { p.emit(StreamEvent{Type: "text", Text: text}) }
func (p *pipeline) emitDone()              { p.emit(StreamEvent{Type: "done"}) }

// intentLabel is the intent string for metadata, turn annotations, and
// metric labels.
func (p *pipeline) intentLabel() string {
	if p.result.Intent != "" {
		return string(p.result.Intent)
	}
	if p.cachedIntent != "" {
		return p.cachedIntent
	}
	return "unknown"
}

// Process answers one chat query. The only errors it returns are
// ErrQueryEmpty and ErrQueryTooLong; every internal failure degrades to
// an answer, worst case the canned apology with Meta.Error set.
func (o *Orchestrator) Process(ctx context.Context, req Request) (resp Response, err error) {
	if verr := o.validateInput(req); verr != nil {
		return Response{}, verr
	}
	p := o.newPipeline(req)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrator: panic recovered", "query_id", p.queryID, "panic", r)
			p.errFlag = true
			p.answer = Apology
			resp = o.buildResponse(p, false)
			err = nil
		}
	}()

	ctx, span := o.tracer.Start(ctx, "orchestrator.process")
	defer span.End()

	o.logger.Info("orchestrator: processing query",
		"query_id", p.queryID, "user_id", req.UserID, "query", preview(req.Query))

	o.resolveSession(ctx, p)
	p.emitStage(StageSessionResolved)

	if cached, ok := o.checkCache(ctx, p); ok {
		return cached, nil
	}
	p.emitStage(StageCacheChecked)

	if eerr := o.embed(ctx, p); eerr != nil {
		return o.failRequest(ctx, p, eerr), nil
	}
	p.emitStage(StageEmbedding)

	o.classify(ctx, p)
	p.emitStage(StageClassified)

	o.preSearch(ctx, p)

	col, aerr := o.invokeAgent(ctx, p)
	p.emitStage(StageAgentInvoked)
	if aerr != nil {
		return o.failRequest(ctx, p, aerr), nil
	}

	if !o.workflowSatisfied(p, col) {
		if p.effective.RequiresGrounding() {
			metrics.WorkflowViolations.Inc()
			o.logger.Warn("orchestrator: workflow violation",
				"query_id", p.queryID, "intent", string(p.effective))
			col = o.recoverWorkflow(ctx, p, col)
		}
		if col.answer == "" {
			return o.failRequest(ctx, p, errEmptyAnswer), nil
		}
	}
	p.emitStage(StageValidated)

	o.adoptOutcomes(p, col)
	p.answer = col.answer
	p.resultCount = len(p.matches)
	if len(p.matches) > 0 {
		p.topSim = p.matches[0].Similarity
	}

	o.persistResponse(ctx, p)
	p.emitStage(StagePersisted)

	o.recordTurns(ctx, p, false)
	o.recordMetrics(ctx, p, false)
	p.emitStage(StageMetrics)

	resp = o.buildResponse(p, false)
	p.emitDone()
	return resp, nil
}

func (o *Orchestrator) validateInput(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrQueryEmpty
	}
	if utf8.RuneCountInString(req.Query) > o.cfg.MaxQueryLen {
		return ErrQueryTooLong
	}
	return nil
}

func (o *Orchestrator) newPipeline(req Request) *pipeline {
	p := &pipeline{req: req, start: o.now(), persona: req.Persona}
	if p.persona == "" {
		p.persona = o.cfg.DefaultPersona
	}
	id, err := generateID()
	if err != nil {
		// crypto/rand failing is a broken host; keep the request alive
		// with a clock-derived ID.
		id = fmt.Sprintf("q-%d", o.now().UnixNano())
	}
	p.queryID = id
	return p
}

// resolveSession attaches a live session to the pipeline. It never
// fails the request: a degraded store yields a fresh session, a broken
// ID source reuses the query ID.
func (o *Orchestrator) resolveSession(ctx context.Context, p *pipeline) {
	s, created, err := o.deps.Sessions.Resolve(ctx, p.req.SessionID, p.req.UserID)
	if err != nil {
		o.logger.Error("orchestrator: session resolution failed",
			"query_id", p.queryID, "error", err)
		s = session.Session{ID: p.queryID, UserID: p.req.UserID}
		created = true
	}
	p.sess = s
	if !created {
		if terr := o.deps.Sessions.Touch(ctx, s); terr != nil {
			o.logger.Warn("orchestrator: session touch failed",
				"session_id", s.ID, "error", terr)
		}
	}
	o.logger.Debug("orchestrator: session resolved", "session_id", s.ID, "created", created)
}

// checkCache short-circuits the pipeline on a response cache hit. Hits
// still record turns and a metric row so conversation history and
// telemetry stay complete.
func (o *Orchestrator) checkCache(ctx context.Context, p *pipeline) (Response, bool) {
	p.key = respcache.Key(p.req.Query, p.persona)
	cached, ok, err := o.deps.Responses.Get(ctx, p.key)
	if err != nil {
		o.logger.Warn("orchestrator: response cache read failed",
			"query_id", p.queryID, "error", err)
		ok = false
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues(metrics.TierResponse).Inc()
		return Response{}, false
	}
	metrics.CacheHits.WithLabelValues(metrics.TierResponse).Inc()
	o.logger.Info("orchestrator: response cache hit", "query_id", p.queryID, "intent", cached.Intent)
	p.emitStage(StageCacheChecked)

	p.answer = cached.Answer
	p.cachedIntent = cached.Intent
	p.resultCount = len(cached.ProductIDs)

	o.recordTurns(ctx, p, true)
	o.recordMetrics(ctx, p, true)

	p.emitText(cached.Answer)
	p.emitDone()
	return o.buildResponse(p, true), true
}

// embed resolves the query vector through the embedding cache, retrying
// transient provider failures with doubling backoff.
func (o *Orchestrator) embed(ctx context.Context, p *pipeline) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.embed")
	defer span.End()

	start := o.now()
	delay := o.cfg.AgentRetryBase
	var lastErr error
	for attempt := 1; attempt <= o.cfg.AgentAttempts; attempt++ {
		vec, hit, err := o.deps.Vectors.GetOrCreate(ctx, p.req.Query)
		if err == nil {
			p.qvec, p.embedHit = vec, hit
			lastErr = nil
			break
		}
		lastErr = err
		if !errors.Is(err, embedding.ErrProviderUnavailable) || attempt == o.cfg.AgentAttempts {
			break
		}
		o.logger.Warn("orchestrator: embedding attempt failed, retrying",
			"query_id", p.queryID, "attempt", attempt, "delay", delay, "error", err)
		if serr := o.sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
	}
	if lastErr != nil {
		return fmt.Errorf("orchestrator: embed query: %w", lastErr)
	}

	p.embedDur = o.now().Sub(start)
	if p.embedHit {
		metrics.CacheHits.WithLabelValues(metrics.TierEmbedding).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(metrics.TierEmbedding).Inc()
	}
	metrics.StageDuration.WithLabelValues("embedding").Observe(p.embedDur.Seconds())
	return nil
}

// classify assigns the intent. Classifier failures degrade to general
// conversation; a below-bar winner keeps its reported intent in
// metadata but the pipeline proceeds ungrounded.
func (o *Orchestrator) classify(ctx context.Context, p *pipeline) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.classify")
	defer span.End()

	res, err := o.deps.Classifier.Classify(ctx, p.qvec)
	if err != nil {
		o.logger.Warn("orchestrator: classification failed, treating as conversation",
			"query_id", p.queryID, "error", err)
		res = intent.Result{Intent: intent.GeneralConversation, UsedFallback: true}
	}
	p.result = res
	p.effective = res.Intent
	if res.UsedFallback {
		p.effective = intent.GeneralConversation
		metrics.FallbackCount.WithLabelValues(metrics.FallbackClassify).Inc()
	}
	o.logger.Info("orchestrator: intent classified",
		"query_id", p.queryID, "intent", string(res.Intent),
		"confidence", res.Confidence, "fallback", res.UsedFallback)
}

// preSearch retrieves candidate products for grounded product queries.
// The candidates seed the agent prompt and serve as the direct fallback
// if the agent skips the search tool. Failure here is not fatal; the
// agent can still ground itself through the tool.
func (o *Orchestrator) preSearch(ctx context.Context, p *pipeline) {
	if p.effective != intent.ProductRAG {
		return
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.search")
	defer span.End()

	matches, timing, err := o.deps.Engine.Search(ctx, p.qvec, o.cfg.SearchLimit, o.cfg.SearchThreshold)
	if err != nil {
		o.logger.Warn("orchestrator: candidate search failed",
			"query_id", p.queryID, "error", err)
		return
	}
	p.preSearched = true
	p.preMatches = matches
	p.searchDur = timing.Search
	metrics.StageDuration.WithLabelValues("search").Observe(timing.Search.Seconds())
	p.emitStage(StageProductSearch)
}

// invokeAgent runs the agent loop, retrying transient provider failures
// with doubling backoff and recording provider health transitions.
func (o *Orchestrator) invokeAgent(ctx context.Context, p *pipeline) (collected, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.agent")
	defer span.End()

	start := o.now()
	defer func() {
		p.agentDur = o.now().Sub(start)
		metrics.StageDuration.WithLabelValues("agent").Observe(p.agentDur.Seconds())
	}()

	req := agent.Request{
		SystemPrompt: o.systemPrompt(p),
		Messages:     o.promptMessages(ctx, p, p.req.Query),
		Tools:        o.deps.Registry.Definitions(),
	}

	delay := o.cfg.AgentRetryBase
	var lastErr error
	for attempt := 1; attempt <= o.cfg.AgentAttempts; attempt++ {
		events, err := o.deps.Agent.Run(ctx, req)
		var col collected
		if err == nil {
			col = o.collect(p, events)
			err = col.err
		}
		if err == nil {
			if o.deps.Health != nil {
				o.deps.Health.RecordSuccess()
			}
			return col, nil
		}
		lastErr = err
		if !provider.IsRetryable(err) {
			break
		}
		if o.deps.Health != nil {
			o.deps.Health.RecordFailure()
		}
		if attempt == o.cfg.AgentAttempts {
			break
		}
		metrics.ProviderRetries.Inc()
		o.logger.Warn("orchestrator: agent attempt failed, retrying",
			"query_id", p.queryID, "attempt", attempt, "delay", delay, "error", err)
		if serr := o.sleep(ctx, delay); serr != nil {
			return collected{}, serr
		}
		delay *= 2
	}
	return collected{}, lastErr
}

// workflowSatisfied reports whether the agent's output honors the
// grounding contract for the effective intent.
func (o *Orchestrator) workflowSatisfied(p *pipeline, col collected) bool {
	if col.answer == "" {
		return false
	}
	switch p.effective {
	case intent.ProductRAG:
		_, ok := latestSearchOutcome(col.outcomes)
		return ok
	case intent.StoreLocation:
		_, ok := latestLocationsOutcome(col.outcomes)
		return ok
	default:
		return true
	}
}

// recoverWorkflow climbs the recovery ladder: one agent re-invocation
// with a reminder appended, then a direct search with a synthesized
// answer. The second rung always produces an answer.
func (o *Orchestrator) recoverWorkflow(ctx context.Context, p *pipeline, col collected) collected {
	reminded := p.req.Query + "\n\n" + reminderFor(p.effective)
	req := agent.Request{
		SystemPrompt: o.systemPrompt(p),
		Messages:     o.promptMessages(ctx, p, reminded),
		Tools:        o.deps.Registry.Definitions(),
	}
	events, err := o.deps.Agent.Run(ctx, req)
	if err == nil {
		again := o.collect(p, events)
		if again.err == nil && o.workflowSatisfied(p, again) {
			metrics.FallbackCount.WithLabelValues(metrics.FallbackAgentRetry).Inc()
			p.recovered, p.method = true, "agent_retry"
			o.logger.Info("orchestrator: reminder re-invocation recovered",
				"query_id", p.queryID)
			return again
		}
	}

	metrics.FallbackCount.WithLabelValues(metrics.FallbackDirectSearch).Inc()
	p.recovered, p.method = true, "direct_search"
	p.emitStage(StageFallback)

	switch p.effective {
	case intent.StoreLocation:
		locs, lerr := o.deps.Locations.LocationsByCity(ctx, "")
		if lerr != nil {
			o.logger.Warn("orchestrator: fallback location lookup failed",
				"query_id", p.queryID, "error", lerr)
		}
		p.locations = locs
		col.answer = synthesizeLocations(locs)
	default:
		matches := p.preMatches
		if !p.preSearched {
			m, timing, serr := o.deps.Engine.Search(ctx, p.qvec, o.cfg.SearchLimit, o.cfg.SearchThreshold)
			if serr != nil {
				o.logger.Warn("orchestrator: fallback search failed",
					"query_id", p.queryID, "error", serr)
			} else {
				matches = m
				p.searchDur = timing.Search
			}
		}
		p.matches = matches
		col.answer = synthesizeProducts(matches)
	}
	o.logger.Info("orchestrator: direct fallback answered",
		"query_id", p.queryID, "intent", string(p.effective))
	p.emitText(col.answer)
	return col
}

// adoptOutcomes folds tool results into the pipeline state. Direct
// fallback fills matches itself; agent-supplied outcomes win when both
// exist since they produced the answer text.
func (o *Orchestrator) adoptOutcomes(p *pipeline, col collected) {
	if so, ok := latestSearchOutcome(col.outcomes); ok {
		p.matches = so.Matches
		if so.SearchDuration > 0 {
			p.searchDur = so.SearchDuration
		}
	}
	if lo, ok := latestLocationsOutcome(col.outcomes); ok {
		p.locations = lo.Locations
	}
}

// persistResponse writes the answer to the response cache unless the
// persist-gate blocks it: error answers and grounded answers with zero
// matches are never cached.
func (o *Orchestrator) persistResponse(ctx context.Context, p *pipeline) {
	if p.errFlag {
		return
	}
	if p.effective.RequiresGrounding() && len(p.matches)+len(p.locations) == 0 {
		o.logger.Debug("orchestrator: grounded answer with no matches, not caching",
			"query_id", p.queryID)
		return
	}
	ids := make([]string, 0, len(p.matches))
	for _, m := range p.matches {
		ids = append(ids, m.Product.ID)
	}
	o.deps.Responses.Set(ctx, p.key, respcache.CachedResponse{
		Answer:     p.answer,
		Intent:     string(p.result.Intent),
		ProductIDs: ids,
	})
}

// recordTurns appends the user and assistant turns. Failures are logged
// and swallowed; history is best-effort.
func (o *Orchestrator) recordTurns(ctx context.Context, p *pipeline, fromCache bool) {
	userTurn := session.Turn{
		SessionID: p.sess.ID,
		Role:      session.RoleUser,
		Content:   p.req.Query,
		Metadata:  map[string]string{"query_id": p.queryID},
	}
	if err := o.deps.Sessions.Append(ctx, userTurn); err != nil {
		o.logger.Warn("orchestrator: user turn append failed",
			"session_id", p.sess.ID, "error", err)
	}

	meta := map[string]string{
		"query_id":       p.queryID,
		"intent":         p.intentLabel(),
		"product_count":  strconv.Itoa(p.resultCount),
		"location_count": strconv.Itoa(len(p.locations)),
	}
	if fromCache {
		meta["from_cache"] = "true"
	}
	if p.errFlag {
		meta["error"] = "true"
	}
	assistantTurn := session.Turn{
		SessionID: p.sess.ID,
		Role:      session.RoleAssistant,
		Content:   p.answer,
		Metadata:  meta,
	}
	if err := o.deps.Sessions.Append(ctx, assistantTurn); err != nil {
		o.logger.Warn("orchestrator: assistant turn append failed",
			"session_id", p.sess.ID, "error", err)
	}
}

// recordMetrics appends the per-query metric row and updates the
// Prometheus series.
func (o *Orchestrator) recordMetrics(ctx context.Context, p *pipeline, fromCache bool) {
	total := o.now().Sub(p.start)
	m := metrics.SearchMetric{
		QueryID:         p.queryID,
		UserID:          p.req.UserID,
		Query:           p.req.Query,
		Intent:          p.intentLabel(),
		EmbeddingMs:     p.embedDur.Milliseconds(),
		SearchMs:        p.searchDur.Milliseconds(),
		TotalMs:         total.Milliseconds(),
		SimilarityScore: p.topSim,
		ResultCount:     p.resultCount,
		FromCache:       fromCache,
	}
	if err := o.deps.Metrics.AppendSearchMetric(ctx, m); err != nil {
		o.logger.Warn("orchestrator: metric append failed",
			"query_id", p.queryID, "error", err)
	}
	metrics.RequestCount.WithLabelValues(p.intentLabel(), strconv.FormatBool(fromCache)).Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(total.Seconds())
}

// failRequest degrades the request to the canned apology. The apology
// is never cached but still lands in turns and metrics so operators can
// see the failure.
func (o *Orchestrator) failRequest(ctx context.Context, p *pipeline, cause error) Response {
	o.logger.Error("orchestrator: request degraded to apology",
		"query_id", p.queryID, "error", cause)
	p.errFlag = true
	p.answer = Apology
	o.recordTurns(ctx, p, false)
	o.recordMetrics(ctx, p, false)
	p.emitText(Apology)
	p.emitDone()
	return o.buildResponse(p, false)
}

func (o *Orchestrator) buildResponse(p *pipeline, fromCache bool) Response {
	names := make([]string, 0, len(p.matches))
	for _, m := range p.matches {
		names = append(names, m.Product.Name)
	}
	return Response{
		Answer:    p.answer,
		SessionID: p.sess.ID,
		QueryID:   p.queryID,
		Meta: Meta{
			Intent:         p.intentLabel(),
			Confidence:     p.result.Confidence,
			UsedFallback:   p.result.UsedFallback,
			FromCache:      fromCache,
			Products:       names,
			ProductCount:   p.resultCount,
			LocationCount:  len(p.locations),
			Recovered:      p.recovered,
			RecoveryMethod: p.method,
			Error:          p.errFlag,
			DurationMs:     o.now().Sub(p.start).Milliseconds(),
		},
	}
}
