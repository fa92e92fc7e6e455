package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
)

// Config holds Mangle adapter configuration.
type Config struct {
	// FactLimit caps both the extensional facts held and the facts one
	// evaluation may create. Zero disables the cap.
	FactLimit int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{FactLimit: 1000000}
}

// Mangle implements Facade over Google Mangle. Ground facts live in an
// extensional store; rules are kept aside and evaluated on demand.
//
// A Mangle value is the engine handle: create one with NewMangle and pass it
// explicitly to whatever needs the engine.
type Mangle struct {
	config Config

	// session serializes whole command sequences (Exclusive).
	session sync.Mutex

	// mu guards the state below for individual commands and Stats.
	mu        sync.Mutex
	stk       stack
	edb       factstore.FactStoreWithRemove
	factCount int
	rules     []storedRule

	snapshot *snapshot // derived store, nil when stale
	lastEval EvalStats
}

type storedRule struct {
	key    string
	clause ast.Clause
}

// snapshot is the result of evaluating rules over the extensional facts.
type snapshot struct {
	store factstore.FactStore
}

// NewMangle creates an empty engine.
func NewMangle(cfg Config) *Mangle {
	return &Mangle{
		config: cfg,
		edb:    factstore.NewSimpleInMemoryStore(),
	}
}

var _ Facade = (*Mangle)(nil)

// Exclusive implements Facade.
func (m *Mangle) Exclusive(fn func() error) error {
	m.session.Lock()
	defer m.session.Unlock()
	return fn()
}

// Reset implements Facade.
func (m *Mangle) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.stk.len(); n > 0 {
		logging.EngineDebug("reset: discarding %d stack entries", n)
	}
	m.stk.reset()
}

// BeginLiteral implements Facade.
func (m *Mangle) BeginLiteral() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stk.beginLiteral()
}

// PushPredicate implements Facade.
func (m *Mangle) PushPredicate(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stk.pushPredicate(symbol)
}

// PushTerm implements Facade.
func (m *Mangle) PushTerm(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stk.pushTerm(text)
}

// BindConstant implements Facade.
func (m *Mangle) BindConstant() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stk.bind(ir.Constant)
}

// BindVariable implements Facade.
func (m *Mangle) BindVariable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stk.bind(ir.Variable)
}

// FinalizeLiteral implements Facade.
func (m *Mangle) FinalizeLiteral() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stk.finalizeLiteral()
}

// FinalizeClause implements Facade.
func (m *Mangle) FinalizeClause(bodyCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stk.finalizeClause(bodyCount)
}

// Assert implements Facade. Facts must be ground. Rules must be range
// restricted and must analyse together with the rules already held.
func (m *Mangle) Assert() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clause, err := m.stk.takeClause()
	if err != nil {
		return err
	}
	if len(clause.Premises) == 0 {
		return m.assertFactLocked(clause.Head)
	}
	return m.assertRuleLocked(clause)
}

func (m *Mangle) assertFactLocked(atom ast.Atom) error {
	if v := firstVariable(atom); v != "" {
		return fmt.Errorf("%w: fact %s has variable %s", ir.ErrRejected, atomString(atom), v)
	}
	if m.config.FactLimit > 0 && m.factCount >= m.config.FactLimit {
		return &ir.AllocationError{Limit: m.config.FactLimit, Detail: "extensional store is full"}
	}
	if m.edb.Add(atom) {
		m.factCount++
		m.snapshot = nil
		logging.EngineDebug("assert fact %s (total=%d)", atomString(atom), m.factCount)
	}
	return nil
}

func (m *Mangle) assertRuleLocked(clause ast.Clause) error {
	key := clauseKey(clause)
	for _, r := range m.rules {
		if r.key == key {
			return nil
		}
	}
	if err := checkRangeRestricted(clause); err != nil {
		return err
	}

	candidate := append(append([]ast.Clause(nil), m.ruleClauses()...), clause)
	if _, err := analyze(candidate, m.edbPredicates()); err != nil {
		return fmt.Errorf("%w: %v", ir.ErrRejected, err)
	}

	m.rules = append(m.rules, storedRule{key: key, clause: clause})
	m.snapshot = nil
	logging.EngineDebug("assert rule %s (rules=%d)", key, len(m.rules))
	return nil
}

// Retract implements Facade. Retracting a clause that is not held fails
// with ir.ErrNotFound.
func (m *Mangle) Retract() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clause, err := m.stk.takeClause()
	if err != nil {
		return err
	}

	if len(clause.Premises) == 0 {
		if firstVariable(clause.Head) == "" && m.edb.Remove(clause.Head) {
			m.factCount--
			m.snapshot = nil
			logging.EngineDebug("retract fact %s", atomString(clause.Head))
			return nil
		}
		return fmt.Errorf("%w: fact %s", ir.ErrNotFound, atomString(clause.Head))
	}

	key := clauseKey(clause)
	for i, r := range m.rules {
		if r.key == key {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			m.snapshot = nil
			logging.EngineDebug("retract rule %s", key)
			return nil
		}
	}
	return fmt.Errorf("%w: rule %s", ir.ErrNotFound, key)
}

// Ask implements Facade. It evaluates the held rules over the extensional
// facts (reusing the last evaluation until something changes) and returns
// every fact that matches the finalized literal.
func (m *Mangle) Ask() (Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query, err := m.stk.takeAtom()
	if err != nil {
		return nil, err
	}

	snap, err := m.snapshotLocked()
	if err != nil {
		return nil, err
	}

	var rows [][]string
	err = snap.store.GetFacts(ast.NewQuery(query.Predicate), func(fact ast.Atom) error {
		if row, ok := match(query, fact); ok {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read facts for %s: %w", displayName(query.Predicate), err)
	}

	logging.EngineDebug("ask %s: %d rows", atomString(query), len(rows))
	return NewSliceRows(rows), nil
}

// snapshotLocked returns the evaluated store, rebuilding it when stale.
func (m *Mangle) snapshotLocked() (*snapshot, error) {
	if m.snapshot != nil {
		return m.snapshot, nil
	}

	timer := logging.StartTimer(logging.CategoryEngine, "evaluate")
	defer timer.Stop()

	// Facts enter the program as body-less clauses so every extensional
	// predicate is defined for analysis.
	var facts []ast.Clause
	for _, sym := range m.edb.ListPredicates() {
		_ = m.edb.GetFacts(ast.NewQuery(sym), func(a ast.Atom) error {
			facts = append(facts, ast.Clause{Head: a})
			return nil
		})
	}
	program := append(facts, m.ruleClauses()...)

	info, err := analyze(program, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: analysis failed: %v", ir.ErrRejected, err)
	}

	limit := m.config.FactLimit
	if limit <= 0 {
		limit = math.MaxInt32
	}

	store := factstore.NewSimpleInMemoryStore()
	start := time.Now()
	stats, err := mengine.EvalProgramWithStats(info, store, mengine.WithCreatedFactLimit(limit))
	if err != nil {
		logging.Get(logging.CategoryEngine).Error("evaluate: fixpoint evaluation failed: %v", err)
		if strings.Contains(err.Error(), "limit") || strings.Contains(err.Error(), "exceeded") {
			return nil, &ir.AllocationError{Limit: limit, Detail: err.Error()}
		}
		return nil, fmt.Errorf("failed to evaluate program: %w", err)
	}

	m.lastEval = EvalStats{Strata: len(stats.Strata), Duration: time.Since(start), At: time.Now()}
	logging.EngineDebug("evaluate: fixpoint reached - strata=%d, facts=%d, rules=%d, wallTime=%v",
		m.lastEval.Strata, m.factCount, len(m.rules), m.lastEval.Duration)

	m.snapshot = &snapshot{store: store}
	return m.snapshot, nil
}

func (m *Mangle) ruleClauses() []ast.Clause {
	out := make([]ast.Clause, len(m.rules))
	for i, r := range m.rules {
		out[i] = r.clause
	}
	return out
}

// edbPredicates returns placeholder facts, one per extensional predicate,
// so a rule can be analysed without copying the whole store.
func (m *Mangle) edbPredicates() []ast.Clause {
	var out []ast.Clause
	for _, sym := range m.edb.ListPredicates() {
		_ = m.edb.GetFacts(ast.NewQuery(sym), func(a ast.Atom) error {
			out = append(out, ast.Clause{Head: a})
			return errStop
		})
	}
	return out
}

var errStop = fmt.Errorf("stop")

// analyze runs Mangle's analysis over rules plus defining facts. Rules whose
// body mentions a predicate nothing defines can never fire; they are left
// out so analysis does not reject the program for an empty relation.
func analyze(clauses []ast.Clause, defining []ast.Clause) (*analysis.ProgramInfo, error) {
	all := append(append([]ast.Clause(nil), defining...), clauses...)
	unit := parse.SourceUnit{Clauses: pruneUndefined(all)}
	return analysis.AnalyzeOneUnit(unit, nil)
}

func pruneUndefined(clauses []ast.Clause) []ast.Clause {
	for {
		defined := make(map[ast.PredicateSym]bool)
		for _, c := range clauses {
			defined[c.Head.Predicate] = true
		}
		kept := clauses[:0:0]
		for _, c := range clauses {
			if premisesDefined(c, defined) {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(clauses) {
			return kept
		}
		clauses = kept
	}
}

func premisesDefined(c ast.Clause, defined map[ast.PredicateSym]bool) bool {
	for _, p := range c.Premises {
		if a, ok := p.(ast.Atom); ok && !defined[a.Predicate] {
			return false
		}
	}
	return true
}

// match checks a stored fact against the query pattern: constants must be
// equal and a repeated variable must bind the same value each time.
func match(query, fact ast.Atom) ([]string, bool) {
	if len(query.Args) != len(fact.Args) {
		return nil, false
	}
	row := make([]string, len(fact.Args))
	bound := make(map[string]string)
	for i, arg := range fact.Args {
		value := termText(arg)
		switch q := query.Args[i].(type) {
		case ast.Constant:
			if termText(q) != value {
				return nil, false
			}
		case ast.Variable:
			if prev, ok := bound[q.Symbol]; ok && prev != value {
				return nil, false
			}
			bound[q.Symbol] = value
		}
		row[i] = value
	}
	return row, true
}

// checkRangeRestricted rejects rules with a head variable missing from the body.
func checkRangeRestricted(c ast.Clause) error {
	inBody := make(map[string]bool)
	for _, p := range c.Premises {
		if a, ok := p.(ast.Atom); ok {
			for _, arg := range a.Args {
				if v, ok := arg.(ast.Variable); ok {
					inBody[v.Symbol] = true
				}
			}
		}
	}
	for _, arg := range c.Head.Args {
		if v, ok := arg.(ast.Variable); ok && !inBody[v.Symbol] {
			return fmt.Errorf("%w: head variable %s does not occur in the body of %s", ir.ErrRejected, v.Symbol, clauseKey(c))
		}
	}
	return nil
}

func firstVariable(a ast.Atom) string {
	for _, arg := range a.Args {
		if v, ok := arg.(ast.Variable); ok {
			return v.Symbol
		}
	}
	return ""
}

func termText(t ast.BaseTerm) string {
	switch v := t.(type) {
	case ast.Constant:
		if v.Type == ast.StringType || v.Type == ast.NameType {
			return v.Symbol
		}
		return v.String()
	case ast.Variable:
		return v.Symbol
	default:
		return fmt.Sprintf("%v", t)
	}
}

// atomString renders an atom in command syntax.
func atomString(a ast.Atom) string {
	name := displayName(a.Predicate)
	if len(a.Args) == 0 {
		return name
	}
	args := make([]string, len(a.Args))
	for i, arg := range a.Args {
		args[i] = termText(arg)
	}
	return name + "(" + strings.Join(args, ",") + ")"
}

// clauseKey identifies a rule structurally; it renders in command syntax.
func clauseKey(c ast.Clause) string {
	if len(c.Premises) == 0 {
		return atomString(c.Head) + "."
	}
	body := make([]string, 0, len(c.Premises))
	for _, p := range c.Premises {
		if a, ok := p.(ast.Atom); ok {
			body = append(body, atomString(a))
		}
	}
	return atomString(c.Head) + ":-" + strings.Join(body, ".") + "."
}

// EvalStats describes the last evaluation.
type EvalStats struct {
	Strata   int
	Duration time.Duration
	At       time.Time
}

// Stats contains engine statistics.
type Stats struct {
	TotalFacts      int            `json:"total_facts"`
	TotalRules      int            `json:"total_rules"`
	PredicateCounts map[string]int `json:"predicate_counts"`
	Rules           []string       `json:"rules"`
	LastEval        EvalStats      `json:"last_eval"`
}

// Predicates returns the predicate keys of PredicateCounts, sorted.
func (s Stats) Predicates() []string {
	keys := make([]string, 0, len(s.PredicateCounts))
	for k := range s.PredicateCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns counts of extensional facts per predicate and the held rules.
func (m *Mangle) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, sym := range m.edb.ListPredicates() {
		n := 0
		_ = m.edb.GetFacts(ast.NewQuery(sym), func(ast.Atom) error {
			n++
			return nil
		})
		if n > 0 {
			counts[fmt.Sprintf("%s/%d", displayName(sym), sym.Arity)] = n
		}
	}
	rules := make([]string, len(m.rules))
	for i, r := range m.rules {
		rules[i] = r.key
	}
	return Stats{
		TotalFacts:      m.factCount,
		TotalRules:      len(m.rules),
		PredicateCounts: counts,
		Rules:           rules,
		LastEval:        m.lastEval,
	}
}
