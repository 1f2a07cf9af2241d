package checkldapconsistency

import (
	"context"
	"sync"
)

// Engine runs the check catalog against all servers of a replica set.
type Engine struct {
	set     *ServerSet
	querier Querier
	suffix  string
	checks  []*CheckDefinition
	sem     chan struct{} // bounds concurrent directory queries, nil means unbounded
}

// NewEngine creates an engine for the given servers and checks. maxQueries
// caps the number of directory queries in flight, zero disables the cap.
func NewEngine(set *ServerSet, querier Querier, suffix string, checks []*CheckDefinition, maxQueries int) *Engine {
	eng := &Engine{
		set:     set,
		querier: querier,
		suffix:  suffix,
		checks:  checks,
	}
	if maxQueries > 0 {
		eng.sem = make(chan struct{}, maxQueries)
	}

	return eng
}

func (eng *Engine) acquire() {
	if eng.sem != nil {
		eng.sem <- struct{}{}
	}
}

func (eng *Engine) release() {
	if eng.sem != nil {
		<-eng.sem
	}
}

// ValidateBind verifies the credentials before the checks fan out. One
// successful bind is enough, a directory-wide credential problem should
// produce a single clear error instead of a wall of ERROR cells.
func (eng *Engine) ValidateBind(ctx context.Context) error {
	var lastErr error
	for _, server := range eng.set.Servers {
		if err := eng.querier.Bind(ctx, server); err != nil {
			log.Debugf("bind to %s failed: %s", server.FQDN, err.Error())
			lastErr = err

			continue
		}

		return nil
	}

	return authErrorf("bind failed on all servers: %s", lastErr.Error())
}

// Run executes all checks concurrently and returns their results in
// catalog order.
func (eng *Engine) Run(ctx context.Context) []*CheckResult {
	type indexedResult struct {
		index  int
		result *CheckResult
	}

	resultChan := make(chan *indexedResult, len(eng.checks))
	wg := &sync.WaitGroup{}
	for num, def := range eng.checks {
		wg.Add(1)
		go func(num int, def *CheckDefinition) {
			defer wg.Done()
			resultChan <- &indexedResult{index: num, result: eng.runCheck(ctx, def)}
		}(num, def)
	}
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]*CheckResult, len(eng.checks))
	for res := range resultChan {
		results[res.index] = res.result
	}

	return results
}

// runCheck gathers one cell per server and evaluates the check.
func (eng *Engine) runCheck(ctx context.Context, def *CheckDefinition) *CheckResult {
	type serverCell struct {
		fqdn       string
		value      Value
		agreements []*Agreement
	}

	cellChan := make(chan *serverCell, len(eng.set.Servers))
	wg := &sync.WaitGroup{}
	for _, server := range eng.set.Servers {
		wg.Add(1)
		go func(server *Server) {
			defer wg.Done()
			eng.acquire()
			defer eng.release()
			if def.Replication() {
				cellChan <- &serverCell{fqdn: server.FQDN, agreements: eng.queryAgreements(ctx, server)}

				return
			}
			cellChan <- &serverCell{fqdn: server.FQDN, value: eng.queryValue(ctx, def, server)}
		}(server)
	}
	go func() {
		wg.Wait()
		close(cellChan)
	}()

	res := NewCheckResult(def)
	for cell := range cellChan {
		if def.Replication() {
			res.Agreements[cell.fqdn] = cell.agreements
		} else {
			res.Values[cell.fqdn] = cell.value
		}
	}

	evaluateResult(eng.set, res)

	return res
}

func (eng *Engine) queryValue(ctx context.Context, def *CheckDefinition, server *Server) Value {
	values, err := eng.querier.Search(ctx, server, def.BaseDN(eng.suffix), def.scope, def.filter, def.attribute)
	if err != nil {
		log.Debugf("check %s on %s: %s", def.ID, server.FQDN, err.Error())
	}

	return def.reduce(values, err)
}

func (eng *Engine) queryAgreements(ctx context.Context, server *Server) []*Agreement {
	agreements, err := eng.querier.Agreements(ctx, server)
	if err != nil {
		log.Debugf("replication agreements on %s: %s", server.FQDN, err.Error())

		// surface the failure as a single ERROR cell for this server
		return []*Agreement{{Status: ValueError}}
	}

	return agreements
}
