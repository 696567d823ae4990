package evaluator

import (
	"context"
	"strings"
	"sync"

	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/session"
)

// DelayedJob is an action sequence handed to delayExec.
type DelayedJob struct {
	// Condition is the delay condition text, e.g. "<PLUSET>1m</PLUSET>".
	Condition string
	Body      string
	Recovery  string
	SessionID string
}

// Scheduler accepts delayed executions. Running them later is up to the
// implementation.
type Scheduler interface {
	Schedule(ctx context.Context, job DelayedJob) error
}

// Queue is an in-memory Scheduler.
type Queue struct {
	mu   sync.Mutex
	jobs []DelayedJob
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Schedule appends job.
func (q *Queue) Schedule(_ context.Context, job DelayedJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

// Drain removes and returns the queued jobs.
func (q *Queue) Drain() []DelayedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.jobs
	q.jobs = nil
	return jobs
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Remote runs an action sequence on another server.
type Remote interface {
	Exec(ctx context.Context, host, hint, body, recovery string, rei *session.RuleExecInfo) error
}

// QueryColumn is a selected or filtered column, with an optional
// aggregate or ordering function.
type QueryColumn struct {
	Func string
	Name string
}

// QueryOp is one comparison of a condition.
type QueryOp struct {
	Op     string
	Values []string
}

// QueryCond restricts a column by comparisons joined by Junction, which is
// "&&", "||" or empty for a single comparison.
type QueryCond struct {
	Column   QueryColumn
	Junction string
	Ops      []QueryOp
}

// Query is an evaluated select statement.
type Query struct {
	Columns []QueryColumn
	Conds   []QueryCond
}

func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString("select ")
	for i, c := range q.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	}
	for i, c := range q.Conds {
		if i == 0 {
			sb.WriteString(" where ")
		} else {
			sb.WriteString(" and ")
		}
		sb.WriteString(c.Column.String())
		for j, op := range c.Ops {
			if j > 0 {
				sb.WriteString(" " + c.Junction)
			}
			sb.WriteString(" " + op.Op)
			for _, v := range op.Values {
				sb.WriteString(" '" + v + "'")
			}
		}
	}
	return sb.String()
}

func (c QueryColumn) String() string {
	if c.Func == "" {
		return c.Name
	}
	return c.Func + "(" + c.Name + ")"
}

// QueryResult holds the rows of a query, one key/value pair per row keyed
// by column name.
type QueryResult struct {
	Columns []string
	Rows    []*msi.KeyValPair
}

// Querier answers catalog queries.
type Querier interface {
	Query(ctx context.Context, q *Query) (*QueryResult, error)
	// Collection lists the data object paths of a collection.
	Collection(ctx context.Context, coll string) ([]string, error)
}
