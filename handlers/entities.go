package handlers

import (
	"context"
	"fmt"

	"github.com/next-trace/scg-signal-bus/contract/signal"
	"github.com/next-trace/scg-signal-bus/orm"
)

// Test-management entity types watched by EmailHandler.
const (
	EntityTestPlan     signal.EntityType = "TestPlan"
	EntityTestCase     signal.EntityType = "TestCase"
	EntityTestCasePlan signal.EntityType = "TestCasePlan"
	EntityTestRun      signal.EntityType = "TestRun"
	EntityTestCaseRun  signal.EntityType = "TestCaseRun"
)

type lister interface {
	All(ctx context.Context) ([]*orm.Model, error)
}

// affected resolves the entities an event refers to: the instance itself for
// save/delete, every entity of the query set for bulk updates.
func affected(ctx context.Context, ev signal.Event) ([]*orm.Model, error) {
	switch inst := ev.Instance.(type) {
	case *orm.Model:
		if inst == nil {
			return nil, nil
		}

		return []*orm.Model{inst}, nil
	case lister:
		models, err := inst.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve %s instances: %w", ev.Sender, err)
		}

		return models, nil
	default:
		return nil, nil
	}
}
