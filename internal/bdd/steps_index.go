package bdd

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		ctx.Step(`^the index queue drains within "([^"]*)" seconds$`, func(timeout float64) error {
			return waitForEmptyIndexQueue(s, time.Duration(timeout*float64(time.Second)))
		})
	})
}

// waitForEmptyIndexQueue polls until the background worker has consumed every
// pending job. Dead-lettered jobs do not count as pending.
func waitForEmptyIndexQueue(s *cucumber.TestScenario, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		rows, err := s.Suite.DB.ExecSQL(context.Background(),
			`SELECT count(*) AS pending FROM index_jobs WHERE dead_lettered_at IS NULL`)
		if err != nil {
			return err
		}
		if len(rows) == 1 && fmt.Sprint(rows[0]["pending"]) == "0" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("index queue still has %v pending job(s) after %s", rows[0]["pending"], timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
