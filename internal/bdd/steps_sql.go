package bdd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chirino/weave-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		sq := &sqlSteps{s: s}
		ctx.Step(`^I execute SQL query:$`, sq.iExecuteSQLQuery)
		ctx.Step(`^the SQL result should have (\d+) rows?$`, sq.theSQLResultShouldHaveRows)
		ctx.Step(`^the SQL result should match:$`, sq.theSQLResultShouldMatch)
	})
}

type sqlSteps struct {
	s        *cucumber.TestScenario
	lastRows []map[string]interface{}
}

// iExecuteSQLQuery also stores the rows as the session response so the
// JSON response steps can assert on them.
func (sq *sqlSteps) iExecuteSQLQuery(query *godog.DocString) error {
	if sq.s.Suite.DB == nil {
		return fmt.Errorf("no TestDB configured")
	}
	expanded, err := sq.s.Expand(query.Content)
	if err != nil {
		return err
	}
	if sq.lastRows, err = sq.s.Suite.DB.ExecSQL(context.Background(), expanded); err != nil {
		return err
	}
	rows := sq.lastRows
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	result, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	sq.s.Session().SetRespBytes(result)
	return nil
}

func (sq *sqlSteps) theSQLResultShouldHaveRows(count int) error {
	if len(sq.lastRows) != count {
		return fmt.Errorf("expected %d row(s), got %d", count, len(sq.lastRows))
	}
	return nil
}

// theSQLResultShouldMatch compares rows positionally; the first table row names the columns.
func (sq *sqlSteps) theSQLResultShouldMatch(expected *godog.Table) error {
	if len(expected.Rows) < 2 {
		return fmt.Errorf("expected table must have a header row and at least one data row")
	}
	headers := expected.Rows[0].Cells
	for rowIdx, row := range expected.Rows[1:] {
		if rowIdx >= len(sq.lastRows) {
			return fmt.Errorf("expected at least %d data row(s), got %d", rowIdx+1, len(sq.lastRows))
		}
		for colIdx, cell := range row.Cells {
			col := headers[colIdx].Value
			want, err := sq.s.Expand(cell.Value)
			if err != nil {
				return err
			}
			got := fmt.Sprintf("%v", sq.lastRows[rowIdx][col])
			if got != want {
				return fmt.Errorf("SQL result row %d column '%s': expected '%s', got '%s'", rowIdx, col, want, got)
			}
		}
	}
	return nil
}
