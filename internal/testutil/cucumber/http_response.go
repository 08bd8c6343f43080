package cucumber

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response should match json:$`, s.theResponseShouldMatchJSONDoc)
		ctx.Step(`^the response should contain json:$`, s.theResponseShouldContainJSONDoc)
		ctx.Step(`^the response should contain "([^"]*)"$`, s.theResponseShouldContain)
		ctx.Step(`^the response header "([^"]*)" should match "([^"]*)"$`, s.theResponseHeaderShouldMatch)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, s.iStoreTheSelectionFromTheResponseAs)
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.theSelectionFromTheResponseShouldMatch)
		ctx.Step(`^the "(.*)" selection from the response should match json:$`, s.theSelectionFromTheResponseShouldMatchJSON)
		ctx.Step(`^the "(.*)" selection from the response should be greater than (-?[\d.]+)$`, s.theSelectionShouldBeGreaterThan)
		ctx.Step(`^\${([^}]*)} should match "([^"]*)"$`, s.theVariableShouldMatch)
	})
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	if actual := session.Resp.StatusCode; expected != actual {
		return fmt.Errorf("expected response code to be: %d, but actual is: %d, body: %s", expected, actual, string(session.RespBytes))
	}
	return nil
}

func (s *TestScenario) theResponseShouldMatchJSONDoc(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustMatch(string(session.RespBytes), expected.Content, true)
}

func (s *TestScenario) theResponseShouldContainJSONDoc(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("got an empty response from server, expected a json body")
	}
	return s.JSONMustContain(string(session.RespBytes), expected.Content, true)
}

func (s *TestScenario) theResponseShouldContain(expected string) error {
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	body := string(s.Session().RespBytes)
	if !strings.Contains(body, expanded) {
		return fmt.Errorf("expected response to contain '%s'. Response body: %s", expanded, body)
	}
	return nil
}

func (s *TestScenario) theResponseHeaderShouldMatch(header, expected string) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if actual := session.Resp.Header.Get(header); expanded != actual {
		return fmt.Errorf("response header '%s' does not match expected: %v, actual: %v", header, expanded, actual)
	}
	return nil
}

func (s *TestScenario) selection(selector string) (interface{}, error) {
	doc, err := s.Session().RespJSON()
	if err != nil {
		return nil, err
	}
	return selectOne(selector, doc)
}

func (s *TestScenario) iStoreTheSelectionFromTheResponseAs(selector, as string) error {
	value, err := s.selection(selector)
	if err != nil {
		return err
	}
	s.Variables[as] = value
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatch(selector, expected string) error {
	actual, err := s.selection(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	got := "null"
	if actual != nil {
		if got, err = ToString(actual); err != nil {
			return err
		}
	}
	if got != expected {
		return fmt.Errorf("selection %s does not match. expected: %v, actual: %v", selector, expected, got)
	}
	return nil
}

func (s *TestScenario) theSelectionFromTheResponseShouldMatchJSON(selector string, expected *godog.DocString) error {
	actual, err := s.selection(selector)
	if err != nil {
		return err
	}
	b, err := json.Marshal(actual)
	if err != nil {
		return err
	}
	return s.JSONMustMatch(string(b), expected.Content, true)
}

func (s *TestScenario) theSelectionShouldBeGreaterThan(selector string, bound float64) error {
	actual, err := s.selection(selector)
	if err != nil {
		return err
	}
	n, ok := actual.(float64)
	if !ok {
		return fmt.Errorf("selection %s is %T, not a number", selector, actual)
	}
	if n <= bound {
		return fmt.Errorf("selection %s: expected > %s, got %v", selector, strconv.FormatFloat(bound, 'f', -1, 64), n)
	}
	return nil
}

func (s *TestScenario) theVariableShouldMatch(name, expected string) error {
	actual, err := s.ResolveString(name)
	if err != nil {
		return err
	}
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if actual != expanded {
		return fmt.Errorf("${%s}: expected %q, got %q", name, expanded, actual)
	}
	return nil
}
