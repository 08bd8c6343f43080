package bdd

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/chirino/weave-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		ctx.Step(`^I upload file "([^"]*)" of type "([^"]*)" to path "([^"]*)" with content:$`, func(name, mime, path string, content *godog.DocString) error {
			return uploadFile(s, name, mime, path, content.Content)
		})
	})
}

func uploadFile(s *cucumber.TestScenario, name, mime, path, content string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", mime)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	s.Session().Header.Set("Content-Type", mw.FormDataContentType())
	return s.SendHTTPRequest(http.MethodPost, path, &body)
}
