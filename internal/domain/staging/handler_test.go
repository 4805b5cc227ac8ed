package staging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCreateStagingRejectsInvalidPayload(t *testing.T) {
	svc, _, _, caseID := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	// Well-formed JSON, but no variant details for the domain.
	body := `{"caseId":"` + caseID.String() + `","stagingDomain":"tnm","date":"2021-01-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(authedContext("curator", 3))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Create(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}
