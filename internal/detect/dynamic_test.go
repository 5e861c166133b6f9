package detect

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrmoe28/permitscout/internal/fetch"
)

type stubGetter struct {
	pages map[string][]byte
	calls []string
}

func (s *stubGetter) Get(_ context.Context, rawURL string) (fetch.Page, error) {
	s.calls = append(s.calls, rawURL)
	body, ok := s.pages[rawURL]
	if !ok {
		return fetch.Page{}, fmt.Errorf("no page for %s", rawURL)
	}
	return fetch.Page{URL: rawURL, FinalURL: rawURL, StatusCode: 200, Body: body}, nil
}

func TestScriptEndpoints(t *testing.T) {
	html := `<html><body><script>
		const forms = fetch("/api/permits/forms");
		$.getJSON('/ajax/permit-applications?active=1', render);
		fetch("https://other.example.com/api/forms");
		fetch("/api/news/latest");
	</script></body></html>`

	endpoints := scriptEndpoints(parseDoc(t, html), "https://springfield.gov/permits")
	require.Equal(t, []string{
		"https://springfield.gov/api/permits/forms",
		"https://springfield.gov/ajax/permit-applications?active=1",
	}, endpoints)
}

func TestScriptEndpointsDedup(t *testing.T) {
	html := `<html><body>
		<script>fetch("/api/permits");</script>
		<script>var u = "/api/permits";</script>
	</body></html>`

	endpoints := scriptEndpoints(parseDoc(t, html), "https://springfield.gov/")
	require.Equal(t, []string{"https://springfield.gov/api/permits"}, endpoints)
}

func TestFormsFromJSONBareArray(t *testing.T) {
	raw := []byte(`[
		{"name":"Building Permit Application","url":"/forms/building.pdf","required":true},
		{"title":"Electrical Permit","link":"/forms/electrical.pdf"},
		{"name":"No URL Entry"},
		{"url":"/forms/nameless.pdf"}
	]`)

	forms := formsFromJSON(raw, mustBase(t, "https://springfield.gov/api/forms"))
	require.Len(t, forms, 2)
	require.Equal(t, "Building Permit Application", forms[0].Name)
	require.Equal(t, "https://springfield.gov/forms/building.pdf", forms[0].URL)
	require.True(t, forms[0].IsRequired)
	require.Equal(t, "Electrical Permit", forms[1].Name)
}

func TestFormsFromJSONWrappedArray(t *testing.T) {
	raw := []byte(`{"total": 1, "forms": [{"formName":"Demolition Permit","downloadUrl":"/forms/demo.pdf"}]}`)

	forms := formsFromJSON(raw, mustBase(t, "https://springfield.gov/api/forms"))
	require.Len(t, forms, 1)
	require.Equal(t, "Demolition Permit", forms[0].Name)
	require.Equal(t, "https://springfield.gov/forms/demo.pdf", forms[0].URL)
}

func TestFormsFromAPIResponseMalformed(t *testing.T) {
	base := "https://springfield.gov/api/forms"
	require.Nil(t, formsFromAPIResponse([]byte(`{"oops": `), base))
	require.Nil(t, formsFromAPIResponse([]byte(`"just a string"`), base))
	require.Nil(t, formsFromAPIResponse(nil, base))
	require.Nil(t, formsFromAPIResponse([]byte(`[1, 2, 3]`), base))
}

func TestFormsFromAPIResponseHTML(t *testing.T) {
	body := []byte(`<html><body><a href="/forms/building-permit.pdf">Building Permit</a></body></html>`)

	forms := formsFromAPIResponse(body, "https://springfield.gov/ajax/forms")
	require.Len(t, forms, 1)
	require.Equal(t, "https://springfield.gov/forms/building-permit.pdf", forms[0].URL)
}

func TestProbeEndpointsTolerant(t *testing.T) {
	getter := &stubGetter{pages: map[string][]byte{
		"https://springfield.gov/api/permit-forms": []byte(`[{"name":"Sign Permit","url":"/forms/sign.pdf"}]`),
	}}
	engine := NewEngine(getter, Config{}, nil)

	forms := engine.probeEndpoints(context.Background(), []string{
		"https://springfield.gov/api/permit-forms",
		"https://springfield.gov/api/unreachable",
	})
	require.Len(t, forms, 1)
	require.Equal(t, "Sign Permit", forms[0].Name)
	require.Len(t, getter.calls, 2, "unreachable endpoint still probed, failure swallowed")
}

func TestProbeEndpointsHonorsCap(t *testing.T) {
	getter := &stubGetter{pages: map[string][]byte{}}
	engine := NewEngine(getter, Config{MaxProbeEndpoints: 2}, nil)

	endpoints := []string{
		"https://springfield.gov/api/a",
		"https://springfield.gov/api/b",
		"https://springfield.gov/api/c",
	}
	engine.probeEndpoints(context.Background(), endpoints)
	require.Len(t, getter.calls, 2)
}

func TestDetectIntegration(t *testing.T) {
	html := `<html><body>
		<a href="/forms/building-permit-application.pdf">Building Permit Application</a>
		<nav><a href="/forms/building-permit-application.pdf">Building Permit Application</a></nav>
		<a href="https://springfield.viewpointcloud.com/categories/1071">Apply Online</a>
		<script>fetch("/api/permit-forms");</script>
	</body></html>`

	getter := &stubGetter{pages: map[string][]byte{
		"https://springfield.gov/api/permit-forms": []byte(`[{"name":"Fence Permit","url":"/forms/fence.pdf"}]`),
	}}
	engine := NewEngine(getter, Config{}, nil)

	res := engine.Detect(context.Background(), "https://springfield.gov/permits", []byte(html))

	urls := formURLs(res.Forms)
	require.Contains(t, urls, "https://springfield.gov/forms/building-permit-application.pdf")
	require.Contains(t, urls, "https://springfield.gov/forms/fence.pdf")

	count := 0
	for _, u := range urls {
		if u == "https://springfield.gov/forms/building-permit-application.pdf" {
			count++
		}
	}
	require.Equal(t, 1, count, "same candidate from two layers appears once")

	require.Len(t, res.Systems, 1)
	require.Equal(t, "viewpoint", res.Systems[0].Vendor)
}
