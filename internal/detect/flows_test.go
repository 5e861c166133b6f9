package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrmoe28/permitscout/internal/permits"
)

const wizardStepOne = `<html><head><title>Building Permit Application</title></head><body>
	<ol class="progress-steps"><li>Applicant</li><li>Project</li><li>Review</li></ol>
	<form action="/apply/step2">
		<input type="text" name="applicant_name" required>
		<input type="email" name="email">
		<div class="required"><input type="text" name="parcel_id"></div>
		<input type="text" name="phone" pattern="[0-9]{10}">
		<input type="file" name="site_plan" accept=".pdf,.dwg" required>
		<input type="hidden" name="csrf" value="x">
		<button type="submit">Save</button>
	</form>
	<a href="/apply/step2" class="btn-next">Next Step</a>
</body></html>`

const wizardStepTwo = `<html><body>
	<h2>Project Details</h2>
	<form>
		<select name="work_type" required><option>New</option></select>
		<textarea name="description"></textarea>
	</form>
</body></html>`

func TestMapFlowTwoSteps(t *testing.T) {
	getter := &stubGetter{pages: map[string][]byte{
		"https://springfield.gov/apply/step1": []byte(wizardStepOne),
		"https://springfield.gov/apply/step2": []byte(wizardStepTwo),
	}}
	engine := NewEngine(getter, Config{}, nil)

	flow, ok := engine.MapFlow(context.Background(), "https://springfield.gov/apply/step1")
	require.True(t, ok)
	require.Equal(t, "Building Permit Application", flow.Title)
	require.Len(t, flow.Steps, 2)

	step1 := flow.Steps[0]
	require.Equal(t, 1, step1.Number)
	require.Equal(t, "https://springfield.gov/apply/step2", step1.NextURL)

	fields := map[string]permits.StepField{}
	for _, f := range step1.Fields {
		fields[f.Name] = f
	}
	require.True(t, fields["applicant_name"].Required, "required attribute")
	require.False(t, fields["email"].Required)
	require.True(t, fields["parcel_id"].Required, "enclosing .required context")
	require.NotContains(t, fields, "csrf", "hidden inputs skipped")

	require.Len(t, step1.Uploads, 1)
	require.Equal(t, "site_plan", step1.Uploads[0].Name)
	require.Equal(t, []string{".pdf", ".dwg"}, step1.Uploads[0].Accepts)
	require.True(t, step1.Uploads[0].Required)

	require.Equal(t, []string{"phone must match [0-9]{10}"}, step1.ValidationRules)

	step2 := flow.Steps[1]
	require.Equal(t, 2, step2.Number)
	require.Equal(t, "Project Details", step2.Title)
	require.Empty(t, step2.NextURL, "no next link on the final step")
}

func TestMapFlowRequiresStepIndicator(t *testing.T) {
	getter := &stubGetter{pages: map[string][]byte{
		"https://springfield.gov/contact": []byte(`<html><body><form><input name="q"></form></body></html>`),
	}}
	engine := NewEngine(getter, Config{}, nil)

	flow, ok := engine.MapFlow(context.Background(), "https://springfield.gov/contact")
	require.False(t, ok)
	require.Nil(t, flow)
}

func TestMapFlowSingleStepDiscarded(t *testing.T) {
	getter := &stubGetter{pages: map[string][]byte{
		"https://springfield.gov/apply": []byte(`<html><body>
			<div class="wizard"><form><input name="a"></form></div>
		</body></html>`),
	}}
	engine := NewEngine(getter, Config{}, nil)

	flow, ok := engine.MapFlow(context.Background(), "https://springfield.gov/apply")
	require.False(t, ok)
	require.Nil(t, flow)
}

func TestMapFlowStopsOnRevisit(t *testing.T) {
	getter := &stubGetter{pages: map[string][]byte{
		"https://springfield.gov/apply/a": []byte(`<html><body>
			<div class="step-indicator"></div>
			<a href="/apply/b">Next</a>
		</body></html>`),
		"https://springfield.gov/apply/b": []byte(`<html><body>
			<a href="/apply/a">Next</a>
		</body></html>`),
	}}
	engine := NewEngine(getter, Config{}, nil)

	flow, ok := engine.MapFlow(context.Background(), "https://springfield.gov/apply/a")
	require.True(t, ok)
	require.Len(t, flow.Steps, 2, "revisiting step one ends the walk")
}

func TestMapFlowHonorsStepBound(t *testing.T) {
	pages := map[string][]byte{
		"https://springfield.gov/apply/1": []byte(`<html><body><div class="wizard"></div><a href="/apply/2">Next</a></body></html>`),
		"https://springfield.gov/apply/2": []byte(`<html><body><a href="/apply/3">Next</a></body></html>`),
		"https://springfield.gov/apply/3": []byte(`<html><body><a href="/apply/4">Next</a></body></html>`),
	}
	getter := &stubGetter{pages: pages}
	engine := NewEngine(getter, Config{MaxFlowSteps: 2}, nil)

	flow, ok := engine.MapFlow(context.Background(), "https://springfield.gov/apply/1")
	require.True(t, ok)
	require.Len(t, flow.Steps, 2)
	require.Len(t, getter.calls, 2)
}
