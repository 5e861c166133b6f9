package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/understand"
)

func TestWeightsScore(t *testing.T) {
	w := DefaultWeights()
	cases := []struct {
		name string
		res  *permits.AcquisitionResult
		v    *understand.Validation
		want float64
	}{
		{
			name: "empty result scores the base",
			res:  &permits.AcquisitionResult{},
			want: 0.5,
		},
		{
			name: "each distinct source type is one step",
			res:  &permits.AcquisitionResult{Sources: []string{SourceWebsite, SourcePDF}},
			want: 0.7,
		},
		{
			name: "permits outweigh the other classes",
			res: &permits.AcquisitionResult{
				Sources: []string{SourceWebsite},
				Permits: []permits.PermitType{{Name: "Building Permit"}},
			},
			want: 0.8,
		},
		{
			name: "contact without phone or email earns nothing",
			res: &permits.AcquisitionResult{
				Contact: &permits.ContactInfo{Department: "Building Safety"},
			},
			want: 0.5,
		},
		{
			name: "validator verdict averages in",
			res: &permits.AcquisitionResult{
				Sources: []string{SourceWebsite},
				Permits: []permits.PermitType{{Name: "Building Permit"}},
			},
			v:    &understand.Validation{Confidence: 0.4},
			want: 0.6,
		},
		{
			name: "everything present clamps at one",
			res: &permits.AcquisitionResult{
				Sources: []string{SourceWebsite, SourcePDF, SourceAPI, SourceForm},
				Permits: []permits.PermitType{{Name: "Building Permit"}},
				Forms:   []permits.PermitForm{{Name: "Application", URL: "https://springfield.gov/a.pdf"}},
				Contact: &permits.ContactInfo{Phone: "(217) 555-0183"},
				Flows:   []permits.MappedFlow{{StartURL: "https://springfield.gov/apply"}},
			},
			want: 1.0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := w.Score(tc.res, tc.v)
			require.InDelta(t, tc.want, got, 1e-9)
			require.GreaterOrEqual(t, got, 0.0)
			require.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestWeightsWithDefaults(t *testing.T) {
	require.Equal(t, DefaultWeights(), Weights{}.withDefaults())

	custom := Weights{Base: 0.4, Fallback: 0.25}.withDefaults()
	require.InDelta(t, 0.4, custom.Base, 1e-9)
	require.InDelta(t, 0.25, custom.Fallback, 1e-9)
	require.InDelta(t, DefaultWeights().PerSource, custom.PerSource, 1e-9,
		"unset fields pick up the production values")
}

func TestKeywordScan(t *testing.T) {
	require.Nil(t, keywordScan(nil))
	require.Nil(t, keywordScan([]byte("nothing relevant here")))

	found := keywordScan([]byte("Apply for BUILDING permits or plumbing work at city hall."))
	require.Len(t, found, 2)
	require.Equal(t, "Building Permit", found[0].Name)
	require.Equal(t, permits.CategoryBuilding, found[0].Category)
	require.Equal(t, "Plumbing Permit", found[1].Name)
	require.Equal(t, permits.CategoryPlumbing, found[1].Category)
}

func TestDataQualityBlendsModelAndHeuristics(t *testing.T) {
	heuristicOnly := &runState{heuristicQuality: 0.6}
	require.InDelta(t, 0.6, dataQuality(heuristicOnly), 1e-9)

	blended := &runState{heuristicQuality: 0.6, aiQuality: []float64{0.8, 1.0}}
	require.InDelta(t, 0.75, dataQuality(blended), 1e-9, "mean of 0.6 and the 0.9 model average")

	overflowing := &runState{heuristicQuality: 1.4}
	require.InDelta(t, 1.0, dataQuality(overflowing), 1e-9)
}
