package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrmoe28/permitscout/internal/permits"
)

func TestFirstPhoneNormalizes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already formatted", "Call us at (555) 123-4567 today", "(555) 123-4567"},
		{"dashes", "555-123-4567", "(555) 123-4567"},
		{"dots", "555.123.4567", "(555) 123-4567"},
		{"country code", "+1 555-123-4567", "(555) 123-4567"},
		{"spaces", "555 123 4567", "(555) 123-4567"},
		{"first of several", "Main: 555-123-4567 Fax: 555-123-9999", "(555) 123-4567"},
		{"none", "no phone here", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, firstPhone(tc.in))
		})
	}
}

func TestFirstEmailSkipsPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Email permits@springfield.gov with questions", "permits@springfield.gov"},
		{"skips noreply", "noreply@springfield.gov or permits@springfield.gov", "permits@springfield.gov"},
		{"skips donotreply", "donotreply@springfield.gov then building@springfield.gov", "building@springfield.gov"},
		{"skips example", "user@example.com", ""},
		{"none", "no email", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, firstEmail(tc.in))
		})
	}
}

func TestExtractHours(t *testing.T) {
	text := "Office Hours: Monday: 8:00am - 5:00pm Tuesday: 8am - 4:30pm " +
		"Friday: 12pm - 12am Saturday: Closed"

	hours := extractHours(text)
	require.NotNil(t, hours)

	require.Equal(t, permits.DayHours{Open: "08:00", Close: "17:00"}, hours["monday"])
	require.Equal(t, permits.DayHours{Open: "08:00", Close: "16:30"}, hours["tuesday"])
	require.Equal(t, permits.DayHours{Open: "12:00", Close: "00:00"}, hours["friday"])
	require.Equal(t, permits.DayHours{Closed: true}, hours["saturday"])

	_, hasSunday := hours["sunday"]
	require.False(t, hasSunday)
}

func TestExtractHoursNoneFound(t *testing.T) {
	require.Nil(t, extractHours("Visit city hall for details"))
}

func TestTo24Hour(t *testing.T) {
	tests := []struct {
		hour, minute, meridiem string
		want                   string
	}{
		{"8", "00", "a", "08:00"},
		{"8", "", "a", "08:00"},
		{"5", "30", "p", "17:30"},
		{"12", "00", "p", "12:00"},
		{"12", "00", "a", "00:00"},
		{"13", "00", "a", ""},
		{"0", "00", "a", ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, to24Hour(tc.hour, tc.minute, tc.meridiem),
			"%s:%s%sm", tc.hour, tc.minute, tc.meridiem)
	}
}

func TestExtractContactFromPage(t *testing.T) {
	html := `<html><body>
		<h1>Building Department</h1>
		<div class="contact-address">City Hall, 456 Oak Avenue, Portland, OR 97201</div>
		<p>Phone: 503-555-0142 Email: noreply@portland.gov or building@portland.gov</p>
		<p>Hours: Monday: 9:00am - 5:00pm</p>
	</body></html>`

	content, err := New(nil).Extract("https://portland.gov/permits", []byte(html))
	require.NoError(t, err)
	require.NotNil(t, content.Contact)

	contact := content.Contact
	require.Equal(t, "(503) 555-0142", contact.Phone)
	require.Equal(t, "building@portland.gov", contact.Email)

	require.NotNil(t, contact.Address)
	require.Equal(t, "456 Oak Avenue", contact.Address.Street)
	require.Equal(t, "Portland", contact.Address.City)
	require.Equal(t, "OR", contact.Address.State)
	require.Equal(t, "97201", contact.Address.Zip)

	require.Equal(t, permits.DayHours{Open: "09:00", Close: "17:00"}, contact.Hours["monday"])
}

func TestExtractContactAddressFallbackFromText(t *testing.T) {
	html := `<html><body>
		<p>Submit applications in person at 123 Main Street, Springfield, IL 62701.</p>
	</body></html>`

	content, err := New(nil).Extract("https://springfield.gov", []byte(html))
	require.NoError(t, err)
	require.NotNil(t, content.Contact)
	require.NotNil(t, content.Contact.Address)
	require.Equal(t, "123 Main Street", content.Contact.Address.Street)
	require.Equal(t, "Springfield", content.Contact.Address.City)
	require.Equal(t, "IL", content.Contact.Address.State)
	require.Equal(t, "62701", content.Contact.Address.Zip)
}

func TestExtractContactAbsentWhenNothingFound(t *testing.T) {
	html := `<html><body><p>Welcome to our parks page.</p></body></html>`

	content, err := New(nil).Extract("https://springfield.gov/parks", []byte(html))
	require.NoError(t, err)
	require.Nil(t, content.Contact)
}
