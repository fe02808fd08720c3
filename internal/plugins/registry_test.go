package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fryguy04/evtx-to-json/internal/config"
	"github.com/fryguy04/evtx-to-json/internal/model"
	"github.com/fryguy04/evtx-to-json/internal/stages"
)

const event = `<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event"><System><EventID>4625</EventID><TimeCreated SystemTime="2021-05-01 10:15:30"/></System><EventData><Data Name="TargetUserName">bob</Data><Data Name="IpAddress">10.0.0.7</Data></EventData></Event>`

func normalized(t *testing.T) *model.Event {
	t.Helper()
	out := stages.Normalize(model.RawRecord{XML: []byte(event)})
	require.True(t, out.Ok())
	return out.Event
}

func TestBuildTransformsUnknown(t *testing.T) {
	_, err := BuildTransforms(config.Config{Transforms: []string{"filter_redact", "geoip"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transform "geoip"`)
}

func TestBuildTransformsNone(t *testing.T) {
	ts, err := BuildTransforms(config.Config{})
	require.NoError(t, err)
	assert.Empty(t, ts)
}

func TestFilterRedactTransform(t *testing.T) {
	ts, err := BuildTransforms(config.Config{
		Transforms:     []string{"FILTER_REDACT"},
		FilterEventIDs: []string{"4625"},
		RedactKeys:     []string{"IpAddress"},
	})
	require.NoError(t, err)
	require.Len(t, ts, 1)

	ev := normalized(t)
	drop, reason, err := ts[0](ev)
	require.NoError(t, err)
	assert.False(t, drop)
	assert.Empty(t, reason)

	ip, _ := model.StringAt(ev.Doc, model.KeyEvent, model.KeyEventData, model.KeyData, "IpAddress")
	assert.Equal(t, stages.Redacted, ip)

	ts, err = BuildTransforms(config.Config{Transforms: []string{"filter_redact"}, FilterEventIDs: []string{"1"}})
	require.NoError(t, err)
	drop, reason, err = ts[0](normalized(t))
	require.NoError(t, err)
	assert.True(t, drop)
	assert.Equal(t, "event_id", reason)
}

func TestStripXMLNSTransform(t *testing.T) {
	ts, err := BuildTransforms(config.Config{Transforms: []string{"strip_xmlns"}})
	require.NoError(t, err)

	ev := normalized(t)
	_, has := model.Lookup(ev.Doc, model.KeyEvent, "@xmlns")
	require.True(t, has)

	_, _, err = ts[0](ev)
	require.NoError(t, err)
	_, has = model.Lookup(ev.Doc, model.KeyEvent, "@xmlns")
	assert.False(t, has)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"filter_redact", "strip_xmlns"}, Names())
}
