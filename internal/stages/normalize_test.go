package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fryguy04/evtx-to-json/internal/model"
)

const logonEvent = `<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event">
  <System>
    <Provider Name="Microsoft-Windows-Security-Auditing"/>
    <EventID>4624</EventID>
    <TimeCreated SystemTime="2021-05-01 10:15:30.123456"/>
    <EventRecordID>1201</EventRecordID>
    <Channel>Security</Channel>
  </System>
  <EventData>
    <Data Name="User">alice</Data>
    <Data Name="Host">box1</Data>
  </EventData>
</Event>`

func TestNormalizeLogonEvent(t *testing.T) {
	out := Normalize(model.RawRecord{
		XML:    []byte(logonEvent),
		Handle: model.Handle{Path: "Security.evtx", Index: 1},
	})
	require.True(t, out.Ok(), "unexpected error: %v", out.Err)

	ev := out.Event
	assert.Equal(t, "2021-05-01T10:15:30.123456", ev.Timestamp())
	nested, _ := model.StringAt(ev.Doc, model.KeyEvent, model.KeySystem, model.KeyTimeCreated, model.KeySystemTime)
	assert.Equal(t, ev.Timestamp(), nested)

	data, ok := model.TreeAt(ev.Doc, model.KeyEvent, model.KeyEventData, model.KeyData)
	require.True(t, ok)
	assert.Equal(t, `{"User":"alice","Host":"box1"}`, toJSON(t, data))

	assert.Equal(t, "sequence", ev.Shape)
	assert.Equal(t, "1201", ev.Handle.RecordID)
	assert.Equal(t, "Security.evtx", ev.Handle.Path)
}

func TestNormalizeUsesProvidedTree(t *testing.T) {
	tree := buildTree(t, `<Event><System><TimeCreated SystemTime="2020-01-02 03:04:05"/></System></Event>`)

	out := Normalize(model.RawRecord{Tree: tree, XML: []byte("ignored")})
	require.True(t, out.Ok())
	assert.Equal(t, "absent", out.Event.Shape)
	assert.Equal(t, `{"@timestamp":"2020-01-02T03:04:05","System":{"TimeCreated":{"@SystemTime":"2020-01-02T03:04:05"}}}`, toJSON(t, out.Event))
}

func TestNormalizeFailures(t *testing.T) {
	tests := []struct {
		name    string
		xml     string
		kind    model.ErrorKind
		partial bool
	}{
		{"bad creation time", `<Event><System><TimeCreated SystemTime="01/05/2021"/><EventRecordID>9</EventRecordID></System></Event>`, model.KindFormat, true},
		{"no creation time", `<Event><System><EventID>1</EventID></System></Event>`, model.KindStructure, true},
		{"broken xml", `<Event><System></Event>`, model.KindStructure, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(model.RawRecord{XML: []byte(tt.xml), Handle: model.Handle{Index: 3}})
			require.False(t, out.Ok())
			require.NotNil(t, out.Err)
			assert.Nil(t, out.Event)
			assert.Equal(t, tt.kind, out.Err.Kind)
			assert.Equal(t, 3, out.Err.Handle.Index)
			assert.Equal(t, tt.partial, out.Err.Partial != nil)
		})
	}

	out := Normalize(model.RawRecord{XML: []byte(`<Event><System><TimeCreated SystemTime="x"/><EventRecordID>9</EventRecordID></System></Event>`)})
	require.NotNil(t, out.Err)
	assert.Equal(t, "9", out.Err.Handle.RecordID)
}

func TestNormalizeKeepsRecordID(t *testing.T) {
	out := Normalize(model.RawRecord{
		XML:    []byte(logonEvent),
		Handle: model.Handle{RecordID: "from-source"},
	})
	require.True(t, out.Ok())
	assert.Equal(t, "from-source", out.Event.Handle.RecordID)
}
