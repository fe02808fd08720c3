package xmltree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const securityEvent = `<?xml version="1.0" encoding="utf-8" standalone="yes" ?>
<Event xmlns="http://schemas.microsoft.com/win/2004/08/events/event">
  <System>
    <Provider Name="Microsoft-Windows-Security-Auditing" Guid="{54849625-5478-4994-a5ba-3e3b0328c30d}"></Provider>
    <EventID Qualifiers="">4624</EventID>
    <Level>0</Level>
    <Opcode/>
    <TimeCreated SystemTime="2021-05-01 10:15:30.123456"></TimeCreated>
    <Channel>Security</Channel>
  </System>
  <EventData>
    <Data Name="User">alice</Data>
    <Data Name="Host">box1</Data>
  </EventData>
</Event>`

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestBuildSecurityEvent(t *testing.T) {
	tree, err := Build([]byte(securityEvent))
	require.NoError(t, err)

	want := `{"Event":{
		"@xmlns":"http://schemas.microsoft.com/win/2004/08/events/event",
		"System":{
			"Provider":{"@Name":"Microsoft-Windows-Security-Auditing","@Guid":"{54849625-5478-4994-a5ba-3e3b0328c30d}"},
			"EventID":{"@Qualifiers":"","#text":"4624"},
			"Level":"0",
			"Opcode":null,
			"TimeCreated":{"@SystemTime":"2021-05-01 10:15:30.123456"},
			"Channel":"Security"
		},
		"EventData":{"Data":[
			{"@Name":"User","#text":"alice"},
			{"@Name":"Host","#text":"box1"}
		]}
	}}`
	assert.JSONEq(t, want, marshal(t, tree))
}

func TestBuildPreservesKeyOrder(t *testing.T) {
	tree, err := Build([]byte(`<R><b>1</b><a x="y">2</a><c/></R>`))
	require.NoError(t, err)
	assert.Equal(t, `{"R":{"b":"1","a":{"@x":"y","#text":"2"},"c":null}}`, marshal(t, tree))
}

func TestBuildInterleavedRepeatsStayInPlace(t *testing.T) {
	tree, err := Build([]byte(`<EventData><Data>1</Data><Binary>00</Binary><Data>2</Data><Data>3</Data></EventData>`))
	require.NoError(t, err)
	assert.Equal(t, `{"EventData":{"Data":["1","2","3"],"Binary":"00"}}`, marshal(t, tree))
}

func TestBuildShapes(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{
			name: "single named data stays a tree",
			xml:  `<EventData><Data Name="Only">v</Data></EventData>`,
			want: `{"EventData":{"Data":{"@Name":"Only","#text":"v"}}}`,
		},
		{
			name: "unnamed data is plain text",
			xml:  `<EventData><Data>blob</Data></EventData>`,
			want: `{"EventData":{"Data":"blob"}}`,
		},
		{
			name: "three repeats form one list",
			xml:  `<L><i>1</i><i>2</i><i>3</i></L>`,
			want: `{"L":{"i":["1","2","3"]}}`,
		},
		{
			name: "whitespace only is empty",
			xml:  "<EventData>\n   \n</EventData>",
			want: `{"EventData":null}`,
		},
		{
			name: "text next to children",
			xml:  `<A>hello<B>x</B></A>`,
			want: `{"A":{"B":"x","#text":"hello"}}`,
		},
		{
			name: "attribute without text",
			xml:  `<TimeCreated SystemTime="2021-05-01 10:15:30"/>`,
			want: `{"TimeCreated":{"@SystemTime":"2021-05-01 10:15:30"}}`,
		},
		{
			name: "entities are decoded",
			xml:  `<M>a &amp; b &lt;c&gt;</M>`,
			want: `{"M":"a & b <c>"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Build([]byte(tt.xml))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, marshal(t, tree))
		})
	}
}

func TestBuildDeclaredCharset(t *testing.T) {
	data := append([]byte(`<?xml version="1.0" encoding="windows-1252"?><M>caf`), 0xE9, '<', '/', 'M', '>')
	tree, err := Build(data)
	require.NoError(t, err)
	assert.Equal(t, `{"M":"café"}`, marshal(t, tree))

	_, err = Build([]byte(`<?xml version="1.0" encoding="x-no-such-charset"?><M/>`))
	assert.Error(t, err)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"empty input", ""},
		{"only a declaration", `<?xml version="1.0"?>`},
		{"unclosed element", `<Event><System></Event>`},
		{"two roots", `<A/><B/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build([]byte(tt.xml))
			assert.Error(t, err)
		})
	}

	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}
