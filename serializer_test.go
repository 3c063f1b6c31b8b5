package apistub

import (
	"context"
	"encoding/xml"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializer(t *testing.T) {
	s := JSONSerializer{}
	c, err := s.ToRequestContent(map[string]string{"q": "<a&b>"})
	require.NoError(t, err)
	body, _ := io.ReadAll(c.Body)
	assert.Equal(t, "{\"q\":\"<a&b>\"}\n", string(body), "HTML characters are not escaped")
	assert.Equal(t, int64(len(body)), c.Length)
	assert.Equal(t, "application/json; charset=utf-8", c.ContentType)

	var u User
	require.NoError(t, s.FromResponseContent(context.Background(), strings.NewReader(`{"id":3,"login":"x","extra":true}`), &u))
	assert.Equal(t, User{ID: 3, Login: "x"}, u)

	strict := JSONSerializer{DisallowUnknownFields: true}
	err = strict.FromResponseContent(context.Background(), strings.NewReader(`{"id":3,"extra":true}`), &u)
	assert.ErrorContains(t, err, "unknown field")
}

func TestSerializer_EmptyBody(t *testing.T) {
	for name, s := range map[string]ContentSerializer{"json": JSONSerializer{}, "xml": XMLSerializer{}} {
		t.Run(name, func(t *testing.T) {
			u := User{ID: 1}
			for _, body := range []string{"", "  \n\t"} {
				require.NoError(t, s.FromResponseContent(context.Background(), strings.NewReader(body), &u))
			}
			assert.Equal(t, User{ID: 1}, u, "empty bodies leave the target untouched")
		})
	}
}

func TestSerializer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var u User
	err := JSONSerializer{}.FromResponseContent(ctx, strings.NewReader(`{"id":1}`), &u)
	assert.ErrorIs(t, err, context.Canceled)
}

type xmlUser struct {
	XMLName xml.Name `xml:"user"`
	ID      int      `xml:"id,attr"`
	Login   string   `xml:"profile>login"`
}

func TestXMLSerializer(t *testing.T) {
	s := XMLSerializer{}
	c, err := s.ToRequestContent(xmlUser{ID: 4, Login: "gopher"})
	require.NoError(t, err)
	body, _ := io.ReadAll(c.Body)
	assert.Equal(t, `<user id="4"><profile><login>gopher</login></profile></user>`, string(body))

	var u xmlUser
	require.NoError(t, s.FromResponseContent(context.Background(), strings.NewReader(string(body)), &u))
	assert.Equal(t, 4, u.ID)
	assert.Equal(t, "gopher", u.Login)
}

func TestFieldName(t *testing.T) {
	type sample struct {
		Plain   string
		Renamed string `json:"renamed,omitempty" xml:"wrapper>renamed"`
		Skipped string `json:"-" xml:"-"`
		Opts    string `json:",omitempty" xml:",attr"`
	}
	typ := reflect.TypeFor[sample]()
	tests := []struct {
		field string
		json  string
		xml   string
	}{
		{"Plain", "", ""},
		{"Renamed", "renamed", "renamed"},
		{"Skipped", "-", "-"},
		{"Opts", "", ""},
	}
	for _, tt := range tests {
		f, _ := typ.FieldByName(tt.field)
		assert.Equal(t, tt.json, JSONSerializer{}.FieldName(f), "json %s", tt.field)
		assert.Equal(t, tt.xml, XMLSerializer{}.FieldName(f), "xml %s", tt.field)
	}
}
