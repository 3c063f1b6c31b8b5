package apistub

import (
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email   string    `json:"email" schema:"email"`
	Tags    []string  `json:"tags" schema:"tags"`
	Age     *int      `json:"age,omitempty" schema:"age,omitempty"`
	Secret  string    `json:"-" schema:"-"`
	Address address   `json:"address" schema:"address"`
	Joined  time.Time `json:"joined" schema:"-"`
}

type address struct {
	City string `json:"city" schema:"city"`
}

func TestDefaultFormFormatter(t *testing.T) {
	age := 30
	v := signup{
		Email:   "a@example.com",
		Tags:    []string{"x", "y"},
		Age:     &age,
		Secret:  "hidden",
		Address: address{City: "Oslo"},
		Joined:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	got, err := DefaultFormFormatter{}.FormatForm(v)
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"email":        {"a@example.com"},
		"tags":         {"x", "y"},
		"age":          {"30"},
		"address.city": {"Oslo"},
		"joined":       {"2024-01-02T03:04:05Z"},
	}, got)

	got, err = DefaultFormFormatter{Collection: CollectionCSV}.FormatForm(&signup{Tags: []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x,y"}, got["tags"])
	assert.NotContains(t, got, "age", "nil pointers are omitted")

	got, err = DefaultFormFormatter{}.FormatForm(map[string]any{"b": 2, "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, url.Values{"a": {"1"}, "b": {"2"}}, got)

	got, err = DefaultFormFormatter{}.FormatForm((*signup)(nil))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = DefaultFormFormatter{}.FormatForm(42)
	assert.ErrorContains(t, err, "form body must be a struct or map")
}

func TestSchemaFormFormatter(t *testing.T) {
	f := NewSchemaFormFormatter("")
	v := signup{Email: "a@example.com", Tags: []string{"x", "y"}, Secret: "hidden"}
	got, err := f.FormatForm(&v)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Get("email"))
	assert.Equal(t, []string{"x", "y"}, got["tags"])
	assert.NotContains(t, got, "age")
	assert.NotContains(t, got, "Secret")

	// A gorilla/schema server decodes what the formatter produced.
	var back signup
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	require.NoError(t, dec.Decode(&back, got))
	assert.Equal(t, v.Email, back.Email)
	assert.Equal(t, v.Tags, back.Tags)

	got, err = NewSchemaFormFormatter("json").FormatForm(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, url.Values{"n": {"1"}}, got)
}

func TestFormBody(t *testing.T) {
	d := desc("POST", "/signup", Param{Name: "form", Role: RoleBody, Body: BodyForm})
	b := NewRequestBuilder().WithFormFormatter(NewSchemaFormFormatter(""))
	req := build(t, b, d, address{City: "São Paulo"})
	assert.Equal(t, formContentType, req.Header.Get("Content-Type"))
	assert.Equal(t, "city=S%C3%A3o+Paulo", requestBody(t, req))

	type ordered struct {
		Zeta  string   `json:"zeta"`
		Alpha int      `json:"alpha"`
		Mid   []string `json:"mid"`
	}
	req = build(t, nil, d, ordered{Zeta: "z z", Alpha: 1, Mid: []string{"a", "b"}})
	assert.Equal(t, "zeta=z+z&alpha=1&mid=a&mid=b", requestBody(t, req), "declaration order is kept")

	req = build(t, nil, d, url.Values{"k": {"v w"}})
	assert.Equal(t, "k=v+w", requestBody(t, req))

	req = build(t, nil, d, "raw=1")
	assert.Equal(t, "raw=1", requestBody(t, req))
}
