package envelope

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiate(t *testing.T) {
	cases := []struct {
		accept string
		want   Format
	}{
		{"", FormatJSON},
		{"application/json", FormatJSON},
		{"*/*", FormatJSON},
		{"application/xml", FormatXML},
		{"text/xml", FormatXML},
		{"application/xml;q=0.9, application/json;q=0.1", FormatXML},
	}
	for _, c := range cases {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		if c.accept != "" {
			r.Header.Set("Accept", c.accept)
		}
		assert.Equal(t, c.want, Negotiate(r), "accept %q", c.accept)
	}
}

func write(t *testing.T, format Format, status int, env Envelope) *httptest.ResponseRecorder {
	t.Helper()
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	Write(rec, r, format, status, env)
	return rec
}

func TestWriteJSONSuccess(t *testing.T) {
	rec := write(t, FormatJSON, http.StatusOK,
		Success(map[string]interface{}{"name": "Drama"}, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	data, ok := doc["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Drama", data["name"])
	_, hasError := doc["error"]
	assert.False(t, hasError)
}

func TestWriteJSONListWithPagination(t *testing.T) {
	rec := write(t, FormatJSON, http.StatusOK, Success(
		[]map[string]interface{}{{"name": "Drama"}, {"name": "Horror"}},
		&Pagination{CurrentPage: 1, TotalPages: 3, TotalItems: 25, ItemsPerPage: 10},
	))

	var doc struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination Pagination               `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Len(t, doc.Data, 2)
	assert.Equal(t, 3, doc.Pagination.TotalPages)
	assert.Equal(t, 25, doc.Pagination.TotalItems)
}

func TestWriteJSONEmptyList(t *testing.T) {
	rec := write(t, FormatJSON, http.StatusOK,
		Success([]map[string]interface{}{}, &Pagination{CurrentPage: 4, ItemsPerPage: 10}))
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestWriteJSONFailure(t *testing.T) {
	rec := write(t, FormatJSON, http.StatusBadRequest,
		Failure("validation failed", []Detail{
			{Code: "required", Message: "title is required", Path: "title"},
		}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var doc struct {
		Error Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "validation failed", doc.Error.Message)
	require.Len(t, doc.Error.Details, 1)
	assert.Equal(t, "title", doc.Error.Details[0].Path)
	assert.NotContains(t, rec.Body.String(), `"data"`)
}

func TestWriteXMLSuccess(t *testing.T) {
	rec := write(t, FormatXML, http.StatusOK,
		Success(map[string]interface{}{"zebra": "last", "alpha": "first"}, nil))

	assert.Equal(t, "application/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, body, "<response><data><alpha>first</alpha><zebra>last</zebra></data></response>")
}

func TestWriteXMLList(t *testing.T) {
	rec := write(t, FormatXML, http.StatusOK, Success(
		[]map[string]interface{}{{"name": "Drama"}},
		&Pagination{CurrentPage: 1, TotalPages: 1, TotalItems: 1, ItemsPerPage: 10},
	))
	body := rec.Body.String()
	assert.Contains(t, body, "<data><item><name>Drama</name></item></data>")
	assert.Contains(t, body, "<pagination><currentPage>1</currentPage><totalPages>1</totalPages><totalItems>1</totalItems><itemsPerPage>10</itemsPerPage></pagination>")
}

func TestWriteXMLFailure(t *testing.T) {
	rec := write(t, FormatXML, http.StatusBadRequest,
		Failure("validation failed", []Detail{
			{Code: "required", Message: "name is required", Path: "name"},
		}))
	body := rec.Body.String()
	assert.Contains(t, body, "<error><message>validation failed</message>")
	assert.Contains(t, body, "<details><item><code>required</code><message>name is required</message><path>name</path></item></details>")
}

func TestWriteXMLEscapesText(t *testing.T) {
	rec := write(t, FormatXML, http.StatusOK,
		Success(map[string]interface{}{"name": "Tom & <Jerry>"}, nil))
	body := rec.Body.String()
	assert.Contains(t, body, "Tom &amp; &lt;Jerry&gt;")
	assert.NotContains(t, body, "<Jerry>")
}

func TestXMLAndJSONCarrySameContent(t *testing.T) {
	env := Success(map[string]interface{}{"name": "Drama", "rank": float64(4)}, nil)

	jsonRec := write(t, FormatJSON, http.StatusOK, env)
	xmlRec := write(t, FormatXML, http.StatusOK, env)

	assert.Contains(t, jsonRec.Body.String(), `"rank":4`)
	assert.Contains(t, xmlRec.Body.String(), "<rank>4</rank>")
}
