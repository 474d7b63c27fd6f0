/*Package envelope renders the uniform success/error response wrapper.

One canonical in-memory envelope, two renderers: JSON (the default) and XML,
selected by the request's Accept header. Both renderings carry identical
logical content, so adding a third format touches nothing outside this
package.
*/
package envelope

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mediora-tech/mediora/core/logger"
)

// Format is a negotiated response format.
type Format int

// the supported formats
const (
	FormatJSON Format = iota
	FormatXML
)

// Pagination is the list metadata block of a success envelope.
type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// Detail is one field-level error entry.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Error is the failure body. Details is only populated for validation
// failures.
type Error struct {
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
}

// Envelope is the canonical response wrapper. Exactly one of Data and Err
// is set; never both.
type Envelope struct {
	Data       interface{}
	Pagination *Pagination
	Err        *Error
}

// Success wraps a payload, with optional pagination metadata.
func Success(data interface{}, pagination *Pagination) Envelope {
	return Envelope{Data: data, Pagination: pagination}
}

// Failure wraps an error message and optional field details.
func Failure(message string, details []Detail) Envelope {
	return Envelope{Err: &Error{Message: message, Details: details}}
}

// Negotiate inspects the Accept header. Any XML media type selects XML;
// everything else, including absence, defaults to JSON.
func Negotiate(r *http.Request) Format {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/xml") || strings.Contains(accept, "text/xml") {
		return FormatXML
	}
	return FormatJSON
}

// Write renders the envelope in the negotiated format with the given
// status code. Serializer failures are logged, never echoed to the client.
func Write(w http.ResponseWriter, r *http.Request, format Format, status int, env Envelope) {
	var body []byte
	var contentType string
	var err error

	switch format {
	case FormatXML:
		body, err = renderXML(env)
		contentType = "application/xml; charset=utf-8"
	default:
		body, err = renderJSON(env)
		contentType = "application/json; charset=utf-8"
	}
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("cannot render response envelope")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body)
}

func renderJSON(env Envelope) ([]byte, error) {
	if env.Err != nil {
		return json.MarshalWithOption(map[string]interface{}{"error": env.Err}, json.DisableHTMLEscape())
	}
	doc := map[string]interface{}{"data": env.Data}
	if env.Pagination != nil {
		doc["pagination"] = env.Pagination
	}
	return json.MarshalWithOption(doc, json.DisableHTMLEscape())
}

// renderXML produces the structural XML equivalent of the JSON rendering:
// nested elements named after the JSON keys, list entries as <item>
// elements, everything under a single <response> root.
func renderXML(env Envelope) ([]byte, error) {
	var buf strings.Builder
	buf.WriteString(xml.Header)
	buf.WriteString("<response>")
	if env.Err != nil {
		buf.WriteString("<error>")
		writeElement(&buf, "message", env.Err.Message)
		if len(env.Err.Details) > 0 {
			buf.WriteString("<details>")
			for _, d := range env.Err.Details {
				buf.WriteString("<item>")
				writeElement(&buf, "code", d.Code)
				writeElement(&buf, "message", d.Message)
				writeElement(&buf, "path", d.Path)
				buf.WriteString("</item>")
			}
			buf.WriteString("</details>")
		}
		buf.WriteString("</error>")
	} else {
		if err := writeValue(&buf, "data", env.Data); err != nil {
			return nil, err
		}
		if p := env.Pagination; p != nil {
			buf.WriteString("<pagination>")
			writeElement(&buf, "currentPage", strconv.Itoa(p.CurrentPage))
			writeElement(&buf, "totalPages", strconv.Itoa(p.TotalPages))
			writeElement(&buf, "totalItems", strconv.Itoa(p.TotalItems))
			writeElement(&buf, "itemsPerPage", strconv.Itoa(p.ItemsPerPage))
			buf.WriteString("</pagination>")
		}
	}
	buf.WriteString("</response>")
	return []byte(buf.String()), nil
}

func writeValue(buf *strings.Builder, name string, value interface{}) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("<" + name + "/>")
	case map[string]interface{}:
		buf.WriteString("<" + name + ">")
		// deterministic element order
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := writeValue(buf, key, v[key]); err != nil {
				return err
			}
		}
		buf.WriteString("</" + name + ">")
	case []interface{}:
		buf.WriteString("<" + name + ">")
		for _, entry := range v {
			if err := writeValue(buf, "item", entry); err != nil {
				return err
			}
		}
		buf.WriteString("</" + name + ">")
	case []map[string]interface{}:
		buf.WriteString("<" + name + ">")
		for _, entry := range v {
			if err := writeValue(buf, "item", entry); err != nil {
				return err
			}
		}
		buf.WriteString("</" + name + ">")
	case string:
		writeElement(buf, name, v)
	case bool:
		writeElement(buf, name, strconv.FormatBool(v))
	case float64:
		writeElement(buf, name, strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		writeElement(buf, name, strconv.Itoa(v))
	case time.Time:
		writeElement(buf, name, v.Format(time.RFC3339Nano))
	case fmt.Stringer:
		writeElement(buf, name, v.String())
	default:
		// scalars that arrive typed, e.g. json.Number
		writeElement(buf, name, fmt.Sprintf("%v", v))
	}
	return nil
}

func writeElement(buf *strings.Builder, name, value string) {
	buf.WriteString("<" + name + ">")
	xml.EscapeText(buf, []byte(value))
	buf.WriteString("</" + name + ">")
}
