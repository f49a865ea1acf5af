package jettalib

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Lengths are byte counts of one hop.
type Lengths struct {
	// Content is the Content-Length header value, or -1.
	Content int64 `json:"content"`
	// Data is the number of bytes delivered to the sinks.
	Data int64 `json:"data"`
	// Decompressed is the decoded size when a content encoding was
	// decoded, otherwise 0.
	Decompressed int64 `json:"decompressed"`
	// Response is the number of raw bytes received.
	Response int64 `json:"response"`
}

// Timing of a request. For redirect hops Total equals RequestResponse.
type Timing struct {
	// Total covers every hop of the request.
	Total time.Duration `json:"total"`
	// Request is the time until the response head arrived.
	Request time.Duration `json:"request"`
	// RequestResponse is the time until the hop's body was read.
	RequestResponse time.Duration `json:"requestResponse"`
}

// Result describes a request, or one hop of it inside Redirects.
type Result struct {
	// ID identifies the logical request. Hops share it.
	ID              string      `json:"id"`
	URL             string      `json:"url"`
	Method          string      `json:"method"`
	StatusCode      int         `json:"statusCode"`
	ResponseHeaders http.Header `json:"responseHeaders"`
	// Data is the decoded body when storing data is enabled.
	Data []byte `json:"-"`
	// JSON is set when the final response declared a JSON media type.
	JSON gjson.Result `json:"-"`
	// Checksum is the digest of the decoded body, when requested.
	Checksum string `json:"checksum,omitempty"`
	// ContentEncoding lists encodings that were left undecoded.
	ContentEncoding string    `json:"contentEncoding,omitempty"`
	Lengths         Lengths   `json:"lengths"`
	Time            Timing    `json:"time"`
	Redirects       []*Result `json:"redirects,omitempty"`
	// Error mirrors the error returned alongside the result.
	Error error `json:"-"`
}

// Get queries the body with a gjson path.
func (r *Result) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Data, path)
}

// RedirectURLs returns the URLs of every hop before the final one.
func (r *Result) RedirectURLs() []string {
	urls := make([]string, len(r.Redirects))
	for i, h := range r.Redirects {
		urls[i] = h.URL
	}
	return urls
}

// isJSONMediaType matches application/json and any +json suffix.
func isJSONMediaType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
