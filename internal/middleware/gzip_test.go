package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func clientJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"id":1,"first_name":"Иван","last_name":"Петров"}`))
}

func clientDeleted(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNoContent)
}

func ordersExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="orders_export.xlsx"`)
	_, _ = w.Write([]byte("PK\x03\x04 workbook"))
}

func echoOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		contentType     string
		body            string
	}

	tests := []struct {
		name           string
		method         string
		handler        http.HandlerFunc
		requestBody    []byte
		headers        map[string]string
		handlerSkipped bool
		want           want
	}{
		{
			name:    "client card is compressed",
			method:  http.MethodGet,
			handler: clientJSON,
			headers: map[string]string{"Accept-Encoding": "gzip, deflate"},
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				contentType:     "application/json",
				body:            `{"id":1,"first_name":"Иван","last_name":"Петров"}`,
			},
		},
		{
			name:    "client card without gzip support",
			method:  http.MethodGet,
			handler: clientJSON,
			want: want{
				statusCode:  http.StatusOK,
				contentType: "application/json",
				body:        `{"id":1,"first_name":"Иван","last_name":"Петров"}`,
			},
		},
		{
			name:    "deleted client has no body to encode",
			method:  http.MethodDelete,
			handler: clientDeleted,
			headers: map[string]string{"Accept-Encoding": "gzip"},
			want: want{
				statusCode:  http.StatusNoContent,
				contentType: "application/json",
			},
		},
		{
			name:    "workbook export stays uncompressed",
			method:  http.MethodGet,
			handler: ordersExport,
			headers: map[string]string{"Accept-Encoding": "gzip"},
			want: want{
				statusCode:  http.StatusOK,
				contentType: xlsxContentType,
				body:        "PK\x03\x04 workbook",
			},
		},
		{
			name:        "compressed order body is unpacked",
			method:      http.MethodPost,
			handler:     echoOrder,
			requestBody: gzipBytes(t, `{"client_id":2,"total_amount":"10"}`),
			headers:     map[string]string{"Content-Encoding": "gzip", "Accept-Encoding": "gzip"},
			want: want{
				statusCode:      http.StatusCreated,
				contentEncoding: "gzip",
				contentType:     "application/json",
				body:            `{"client_id":2,"total_amount":"10"}`,
			},
		},
		{
			name:           "broken gzip body is rejected",
			method:         http.MethodPost,
			handler:        echoOrder,
			requestBody:    []byte(`{"client_id":2}`),
			headers:        map[string]string{"Content-Encoding": "gzip"},
			handlerSkipped: true,
			want: want{
				statusCode:  http.StatusBadRequest,
				contentType: "application/json",
				body:        `{"error":"invalid gzip request body"}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				tt.handler(w, r)
			})

			req := httptest.NewRequest(tt.method, "/api/clients/1", bytes.NewReader(tt.requestBody))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			GzipMiddleware(next).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if called == tt.handlerSkipped {
				t.Fatalf("handler called = %v, want %v", called, !tt.handlerSkipped)
			}
			if res.StatusCode != tt.want.statusCode {
				t.Fatalf("status: got %d want %d", res.StatusCode, tt.want.statusCode)
			}
			if ct := res.Header.Get("Content-Type"); ct != tt.want.contentType {
				t.Fatalf("content-type: got %q want %q", ct, tt.want.contentType)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.want.contentEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.want.contentEncoding)
			}
			if !tt.handlerSkipped && res.Header.Get("Vary") != "Accept-Encoding" {
				t.Fatalf("vary: got %q want Accept-Encoding", res.Header.Get("Vary"))
			}

			var reader io.Reader = res.Body
			if tt.want.contentEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}
			body, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if got := strings.TrimSpace(string(body)); got != tt.want.body {
				t.Fatalf("body: got %q want %q", got, tt.want.body)
			}
		})
	}
}
