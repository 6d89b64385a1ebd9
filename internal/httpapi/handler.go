// Package httpapi contains the hand-written HTTP handlers for the order
// and product services. Requests are decoded with encoding/json; responses
// are streamed with jx.
package httpapi

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// writeJSON writes status and a JSON body produced by fn.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, fn func(e *jx.Encoder)) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	if _, err := w.Write(e.Bytes()); err != nil {
		// The status line is gone already; the client likely disconnected.
		zctx.From(r.Context()).Debug("write response", zap.Error(err))
	}
}

// writeError writes the standard {"code":N,"message":...} error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// internalError logs the cause and answers with an opaque 500. Handler
// code never leaks storage or transport details to clients.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("internal error", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "internal server error")
}
