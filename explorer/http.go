// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package explorer

import (
	"net/http"
	"strings"

	"github.com/luxfi/ids"

	"github.com/meridian/replica/codec"
)

// response mirrors the teacher's api.Response envelope: a flat
// success/result/error shape every handler returns verbatim.
type response struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Handler serves GET /tx/<hash-hex>, answering with the transaction's
// current TxStatus encoded through the versioned JSON codec.
func (e *Explorer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hashHex := strings.TrimPrefix(r.URL.Path, "/tx/")
		hash, err := ids.FromString(hashHex)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{Error: "malformed transaction hash"})
			return
		}
		status := e.Query(hash)
		writeJSON(w, http.StatusOK, response{Success: true, Result: status})
	})
}

func writeJSON(w http.ResponseWriter, status int, v response) {
	body, err := codec.Codec.Marshal(codec.CurrentVersion, v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
