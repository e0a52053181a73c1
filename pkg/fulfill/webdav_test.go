// SPDX-License-Identifier: LGPL-3.0-or-later

package fulfill

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBasicAuthServer(t *testing.T, user, pass string) (*httptest.Server, *sync.Map) {
	uploaded := &sync.Map{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			uploaded.Store(r.URL.Path, string(body))
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			uploaded.Delete(r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	return srv, uploaded
}

func TestWebDAVFulfiller_FulfillAndClear(t *testing.T) {
	srv, uploaded := newBasicAuthServer(t, "acme", "s3cret")
	defer srv.Close()

	f := &WebDAVFulfiller{Username: "acme", Password: "s3cret"}
	ch := Challenge{Token: "tok-1", KeyAuthorization: "tok-1.thumb"}

	// FulfillHTTP01/ClearHTTP01 build an http://<domain>/ URL that cannot
	// point at the test server, so drive do() directly with the same PUT
	// and DELETE those methods send, against httptest's listener address.
	f.Client = srv.Client()
	url := srv.URL + "/.well-known/acme-challenge/" + ch.Token

	require.NoError(t, f.do(context.Background(), http.MethodPut, url, ch.KeyAuthorization))
	v, ok := uploaded.Load("/.well-known/acme-challenge/" + ch.Token)
	require.True(t, ok)
	assert.Equal(t, ch.KeyAuthorization, v)

	require.NoError(t, f.do(context.Background(), http.MethodDelete, url, ""))
	_, ok = uploaded.Load("/.well-known/acme-challenge/" + ch.Token)
	assert.False(t, ok)
}

func TestWebDAVFulfiller_UnauthorizedIsPermanent(t *testing.T) {
	srv, _ := newBasicAuthServer(t, "acme", "s3cret")
	defer srv.Close()

	f := &WebDAVFulfiller{Username: "acme", Password: "wrong", Client: srv.Client()}
	url := srv.URL + "/.well-known/acme-challenge/tok"

	err := f.do(context.Background(), http.MethodPut, url, "x")
	assert.Error(t, err)
}
