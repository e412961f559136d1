package rangepull

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fortytw2/leaktest"
	. "github.com/smartystreets/goconvey/convey"
)

func Test_FetcherSuccess(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("Fetch returns exactly the requested range", t, func() {
		body := []byte("0123456789")
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			rw.WriteHeader(http.StatusPartialContent)
			rw.Write(body[2:6])
		}))
		defer server.Close()

		f := NewFetcher(new(http.Client), nil, nil)
		got, err := f.Fetch(context.Background(), server.URL, Range{2, 5})
		So(err, ShouldBeNil)
		So(got, ShouldResemble, body[2:6])
	})
}

func Test_FetcherRetriesTransientThenSucceeds(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("Fetch retries a 500 and eventually succeeds", t, func() {
		var calls int32
		body := []byte("abcdef")
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				rw.WriteHeader(http.StatusInternalServerError)
				return
			}
			rw.WriteHeader(http.StatusPartialContent)
			rw.Write(body)
		}))
		defer server.Close()

		f := NewFetcher(new(http.Client), nil, nil)
		got, err := f.Fetch(context.Background(), server.URL, Range{0, 5})
		So(err, ShouldBeNil)
		So(got, ShouldResemble, body)
		So(atomic.LoadInt32(&calls), ShouldEqual, int32(2))
	})
}

func Test_FetcherRangeLengthMismatchIsFatal(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("Fetch does not retry a body that disagrees with the requested length", t, func() {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			atomic.AddInt32(&calls, 1)
			rw.WriteHeader(http.StatusPartialContent)
			rw.Write([]byte("short"))
		}))
		defer server.Close()

		f := NewFetcher(new(http.Client), nil, nil)
		_, err := f.Fetch(context.Background(), server.URL, Range{0, 99})

		var rpErr *Error
		So(err, ShouldNotBeNil)
		So(errors.As(err, &rpErr), ShouldBeTrue)
		So(rpErr.Kind, ShouldEqual, RangeLengthMismatch)
		So(atomic.LoadInt32(&calls), ShouldEqual, int32(1))
	})
}

func Test_FetcherCancellation(t *testing.T) {
	defer leaktest.Check(t)()

	Convey("Fetch stops retrying once its context is cancelled", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			rw.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f := NewFetcher(new(http.Client), nil, nil)
		_, err := f.Fetch(ctx, server.URL, Range{0, 3})

		var rpErr *Error
		So(err, ShouldNotBeNil)
		So(errors.As(err, &rpErr), ShouldBeTrue)
		So(rpErr.Kind, ShouldEqual, Interrupted)
	})
}
