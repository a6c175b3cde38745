// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package rtnet

import (
	"github.com/develeap/rtnet/internal/errcat"
	"github.com/develeap/rtnet/internal/headers"
	"github.com/develeap/rtnet/internal/mockreg"
)

// MockHandle identifies a registered mock rule for later removal, per
// spec.md's MockRemoveMock.
type MockHandle struct {
	mock *mockreg.Mock
}

// MockCallCreate creates an empty mock rule matching everything until
// narrowed by MockAddMock, and a canned response to be filled in via the
// CallResponseSet* operations forwarded from spec.md's MockResponseSet*
// family.
func MockCallCreate() (MockHandle, error) {
	if _, err := current(); err != nil {
		return MockHandle{}, err
	}
	return MockHandle{mock: &mockreg.Mock{}}, nil
}

// MockAddMock narrows h's match criteria (method/url prefix/body) and
// registers it with the process-wide mock registry. An empty string/nil
// body means "match any", per spec.md §4.2.
func MockAddMock(h MockHandle, method, urlPrefix string, bodyBytes []byte) error {
	g, err := current()
	if err != nil {
		return err
	}
	if h.mock == nil {
		return errcat.New(errcat.InvalidArg, "invalid mock handle", errcat.WithOp("MockAddMock"))
	}
	h.mock.Method = method
	h.mock.URLPrefix = urlPrefix
	h.mock.Body = bodyBytes
	g.mocks.Add(h.mock)
	return nil
}

// MockSetMatchedCallback installs a callback invoked (outside the registry
// lock) every time h is matched, per spec.md's MockSetMatchedCallback.
func MockSetMatchedCallback(h MockHandle, fn func(method, url string, body []byte)) error {
	if _, err := current(); err != nil {
		return err
	}
	if h.mock == nil {
		return errcat.New(errcat.InvalidArg, "invalid mock handle", errcat.WithOp("MockSetMatchedCallback"))
	}
	h.mock.OnMatched = fn
	return nil
}

// MockRemoveMock deregisters h.
func MockRemoveMock(h MockHandle) error {
	g, err := current()
	if err != nil {
		return err
	}
	if h.mock != nil {
		g.mocks.Remove(h.mock)
	}
	return nil
}

// MockClearMocks removes every registered mock.
func MockClearMocks() error {
	g, err := current()
	if err != nil {
		return err
	}
	g.mocks.Clear()
	return nil
}

// MockResponseSetStatusCode is forwarded to the mock's canned response, per
// spec.md's "MockResponseSet* (forwarded to CallResponseSet*)".
func MockResponseSetStatusCode(h MockHandle, statusCode uint32) error {
	if _, err := current(); err != nil {
		return err
	}
	if h.mock == nil {
		return errcat.New(errcat.InvalidArg, "invalid mock handle", errcat.WithOp("MockResponseSetStatusCode"))
	}
	h.mock.Response.StatusCode = statusCode
	return nil
}

// MockResponseSetResponseBodyBytes sets the mock's canned response body.
func MockResponseSetResponseBodyBytes(h MockHandle, body []byte) error {
	if _, err := current(); err != nil {
		return err
	}
	if h.mock == nil {
		return errcat.New(errcat.InvalidArg, "invalid mock handle", errcat.WithOp("MockResponseSetResponseBodyBytes"))
	}
	h.mock.Response.Body = body
	return nil
}

// MockResponseSetHeader sets a header on the mock's canned response.
func MockResponseSetHeader(h MockHandle, name, value string) error {
	if _, err := current(); err != nil {
		return err
	}
	if h.mock == nil {
		return errcat.New(errcat.InvalidArg, "invalid mock handle", errcat.WithOp("MockResponseSetHeader"))
	}
	if h.mock.Response.Headers == nil {
		h.mock.Response.Headers = &headers.Map{}
	}
	h.mock.Response.Headers.Set(name, value)
	return nil
}

// MockResponseSetNetworkErrorCode makes the mock simulate a transport-level
// failure instead of a normal HTTP response.
func MockResponseSetNetworkErrorCode(h MockHandle, code int32) error {
	if _, err := current(); err != nil {
		return err
	}
	if h.mock == nil {
		return errcat.New(errcat.InvalidArg, "invalid mock handle", errcat.WithOp("MockResponseSetNetworkErrorCode"))
	}
	h.mock.Response.NetworkErrorCode = code
	return nil
}
