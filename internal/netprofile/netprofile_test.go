package netprofile

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
	"go.uber.org/zap"
)

func request(id, url string, t proto.NetworkResourceType, startSec float64) *proto.NetworkRequestWillBeSent {
	return &proto.NetworkRequestWillBeSent{
		RequestID: proto.NetworkRequestID(id),
		Request:   &proto.NetworkRequest{URL: url},
		Type:      t,
		Timestamp: proto.MonotonicTime(startSec),
	}
}

func response(id string, status int, contentLength string, t proto.NetworkResourceType, atSec float64) *proto.NetworkResponseReceived {
	headers := proto.NetworkHeaders{}
	if contentLength != "" {
		headers["Content-Length"] = gson.New(contentLength)
	}
	return &proto.NetworkResponseReceived{
		RequestID: proto.NetworkRequestID(id),
		Type:      t,
		Timestamp: proto.MonotonicTime(atSec),
		Response:  &proto.NetworkResponse{Status: status, Headers: headers},
	}
}

func finished(id string, atSec, encodedBytes float64) *proto.NetworkLoadingFinished {
	return &proto.NetworkLoadingFinished{
		RequestID:         proto.NetworkRequestID(id),
		Timestamp:         proto.MonotonicTime(atSec),
		EncodedDataLength: encodedBytes,
	}
}

func TestProfiler_CompleteLifecyclePrefersDeclaredLength(t *testing.T) {
	p := New(zap.NewNop())
	p.HandleRequest(request("1", "https://example.com/app.js", proto.NetworkResourceTypeScript, 10.0))
	p.HandleResponse(response("1", 200, "50000", proto.NetworkResourceTypeScript, 10.2))
	p.HandleLoadingFinished(finished("1", 10.5, 48000))

	sum := p.Summary()
	require.Len(t, sum.Resources, 1)
	r := sum.Resources[0]
	assert.Equal(t, int64(50000), r.SizeBytes, "declared content-length wins over encoded size")
	assert.InDelta(t, 500.0, r.DurationMs, 0.001)
	assert.Equal(t, "script", r.Type)
	assert.Equal(t, 200, r.Status)
}

func TestProfiler_FallsBackToEncodedLength(t *testing.T) {
	p := New(zap.NewNop())
	p.HandleRequest(request("1", "https://example.com/", proto.NetworkResourceTypeDocument, 1.0))
	p.HandleResponse(response("1", 200, "", proto.NetworkResourceTypeDocument, 1.1))
	p.HandleLoadingFinished(finished("1", 1.3, 12345))

	sum := p.Summary()
	require.Len(t, sum.Resources, 1)
	assert.Equal(t, int64(12345), sum.Resources[0].SizeBytes)
}

func TestProfiler_UnmatchedResponseIgnored(t *testing.T) {
	p := New(zap.NewNop())
	p.HandleResponse(response("ghost", 200, "100", proto.NetworkResourceTypeImage, 5.0))
	p.HandleLoadingFinished(finished("ghost", 5.1, 100))

	sum := p.Summary()
	assert.Empty(t, sum.Resources)
	assert.Equal(t, 0, sum.RequestCount)
}

func TestProfiler_RequestWithoutResponseDropped(t *testing.T) {
	p := New(zap.NewNop())
	p.HandleRequest(request("1", "https://example.com/hang", proto.NetworkResourceTypeXHR, 1.0))

	sum := p.Summary()
	assert.Empty(t, sum.Resources, "requests without a paired response are dropped, not half-filled")
}

func TestProfiler_RespondedButUnfinishedFlushedAtSummary(t *testing.T) {
	p := New(zap.NewNop())
	p.HandleRequest(request("1", "https://example.com/slow.png", proto.NetworkResourceTypeImage, 2.0))
	p.HandleResponse(response("1", 200, "2048", proto.NetworkResourceTypeImage, 2.4))

	sum := p.Summary()
	require.Len(t, sum.Resources, 1)
	assert.Equal(t, int64(2048), sum.Resources[0].SizeBytes)
	assert.InDelta(t, 400.0, sum.Resources[0].DurationMs, 0.001)
}

func TestProfiler_AggregatesByType(t *testing.T) {
	p := New(zap.NewNop())
	p.HandleRequest(request("1", "https://example.com/a.js", proto.NetworkResourceTypeScript, 0))
	p.HandleResponse(response("1", 200, "1000", proto.NetworkResourceTypeScript, 0.1))
	p.HandleLoadingFinished(finished("1", 0.2, 1000))
	p.HandleRequest(request("2", "https://example.com/b.js", proto.NetworkResourceTypeScript, 0))
	p.HandleResponse(response("2", 200, "3000", proto.NetworkResourceTypeScript, 0.1))
	p.HandleLoadingFinished(finished("2", 0.2, 3000))
	p.HandleRequest(request("3", "https://example.com/pic.png", proto.NetworkResourceTypeImage, 0))
	p.HandleResponse(response("3", 200, "500", proto.NetworkResourceTypeImage, 0.1))
	p.HandleLoadingFinished(finished("3", 0.2, 500))

	sum := p.Summary()
	assert.Equal(t, 3, sum.RequestCount)
	assert.Equal(t, int64(4500), sum.TotalBytes)
	assert.Equal(t, TypeStat{Count: 2, TotalBytes: 4000}, sum.ByType["script"])
	assert.Equal(t, TypeStat{Count: 1, TotalBytes: 500}, sum.ByType["image"])
}

func TestMapResourceType(t *testing.T) {
	assert.Equal(t, "xhr", mapResourceType(proto.NetworkResourceTypeFetch))
	assert.Equal(t, "stylesheet", mapResourceType(proto.NetworkResourceTypeStylesheet))
	assert.Equal(t, "other", mapResourceType(proto.NetworkResourceTypeWebSocket))
}
