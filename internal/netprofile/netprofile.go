// Package netprofile accumulates per-resource byte and time records from the
// CDP network events observed during a navigation. Writes are append-only
// and each record is completed exactly once by its matching response, so
// concurrent event callbacks need no coordination beyond the profiler mutex.
package netprofile

import (
	"sort"
	"strconv"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ResourceRecord is one request that received a response. Requests that
// never got a paired response are dropped, never left partially populated.
type ResourceRecord struct {
	URL        string  `json:"url"`
	Type       string  `json:"resourceType"`
	SizeBytes  int64   `json:"sizeBytes"`
	DurationMs float64 `json:"durationMs"`
	Status     int     `json:"status"`
}

// TypeStat aggregates records of one resource type.
type TypeStat struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"totalBytes"`
}

// Summary is the frozen view handed to the issue detector and report.
type Summary struct {
	Resources    []ResourceRecord    `json:"-"`
	RequestCount int                 `json:"requestCount"`
	TotalBytes   int64               `json:"totalBytes"`
	ByType       map[string]TypeStat `json:"byType"`
}

type pendingRequest struct {
	url           string
	resourceType  string
	startSec      float64
	status        int
	declaredBytes int64
	responded     bool
	responseSec   float64
}

// Profiler collects network events for a single analysis request.
type Profiler struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending map[proto.NetworkRequestID]*pendingRequest
	records []ResourceRecord
}

func New(logger *zap.Logger) *Profiler {
	return &Profiler{
		logger:  logger,
		pending: make(map[proto.NetworkRequestID]*pendingRequest),
	}
}

// Attach subscribes to the page's network events. The subscription lives
// until the page context is cancelled at teardown.
func (p *Profiler) Attach(page *rod.Page) {
	wait := page.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) { p.HandleRequest(ev) },
		func(ev *proto.NetworkResponseReceived) { p.HandleResponse(ev) },
		func(ev *proto.NetworkLoadingFinished) { p.HandleLoadingFinished(ev) },
	)
	go wait()
}

// HandleRequest opens a record for an outgoing request.
func (p *Profiler) HandleRequest(ev *proto.NetworkRequestWillBeSent) {
	if ev.Request == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[ev.RequestID] = &pendingRequest{
		url:          ev.Request.URL,
		resourceType: mapResourceType(ev.Type),
		startSec:     float64(ev.Timestamp),
	}
}

// HandleResponse fills status and the declared size on the paired record.
// A response with no prior request record is ignored.
func (p *Profiler) HandleResponse(ev *proto.NetworkResponseReceived) {
	if ev.Response == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.pending[ev.RequestID]
	if !ok {
		return
	}
	req.responded = true
	req.responseSec = float64(ev.Timestamp)
	req.status = ev.Response.Status
	req.declaredBytes = declaredContentLength(ev.Response)
	if t := mapResourceType(ev.Type); t != "other" {
		req.resourceType = t
	}
}

// HandleLoadingFinished completes the record with the actually-transferred
// byte count and total duration.
func (p *Profiler) HandleLoadingFinished(ev *proto.NetworkLoadingFinished) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.pending[ev.RequestID]
	if !ok || !req.responded {
		// Either we never saw the request, or it failed before a response.
		delete(p.pending, ev.RequestID)
		return
	}
	delete(p.pending, ev.RequestID)

	size := req.declaredBytes
	if size <= 0 {
		// No declared length; the encoded transfer size is safe to use
		// because it never requires decoding the body.
		size = int64(ev.EncodedDataLength)
	}
	if size < 0 {
		size = 0
	}
	duration := (float64(ev.Timestamp) - req.startSec) * 1000
	if duration < 0 {
		duration = 0
	}
	p.records = append(p.records, ResourceRecord{
		URL:        req.url,
		Type:       req.resourceType,
		SizeBytes:  size,
		DurationMs: duration,
		Status:     req.status,
	})
}

// Summary freezes the accumulated records. Requests that got a response but
// no loading-finished event by harvest time are completed with what is known;
// requests with no response at all are dropped.
func (p *Profiler) Summary() *Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := make([]ResourceRecord, len(p.records))
	copy(records, p.records)
	for id, req := range p.pending {
		if !req.responded {
			continue
		}
		size := req.declaredBytes
		if size < 0 {
			size = 0
		}
		duration := (req.responseSec - req.startSec) * 1000
		if duration < 0 {
			duration = 0
		}
		records = append(records, ResourceRecord{
			URL:        req.url,
			Type:       req.resourceType,
			SizeBytes:  size,
			DurationMs: duration,
			Status:     req.status,
		})
		delete(p.pending, id)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].URL < records[j].URL })

	sum := &Summary{
		Resources:    records,
		RequestCount: len(records),
		ByType:       make(map[string]TypeStat),
	}
	for _, r := range records {
		sum.TotalBytes += r.SizeBytes
		stat := sum.ByType[r.Type]
		stat.Count++
		stat.TotalBytes += r.SizeBytes
		sum.ByType[r.Type] = stat
	}
	if p.logger != nil {
		p.logger.Debug("network summary frozen",
			zap.Int("requests", sum.RequestCount),
			zap.Int64("total_bytes", sum.TotalBytes))
	}
	return sum
}

func declaredContentLength(res *proto.NetworkResponse) int64 {
	for name, value := range res.Headers {
		if len(name) == 14 && (name == "Content-Length" || name == "content-length") {
			if n, err := strconv.ParseInt(value.Str(), 10, 64); err == nil && n >= 0 {
				return n
			}
		}
	}
	return 0
}

func mapResourceType(t proto.NetworkResourceType) string {
	switch t {
	case proto.NetworkResourceTypeDocument:
		return "document"
	case proto.NetworkResourceTypeStylesheet:
		return "stylesheet"
	case proto.NetworkResourceTypeScript:
		return "script"
	case proto.NetworkResourceTypeImage:
		return "image"
	case proto.NetworkResourceTypeFont:
		return "font"
	case proto.NetworkResourceTypeMedia:
		return "media"
	case proto.NetworkResourceTypeXHR, proto.NetworkResourceTypeFetch:
		return "xhr"
	default:
		return "other"
	}
}
