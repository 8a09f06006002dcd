package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cloudnetkb/knowledge-base-api/internal/handlers"
	"github.com/cloudnetkb/knowledge-base-api/internal/metrics"
	"github.com/cloudnetkb/knowledge-base-api/pkg/logger_i"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
	id           string
}

var GetHandler = Wrap(handlers.GetHandler)

var SearchHandler = Wrap(handlers.SearchHandler)
var SearchPostHandler = Wrap(handlers.SearchPostHandler)
var QAHandler = Wrap(handlers.QAHandler)
var SummarizeHandler = Wrap(handlers.SummarizeHandler)
var RecommendHandler = Wrap(handlers.RecommendHandler)
var StatsHandler = Wrap(handlers.StatsHandler)

var ListDocumentsHandler = Wrap(handlers.ListDocumentsHandler)
var GetDocumentHandler = Wrap(handlers.GetDocumentHandler)
var UploadDocumentHandler = Wrap(handlers.UploadDocumentHandler)
var DeleteDocumentHandler = Wrap(handlers.DeleteDocumentHandler)
var ScanDocumentsHandler = Wrap(handlers.ScanDocumentsHandler)
var ReindexDocumentHandler = Wrap(handlers.ReindexDocumentHandler)
var ReindexAllHandler = Wrap(handlers.ReindexAllHandler)
var SyncMetadataHandler = Wrap(handlers.SyncMetadataHandler)
var ResetCollectionHandler = Wrap(handlers.ResetCollectionHandler)
var HealthHandler = Wrap(handlers.HealthHandler)

var AgentCardHandler = Wrap(handlers.AgentCardHandler)

func Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: 200} //metrics
		re := processRequest(requestResponseStruct{req: r, writer: rec})

		if re.badRequest.isBadRequest {
			handleBadRequest(re)
			return
		}
		next(rec, re.req)

		metrics.HttpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.Status)).Inc() //metrics
		metrics.CaptureRequestMetrics(r.URL.Path, time.Since(start))
	}
}

func processRequest(re requestResponseStruct) requestResponseStruct {
	re.logger = logger_i.NewLogger("middleware")
	re.logger.Info("New request received")
	re = injectTrace(re)
	return re
}
