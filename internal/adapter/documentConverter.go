package adapter

import (
	"fmt"

	"github.com/cloudnetkb/knowledge-base-api/internal/api"
	"github.com/cloudnetkb/knowledge-base-api/internal/domain/docmodel"
)

func ToDocumentView(doc *docmodel.Document) api.DocumentView {
	return api.DocumentView{
		Id:            doc.ID,
		Title:         doc.Title,
		Filename:      doc.Filename,
		SourceURL:     doc.SourceURL,
		Provider:      doc.Provider,
		Category:      doc.Category,
		Tags:          doc.Tags,
		Status:        string(doc.Status),
		FileSize:      doc.FileSize,
		WordCount:     doc.WordCount,
		VectorIndexed: doc.VectorIndexed,
		SearchIndexed: doc.SearchIndexed,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		ProcessedAt:   doc.ProcessedAt,
	}
}

func ToDocumentListResponse(docs []*docmodel.Document, total, skip, limit int) api.DocumentListResponse {
	views := make([]api.DocumentView, len(docs))
	for i, doc := range docs {
		views[i] = ToDocumentView(doc)
	}
	return api.DocumentListResponse{
		Documents: views,
		Total:     total,
		Skip:      skip,
		Limit:     limit,
	}
}

func ToUploadResponse(doc *docmodel.Document) api.UploadResponse {
	return api.UploadResponse{
		Message:    fmt.Sprintf("Document %s uploaded successfully", doc.Filename),
		Filename:   doc.Filename,
		DocumentId: doc.ID,
		Title:      doc.Title,
		Provider:   doc.Provider,
		Category:   doc.Category,
		Size:       doc.FileSize,
		WordCount:  doc.WordCount,
	}
}

func BadRequest(id string, error string, code int) api.ErrorResponse {
	return api.ErrorResponse{
		Error: error,
		Code:  code,
		Id:    id,
	}
}
