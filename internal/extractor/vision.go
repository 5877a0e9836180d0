package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clearledger/vat-extract/internal/domain/entity"
)

// maxVisionPages bounds how many PDF pages are sent to the vision model,
// controlling per-document cost.
const maxVisionPages = 2

// ChatCompletionClient is the slice of the OpenAI client the vision
// extractor needs. *openai.Client satisfies it.
type ChatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// VisionExtractor sends document pages to a vision-capable model and
// expects structured VAT fields back.
type VisionExtractor struct {
	client ChatCompletionClient
	model  string
	logger *zap.Logger
}

// NewVisionExtractor creates a vision extractor backed by the given client.
func NewVisionExtractor(client ChatCompletionClient, model string, logger *zap.Logger) *VisionExtractor {
	return &VisionExtractor{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Capability returns CapabilityAI.
func (e *VisionExtractor) Capability() Capability {
	return CapabilityAI
}

// visionPayload is the JSON structure the model is instructed to return.
type visionPayload struct {
	DocumentType string   `json:"document_type"`
	InvoiceDate  string   `json:"invoice_date"`
	TotalAmount  *float64 `json:"total_amount"`
	VATAmount    *float64 `json:"vat_amount"`
	VATRate      *float64 `json:"vat_rate"`
	Confidence   *float64 `json:"confidence"`
}

// Extract renders the document to images, sends them to the vision model
// and maps the structured response into a RawExtraction.
func (e *VisionExtractor) Extract(ctx context.Context, doc *entity.Document) (*entity.RawExtraction, error) {
	images, err := e.renderImages(doc)
	if err != nil {
		return nil, err
	}

	contentParts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: visionPrompt,
	}}
	for _, img := range images {
		contentParts = append(contentParts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(img)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   1024,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert at reading financial documents. You extract VAT figures from invoices, receipts and statements with perfect accuracy. Always respond with valid JSON.",
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: contentParts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.String("document_id", doc.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty vision response", ErrServiceUnavailable)
	}

	content := resp.Choices[0].Message.Content
	var payload visionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		e.logger.Warn("Failed to parse vision response",
			zap.String("document_id", doc.ID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: unparseable vision response", ErrServiceUnavailable)
	}

	raw := &entity.RawExtraction{
		Text:        content,
		TotalAmount: payload.TotalAmount,
		VATRate:     payload.VATRate,
		Confidence:  payload.Confidence,
	}
	if payload.VATAmount != nil {
		raw.Candidates = append(raw.Candidates, entity.CandidateAmount{
			Value:  *payload.VATAmount,
			Source: "vision:vat_amount",
		})
	}
	if payload.TotalAmount != nil {
		raw.Candidates = append(raw.Candidates, entity.CandidateAmount{
			Value:  *payload.TotalAmount,
			Source: "vision:total_amount",
		})
	}

	e.logger.Info("Vision extraction completed",
		zap.String("document_id", doc.ID),
		zap.Int("candidates", len(raw.Candidates)))
	return raw, nil
}

// renderImages converts the document into JPEG page images: PDFs are
// rendered page by page, raster images pass through unchanged.
func (e *VisionExtractor) renderImages(doc *entity.Document) ([][]byte, error) {
	if doc.IsImage() {
		return [][]byte{doc.Content}, nil
	}
	if !doc.IsPDF() {
		return nil, fmt.Errorf("%w: vision extractor cannot read %s", ErrUnsupportedFormat, doc.MimeType)
	}

	pdf, err := fitz.NewFromMemory(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	defer pdf.Close()

	pages := pdf.NumPage()
	if pages > maxVisionPages {
		pages = maxVisionPages
	}

	var images [][]byte
	for page := 0; page < pages; page++ {
		img, err := pdf.Image(page)
		if err != nil {
			e.logger.Warn("Failed to render PDF page",
				zap.String("document_id", doc.ID),
				zap.Int("page", page),
				zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			continue
		}
		images = append(images, buf.Bytes())
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no renderable pages", ErrMalformedDocument)
	}
	return images, nil
}

const visionPrompt = `Examine this financial document and extract the VAT-relevant figures.

Return a JSON object with exactly this structure:
{
  "document_type": "invoice | receipt | statement | other",
  "invoice_date": "YYYY-MM-DD or empty string",
  "total_amount": number or null,
  "vat_amount": number or null,
  "vat_rate": number or null (percentage, e.g. 23 for 23%),
  "confidence": number between 0 and 1 reflecting how clearly the figures were readable
}

IMPORTANT:
- Extract EXACTLY what you see. Do not guess or invent values.
- Amounts are plain numbers without currency symbols.
- If a figure is not visible, use null.`
